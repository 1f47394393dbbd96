package events

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/agentstation/livefeed/pkg/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names so errors match what producers sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks an inbound envelope from a producer. Synthetic types are
// rejected because only the distribution layer may emit them.
func Validate(env Envelope) error {
	if env.Type == "" {
		return pkgerrors.NewValidationError("type", env.Type, "cannot be empty")
	}
	if env.Type.IsSynthetic() {
		return pkgerrors.NewValidationError("type", env.Type, "is reserved for the transport")
	}
	if env.Timestamp.IsZero() {
		return pkgerrors.NewValidationError("timestamp", env.Timestamp, "cannot be empty")
	}
	if env.Data == nil {
		return pkgerrors.NewValidationError("data", nil, "cannot be empty")
	}
	if _, raw := env.Data.(*Raw); raw {
		return nil
	}

	err := validate.Struct(env.Data)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return pkgerrors.NewValidationError(
			"data."+fe.Field(),
			fe.Value(),
			fmt.Sprintf("failed %q constraint", fe.Tag()),
		)
	}
	return pkgerrors.NewValidationError("data", env.Data, err.Error())
}
