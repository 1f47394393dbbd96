// Package publish provides the publish command, which submits one event to
// a broadcast server.
package publish

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agentstation/livefeed/internal/cmd/application"
	"github.com/agentstation/livefeed/internal/cmd/emoji"
	"github.com/agentstation/livefeed/internal/cmd/output"
	"github.com/agentstation/livefeed/internal/server/handlers"
	"github.com/agentstation/livefeed/internal/transport"
	"github.com/agentstation/livefeed/pkg/errors"
	"github.com/agentstation/livefeed/pkg/events"
)

// NewCommand creates the publish command.
func NewCommand(app application.Application, serverURL func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish --type <event_type> --data <json>",
		Short: "Submit an event to a broadcast server",
		Long: `Publish builds an event envelope and submits it to the events endpoint
of a running broadcast server, which writes it to every connected client.

The payload is validated locally before it is sent. --data accepts inline
JSON, @path to read a file, or - to read standard input.

With --retries the submission is retried on connection failures and
server errors. Retries always carry an Idempotency-Key (generated when
--idempotency-key is not given) so the event is delivered at most once.`,
		Example: `  # Announce a captured image
  livefeed publish --type image_captured \
    --data '{"camera_id":7,"image_id":1201,"timelapse_id":3,"file_path":"/data/7/1201.jpg","day_number":4}'

  # Read the payload from a file and retry through a restart
  livefeed publish --type settings_changed --data @settings.json --retries 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, app, serverURL())
		},
	}

	cmd.Flags().StringP("type", "t", "", "Event type (required)")
	cmd.Flags().StringP("data", "d", "{}", "Event payload: JSON, @file or - for stdin")
	cmd.Flags().String("idempotency-key", "", "Idempotency-Key sent with the submission")
	cmd.Flags().Uint("retries", 0, "Retry attempts on connection failures and server errors")
	cmd.Flags().String("token", "", "Bearer token for servers behind an authenticating proxy")
	cmd.Flags().Duration("timeout", transport.DefaultHTTPTimeout, "Per-attempt request timeout")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func run(cmd *cobra.Command, app application.Application, baseURL string) error {
	logger := app.Logger()

	eventType, _ := cmd.Flags().GetString("type")
	dataArg, _ := cmd.Flags().GetString("data")
	key, _ := cmd.Flags().GetString("idempotency-key")
	retries, _ := cmd.Flags().GetUint("retries")
	token, _ := cmd.Flags().GetString("token")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	data, err := readData(dataArg, cmd.InOrStdin())
	if err != nil {
		return err
	}

	env, err := BuildEnvelope(events.Type(eventType), data, time.Now())
	if err != nil {
		return err
	}

	if retries > 0 && key == "" {
		key = uuid.NewString()
	}

	opts := []transport.Option{transport.WithHTTPClient(&http.Client{Timeout: timeout})}
	if token != "" {
		opts = append(opts, transport.WithAuth(&transport.BearerAuth{}, token))
	}
	client := transport.New(opts...)

	logger.Debug().
		Str("server", baseURL).
		Str("type", eventType).
		Str("idempotency_key", key).
		Uint("retries", retries).
		Msg("Publishing event")

	result, err := Publish(cmd.Context(), client, baseURL, env, key, retries, logger)
	if err != nil {
		return err
	}
	if result.Duplicate {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s Idempotency-Key %s was already submitted; the event was not broadcast again\n", emoji.Warning, key)
	}

	formatter := output.NewFormatter(output.DetectFormat(app.OutputFormat()))
	return formatter.Format(cmd.OutOrStdout(), result)
}

// BuildEnvelope assembles and validates an envelope from a type and a JSON
// payload, stamped with now.
func BuildEnvelope(eventType events.Type, data []byte, now time.Time) (events.Envelope, error) {
	var env events.Envelope

	if !json.Valid(data) {
		return env, errors.NewDecodeError(string(data), errors.New("payload is not valid JSON"))
	}

	wire, err := json.Marshal(map[string]any{
		"type":      eventType,
		"data":      json.RawMessage(data),
		"timestamp": now.UTC(),
	})
	if err != nil {
		return env, err
	}
	if err := json.Unmarshal(wire, &env); err != nil {
		if errors.IsValidationError(err) {
			return env, err
		}
		return env, errors.NewDecodeError(string(data), err)
	}

	if err := events.Validate(env); err != nil {
		return env, err
	}
	return env, nil
}

// Publish submits env, retrying up to retries times on failures a later
// attempt could fix.
func Publish(ctx context.Context, client *transport.Client, baseURL string, env events.Envelope, key string, retries uint, logger *zerolog.Logger) (handlers.PublishResult, error) {
	operation := func() (handlers.PublishResult, error) {
		result, err := client.Publish(ctx, baseURL, env, key)
		if err != nil && !retryable(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(retries+1),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Warn().Err(err).Dur("retry_in", wait).Msg("Publish failed, retrying")
		}),
	)
}

// retryable reports whether a failed submission may succeed if repeated.
func retryable(err error) bool {
	if errors.IsConnectError(err) {
		return true
	}
	var apiErr *transport.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError ||
			apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// readData resolves the --data argument.
func readData(arg string, stdin io.Reader) ([]byte, error) {
	switch {
	case arg == "-":
		return io.ReadAll(stdin)
	case strings.HasPrefix(arg, "@"):
		data, err := os.ReadFile(strings.TrimPrefix(arg, "@"))
		if err != nil {
			return nil, fmt.Errorf("reading payload: %w", err)
		}
		return data, nil
	default:
		return []byte(arg), nil
	}
}
