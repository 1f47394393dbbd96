package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/agentstation/livefeed/pkg/errors"
)

var testTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func TestEnvelope_MarshalJSON(t *testing.T) {
	env := NewAt(&ImageCapturedData{CameraID: 3, ImageID: 17}, testTime)

	b, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"image_captured","data":{"camera_id":3,"image_id":17},"timestamp":"2026-03-14T09:26:53Z"}`,
		string(b))
}

func TestEnvelope_MarshalJSON_EmptyType(t *testing.T) {
	_, err := json.Marshal(Envelope{Timestamp: testTime})
	require.Error(t, err)
}

func TestEnvelope_MarshalJSON_NilData(t *testing.T) {
	b, err := json.Marshal(Envelope{Type: Heartbeat, Timestamp: testTime})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"data":{}`)
}

func TestEnvelope_UnmarshalJSON_KnownTypes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, env Envelope)
	}{
		{
			name:  "camera status",
			input: `{"type":"camera_status_changed","data":{"camera_id":7,"status":"offline"},"timestamp":"2026-03-14T09:26:53Z"}`,
			check: func(t *testing.T, env Envelope) {
				p, ok := As[*CameraStatusData](env)
				require.True(t, ok)
				assert.Equal(t, 7, p.CameraID)
				assert.Equal(t, "offline", p.Status)
			},
		},
		{
			name:  "video job progress",
			input: `{"type":"video_job_progress","data":{"job_id":4,"camera_id":1,"progress":42.5},"timestamp":"2026-03-14T09:26:53Z"}`,
			check: func(t *testing.T, env Envelope) {
				p, ok := As[*VideoJobProgressData](env)
				require.True(t, ok)
				assert.InDelta(t, 42.5, p.Progress, 0.001)
			},
		},
		{
			name:  "null data",
			input: `{"type":"heartbeat","data":null,"timestamp":"2026-03-14T09:26:53Z"}`,
			check: func(t *testing.T, env Envelope) {
				_, ok := As[*HeartbeatData](env)
				assert.True(t, ok)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var env Envelope
			require.NoError(t, json.Unmarshal([]byte(tt.input), &env))
			assert.True(t, env.Timestamp.Equal(testTime))
			tt.check(t, env)
		})
	}
}

func TestEnvelope_UnmarshalJSON_UnknownTypeKeptRaw(t *testing.T) {
	input := `{"type":"thumbnail_regenerated","data":{"image_id":9},"timestamp":"2026-03-14T09:26:53Z"}`

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(input), &env))
	assert.Equal(t, Type("thumbnail_regenerated"), env.Type)

	raw, ok := As[*Raw](env)
	require.True(t, ok)
	assert.JSONEq(t, `{"image_id":9}`, string(raw.Data))

	out, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, input, string(out))
}

func TestEnvelope_UnmarshalJSON_Errors(t *testing.T) {
	inputs := map[string]string{
		"not json":     `{"type":`,
		"missing type": `{"data":{},"timestamp":"2026-03-14T09:26:53Z"}`,
		"bad payload":  `{"type":"image_captured","data":{"camera_id":"three"},"timestamp":"2026-03-14T09:26:53Z"}`,
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			var env Envelope
			assert.Error(t, json.Unmarshal([]byte(input), &env))
		})
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		env := NewAt(&TimelapseStatusData{CameraID: 1, TimelapseID: 2, Status: "paused"}, testTime)
		assert.NoError(t, Validate(env))
	})

	t.Run("constraint reported with json name", func(t *testing.T) {
		env := NewAt(&VideoJobProgressData{JobID: 1, CameraID: 1, Progress: 140}, testTime)
		err := Validate(env)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidationError(err))
		assert.Contains(t, err.Error(), "data.progress")
	})

	t.Run("synthetic type rejected", func(t *testing.T) {
		env := NewAt(&HeartbeatData{Timestamp: testTime}, testTime)
		assert.Error(t, Validate(env))
	})

	t.Run("missing timestamp", func(t *testing.T) {
		env := Envelope{Type: ImageCaptured, Data: &ImageCapturedData{CameraID: 1, ImageID: 1}}
		assert.Error(t, Validate(env))
	})

	t.Run("unknown type accepted", func(t *testing.T) {
		env := Envelope{Type: "future_event", Data: &Raw{Kind: "future_event"}, Timestamp: testTime}
		assert.NoError(t, Validate(env))
	})
}

func TestType_IsSynthetic(t *testing.T) {
	assert.True(t, Heartbeat.IsSynthetic())
	assert.True(t, Connected.IsSynthetic())
	assert.True(t, Error.IsSynthetic())
	assert.False(t, ImageCaptured.IsSynthetic())
	assert.True(t, Known(VideoJobFailed))
	assert.False(t, Known("nope"))
}
