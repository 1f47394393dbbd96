package events

import (
	"encoding/json"
	"time"
)

// Payload is the type-specific body of an Envelope. Every payload type is
// a pointer to one of the structs in this file, or *Raw for types this
// build does not know about.
type Payload interface {
	EventType() Type
}

// ImageCapturedData is emitted after a camera stores a new frame.
type ImageCapturedData struct {
	CameraID    int    `json:"camera_id" validate:"required,gt=0"`
	ImageID     int    `json:"image_id" validate:"required,gt=0"`
	TimelapseID int    `json:"timelapse_id,omitempty" validate:"gte=0"`
	FilePath    string `json:"file_path,omitempty"`
	DayNumber   int    `json:"day_number,omitempty" validate:"gte=0"`
}

// EventType implements Payload.
func (*ImageCapturedData) EventType() Type { return ImageCaptured }

// CameraStatusData is emitted when a camera's connectivity or health changes.
type CameraStatusData struct {
	CameraID     int    `json:"camera_id" validate:"required,gt=0"`
	Status       string `json:"status" validate:"required"`
	HealthStatus string `json:"health_status,omitempty"`
}

// EventType implements Payload.
func (*CameraStatusData) EventType() Type { return CameraStatusChanged }

// TimelapseStatusData is emitted on a timelapse state transition.
type TimelapseStatusData struct {
	CameraID    int    `json:"camera_id" validate:"required,gt=0"`
	TimelapseID int    `json:"timelapse_id" validate:"required,gt=0"`
	Status      string `json:"status" validate:"required,oneof=running paused stopped completed archived"`
}

// EventType implements Payload.
func (*TimelapseStatusData) EventType() Type { return TimelapseStatusChanged }

// CorruptionData is emitted when an image fails quality scoring.
type CorruptionData struct {
	CameraID int     `json:"camera_id" validate:"required,gt=0"`
	ImageID  int     `json:"image_id" validate:"required,gt=0"`
	Score    float64 `json:"score" validate:"gte=0,lte=100"`
	Action   string  `json:"action,omitempty" validate:"omitempty,oneof=saved discarded retried"`
}

// EventType implements Payload.
func (*CorruptionData) EventType() Type { return CorruptionDetected }

// VideoJobQueuedData is emitted when a video render job is accepted.
type VideoJobQueuedData struct {
	JobID       int    `json:"job_id" validate:"required,gt=0"`
	CameraID    int    `json:"camera_id" validate:"required,gt=0"`
	TimelapseID int    `json:"timelapse_id,omitempty" validate:"gte=0"`
	Trigger     string `json:"trigger,omitempty"`
}

// EventType implements Payload.
func (*VideoJobQueuedData) EventType() Type { return VideoJobQueued }

// VideoJobProgressData reports render progress as a percentage.
type VideoJobProgressData struct {
	JobID    int     `json:"job_id" validate:"required,gt=0"`
	CameraID int     `json:"camera_id" validate:"required,gt=0"`
	Progress float64 `json:"progress" validate:"gte=0,lte=100"`
}

// EventType implements Payload.
func (*VideoJobProgressData) EventType() Type { return VideoJobProgress }

// VideoJobCompletedData is emitted when a render finishes successfully.
type VideoJobCompletedData struct {
	JobID     int    `json:"job_id" validate:"required,gt=0"`
	CameraID  int    `json:"camera_id" validate:"required,gt=0"`
	VideoID   int    `json:"video_id,omitempty" validate:"gte=0"`
	VideoPath string `json:"video_path,omitempty"`
}

// EventType implements Payload.
func (*VideoJobCompletedData) EventType() Type { return VideoJobCompleted }

// VideoJobFailedData is emitted when a render fails.
type VideoJobFailedData struct {
	JobID    int    `json:"job_id" validate:"required,gt=0"`
	CameraID int    `json:"camera_id" validate:"required,gt=0"`
	Error    string `json:"error" validate:"required"`
}

// EventType implements Payload.
func (*VideoJobFailedData) EventType() Type { return VideoJobFailed }

// SettingsData is emitted when a persisted setting changes.
type SettingsData struct {
	Key   string `json:"key" validate:"required"`
	Value any    `json:"value"`
}

// EventType implements Payload.
func (*SettingsData) EventType() Type { return SettingsChanged }

// ConnectedData confirms a stream is open before any real event arrives.
type ConnectedData struct {
	ConnectionID string `json:"connection_id,omitempty"`
	Message      string `json:"message"`
}

// EventType implements Payload.
func (*ConnectedData) EventType() Type { return Connected }

// HeartbeatData keeps an idle stream alive.
type HeartbeatData struct {
	Timestamp time.Time `json:"timestamp"`
}

// EventType implements Payload.
func (*HeartbeatData) EventType() Type { return Heartbeat }

// ErrorData reports a transport failure to the one affected client.
type ErrorData struct {
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

// EventType implements Payload.
func (*ErrorData) EventType() Type { return Error }

// Raw carries the payload of a type this build does not know. It is
// re-encoded verbatim.
type Raw struct {
	Kind Type
	Data json.RawMessage
}

// EventType implements Payload.
func (r *Raw) EventType() Type { return r.Kind }

// MarshalJSON implements json.Marshaler.
func (r *Raw) MarshalJSON() ([]byte, error) {
	if len(r.Data) == 0 {
		return []byte("null"), nil
	}
	return r.Data, nil
}
