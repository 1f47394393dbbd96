// Package events defines the event envelope pushed to dashboard sessions,
// the per-type payloads it carries, and the text/event-stream wire codec
// shared by the server and the client hub.
//
// An Envelope is a tagged union: Type selects the concrete Payload held in
// Data. Producers build envelopes with New and consumers narrow the payload
// with a type switch or with As:
//
//	env := events.New(&events.ImageCapturedData{CameraID: 3, ImageID: 981})
//	if p, ok := events.As[*events.ImageCapturedData](env); ok {
//	    fmt.Println(p.CameraID)
//	}
package events

// Type discriminates the payload carried by an Envelope.
type Type string

// Domain event types emitted by the backend.
const (
	ImageCaptured          Type = "image_captured"
	CameraStatusChanged    Type = "camera_status_changed"
	TimelapseStatusChanged Type = "timelapse_status_changed"
	CorruptionDetected     Type = "corruption_detected"
	VideoJobQueued         Type = "video_job_queued"
	VideoJobProgress       Type = "video_job_progress"
	VideoJobCompleted      Type = "video_job_completed"
	VideoJobFailed         Type = "video_job_failed"
	SettingsChanged        Type = "settings_changed"
)

// Synthetic types produced by the distribution layer itself.
const (
	Connected Type = "connected"
	Heartbeat Type = "heartbeat"
	Error     Type = "error"
)

// IsSynthetic reports whether t is produced by the transport rather than by
// a domain producer.
func (t Type) IsSynthetic() bool {
	switch t {
	case Connected, Heartbeat, Error:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (t Type) String() string {
	return string(t)
}

// factories maps each known type to a constructor for its payload.
var factories = map[Type]func() Payload{
	ImageCaptured:          func() Payload { return &ImageCapturedData{} },
	CameraStatusChanged:    func() Payload { return &CameraStatusData{} },
	TimelapseStatusChanged: func() Payload { return &TimelapseStatusData{} },
	CorruptionDetected:     func() Payload { return &CorruptionData{} },
	VideoJobQueued:         func() Payload { return &VideoJobQueuedData{} },
	VideoJobProgress:       func() Payload { return &VideoJobProgressData{} },
	VideoJobCompleted:      func() Payload { return &VideoJobCompletedData{} },
	VideoJobFailed:         func() Payload { return &VideoJobFailedData{} },
	SettingsChanged:        func() Payload { return &SettingsData{} },
	Connected:              func() Payload { return &ConnectedData{} },
	Heartbeat:              func() Payload { return &HeartbeatData{} },
	Error:                  func() Payload { return &ErrorData{} },
}

// Known reports whether t has a registered payload type.
func Known(t Type) bool {
	_, ok := factories[t]
	return ok
}
