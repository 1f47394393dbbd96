package events

import "encoding/json"

// CameraScoped is implemented by payloads that concern a single camera.
type CameraScoped interface {
	Camera() int
}

// Camera implements CameraScoped.
func (d *ImageCapturedData) Camera() int { return d.CameraID }

// Camera implements CameraScoped.
func (d *CameraStatusData) Camera() int { return d.CameraID }

// Camera implements CameraScoped.
func (d *TimelapseStatusData) Camera() int { return d.CameraID }

// Camera implements CameraScoped.
func (d *CorruptionData) Camera() int { return d.CameraID }

// Camera implements CameraScoped.
func (d *VideoJobQueuedData) Camera() int { return d.CameraID }

// Camera implements CameraScoped.
func (d *VideoJobProgressData) Camera() int { return d.CameraID }

// Camera implements CameraScoped.
func (d *VideoJobCompletedData) Camera() int { return d.CameraID }

// Camera implements CameraScoped.
func (d *VideoJobFailedData) Camera() int { return d.CameraID }

// CameraOf returns the camera an envelope concerns. Payloads of unknown
// types are inspected for a top-level camera_id field.
func CameraOf(env Envelope) (int, bool) {
	switch p := env.Data.(type) {
	case CameraScoped:
		return p.Camera(), true
	case *Raw:
		var scoped struct {
			CameraID *int `json:"camera_id"`
		}
		if err := json.Unmarshal(p.Data, &scoped); err != nil || scoped.CameraID == nil {
			return 0, false
		}
		return *scoped.CameraID, true
	default:
		return 0, false
	}
}
