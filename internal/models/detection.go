package models

import "time"

// Knob states reported by the detection service.
const (
	KnobStateOn    = "on"
	KnobStateOff   = "off"
	KnobStateError = "error"
)

// KnobResult is the per-knob detail of a detection run.
type KnobResult struct {
	Index      int     `json:"index"`
	State      string  `json:"state"` // on | off | error
	Confidence float64 `json:"confidence,omitempty"`
	AngleDeg   float64 `json:"angle_deg,omitempty"`
}

// DetectionResult is the structured outcome of one successful stove check.
type DetectionResult struct {
	StoveIsOn      bool         `json:"stove_is_on"`
	OnKnobCount    int          `json:"on_knob_count"`
	TotalKnobCount int          `json:"total_knob_count"`
	ErrorKnobCount int          `json:"error_knob_count,omitempty"`
	Knobs          []KnobResult `json:"knobs,omitempty"`
	AnnotatedImage string       `json:"annotated_image,omitempty"` // base64 or URL, pass-through
	CheckedAt      time.Time    `json:"checked_at"`
}
