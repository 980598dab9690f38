// Package detector provides hand detection interfaces and landmark types consumed by the feature pipeline.
package detector

import "slices"

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Point3D is one tracked landmark. X and Y are image-normalized to roughly
// [0,1]; Z is depth relative to the wrist.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandLandmarks is one detected hand as reported by the detector.
// Points keeps the detector's anatomical order (index 0 is the wrist) and is
// never re-sorted. A well-formed hand has exactly NumLandmarks points; the
// slice form lets callers see and reject short reports instead of silently
// zero-filling them.
type HandLandmarks struct {
	Points     []Point3D `json:"points"`
	Handedness string    `json:"handedness"` // "Left" or "Right"
	Score      float64   `json:"score"`
}

// Complete reports whether the hand carries exactly NumLandmarks points.
func (h *HandLandmarks) Complete() bool {
	return h != nil && len(h.Points) == NumLandmarks
}

// Clone returns a deep copy so callers can reorder hands without touching
// detector-owned memory.
func (h HandLandmarks) Clone() HandLandmarks {
	h.Points = slices.Clone(h.Points)
	return h
}

// NewHand returns a well-formed hand with every landmark at the origin.
func NewHand() HandLandmarks {
	return HandLandmarks{Points: make([]Point3D, NumLandmarks)}
}
