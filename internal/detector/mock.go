package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu    sync.Mutex
	hands []HandLandmarks
	err   error
	calls int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands that will be returned by Detect.
func (m *MockDetector) SetHands(hands []HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns the pre-configured hands or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.hands, nil
}

// Calls returns how many times Detect has been invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// ThumbsUpLandmarks returns a right hand with the thumb extended upward and
// the other fingers curled.
func ThumbsUpLandmarks() HandLandmarks {
	hand := NewHand()
	hand.Handedness = "Right"
	hand.Score = 0.95

	hand.Points[Wrist] = Point3D{X: 0.5, Y: 0.8, Z: 0.0}

	hand.Points[ThumbCMC] = Point3D{X: 0.55, Y: 0.75, Z: 0.0}
	hand.Points[ThumbMCP] = Point3D{X: 0.58, Y: 0.65, Z: 0.0}
	hand.Points[ThumbIP] = Point3D{X: 0.58, Y: 0.50, Z: 0.0}
	hand.Points[ThumbTip] = Point3D{X: 0.58, Y: 0.35, Z: 0.0}

	hand.Points[IndexMCP] = Point3D{X: 0.55, Y: 0.70, Z: -0.02}
	hand.Points[IndexPIP] = Point3D{X: 0.55, Y: 0.68, Z: -0.05}
	hand.Points[IndexDIP] = Point3D{X: 0.52, Y: 0.70, Z: -0.04}
	hand.Points[IndexTip] = Point3D{X: 0.50, Y: 0.72, Z: -0.02}

	hand.Points[MiddleMCP] = Point3D{X: 0.50, Y: 0.68, Z: -0.02}
	hand.Points[MiddlePIP] = Point3D{X: 0.50, Y: 0.66, Z: -0.05}
	hand.Points[MiddleDIP] = Point3D{X: 0.47, Y: 0.68, Z: -0.04}
	hand.Points[MiddleTip] = Point3D{X: 0.45, Y: 0.70, Z: -0.02}

	hand.Points[RingMCP] = Point3D{X: 0.45, Y: 0.70, Z: -0.02}
	hand.Points[RingPIP] = Point3D{X: 0.45, Y: 0.68, Z: -0.05}
	hand.Points[RingDIP] = Point3D{X: 0.42, Y: 0.70, Z: -0.04}
	hand.Points[RingTip] = Point3D{X: 0.40, Y: 0.72, Z: -0.02}

	hand.Points[PinkyMCP] = Point3D{X: 0.40, Y: 0.72, Z: -0.02}
	hand.Points[PinkyPIP] = Point3D{X: 0.40, Y: 0.70, Z: -0.05}
	hand.Points[PinkyDIP] = Point3D{X: 0.37, Y: 0.72, Z: -0.04}
	hand.Points[PinkyTip] = Point3D{X: 0.35, Y: 0.74, Z: -0.02}

	return hand
}

// OpenPalmLandmarks returns a left hand with all fingers extended, placed on
// the left side of the camera image.
func OpenPalmLandmarks() HandLandmarks {
	hand := NewHand()
	hand.Handedness = "Left"
	hand.Score = 0.93

	hand.Points[Wrist] = Point3D{X: 0.25, Y: 0.8, Z: 0.0}

	hand.Points[ThumbCMC] = Point3D{X: 0.30, Y: 0.75, Z: 0.02}
	hand.Points[ThumbMCP] = Point3D{X: 0.37, Y: 0.70, Z: 0.03}
	hand.Points[ThumbIP] = Point3D{X: 0.43, Y: 0.65, Z: 0.03}
	hand.Points[ThumbTip] = Point3D{X: 0.48, Y: 0.60, Z: 0.03}

	hand.Points[IndexMCP] = Point3D{X: 0.30, Y: 0.68, Z: 0.0}
	hand.Points[IndexPIP] = Point3D{X: 0.32, Y: 0.55, Z: 0.0}
	hand.Points[IndexDIP] = Point3D{X: 0.33, Y: 0.45, Z: 0.0}
	hand.Points[IndexTip] = Point3D{X: 0.33, Y: 0.35, Z: 0.0}

	hand.Points[MiddleMCP] = Point3D{X: 0.25, Y: 0.66, Z: 0.0}
	hand.Points[MiddlePIP] = Point3D{X: 0.25, Y: 0.52, Z: 0.0}
	hand.Points[MiddleDIP] = Point3D{X: 0.25, Y: 0.40, Z: 0.0}
	hand.Points[MiddleTip] = Point3D{X: 0.25, Y: 0.28, Z: 0.0}

	hand.Points[RingMCP] = Point3D{X: 0.20, Y: 0.68, Z: 0.0}
	hand.Points[RingPIP] = Point3D{X: 0.18, Y: 0.55, Z: 0.0}
	hand.Points[RingDIP] = Point3D{X: 0.17, Y: 0.45, Z: 0.0}
	hand.Points[RingTip] = Point3D{X: 0.17, Y: 0.35, Z: 0.0}

	hand.Points[PinkyMCP] = Point3D{X: 0.15, Y: 0.70, Z: 0.0}
	hand.Points[PinkyPIP] = Point3D{X: 0.12, Y: 0.60, Z: 0.0}
	hand.Points[PinkyDIP] = Point3D{X: 0.10, Y: 0.50, Z: 0.0}
	hand.Points[PinkyTip] = Point3D{X: 0.09, Y: 0.42, Z: 0.0}

	return hand
}
