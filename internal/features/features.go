// Package features turns one detector frame into the fixed-size vector the
// classifier consumes.
package features

import (
	"errors"
	"slices"

	"github.com/ayusman/mudra/internal/detector"
)

const (
	// MaxHands is the number of hand slots in a vector.
	MaxHands = 2
	// HandSize is the number of floats contributed by one hand.
	HandSize = detector.NumLandmarks * 3
	// Size is the length of every feature vector.
	Size = MaxHands * HandSize
)

var (
	// ErrNoHands means the frame had no hands. Callers reset their window.
	ErrNoHands = errors.New("no hands in frame")
	// ErrMalformedHand means a hand did not carry exactly 21 landmarks.
	// It is handled the same way as ErrNoHands.
	ErrMalformedHand = errors.New("malformed hand")
)

// Vector is one frame's features: hand one in [0,63), hand two or zeros in [63,126).
type Vector [Size]float64

// Build converts detected hands into a Vector.
//
// Hands are ordered by mirrored wrist x (1 - x) ascending, stable for ties,
// and at most MaxHands are kept. Each kept hand contributes its landmarks in
// index order as (1-x, y, z). The input slice and its points are not modified.
func Build(hands []detector.HandLandmarks) (Vector, error) {
	var v Vector
	if len(hands) == 0 {
		return v, ErrNoHands
	}

	sorted := make([]detector.HandLandmarks, len(hands))
	for i := range hands {
		if !hands[i].Complete() {
			return v, ErrMalformedHand
		}
		sorted[i] = hands[i].Clone()
	}

	slices.SortStableFunc(sorted, func(a, b detector.HandLandmarks) int {
		ka, kb := 1-a.Points[detector.Wrist].X, 1-b.Points[detector.Wrist].X
		switch {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		}
		return 0
	})

	if len(sorted) > MaxHands {
		sorted = sorted[:MaxHands]
	}

	for h, hand := range sorted {
		off := h * HandSize
		for i, p := range hand.Points {
			v[off+i*3] = 1 - p.X
			v[off+i*3+1] = p.Y
			v[off+i*3+2] = p.Z
		}
	}
	return v, nil
}

// Slice returns the vector as a slice backed by a copy.
func (v Vector) Slice() []float64 {
	return slices.Clone(v[:])
}
