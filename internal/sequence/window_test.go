package sequence

import (
	"testing"

	"github.com/ayusman/mudra/internal/features"
)

func vec(tag float64) features.Vector {
	var v features.Vector
	v[0] = tag
	return v
}

func TestWindow(t *testing.T) {
	t.Run("defaults capacity", func(t *testing.T) {
		if got := New(0).Cap(); got != DefaultLength {
			t.Errorf("Cap() = %d, want %d", got, DefaultLength)
		}
	})

	t.Run("fills to capacity", func(t *testing.T) {
		w := New(30)
		for i := 0; i < 29; i++ {
			w.Push(vec(float64(i)))
		}
		if w.IsFull() {
			t.Fatal("window full after 29 pushes")
		}
		w.Push(vec(29))
		if !w.IsFull() || w.Len() != 30 {
			t.Fatalf("expected full window of 30, got len %d", w.Len())
		}
	})

	t.Run("31st push evicts the oldest", func(t *testing.T) {
		w := New(30)
		for i := 0; i < 31; i++ {
			w.Push(vec(float64(i)))
		}
		snap := w.Snapshot()
		if len(snap) != 30 {
			t.Fatalf("expected 30 vectors, got %d", len(snap))
		}
		for i, v := range snap {
			if v[0] != float64(i+1) {
				t.Fatalf("snap[%d] = %f, want %d", i, v[0], i+1)
			}
		}
	})

	t.Run("reset empties", func(t *testing.T) {
		w := New(3)
		w.Push(vec(1))
		w.Push(vec(2))
		w.Reset()
		if w.Len() != 0 || w.IsFull() {
			t.Errorf("window not empty after reset: len %d", w.Len())
		}
		w.Push(vec(3))
		if snap := w.Snapshot(); len(snap) != 1 || snap[0][0] != 3 {
			t.Errorf("unexpected contents after reset: %v", snap)
		}
	})

	t.Run("snapshot is a copy", func(t *testing.T) {
		w := New(2)
		w.Push(vec(1))
		snap := w.Snapshot()
		snap[0][0] = 42
		if w.Snapshot()[0][0] != 1 {
			t.Error("mutating snapshot changed window")
		}
	})
}
