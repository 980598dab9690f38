package app

import (
	"context"
	"errors"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/session"
)

// Run is the capture loop. It reads frames at the camera's rate, keeps the
// latest JPEG for the preview stream, detects hands and feeds them to the
// session while it is running. It returns when ctx is done or a finite
// camera runs out of frames.
//
// Pipeline logic:
// 1. Read a frame and publish its JPEG for /api/stream
// 2. Detect hands and publish the landmarks
// 3. Ingest the hands into the running session
// 4. Tick the practice drill so expired words advance
func (a *App) Run(ctx context.Context) error {
	if a.camera == nil {
		return capture.ErrCameraNotOpen
	}
	if err := a.camera.Open(); err != nil {
		return err
	}

	fps := a.camera.FPS()
	if fps <= 0 {
		fps = capture.DefaultFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	a.setRunning(true)
	defer a.setRunning(false)

	a.log.WithField("fps", fps).Info("capture loop started")
	defer a.log.Info("capture loop stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		a.drill.Tick()

		if err := a.step(ctx); err != nil {
			if errors.Is(err, capture.ErrEndOfStream) {
				return nil
			}
			return err
		}
	}
}

// Capturing reports whether the capture loop is active.
func (a *App) Capturing() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

func (a *App) setRunning(v bool) {
	a.mu.Lock()
	a.running = v
	a.mu.Unlock()
}

// step processes one camera frame. Only end of stream is returned; other
// camera and detector failures are counted and the frame is skipped.
func (a *App) step(ctx context.Context) error {
	frame, err := a.camera.ReadFrame()
	if err != nil {
		if errors.Is(err, capture.ErrEndOfStream) {
			return err
		}
		a.metrics.RecordCaptureError(ctx, "camera")
		a.log.WithError(err).Debug("error reading frame")
		return nil
	}
	defer frame.Close()

	if buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame); err == nil {
		jpeg := append([]byte(nil), buf.GetBytes()...)
		buf.Close()
		a.mu.Lock()
		a.frame = jpeg
		a.frameN++
		a.mu.Unlock()
	}

	hands, err := a.detector.Detect(frame)
	if err != nil {
		a.metrics.RecordCaptureError(ctx, "detector")
		a.log.WithError(err).Debug("error detecting hands")
		return nil
	}

	a.mu.Lock()
	a.hands = hands
	a.mu.Unlock()
	a.publish(EventHands, HandsEvent{Hands: hands, Timestamp: time.Now().UnixMilli()})

	if err := a.session.Ingest(ctx, hands); err != nil && !errors.Is(err, session.ErrNotRunning) {
		return err
	}
	return nil
}
