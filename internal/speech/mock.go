package speech

import (
	"context"
	"sync"
)

// MockSpeaker records utterances for tests.
type MockSpeaker struct {
	mu       sync.Mutex
	spoken   []string
	voices   []Voice
	cancels  int
	speakErr error
}

// NewMockSpeaker creates an empty MockSpeaker.
func NewMockSpeaker() *MockSpeaker {
	return &MockSpeaker{}
}

// SetError makes every Speak call fail with err.
func (m *MockSpeaker) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speakErr = err
}

// Speak records text.
func (m *MockSpeaker) Speak(ctx context.Context, text string, voice Voice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.speakErr != nil {
		return m.speakErr
	}
	m.spoken = append(m.spoken, text)
	m.voices = append(m.voices, voice)
	return nil
}

// Cancel counts cancellations.
func (m *MockSpeaker) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels++
	return nil
}

// Spoken returns the recorded utterances in order.
func (m *MockSpeaker) Spoken() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.spoken...)
}

// Voices returns the voice used for each utterance.
func (m *MockSpeaker) Voices() []Voice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Voice(nil), m.voices...)
}

// Cancels returns how many times Cancel was called.
func (m *MockSpeaker) Cancels() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancels
}
