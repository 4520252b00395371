// Package recording captures microphone audio into a finite, pausable,
// resumable recording session and yields a sealed payload. It knows nothing
// about chat; the session transports the sealed payload as an opaque blob.
package recording

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/chat"
)

// State is the recording lifecycle position.
// Idle → Recording ⇄ Paused → Stopped → Idle.
type State int

const (
	StateIdle State = iota
	StateRecording
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrInvalidState rejects operations called outside their valid states.
var ErrInvalidState = errors.New("recording: operation not valid in current state")

// PreferredMimeTypes is the ordered encoding preference list tried at Start.
// The first one the device supports wins; if none is supported the payload is
// sealed untyped.
var PreferredMimeTypes = []string{
	"audio/webm;codecs=opus",
	"audio/ogg;codecs=opus",
	"audio/mp4",
	"audio/wav",
}

// SealedPayload is the finalized, immutable result of a completed recording.
type SealedPayload struct {
	Data     []byte
	MimeType string
	Duration time.Duration
}

// Engine is the recording state machine. The capture device is guaranteed
// released on every exit path: Stop, Discard and any internal capture error.
type Engine struct {
	dev  Device
	log  zerolog.Logger
	tick time.Duration

	mu      sync.Mutex
	state   State
	gen     uint64
	buf     []byte
	mime    string
	elapsed time.Duration
	sealed  *SealedPayload
	lastErr error
}

// Option tweaks engine construction.
type Option func(*Engine)

// WithTickInterval overrides the one-second elapsed counter tick. Tests use
// short ticks to keep timing deterministic.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) { e.tick = d }
}

// New constructs an idle engine over the given capture device.
func New(dev Device, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		dev:  dev,
		log:  logger.With().Str("component", "recording").Logger(),
		tick: time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start acquires the device and begins buffering captured chunks. It fails
// with chat.ErrUnsupported when the platform offers no capture capability and
// chat.ErrPermission when microphone access is denied.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle {
		return fmt.Errorf("%w: start from %s", ErrInvalidState, e.state)
	}

	mime, err := e.dev.Start(PreferredMimeTypes)
	if err != nil {
		e.lastErr = err
		return err
	}

	e.gen++
	e.state = StateRecording
	e.buf = nil
	e.mime = mime
	e.elapsed = 0
	e.sealed = nil
	e.lastErr = nil

	go e.captureLoop(e.gen)
	go e.tickLoop(e.gen)
	return nil
}

// PauseToggle flips between Recording and Paused. The elapsed counter
// freezes while paused.
func (e *Engine) PauseToggle() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateRecording:
		e.state = StatePaused
	case StatePaused:
		e.state = StateRecording
	default:
		return fmt.Errorf("%w: pause from %s", ErrInvalidState, e.state)
	}
	return nil
}

// Stop finalizes all buffered chunks into one sealed payload, releases the
// device and transitions to Stopped.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRecording && e.state != StatePaused {
		return fmt.Errorf("%w: stop from %s", ErrInvalidState, e.state)
	}

	if err := e.dev.Stop(); err != nil {
		e.log.Warn().Err(err).Msg("device stop reported an error")
	}
	// Retire the capture generation: whatever error the device's unblocked
	// Read returns now must not tear down the sealed session.
	e.gen++
	data := make([]byte, len(e.buf))
	copy(data, e.buf)
	e.sealed = &SealedPayload{Data: data, MimeType: e.mime, Duration: e.elapsed}
	e.buf = nil
	e.state = StateStopped
	return nil
}

// Discard drops any buffered or sealed payload and returns to Idle, stopping
// capture if it is still active. Safe to call from any state; from Idle it is
// a no-op.
func (e *Engine) Discard() {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateIdle:
		return
	case StateRecording, StatePaused:
		if err := e.dev.Stop(); err != nil {
			e.log.Warn().Err(err).Msg("device stop reported an error")
		}
	}
	e.resetLocked()
}

// GetSealedPayload returns the sealed payload. Valid only in Stopped; the
// read is repeatable and does not mutate state.
func (e *Engine) GetSealedPayload() (SealedPayload, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateStopped || e.sealed == nil {
		return SealedPayload{}, fmt.Errorf("%w: no sealed payload in %s", ErrInvalidState, e.state)
	}
	return *e.sealed, nil
}

// State reports the current lifecycle position.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Elapsed reports accumulated unpaused recording time.
func (e *Engine) Elapsed() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.elapsed
}

// Err returns the last capture error, if any. Capture errors always leave
// the engine back in Idle with the device released.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

func (e *Engine) resetLocked() {
	e.gen++
	e.state = StateIdle
	e.buf = nil
	e.mime = ""
	e.elapsed = 0
	e.sealed = nil
}

// captureLoop pulls chunks from the device while this generation is live.
// Chunks arriving while paused are dropped; a read error tears the session
// down to Idle so no partial payload is ever exposed.
func (e *Engine) captureLoop(gen uint64) {
	for {
		chunk, err := e.dev.Read()
		e.mu.Lock()
		if e.gen != gen {
			e.mu.Unlock()
			return
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				e.mu.Unlock()
				return
			}
			e.log.Error().Err(err).Msg("capture failed, discarding session")
			if stopErr := e.dev.Stop(); stopErr != nil {
				e.log.Warn().Err(stopErr).Msg("device stop reported an error")
			}
			e.lastErr = fmt.Errorf("%w: %v", chat.ErrChannel, err)
			e.resetLocked()
			e.mu.Unlock()
			return
		}
		if e.state == StateRecording {
			e.buf = append(e.buf, chunk...)
		}
		e.mu.Unlock()
	}
}

// tickLoop advances the elapsed counter once per tick of unpaused time.
func (e *Engine) tickLoop(gen uint64) {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()
	for range ticker.C {
		e.mu.Lock()
		if e.gen != gen || (e.state != StateRecording && e.state != StatePaused) {
			e.mu.Unlock()
			return
		}
		if e.state == StateRecording {
			e.elapsed += e.tick
		}
		e.mu.Unlock()
	}
}
