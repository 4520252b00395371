package recording

import (
	"io"
	"sync"
)

// Device is the platform capture boundary. Start negotiates an encoding from
// the preferred list and returns the chosen MIME type, or "" when the device
// captures fine but supports none of the preferred encodings (untyped
// payload). Start must return chat.ErrUnsupported when no capture capability
// exists and chat.ErrPermission when access is denied.
//
// Read blocks until a chunk is available and returns io.EOF once the device
// has been stopped. Stop releases the device and must be idempotent.
type Device interface {
	Start(preferred []string) (mime string, err error)
	Read() ([]byte, error)
	Stop() error
}

// MemDevice is an in-memory Device used in tests and development builds. It
// serves queued chunks and can be primed to fail at Start.
type MemDevice struct {
	// Supported lists the MIME types the fake hardware accepts.
	Supported []string
	// StartErr, when set, is returned by Start (permission/unsupported cases).
	StartErr error
	// ReadErr, when set, is returned by Read after the queued chunks drain,
	// simulating a capture failure mid-session.
	ReadErr error

	mu      sync.Mutex
	open    bool
	pending chan []byte
}

// Feed queues a chunk for delivery to the engine.
func (d *MemDevice) Feed(chunk []byte) {
	d.mu.Lock()
	ch := d.pending
	d.mu.Unlock()
	if ch != nil {
		ch <- chunk
	}
}

func (d *MemDevice) Start(preferred []string) (string, error) {
	if d.StartErr != nil {
		return "", d.StartErr
	}
	d.mu.Lock()
	d.open = true
	d.pending = make(chan []byte, 64)
	d.mu.Unlock()

	for _, want := range preferred {
		for _, have := range d.Supported {
			if want == have {
				return want, nil
			}
		}
	}
	return "", nil
}

func (d *MemDevice) Read() ([]byte, error) {
	d.mu.Lock()
	ch := d.pending
	d.mu.Unlock()
	if ch == nil {
		return nil, io.EOF
	}
	chunk, ok := <-ch
	if !ok {
		if d.ReadErr != nil {
			return nil, d.ReadErr
		}
		return nil, io.EOF
	}
	return chunk, nil
}

func (d *MemDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil
	}
	d.open = false
	close(d.pending)
	return nil
}

// Drain closes the chunk stream without marking the device released, so a
// primed ReadErr surfaces to the engine as a capture failure.
func (d *MemDevice) Drain() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		d.open = false
		close(d.pending)
	}
}
