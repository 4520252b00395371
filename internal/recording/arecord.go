package recording

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/chat"
)

// ArecordDevice captures from the default ALSA microphone via the arecord
// binary. It exists for development on Linux hosts; browser and mobile
// embeddings bring their own Device.
type ArecordDevice struct {
	// Binary overrides the arecord path, mainly for tests.
	Binary string

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

func (d *ArecordDevice) Start(preferred []string) (string, error) {
	bin := d.Binary
	if bin == "" {
		bin = "arecord"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return "", fmt.Errorf("%w: %s not found", chat.ErrUnsupported, bin)
	}

	cmd := exec.Command(path, "-q", "-f", "cd", "-t", "wav")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("%w: %v", chat.ErrUnsupported, err)
	}
	if err := cmd.Start(); err != nil {
		// arecord fails to start when the device node is not accessible to
		// this user, which is the closest thing to a denied microphone.
		return "", fmt.Errorf("%w: %v", chat.ErrPermission, err)
	}

	d.mu.Lock()
	d.cmd = cmd
	d.stdout = stdout
	d.mu.Unlock()

	for _, want := range preferred {
		if strings.Contains(want, "wav") {
			return want, nil
		}
	}
	return "", nil
}

func (d *ArecordDevice) Read() ([]byte, error) {
	d.mu.Lock()
	stdout := d.stdout
	d.mu.Unlock()
	if stdout == nil {
		return nil, io.EOF
	}
	buf := make([]byte, 4096)
	n, err := stdout.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err != nil {
		// Stop kills the process and Wait closes the pipe, which surfaces to
		// a blocked Read as os.ErrClosed. That is a clean shutdown, not a
		// capture failure.
		if errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
			return nil, io.EOF
		}
		return nil, err
	}
	return nil, io.EOF
}

func (d *ArecordDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cmd == nil {
		return nil
	}
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	_ = d.cmd.Wait()
	d.cmd = nil
	d.stdout = nil
	return nil
}
