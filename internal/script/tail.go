package script

import (
	"bytes"
	"sync"
)

// tail keeps the last bytes written into it. It's used to capture the end of the
// interpreter's stderr for error messages
type tail struct {
	mu   sync.Mutex
	buff []byte
	size int
}

func newTail(size int) *tail {
	return &tail{size: size}
}

func (t *tail) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(b)
	if len(b) > t.size {
		b = b[len(b)-t.size:]
	}

	t.buff = append(t.buff, b...)
	if len(t.buff) > t.size {
		t.buff = append(t.buff[:0], t.buff[len(t.buff)-t.size:]...)
	}

	return n, nil
}

// Describe returns the captured data prepared to be appended to an error message
func (t *tail) Describe() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	trimmed := bytes.TrimSpace(t.buff)
	if len(trimmed) == 0 {
		return ""
	}

	return ": stderr: " + string(trimmed)
}
