// Package capture buffers the producer's combined stdout/stderr for the
// operator log. The buffer is bounded: once the ceiling is exceeded the
// oldest bytes are trimmed, so a chatty producer cannot grow memory without
// limit.
package capture

import (
	"bytes"
	"strings"
	"sync"
)

// DefaultLimit caps the capture buffer at 256 KiB.
const DefaultLimit = 256 * 1024

// Buffer is a bounded, concurrency-safe byte buffer. It satisfies io.Writer
// so it can be attached directly to exec.Cmd output.
type Buffer struct {
	mu    sync.Mutex
	data  []byte
	limit int
}

// NewBuffer creates a buffer that retains at most limit bytes.
func NewBuffer(limit int) *Buffer {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Buffer{limit: limit}
}

// Write appends p, trimming from the front once the ceiling is exceeded.
// Always reports full success; capture must never back-pressure the producer.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = append(b.data, p...)
	if over := len(b.data) - b.limit; over > 0 {
		// Trim to the next line boundary where possible so the retained
		// text stays line-oriented.
		cut := over
		if nl := bytes.IndexByte(b.data[over:], '\n'); nl >= 0 {
			cut = over + nl + 1
		}
		b.data = append(b.data[:0], b.data[cut:]...)
	}
	return len(p), nil
}

// String returns the retained output as text. Byte sequences that do not
// decode as UTF-8 are dropped rather than surfaced to the operator.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.ToValidUTF8(string(b.data), "")
}

// Lines returns the retained output split into lines, excluding a trailing
// empty line.
func (b *Buffer) Lines() []string {
	s := b.String()
	if s == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	return lines
}

// Len returns the number of retained bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Reset discards all retained output.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = b.data[:0]
}
