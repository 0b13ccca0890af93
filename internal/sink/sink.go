// Package sink provides downstream frame consumers. The real system video
// source registration lives outside this daemon; these sinks are the local
// delivery ends it can drive directly.
package sink

import (
	"fmt"
	"os"
	"sync"

	"github.com/vcamd/vcamd/internal/framechan"
)

// Null discards frames while tracking delivery counts. Useful when an
// external consumer reads the shared region directly and the daemon only
// needs the supervision half.
type Null struct {
	mu        sync.Mutex
	delivered uint64
	last      *framechan.Frame
}

// NewNull creates a discarding sink.
func NewNull() *Null {
	return &Null{}
}

// Deliver implements scheduler.Sink.
func (n *Null) Deliver(frame *framechan.Frame) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delivered++
	n.last = frame
	return nil
}

// Delivered returns the number of frames seen.
func (n *Null) Delivered() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.delivered
}

// Last returns the most recently delivered frame, or nil.
func (n *Null) Last() *framechan.Frame {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last
}

// Pipe streams raw NV12 frames to a file or named pipe, one frame per
// delivery. Feed it to e.g. ffplay with -f rawvideo -pixel_format nv12.
type Pipe struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewPipe creates a pipe sink for path. The path is opened lazily on first
// delivery so a fifo reader can attach in either order.
func NewPipe(path string) *Pipe {
	return &Pipe{path: path}
}

// Deliver implements scheduler.Sink.
func (p *Pipe) Deliver(frame *framechan.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.f == nil {
		f, err := os.OpenFile(p.path, os.O_WRONLY|os.O_CREATE, 0o644)
		if err != nil {
			return fmt.Errorf("open sink pipe: %w", err)
		}
		p.f = f
	}
	if _, err := p.f.Write(frame.Data); err != nil {
		// Reader went away; reopen on the next delivery.
		p.f.Close()
		p.f = nil
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close releases the pipe.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.f == nil {
		return nil
	}
	err := p.f.Close()
	p.f = nil
	return err
}
