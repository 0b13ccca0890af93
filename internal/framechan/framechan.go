// Package framechan reads the most recently completed video frame out of the
// shared frame region published by the producer process.
//
// The channel never blocks and never fails hard: a missing backing file or a
// stale header are normal conditions while the producer is starting up, and
// are reported as ErrNoFrame/ErrBadHeader so the caller can substitute a
// placeholder and try again next tick.
package framechan

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/vcamd/vcamd/internal/framebuf"
	"github.com/vcamd/vcamd/pkg/logging"
)

var (
	// ErrNotMapped is returned by ReadLatestFrame before Open has succeeded.
	ErrNotMapped = errors.New("frame region not mapped")

	// ErrNoFrame means the region is mapped but the producer has not
	// published anything yet (write index is zero).
	ErrNoFrame = errors.New("no frame published")

	// ErrBadHeader means the published dimensions are zero or exceed the
	// region capacity. Stale or corrupt header, treated as no-frame.
	ErrBadHeader = errors.New("invalid frame header")
)

// Frame is one decoded NV12 image, owned by the caller. Data holds the luma
// plane (Width*Height bytes) followed by the interleaved chroma plane
// (Width*Height/2 bytes), both contiguous.
type Frame struct {
	Width  int
	Height int
	Data   []byte

	// Timestamp is the local monotonic delivery time, set by the scheduler.
	// The shared region carries no timing information.
	Timestamp time.Time

	// Discontinuity marks the first frame after a stream start.
	Discontinuity bool
}

// Luma returns the luma plane of the frame.
func (f *Frame) Luma() []byte {
	return f.Data[:f.Width*f.Height]
}

// Chroma returns the interleaved chroma plane of the frame.
func (f *Frame) Chroma() []byte {
	return f.Data[f.Width*f.Height:]
}

// CopyTo writes the frame into a destination buffer with the given row
// strides, padding-aware. Contiguous copy when the strides match the width.
func (f *Frame) CopyTo(dst []byte, lumaStride, chromaStride int) error {
	chromaRows := f.Height / 2
	need := lumaStride*f.Height + chromaStride*chromaRows
	if len(dst) < need {
		return fmt.Errorf("destination too small: %d < %d", len(dst), need)
	}
	copyRows(dst, f.Luma(), f.Width, f.Height, lumaStride)
	copyRows(dst[lumaStride*f.Height:], f.Chroma(), f.Width, chromaRows, chromaStride)
	return nil
}

// Channel maps the shared frame region read-only and extracts frames from it.
// One writer (the external producer), one reader (this channel).
type Channel struct {
	path string
	log  *logging.Logger

	mu   sync.Mutex
	f    *os.File
	data []byte

	openFailures *logging.Limited
	badHeaders   *logging.Limited
}

// New creates a channel for the region at path. Nothing is opened yet; Open
// is retried by the scheduler on every tick until it succeeds.
func New(path string, log *logging.Logger) *Channel {
	return &Channel{
		path:         path,
		log:          log,
		openFailures: logging.NewLimited(300, 1),
		badHeaders:   logging.NewLimited(300, 1),
	}
}

// Open maps the backing file read-only. Idempotent: calling it while already
// mapped is a no-op, and failure while the producer has not created the file
// yet is expected and only logged at a decimation.
func (c *Channel) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data != nil {
		return nil
	}

	f, err := os.Open(c.path)
	if err != nil {
		if c.openFailures.Allow() {
			c.log.Debug("frame region not available yet", map[string]interface{}{
				"path": c.path, "error": err.Error(),
			})
		}
		return fmt.Errorf("open frame region: %w", err)
	}

	info, err := f.Stat()
	if err != nil || info.Size() < int64(framebuf.RegionSize) {
		f.Close()
		if c.openFailures.Allow() {
			c.log.Debug("frame region too small, producer still initializing", map[string]interface{}{
				"path": c.path,
			})
		}
		return fmt.Errorf("frame region not ready: %w", errors.Join(err, ErrNotMapped))
	}

	data, err := unix.Mmap(int(f.Fd()), 0, framebuf.RegionSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return fmt.Errorf("map frame region: %w", err)
	}

	c.f = f
	c.data = data
	c.openFailures.Reset()
	c.log.Info("frame region mapped", map[string]interface{}{
		"path": c.path, "size": framebuf.RegionSize,
	})
	return nil
}

// Mapped reports whether the region is currently mapped.
func (c *Channel) Mapped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data != nil
}

// ReadLatestFrame copies the most recently completed frame out of the region.
//
// The copy is not protected against the writer wrapping back into the slot
// mid-read; with a double buffer and normal cadence the writer is one full
// frame period away, so a torn read is rare and tolerated. The header carries
// no per-frame checksum that would let us detect one.
func (c *Channel) ReadLatestFrame() (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data == nil {
		return nil, ErrNotMapped
	}

	writeIndex := atomic.LoadUint64((*uint64)(unsafe.Pointer(&c.data[0])))
	if writeIndex == 0 {
		return nil, ErrNoFrame
	}

	width := binary.LittleEndian.Uint32(c.data[8:12])
	height := binary.LittleEndian.Uint32(c.data[12:16])
	if !framebuf.ValidDimensions(width, height) {
		if c.badHeaders.Allow() {
			c.log.Warn("stale or corrupt frame header", map[string]interface{}{
				"width": width, "height": height, "write_index": writeIndex,
			})
		}
		return nil, ErrBadHeader
	}

	w, h := int(width), int(height)
	slot := c.data[framebuf.SlotOffset(framebuf.CompletedSlot(writeIndex)):]

	frame := &Frame{
		Width:  w,
		Height: h,
		Data:   make([]byte, framebuf.FrameSize(w, h)),
	}
	// Slot planes are stored contiguously at the frame width; the owned copy
	// keeps the same stride so both planes copy in one piece each.
	copy(frame.Data[:w*h], slot[:w*h])
	copy(frame.Data[w*h:], slot[w*h:w*h+w*h/2])

	return frame, nil
}

// Close releases the mapping. Safe to call repeatedly; Open may be called
// again afterwards.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var first error
	if c.data != nil {
		if err := unix.Munmap(c.data); err != nil {
			first = err
		}
		c.data = nil
	}
	if c.f != nil {
		if err := c.f.Close(); err != nil && first == nil {
			first = err
		}
		c.f = nil
	}
	return first
}

func copyRows(dst, src []byte, width, rows, stride int) {
	if stride == width {
		copy(dst, src[:width*rows])
		return
	}
	for row := 0; row < rows; row++ {
		copy(dst[row*stride:row*stride+width], src[row*width:(row+1)*width])
	}
}
