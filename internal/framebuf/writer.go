package framebuf

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Writer owns the producer side of the shared frame region. vcamd never
// writes frames itself; this exists for the framesim test producer and for
// package tests that need a real region to read from.
type Writer struct {
	f    *os.File
	data []byte
}

// Create creates (or truncates the header of) the backing file at path,
// sizes it to RegionSize and maps it read-write.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create region directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open region file: %w", err)
	}

	if err := f.Truncate(RegionSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("size region file: %w", err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, RegionSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("map region: %w", err)
	}

	// Zero the header so a reader attaching to a reused file sees "no data"
	// until the first publish. Slot bytes need no zeroing.
	for i := 0; i < HeaderSize; i++ {
		data[i] = 0
	}

	return &Writer{f: f, data: data}, nil
}

// Publish copies one NV12 frame into the next slot and advances the write
// index. lumaStride/chromaStride are the source row strides in bytes; when a
// stride equals the frame width the plane is copied in one piece, otherwise
// row padding is stripped.
func (w *Writer) Publish(luma, chroma []byte, width, height, lumaStride, chromaStride int) error {
	if width <= 0 || height <= 0 || width > MaxWidth || height > MaxHeight {
		return fmt.Errorf("frame %dx%d exceeds region capacity %dx%d", width, height, MaxWidth, MaxHeight)
	}

	idx := atomic.LoadUint64(w.indexPtr())
	dst := w.data[SlotOffset(WritingSlot(idx)):]

	chromaHeight := height / 2
	copyPlane(dst, luma, width, height, lumaStride)
	copyPlane(dst[width*height:], chroma, width, chromaHeight, chromaStride)

	binary.LittleEndian.PutUint32(w.data[offWidth:], uint32(width))
	binary.LittleEndian.PutUint32(w.data[offHeight:], uint32(height))

	// Release the frame: readers treat any index > 0 as "slot (idx-1)%2 is
	// complete", so the increment must come after the slot bytes land.
	atomic.AddUint64(w.indexPtr(), 1)
	return nil
}

// WriteIndex returns the current write index.
func (w *Writer) WriteIndex() uint64 {
	return atomic.LoadUint64(w.indexPtr())
}

// Close unmaps the region and closes the backing file. The file itself is
// left in place; its lifetime belongs to whoever created the path.
func (w *Writer) Close() error {
	var first error
	if w.data != nil {
		if err := unix.Munmap(w.data); err != nil {
			first = err
		}
		w.data = nil
	}
	if w.f != nil {
		if err := w.f.Close(); err != nil && first == nil {
			first = err
		}
		w.f = nil
	}
	return first
}

func (w *Writer) indexPtr() *uint64 {
	return (*uint64)(unsafe.Pointer(&w.data[offWriteIndex]))
}

// copyPlane copies rows*width bytes from src (rowed at stride) into dst
// contiguously.
func copyPlane(dst, src []byte, width, rows, stride int) {
	if stride == width {
		copy(dst, src[:width*rows])
		return
	}
	for row := 0; row < rows; row++ {
		copy(dst[row*width:(row+1)*width], src[row*stride:row*stride+width])
	}
}
