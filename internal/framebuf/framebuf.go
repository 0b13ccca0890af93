// Package framebuf defines the on-disk layout of the shared frame region
// used to hand decoded video frames from the producer process to vcamd.
//
// The region is a plain file, memory-mapped by both sides. The producer is
// the only writer; vcamd treats the mapping as strictly read-only. There is
// no lock: a monotonically increasing write index published with an atomic
// increment is the only synchronization between the two processes.
package framebuf

// Region layout, fixed for all time. The header is 64 bytes followed by two
// fixed-capacity frame slots. Slot capacity is sized for the maximum
// supported resolution regardless of the resolution actually streamed.
const (
	HeaderSize = 64
	MaxWidth   = 1920
	MaxHeight  = 1080

	// MaxFrameSize is the byte size of one NV12 frame at maximum resolution:
	// a full-resolution luma plane plus a half-size interleaved chroma plane.
	MaxFrameSize = MaxWidth * MaxHeight * 3 / 2

	// RegionSize is the total size of the backing file.
	RegionSize = HeaderSize + 2*MaxFrameSize
)

// Header field offsets within the region.
const (
	offWriteIndex = 0  // u64, little-endian, atomically incremented
	offWidth      = 8  // u32, little-endian
	offHeight     = 12 // u32, little-endian
	// bytes 16..64 reserved
)

// FrameSize returns the NV12 byte size for a frame of the given dimensions.
func FrameSize(width, height int) int {
	return width * height * 3 / 2
}

// SlotOffset returns the byte offset of slot k (k in {0,1}) within the region.
func SlotOffset(slot int) int {
	return HeaderSize + slot*MaxFrameSize
}

// CompletedSlot returns the slot holding the most recently completed frame
// for a given write index. Only meaningful when writeIndex > 0.
func CompletedSlot(writeIndex uint64) int {
	return int((writeIndex - 1) % 2)
}

// WritingSlot returns the slot the producer writes into next.
func WritingSlot(writeIndex uint64) int {
	return int(writeIndex % 2)
}

// ValidDimensions reports whether a published width/height pair is usable.
// Zero or out-of-range dimensions indicate a stale or corrupt header and are
// treated as "no frame", never as a fatal condition.
func ValidDimensions(width, height uint32) bool {
	return width > 0 && height > 0 && width <= MaxWidth && height <= MaxHeight
}
