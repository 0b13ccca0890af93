package sink

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/vcamd/vcamd/internal/framechan"
)

func testFrame(fill byte) *framechan.Frame {
	data := bytes.Repeat([]byte{fill}, 4*2*3/2)
	return &framechan.Frame{Width: 4, Height: 2, Data: data}
}

func TestNullSink(t *testing.T) {
	n := NewNull()

	if n.Delivered() != 0 || n.Last() != nil {
		t.Fatal("fresh null sink is not empty")
	}

	f1 := testFrame(1)
	f2 := testFrame(2)
	if err := n.Deliver(f1); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if err := n.Deliver(f2); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if got := n.Delivered(); got != 2 {
		t.Errorf("Delivered() = %d, want 2", got)
	}
	if n.Last() != f2 {
		t.Error("Last() is not the most recent frame")
	}
}

func TestPipeSinkWritesRawFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.nv12")
	p := NewPipe(path)
	defer p.Close()

	f1 := testFrame(0xAA)
	f2 := testFrame(0xBB)
	if err := p.Deliver(f1); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if err := p.Deliver(f2); err != nil {
		t.Fatalf("Deliver second: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sink output: %v", err)
	}
	want := append(append([]byte{}, f1.Data...), f2.Data...)
	if !bytes.Equal(got, want) {
		t.Errorf("sink output %d bytes, want %d concatenated frame bytes", len(got), len(want))
	}
}

func TestPipeSinkOpenFailure(t *testing.T) {
	p := NewPipe(filepath.Join(t.TempDir(), "no", "such", "dir", "out"))
	if err := p.Deliver(testFrame(1)); err == nil {
		t.Error("Deliver succeeded with an unopenable path")
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close after failed open: %v", err)
	}
}

func TestPipeSinkCloseIdempotent(t *testing.T) {
	p := NewPipe(filepath.Join(t.TempDir(), "out"))
	if err := p.Close(); err != nil {
		t.Errorf("Close before open: %v", err)
	}
	if err := p.Deliver(testFrame(3)); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
