package capture

import (
	"fmt"
	"strings"
	"testing"
)

func TestWriteAndString(t *testing.T) {
	b := NewBuffer(1024)

	fmt.Fprintln(b, "line one")
	fmt.Fprintln(b, "line two")

	if got := b.String(); got != "line one\nline two\n" {
		t.Errorf("String() = %q", got)
	}
	if got := b.Len(); got != len("line one\nline two\n") {
		t.Errorf("Len() = %d", got)
	}
}

func TestLines(t *testing.T) {
	b := NewBuffer(1024)

	if got := b.Lines(); got != nil {
		t.Errorf("empty buffer Lines() = %v, want nil", got)
	}

	fmt.Fprintln(b, "alpha")
	fmt.Fprintln(b, "beta")
	lines := b.Lines()
	if len(lines) != 2 || lines[0] != "alpha" || lines[1] != "beta" {
		t.Errorf("Lines() = %v", lines)
	}
}

func TestTrimKeepsNewestAtLineBoundary(t *testing.T) {
	b := NewBuffer(32)

	for i := 0; i < 10; i++ {
		fmt.Fprintf(b, "line %02d\n", i)
	}

	if b.Len() > 32 {
		t.Fatalf("buffer holds %d bytes, limit is 32", b.Len())
	}
	lines := b.Lines()
	if len(lines) == 0 {
		t.Fatal("all output trimmed away")
	}
	// Oldest bytes go first; the newest line always survives.
	if last := lines[len(lines)-1]; last != "line 09" {
		t.Errorf("newest retained line = %q, want %q", last, "line 09")
	}
	// Trimming lands on a line boundary: no partial leading line.
	if !strings.HasPrefix(lines[0], "line ") {
		t.Errorf("leading line %q is a fragment", lines[0])
	}
}

func TestTrimWithoutNewline(t *testing.T) {
	b := NewBuffer(8)
	if _, err := b.Write([]byte("abcdefghijkl")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// No newline to align on: a plain front trim keeps the newest 8 bytes.
	if got := b.String(); got != "efghijkl" {
		t.Errorf("String() = %q, want %q", got, "efghijkl")
	}
}

func TestStringDropsInvalidUTF8(t *testing.T) {
	b := NewBuffer(1024)
	b.Write([]byte{'o', 'k', 0xFF, 0xFE, '!'})

	if got := b.String(); got != "ok!" {
		t.Errorf("String() = %q, want %q", got, "ok!")
	}
}

func TestReset(t *testing.T) {
	b := NewBuffer(1024)
	fmt.Fprintln(b, "stale output")
	b.Reset()

	if b.Len() != 0 {
		t.Errorf("Len() after Reset = %d", b.Len())
	}
	if got := b.String(); got != "" {
		t.Errorf("String() after Reset = %q", got)
	}
}

func TestZeroLimitUsesDefault(t *testing.T) {
	b := NewBuffer(0)
	payload := make([]byte, DefaultLimit/2)
	b.Write(payload)
	if b.Len() != len(payload) {
		t.Errorf("buffer trimmed below the default limit: %d", b.Len())
	}
}
