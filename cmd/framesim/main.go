// framesim is a synthetic producer: it accepts the real producer's flags,
// publishes a moving NV12 test pattern into the shared frame region, and
// exits cleanly on SIGTERM/SIGINT. Use it to exercise vcamd end to end
// without an RTMP source, or with --crash-after to exercise the restart
// policy.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vcamd/vcamd/internal/config"
	"github.com/vcamd/vcamd/internal/framebuf"
)

func main() {
	port := flag.Int("port", 1935, "RTMP listen port (accepted for contract compatibility, unused)")
	key := flag.String("key", "", "stream key (accepted for contract compatibility, unused)")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	region := flag.String("region", config.DefaultRegionPath(), "shared frame region path")
	width := flag.Int("width", 1280, "frame width")
	height := flag.Int("height", 720, "frame height")
	fps := flag.Int("fps", 30, "publish rate")
	crashAfter := flag.Duration("crash-after", 0, "exit non-zero after this duration (0 = run until signaled)")
	flag.Parse()

	_ = *key

	if *width > framebuf.MaxWidth || *height > framebuf.MaxHeight {
		fmt.Fprintf(os.Stderr, "frame size %dx%d exceeds maximum %dx%d\n",
			*width, *height, framebuf.MaxWidth, framebuf.MaxHeight)
		os.Exit(1)
	}

	w, err := framebuf.Create(*region)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create frame region: %v\n", err)
		os.Exit(1)
	}
	defer w.Close()

	fmt.Printf("framesim publishing %dx%d@%d to %s (port flag %d)\n",
		*width, *height, *fps, *region, *port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	var crashCh <-chan time.Time
	if *crashAfter > 0 {
		crashCh = time.After(*crashAfter)
	}

	luma := make([]byte, *width**height)
	chroma := make([]byte, *width**height/2)

	ticker := time.NewTicker(time.Second / time.Duration(*fps))
	defer ticker.Stop()

	frame := 0
	for {
		select {
		case sig := <-sigCh:
			fmt.Printf("framesim exiting on %v after %d frames\n", sig, frame)
			return
		case <-crashCh:
			fmt.Fprintf(os.Stderr, "framesim simulated crash after %d frames\n", frame)
			os.Exit(2)
		case <-ticker.C:
			renderPattern(luma, chroma, *width, *height, frame)
			if err := w.Publish(luma, chroma, *width, *height, *width, *width); err != nil {
				fmt.Fprintf(os.Stderr, "publish: %v\n", err)
				os.Exit(1)
			}
			frame++
			if *verbose && frame%(*fps) == 0 {
				fmt.Printf("published %d frames (write index %d)\n", frame, w.WriteIndex())
			}
		}
	}
}

// renderPattern draws a horizontally scrolling luma gradient with a slow
// chroma drift, so motion is obvious in any viewer.
func renderPattern(luma, chroma []byte, width, height, frame int) {
	shift := frame * 4
	for y := 0; y < height; y++ {
		row := luma[y*width : (y+1)*width]
		for x := range row {
			row[x] = byte((x + shift) * 255 / width)
		}
	}
	u := byte(128 + 64*((frame/30)%2))
	v := byte(128 - 64*((frame/30)%2))
	for i := 0; i < len(chroma); i += 2 {
		chroma[i] = u
		chroma[i+1] = v
	}
}
