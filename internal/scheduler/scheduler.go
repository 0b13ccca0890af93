// Package scheduler drives frame delivery to the downstream sink at a fixed
// cadence, independent of the producer's timing.
//
// Sampling policy is last-value-wins: when the producer publishes faster than
// the delivery cadence intermediate frames are skipped, when it publishes
// slower the same frame is redelivered. This is a sampling relay, not a queue.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vcamd/vcamd/internal/framechan"
	"github.com/vcamd/vcamd/internal/metrics"
	"github.com/vcamd/vcamd/pkg/logging"
)

// Neutral gray in NV12: mid-range luma, unbiased chroma.
const (
	placeholderLuma   = 0x80
	placeholderChroma = 0x80
)

// Sink receives the gap-free frame stream. Deliver must not block for
// unbounded time; it runs on the scheduler's tick goroutine.
type Sink interface {
	Deliver(frame *framechan.Frame) error
}

// Config holds scheduler settings.
type Config struct {
	// FrameInterval is the delivery cadence (default 1/30 s).
	FrameInterval time.Duration

	// PlaceholderWidth/Height size the synthesized frame used while no
	// source frame is available.
	PlaceholderWidth  int
	PlaceholderHeight int
}

// DefaultConfig returns the stock 30 fps, 720p-placeholder configuration.
func DefaultConfig() Config {
	return Config{
		FrameInterval:     time.Second / 30,
		PlaceholderWidth:  1280,
		PlaceholderHeight: 720,
	}
}

// Scheduler samples the frame channel on every tick and forwards the latest
// frame, or a placeholder, to the sink.
type Scheduler struct {
	cfg     Config
	channel *framechan.Channel
	sink    Sink
	log     *logging.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	placeholder []byte // prebuilt NV12 plane data, reused every tick
}

// New creates a scheduler. The metrics bundle may be nil in tests.
func New(cfg Config, channel *framechan.Channel, sink Sink, log *logging.Logger, m *metrics.Metrics) *Scheduler {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = time.Second / 30
	}
	s := &Scheduler{
		cfg:     cfg,
		channel: channel,
		sink:    sink,
		log:     log,
		metrics: m,
	}
	size := cfg.PlaceholderWidth * cfg.PlaceholderHeight
	s.placeholder = make([]byte, size*3/2)
	for i := 0; i < size; i++ {
		s.placeholder[i] = placeholderLuma
	}
	for i := size; i < len(s.placeholder); i++ {
		s.placeholder[i] = placeholderChroma
	}
	return s
}

// StartStream begins fixed-cadence delivery. The first delivered frame is
// flagged as a discontinuity so the sink does not assume continuity with any
// prior session.
func (s *Scheduler) StartStream() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("stream already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	s.log.Info("stream started", map[string]interface{}{
		"interval": s.cfg.FrameInterval.String(),
	})
	if s.metrics != nil {
		s.metrics.StreamActive.Set(1)
	}

	go s.run(ctx, s.done)
	return nil
}

// StopStream cancels the timer and releases the mapping. Synchronous: when it
// returns, no further deliveries happen.
func (s *Scheduler) StopStream() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	cancel()
	<-done

	if err := s.channel.Close(); err != nil {
		s.log.Warn("failed to release frame region", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if s.metrics != nil {
		s.metrics.StreamActive.Set(0)
	}
	s.log.Info("stream stopped")
}

// Running reports whether the scheduler is delivering.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.FrameInterval)
	defer ticker.Stop()

	first := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(first)
			first = false
		}
	}
}

func (s *Scheduler) tick(first bool) {
	// Self-healing: the producer may start after the consumer, so keep
	// attempting the mapping until it appears.
	if !s.channel.Mapped() {
		_ = s.channel.Open()
	}

	frame, err := s.channel.ReadLatestFrame()
	placeholder := false
	switch {
	case err == nil:
	case errors.Is(err, framechan.ErrBadHeader):
		if s.metrics != nil {
			s.metrics.InvalidHeaderReads.Inc()
		}
		frame = s.placeholderFrame()
		placeholder = true
	default:
		// Not mapped or nothing published yet.
		frame = s.placeholderFrame()
		placeholder = true
	}

	// Presentation timing is driven entirely by local cadence; the shared
	// region carries no timestamps.
	frame.Timestamp = time.Now()
	frame.Discontinuity = first

	if err := s.sink.Deliver(frame); err != nil {
		s.log.Warn("sink rejected frame", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if s.metrics != nil {
		if placeholder {
			s.metrics.PlaceholdersDelivered.Inc()
		} else {
			s.metrics.FramesDelivered.Inc()
		}
	}
}

func (s *Scheduler) placeholderFrame() *framechan.Frame {
	return &framechan.Frame{
		Width:  s.cfg.PlaceholderWidth,
		Height: s.cfg.PlaceholderHeight,
		Data:   s.placeholder,
	}
}
