// Package supervisor owns the external producer's lifecycle: start, escalating
// stop, crash detection, and bounded time-windowed auto-restart.
//
// Lifecycle notifications from the OS (spawn completion, exit) and operator
// calls (Start, Stop) all serialize onto one mutex, so an in-flight crash
// notification cannot race a caller-initiated stop. A generation counter
// guards escalation timers and restarts against acting on a process that has
// already been replaced.
package supervisor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/vcamd/vcamd/internal/capture"
	"github.com/vcamd/vcamd/internal/metrics"
	"github.com/vcamd/vcamd/internal/producer"
	"github.com/vcamd/vcamd/pkg/logging"
)

var (
	// ErrAlreadyRunning is returned by Start while a producer is alive.
	ErrAlreadyRunning = errors.New("producer already running")

	// ErrNotRunning is returned by Stop when there is nothing to stop.
	ErrNotRunning = errors.New("producer not running")
)

// Policy holds the shutdown-escalation and crash-window parameters.
type Policy struct {
	// GracefulTimeout is how long after SIGTERM the escalation waits
	// before sending SIGINT.
	GracefulTimeout time.Duration `yaml:"graceful_timeout" mapstructure:"graceful_timeout"`

	// ForcedTimeout is how long after SIGINT the escalation waits before
	// SIGKILL. Worst-case shutdown latency is GracefulTimeout+ForcedTimeout.
	ForcedTimeout time.Duration `yaml:"forced_timeout" mapstructure:"forced_timeout"`

	// CrashWindow is the sliding interval over which crashes are counted.
	CrashWindow time.Duration `yaml:"crash_window" mapstructure:"crash_window"`

	// CrashCeiling is the maximum crashes tolerated inside the window
	// before the supervisor gives up.
	CrashCeiling int `yaml:"crash_ceiling" mapstructure:"crash_ceiling"`

	// RestartDelay is the pause before an automatic restart.
	RestartDelay time.Duration `yaml:"restart_delay" mapstructure:"restart_delay"`
}

// DefaultPolicy returns the stock escalation and restart parameters.
func DefaultPolicy() Policy {
	return Policy{
		GracefulTimeout: 3 * time.Second,
		ForcedTimeout:   1 * time.Second,
		CrashWindow:     30 * time.Second,
		CrashCeiling:    3,
		RestartDelay:    1 * time.Second,
	}
}

// process abstracts a spawned producer so tests can substitute a fake.
type process interface {
	PID() int
	Signal(sig os.Signal) error
	Kill() error
	Wait() (exitCode int, err error)
}

// spawnFunc launches the producer with its combined output attached to w.
type spawnFunc func(cfg producer.LaunchConfig, w io.Writer) (process, error)

// Supervisor manages exactly one producer process at a time.
type Supervisor struct {
	policy  Policy
	log     *logging.Logger
	metrics *metrics.Metrics

	// now and spawn are seams for tests.
	now   func() time.Time
	spawn spawnFunc

	mu              sync.Mutex
	state           State
	terminal        bool // Crashed with ceiling exceeded; operator action required
	proc            process
	launch          producer.LaunchConfig
	intentionalStop bool
	generation      int
	startedAt       time.Time
	history         *crashHistory
	output          *capture.Buffer
	events          []Event
	notify          chan<- Event
}

// New creates a supervisor. The metrics bundle may be nil.
func New(policy Policy, log *logging.Logger, m *metrics.Metrics) *Supervisor {
	s := &Supervisor{
		policy:  policy,
		log:     log,
		metrics: m,
		now:     time.Now,
		state:   StateNotStarted,
		history: newCrashHistory(policy.CrashWindow),
		output:  capture.NewBuffer(capture.DefaultLimit),
	}
	s.spawn = s.spawnExec
	return s
}

// SetNotify registers a channel receiving lifecycle events. Sends never
// block; a slow receiver misses events rather than stalling the supervisor.
func (s *Supervisor) SetNotify(ch chan<- Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = ch
}

// Start launches the producer with the given configuration snapshot. Spawn
// failure is reported immediately and never retried; the state is left as it
// was. Starting out of a terminal Crashed state is the explicit operator
// action that clears the crash history.
func (s *Supervisor) Start(cfg producer.LaunchConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid producer config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning || s.state.IsStopping() {
		return ErrAlreadyRunning
	}

	if s.terminal {
		s.history.reset()
		s.terminal = false
	}

	s.output.Reset()
	proc, err := s.spawn(cfg, s.output)
	if err != nil {
		s.log.Error("failed to start producer", map[string]interface{}{
			"binary": cfg.BinaryPath, "error": err.Error(),
		})
		return fmt.Errorf("start producer: %w", err)
	}

	s.generation++
	s.proc = proc
	s.launch = cfg
	s.intentionalStop = false
	s.startedAt = s.now()
	s.setStateLocked(StateRunning, Event{
		PID:     proc.PID(),
		Message: fmt.Sprintf("producer started (port %d)", cfg.ListenPort),
	})
	if s.metrics != nil {
		s.metrics.ProducerStarts.Inc()
	}

	go s.waitExit(s.generation, proc)
	return nil
}

// Stop requests an intentional shutdown. It returns once the escalation is
// scheduled; termination completes asynchronously and is observed through
// the exit event, never assumed. The three stages are scheduled up front, so
// worst-case latency to SIGKILL is GracefulTimeout+ForcedTimeout regardless
// of how the earlier stages fare.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// During the restart delay there is no process, but a respawn is
	// pending; the operator's stop cancels it and wins.
	if s.proc == nil && s.state == StateCrashed && !s.terminal {
		s.generation++
		s.setStateLocked(StateStopped, Event{
			Message: "pending restart cancelled",
		})
		return nil
	}

	if s.proc == nil || (s.state != StateRunning && !s.state.IsStopping()) {
		return ErrNotRunning
	}
	if s.state.IsStopping() {
		return nil
	}

	// The flag must be set before any signal lands: if the process was
	// already failing and exits non-zero during the graceful window, the
	// outcome is still a clean stop.
	s.intentionalStop = true
	gen := s.generation
	proc := s.proc

	s.setStateLocked(StateStoppingGraceful, Event{
		PID:     proc.PID(),
		Message: "graceful shutdown requested",
	})
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		s.log.Warn("SIGTERM failed", map[string]interface{}{"error": err.Error()})
	}

	time.AfterFunc(s.policy.GracefulTimeout, func() { s.escalateForced(gen) })
	time.AfterFunc(s.policy.GracefulTimeout+s.policy.ForcedTimeout, func() { s.escalateKill(gen) })
	return nil
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Terminal reports whether the supervisor is in the terminal Crashed state.
func (s *Supervisor) Terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal
}

// Events returns a copy of the retained lifecycle events, oldest first.
func (s *Supervisor) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Output returns the producer's captured combined output.
func (s *Supervisor) Output() string {
	return s.output.String()
}

// OutputLines returns the captured output as lines for the operator log.
func (s *Supervisor) OutputLines() []string {
	return s.output.Lines()
}

// escalateForced fires GracefulTimeout after Stop. Stale generations and
// already-exited processes are ignored.
func (s *Supervisor) escalateForced(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || s.proc == nil || s.state != StateStoppingGraceful {
		return
	}
	s.setStateLocked(StateStoppingForced, Event{
		PID:     s.proc.PID(),
		Message: "graceful window elapsed, sending interrupt",
	})
	if err := s.proc.Signal(syscall.SIGINT); err != nil {
		s.log.Warn("SIGINT failed", map[string]interface{}{"error": err.Error()})
	}
}

// escalateKill fires GracefulTimeout+ForcedTimeout after Stop.
func (s *Supervisor) escalateKill(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || s.proc == nil || !s.state.IsStopping() {
		return
	}
	s.log.Warn("producer unresponsive, killing", map[string]interface{}{
		"pid": s.proc.PID(),
	})
	if err := s.proc.Kill(); err != nil {
		s.log.Error("kill failed", map[string]interface{}{"error": err.Error()})
	}
}

// waitExit runs on its own goroutine per spawned process and funnels the exit
// notification into the serialized control path.
func (s *Supervisor) waitExit(gen int, proc process) {
	code, waitErr := proc.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return
	}
	pid := proc.PID()
	s.proc = nil

	// Intentional stop takes precedence over the exit status: a process
	// that dies ugly during the graceful window was still stopped on
	// purpose.
	if s.intentionalStop {
		s.intentionalStop = false
		s.setStateLocked(StateStopped, Event{
			PID:      pid,
			ExitCode: code,
			Message:  "producer stopped",
		})
		return
	}

	if code != 0 || waitErr != nil {
		s.onCrashLocked(gen, pid, code)
		return
	}

	s.setStateLocked(StateStopped, Event{
		PID:     pid,
		Message: "producer exited cleanly",
	})
}

// onCrashLocked applies the crash-window policy. Caller holds s.mu.
func (s *Supervisor) onCrashLocked(gen, pid, code int) {
	if s.metrics != nil {
		s.metrics.ProducerCrashes.Inc()
	}
	n := s.history.record(s.now())

	if n > s.policy.CrashCeiling {
		s.terminal = true
		s.setStateLocked(StateCrashed, Event{
			PID:      pid,
			ExitCode: code,
			Crash:    true,
			Message:  fmt.Sprintf("crash ceiling exceeded (%d in %s), not restarting", n, s.policy.CrashWindow),
		})
		return
	}

	s.setStateLocked(StateCrashed, Event{
		PID:      pid,
		ExitCode: code,
		Crash:    true,
		Message:  fmt.Sprintf("producer crashed (exit %d), restart %d/%d in %s", code, n, s.policy.CrashCeiling, s.policy.RestartDelay),
	})
	if s.metrics != nil {
		s.metrics.ProducerRestarts.Inc()
	}

	cfg := s.launch
	time.AfterFunc(s.policy.RestartDelay, func() { s.autoRestart(gen, cfg) })
}

// autoRestart respawns after a crash unless the operator intervened.
func (s *Supervisor) autoRestart(gen int, cfg producer.LaunchConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || s.state != StateCrashed || s.terminal {
		return
	}

	proc, err := s.spawn(cfg, s.output)
	if err != nil {
		// Respawn failure is not retried; the binary vanished or became
		// unrunnable, which a further restart loop will not fix.
		s.terminal = true
		s.setStateLocked(StateCrashed, Event{
			Message: fmt.Sprintf("automatic restart failed: %v", err),
		})
		return
	}

	s.generation++
	s.proc = proc
	s.intentionalStop = false
	s.startedAt = s.now()
	s.setStateLocked(StateRunning, Event{
		PID:     proc.PID(),
		Message: "producer restarted after crash",
	})
	if s.metrics != nil {
		s.metrics.ProducerStarts.Inc()
	}

	go s.waitExit(s.generation, proc)
}

// setStateLocked transitions state and records the event. Caller holds s.mu.
func (s *Supervisor) setStateLocked(state State, ev Event) {
	s.state = state
	ev.State = state
	ev.Time = s.now()

	s.events = append(s.events, ev)
	if len(s.events) > maxEvents {
		s.events = append(s.events[:0], s.events[len(s.events)-maxEvents:]...)
	}

	s.log.Info(ev.Message, map[string]interface{}{
		"state": string(state), "pid": ev.PID,
	})
	if s.metrics != nil {
		s.metrics.SetProducerState(string(state), AllStates())
	}
	if s.notify != nil {
		select {
		case s.notify <- ev:
		default:
		}
	}
}

// execProcess is the real spawn path.
type execProcess struct {
	cmd *exec.Cmd
}

func (s *Supervisor) spawnExec(cfg producer.LaunchConfig, w io.Writer) (process, error) {
	cmd := exec.Command(cfg.BinaryPath, cfg.BuildArgs()...)

	// Combined stdout/stderr into the bounded capture buffer, line-oriented.
	cmd.Stdout = w
	cmd.Stderr = w

	// Own process group so escalation signals reach the producer and any
	// children without touching the daemon itself.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd}, nil
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Signal(sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return p.cmd.Process.Signal(sig)
	}
	// Signal the whole group; the producer is its own group leader.
	return syscall.Kill(-p.cmd.Process.Pid, s)
}

func (p *execProcess) Kill() error {
	return syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
}

func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}
