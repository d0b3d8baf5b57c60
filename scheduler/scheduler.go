// Package scheduler drives the console at NES speed: it steps the CPU
// until enough cycles have elapsed for one 60Hz interval, paces real
// time to match, and hands the framebuffer to a presentation layer
// once per interval.
package scheduler

import (
	"time"

	"github.com/bdwalton/gintendo/console"
	"github.com/golang/glog"
)

const (
	// CPU_HZ is the NTSC 2A03 clock rate.
	CPU_HZ = 1789773
	// INTERVALS_PER_SECOND is the NTSC frame rate the scheduler paces to.
	INTERVALS_PER_SECOND = 60

	cyclesPerInterval = CPU_HZ / INTERVALS_PER_SECOND

	// statsEvery controls how often Stats() numbers are refreshed, in
	// intervals, so the overlay doesn't visibly jitter every frame.
	statsEvery = 30
)

// Stats reports a rolling snapshot of scheduler performance, intended
// for an on-screen overlay.
type Stats struct {
	IntervalsRun    uint64
	FramesBehind    int // positive when we can't keep up with wall clock
	LastIntervalDur time.Duration
}

// Bus is the subset of *console.Bus the scheduler depends on, so tests
// can substitute a fake.
type Bus interface {
	Step() uint8
}

// Scheduler paces a Bus at NES speed and invokes a presentation
// callback once per interval.
type Scheduler struct {
	bus      Bus
	throttle bool

	pollInput func()
	present   func()
	stats     Stats
	intervalN uint64
}

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

// WithThrottle enables wall-clock pacing: when a simulated interval
// finishes early, the scheduler sleeps off the remainder rather than
// running ahead of real time.
func WithThrottle() Option {
	return func(s *Scheduler) { s.throttle = true }
}

// WithInputPoll registers a callback invoked once per interval, before
// the CPU is stepped, to sample host input.
func WithInputPoll(f func()) Option {
	return func(s *Scheduler) { s.pollInput = f }
}

// WithPresent registers a callback invoked once per interval, after
// the CPU/PPU have advanced, to hand the framebuffer to the
// presentation layer.
func WithPresent(f func()) Option {
	return func(s *Scheduler) { s.present = f }
}

// New builds a Scheduler driving bus.
func New(bus Bus, opts ...Option) *Scheduler {
	s := &Scheduler{bus: bus}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats returns the most recently computed performance snapshot.
func (s *Scheduler) Stats() Stats { return s.stats }

// RunInterval polls input, executes CPU instructions until at least
// one interval's worth of cycles has been consumed, optionally
// throttles to wall clock, and presents the frame. It returns the fatal
// error the core raised, if any; a non-nil return means the caller
// must stop calling RunInterval.
func (s *Scheduler) RunInterval() *console.FatalError {
	start := time.Now()

	if s.pollInput != nil {
		s.pollInput()
	}

	var cpuCycles int
	for cpuCycles < cyclesPerInterval {
		consumed := s.bus.Step()
		if consumed == 0 {
			return &console.FatalError{
				Kind: console.IllegalInstruction,
				Msg:  "CPU halted on an illegal or unstable opcode",
			}
		}
		cpuCycles += int(consumed)
	}

	elapsed := time.Since(start)
	target := time.Second / INTERVALS_PER_SECOND
	if s.throttle && elapsed < target {
		time.Sleep(target - elapsed)
	} else if elapsed > target {
		s.stats.FramesBehind++
	}

	if s.present != nil {
		s.present()
	}

	s.intervalN++
	if s.intervalN%statsEvery == 0 {
		s.stats.IntervalsRun = s.intervalN
		s.stats.LastIntervalDur = elapsed
		glog.V(1).Infof("scheduler: %d intervals run, last took %s, %d behind", s.intervalN, elapsed, s.stats.FramesBehind)
	}

	return nil
}

// Run calls RunInterval in a loop until it returns a fatal error or
// stop is closed.
func (s *Scheduler) Run(stop <-chan struct{}) *console.FatalError {
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		if err := s.RunInterval(); err != nil {
			return err
		}
	}
}
