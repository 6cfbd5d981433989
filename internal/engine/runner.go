package engine

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Msg is the runner inbox message set.
type Msg interface{ isRunnerMsg() }

type Select struct{ CellID int }

func (Select) isRunnerMsg() {}

type GetState struct{ Reply chan State }

func (GetState) isRunnerMsg() {}

type Stop struct{}

func (Stop) isRunnerMsg() {}

// timerFired carries the generation it was armed under. The runner
// bumps the generation every time the phase changes, so a fire armed
// for an earlier phase is discarded instead of mutating a round it no
// longer belongs to.
type timerFired struct{ gen int }

func (timerFired) isRunnerMsg() {}

type resolveFired struct{ gen int }

func (resolveFired) isRunnerMsg() {}

// Snapshot is the state the runner pushes to its outbox after every
// applied command.
type Snapshot struct {
	State State
}

// SubmitFunc receives the final score exactly once, at the moment the
// round completes.
type SubmitFunc func(score int)

// Runner drives a single participant's round: it owns the countdown and
// round timers, serializes selection events with timer fires, and
// reports the final score upstream when the round ends.
type Runner struct {
	inbox       chan Msg
	outbox      chan Snapshot
	state       State
	clock       clockwork.Clock
	revealDelay time.Duration
	tick        time.Duration
	submit      SubmitFunc
	gen         int
	ctx         context.Context
	cancel      context.CancelFunc
}

type RunnerOption func(*Runner)

// WithRevealDelay overrides how long a mismatched pair stays face-up.
func WithRevealDelay(d time.Duration) RunnerOption {
	return func(r *Runner) { r.revealDelay = d }
}

// WithTickInterval overrides the countdown/round tick cadence.
func WithTickInterval(d time.Duration) RunnerOption {
	return func(r *Runner) { r.tick = d }
}

func NewRunner(parent context.Context, initial State, clock clockwork.Clock, submit SubmitFunc, opts ...RunnerOption) *Runner {
	ctx, cancel := context.WithCancel(parent)

	r := &Runner{
		inbox:       make(chan Msg, 64),
		outbox:      make(chan Snapshot, 8),
		state:       initial,
		clock:       clock,
		revealDelay: 800 * time.Millisecond,
		tick:        time.Second,
		submit:      submit,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(r)
	}

	go r.loop()
	return r
}

func (r *Runner) Inbox() chan<- Msg { return r.inbox }

func (r *Runner) Outbox() <-chan Snapshot { return r.outbox }

func (r *Runner) loop() {
	r.armTimer()

	for {
		select {
		case <-r.ctx.Done():
			r.shutdown(false)
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Select:
				r.apply(Command{Type: CmdSelectCell, CellID: msg.CellID})

			case timerFired:
				if msg.gen != r.gen {
					break // stale fire from a phase we already left
				}
				switch r.state.Phase {
				case PhaseCountdown:
					r.apply(Command{Type: CmdCountdownTick})
				case PhaseActive:
					r.apply(Command{Type: CmdClockTick})
				}
				if r.state.Phase != PhaseComplete {
					r.armTimer()
				}

			case resolveFired:
				if msg.gen != r.gen {
					break
				}
				r.apply(Command{Type: CmdResolvePair})

			case GetState:
				msg.Reply <- r.state

			case Stop:
				r.shutdown(false)
				return
			}

			if r.state.Phase == PhaseComplete {
				r.shutdown(true)
				return
			}
		}
	}
}

// apply runs one command through the reducer. Illegal selections are
// silent no-ops; the client clicked something unclickable.
func (r *Runner) apply(cmd Command) {
	events, next, err := Apply(r.state, cmd)
	if err != nil {
		return
	}

	phaseChanged := next.Phase != r.state.Phase
	r.state = next

	if phaseChanged {
		r.gen++
	}

	if ContainsEvent(events, EvtPairMissed) {
		gen := r.gen
		go func() {
			select {
			case <-r.clock.After(r.revealDelay):
				r.post(resolveFired{gen: gen})
			case <-r.ctx.Done():
			}
		}()
	}

	r.publish()
}

func (r *Runner) armTimer() {
	gen := r.gen
	go func() {
		select {
		case <-r.clock.After(r.tick):
			r.post(timerFired{gen: gen})
		case <-r.ctx.Done():
		}
	}()
}

func (r *Runner) post(m Msg) {
	select {
	case r.inbox <- m:
	case <-r.ctx.Done():
	}
}

func (r *Runner) publish() {
	snap := Snapshot{State: r.state}
	select {
	case r.outbox <- snap:
	default:
		// Client is not draining; drop rather than stall the round.
	}
}

func (r *Runner) shutdown(completed bool) {
	r.cancel()
	if completed && r.submit != nil {
		r.submit(r.state.Score)
	}
	close(r.outbox)
}
