// Package playback replays a session's event log in real time at a
// configurable speed, with seek, pause, resume, and cancellation.
package playback

import (
	"fmt"
	"time"

	"github.com/codetape/codetape/internal/apperr"
	"github.com/codetape/codetape/internal/models"
	"github.com/codetape/codetape/internal/timeline"
)

// State is the playback state machine position.
type State string

const (
	StateIdle      State = "idle"
	StatePlaying   State = "playing"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
)

// SeekPolicy decides what happens to a seek or play target outside the
// session bounds.
type SeekPolicy string

const (
	// SeekClamp moves an out-of-bounds target to the nearest bound.
	SeekClamp SeekPolicy = "clamp"
	// SeekReject fails an out-of-bounds target with ErrInvalidSeekTarget.
	SeekReject SeekPolicy = "reject"
)

// Emission is one item on the playback stream: an event, or the
// completion signal that ends the stream.
type Emission struct {
	Event    *models.Event `json:"event,omitempty"`
	Complete bool          `json:"complete,omitempty"`
	Cursor   int64         `json:"cursor"`
}

// Options tune a Scheduler.
type Options struct {
	// Quantum bounds how long the clock-advance loop sleeps between
	// wakeups, and therefore how promptly pause/seek/cancel interrupt it.
	Quantum time.Duration
	// Epsilon is the half-width in milliseconds of the context window
	// that Seek returns.
	Epsilon int64
	// SeekPolicy selects clamp or reject for out-of-bounds targets.
	SeekPolicy SeekPolicy
	// Buffer is the emission channel capacity.
	Buffer int
}

func (o *Options) withDefaults() {
	if o.Quantum <= 0 || o.Quantum > 100*time.Millisecond {
		o.Quantum = 50 * time.Millisecond
	}
	if o.Epsilon <= 0 {
		o.Epsilon = 2000
	}
	if o.SeekPolicy == "" {
		o.SeekPolicy = SeekClamp
	}
	if o.Buffer <= 0 {
		o.Buffer = 256
	}
}

// Scheduler drives a virtual clock across one session's event log and
// emits each due event to its subscriber exactly once, in (timestamp,
// sequence) order.
//
// Concurrency model: a single internal goroutine owns all mutable state
// (state, cursor, speed, event window). Public methods communicate with
// it over a control channel, so no mutexes are required. The scheduler
// performs read-only access to the store; concurrent schedulers against
// the same store are independent.
type Scheduler struct {
	store timeline.Reader
	sess  models.Session
	opts  Options

	out     chan Emission
	ctrl    chan ctrlMsg
	stopCh  chan struct{}
	stopped chan struct{}
}

type ctrlOp int

const (
	opPlay ctrlOp = iota
	opPause
	opResume
	opSeek
	opState
)

type ctrlMsg struct {
	op     ctrlOp
	fromTs int64
	speed  float64
	reply  chan ctrlReply
}

type ctrlReply struct {
	err    error
	state  State
	cursor int64
	window []models.Event
}

// New creates a Scheduler for sess backed by store.
func New(store timeline.Reader, sess models.Session, opts Options) *Scheduler {
	opts.withDefaults()
	s := &Scheduler{
		store:   store,
		sess:    sess,
		opts:    opts,
		out:     make(chan Emission, opts.Buffer),
		ctrl:    make(chan ctrlMsg),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.run()
	return s
}

// C is the emission stream. It is closed after the completion signal or
// on cancellation.
func (s *Scheduler) C() <-chan Emission { return s.out }

// Play starts (or restarts) emission from fromTs at the given speed
// multiplier. A non-positive speed is rejected; an out-of-bounds fromTs
// is clamped or rejected per the seek policy. Calling Play while paused
// at fromTs < 0 continues from the paused cursor.
func (s *Scheduler) Play(fromTs int64, speed float64) error {
	if speed <= 0 {
		return fmt.Errorf("playback: speed must be positive, got %v", speed)
	}
	r := s.send(ctrlMsg{op: opPlay, fromTs: fromTs, speed: speed})
	return r.err
}

// Pause halts clock advancement without losing the cursor. Idempotent.
func (s *Scheduler) Pause() error { return s.send(ctrlMsg{op: opPause}).err }

// Resume continues playing from the paused cursor.
func (s *Scheduler) Resume() error { return s.send(ctrlMsg{op: opResume}).err }

// Seek cancels any in-flight emission, moves the cursor to ts, and
// returns the events inside the ±ε context window around it. Playback
// state is preserved: a playing scheduler keeps playing from the new
// cursor; a completed one drops back to paused.
func (s *Scheduler) Seek(ts int64) ([]models.Event, error) {
	r := s.send(ctrlMsg{op: opSeek, fromTs: ts})
	return r.window, r.err
}

// Cancel stops advancement, releases the scheduler's timer, closes the
// emission stream, and returns the machine to Idle. Safe to call from
// any state, including mid-emission.
func (s *Scheduler) Cancel() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	<-s.stopped
}

// State returns the current machine state and virtual cursor.
func (s *Scheduler) State() (State, int64) {
	r := s.send(ctrlMsg{op: opState})
	return r.state, r.cursor
}

func (s *Scheduler) send(msg ctrlMsg) ctrlReply {
	msg.reply = make(chan ctrlReply, 1)
	select {
	case s.ctrl <- msg:
	case <-s.stopped:
		return ctrlReply{err: apperr.ErrNotFound, state: StateIdle}
	}
	select {
	case r := <-msg.reply:
		return r
	case <-s.stopped:
		return ctrlReply{state: StateIdle}
	}
}

// run is the scheduler goroutine. It alone touches the state below.
func (s *Scheduler) run() {
	defer close(s.stopped)
	defer close(s.out)

	state := StateIdle
	var cursor int64 = s.sess.StartedAt
	speed := 1.0
	var window []models.Event // events from cursor to session end, (ts, seq) ordered
	idx := 0
	var lastAdvance time.Time

	timer := time.NewTimer(s.opts.Quantum)
	timer.Stop()
	stopTimer := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}

	load := func(fromTs int64) error {
		evs, err := s.store.EventsBetween(fromTs, s.sess.EndedAt)
		if err != nil {
			return err
		}
		window = evs
		idx = 0
		return nil
	}

	handle := func(msg ctrlMsg) {
		var r ctrlReply
		switch msg.op {
		case opPlay:
			from := msg.fromTs
			if from < 0 && (state == StatePaused || state == StateCompleted) {
				from = cursor
			}
			bounded, err := s.bound(from)
			if err != nil {
				r.err = err
				break
			}
			if err := load(bounded); err != nil {
				r.err = err
				break
			}
			cursor = bounded
			speed = msg.speed
			state = StatePlaying
			lastAdvance = time.Now()
			stopTimer()
			timer.Reset(s.opts.Quantum)

		case opPause:
			if state == StatePlaying {
				stopTimer()
				state = StatePaused
			}

		case opResume:
			if state == StatePaused {
				state = StatePlaying
				lastAdvance = time.Now()
				timer.Reset(s.opts.Quantum)
			}

		case opSeek:
			bounded, err := s.bound(msg.fromTs)
			if err != nil {
				r.err = err
				break
			}
			cursor = bounded
			if err := load(bounded); err != nil {
				r.err = err
				break
			}
			if state == StateCompleted {
				state = StatePaused
			}
			if state == StatePlaying {
				lastAdvance = time.Now()
				stopTimer()
				timer.Reset(s.opts.Quantum)
			}
			ctx, err := s.store.EventsBetween(bounded-s.opts.Epsilon, bounded+s.opts.Epsilon)
			if err != nil {
				r.err = err
				break
			}
			r.window = ctx

		case opState:
		}
		r.state = state
		r.cursor = cursor
		msg.reply <- r
	}

	complete := func() {
		stopTimer()
		state = StateCompleted
		for {
			select {
			case s.out <- Emission{Complete: true, Cursor: cursor}:
				return
			case msg := <-s.ctrl:
				handle(msg)
				if state != StateCompleted {
					return
				}
			case <-s.stopCh:
				return
			}
		}
	}

	for {
		select {
		case <-s.stopCh:
			stopTimer()
			return

		case msg := <-s.ctrl:
			handle(msg)

		case now := <-timer.C:
			if state != StatePlaying {
				continue
			}
			cursor += int64(float64(now.Sub(lastAdvance).Milliseconds()) * speed)
			lastAdvance = now

			// Control stays serviceable on a slow subscriber; a blocked
			// send must never starve pause or seek.
			for state == StatePlaying && idx < len(window) && window[idx].Timestamp <= cursor {
				ev := window[idx]
				select {
				case s.out <- Emission{Event: &ev, Cursor: cursor}:
					idx++
				case msg := <-s.ctrl:
					handle(msg)
				case <-s.stopCh:
					stopTimer()
					return
				}
			}

			if state != StatePlaying {
				continue
			}
			if idx >= len(window) {
				if end := s.sess.EndedAt; end == 0 || cursor >= end {
					complete()
					continue
				}
			}
			stopTimer()
			timer.Reset(s.opts.Quantum)
		}
	}
}

// bound applies the seek policy to a target timestamp.
func (s *Scheduler) bound(ts int64) (int64, error) {
	start, end := s.sess.StartedAt, s.sess.EndedAt
	if ts >= start && (end == 0 || ts <= end) {
		return ts, nil
	}
	if s.opts.SeekPolicy == SeekReject {
		return 0, fmt.Errorf("playback: target %d outside session [%d, %d]: %w", ts, start, end, apperr.ErrInvalidSeekTarget)
	}
	if ts < start {
		return start, nil
	}
	return end, nil
}
