package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"cam-viewer/pkg/types"
)

const (
	StateCreated  = "created"
	StateRunning  = "running"
	StateStopping = "stopping"
	StateStopped  = "stopped"

	eventStart  = "start"
	eventStop   = "stop"
	eventFinish = "finish"
)

// DisconnectedMessage is what the sink is told after a failed read.
const DisconnectedMessage = "Disconnected. Trying to reconnect..."

// Source is what the loop polls. *Session implements it.
type Source interface {
	Read() (*types.Frame, bool)
	Reconnect() error
	Release() error
}

// Sink receives the loop output. Calls are made from the loop goroutine;
// implementations hand work over to their own threads if they need to.
type Sink interface {
	OnFrame(frame *types.Frame, fps float64)
	OnDisconnected(msg string)
}

// Loop reads frames as fast as the source delivers them and hands them to
// the sink. A failed read is reported to the sink and followed by exactly
// one reconnect before the next read. Reconnect failures are retried on
// the next cycle, forever.
type Loop struct {
	src     Source
	sink    Sink
	backoff *Backoff

	mu      sync.Mutex
	state   *fsm.FSM
	started bool

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

type LoopOption func(*Loop)

// WithBackoff pauses between failed cycles, doubling from initial up to
// max. Without it the loop retries immediately.
func WithBackoff(initial, max time.Duration) LoopOption {
	return func(l *Loop) {
		l.backoff = &Backoff{Initial: initial, Max: max}
	}
}

func NewLoop(src Source, sink Sink, opts ...LoopOption) *Loop {
	l := &Loop{
		src:  src,
		sink: sink,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.state = fsm.NewFSM(
		StateCreated,
		fsm.Events{
			{Name: eventStart, Src: []string{StateCreated}, Dst: StateRunning},
			{Name: eventStop, Src: []string{StateCreated, StateRunning}, Dst: StateStopping},
			{Name: eventFinish, Src: []string{StateStopping}, Dst: StateStopped},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Debugf("poll loop: %s -> %s", e.Src, e.Dst)
			},
		},
	)

	return l
}

// Start launches the polling goroutine. A loop can only be started once.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.state.Event(context.Background(), eventStart); err != nil {
		return fmt.Errorf("poll loop: start: %w", err)
	}
	l.started = true
	go l.run()

	return nil
}

// Stop ends the loop and releases the source. It returns only after the
// polling goroutine has exited, so the release never races a read and no
// sink call happens afterwards. A read blocked in the driver delays Stop
// until it returns. Calling Stop again is a no-op.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		if err := l.state.Event(context.Background(), eventStop); err != nil {
			logger.Warnf("poll loop: stop: %s", err)
		}
		started := l.started
		l.mu.Unlock()

		close(l.stop)
		if started {
			<-l.done
		}
		if err := l.src.Release(); err != nil {
			logger.Warnf("poll loop: %s", err)
		}

		l.mu.Lock()
		if err := l.state.Event(context.Background(), eventFinish); err != nil {
			logger.Warnf("poll loop: finish: %s", err)
		}
		l.mu.Unlock()
	})
}

func (l *Loop) State() string {
	return l.state.Current()
}

// Done is closed when the polling goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) run() {
	defer close(l.done)

	for !l.stopping() {
		frame, ok := l.src.Read()
		if l.stopping() {
			return
		}
		if ok && frame != nil {
			if l.backoff != nil {
				l.backoff.Reset()
			}
			l.sink.OnFrame(frame, frame.FPS)
			continue
		}

		l.sink.OnDisconnected(DisconnectedMessage)
		if err := l.src.Reconnect(); err != nil {
			logger.Debugf("poll loop: reconnect: %s", err)
		}
		if l.backoff != nil && !l.wait(l.backoff.Next()) {
			return
		}
	}
}

func (l *Loop) stopping() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

// wait sleeps for d and reports false if the loop was stopped meanwhile.
func (l *Loop) wait(d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-l.stop:
		return false
	}
}
