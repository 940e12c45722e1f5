package camera

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cam-viewer/pkg/types"
)

// scriptSource replays read outcomes and records every call in order.
type scriptSource struct {
	mu      sync.Mutex
	calls   []string
	outcome func(n int) bool
	reads   int
	seq     uint64

	reconnectErr error
	inRead       atomic.Bool
	released     atomic.Int32
	readAfterRel atomic.Bool
}

func (s *scriptSource) Read() (*types.Frame, bool) {
	s.inRead.Store(true)
	defer s.inRead.Store(false)
	if s.released.Load() > 0 {
		s.readAfterRel.Store(true)
	}
	time.Sleep(200 * time.Microsecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	ok := s.outcome(s.reads)
	if !ok {
		s.calls = append(s.calls, "read:fail")
		return nil, false
	}
	s.calls = append(s.calls, "read:ok")
	s.seq++

	return &types.Frame{Image: image.NewGray(image.Rect(0, 0, 2, 2)), Seq: s.seq, FPS: float64(s.seq)}, true
}

func (s *scriptSource) Reconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "reconnect")

	return s.reconnectErr
}

func (s *scriptSource) Release() error {
	if s.inRead.Load() {
		return errors.New("release while a read is in flight")
	}
	s.released.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "release")

	return nil
}

func (s *scriptSource) log() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.calls...)
}

type recordSink struct {
	mu       sync.Mutex
	frames   []*types.Frame
	fps      []float64
	messages []string
	calls    atomic.Int64
}

func (r *recordSink) OnFrame(frame *types.Frame, fps float64) {
	r.calls.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
	r.fps = append(r.fps, fps)
}

func (r *recordSink) OnDisconnected(msg string) {
	r.calls.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recordSink) frameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *recordSink) disconnectCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func always(ok bool) func(int) bool {
	return func(int) bool { return ok }
}

func TestLoopForwardsFramesInOrder(t *testing.T) {
	src := &scriptSource{outcome: always(true)}
	sink := &recordSink{}
	l := NewLoop(src, sink)
	if l.State() != StateCreated {
		t.Fatalf("state = %s", l.State())
	}
	if err := l.Start(); err != nil {
		t.Fatal(err)
	}
	if l.State() != StateRunning {
		t.Fatalf("state = %s", l.State())
	}
	waitFor(t, "frames", func() bool { return sink.frameCount() >= 20 })
	l.Stop()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for i, f := range sink.frames {
		if f.Seq != uint64(i+1) {
			t.Fatalf("frame %d has seq %d", i, f.Seq)
		}
		if sink.fps[i] != f.FPS {
			t.Fatalf("frame %d delivered with fps %v, frame says %v", i, sink.fps[i], f.FPS)
		}
	}
	if len(sink.messages) != 0 {
		t.Fatalf("unexpected disconnects: %v", sink.messages)
	}
}

func TestLoopReconnectsOncePerFailure(t *testing.T) {
	// fail every third read
	src := &scriptSource{outcome: func(n int) bool { return n%3 != 0 }}
	sink := &recordSink{}
	l := NewLoop(src, sink)
	if err := l.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "disconnects", func() bool { return sink.disconnectCount() >= 10 })
	l.Stop()

	calls := src.log()
	if calls[len(calls)-1] != "release" {
		t.Fatalf("last call = %s, want release", calls[len(calls)-1])
	}
	calls = calls[:len(calls)-1]
	for i, c := range calls {
		switch c {
		case "read:fail":
			if i+1 < len(calls) && calls[i+1] != "reconnect" {
				t.Fatalf("call %d: failed read followed by %s", i, calls[i+1])
			}
		case "reconnect":
			if i == 0 || calls[i-1] != "read:fail" {
				t.Fatalf("call %d: reconnect not preceded by a failed read: %v", i, calls[:i+1])
			}
		}
	}
	for _, m := range sink.messages {
		if m != DisconnectedMessage {
			t.Fatalf("message = %q", m)
		}
	}
}

func TestLoopSurvivesReconnectErrors(t *testing.T) {
	src := &scriptSource{
		outcome:      func(n int) bool { return n > 5 },
		reconnectErr: &DeviceOpenError{Locator: "fake", Err: errors.New("refused")},
	}
	sink := &recordSink{}
	l := NewLoop(src, sink)
	if err := l.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "recovery", func() bool { return sink.frameCount() >= 3 })
	l.Stop()

	if got := sink.disconnectCount(); got != 5 {
		t.Fatalf("disconnects = %d, want 5", got)
	}
}

// nilFrameSource claims success without a frame on its first read.
type nilFrameSource struct {
	reads      atomic.Int32
	reconnects atomic.Int32
}

func (s *nilFrameSource) Read() (*types.Frame, bool) {
	if s.reads.Add(1) == 1 {
		return nil, true
	}
	time.Sleep(time.Millisecond)
	return &types.Frame{Image: image.NewGray(image.Rect(0, 0, 1, 1))}, true
}

func (s *nilFrameSource) Reconnect() error {
	s.reconnects.Add(1)
	return nil
}

func (s *nilFrameSource) Release() error { return nil }

func TestLoopTreatsNilFrameAsFailure(t *testing.T) {
	src := &nilFrameSource{}
	sink := &recordSink{}
	l := NewLoop(src, sink)
	if err := l.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "frames after the empty read", func() bool { return sink.frameCount() >= 3 })
	l.Stop()

	if got := sink.disconnectCount(); got != 1 {
		t.Fatalf("disconnects = %d, want 1", got)
	}
	if got := src.reconnects.Load(); got != 1 {
		t.Fatalf("reconnects = %d, want 1", got)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	for i, f := range sink.frames {
		if f == nil {
			t.Fatalf("frame %d handed to the sink is nil", i)
		}
	}
}

func TestLoopStopIsABarrier(t *testing.T) {
	src := &scriptSource{outcome: func(n int) bool { return n%2 == 0 }}
	sink := &recordSink{}
	l := NewLoop(src, sink)
	if err := l.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "activity", func() bool { return sink.calls.Load() >= 10 })

	l.Stop()
	select {
	case <-l.Done():
	default:
		t.Fatal("loop goroutine still running after Stop")
	}
	if l.State() != StateStopped {
		t.Fatalf("state = %s", l.State())
	}
	after := sink.calls.Load()
	time.Sleep(20 * time.Millisecond)
	if got := sink.calls.Load(); got != after {
		t.Fatalf("sink called %d times after Stop", got-after)
	}
	if src.released.Load() != 1 {
		t.Fatalf("released %d times", src.released.Load())
	}
	if src.readAfterRel.Load() {
		t.Fatal("read issued after release")
	}
	calls := src.log()
	if calls[len(calls)-1] != "release" {
		t.Fatalf("release was not the last call: %v", calls[len(calls)-5:])
	}

	// second stop is a no-op
	l.Stop()
	if src.released.Load() != 1 {
		t.Fatal("second Stop released again")
	}
}

func TestLoopStopWithoutStart(t *testing.T) {
	src := &scriptSource{outcome: always(true)}
	l := NewLoop(src, &recordSink{})
	l.Stop()
	if l.State() != StateStopped {
		t.Fatalf("state = %s", l.State())
	}
	if src.released.Load() != 1 {
		t.Fatal("source not released")
	}
	if err := l.Start(); err == nil {
		t.Fatal("start after stop should fail")
	}
	if len(src.log()) != 1 {
		t.Fatalf("calls = %v", src.log())
	}
}

func TestLoopStartTwice(t *testing.T) {
	l := NewLoop(&scriptSource{outcome: always(true)}, &recordSink{})
	if err := l.Start(); err != nil {
		t.Fatal(err)
	}
	defer l.Stop()
	if err := l.Start(); err == nil {
		t.Fatal("second start should fail")
	}
}

func TestLoopConcurrentStop(t *testing.T) {
	src := &scriptSource{outcome: always(false)}
	l := NewLoop(src, &recordSink{})
	if err := l.Start(); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Stop()
			if l.State() != StateStopped {
				t.Errorf("Stop returned in state %s", l.State())
			}
		}()
	}
	wg.Wait()
	if src.released.Load() != 1 {
		t.Fatalf("released %d times", src.released.Load())
	}
}

func TestLoopBackoff(t *testing.T) {
	src := &scriptSource{outcome: always(false)}
	sink := &recordSink{}
	l := NewLoop(src, sink, WithBackoff(20*time.Millisecond, time.Hour))
	if err := l.Start(); err != nil {
		t.Fatal(err)
	}
	// waits 20ms, 40ms, 80ms, ... so only a handful of cycles fit in 100ms
	time.Sleep(100 * time.Millisecond)

	begin := time.Now()
	l.Stop()
	if took := time.Since(begin); took > time.Second {
		t.Fatalf("Stop took %s, the backoff wait should be interrupted", took)
	}
	if n := sink.disconnectCount(); n < 1 || n > 4 {
		t.Fatalf("disconnects = %d, want between 1 and 4", n)
	}
}

func TestLoopWithSession(t *testing.T) {
	drv := newFakeDriver(t)
	s := NewSession(Config{Locator: "fake"}, drv)
	if err := s.Connect(); err != nil {
		t.Fatal(err)
	}
	sink := &recordSink{}
	l := NewLoop(s, sink)
	if err := l.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "frames", func() bool { return sink.frameCount() >= 5 })

	// break the device: the loop must reconnect and keep going
	drv.failRead.Store(true)
	waitFor(t, "disconnect", func() bool { return sink.disconnectCount() >= 1 })
	drv.failRead.Store(false)
	before := sink.frameCount()
	waitFor(t, "recovery", func() bool { return sink.frameCount() > before+5 })
	l.Stop()

	if drv.opens.Load() < 2 {
		t.Fatalf("opens = %d, want a reconnect", drv.opens.Load())
	}
	if !drv.lastHandle().closed.Load() {
		t.Fatal("handle not released by Stop")
	}
	if _, ok := s.Read(); ok {
		t.Fatal("read after Stop should fail")
	}
}

func TestBackoffSchedule(t *testing.T) {
	b := &Backoff{Initial: time.Second, Max: 30 * time.Second}
	want := []time.Duration{1, 2, 4, 8, 16, 30, 30}
	for i, w := range want {
		if got := b.Next(); got != w*time.Second {
			t.Fatalf("attempt %d: %s, want %s", i+1, got, w*time.Second)
		}
	}
	for i := 0; i < 100; i++ {
		if got := b.Next(); got != 30*time.Second {
			t.Fatalf("large attempt overflowed: %s", got)
		}
	}
	b.Reset()
	if got := b.Next(); got != time.Second {
		t.Fatalf("after reset: %s", got)
	}
	if b.Attempt() != 1 {
		t.Fatalf("attempt = %d", b.Attempt())
	}
}

func ExampleLoop() {
	drv := DriverFunc(func(cfg Config) (Handle, error) {
		return nil, fmt.Errorf("%s is unplugged", cfg.Locator)
	})
	s := NewSession(Config{Locator: "/dev/video0"}, drv)
	l := NewLoop(s, &recordSink{})
	l.Stop()
	fmt.Println(l.State())
	// Output: stopped
}
