package camera

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"cam-viewer/pkg/fps"
	"cam-viewer/pkg/types"
)

// Session owns the capture handle of one device. Every operation runs under
// the same lock, so a reconnect can never interleave with a read and a read
// never sees a closed handle.
//
// Reads have no timeout of their own: a driver that hangs inside Read keeps
// the lock, and therefore also blocks Reconnect, Release and Loop.Stop.
type Session struct {
	cfg    Config
	drv    Driver
	now    func() time.Time
	window int

	lock     sync.Mutex
	handle   Handle
	tracker  *fps.Tracker
	seq      uint64
	released bool
	openErr  error
}

type Option func(*Session)

// WithWindow sets the number of timestamps the FPS average is taken over.
func WithWindow(n int) Option {
	return func(s *Session) {
		s.window = n
	}
}

// WithClock replaces time.Now for frame timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// NewSession creates a disconnected session. Call Connect to open the device.
func NewSession(cfg Config, drv Driver, opts ...Option) *Session {
	s := &Session{
		cfg:    cfg,
		drv:    drv,
		now:    time.Now,
		window: fps.DefaultWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tracker = fps.New(s.window)

	return s
}

func (s *Session) Locator() string {
	return s.cfg.Locator
}

// Connect opens the device. A failure leaves the session disconnected and
// is returned as *DeviceOpenError; reads fail until a reconnect succeeds.
func (s *Session) Connect() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.connect()
}

func (s *Session) connect() error {
	if s.released {
		return ErrReleased
	}
	if s.handle != nil {
		return ErrConnected
	}

	h, err := s.drv.Open(s.cfg)
	if err != nil {
		s.openErr = &DeviceOpenError{Locator: s.cfg.Locator, Err: err}
		logger.Warnf("camera: %s", s.openErr)
		return s.openErr
	}
	s.handle = h
	s.openErr = nil

	info := h.Info()
	logger.Infof("camera: connected to %s (%s)", s.cfg.Locator, info)
	s.checkHints(info)

	return nil
}

// checkHints logs requested parameters the device did not honour.
func (s *Session) checkHints(info Info) {
	if s.cfg.Width > 0 && info.Width > 0 && s.cfg.Width != info.Width ||
		s.cfg.Height > 0 && info.Height > 0 && s.cfg.Height != info.Height {
		logger.Warnf("camera: requested %dx%d, device delivers %dx%d",
			s.cfg.Width, s.cfg.Height, info.Width, info.Height)
	}
	if s.cfg.FPS > 0 && info.FPS > 0 && float64(s.cfg.FPS) != info.FPS {
		logger.Warnf("camera: requested %d fps, device reports %.2f", s.cfg.FPS, info.FPS)
	}
}

// Read returns the next frame. It reports false instead of an error when
// the session is disconnected, released or the device failed.
func (s *Session) Read() (*types.Frame, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.released || s.handle == nil {
		return nil, false
	}
	frame, err := s.handle.Read()
	if err != nil {
		logger.Debugf("camera: read %s: %s", s.cfg.Locator, err)
		return nil, false
	}
	if frame == nil {
		return nil, false
	}

	s.seq++
	frame.Seq = s.seq
	frame.CapturedAt = s.now()
	frame.FPS = s.tracker.Update(frame.CapturedAt)
	if s.seq == 1 {
		logger.Debugf("camera: first frame %dx%d %s (%s)",
			frame.Width(), frame.Height(), frame.Format, humanize.Bytes(uint64(len(frame.Raw))))
	}

	return frame, true
}

// Reconnect drops the current handle, whatever its state, and opens the
// device again with the same configuration.
func (s *Session) Reconnect() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.released {
		return ErrReleased
	}
	s.closeHandle()

	return s.connect()
}

// Release closes the handle and makes the session terminal. It is safe to
// call on a session that never connected and to call more than once.
func (s *Session) Release() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.released {
		return nil
	}
	s.released = true
	if s.handle == nil {
		return nil
	}
	err := s.handle.Close()
	s.handle = nil
	if err != nil {
		return fmt.Errorf("camera: release %s: %w", s.cfg.Locator, err)
	}
	logger.Infof("camera: released %s", s.cfg.Locator)

	return nil
}

func (s *Session) closeHandle() {
	if s.handle == nil {
		return
	}
	if err := s.handle.Close(); err != nil {
		logger.Debugf("camera: close stale handle: %s", err)
	}
	s.handle = nil
}

// Info returns the effective parameters of the open handle, or the zero
// value while disconnected.
func (s *Session) Info() Info {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.handle == nil {
		return Info{}
	}
	return s.handle.Info()
}

// Err returns the error of the last failed open, nil once connected.
func (s *Session) Err() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.openErr
}
