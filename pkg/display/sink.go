package display

import (
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"cam-viewer/pkg/camera"
	"cam-viewer/pkg/types"
)

const DefaultStatsInterval = 5 * time.Second

// LogSink logs outages, recoveries and a periodic frame rate line. It is
// only called from the poll loop and needs no locking.
type LogSink struct {
	logger   *zap.SugaredLogger
	interval time.Duration
	now      func() time.Time

	down     bool
	failures int
	frames   int
	lastLog  time.Time
}

func NewLogSink(logger *zap.SugaredLogger, interval time.Duration) *LogSink {
	if interval <= 0 {
		interval = DefaultStatsInterval
	}
	return &LogSink{logger: logger, interval: interval, now: time.Now}
}

func (s *LogSink) OnFrame(frame *types.Frame, fps float64) {
	now := s.now()
	if s.down {
		s.logger.Infof("stream recovered after %d failed reads", s.failures)
		s.down = false
		s.failures = 0
	}
	s.frames++
	if s.lastLog.IsZero() {
		s.lastLog = now
		return
	}
	if now.Sub(s.lastLog) >= s.interval {
		s.logger.Infof("%s, %d frames, last %dx%d %s",
			FPSLabel(fps), s.frames, frame.Width(), frame.Height(), humanize.Bytes(uint64(len(frame.Raw))))
		s.lastLog = now
		s.frames = 0
	}
}

func (s *LogSink) OnDisconnected(msg string) {
	s.failures++
	if s.down {
		return
	}
	s.down = true
	s.logger.Warnf("stream down: %s", msg)
}

// Multi forwards every call to each sink in order.
type Multi []camera.Sink

func (m Multi) OnFrame(frame *types.Frame, fps float64) {
	for _, s := range m {
		s.OnFrame(frame, fps)
	}
}

func (m Multi) OnDisconnected(msg string) {
	for _, s := range m {
		s.OnDisconnected(msg)
	}
}
