// Package v4l opens local USB cameras through Video4Linux2.
package v4l

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"
	"go.uber.org/zap"

	"cam-viewer/pkg/camera"
	"cam-viewer/pkg/types"
	"cam-viewer/pkg/utils"
	imageutil "cam-viewer/pkg/utils/image"
	"cam-viewer/pkg/utils/rgb"
)

// streamStopWait bounds how long Close waits for the streaming goroutine
// to observe the cancelled context before closing the device.
const streamStopWait = 100 * time.Millisecond

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

var formats = map[string]v4l2.FourCCType{
	"":      v4l2.PixelFmtMJPEG,
	"mjpeg": v4l2.PixelFmtMJPEG,
	"jpeg":  v4l2.PixelFmtJPEG,
	"yuyv":  v4l2.PixelFmtYUYV,
	"rgb24": v4l2.PixelFmtRGB24,
}

// PixelFormat maps a configured format name to its FourCC code. The empty
// name selects MJPEG.
func PixelFormat(name string) (v4l2.FourCCType, error) {
	code, ok := formats[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unsupported pixel format %q", name)
	}
	return code, nil
}

func FormatName(code v4l2.FourCCType) string {
	switch code {
	case v4l2.PixelFmtMJPEG:
		return "mjpeg"
	case v4l2.PixelFmtJPEG:
		return "jpeg"
	case v4l2.PixelFmtYUYV:
		return "yuyv"
	case v4l2.PixelFmtRGB24:
		return "rgb24"
	}
	return fmt.Sprintf("fourcc(%#x)", uint32(code))
}

// Driver opens device paths such as /dev/video0.
type Driver struct {
	// BufferSize is the number of driver buffers; 0 means 1, which keeps
	// latency at one frame.
	BufferSize uint32
}

func (d Driver) Open(cfg camera.Config) (camera.Handle, error) {
	code, err := PixelFormat(cfg.PixelFormat)
	if err != nil {
		return nil, err
	}
	bufSize := d.BufferSize
	if bufSize == 0 {
		bufSize = 1
	}

	opts := []device.Option{device.WithBufferSize(bufSize)}
	if pix, ok := sizeHint(cfg, code); ok {
		opts = append(opts, device.WithPixFormat(pix))
	}
	if cfg.FPS > 0 {
		opts = append(opts, device.WithFPS(uint32(cfg.FPS)))
	}

	dev, err := device.Open(cfg.Locator, opts...)
	if err != nil {
		return nil, err
	}
	pix, err := dev.GetPixFormat()
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("get pix format: %w", err)
	}
	// without a size hint only the format needs changing
	if pix.PixelFormat != code && (cfg.Width == 0 || cfg.Height == 0) {
		pix.PixelFormat = code
		if err := dev.SetPixFormat(pix); err != nil {
			logger.Warnf("v4l: %s: set format %s: %s", cfg.Locator, FormatName(code), err)
		}
		if pix, err = dev.GetPixFormat(); err != nil {
			dev.Close()
			return nil, fmt.Errorf("get pix format: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := dev.Start(ctx); err != nil {
		cancel()
		dev.Close()
		return nil, fmt.Errorf("start stream: %w", err)
	}

	info := camera.Info{
		Driver:      "v4l2",
		Device:      cfg.Locator,
		Width:       int(pix.Width),
		Height:      int(pix.Height),
		PixelFormat: FormatName(pix.PixelFormat),
	}
	if rate, err := dev.GetFrameRate(); err == nil {
		info.FPS = float64(rate)
	} else {
		logger.Debugf("v4l: %s: frame rate unavailable: %s", cfg.Locator, err)
	}

	return &handle{
		dev:    dev,
		frames: dev.GetOutput(),
		cancel: cancel,
		format: pix.PixelFormat,
		info:   info,
	}, nil
}

type handle struct {
	dev    *device.Device
	frames <-chan []byte
	cancel context.CancelFunc
	format v4l2.FourCCType
	info   camera.Info
}

// sizeHint returns the format to request when both width and height are
// given. A single dimension cannot be applied and is logged.
func sizeHint(cfg camera.Config, code v4l2.FourCCType) (v4l2.PixFormat, bool) {
	if cfg.Width <= 0 && cfg.Height <= 0 {
		return v4l2.PixFormat{}, false
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		logger.Warnf("v4l: size hint %dx%d ignored for %s, both width and height are needed",
			cfg.Width, cfg.Height, cfg.Locator)
		return v4l2.PixFormat{}, false
	}

	return v4l2.PixFormat{
		PixelFormat: code,
		Width:       uint32(cfg.Width),
		Height:      uint32(cfg.Height),
		Field:       v4l2.FieldNone,
	}, true
}

// Read blocks until the driver delivers a buffer. A closed output channel
// means the stream died.
func (h *handle) Read() (*types.Frame, error) {
	buf, ok := <-h.frames
	if !ok {
		return nil, fmt.Errorf("%w: stream closed", camera.ErrReadFailure)
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", camera.ErrReadFailure)
	}
	data := append([]byte(nil), buf...)

	return decode(data, h.format, h.info.Width, h.info.Height)
}

func decode(data []byte, code v4l2.FourCCType, width, height int) (*types.Frame, error) {
	var (
		img image.Image
		err error
	)
	frame := &types.Frame{}
	switch code {
	case v4l2.PixelFmtMJPEG, v4l2.PixelFmtJPEG:
		img, err = imageutil.DecodeJPEG(data)
		frame.Raw = data
		frame.Format = types.FormatJPEG
	case v4l2.PixelFmtYUYV:
		if len(data) < width*height*2 {
			return nil, fmt.Errorf("%w: short yuyv buffer %d", camera.ErrReadFailure, len(data))
		}
		img = imageutil.DecodeYUYV(data, width, height)
		frame.Format = types.FormatYUYV
	case v4l2.PixelFmtRGB24:
		if len(data) < width*height*3 {
			return nil, fmt.Errorf("%w: short rgb24 buffer %d", camera.ErrReadFailure, len(data))
		}
		img = rgb.NewRGB(data, width, height)
		frame.Format = types.FormatRGB24
	default:
		return nil, fmt.Errorf("%w: cannot decode %s", camera.ErrReadFailure, FormatName(code))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", camera.ErrReadFailure, err)
	}
	frame.Image = img

	return frame, nil
}

func (h *handle) Info() camera.Info {
	return h.info
}

// Close cancels the stream first so the go4vl streaming goroutine stops the
// device itself, then closes the file descriptor.
func (h *handle) Close() error {
	h.cancel()
	timer := time.NewTimer(streamStopWait)
	defer timer.Stop()
	for {
		select {
		case _, ok := <-h.frames:
			if ok {
				continue
			}
		case <-timer.C:
		}
		break
	}

	return h.dev.Close()
}
