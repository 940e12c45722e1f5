package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cam-viewer/pkg/camera"
	"cam-viewer/pkg/types"
	imageutil "cam-viewer/pkg/utils/image"
)

const (
	dialTimeout   = 5 * time.Second
	headerTimeout = 10 * time.Second

	maxFrameSize = 64 << 20
)

// MJPEG opens multipart/x-mixed-replace JPEG streams over HTTP. Only
// connection setup is bounded by timeouts; reading frames is not.
type MJPEG struct {
	Client *http.Client
}

func NewMJPEG() *MJPEG {
	return &MJPEG{
		Client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: dialTimeout}).DialContext,
				ResponseHeaderTimeout: headerTimeout,
			},
		},
	}
}

func (m *MJPEG) Open(cfg camera.Config) (camera.Handle, error) {
	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.Locator, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	res, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		res.Body.Close()
		cancel()
		return nil, fmt.Errorf("unexpected status %s", res.Status)
	}
	boundary, err := streamBoundary(res.Header.Get("Content-Type"))
	if err != nil {
		res.Body.Close()
		cancel()
		return nil, fmt.Errorf("not an mjpeg stream: %w", err)
	}
	if cfg.Width > 0 || cfg.Height > 0 || cfg.FPS > 0 || cfg.PixelFormat != "" {
		logger.Debugf("mjpeg: capture hints %dx%d@%d %q ignored for remote stream %s",
			cfg.Width, cfg.Height, cfg.FPS, cfg.PixelFormat, cfg.Locator)
	}

	return &mjpegHandle{
		parts:  multipart.NewReader(res.Body, boundary),
		res:    res,
		cancel: cancel,
		info: camera.Info{
			Driver:      "mjpeg",
			Device:      cfg.Locator,
			PixelFormat: types.FormatJPEG,
		},
	}, nil
}

// streamBoundary returns the part boundary of a multipart content type.
// Dashes around the declared boundary are dropped, some cameras include
// the leading "--" in the header.
func streamBoundary(contentType string) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return "", fmt.Errorf("content type %q is not multipart", mediaType)
	}
	boundary := strings.Trim(params["boundary"], "-")
	if boundary == "" {
		return "", errors.New("multipart content type without boundary")
	}

	return boundary, nil
}

type mjpegHandle struct {
	parts  *multipart.Reader
	res    *http.Response
	cancel context.CancelFunc
	info   camera.Info
}

func (h *mjpegHandle) Read() (*types.Frame, error) {
	part, err := h.parts.NextPart()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", camera.ErrReadFailure, err)
	}
	raw, err := readPart(part)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", camera.ErrReadFailure, err)
	}
	img, err := imageutil.DecodeJPEG(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decode jpeg: %s", camera.ErrReadFailure, err)
	}
	if h.info.Width == 0 {
		b := img.Bounds()
		h.info.Width, h.info.Height = b.Dx(), b.Dy()
	}

	return &types.Frame{Image: img, Raw: raw, Format: types.FormatJPEG}, nil
}

// readPart returns the JPEG bytes of one part. With a Content-Length the
// frame is complete as soon as that many bytes arrived; without one the
// part ends only when the next boundary shows up.
func readPart(part *multipart.Part) ([]byte, error) {
	v := part.Header.Get("Content-Length")
	if v == "" {
		return io.ReadAll(part)
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 || n > maxFrameSize {
		return nil, fmt.Errorf("bad part length %q", v)
	}
	buf := make([]byte, n)
	if _, err = io.ReadFull(part, buf); err != nil {
		return nil, err
	}

	return buf, nil
}

// Info reports the frame size once the first frame has been decoded.
// The stream carries no frame rate.
func (h *mjpegHandle) Info() camera.Info {
	return h.info
}

func (h *mjpegHandle) Close() error {
	h.cancel()
	return h.res.Body.Close()
}
