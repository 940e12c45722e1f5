// Package api serves the browser preview: a page, the latest frame and
// the viewer status. It only reads from the display.Viewer.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/vincent-vinf/go-jsend"

	"cam-viewer/pkg/display"
	"cam-viewer/pkg/ov"
	"cam-viewer/pkg/utils"
	"cam-viewer/pkg/utils/ps"
)

const maxViewport = 8192

type Options struct {
	Title   string
	Width   int
	Height  int
	Quality int
}

type handler struct {
	viewer *display.Viewer
	opts   Options
}

// NewRouter returns the preview engine. Viewport size defaults to
// opts.Width x opts.Height when the client does not send one.
func NewRouter(viewer *display.Viewer, opts Options) *gin.Engine {
	h := &handler{viewer: viewer, opts: opts}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(utils.Cors())
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("page not found"))
	})

	r.GET("/", h.index)

	apiRouter := r.Group("/api")
	viewerRouter := apiRouter.Group("/viewer")
	viewerRouter.GET("/status", h.status)
	viewerRouter.GET("/frame", h.frame)
	apiRouter.GET("/system", h.system)

	return r
}

func (h *handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, jsend.Success(toStatus(h.viewer.Snapshot(), time.Now())))
}

func toStatus(s display.Snapshot, now time.Time) ov.Status {
	res := ov.Status{
		Connected: s.Connected,
		Status:    s.Status,
		FPS:       s.FPS,
		Frames:    s.Frames,
		Failures:  s.Failures,
		Outages:   s.Outages,
		Width:     s.Width,
		Height:    s.Height,
		Format:    s.Format,
	}
	if !s.LastFrameAt.IsZero() {
		at := s.LastFrameAt
		res.LastFrameAt = &at
		res.LastFrameAge = humanize.RelTime(at, now, "ago", "from now")
	}
	if s.FrameSize > 0 {
		res.FrameSize = humanize.Bytes(uint64(s.FrameSize))
	}

	return res
}

func (h *handler) frame(c *gin.Context) {
	width, err := queryInt(c, "width", h.opts.Width)
	if err != nil {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
		return
	}
	height, err := queryInt(c, "height", h.opts.Height)
	if err != nil {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
		return
	}

	data, err := h.viewer.Render(width, height, h.opts.Quality)
	if errors.Is(err, display.ErrNoFrame) {
		c.JSON(http.StatusServiceUnavailable, jsend.SimpleErr(h.viewer.Snapshot().Status))
		return
	}
	if err != nil {
		internalErr(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/jpeg", data)
}

func (h *handler) system(c *gin.Context) {
	cpu, err := ps.CPUStatus()
	if err != nil {
		internalErr(c, err)
		return
	}
	memory, err := ps.MemoryStatus()
	if err != nil {
		internalErr(c, err)
		return
	}
	self, err := ps.SelfStatus()
	if err != nil {
		internalErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(ov.System{CPU: cpu, Memory: memory, Process: self}))
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n > maxViewport {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}

	return n, nil
}

func internalErr(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, jsend.SimpleErr(err.Error()))
}
