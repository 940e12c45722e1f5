package camera

import (
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"

	"cam-viewer/pkg/types"
)

// fakeDriver hands out handles stamped with a generation number and checks
// that no two operations ever run at the same time and that reads only ever
// reach the newest, still open handle.
type fakeDriver struct {
	t *testing.T

	inside     atomic.Int32
	generation atomic.Uint64
	opens      atomic.Int32
	failOpen   atomic.Bool
	failRead   atomic.Bool
	failClose  atomic.Bool

	mu      sync.Mutex
	handles []*fakeHandle
}

func newFakeDriver(t *testing.T) *fakeDriver {
	return &fakeDriver{t: t}
}

func (d *fakeDriver) enter(op string) {
	if n := d.inside.Add(1); n != 1 {
		d.t.Errorf("%s: %d operations inside the session at once", op, n)
	}
}

func (d *fakeDriver) leave() {
	d.inside.Add(-1)
}

func (d *fakeDriver) Open(cfg Config) (Handle, error) {
	d.enter("open")
	defer d.leave()

	d.opens.Add(1)
	if d.failOpen.Load() {
		return nil, errors.New("no such device")
	}
	h := &fakeHandle{drv: d, gen: d.generation.Add(1), cfg: cfg}
	d.mu.Lock()
	d.handles = append(d.handles, h)
	d.mu.Unlock()

	return h, nil
}

func (d *fakeDriver) lastHandle() *fakeHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.handles) == 0 {
		return nil
	}
	return d.handles[len(d.handles)-1]
}

type fakeHandle struct {
	drv    *fakeDriver
	gen    uint64
	cfg    Config
	closed atomic.Bool
	reads  atomic.Int32
}

func (h *fakeHandle) Read() (*types.Frame, error) {
	h.drv.enter("read")
	defer h.drv.leave()

	if h.closed.Load() {
		h.drv.t.Errorf("read on closed handle of generation %d", h.gen)
	}
	if cur := h.drv.generation.Load(); cur != h.gen {
		h.drv.t.Errorf("read on stale handle: generation %d, latest %d", h.gen, cur)
	}
	h.reads.Add(1)
	if h.drv.failRead.Load() {
		return nil, ErrReadFailure
	}

	return &types.Frame{
		Image:  image.NewGray(image.Rect(0, 0, 4, 3)),
		Raw:    []byte{0xff, 0xd8},
		Format: types.FormatJPEG,
	}, nil
}

func (h *fakeHandle) Info() Info {
	return Info{Driver: "fake", Width: 4, Height: 3, FPS: 30, PixelFormat: "jpeg"}
}

func (h *fakeHandle) Close() error {
	h.drv.enter("close")
	defer h.drv.leave()

	if h.closed.Swap(true) {
		h.drv.t.Errorf("handle of generation %d closed twice", h.gen)
	}
	if h.drv.failClose.Load() {
		return errors.New("close: device gone")
	}
	return nil
}
