package camera

import (
	"fmt"

	"cam-viewer/pkg/types"
)

// Config identifies a device and the capture parameters to ask for.
// Width, Height, FPS and PixelFormat are hints; drivers apply what the
// device supports and ignore the rest.
type Config struct {
	Locator     string
	Width       int
	Height      int
	FPS         int
	PixelFormat string
}

// Driver opens capture handles. Implementations live in pkg/source.
type Driver interface {
	Open(cfg Config) (Handle, error)
}

// Handle is one open device. Read may block for as long as the device
// takes to deliver a frame. Handles are only used under the session lock.
type Handle interface {
	Read() (*types.Frame, error)
	Info() Info
	Close() error
}

// DriverFunc adapts a function to Driver.
type DriverFunc func(cfg Config) (Handle, error)

func (f DriverFunc) Open(cfg Config) (Handle, error) {
	return f(cfg)
}

// Info holds the effective parameters reported by the device after open.
// Zero fields are unknown.
type Info struct {
	Driver      string  `json:"driver"`
	Device      string  `json:"device"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	FPS         float64 `json:"fps"`
	PixelFormat string  `json:"pixelFormat"`
}

func (i Info) String() string {
	size := "unknown size"
	if i.Width > 0 && i.Height > 0 {
		size = fmt.Sprintf("%dx%d", i.Width, i.Height)
	}
	rate := "unknown fps"
	if i.FPS > 0 {
		rate = fmt.Sprintf("%.2f fps", i.FPS)
	}
	format := i.PixelFormat
	if format == "" {
		format = "unknown format"
	}

	return fmt.Sprintf("%s %s, %s, %s", i.Driver, size, rate, format)
}
