package types

import (
	"image"
	"time"
)

const (
	FormatJPEG  = "jpeg"
	FormatYUYV  = "yuyv"
	FormatRGB24 = "rgb24"
)

// Frame is one decoded image read from a camera.
type Frame struct {
	Image image.Image
	// Raw holds the encoded bytes when the source delivered JPEG.
	Raw    []byte
	Format string

	Seq        uint64
	CapturedAt time.Time
	// FPS is the smoothed rate computed by the read that produced this frame.
	FPS float64
}

func (f *Frame) Width() int {
	if f == nil || f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

func (f *Frame) Height() int {
	if f == nil || f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}
