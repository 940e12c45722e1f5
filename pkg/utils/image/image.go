package image

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"io"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const minLimit = 20

// DecodeYUYV converts packed YUYV 4:2:2 (Y0 U Y1 V) into an image.YCbCr
// without colour conversion. Width must be even.
func DecodeYUYV(data []byte, width, height int) image.Image {
	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	inStride := width * 2
	if height > 0 && len(data)/height > inStride {
		inStride = len(data) / height
	}
	for y := 0; y < height; y++ {
		in := data[y*inStride:]
		yOff := y * img.YStride
		cOff := y * img.CStride
		for x := 0; x+1 < width; x += 2 {
			p := in[x*2 : x*2+4 : x*2+4]
			img.Y[yOff+x] = p[0]
			img.Y[yOff+x+1] = p[2]
			img.Cb[cOff+x/2] = p[1]
			img.Cr[cOff+x/2] = p[3]
		}
	}

	return img
}

func DecodeJPEG(data []byte) (image.Image, error) {
	return jpeg.Decode(bytes.NewReader(data))
}

func EncodeJPEG(img image.Image, dst io.Writer, quality int) error {
	return jpeg.Encode(dst, img, &jpeg.Options{Quality: quality})
}

// FitSize returns the size img should be displayed at inside a
// limitWidth x limitHeight viewport. Images are only ever shrunk.
// Non-positive limits are treated as 20.
func FitSize(width, height, limitWidth, limitHeight int) (int, int) {
	if limitWidth <= 0 {
		limitWidth = minLimit
	}
	if limitHeight <= 0 {
		limitHeight = minLimit
	}
	if width <= 0 || height <= 0 {
		return width, height
	}
	rw := float64(limitWidth) / float64(width)
	rh := float64(limitHeight) / float64(height)
	if rw >= 1 && rh >= 1 {
		return width, height
	}
	ratio := min(rw, rh)

	return max(int(float64(width)*ratio), 1), max(int(float64(height)*ratio), 1)
}

// ResizeToFit scales img down so it fits the viewport, see FitSize.
// The original is returned when it already fits.
func ResizeToFit(img image.Image, limitWidth, limitHeight int) image.Image {
	b := img.Bounds()
	w, h := FitSize(b.Dx(), b.Dy(), limitWidth, limitHeight)
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)

	return dst
}

// DrawLabel returns a copy of img with text drawn in the top-left corner
// on a dark background.
func DrawLabel(img image.Image, text string) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	if text == "" {
		return dst
	}

	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: face,
	}
	const pad = 4
	textWidth := d.MeasureString(text).Ceil()
	box := image.Rect(0, 0, textWidth+2*pad, face.Height+2*pad).Intersect(dst.Bounds())
	draw.Draw(dst, box, image.NewUniform(color.RGBA{A: 0xb0}), image.Point{}, draw.Over)
	d.Dot = fixed.P(pad, pad+face.Ascent)
	d.DrawString(text)

	return dst
}
