// probe opens a camera, reads a few frames and prints what it negotiated.
package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"

	"cam-viewer/pkg/camera"
	"cam-viewer/pkg/config"
	"cam-viewer/pkg/source"
	"cam-viewer/pkg/source/v4l"
)

type report struct {
	Info        camera.Info `json:"info"`
	Frames      int         `json:"frames"`
	Failures    int         `json:"failures"`
	MeasuredFPS float64     `json:"measuredFps"`
	Sizes       []string    `json:"sizes,omitempty"`
	Elapsed     string      `json:"elapsed"`
}

func main() {
	locator := config.DefaultLocator
	n := 30
	var width, height, fps int
	var format string
	flag.StringVar(&locator, "d", locator, "device index, device path or http(s) mjpeg url")
	flag.IntVar(&n, "n", n, "frames to read")
	flag.IntVar(&width, "width", 0, "requested frame width")
	flag.IntVar(&height, "height", 0, "requested frame height")
	flag.IntVar(&fps, "fps", 0, "requested frame rate")
	flag.StringVar(&format, "format", "", "requested pixel format")
	flag.Parse()

	session := camera.NewSession(
		camera.Config{Locator: locator, Width: width, Height: height, FPS: fps, PixelFormat: format},
		source.Router{URL: source.NewMJPEG(), Device: v4l.Driver{}},
	)
	if err := session.Connect(); err != nil {
		log.Fatalf("failed to open device: %s", err)
	}
	defer session.Release()

	var res report
	start := time.Now()
	for i := 0; i < n; i++ {
		frame, ok := session.Read()
		if !ok {
			res.Failures++
			if res.Failures > 3 {
				break
			}
			continue
		}
		res.Frames++
		res.MeasuredFPS = frame.FPS
		if len(res.Sizes) < 5 {
			res.Sizes = append(res.Sizes, humanize.Bytes(uint64(len(frame.Raw))))
		}
	}
	res.Info = session.Info()
	res.Elapsed = time.Since(start).Round(time.Millisecond).String()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "    ")
	if err := enc.Encode(res); err != nil {
		panic(err)
	}
	if res.Frames == 0 {
		session.Release()
		os.Exit(1)
	}
}
