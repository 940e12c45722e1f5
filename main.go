package main

import (
	"flag"

	"go.uber.org/zap"

	"cam-viewer/pkg/api"
	"cam-viewer/pkg/camera"
	"cam-viewer/pkg/config"
	"cam-viewer/pkg/display"
	"cam-viewer/pkg/source"
	"cam-viewer/pkg/source/v4l"
	"cam-viewer/pkg/utils"
)

var (
	configFile = flag.String("config", "", "json config file")
	locator    = flag.String("locator", config.DefaultLocator, "device index, device path or http(s) mjpeg url")
	width      = flag.Int("width", 0, "requested frame width")
	height     = flag.Int("height", 0, "requested frame height")
	fps        = flag.Int("fps", 0, "requested frame rate")
	format     = flag.String("format", "", "requested pixel format (mjpeg, yuyv, rgb24)")
	port       = flag.Int("port", config.DefaultPort, "preview port")
	logLevel   = flag.String("log-level", "info", "debug, info, warn or error")
	backoff    = flag.Bool("backoff", false, "wait between failed reconnect attempts")
	dumpConfig = flag.String("write-config", "", "write the effective config to this file and exit")

	logger *zap.SugaredLogger
)

func init() {
	logger = utils.GetLogger()
	flag.Parse()
}

func main() {
	defer logger.Sync()

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal(err)
	}
	if err := utils.SetLevel(cfg.LogLevel); err != nil {
		logger.Fatalf("log level: %s", err)
	}
	if *dumpConfig != "" {
		if err := cfg.Save(*dumpConfig); err != nil {
			logger.Fatal(err)
		}
		logger.Infof("config written to %s", *dumpConfig)
		return
	}

	session := camera.NewSession(
		camera.Config{
			Locator:     cfg.Device.Locator,
			Width:       cfg.Device.Width,
			Height:      cfg.Device.Height,
			FPS:         cfg.Device.FPS,
			PixelFormat: cfg.Device.PixelFormat,
		},
		source.Router{
			URL:    source.NewMJPEG(),
			Device: v4l.Driver{},
		},
		camera.WithWindow(cfg.FPSWindow),
	)
	// the loop keeps retrying, so a camera that is not up yet is not fatal
	if err := session.Connect(); err != nil {
		logger.Warnf("initial connect: %s", err)
	}

	viewer := display.NewViewer()
	sink := display.Multi{viewer, display.NewLogSink(logger, display.DefaultStatsInterval)}

	var opts []camera.LoopOption
	if cfg.Reconnect.Backoff {
		opts = append(opts, camera.WithBackoff(cfg.Reconnect.InitialDelay(), cfg.Reconnect.MaxDelay()))
	}
	loop := camera.NewLoop(session, sink, opts...)
	if err := loop.Start(); err != nil {
		logger.Fatal(err)
	}
	defer func() {
		loop.Stop()
		logger.Info("camera released")
	}()

	r := api.NewRouter(viewer, api.Options{
		Title:   session.Locator(),
		Width:   cfg.Viewer.Width,
		Height:  cfg.Viewer.Height,
		Quality: cfg.Viewer.Quality,
	})
	utils.ListenAndServe(r, cfg.Viewer.Port)
}

// loadConfig reads the config file, then applies the flags given on the
// command line on top of it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return nil, err
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "locator":
			cfg.Device.Locator = *locator
		case "width":
			cfg.Device.Width = *width
		case "height":
			cfg.Device.Height = *height
		case "fps":
			cfg.Device.FPS = *fps
		case "format":
			cfg.Device.PixelFormat = *format
		case "port":
			cfg.Viewer.Port = *port
		case "log-level":
			cfg.LogLevel = *logLevel
		case "backoff":
			cfg.Reconnect.Backoff = *backoff
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
