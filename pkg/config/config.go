// Package config holds the runtime configuration of the viewer. Values come
// from Default, optionally overlaid by a JSON file and then by flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	DefaultLocator = "http://127.0.0.1:56000/mjpeg"
	DefaultPort    = 9999
)

type Config struct {
	Device    Device    `json:"device"`
	FPSWindow int       `json:"fpsWindow"`
	Reconnect Reconnect `json:"reconnect"`
	Viewer    Viewer    `json:"viewer"`
	LogLevel  string    `json:"logLevel"`
}

// Device describes the camera to open. Width, Height, FPS and PixelFormat
// are hints; zero means "driver default".
type Device struct {
	Locator     string `json:"locator"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	FPS         int    `json:"fps"`
	PixelFormat string `json:"pixelFormat"`
}

// Reconnect configures the optional pause between failed cycles. With
// Backoff disabled the loop retries immediately.
type Reconnect struct {
	Backoff        bool `json:"backoff"`
	InitialDelayMs int  `json:"initialDelayMs"`
	MaxDelayMs     int  `json:"maxDelayMs"`
}

type Viewer struct {
	Port    int `json:"port"`
	Width   int `json:"width"`
	Height  int `json:"height"`
	Quality int `json:"quality"`
}

func Default() *Config {
	return &Config{
		Device: Device{
			Locator: DefaultLocator,
		},
		FPSWindow: 10,
		Reconnect: Reconnect{
			Backoff:        false,
			InitialDelayMs: 500,
			MaxDelayMs:     10000,
		},
		Viewer: Viewer{
			Port:    DefaultPort,
			Width:   800,
			Height:  600,
			Quality: 85,
		},
		LogLevel: "info",
	}
}

var pixelFormats = map[string]bool{
	"":      true,
	"mjpeg": true,
	"jpeg":  true,
	"yuyv":  true,
	"rgb24": true,
}

// Validate normalises out-of-range values and rejects configurations that
// cannot work at all.
func (c *Config) Validate() error {
	d := Default()
	c.Device.Locator = strings.TrimSpace(c.Device.Locator)
	if c.Device.Locator == "" {
		return errors.New("device locator can not be empty")
	}
	c.Device.PixelFormat = strings.ToLower(c.Device.PixelFormat)
	if !pixelFormats[c.Device.PixelFormat] {
		return fmt.Errorf("unsupported pixel format %q", c.Device.PixelFormat)
	}
	if c.Device.Width < 0 || c.Device.Height < 0 || c.Device.FPS < 0 {
		return fmt.Errorf("negative device hint %dx%d@%d", c.Device.Width, c.Device.Height, c.Device.FPS)
	}
	if c.FPSWindow < 2 {
		c.FPSWindow = d.FPSWindow
	}
	if c.Reconnect.InitialDelayMs <= 0 {
		c.Reconnect.InitialDelayMs = d.Reconnect.InitialDelayMs
	}
	if c.Reconnect.MaxDelayMs < c.Reconnect.InitialDelayMs {
		c.Reconnect.MaxDelayMs = c.Reconnect.InitialDelayMs
	}
	if c.Viewer.Port <= 0 || c.Viewer.Port > 65535 {
		c.Viewer.Port = d.Viewer.Port
	}
	if c.Viewer.Width <= 0 {
		c.Viewer.Width = d.Viewer.Width
	}
	if c.Viewer.Height <= 0 {
		c.Viewer.Height = d.Viewer.Height
	}
	if c.Viewer.Quality < 1 || c.Viewer.Quality > 100 {
		c.Viewer.Quality = d.Viewer.Quality
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}

	return nil
}

func (r Reconnect) InitialDelay() time.Duration {
	return time.Duration(r.InitialDelayMs) * time.Millisecond
}

func (r Reconnect) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMs) * time.Millisecond
}

// Load reads path on top of Default. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err = json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0660)
}
