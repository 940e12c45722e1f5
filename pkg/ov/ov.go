package ov

import (
	"time"

	"cam-viewer/pkg/utils/ps"
)

// Status is the preview state returned by /api/viewer/status.
type Status struct {
	Connected bool    `json:"connected"`
	Status    string  `json:"status"`
	FPS       float64 `json:"fps"`

	Frames   uint64 `json:"frames"`
	Failures uint64 `json:"failures"`
	Outages  uint64 `json:"outages"`

	LastFrameAt  *time.Time `json:"lastFrameAt,omitempty"`
	LastFrameAge string     `json:"lastFrameAge,omitempty"`
	Width        int        `json:"width,omitempty"`
	Height       int        `json:"height,omitempty"`
	Format       string     `json:"format,omitempty"`
	FrameSize    string     `json:"frameSize,omitempty"`
}

type System struct {
	CPU     ps.CPU     `json:"cpu"`
	Memory  ps.Memory  `json:"memory"`
	Process ps.Process `json:"process"`
}
