package source

import (
	"fmt"

	"go.uber.org/zap"

	"cam-viewer/pkg/camera"
	"cam-viewer/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

// Router opens URL locators with URL and device locators with Device.
type Router struct {
	URL    camera.Driver
	Device camera.Driver
}

func (r Router) Open(cfg camera.Config) (camera.Handle, error) {
	loc, err := ParseLocator(cfg.Locator)
	if err != nil {
		return nil, err
	}
	cfg.Locator = loc.Value

	var drv camera.Driver
	switch loc.Kind {
	case KindURL:
		drv = r.URL
	default:
		drv = r.Device
	}
	if drv == nil {
		return nil, fmt.Errorf("no driver for %s locator %s", loc.Kind, loc.Value)
	}

	return drv.Open(cfg)
}
