package camera

import (
	"go.uber.org/zap"

	"cam-viewer/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}
