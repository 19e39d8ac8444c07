//go:build tinygo

package easystepper

import (
	"errors"
	"strconv"
	"time"

	"tinygo.org/x/drivers/easystepper"

	"gostep/core"
)

var boot = time.Now()

// NewSink configures one device per axis and starts its worker
func NewSink(configs []easystepper.DeviceConfig) (*Sink, error) {
	if len(configs) == 0 || len(configs) > core.MaxSteppers {
		return nil, errors.New("easystepper: 1 to 8 axes supported")
	}
	coils := make([]coil, len(configs))
	for i, cfg := range configs {
		dev, err := easystepper.New(cfg)
		if err != nil {
			return nil, errors.New("easystepper: axis " + strconv.Itoa(i) + ": " + err.Error())
		}
		dev.Configure()
		coils[i] = dev
	}
	return newSink(coils, time.Sleep, func() time.Duration { return time.Since(boot) }), nil
}
