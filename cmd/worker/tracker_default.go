//go:build !gocv

package main

import (
	"fmt"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/port"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/config"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/tracker"
)

func newTracker(cfg *config.Config) (port.ObjectTracker, error) {
	switch cfg.TrackerBackend {
	case "", "template":
		return tracker.NewTemplateTracker(templateConfig(cfg)), nil
	case "mil":
		return nil, fmt.Errorf("tracker backend %q needs a build with -tags gocv", cfg.TrackerBackend)
	default:
		return nil, fmt.Errorf("unknown tracker backend %q", cfg.TrackerBackend)
	}
}
