//go:build gocv

package main

import (
	"fmt"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/port"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/config"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/opencv"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/tracker"
)

func newTracker(cfg *config.Config) (port.ObjectTracker, error) {
	switch cfg.TrackerBackend {
	case "", "template":
		return tracker.NewTemplateTracker(templateConfig(cfg)), nil
	case "mil":
		return opencv.NewMILTracker(), nil
	default:
		return nil, fmt.Errorf("unknown tracker backend %q", cfg.TrackerBackend)
	}
}
