// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package builder

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsFile holds the metrics of the last build in the Prometheus text
// format, for node_exporter's textfile collector or a CI scraper.
const MetricsFile = "forge-build.prom"

// WriteMetrics writes the metrics of the build described by m to
// <dir>/forge-build.prom.
//
// Every series carries the profile and target labels. The file is
// replaced atomically.
func WriteMetrics(dir string, m *Manifest) error {
	labels := prometheus.Labels{"profile": m.Profile, "target": m.Target}
	reg := prometheus.NewRegistry()

	duration := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "forge_build_duration_seconds",
		Help:        "Wall time of the last build, from profile load to manifest.",
		ConstLabels: labels,
	})
	duration.Set(m.FinishedAt.Sub(m.StartedAt).Seconds())

	finished := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "forge_build_last_success_timestamp_seconds",
		Help:        "Unix time the last successful build finished.",
		ConstLabels: labels,
	})
	finished.Set(float64(m.FinishedAt.Unix()))

	features := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "forge_build_features",
		Help:        "Number of features compiled into the last build.",
		ConstLabels: labels,
	})
	features.Set(float64(len(m.Features)))

	reused := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "forge_build_image_reused",
		Help:        "1 when the cached environment image was reused.",
		ConstLabels: prometheus.Labels{"profile": m.Profile, "target": m.Target, "image": m.Image},
	})
	if m.ImageReused {
		reused.Set(1)
	}

	artifactBytes := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "forge_build_artifact_bytes",
		Help:        "Size of each artifact of the last build.",
		ConstLabels: labels,
	}, []string{"artifact"})
	for _, a := range m.Artifacts {
		artifactBytes.WithLabelValues(a.Name).Set(float64(a.Size))
	}

	info := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "forge_build_info",
		Help: "Flags of the last build; always 1.",
		ConstLabels: prometheus.Labels{
			"profile":  m.Profile,
			"target":   m.Target,
			"build_id": m.BuildID,
			"release":  strconv.FormatBool(m.Release),
			"strip":    strconv.FormatBool(m.Strip),
		},
	})
	info.Set(1)

	for _, c := range []prometheus.Collector{duration, finished, features, reused, artifactBytes, info} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register build metric: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(filepath.Join(dir, MetricsFile), reg); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
