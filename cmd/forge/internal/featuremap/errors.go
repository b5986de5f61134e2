// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package featuremap

import (
	"fmt"
	"strings"
)

// ConfigError reports a missing or malformed feature map document.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("feature map %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// UnresolvedFeatureError reports enabled features that are absent from the
// consulted feature map.
type UnresolvedFeatureError struct {
	Names []string
}

func (e *UnresolvedFeatureError) Error() string {
	return fmt.Sprintf("features not in feature map: %s", strings.Join(e.Names, ", "))
}
