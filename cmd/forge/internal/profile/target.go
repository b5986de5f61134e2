// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package profile

import (
	"fmt"
	"strings"
)

// Target is a GOOS/GOARCH pair.
type Target struct {
	OS   string
	Arch string
}

// ParseTarget parses "linux/amd64". Both halves must be non-empty
// lowercase alphanumerics.
func ParseTarget(s string) (Target, error) {
	goos, goarch, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || !validPart(goos) || !validPart(goarch) {
		return Target{}, fmt.Errorf("%w: %q", ErrInvalidTarget, s)
	}
	return Target{OS: goos, Arch: goarch}, nil
}

func (t Target) String() string {
	return t.OS + "/" + t.Arch
}

// BinarySuffix returns ".exe" for windows targets.
func (t Target) BinarySuffix() string {
	if t.OS == "windows" {
		return ".exe"
	}
	return ""
}

func validPart(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
