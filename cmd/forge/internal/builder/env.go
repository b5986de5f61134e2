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
	"os"
	"strings"

	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/util"
)

// sensitiveMarkers flag extra args whose values are masked in logs.
var sensitiveMarkers = []string{"TOKEN", "SECRET", "PASSWORD", "KEY"}

// ExtraArgsFromEnv collects the listed keys that are set in the
// environment, in the listed order. Unset keys are skipped.
func ExtraArgsFromEnv(keys []string) (*util.BuildArgs, error) {
	return extraArgs(keys, os.LookupEnv)
}

func extraArgs(keys []string, lookup func(string) (string, bool)) (*util.BuildArgs, error) {
	args, err := util.NewBuildArgs()
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		value, ok := lookup(key)
		if !ok {
			continue
		}
		if err := args.Set(key, value, isSensitive(key)); err != nil {
			return nil, err
		}
	}
	return args, nil
}

func isSensitive(key string) bool {
	upper := strings.ToUpper(key)
	for _, m := range sensitiveMarkers {
		if strings.Contains(upper, m) {
			return true
		}
	}
	return false
}
