// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package loader

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/mod/modfile"
)

// ErrNoModule is returned when go.mod has no module directive.
var ErrNoModule = errors.New("go.mod has no module directive")

// ModulePath reads the module path declared by the go.mod at goModPath.
func ModulePath(goModPath string) (string, error) {
	content, err := os.ReadFile(goModPath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", goModPath, err)
	}
	f, err := modfile.ParseLax(goModPath, content, nil)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", goModPath, err)
	}
	if f.Module == nil || f.Module.Mod.Path == "" {
		return "", fmt.Errorf("%s: %w", goModPath, ErrNoModule)
	}
	return f.Module.Mod.Path, nil
}
