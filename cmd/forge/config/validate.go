// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/profile"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/util"
)

// configValidate checks ForgeConfig's validate tags. Field names in its
// errors are the YAML keys.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	configValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	_ = configValidate.RegisterValidation("nonblank", validateNonBlank)
	_ = configValidate.RegisterValidation("inproject", validateInProject)
	_ = configValidate.RegisterValidation("target", validateTarget)
	_ = configValidate.RegisterValidation("envkey", validateEnvKey)
}

func validateNonBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// validateInProject accepts relative paths that stay below the project root.
func validateInProject(fl validator.FieldLevel) bool {
	dir := fl.Field().String()
	if filepath.IsAbs(dir) {
		return false
	}
	clean := path.Clean(filepath.ToSlash(dir))
	return clean != ".." && !strings.HasPrefix(clean, "../")
}

func validateTarget(fl validator.FieldLevel) bool {
	_, err := profile.ParseTarget(fl.Field().String())
	return err == nil
}

func validateEnvKey(fl validator.FieldLevel) bool {
	return util.BuildArg{Key: fl.Field().String()}.Validate() == nil
}

// Validate checks that every setting is usable. The error names the first
// offending key.
func (c *ForgeConfig) Validate() error {
	err := configValidate.Struct(c)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	key := fe.Namespace()
	if _, rest, ok := strings.Cut(key, "."); ok {
		key = rest
	}
	return fmt.Errorf("%s %s", key, describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "nonblank":
		return "must not be empty"
	case "inproject":
		return fmt.Sprintf("%q must be a relative path inside the project", fe.Value())
	case "target":
		return fmt.Sprintf("%q must have the form GOOS/GOARCH", fe.Value())
	case "envkey":
		return fmt.Sprintf("%q is not a valid environment variable name", fe.Value())
	case "oneof":
		return fmt.Sprintf("%q must be one of: %s", fe.Value(), fe.Param())
	default:
		return fmt.Sprintf("failed the %s check", fe.Tag())
	}
}
