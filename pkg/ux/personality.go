// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// PersonalityEnvVar overrides the detected personality level.
const PersonalityEnvVar = "FORGE_PERSONALITY"

// PersonalityLevel defines the verbosity and richness of CLI output
type PersonalityLevel string

const (
	// PersonalityFull enables colors, icons, boxes and step banners
	PersonalityFull PersonalityLevel = "full"

	// PersonalityStandard enables colors and icons without banners
	PersonalityStandard PersonalityLevel = "standard"

	// PersonalityMinimal uses icons and plain text only
	PersonalityMinimal PersonalityLevel = "minimal"

	// PersonalityMachine outputs tab separated plain text for scripts
	PersonalityMachine PersonalityLevel = "machine"
)

// ParsePersonalityLevel converts a string to PersonalityLevel.
// Unknown values fall back to standard.
func ParsePersonalityLevel(s string) PersonalityLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "f":
		return PersonalityFull
	case "standard", "std", "s":
		return PersonalityStandard
	case "minimal", "min", "m":
		return PersonalityMinimal
	case "machine", "quiet", "q":
		return PersonalityMachine
	default:
		return PersonalityStandard
	}
}

// DetectPersonality picks the level for this process.
//
// An explicit flag value wins, then FORGE_PERSONALITY, then terminal
// detection: a non-terminal stdout (pipes, CI logs) gets machine output.
func DetectPersonality(flagValue string) PersonalityLevel {
	if flagValue != "" {
		return ParsePersonalityLevel(flagValue)
	}
	if env := os.Getenv(PersonalityEnvVar); env != "" {
		return ParsePersonalityLevel(env)
	}
	if !isTerminal(os.Stdout) {
		return PersonalityMachine
	}
	return PersonalityFull
}

// isTerminal reports whether f is attached to a terminal (including Cygwin/MSYS ptys).
func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
