// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the forge CLI.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Forge palette - furnace oranges over cooled steel
var (
	ColorEmber  = lipgloss.Color("#FF8A3D") // Ember - titles, highlights
	ColorFlame  = lipgloss.Color("#F2622E") // Flame - step banners
	ColorBrass  = lipgloss.Color("#D9A441") // Brass - warnings
	ColorSteel  = lipgloss.Color("#7A8B99") // Steel - muted text, borders
	ColorAnvil  = lipgloss.Color("#3B4550") // Anvil - dim separators
	ColorQuench = lipgloss.Color("#4FC3A1") // Quench green - success
	ColorScorch = lipgloss.Color("#E5484D") // Scorch red - errors
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Step      lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box      lipgloss.Style
	ErrorBox lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorEmber),
	Step:      lipgloss.NewStyle().Bold(true).Foreground(ColorFlame),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSteel),
	Success:   lipgloss.NewStyle().Foreground(ColorQuench),
	Warning:   lipgloss.NewStyle().Foreground(ColorBrass),
	Error:     lipgloss.NewStyle().Foreground(ColorScorch),
	Highlight: lipgloss.NewStyle().Foreground(ColorEmber).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorAnvil).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorScorch).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
	IconHammer  Icon = "⚒"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// Printer writes personality-aware output. Machine level writes
// "KIND: text" lines, warnings and errors go to the error writer.
type Printer struct {
	Out   io.Writer
	Err   io.Writer
	Level PersonalityLevel
}

// NewPrinter returns a Printer on stdout/stderr at the given level.
func NewPrinter(level PersonalityLevel) *Printer {
	return &Printer{Out: os.Stdout, Err: os.Stderr, Level: level}
}

// Title prints a styled title. Suppressed in machine mode.
func (p *Printer) Title(text string) {
	if p.Level == PersonalityMachine {
		return
	}
	fmt.Fprintln(p.Out, Styles.Title.Render(string(IconHammer)+" "+text))
}

// Step prints a numbered pipeline stage banner, e.g. "[2/5] Generating loader".
func (p *Printer) Step(n, total int, text string) {
	switch p.Level {
	case PersonalityMachine:
		fmt.Fprintf(p.Out, "STEP %d/%d: %s\n", n, total, text)
	case PersonalityFull:
		fmt.Fprintf(p.Out, "%s %s\n", Styles.Step.Render(fmt.Sprintf("[%d/%d]", n, total)), text)
	default:
		fmt.Fprintf(p.Out, "[%d/%d] %s\n", n, total, text)
	}
}

// Success prints a success message with checkmark
func (p *Printer) Success(text string) {
	switch p.Level {
	case PersonalityMachine:
		fmt.Fprintf(p.Out, "OK: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(p.Out, "%s %s\n", IconSuccess, text)
	default:
		fmt.Fprintf(p.Out, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	switch p.Level {
	case PersonalityMachine:
		fmt.Fprintf(p.Err, "WARN: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(p.Err, "%s %s\n", IconWarning, text)
	default:
		fmt.Fprintf(p.Err, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error message
func (p *Printer) Error(text string) {
	switch p.Level {
	case PersonalityMachine:
		fmt.Fprintf(p.Err, "ERROR: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(p.Err, "%s %s\n", IconError, text)
	default:
		fmt.Fprintf(p.Err, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational message
func (p *Printer) Info(text string) {
	if p.Level == PersonalityMachine {
		fmt.Fprintln(p.Out, text)
		return
	}
	fmt.Fprintf(p.Out, "%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints secondary text. Suppressed in machine mode.
func (p *Printer) Muted(text string) {
	if p.Level == PersonalityMachine {
		return
	}
	fmt.Fprintln(p.Out, Styles.Muted.Render(text))
}

// ErrorBox prints an error with its remediation in a bordered box.
func (p *Printer) ErrorBox(title, detail, remediation string) {
	if p.Level == PersonalityMachine || p.Level == PersonalityMinimal {
		fmt.Fprintf(p.Err, "ERROR: %s: %s\n", title, detail)
		if remediation != "" {
			fmt.Fprintf(p.Err, "FIX: %s\n", strings.ReplaceAll(remediation, "\n", " "))
		}
		return
	}
	body := Styles.Error.Bold(true).Render(title) + "\n" + detail
	if remediation != "" {
		body += "\n\n" + Styles.Muted.Render(remediation)
	}
	fmt.Fprintln(p.Err, Styles.ErrorBox.Width(72).Render(body))
}

// FeatureRow prints one feature with its entry point status.
func (p *Printer) FeatureRow(name, path string, hasInit bool) {
	icon, label := IconPending, "passive"
	if hasInit {
		icon, label = IconSuccess, "Init()"
	}
	switch p.Level {
	case PersonalityMachine:
		fmt.Fprintf(p.Out, "%s\t%s\t%s\n", name, path, label)
	case PersonalityMinimal:
		fmt.Fprintf(p.Out, "%s %s\n", icon, name)
	default:
		fmt.Fprintf(p.Out, "%s %s %s\n", icon.Render(), Styles.Bold.Render(name),
			Styles.Muted.Render("("+path+", "+label+")"))
	}
}

// KeyValue prints an aligned "key: value" pair.
func (p *Printer) KeyValue(key, value string) {
	if p.Level == PersonalityMachine {
		fmt.Fprintf(p.Out, "%s=%s\n", key, value)
		return
	}
	fmt.Fprintf(p.Out, "  %s %s\n", Styles.Muted.Render(fmt.Sprintf("%-10s", key+":")), value)
}

// Summary prints a summary line with counts
func (p *Printer) Summary(done, skipped int, doneLabel, skippedLabel string) {
	if p.Level == PersonalityMachine {
		fmt.Fprintf(p.Out, "SUMMARY: %s=%d %s=%d\n", doneLabel, done, skippedLabel, skipped)
		return
	}
	fmt.Fprintf(p.Out, "\n%s %s  %s %s\n",
		Styles.Success.Render(fmt.Sprintf("%d", done)), Styles.Muted.Render(doneLabel),
		Styles.Warning.Render(fmt.Sprintf("%d", skipped)), Styles.Muted.Render(skippedLabel),
	)
}
