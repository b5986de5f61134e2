// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package patcher brings the agent's entry file to the state where main
// starts the generated loader.
//
// # Description
//
// The entry file moves through three states:
//
//	Unpatched       no loader import
//	ModuleDeclared  loader imported, main does not call it
//	FullyPatched    loader imported and called from main
//
// Patch moves any state to FullyPatched in one step. It inserts only what
// is missing: the loader import before the first top-level declaration,
// marked with a "// forge:generated" comment, and the call as the first
// statement of main. When another import already uses the loader's name
// the import is aliased with AliasPrefix. Offsets come from a tree-sitter parse, so comments or
// strings mentioning main or the call never count.
//
// A FullyPatched file is never rewritten, which makes Patch a fixed point.
package patcher

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"sort"

	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/gosyntax"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/loader"
	"github.com/AleutianAI/AleutianForge/cmd/forge/internal/util"
	"github.com/AleutianAI/AleutianForge/pkg/logging"
)

// Marker annotates every line forge inserts into the entry file.
const Marker = "// forge:generated"

// EntryFunc is the function that receives the loader call.
const EntryFunc = "main"

// EntryPackage is the package clause an entry file must carry.
const EntryPackage = "main"

// AliasPrefix names the loader import when its last path element is
// already bound in the entry file.
const AliasPrefix = "forge"

// State is the patch state of an entry file.
type State int

const (
	Unpatched State = iota
	ModuleDeclared
	FullyPatched
)

func (s State) String() string {
	switch s {
	case Unpatched:
		return "unpatched"
	case ModuleDeclared:
		return "module declared"
	case FullyPatched:
		return "fully patched"
	default:
		return "unknown"
	}
}

// PatchResult describes one patch run.
type PatchResult struct {
	Path    string
	Before  State
	After   State
	Changed bool
}

// Patcher edits entry files of one agent module.
type Patcher struct {
	// LoaderImport is the import path of the generated loader package.
	LoaderImport string

	// FeaturesImport is the import path of the shared features package.
	FeaturesImport string

	Logger *logging.Logger
}

// New returns a Patcher for the module at modulePath with the loader and
// features packages in the given slash-separated directories.
func New(modulePath, loaderDir, featuresDir string) *Patcher {
	return &Patcher{
		LoaderImport:   path.Join(modulePath, loaderDir),
		FeaturesImport: path.Join(modulePath, featuresDir),
		Logger:         logging.Nop(),
	}
}

// insertion is text to splice in at a byte offset.
type insertion struct {
	at   uint32
	text string
}

// analysis is what the parse tells us about an entry file.
type analysis struct {
	state     State
	hasImport bool
	hasCall   bool
	callee    string
	alias     string
	anchor    uint32
	brace     uint32
}

// Inspect reports the state of src.
func (p *Patcher) Inspect(ctx context.Context, src []byte) (State, error) {
	a, err := p.analyze(ctx, src)
	if err != nil {
		return Unpatched, err
	}
	return a.state, nil
}

// Apply returns src brought to FullyPatched. src is returned unchanged
// when it already is.
func (p *Patcher) Apply(ctx context.Context, src []byte) ([]byte, error) {
	a, err := p.analyze(ctx, src)
	if err != nil {
		return nil, err
	}
	if a.state == FullyPatched {
		return src, nil
	}

	var edits []insertion
	if !a.hasImport {
		spec := fmt.Sprintf("%q", p.LoaderImport)
		if a.alias != "" {
			spec = a.alias + " " + spec
		}
		edits = append(edits, insertion{
			at:   a.anchor,
			text: fmt.Sprintf("%s\nimport %s\n\n", Marker, spec),
		})
	}
	if !a.hasCall {
		text := "\n\t" + a.callee + "()"
		if !restOfLineBlank(src, a.brace) {
			text += "\n"
		}
		edits = append(edits, insertion{at: a.brace, text: text})
	}

	out := splice(src, edits)
	if err := p.verify(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Patch brings the entry file at path to FullyPatched.
//
// # Description
//
// The file is read in full and parsed before anything is written. A file
// without func main or with syntax errors is left untouched. The result is
// written atomically and only when it differs from the input.
//
// # Inputs
//
//   - ctx: Cancels the parse.
//   - path: Entry file, normally main.go.
//
// # Outputs
//
//   - *PatchResult: States before and after, and whether the file changed.
//   - error: *PatchError wrapping ErrEntryNotFound, ErrMalformedEntry or an
//     I/O error.
func (p *Patcher) Patch(ctx context.Context, path string) (*PatchResult, error) {
	return p.rewrite(ctx, path, p.Apply)
}

// EnsureFeaturesDeclared adds the blank import of the shared features
// package when the entry file lacks it. The import line goes right before
// the first top-level declaration, like the loader import.
func (p *Patcher) EnsureFeaturesDeclared(ctx context.Context, path string) (*PatchResult, error) {
	return p.rewrite(ctx, path, p.ApplyFeatures)
}

// ApplyFeatures returns src with the features import present.
func (p *Patcher) ApplyFeatures(ctx context.Context, src []byte) ([]byte, error) {
	f, err := p.parse(ctx, src)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, ok := f.FindImport(p.FeaturesImport); ok {
		return src, nil
	}
	anchor, ok := f.DeclAnchor()
	if !ok {
		return nil, ErrEntryNotFound
	}

	out := splice(src, []insertion{{
		at:   anchor,
		text: fmt.Sprintf("%s\nimport _ %q\n\n", Marker, p.FeaturesImport),
	}})
	if err := p.verify(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// rewrite runs apply over the file at path and writes any change.
func (p *Patcher) rewrite(ctx context.Context, path string, apply func(context.Context, []byte) ([]byte, error)) (*PatchResult, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &PatchError{Path: path, Op: "read", Err: err}
	}

	before, err := p.Inspect(ctx, src)
	if err != nil {
		return nil, &PatchError{Path: path, Op: "inspect", Err: err}
	}

	out, err := apply(ctx, src)
	if err != nil {
		return nil, &PatchError{Path: path, Op: "apply", Err: err}
	}

	result := &PatchResult{Path: path, Before: before, After: before}
	if bytes.Equal(out, src) {
		p.Logger.Debug("entry file unchanged", "path", path, "state", before.String())
		return result, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, &PatchError{Path: path, Op: "stat", Err: err}
	}
	if err := util.WriteFileAtomic(path, out, info.Mode().Perm()); err != nil {
		return nil, &PatchError{Path: path, Op: "write", Err: err}
	}

	after, err := p.Inspect(ctx, out)
	if err != nil {
		return nil, &PatchError{Path: path, Op: "inspect", Err: err}
	}
	result.After = after
	result.Changed = true
	p.Logger.Info("entry file patched", "path", path, "before", before.String(), "after", after.String())
	return result, nil
}

func (p *Patcher) parse(ctx context.Context, src []byte) (*gosyntax.File, error) {
	f, err := gosyntax.Parse(ctx, src)
	if err != nil {
		return nil, err
	}
	if f.HasErrors() {
		f.Close()
		return nil, ErrMalformedEntry
	}
	return f, nil
}

func (p *Patcher) analyze(ctx context.Context, src []byte) (*analysis, error) {
	f, err := p.parse(ctx, src)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if f.PackageName() != EntryPackage {
		return nil, ErrEntryNotFound
	}
	main := f.Func(EntryFunc)
	if main == nil {
		return nil, ErrEntryNotFound
	}
	brace, ok := f.BodyOpenBrace(main)
	if !ok {
		return nil, ErrEntryNotFound
	}

	a := &analysis{brace: brace}
	qualifier := path.Base(p.LoaderImport)
	if imp, ok := f.FindImport(p.LoaderImport); ok && imp.Alias != "_" {
		a.hasImport = true
		qualifier = imp.Name()
	} else if nameTaken(f, qualifier, p.LoaderImport) {
		alias := AliasPrefix + qualifier
		if nameTaken(f, alias, p.LoaderImport) {
			return nil, ErrLoaderNameTaken
		}
		a.alias = alias
		qualifier = alias
	}
	a.callee = loader.EntryFunc
	if qualifier != "." {
		a.callee = qualifier + "." + loader.EntryFunc
	}
	a.hasCall = f.ContainsCall(main, a.callee)

	if !a.hasImport {
		anchor, ok := f.DeclAnchor()
		if !ok {
			return nil, ErrEntryNotFound
		}
		a.anchor = anchor
	}

	switch {
	case a.hasImport && a.hasCall:
		a.state = FullyPatched
	case a.hasImport:
		a.state = ModuleDeclared
	default:
		a.state = Unpatched
	}
	return a, nil
}

// nameTaken reports whether name is already bound at file scope by an
// import of a path other than self or by a top-level function.
func nameTaken(f *gosyntax.File, name, self string) bool {
	for _, imp := range f.Imports() {
		if imp.Path != self && imp.Name() == name {
			return true
		}
	}
	return f.Func(name) != nil
}

// restOfLineBlank reports whether only blanks follow offset on its line.
func restOfLineBlank(src []byte, offset uint32) bool {
	for _, c := range src[offset:] {
		switch c {
		case ' ', '\t', '\r':
			continue
		case '\n':
			return true
		default:
			return false
		}
	}
	return true
}

// verify re-parses patched output so a bad splice never reaches disk.
func (p *Patcher) verify(ctx context.Context, out []byte) error {
	f, err := p.parse(ctx, out)
	if err != nil {
		return fmt.Errorf("patched source does not parse: %w", err)
	}
	f.Close()
	return nil
}

// splice applies edits from the highest offset down so earlier offsets stay valid.
func splice(src []byte, edits []insertion) []byte {
	sort.SliceStable(edits, func(i, j int) bool { return edits[i].at > edits[j].at })
	out := append([]byte(nil), src...)
	for _, e := range edits {
		var buf bytes.Buffer
		buf.Grow(len(out) + len(e.text))
		buf.Write(out[:e.at])
		buf.WriteString(e.text)
		buf.Write(out[e.at:])
		out = buf.Bytes()
	}
	return out
}
