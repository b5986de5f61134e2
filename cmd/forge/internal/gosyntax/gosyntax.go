// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gosyntax exposes the handful of Go syntax queries the forge
// pipeline needs (top-level functions, imports, calls) on top of the
// tree-sitter Go grammar.
//
// # Description
//
// Insertions into Go source are computed against byte offsets of the
// parse tree instead of regular expressions, so comments and string
// literals that happen to contain `func main` or a call text are never
// mistaken for code.
//
// # Thread Safety
//
// A File is not safe for concurrent use. Parse creates a fresh parser per
// call, so separate Files may be used from separate goroutines.
package gosyntax

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// Node types of the tree-sitter Go grammar used below.
const (
	nodePackageClause = "package_clause"
	nodeImportDecl    = "import_declaration"
	nodeImportSpec    = "import_spec"
	nodeImportList    = "import_spec_list"
	nodeFuncDecl      = "function_declaration"
	nodeCallExpr      = "call_expression"
	nodeComment       = "comment"
	nodeStringLit     = "interpreted_string_literal"
	nodeRawStringLit  = "raw_string_literal"
)

// ErrNilTree is returned when tree-sitter yields no root node.
var ErrNilTree = errors.New("tree-sitter returned no root node")

// File is a parsed Go source file. Call Close when done.
type File struct {
	src  []byte
	tree *sitter.Tree
	root *sitter.Node
}

// Parse parses Go source.
//
// # Inputs
//
//   - ctx: Cancels a long parse.
//   - src: File content. Kept by reference; do not modify while the File is open.
//
// # Outputs
//
//   - *File: The parsed file. Syntax errors do not fail Parse; check HasErrors.
//   - error: Non-nil if tree-sitter could not produce a tree.
func Parse(ctx context.Context, src []byte) (*File, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	root := tree.RootNode()
	if root == nil {
		tree.Close()
		return nil, ErrNilTree
	}
	return &File{src: src, tree: tree, root: root}, nil
}

// Close releases the syntax tree.
func (f *File) Close() {
	if f.tree != nil {
		f.tree.Close()
		f.tree = nil
	}
}

// HasErrors reports whether the source contains syntax errors.
func (f *File) HasErrors() bool {
	return f.root.HasError()
}

// Text returns the source text of n.
func (f *File) Text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(f.src[n.StartByte():n.EndByte()])
}

// PackageName returns the name in the package clause, or "".
func (f *File) PackageName() string {
	for i := 0; i < int(f.root.ChildCount()); i++ {
		child := f.root.Child(i)
		if child.Type() != nodePackageClause {
			continue
		}
		for j := 0; j < int(child.ChildCount()); j++ {
			if name := child.Child(j); name.Type() == "package_identifier" {
				return f.Text(name)
			}
		}
	}
	return ""
}

// =============================================================================
// Functions
// =============================================================================

// Func returns the top-level function declaration called name, or nil.
// Methods are method_declaration nodes and never match.
func (f *File) Func(name string) *sitter.Node {
	for i := 0; i < int(f.root.ChildCount()); i++ {
		child := f.root.Child(i)
		if child.Type() == nodeFuncDecl && f.funcName(child) == name {
			return child
		}
	}
	return nil
}

func (f *File) funcName(fn *sitter.Node) string {
	if name := fn.ChildByFieldName("name"); name != nil {
		return f.Text(name)
	}
	for i := 0; i < int(fn.ChildCount()); i++ {
		if child := fn.Child(i); child.Type() == "identifier" {
			return f.Text(child)
		}
	}
	return ""
}

// BodyOpenBrace returns the byte offset just past the opening brace of a
// function's body, or false for a body-less declaration.
func (f *File) BodyOpenBrace(fn *sitter.Node) (uint32, bool) {
	body := fn.ChildByFieldName("body")
	if body == nil {
		return 0, false
	}
	for i := 0; i < int(body.ChildCount()); i++ {
		if child := body.Child(i); child.Type() == "{" {
			return child.EndByte(), true
		}
	}
	return 0, false
}

// ContainsCall reports whether any call expression below scope invokes
// callee, compared on the callee's source text (e.g. "loader.InitFeatures").
func (f *File) ContainsCall(scope *sitter.Node, callee string) bool {
	if scope == nil {
		return false
	}
	stack := []*sitter.Node{scope}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if node.Type() == nodeCallExpr {
			if fn := node.ChildByFieldName("function"); fn != nil && stripSpace(f.Text(fn)) == callee {
				return true
			}
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			if child := node.Child(i); child != nil {
				stack = append(stack, child)
			}
		}
	}
	return false
}

// stripSpace removes whitespace so "loader . InitFeatures" matches.
func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// =============================================================================
// Imports
// =============================================================================

// Import is one import spec.
type Import struct {
	// Path is the unquoted import path.
	Path string

	// Alias is the explicit name ("", "_", "." or an identifier).
	Alias string
}

// Name returns the identifier the import is referenced by in code: the
// alias when set, otherwise the last path element.
func (i Import) Name() string {
	if i.Alias != "" {
		return i.Alias
	}
	if idx := strings.LastIndex(i.Path, "/"); idx >= 0 {
		return i.Path[idx+1:]
	}
	return i.Path
}

// Imports returns every import spec in source order.
func (f *File) Imports() []Import {
	var out []Import
	for i := 0; i < int(f.root.ChildCount()); i++ {
		decl := f.root.Child(i)
		if decl.Type() != nodeImportDecl {
			continue
		}
		for j := 0; j < int(decl.ChildCount()); j++ {
			child := decl.Child(j)
			switch child.Type() {
			case nodeImportSpec:
				out = append(out, f.importSpec(child))
			case nodeImportList:
				for k := 0; k < int(child.ChildCount()); k++ {
					if spec := child.Child(k); spec.Type() == nodeImportSpec {
						out = append(out, f.importSpec(spec))
					}
				}
			}
		}
	}
	return out
}

func (f *File) importSpec(spec *sitter.Node) Import {
	var imp Import
	for i := 0; i < int(spec.ChildCount()); i++ {
		child := spec.Child(i)
		switch child.Type() {
		case "package_identifier", "blank_identifier", "dot":
			imp.Alias = f.Text(child)
		case nodeStringLit:
			imp.Path = strings.Trim(f.Text(child), `"`)
		case nodeRawStringLit:
			imp.Path = strings.Trim(f.Text(child), "`")
		}
	}
	return imp
}

// FindImport returns the first import of path.
func (f *File) FindImport(path string) (Import, bool) {
	for _, imp := range f.Imports() {
		if imp.Path == path {
			return imp, true
		}
	}
	return Import{}, false
}

// =============================================================================
// Insertion Anchors
// =============================================================================

// DeclAnchor returns the byte offset where new import declarations can be
// inserted: the line start of the first top-level declaration that follows
// the package clause and imports, moved up over the comment block directly
// attached to it. Returns false when the file has no such declaration.
func (f *File) DeclAnchor() (uint32, bool) {
	count := int(f.root.ChildCount())
	for i := 0; i < count; i++ {
		child := f.root.Child(i)
		switch child.Type() {
		case nodePackageClause, nodeImportDecl, nodeComment, "\n", ";", "\x00":
			continue
		}

		start := child.StartByte()
		row := child.StartPoint().Row
		for j := i - 1; j >= 0; j-- {
			prev := f.root.Child(j)
			if prev.Type() != nodeComment || prev.EndPoint().Row+1 < row {
				break
			}
			start = prev.StartByte()
			row = prev.StartPoint().Row
		}
		return LineStart(f.src, start), true
	}
	return 0, false
}

// LineStart returns the offset of the first byte of the line holding offset.
func LineStart(src []byte, offset uint32) uint32 {
	if int(offset) > len(src) {
		offset = uint32(len(src))
	}
	for offset > 0 && src[offset-1] != '\n' {
		offset--
	}
	return offset
}
