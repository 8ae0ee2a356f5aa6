// Package testutil provides reusable testing helpers for enforcing
// architectural boundaries between the domain, engine, and infra layers.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// AssertNoDirectImports scans all non-test .go files in dir (typically "." from
// within the package) and fails if any import path satisfies the forbidden
// predicate. It does not follow build tags.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	imports, err := DirectImports(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var viols []string
	for _, imp := range imports {
		if forbidden(imp.Path) {
			viols = append(viols, imp.Path+" (in "+imp.File+")")
		}
	}
	failIfDirectViolations(t, reason, viols)
}

// Import is one import statement found in a package directory.
type Import struct {
	Path string
	File string
}

// DirectImports lists the imports of every non-test .go file in dir, sorted by
// path then file.
func DirectImports(dir string) ([]Import, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var out []Import
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		fileAst, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range fileAst.Imports {
			out = append(out, Import{Path: strings.Trim(imp.Path.Value, "\""), File: name})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path == out[j].Path {
			return out[i].File < out[j].File
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}

// InternalImportForbidden returns a predicate matching any import path containing /internal/.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/")
}

// PrefixForbidden returns a predicate matching import paths equal to, or
// nested under, any of the prefixes.
func PrefixForbidden(prefixes ...string) func(string) bool {
	return func(path string) bool {
		for _, p := range prefixes {
			if path == p || strings.HasPrefix(path, p+"/") {
				return true
			}
		}
		return false
	}
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfDirectViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden direct imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}
