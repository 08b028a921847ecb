package main

import (
	"bufio"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

// layerRule lists the in-module prefixes a layer may import, relative to the
// service root. Anything outside the module must be stdlib unless
// allowThirdParty is set.
type layerRule struct {
	allowed         []string
	allowContracts  bool
	allowThirdParty bool
}

var layerRules = map[string]layerRule{
	"domain":      {allowed: []string{"domain"}},
	"ports":       {allowed: []string{"domain", "ports"}, allowContracts: true},
	"application": {allowed: []string{"application", "domain", "ports"}, allowContracts: true},
}

func main() {
	module, err := readModulePath("go.mod")
	if err != nil {
		fmt.Printf("read module path: %v\n", err)
		os.Exit(1)
	}

	violations := collectViolations(module, "contexts")
	if len(violations) == 0 {
		fmt.Println("boundary checks passed")
		return
	}

	sort.Slice(violations, func(i, j int) bool {
		a, b := violations[i], violations[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Import < b.Import
	})
	fmt.Println("boundary violations found:")
	for _, v := range violations {
		fmt.Printf("- %s:%d imports %q (%s)\n", v.File, v.Line, v.Import, v.Rule)
	}
	os.Exit(1)
}

func readModulePath(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(scanner.Text()), "module "); ok {
			return strings.Trim(strings.TrimSpace(rest), `"`), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("%s has no module directive", path)
}

func collectViolations(module string, root string) []violation {
	var violations []violation
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		// contexts/<context>/<service>/<layer>/...
		parts := strings.Split(filepath.ToSlash(path), "/")
		if len(parts) < 4 {
			return nil
		}
		serviceRoot := strings.Join(append([]string{module}, parts[:3]...), "/")
		violations = append(violations, checkFile(module, path, serviceRoot, parts[3])...)
		return nil
	})
	return violations
}

func checkFile(module string, path string, serviceRoot string, layer string) []violation {
	normalized := filepath.ToSlash(path)
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return []violation{{File: normalized, Line: 1, Rule: "file must parse"}}
	}

	var violations []violation
	for _, imp := range file.Imports {
		importPath := strings.Trim(imp.Path.Value, `"`)
		line := fset.Position(imp.Pos()).Line
		report := func(rule string) {
			violations = append(violations, violation{File: normalized, Line: line, Import: importPath, Rule: rule})
		}

		if hasPrefix(importPath, module+"/contexts") && !hasPrefix(importPath, serviceRoot) {
			report("cross-service imports are forbidden")
		}
		rule, ok := layerRules[layer]
		if !ok {
			continue
		}
		switch {
		case hasPrefix(importPath, module+"/internal"), hasPrefix(importPath, module+"/cmd"):
			report(layer + " must not import runtime infrastructure")
		case strings.Contains(importPath, "/adapters/") || strings.HasSuffix(importPath, "/adapters"):
			report(layer + " must not import adapters")
		case !rule.permits(module, serviceRoot, importPath):
			report(layer + " import is outside explicit allowlist")
		}
	}
	return violations
}

func (r layerRule) permits(module string, serviceRoot string, importPath string) bool {
	if !hasPrefix(importPath, module) {
		return r.allowThirdParty || isStdlib(importPath)
	}
	if r.allowContracts && hasPrefix(importPath, module+"/contracts") {
		return true
	}
	for _, layer := range r.allowed {
		if hasPrefix(importPath, serviceRoot+"/"+layer) {
			return true
		}
	}
	return false
}

func hasPrefix(path string, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isStdlib(importPath string) bool {
	first, _, _ := strings.Cut(importPath, "/")
	return !strings.Contains(first, ".")
}
