package architecture_test

import (
	"bufio"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

type importRef struct {
	file string
	imp  string
}

func TestImportBoundaries(t *testing.T) {
	root, modulePath := moduleRoot(t)

	type violation struct {
		importRef
		rule string
	}
	var violations []violation

	walkImports(t, root, modulePath, func(rel string, test bool, imp string) {
		layer := layerFor(rel)
		if layer == "" {
			return
		}
		// Pipeline tests run against concrete stores.
		if layer == "rollup" && test {
			return
		}
		for _, bad := range disallowedImports(modulePath, layer) {
			if strings.HasPrefix(imp, bad) {
				violations = append(violations, violation{importRef{rel, imp}, bad})
				return
			}
		}
	})

	if len(violations) > 0 {
		var b strings.Builder
		b.WriteString("import boundary violations:\n")
		for _, v := range violations {
			fmt.Fprintf(&b, "- %s imports %q (disallowed: %q)\n", v.file, v.imp, v.rule)
		}
		t.Fatal(b.String())
	}
}

func TestClientsOnlyImportedByApp(t *testing.T) {
	root, modulePath := moduleRoot(t)

	var violations []importRef
	walkImports(t, root, modulePath, func(rel string, _ bool, imp string) {
		if strings.HasPrefix(rel, "internal/clients/") || strings.HasPrefix(rel, "internal/app/") {
			return
		}
		if strings.HasPrefix(imp, modulePath+"/internal/clients/") {
			violations = append(violations, importRef{rel, imp})
		}
	})

	if len(violations) > 0 {
		var b strings.Builder
		b.WriteString("internal/clients imports found outside internal/app (wire clients through interfaces instead):\n")
		for _, v := range violations {
			fmt.Fprintf(&b, "- %s imports %q\n", v.file, v.imp)
		}
		t.Fatal(b.String())
	}
}

func TestLayerFor(t *testing.T) {
	cases := map[string]string{
		"internal/domain/rollup/identity.go":     "domain",
		"internal/rollup/merge/coordinator.go":   "rollup",
		"internal/data/sources/memory/memory.go": "data",
		"internal/http/router.go":                "http",
		"internal/pkg/logger/logger.go":          "foundation",
		"internal/app/app.go":                    "",
	}
	for rel, want := range cases {
		if got := layerFor(rel); got != want {
			t.Fatalf("layerFor(%s): want=%q got=%q", rel, want, got)
		}
	}
}

func moduleRoot(t *testing.T) (string, string) {
	t.Helper()
	start, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	root, err := findModuleRoot(start)
	if err != nil {
		t.Fatalf("find module root: %v", err)
	}
	modulePath, err := readModulePath(filepath.Join(root, "go.mod"))
	if err != nil {
		t.Fatalf("read module path: %v", err)
	}
	return root, modulePath
}

// walkImports calls fn for every module-internal import of every Go file under internal/.
func walkImports(t *testing.T, root, modulePath string, fn func(rel string, test bool, imp string)) {
	t.Helper()
	internalDir := filepath.Join(root, "internal")
	fset := token.NewFileSet()

	walkErr := filepath.WalkDir(internalDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", "vendor", "node_modules", ".gocache":
				return filepath.SkipDir
			default:
				return nil
			}
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		test := strings.HasSuffix(path, "_test.go")
		for _, spec := range f.Imports {
			if spec == nil || spec.Path == nil {
				continue
			}
			imp, err := strconv.Unquote(spec.Path.Value)
			if err != nil || !strings.HasPrefix(imp, modulePath+"/internal/") {
				continue
			}
			fn(rel, test, imp)
		}
		return nil
	})
	if walkErr != nil {
		t.Fatalf("walk internal/: %v", walkErr)
	}
}

func layerFor(rel string) string {
	switch {
	case strings.HasPrefix(rel, "internal/pkg/"), strings.HasPrefix(rel, "internal/platform/"):
		return "foundation"
	case strings.HasPrefix(rel, "internal/domain/"):
		return "domain"
	case strings.HasPrefix(rel, "internal/rollup/"):
		return "rollup"
	case strings.HasPrefix(rel, "internal/data/"):
		return "data"
	case strings.HasPrefix(rel, "internal/http/"):
		return "http"
	case strings.HasPrefix(rel, "internal/clients/"),
		strings.HasPrefix(rel, "internal/temporalx/"),
		strings.HasPrefix(rel, "internal/report/"):
		return "adapters"
	default:
		return ""
	}
}

func disallowedImports(modulePath string, layer string) []string {
	in := func(pkgs ...string) []string {
		out := make([]string, 0, len(pkgs))
		for _, p := range pkgs {
			out = append(out, modulePath+"/internal/"+p+"/")
		}
		return out
	}
	switch layer {
	case "foundation":
		return in("domain", "rollup", "data", "http", "app", "clients", "temporalx", "report", "observability")
	case "domain":
		return in("rollup", "data", "http", "app", "clients", "temporalx", "report", "observability")
	case "rollup":
		return in("data", "http", "app", "clients", "temporalx", "report")
	case "data":
		return in("http", "app", "clients", "temporalx", "report")
	case "http":
		return in("data", "app", "clients")
	case "adapters":
		return in("http", "app")
	default:
		return nil
	}
}

func findModuleRoot(start string) (string, error) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found from %s", start)
		}
		dir = parent
	}
}

func readModulePath(goModPath string) (string, error) {
	f, err := os.Open(goModPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if !strings.HasPrefix(line, "module ") {
			continue
		}
		mp := strings.TrimSpace(strings.TrimPrefix(line, "module "))
		if mp == "" {
			return "", fmt.Errorf("empty module path in %s", goModPath)
		}
		return mp, nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("module path not found in %s", goModPath)
}
