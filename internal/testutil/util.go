// Package testutil holds golden-file helpers shared by package tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"testing"
)

// Update rewrites golden files instead of comparing: go test ./... -update
var Update = flag.Bool(
	"update",
	false,
	"update golden files",
)

//
// --- Golden file helpers ---
//

func goldenPath(name string) string {
	return filepath.Join("testdata", name+".golden")
}

func marshal(t *testing.T, v any) []byte {
	t.Helper()

	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return b
}

func writeGolden(t *testing.T, name string, b []byte) {
	t.Helper()
	path := goldenPath(name)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create testdata dir: %v", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("failed to write golden file: %v", err)
	}
}

func loadGolden(t *testing.T, name string) []byte {
	t.Helper()

	b, err := os.ReadFile(goldenPath(name))
	if err != nil {
		t.Fatalf("failed to read golden file (run with -update to create it): %v", err)
	}
	return b
}

// CompareWithGolden marshals v as indented JSON and compares it byte for byte
// with testdata/<name>.golden.
func CompareWithGolden(t *testing.T, name string, v any) {
	t.Helper()

	actual := marshal(t, v)

	if *Update {
		writeGolden(t, name, actual)
		return
	}

	expected := loadGolden(t, name)

	if !bytes.Equal(bytes.TrimRight(expected, "\n"), actual) {
		t.Fatalf("golden mismatch for %s\nexpected:\n%s\nactual:\n%s",
			name, string(expected), string(actual))
	}
}
