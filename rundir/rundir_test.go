package rundir

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	gitignore "github.com/sabhiram/go-gitignore"
)

func TestWorkDir(t *testing.T) {
	got := WorkDir("runs", "pretrain", "pendulum-medium-v0", true, 3)
	want := filepath.Join("runs", "pretrain", "pendulum-medium-v0", "normtrue_seed3")
	if got != want {
		t.Errorf("WorkDir = %s, want %s", got, want)
	}
}

func TestWriteArgsSortsKeys(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	args := struct {
		Seed int     `json:"seed"`
		Env  string  `json:"env"`
		LR   float64 `json:"lr"`
	}{Seed: 1, Env: "cartpole-random-v0", LR: 0.001}

	if err := WriteArgs(dir, args); err != nil {
		t.Fatalf("WriteArgs failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, ArgsFile))
	if err != nil {
		t.Fatal(err)
	}
	want := "{\n    \"env\": \"cartpole-random-v0\",\n    \"lr\": 0.001,\n    \"seed\": 1\n}"
	if string(data) != want {
		t.Errorf("unexpected args.json:\n%s", data)
	}

	if err := WriteArgs(dir, []int{1}); err == nil {
		t.Error("non-object args should be rejected")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestSnapshotSource(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "go.mod"), "module x\n")
	writeFile(t, filepath.Join(src, "main.go"), "package main\n")
	writeFile(t, filepath.Join(src, "pkg", "a.go"), "package pkg\n")
	writeFile(t, filepath.Join(src, "pkg", "notes.txt"), "skip me\n")
	writeFile(t, filepath.Join(src, "pkg", "gen_test.go"), "package pkg\n")
	writeFile(t, filepath.Join(src, "_examples", "b.go"), "package b\n")
	writeFile(t, filepath.Join(src, ".git", "c.go"), "package c\n")
	writeFile(t, filepath.Join(src, "vendor", "d.go"), "package d\n")
	writeFile(t, filepath.Join(src, "runs", "old", "e.go"), "package e\n")
	writeFile(t, filepath.Join(src, ".gitignore"), "# build output\nvendor/\n*_test.go\n/pkg/ignored.go\n")
	writeFile(t, filepath.Join(src, "pkg", "ignored.go"), "package pkg\n")

	dst := filepath.Join(src, "runs", "new", SourceDir)
	n, err := SnapshotSource(src, dst, ".gitignore", filepath.Join(src, "runs"))
	if err != nil {
		t.Fatalf("SnapshotSource failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 files copied, got %d", n)
	}

	for _, rel := range []string{"go.mod", "main.go", filepath.Join("pkg", "a.go")} {
		if _, err := os.Stat(filepath.Join(dst, rel)); err != nil {
			t.Errorf("%s missing from snapshot", rel)
		}
	}
	err = filepath.WalkDir(dst, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		for _, bad := range []string{"notes.txt", "_test.go", "_examples", "vendor", "ignored.go", ".git"} {
			if strings.Contains(path, bad) {
				t.Errorf("%s should not be in the snapshot", path)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestIgnored(t *testing.T) {
	gi := gitignore.CompileIgnoreLines("bin/", "*.log", "/data/*.gob", "**/gen/*.go", "*.pb.go", "!keep.pb.go")
	cases := []struct {
		rel  string
		dir  bool
		want bool
	}{
		{"bin", true, true},
		{"bin", false, false},
		{"a/b/c.log", false, true},
		{"data/x.gob", false, true},
		{"other/data/x.gob", false, false},
		{"main.go", false, false},
		{"a/b/gen/x.go", false, true},
		{"gen/x.go", false, true},
		{"api/service.pb.go", false, true},
		{"api/keep.pb.go", false, false},
	}
	for _, c := range cases {
		if got := ignored(gi, c.rel, c.dir); got != c.want {
			t.Errorf("ignored(%q, %v) = %v, want %v", c.rel, c.dir, got, c.want)
		}
	}
}

func TestSnapshotSourceNegation(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.go"), "package a\n")
	writeFile(t, filepath.Join(src, "main.go"), "package main\n")
	writeFile(t, filepath.Join(src, ".gitignore"), "*.go\n!main.go\n")

	dst := filepath.Join(t.TempDir(), SourceDir)
	n, err := SnapshotSource(src, dst, ".gitignore")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected only main.go to be copied, got %d files", n)
	}
	if _, err := os.Stat(filepath.Join(dst, "main.go")); err != nil {
		t.Error("re-included main.go missing from snapshot")
	}
}

func TestWriteArgsKeepsLargeIntegers(t *testing.T) {
	dir := t.TempDir()
	if err := WriteArgs(dir, map[string]any{"seed": int64(9007199254740993)}); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, ArgsFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "9007199254740993") {
		t.Errorf("seed lost precision: %s", raw)
	}
}
