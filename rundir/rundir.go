package rundir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

const (
	ArgsFile  = "args.json"
	SourceDir = "src"
)

// WorkDir returns <root>/<kind>/<env>/norm<normalized>_seed<seed>.
func WorkDir(root, kind, env string, normalized bool, seed int64) string {
	return filepath.Join(root, kind, env, fmt.Sprintf("norm%t_seed%d", normalized, seed))
}

// WriteArgs stores args as JSON with sorted keys and a 4 space indent.
func WriteArgs(dir string, args any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to marshal args: %w", err)
	}
	// round trip through a map so keys come out sorted; numbers stay exact
	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return fmt.Errorf("args must be a JSON object: %w", err)
	}
	data, err := json.MarshalIndent(fields, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal args: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ArgsFile), data, 0644)
}

// SnapshotSource copies the Go sources and module files under src into
// dst. Hidden and underscore directories, testdata and anything matched by
// the ignore file in src are skipped, as are paths listed in exclude.
// It returns the number of files copied.
func SnapshotSource(src, dst, ignoreFile string, exclude ...string) (int, error) {
	src, err := filepath.Abs(src)
	if err != nil {
		return 0, err
	}
	dstAbs, err := filepath.Abs(dst)
	if err != nil {
		return 0, err
	}
	skip := map[string]bool{dstAbs: true}
	for _, e := range exclude {
		if abs, err := filepath.Abs(e); err == nil {
			skip[abs] = true
		}
	}

	ignore, err := readIgnore(filepath.Join(src, ignoreFile))
	if err != nil {
		return 0, err
	}

	copied := 0
	err = filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if skip[path] || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "testdata" || ignored(ignore, rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !isSource(name) || ignored(ignore, rel, false) {
			return nil
		}
		if err := copyFile(path, filepath.Join(dst, rel)); err != nil {
			return err
		}
		copied++
		return nil
	})
	if err != nil {
		return copied, fmt.Errorf("failed to snapshot source: %w", err)
	}
	return copied, nil
}

func isSource(name string) bool {
	return strings.HasSuffix(name, ".go") || name == "go.mod" || name == "go.sum"
}

// readIgnore compiles the gitignore file at path. A missing file ignores
// nothing.
func readIgnore(path string) (*gitignore.GitIgnore, error) {
	gi, err := gitignore.CompileIgnoreFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return gitignore.CompileIgnoreLines(), nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return gi, nil
}

// ignored reports whether rel is excluded. Directories are matched with a
// trailing slash so dir-only patterns apply to them.
func ignored(gi *gitignore.GitIgnore, rel string, dir bool) bool {
	rel = filepath.ToSlash(rel)
	if dir {
		rel += "/"
	}
	return gi.MatchesPath(rel)
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
