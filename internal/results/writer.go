// Package results writes per-query gather matches to disk.
package results

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kamusis/greyhound/internal/revindex"
)

// DefaultDir is used when no output directory is configured.
const DefaultDir = "outputs"

// Writer writes one file per query under Dir.
type Writer struct {
	Dir string
}

// Path returns the output file for queryPath: Dir/<base name of queryPath>.
func (w *Writer) Path(queryPath string) string {
	dir := w.Dir
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, filepath.Base(queryPath))
}

// Write stores the matched filenames, one per line, in gather order. An
// existing file is replaced; no matches produce an empty file.
func (w *Writer) Write(queryPath string, matches []revindex.GatherResult) error {
	path := w.Path(queryPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create output file %s: %w", path, err)
	}
	bw := bufio.NewWriter(f)
	for _, m := range matches {
		if _, err := fmt.Fprintln(bw, m.Filename); err != nil {
			_ = f.Close()
			return fmt.Errorf("cannot write %s: %w", path, err)
		}
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return f.Close()
}
