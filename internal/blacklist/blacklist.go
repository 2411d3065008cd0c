// Package blacklist persists the canonical set to the blacklist file.
package blacklist

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ritsu/ipset-fail2ban/internal/model"
)

// Write replaces path with entries, one per line. The file is written to a
// temporary sibling and renamed into place, so readers never see a partial
// list. When path is empty the list goes to stdout instead.
func Write(path string, entries []string, stdout io.Writer) error {
	if path == "" {
		if err := writeLines(stdout, entries); err != nil {
			return &model.IOError{Op: "write", Path: "<stdout>", Err: err}
		}
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &model.IOError{Op: "create directory", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return &model.IOError{Op: "create", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := writeLines(tmp, entries); err != nil {
		tmp.Close()
		return &model.IOError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &model.IOError{Op: "sync", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &model.IOError{Op: "close", Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return &model.IOError{Op: "chmod", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &model.IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

func writeLines(w io.Writer, entries []string) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		if _, err := fmt.Fprintln(bw, e); err != nil {
			return err
		}
	}
	return bw.Flush()
}
