package sink

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/replicate/batchget/pkg/logging"
)

const fallbackFilename = "index.html"

// File writes the body to a temporary file next to its destination and
// renames it into place on Close. Abort removes the temporary file so no
// partial download is ever visible at Dest.
type File struct {
	Dest      string
	Overwrite bool

	tmp *os.File
}

var _ Sink = &File{}
var _ Aborter = &File{}

func NewFile(dest string, overwrite bool) (*File, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("error creating directory %s: %w", dir, err)
	}
	if !overwrite {
		if err := ensureNotExist(dest); err != nil {
			return nil, err
		}
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".part-*")
	if err != nil {
		return nil, fmt.Errorf("error creating temp file: %w", err)
	}
	return &File{Dest: dest, Overwrite: overwrite, tmp: tmp}, nil
}

// FileFactory places each download in dir, named after its Content-Disposition
// filename or else the last segment of its URL path.
func FileFactory(dir string, overwrite bool) Factory {
	return func(t Target) (Sink, error) {
		return NewFile(filepath.Join(dir, FilenameFor(t)), overwrite)
	}
}

// FilenameFor picks a local file name for t. Directory components are
// stripped so the result always stays inside the output directory.
func FilenameFor(t Target) string {
	name := t.Filename
	if name == "" {
		if u, err := url.Parse(t.URL); err == nil {
			name = path.Base(u.Path)
		}
	}
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	switch name {
	case "", ".", "..", "/":
		return fallbackFilename
	}
	return name
}

func (f *File) Write(p []byte) (int, error) {
	if f.tmp == nil {
		return 0, ErrClosed
	}
	return f.tmp.Write(p)
}

func (f *File) Close() error {
	if f.tmp == nil {
		return ErrClosed
	}
	tmp := f.tmp
	f.tmp = nil
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("error closing %s: %w", tmp.Name(), err)
	}
	if !f.Overwrite {
		if err := ensureNotExist(f.Dest); err != nil {
			_ = os.Remove(tmp.Name())
			return err
		}
	}
	if err := os.Rename(tmp.Name(), f.Dest); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("error moving download into place: %w", err)
	}
	logger := logging.GetLogger()
	logger.Debug().Str("dest", f.Dest).Msg("File written")
	return nil
}

func (f *File) Abort(err error) {
	if f.tmp == nil {
		return
	}
	tmp := f.tmp
	f.tmp = nil
	_ = tmp.Close()
	_ = os.Remove(tmp.Name())
	logger := logging.GetLogger()
	logger.Debug().Err(err).Str("dest", f.Dest).Msg("Partial file removed")
}

func ensureNotExist(dest string) error {
	_, err := os.Stat(dest)
	if err == nil {
		return fmt.Errorf("%w: %s", ErrDestination, dest)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
