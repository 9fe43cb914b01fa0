package sink

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/replicate/batchget/pkg/extract"
	"github.com/replicate/batchget/pkg/logging"
)

type tarResult struct {
	entries int
	err     error
}

// Tar extracts the body as a (possibly compressed) tar archive while it is
// being downloaded.
type Tar struct {
	Dest string

	pw     *io.PipeWriter
	done   chan tarResult
	result *tarResult
}

var _ Sink = &Tar{}
var _ Aborter = &Tar{}

func NewTar(dest string, overwrite bool) *Tar {
	pr, pw := io.Pipe()
	t := &Tar{Dest: dest, pw: pw, done: make(chan tarResult, 1)}
	go func() {
		entries, err := extract.Tar(pr, dest, overwrite)
		// drain trailing padding so the writer never blocks
		_, _ = io.Copy(io.Discard, pr)
		pr.CloseWithError(err)
		t.done <- tarResult{entries: entries, err: err}
	}()
	return t
}

// TarFactory extracts every download into its own directory under dir, named
// like the file sink would name the archive.
func TarFactory(dir string, overwrite bool) Factory {
	return func(t Target) (Sink, error) {
		return NewTar(filepath.Join(dir, trimArchiveExt(FilenameFor(t))), overwrite), nil
	}
}

func (t *Tar) Write(p []byte) (int, error) {
	n, err := t.pw.Write(p)
	if err != nil {
		return n, fmt.Errorf("error extracting into %s: %w", t.Dest, err)
	}
	return n, nil
}

func (t *Tar) Close() error {
	if t.result != nil {
		return ErrClosed
	}
	_ = t.pw.Close()
	res := <-t.done
	t.result = &res
	if res.err != nil {
		return fmt.Errorf("error extracting into %s: %w", t.Dest, res.err)
	}
	logger := logging.GetLogger()
	logger.Debug().Str("dest", t.Dest).Int("entries", res.entries).Msg("Archive extracted")
	return nil
}

func (t *Tar) Abort(err error) {
	if t.result != nil {
		return
	}
	_ = t.pw.CloseWithError(err)
	res := <-t.done
	t.result = &res
}

// Entries reports how many archive entries were written. It is only
// meaningful after Close.
func (t *Tar) Entries() int {
	if t.result == nil {
		return 0
	}
	return t.result.entries
}

func trimArchiveExt(name string) string {
	for _, ext := range []string{".tar.gz", ".tgz", ".tar.xz", ".tar.lz4", ".tar.bz2", ".tar"} {
		if trimmed, ok := strings.CutSuffix(name, ext); ok && trimmed != "" {
			return trimmed
		}
	}
	return name
}
