package sink_test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/replicate/batchget/pkg/sink"
)

const (
	file1Content = "This is the content of file1."
	file2Content = "This is the content of file2."
	file1Path    = "file1.txt"
	file2Path    = "subdir/file2.txt"
)

func createTarGz(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range map[string]string{file1Path: file1Content, file2Path: file2Content} {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0600,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
			ModTime:  time.Now(),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestTarSink(t *testing.T) {
	r := require.New(t)
	dir := t.TempDir()
	archive := createTarGz(t)

	s, err := sink.TarFactory(dir, false)(sink.Target{URL: "http://example.com/weights.tar.gz"})
	r.NoError(err)
	// write in small chunks like a streaming body would
	for start := 0; start < len(archive); start += 7 {
		end := min(start+7, len(archive))
		_, err := s.Write(archive[start:end])
		r.NoError(err)
	}
	r.NoError(s.Close())
	r.Equal(2, s.(*sink.Tar).Entries())

	content, err := os.ReadFile(filepath.Join(dir, "weights", file1Path))
	r.NoError(err)
	r.Equal(file1Content, string(content))
	content, err = os.ReadFile(filepath.Join(dir, "weights", file2Path))
	r.NoError(err)
	r.Equal(file2Content, string(content))
}

func TestTarSinkRejectsGarbage(t *testing.T) {
	s := sink.NewTar(t.TempDir(), false)
	_, _ = s.Write([]byte("this is definitely not a tar archive, it is far too short"))
	require.Error(t, s.Close())
}

func TestTarSinkAbort(t *testing.T) {
	s := sink.NewTar(t.TempDir(), false)
	archive := createTarGz(t)
	_, err := s.Write(archive[:len(archive)/2])
	require.NoError(t, err)
	s.Abort(errors.New("size limit"))
	require.ErrorIs(t, s.Close(), sink.ErrClosed)
}
