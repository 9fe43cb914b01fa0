package extract

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"io"

	"github.com/pierrec/lz4"
	"github.com/ulikunitz/xz"

	"github.com/replicate/batchget/pkg/logging"
)

const peekSize = 8

var (
	gzipMagic = []byte{0x1F, 0x8B}
	bzipMagic = []byte{0x42, 0x5A}
	xzMagic   = []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00}
	lz4Magic  = []byte{0x04, 0x22, 0x4D, 0x18}
)

var _ decompressor = gzipDecompressor{}
var _ decompressor = bzip2Decompressor{}
var _ decompressor = xzDecompressor{}
var _ decompressor = lz4Decompressor{}

type decompressor interface {
	name() string
	decompress(r io.Reader) (io.Reader, error)
}

// Decompress sniffs the first bytes of r and, when they carry a known
// compression magic number, returns a reader of the decompressed stream.
// Uncompressed input is returned unchanged (apart from buffering).
func Decompress(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(peekSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	d := detectFormat(head)
	if d == nil {
		return br, nil
	}
	return d.decompress(br)
}

// detectFormat returns the decompressor matching the magic number, or nil.
func detectFormat(input []byte) decompressor {
	if len(input) < 2 {
		return nil
	}
	if len(input) < peekSize {
		input = append(append([]byte{}, input...), make([]byte, peekSize-len(input))...)
	}

	var d decompressor
	switch {
	case bytes.HasPrefix(input, gzipMagic):
		d = gzipDecompressor{}
	case bytes.HasPrefix(input, bzipMagic):
		d = bzip2Decompressor{}
	case bytes.HasPrefix(input, lz4Magic):
		d = lz4Decompressor{}
	case bytes.HasPrefix(input, xzMagic):
		d = xzDecompressor{}
	}

	logger := logging.GetLogger()
	if d == nil {
		logger.Debug().Str("type", "none").Msg("Compression Format")
		return nil
	}
	logger.Debug().Str("type", d.name()).Msg("Compression Format")
	return d
}

type gzipDecompressor struct{}

func (gzipDecompressor) name() string { return "gzip" }

func (gzipDecompressor) decompress(r io.Reader) (io.Reader, error) {
	return gzip.NewReader(r)
}

type bzip2Decompressor struct{}

func (bzip2Decompressor) name() string { return "bzip2" }

func (bzip2Decompressor) decompress(r io.Reader) (io.Reader, error) {
	return bzip2.NewReader(r), nil
}

type xzDecompressor struct{}

func (xzDecompressor) name() string { return "xz" }

func (xzDecompressor) decompress(r io.Reader) (io.Reader, error) {
	return xz.NewReader(r)
}

type lz4Decompressor struct{}

func (lz4Decompressor) name() string { return "lz4" }

func (lz4Decompressor) decompress(r io.Reader) (io.Reader, error) {
	return lz4.NewReader(r), nil
}
