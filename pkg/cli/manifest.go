package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// A manifest lists one URL per line:
//
//	# weights
//	https://example.com/models/a.bin
//	https://example.com/models/b.bin
//
// Blank lines and lines starting with # are skipped. Duplicate URLs are kept;
// each becomes its own download.

// OpenManifest opens path for reading, or returns stdin for "-".
func OpenManifest(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("manifest file %s does not exist", path)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening manifest file %s: %w", path, err)
	}
	return file, nil
}

func ParseManifest(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if fields := strings.Fields(line); len(fields) != 1 {
			return nil, fmt.Errorf("error parsing manifest, line %d: expected a single URL, got `%s`", lineNo, line)
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading manifest: %w", err)
	}
	return urls, nil
}
