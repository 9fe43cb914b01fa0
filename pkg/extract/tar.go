package extract

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/replicate/batchget/pkg/logging"
)

var ErrZipSlip = errors.New("archive (tar) file contains file outside of target directory")
var ErrEmptyHeaderName = errors.New("tar file contains entry with empty name")

type link struct {
	linkType byte
	oldName  string
	newName  string
}

// Tar extracts the (optionally compressed) tar stream in reader into destDir
// and returns the number of entries written. Links are created after all
// regular files so that hard links can point at files later in the archive.
func Tar(reader io.Reader, destDir string, overwrite bool) (int, error) {
	var links []*link
	entries := 0

	startTime := time.Now()
	logger := logging.GetLogger()

	decompressed, err := Decompress(reader)
	if err != nil {
		return 0, fmt.Errorf("error detecting compression: %w", err)
	}
	tarReader := tar.NewReader(decompressed)

	logger.Debug().
		Str("extractor", "tar").
		Str("dest", destDir).
		Str("status", "starting").
		Msg("Extract")
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return entries, err
		}

		if err := guardAgainstZipSlip(header.Name, destDir); err != nil {
			return entries, err
		}
		target := filepath.Join(destDir, header.Name)
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return entries, err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			logger.Trace().
				Str("target", target).
				Str("perms", fmt.Sprintf("%o", header.Mode)).
				Msg("Tar: Directory")
			if err := os.MkdirAll(target, cleanFileMode(os.FileMode(header.Mode))); err != nil {
				return entries, err
			}
		case tar.TypeReg:
			logger.Trace().
				Str("target", target).
				Str("perms", fmt.Sprintf("%o", header.Mode)).
				Msg("Tar: File")
			if err := writeFile(target, tarReader, os.FileMode(header.Mode), overwrite); err != nil {
				return entries, err
			}
		case tar.TypeSymlink, tar.TypeLink:
			if header.Typeflag == tar.TypeLink {
				if err := guardAgainstZipSlip(header.Linkname, destDir); err != nil {
					return entries, err
				}
			}
			links = append(links, &link{linkType: header.Typeflag, oldName: header.Linkname, newName: target})
		default:
			return entries, fmt.Errorf("unsupported file type for %s, typeflag %s", header.Name, string(header.Typeflag))
		}
		entries++
	}

	if err := createLinks(links, destDir, overwrite); err != nil {
		return entries, fmt.Errorf("error creating links: %w", err)
	}

	logger.Debug().
		Str("extractor", "tar").
		Str("dest", destDir).
		Int("entries", entries).
		Str("elapsed", fmt.Sprintf("%.3fs", time.Since(startTime).Seconds())).
		Str("status", "complete").
		Msg("Extract")
	return entries, nil
}

func writeFile(target string, r io.Reader, mode os.FileMode, overwrite bool) error {
	openFlags := os.O_CREATE | os.O_WRONLY
	if overwrite {
		openFlags |= os.O_TRUNC
	} else {
		openFlags |= os.O_EXCL
	}
	targetFile, err := os.OpenFile(target, openFlags, cleanFileMode(mode))
	if err != nil {
		return err
	}
	if _, err := io.Copy(targetFile, r); err != nil {
		targetFile.Close()
		return err
	}
	if err := targetFile.Close(); err != nil {
		return fmt.Errorf("error closing file %s: %w", target, err)
	}
	return nil
}

func createLinks(links []*link, destDir string, overwrite bool) error {
	logger := logging.GetLogger()
	for _, link := range links {
		if err := os.MkdirAll(filepath.Dir(link.newName), 0755); err != nil {
			return err
		}
		switch link.linkType {
		case tar.TypeLink:
			oldPath := filepath.Join(destDir, link.oldName)
			logger.Trace().
				Str("old_path", oldPath).
				Str("new_path", link.newName).
				Msg("Tar: creating hard link")
			if err := replaceWith(link.newName, overwrite, func() error { return os.Link(oldPath, link.newName) }); err != nil {
				return fmt.Errorf("error creating hard link from %s to %s: %w", oldPath, link.newName, err)
			}
		case tar.TypeSymlink:
			logger.Trace().
				Str("old_path", link.oldName).
				Str("new_path", link.newName).
				Msg("Tar: creating symlink")
			if err := replaceWith(link.newName, overwrite, func() error { return os.Symlink(link.oldName, link.newName) }); err != nil {
				return fmt.Errorf("error creating symlink from %s to %s: %w", link.oldName, link.newName, err)
			}
		default:
			return fmt.Errorf("unsupported link type %s", string(link.linkType))
		}
	}
	return nil
}

func replaceWith(path string, overwrite bool, create func() error) error {
	if overwrite {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("error removing existing file: %w", err)
		}
	}
	return create()
}

func guardAgainstZipSlip(name, destDir string) error {
	if name == "" {
		return ErrEmptyHeaderName
	}
	target, err := filepath.Abs(filepath.Join(destDir, name))
	if err != nil {
		return fmt.Errorf("error getting absolute path of %s: %w", name, err)
	}
	destAbs, err := filepath.Abs(destDir)
	if err != nil {
		return fmt.Errorf("error getting absolute path of %s: %w", destDir, err)
	}
	if target != destAbs && !strings.HasPrefix(target, destAbs+string(filepath.Separator)) {
		return fmt.Errorf("%w: `%s` outside of `%s`", ErrZipSlip, target, destAbs)
	}
	return nil
}

func cleanFileMode(mode os.FileMode) os.FileMode {
	mask := os.ModeSticky | os.ModeSetuid | os.ModeSetgid
	return mode &^ mask
}
