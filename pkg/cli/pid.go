//go:build !windows

package cli

import (
	"errors"
	"os"
	"strconv"

	"github.com/gofrs/flock"

	"github.com/replicate/batchget/pkg/logging"
)

// PIDFile is an exclusive lock on a file that also records the holder's pid.
// Two batchget runs sharing a PID file never write into the same destination
// at the same time.
type PIDFile struct {
	lock *flock.Flock
}

func NewPIDFile(path string) (*PIDFile, error) {
	if path == "" {
		return nil, errors.New("pid file path is empty")
	}
	return &PIDFile{lock: flock.New(path)}, nil
}

// Acquire blocks until the lock is held, then writes the current pid.
func (p *PIDFile) Acquire() error {
	logger := logging.GetLogger().With().Str("pid_file", p.lock.Path()).Logger()
	locked, err := p.lock.TryLock()
	if err != nil {
		return err
	}
	if !locked {
		logger.Warn().Msg("Another batchget process holds the lock, waiting for it to finish")
		if err := p.lock.Lock(); err != nil {
			return err
		}
	}
	logger.Debug().Msg("Lock acquired")
	return os.WriteFile(p.lock.Path(), []byte(strconv.Itoa(os.Getpid())), 0644)
}

func (p *PIDFile) Release() error {
	if err := p.lock.Unlock(); err != nil {
		return err
	}
	if err := os.Remove(p.lock.Path()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
