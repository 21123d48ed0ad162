package config

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

var lockFile *flock.Flock
var lockCount int
var lockMutex sync.Mutex

func tryLockLocked() (err error) {
	if lockFile == nil {
		lockFile = flock.New(filepath.Join(Home(), "config.lock"))
		lockCount = 0
	}
	if lockCount == 0 {
		var ok bool
		ok, err = lockFile.TryLock()
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("config: file is locked by another process")
		}
	}
	lockCount++
	return nil
}
func unlockLocked() {
	lockCount--
	if lockCount < 0 {
		panic("lock count < 0")
	}
	if lockCount == 0 {
		lockFile.Unlock()
		lockFile.Close()
		lockFile = nil
	}
}

// WithLock runs f while holding the cross-process configuration lock.
func WithLock(f func() error) error {
	lockMutex.Lock()
	defer lockMutex.Unlock()
	if err := tryLockLocked(); err != nil {
		return err
	}
	defer unlockLocked()
	return f()
}
