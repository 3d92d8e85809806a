// Package workdir changes the process working directory for the duration of a scope.
//
// The working directory is process-wide state, so at most one scope holds it at a time.
// Enter acquires it and returns the release func; Run pairs both around a callback.
package workdir

import (
	"errors"
	"fmt"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "workdir")

// ErrRestoreFailed indicates the original working directory could not be restored
var ErrRestoreFailed = errors.New("working directory restore failed")

// RestoreError carries the directory that could not be restored
type RestoreError struct {
	Dir string
	Err error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrRestoreFailed, e.Dir, e.Err)
}

func (e *RestoreError) Is(target error) bool {
	return target == ErrRestoreFailed
}

func (e *RestoreError) Unwrap() error {
	return e.Err
}

var (
	mu sync.Mutex

	// replaced in tests
	chdir = os.Chdir
	getwd = os.Getwd
)

// Enter changes into dir and returns a release func restoring the previous directory.
// The process-wide lock is held until release is called. Calls after the first are no-ops.
func Enter(dir string) (release func() error, err error) {
	mu.Lock()

	original, err := getwd()
	if err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	if err := chdir(dir); err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("failed to change directory to %s: %w", dir, err)
	}
	logger.WithField("dir", dir).WithField("original", original).Debug("Entered directory")

	var once sync.Once
	release = func() error {
		var restoreErr error
		once.Do(func() {
			defer mu.Unlock()
			if err := chdir(original); err != nil {
				restoreErr = &RestoreError{Dir: original, Err: err}
				logger.WithField("original", original).WithField("error", err).Error("Failed to restore working directory")
				return
			}
			logger.WithField("original", original).Debug("Restored directory")
		})
		return restoreErr
	}
	return release, nil
}

// Run executes fn inside dir and restores the previous directory on every exit path,
// including a panic in fn. A restore failure takes precedence over fn's error.
func Run(dir string, fn func() error) (err error) {
	release, err := Enter(dir)
	if err != nil {
		return err
	}
	defer func() {
		if restoreErr := release(); restoreErr != nil {
			err = restoreErr
		}
	}()
	return fn()
}
