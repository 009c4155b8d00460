package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ErrLockHeld is returned when another process holds the run lock
var ErrLockHeld = errors.New("run lock held by another process")

// FileLock is a cross-process run lock backed by an O_EXCL lock file.
// A lock file older than staleAfter is treated as abandoned and replaced.
type FileLock struct {
	path       string
	staleAfter time.Duration
	token      string
}

type lockContent struct {
	Token string `json:"token"`
	PID   int    `json:"pid"`
	Time  int64  `json:"time"`
}

// NewFileLock creates a lock at path. staleAfter <= 0 never expires it.
func NewFileLock(path string, staleAfter time.Duration) *FileLock {
	return &FileLock{path: path, staleAfter: staleAfter}
}

// TryLock acquires the lock without blocking
func (l *FileLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	token := uuid.NewString()
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			content := lockContent{Token: token, PID: os.Getpid(), Time: time.Now().Unix()}
			encErr := json.NewEncoder(f).Encode(content)
			closeErr := f.Close()
			if err := errors.Join(encErr, closeErr); err != nil {
				_ = os.Remove(l.path)
				return fmt.Errorf("write lock file: %w", err)
			}
			l.token = token
			return nil
		}
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("create lock file: %w", err)
		}

		info, err := os.Stat(l.path)
		if err != nil {
			// released between open and stat
			continue
		}
		if l.staleAfter <= 0 || time.Since(info.ModTime()) < l.staleAfter {
			return ErrLockHeld
		}
		_ = os.Remove(l.path)
	}
	return ErrLockHeld
}

// Unlock removes the lock file if it still carries this holder's token
func (l *FileLock) Unlock() error {
	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""

	raw, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read lock file: %w", err)
	}

	var content lockContent
	if err := json.Unmarshal(raw, &content); err != nil || content.Token != token {
		// taken over after going stale
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}
