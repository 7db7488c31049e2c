// Package devsession supplies the development-only session override: a
// fixed, fully-privileged user record applied instead of hydrating against a
// real backend. The runtime only consults this package when the environment
// is not production and the unlock flag is set; nothing here re-checks that,
// so it must never be wired up directly in production code paths.
package devsession

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/ggoodman/portalsession-go/session"
)

// User returns the fixed fully-privileged user record. IsOwner short-circuits
// every permission check, so no permission list is needed.
func User() *session.WireUser {
	return &session.WireUser{
		UserID:        "dev-user",
		DiscordUserID: "0",
		Username:      "developer",
		IsVerified:    true,
		RoleIDs:       []string{},
		Permissions:   []string{},
		IsOwner:       true,
	}
}

// Load reads a user-record fixture from a JSON file, for developers who need
// to test as a specific non-owner shape.
func Load(path string) (*session.WireUser, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var u session.WireUser
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode fixture %s: %w", path, err)
	}
	return &u, nil
}

// Watch applies the fixture at path now and again every time the file
// changes, until ctx is done. Editors that replace the file on save (rename
// + create) are handled by watching the parent directory. A fixture that
// fails to parse is logged and skipped; the previous session stays applied.
func Watch(ctx context.Context, path string, logger *slog.Logger, apply func(*session.WireUser)) error {
	if logger == nil {
		logger = slog.Default()
	}

	u, err := Load(path)
	if err != nil {
		return err
	}
	apply(u)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify init: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				u, err := Load(path)
				if err != nil {
					logger.Warn("dev session fixture reload failed", "error", err)
					continue
				}
				logger.Info("dev session fixture reloaded", "path", path)
				apply(u)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("dev session fixture watch error", "error", err)
			}
		}
	}()

	return nil
}
