// Package secrets holds credentials the gateway reads at call time, with
// reload on demand or on a signal.
package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
)

// Loader retrieves secrets from a source such as the environment or mounted files.
type Loader func() (map[string]string, error)

// Vault holds secret values in memory and supports atomic reloading.
type Vault struct {
	mu     sync.RWMutex
	values map[string]string
	loader Loader
}

// NewVault creates a Vault, calling the loader once to populate initial values.
func NewVault(loader Loader) (*Vault, error) {
	vals, err := loader()
	if err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	return &Vault{values: vals, loader: loader}, nil
}

// Get returns the secret for key, or an empty string if not found.
func (v *Vault) Get(key string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[key]
}

// Getter binds key, for collaborators that read one secret per call.
func (v *Vault) Getter(key string) func() string {
	return func() string { return v.Get(key) }
}

// Redacted returns a log-safe form of the secret: the first two characters
// followed by ****, fully masked when four characters or fewer.
func (v *Vault) Redacted(key string) string {
	s := v.Get(key)
	switch {
	case s == "":
		return ""
	case len(s) <= 4:
		return "****"
	default:
		return s[:2] + "****"
	}
}

// Reload calls the loader and swaps in the new values atomically.
// If the loader returns an error, existing values are preserved.
func (v *Vault) Reload() error {
	vals, err := v.loader()
	if err != nil {
		return fmt.Errorf("reload secrets: %w", err)
	}
	v.mu.Lock()
	v.values = vals
	v.mu.Unlock()
	return nil
}

// ReloadOnSignal reloads the vault each time one of sigs arrives, until ctx
// is done. Failed reloads are logged and keep the previous values.
func (v *Vault) ReloadOnSignal(ctx context.Context, sigs ...os.Signal) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				if err := v.Reload(); err != nil {
					slog.Warn("secret reload failed", "error", err)
					continue
				}
				slog.Info("secrets reloaded")
			}
		}
	}()
}
