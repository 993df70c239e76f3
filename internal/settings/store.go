// Package settings persists the upload settings object and hands out the
// merged configuration to new pastes.
package settings

import "context"

// Store loads and saves the settings object as one opaque blob. Load returns
// a nil blob when nothing was saved yet.
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}
