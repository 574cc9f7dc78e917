// Package source keeps a local copy of the upstream SpriteCollab data fresh.
package source

import "context"

// Repository provides a local directory holding the upstream data files.
type Repository interface {
	// EnsureFresh brings the local copy up to date with upstream. After a
	// successful call the files below GetPath reflect the latest upstream
	// state.
	EnsureFresh(ctx context.Context) error
	GetName() string
	GetType() string
	// GetPath returns the root directory of the local copy.
	GetPath() string
}
