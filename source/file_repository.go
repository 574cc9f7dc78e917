package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// FileRepository is a Repository backed by a plain local directory that is
// kept up to date by other means. It is mostly useful for development.
type FileRepository struct {
	Name string // Name of the data source
	Path string // Root directory of the data files
}

// NewFileRepository creates a FileRepository for the directory at path.
func NewFileRepository(name, path string) (*FileRepository, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		logrus.WithError(err).Error("error getting absolute path")
		return nil, err
	}
	return &FileRepository{Name: name, Path: absPath}, nil
}

// EnsureFresh only checks that the directory exists.
func (f *FileRepository) EnsureFresh(_ context.Context) error {
	info, err := os.Stat(f.Path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", f.Path)
	}
	return nil
}

// GetName returns the name of the data source.
func (f *FileRepository) GetName() string {
	return f.Name
}

// GetType returns "fs".
func (f *FileRepository) GetType() string {
	return "fs"
}

// GetPath returns the root directory of the data files.
func (f *FileRepository) GetPath() string {
	return f.Path
}
