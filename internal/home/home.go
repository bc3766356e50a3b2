package home

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultDirName is the default name for the docparser home directory.
	DefaultDirName = ".docparser"

	// ObjectsDirName holds the local object store, one subdirectory per bucket.
	ObjectsDirName = "objects"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the docparser home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.docparser).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ObjectsPath returns the root of the local object store.
func (d *Dir) ObjectsPath() string {
	return filepath.Join(d.path, ObjectsDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.ObjectsPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create objects directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// ObjectPath resolves bucket/object beneath the objects directory.
// It fails when the result would land outside the bucket.
func (d *Dir) ObjectPath(bucket, object string) (string, error) {
	if bucket == "" || object == "" {
		return "", fmt.Errorf("bucket and object are required")
	}
	if strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("invalid bucket name %q", bucket)
	}

	bucketDir := filepath.Join(d.ObjectsPath(), bucket)
	p := filepath.Join(bucketDir, filepath.FromSlash(object))
	rel, err := filepath.Rel(bucketDir, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("object %q escapes bucket %q", object, bucket)
	}
	return p, nil
}
