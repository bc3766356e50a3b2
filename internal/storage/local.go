package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/2018wzh/llm-doc-parser/internal/apperr"
	"github.com/2018wzh/llm-doc-parser/internal/home"
)

// LocalFetcher reads bucket/object paths beneath the home objects directory.
type LocalFetcher struct {
	dir *home.Dir
}

var _ Fetcher = (*LocalFetcher)(nil)

// NewLocal creates a fetcher rooted at dir.ObjectsPath().
func NewLocal(dir *home.Dir) *LocalFetcher {
	return &LocalFetcher{dir: dir}
}

// Fetch reads the object file. URL locators are accepted; the endpoint is
// ignored.
func (f *LocalFetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Storage("fetch cancelled", err)
	}
	loc, err := ParseLocator(locator)
	if err != nil {
		return nil, err
	}
	path, err := f.dir.ObjectPath(loc.Bucket, loc.Object)
	if err != nil {
		return nil, apperr.Storage(fmt.Sprintf("invalid object locator %q", locator), err)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.Storage(fmt.Sprintf("object not found: %s", loc), err)
	}
	if err != nil {
		return nil, apperr.Storage(fmt.Sprintf("failed to read %s", loc), err)
	}
	return data, nil
}
