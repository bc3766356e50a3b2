// Package storage fetches stored objects from MinIO (or any S3-compatible
// endpoint) or from the local object directory under the docparser home.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/2018wzh/llm-doc-parser/internal/apperr"
)

// Fetcher downloads a stored object by locator.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// Locator addresses one object. Endpoint is only set for URL locators.
type Locator struct {
	Endpoint string
	Bucket   string
	Object   string
}

func (l Locator) String() string {
	return l.Bucket + "/" + l.Object
}

// ParseLocator accepts "http(s)://endpoint/bucket/object/path" and
// "bucket/object/path". An empty bucket or object is a storage error.
func ParseLocator(s string) (Locator, error) {
	s = strings.TrimSpace(s)

	var loc Locator
	if rest, ok := cutScheme(s); ok {
		parts := strings.SplitN(rest, "/", 3)
		if len(parts) < 3 {
			return Locator{}, apperr.Storage(fmt.Sprintf("invalid object URL %q", s), nil)
		}
		loc = Locator{Endpoint: parts[0], Bucket: parts[1], Object: parts[2]}
	} else {
		bucket, object, found := strings.Cut(strings.TrimPrefix(s, "/"), "/")
		if !found {
			return Locator{}, apperr.Storage(fmt.Sprintf("invalid object path %q, expected bucket/object", s), nil)
		}
		loc = Locator{Bucket: bucket, Object: object}
	}

	if loc.Bucket == "" || loc.Object == "" {
		return Locator{}, apperr.Storage(fmt.Sprintf("invalid object locator %q: bucket and object are required", s), nil)
	}
	return loc, nil
}

func cutScheme(s string) (string, bool) {
	lower := strings.ToLower(s)
	for _, scheme := range []string{"http://", "https://"} {
		if strings.HasPrefix(lower, scheme) {
			return s[len(scheme):], true
		}
	}
	return "", false
}
