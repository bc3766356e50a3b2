package storage

import (
	"github.com/2018wzh/llm-doc-parser/internal/apperr"
	"github.com/2018wzh/llm-doc-parser/internal/home"
)

// Backend names.
const (
	BackendMinio = "minio"
	BackendLocal = "local"
)

// Config selects and configures a backend.
type Config struct {
	Backend string
	Minio   MinioConfig
	Home    *home.Dir
}

// New returns the configured fetcher.
func New(cfg Config) (Fetcher, error) {
	switch cfg.Backend {
	case BackendMinio:
		f, err := NewMinio(cfg.Minio)
		if err != nil {
			return nil, err
		}
		return f, nil
	case BackendLocal, "":
		if cfg.Home == nil {
			return nil, apperr.Configuration("local storage needs a home directory")
		}
		return NewLocal(cfg.Home), nil
	}
	return nil, apperr.Configurationf("unknown storage backend %q, expected minio or local", cfg.Backend)
}
