package audit

import (
	"fmt"

	coreaudit "github.com/mfvargas/fieldops/core/audit"
)

// Options selects and parameterizes the audit backend.
type Options struct {
	// Backend is one of "none", "jsonl", "rotating", "sqlite".
	Backend    string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds the audit store named by opts.Backend.
func New(opts Options) (coreaudit.Store, error) {
	switch opts.Backend {
	case "", "none":
		return coreaudit.NopStore{}, nil
	case "jsonl":
		return NewJSONLStore(opts.Path)
	case "rotating":
		return NewRotatingJSONLStore(opts.Path, opts.MaxSizeMB, opts.MaxBackups, opts.MaxAgeDays)
	case "sqlite":
		return NewSQLiteStore(opts.Path)
	}
	return nil, fmt.Errorf("unknown audit backend %q", opts.Backend)
}
