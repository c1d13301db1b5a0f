package hash

import (
	"log/slog"

	"probedb/pkg/storage/page"
)

type options struct {
	logger   *slog.Logger
	onResize func(headerPageID page.PageID, numBuckets int)
}

// Option configures a LinearProbeHashTable.
type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithOnResize registers fn to run after every resize with the new header page
// id. Whoever records the header id for reopening must update it here.
// fn runs while the table is exclusively latched and must not call back into it.
func WithOnResize(fn func(headerPageID page.PageID, numBuckets int)) Option {
	return func(o *options) {
		o.onResize = fn
	}
}
