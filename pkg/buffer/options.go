package buffer

import "log/slog"

type options struct {
	logger   *slog.Logger
	replacer Replacer
}

// Option configures a BufferPoolManager.
type Option func(*options)

// WithLogger sets the logger used for protocol misuse diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithReplacer swaps the eviction policy. The replacer must track at least
// poolSize frames. The default is a ClockReplacer.
func WithReplacer(r Replacer) Option {
	return func(o *options) {
		o.replacer = r
	}
}
