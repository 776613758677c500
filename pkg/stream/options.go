package stream

import "go.uber.org/zap"

// DefaultMaxRecordSize bounds a single record, and so the bytes buffered while
// waiting for its newline.
const DefaultMaxRecordSize = 16 << 20

type options struct {
	maxRecordSize int
	logger        *zap.Logger
}

// Option configures a Decoder.
type Option func(*options)

// WithMaxRecordSize sets the largest record, in bytes, the decoder accepts.
// Values below 1 keep the default.
func WithMaxRecordSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRecordSize = n
		}
	}
}

// WithLogger sets the logger used for per-record debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
