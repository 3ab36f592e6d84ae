package dedupe

// Option applies a configuration option to the InMemoryDeduper.
type Option func(*inMemoryDeduper)

// WithMaxSize sets the maximum number of keys to keep in memory. Non-positive
// values keep the default.
func WithMaxSize(maxSize int) Option {
	return func(d *inMemoryDeduper) {
		if maxSize > 0 {
			d.maxSize = maxSize
		}
	}
}
