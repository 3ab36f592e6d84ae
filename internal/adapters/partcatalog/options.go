package partcatalog

import "github.com/okian/axiesales/pkg/logger"

// Option applies a configuration option to the Catalog.
type Option func(*Catalog)

// WithLogger sets the catalog logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}
