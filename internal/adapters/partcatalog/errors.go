package partcatalog

import "errors"

// Sentinel errors of the part catalog.
var (
	// ErrNoVersion means the catalog is empty and no upstream version was found.
	ErrNoVersion = errors.New("no part catalog version available")
	// ErrUpstream wraps unexpected CDN responses.
	ErrUpstream = errors.New("part data upstream error")
	// ErrDecode wraps malformed part data.
	ErrDecode = errors.New("decode part data")
)
