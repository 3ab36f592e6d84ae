package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound    = errors.New("sale not found")
	ErrInvalidSale = errors.New("invalid sale")
)
