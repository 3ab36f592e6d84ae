// Package model contains domain models passed between layers.
package model

import (
	"strconv"
	"time"
)

// SaleMessage is the unit of work consumed from the sales queue.
type SaleMessage struct {
	TransactionHash string // hash of the marketplace settlement transaction
	AxieID          int64  // sold asset
	SaleDate        int64  // epoch seconds of the sale
	Attempt         int    // delivery attempt, starting at 1
}

// Key returns the idempotency key of the sale, unique per (transaction, asset).
func (m SaleMessage) Key() string {
	return m.TransactionHash + ":" + strconv.FormatInt(m.AxieID, 10)
}

// SaleTime returns the sale timestamp as a time.Time in UTC.
func (m SaleMessage) SaleTime() time.Time {
	return time.Unix(m.SaleDate, 0).UTC()
}

// Sale is the persisted, reconstructed view of an asset at sale time.
type Sale struct {
	TransactionHash string
	AxieID          int64
	SaleDate        int64
	Class           string
	BodyShape       string
	Title           string
	ImageURL        string
	Snapshot        AttributeSnapshot
	CreatedAt       time.Time
	ModifiedAt      time.Time
}
