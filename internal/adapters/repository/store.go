// Package repository persists reconstructed sales and the part catalog in SQLite.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/axiesales/internal/domain/model"
	"github.com/okian/axiesales/pkg/logger"
	"github.com/okian/axiesales/pkg/metrics"
)

// Store is the SQLite-backed sale store and part table.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

// New wraps an open database, see NewDB.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("repository")
	}
	return s
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// slotColumn is the column prefix of a part slot, e.g. "ears".
func slotColumn(slot model.PartSlot) string {
	return strings.ToLower(string(slot))
}

var saleColumns = func() []string {
	cols := []string{
		"transaction_hash", "axie_id", "sale_date", "level", "xp", "breed_count",
		"class", "body_shape", "collection_title", "image_url",
	}
	for _, slot := range model.Slots {
		cols = append(cols, slotColumn(slot)+"_id", slotColumn(slot)+"_stage")
	}
	return append(cols, "created_at", "modified_at")
}()

// Insert stores a sale. It returns false with a nil error when a row for the
// same (transaction_hash, axie_id) already exists; the stored row is left as is.
func (s *Store) Insert(ctx context.Context, sale model.Sale) (bool, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency("insert", float64(time.Since(start).Milliseconds()))
	}()

	args := []any{
		sale.TransactionHash, sale.AxieID, sale.SaleDate,
		sale.Snapshot.Level, sale.Snapshot.XP, sale.Snapshot.BreedCount,
		sale.Class, sale.BodyShape, sale.Title, sale.ImageURL,
	}
	for _, slot := range model.Slots {
		p, ok := sale.Snapshot.Parts[slot]
		if !ok {
			return false, fmt.Errorf("insert sale: %w: missing %s", ErrInvalidSale, slot)
		}
		args = append(args, p.PartID, p.Stage)
	}
	args = append(args, sale.CreatedAt.Unix(), sale.ModifiedAt.Unix())

	q := "INSERT INTO axie_sales (" + strings.Join(saleColumns, ", ") + ") VALUES (" +
		strings.TrimSuffix(strings.Repeat("?, ", len(saleColumns)), ", ") +
		") ON CONFLICT(transaction_hash, axie_id) DO NOTHING"

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("insert sale: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert sale: %w", err)
	}
	if n == 0 {
		metrics.RecordStoreDuplicate()
		s.logger.Debug(ctx, "sale already stored",
			logger.String("tx_hash", sale.TransactionHash),
			logger.Int64("axie_id", sale.AxieID),
		)
		return false, nil
	}
	return true, nil
}

// Get returns the stored sale for (txHash, axieID) or ErrNotFound.
func (s *Store) Get(ctx context.Context, txHash string, axieID int64) (model.Sale, error) {
	q := "SELECT " + strings.Join(saleColumns, ", ") +
		" FROM axie_sales WHERE transaction_hash = ? AND axie_id = ?"

	var sale model.Sale
	var createdAt, modifiedAt int64
	ids := make([]string, len(model.Slots))
	stages := make([]int, len(model.Slots))
	dest := []any{
		&sale.TransactionHash, &sale.AxieID, &sale.SaleDate,
		&sale.Snapshot.Level, &sale.Snapshot.XP, &sale.Snapshot.BreedCount,
		&sale.Class, &sale.BodyShape, &sale.Title, &sale.ImageURL,
	}
	for i := range model.Slots {
		dest = append(dest, &ids[i], &stages[i])
	}
	dest = append(dest, &createdAt, &modifiedAt)

	err := s.db.QueryRowContext(ctx, q, txHash, axieID).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Sale{}, ErrNotFound
	}
	if err != nil {
		return model.Sale{}, fmt.Errorf("get sale: %w", err)
	}

	sale.Snapshot.Parts = make(model.Parts, len(model.Slots))
	for i, slot := range model.Slots {
		sale.Snapshot.Parts[slot] = model.PartState{PartID: ids[i], Stage: stages[i]}
	}
	sale.CreatedAt = time.Unix(createdAt, 0).UTC()
	sale.ModifiedAt = time.Unix(modifiedAt, 0).UTC()
	return sale, nil
}

// CountSales returns the number of stored sales.
func (s *Store) CountSales(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM axie_sales").Scan(&n); err != nil {
		return 0, fmt.Errorf("count sales: %w", err)
	}
	return n, nil
}
