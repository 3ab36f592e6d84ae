package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/okian/axiesales/internal/domain/model"
)

const partsVersionID = "axie_parts_version"

// GetPart looks up a part by id. A missing part is reported with ok=false.
func (s *Store) GetPart(ctx context.Context, id string) (model.PartRecord, bool, error) {
	const q = `SELECT id, name, class, type, stage, previous_stage_id, special_genes
FROM axie_parts WHERE id = ?`

	var p model.PartRecord
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&p.ID, &p.Name, &p.Class, &p.Type, &p.Stage, &p.PreviousStageID, &p.SpecialGenes,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PartRecord{}, false, nil
	}
	if err != nil {
		return model.PartRecord{}, false, fmt.Errorf("get part %s: %w", id, err)
	}
	return p, true, nil
}

// PartsVersion returns the catalog version last stored, or "" if none.
func (s *Store) PartsVersion(ctx context.Context) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT version FROM versions WHERE id = ?`, partsVersionID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get parts version: %w", err)
	}
	return v, nil
}

// ReplaceParts upserts parts and records version in one transaction.
// Parts absent from the new set are kept; ids are never reused upstream.
func (s *Store) ReplaceParts(ctx context.Context, version string, parts []model.PartRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin parts update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const upsert = `INSERT INTO axie_parts (id, name, class, type, stage, previous_stage_id, special_genes)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	class = excluded.class,
	type = excluded.type,
	stage = excluded.stage,
	previous_stage_id = excluded.previous_stage_id,
	special_genes = excluded.special_genes`

	stmt, err := tx.PrepareContext(ctx, upsert)
	if err != nil {
		return fmt.Errorf("prepare parts upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, p := range parts {
		if _, err := stmt.ExecContext(ctx, p.ID, p.Name, p.Class, p.Type, p.Stage, p.PreviousStageID, p.SpecialGenes); err != nil {
			return fmt.Errorf("upsert part %s: %w", p.ID, err)
		}
	}

	const setVersion = `INSERT INTO versions (id, version, updated_at) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET version = excluded.version, updated_at = excluded.updated_at`
	if _, err := tx.ExecContext(ctx, setVersion, partsVersionID, version, time.Now().Unix()); err != nil {
		return fmt.Errorf("set parts version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit parts update: %w", err)
	}
	return nil
}

// CountParts returns the number of parts in the catalog table.
func (s *Store) CountParts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM axie_parts").Scan(&n); err != nil {
		return 0, fmt.Errorf("count parts: %w", err)
	}
	return n, nil
}
