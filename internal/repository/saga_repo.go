package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"

	"github.com/jackc/pgx/v5"
)

const sagaColumns = `id, reference_id, kind, state, plan, steps, invoice_id, error, created_at, updated_at`

func packPlan(p domain.SettlementPlan) ([]byte, error) {
	if err := p.Debit.Pack(); err != nil {
		return nil, err
	}
	for i := range p.Credits {
		if err := p.Credits[i].Pack(); err != nil {
			return nil, err
		}
	}
	return json.Marshal(p)
}

func unpackPlan(raw []byte) (domain.SettlementPlan, error) {
	var p domain.SettlementPlan
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, err
	}
	if err := p.Debit.Unpack(); err != nil {
		return p, err
	}
	for i := range p.Credits {
		if err := p.Credits[i].Unpack(); err != nil {
			return p, err
		}
	}
	return p, nil
}

func scanSaga(row pgx.Row) (*domain.Saga, error) {
	var (
		s           domain.Saga
		plan, steps []byte
	)
	err := row.Scan(&s.ID, &s.ReferenceID, &s.Kind, &s.State, &plan, &steps, &s.InvoiceID, &s.Error, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if s.Plan, err = unpackPlan(plan); err != nil {
		return nil, fmt.Errorf("decode saga plan: %w", err)
	}
	if err := json.Unmarshal(steps, &s.Steps); err != nil {
		return nil, fmt.Errorf("decode saga steps: %w", err)
	}
	return &s, nil
}

func (q *queries) InsertSaga(ctx context.Context, s *domain.Saga) error {
	plan, err := packPlan(s.Plan)
	if err != nil {
		return fmt.Errorf("encode saga plan: %w", err)
	}
	steps, err := json.Marshal(s.Steps)
	if err != nil {
		return err
	}
	err = q.db.QueryRow(ctx, `
		INSERT INTO settlement_sagas (id, reference_id, kind, state, plan, steps, invoice_id, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, s.ID, s.ReferenceID, s.Kind, s.State, plan, steps, s.InvoiceID, s.Error).Scan(&s.CreatedAt, &s.UpdatedAt)
	return mapUnique(err)
}

func (q *queries) GetSagaByReference(ctx context.Context, referenceID string) (*domain.Saga, error) {
	s, err := scanSaga(q.db.QueryRow(ctx,
		`SELECT `+sagaColumns+` FROM settlement_sagas WHERE reference_id = $1`, referenceID))
	if err != nil {
		return nil, mapNotFound(err, domain.ErrNotFound)
	}
	return s, nil
}

func (q *queries) UpdateSaga(ctx context.Context, s *domain.Saga) error {
	steps, err := json.Marshal(s.Steps)
	if err != nil {
		return err
	}
	tag, err := q.db.Exec(ctx, `
		UPDATE settlement_sagas
		SET state = $2, steps = $3, invoice_id = $4, error = $5, updated_at = NOW()
		WHERE id = $1
	`, s.ID, s.State, steps, s.InvoiceID, s.Error)
	if err != nil {
		return fmt.Errorf("update saga: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (q *queries) ListStaleSagas(ctx context.Context, before time.Time) ([]*domain.Saga, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+sagaColumns+` FROM settlement_sagas
		WHERE state = 'RUNNING' AND updated_at < $1
		ORDER BY updated_at
		LIMIT 100
	`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Saga
	for rows.Next() {
		s, err := scanSaga(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
