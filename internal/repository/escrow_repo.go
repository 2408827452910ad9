package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"

	"github.com/jackc/pgx/v5"
)

const escrowColumns = `
	id, contract_id, milestone_id, payer_id, amount::text, cost_center, status,
	release, requested_by, approved_by, created_at, updated_at`

func scanEscrowHold(row pgx.Row) (*domain.EscrowHold, error) {
	var (
		h       domain.EscrowHold
		amount  string
		release []byte
	)
	err := row.Scan(
		&h.ID,
		&h.ContractID,
		&h.MilestoneID,
		&h.PayerID,
		&amount,
		&h.CostCenter,
		&h.Status,
		&release,
		&h.RequestedBy,
		&h.ApprovedBy,
		&h.CreatedAt,
		&h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if h.Amount, err = parseDecimal(amount); err != nil {
		return nil, err
	}
	if len(release) > 0 && string(release) != "null" {
		h.Release = &domain.EscrowRelease{}
		if err := json.Unmarshal(release, h.Release); err != nil {
			return nil, fmt.Errorf("decode escrow release: %w", err)
		}
	}
	return &h, nil
}

func encodeRelease(r *domain.EscrowRelease) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

func (q *queries) InsertEscrowHold(ctx context.Context, h *domain.EscrowHold) error {
	release, err := encodeRelease(h.Release)
	if err != nil {
		return fmt.Errorf("encode escrow release: %w", err)
	}
	err = q.db.QueryRow(ctx, `
		INSERT INTO escrow_holds (
			id, contract_id, milestone_id, payer_id, amount, cost_center, status,
			release, requested_by, approved_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`,
		h.ID,
		h.ContractID,
		h.MilestoneID,
		h.PayerID,
		h.Amount.String(),
		h.CostCenter,
		h.Status,
		release,
		h.RequestedBy,
		h.ApprovedBy,
	).Scan(&h.CreatedAt, &h.UpdatedAt)
	return mapUnique(err)
}

func (q *queries) GetEscrowHold(ctx context.Context, id string) (*domain.EscrowHold, error) {
	h, err := scanEscrowHold(q.db.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrow_holds WHERE id = $1`, id))
	if err != nil {
		return nil, mapNotFound(err, domain.ErrNotFound)
	}
	return h, nil
}

func (q *queries) GetEscrowHoldByMilestone(ctx context.Context, contractID, milestoneID string) (*domain.EscrowHold, error) {
	h, err := scanEscrowHold(q.db.QueryRow(ctx,
		`SELECT `+escrowColumns+` FROM escrow_holds WHERE contract_id = $1 AND milestone_id = $2`,
		contractID, milestoneID))
	if err != nil {
		return nil, mapNotFound(err, domain.ErrNotFound)
	}
	return h, nil
}

func (q *queries) ListEscrowHolds(ctx context.Context, contractID string) ([]*domain.EscrowHold, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+escrowColumns+` FROM escrow_holds
		WHERE contract_id = $1
		ORDER BY created_at, id
	`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.EscrowHold
	for rows.Next() {
		h, err := scanEscrowHold(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (q *queries) UpdateEscrowHold(ctx context.Context, h *domain.EscrowHold, from domain.EscrowStatus) error {
	release, err := encodeRelease(h.Release)
	if err != nil {
		return fmt.Errorf("encode escrow release: %w", err)
	}
	err = q.db.QueryRow(ctx, `
		UPDATE escrow_holds
		SET status = $3, release = $4, requested_by = $5, approved_by = $6, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING updated_at
	`, h.ID, from, h.Status, release, h.RequestedBy, h.ApprovedBy).Scan(&h.UpdatedAt)
	if err != nil {
		return mapNotFound(err, fmt.Errorf("hold %s is not %s: %w", h.ID, from, domain.ErrEscrowStateConflict))
	}
	return nil
}
