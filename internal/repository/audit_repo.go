package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
)

// Audit rows are append-only.

func (q *queries) InsertAuditRecord(ctx context.Context, r *domain.AuditRecord) error {
	event, err := json.Marshal(r.Event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	err = q.db.QueryRow(ctx, `
		INSERT INTO audit_logs (id, service, event_type, actor_id, reference_id, event, checksum)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, r.ID, r.Event.Service, r.Event.EventType, r.Event.ActorID, r.Event.ReferenceID, event, r.Checksum).Scan(&r.CreatedAt)
	return err
}

func (q *queries) GetAuditRecord(ctx context.Context, id string) (*domain.AuditRecord, error) {
	var (
		r     domain.AuditRecord
		event []byte
	)
	err := q.db.QueryRow(ctx,
		`SELECT id, event, checksum, created_at FROM audit_logs WHERE id = $1`, id,
	).Scan(&r.ID, &event, &r.Checksum, &r.CreatedAt)
	if err != nil {
		return nil, mapNotFound(err, domain.ErrNotFound)
	}
	if err := json.Unmarshal(event, &r.Event); err != nil {
		return nil, fmt.Errorf("decode audit event: %w", err)
	}
	return &r, nil
}
