package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/repository"
	"github.com/phu-boop/Freelance-Marketplace-sub002/pkg/id"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	auditRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_audit_records_total",
			Help: "Audit records appended, by event type",
		},
		[]string{"event_type"},
	)

	auditChecksumMismatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_audit_checksum_mismatch_total",
			Help: "Audit records whose stored checksum no longer matches their payload",
		},
	)

	auditStreamErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_audit_stream_errors_total",
			Help: "Audit records that could not be written to the audit stream",
		},
	)

	auditDroppedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_audit_dropped_events_total",
			Help: "Audit events lost because the audit log append failed, by event type",
		},
		[]string{"event_type"},
	)
)

// MessageWriter is the part of *kafka.Writer the recorder needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Recorder appends checksummed events to the audit log and mirrors them to
// the compliance stream.
type Recorder struct {
	repo    repository.AuditRepository
	stream  MessageWriter
	service string
	secret  string
	logger  *zap.Logger
}

// NewRecorder builds a recorder. stream may be nil when no broker is configured.
func NewRecorder(repo repository.AuditRepository, stream MessageWriter, service, secret string, logger *zap.Logger) *Recorder {
	return &Recorder{
		repo:    repo,
		stream:  stream,
		service: service,
		secret:  secret,
		logger:  logger,
	}
}

// Entry is one ledger event to record.
type Entry struct {
	EventType   string
	ActorID     string
	Amount      *decimal.Decimal
	ReferenceID string
	Metadata    map[string]interface{}
}

// streamMessage is the wire shape consumed by the compliance reader.
type streamMessage struct {
	ID          string                 `json:"id"`
	Service     string                 `json:"service"`
	EventType   string                 `json:"eventType"`
	ActorID     string                 `json:"actorId"`
	Amount      *decimal.Decimal       `json:"amount,omitempty"`
	ReferenceID string                 `json:"referenceId,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Checksum    string                 `json:"checksum"`
	CreatedAt   time.Time              `json:"createdAt"`
}

func (r *Recorder) Record(ctx context.Context, e Entry) (*domain.AuditRecord, error) {
	meta, err := normalize(e.Metadata)
	if err != nil {
		return nil, err
	}

	event := domain.AuditEvent{
		Service:     r.service,
		EventType:   e.EventType,
		ActorID:     e.ActorID,
		Amount:      e.Amount,
		ReferenceID: e.ReferenceID,
		Metadata:    meta,
	}
	sum, err := Checksum(event, r.secret)
	if err != nil {
		return nil, err
	}

	rec := &domain.AuditRecord{ID: id.New(), Event: event, Checksum: sum}
	if err := r.repo.InsertAuditRecord(ctx, rec); err != nil {
		r.logger.Error("failed to append audit record",
			zap.String("event_type", e.EventType),
			zap.String("reference_id", e.ReferenceID),
			zap.Error(err))
		return nil, fmt.Errorf("append audit record: %w", err)
	}
	auditRecordsTotal.WithLabelValues(e.EventType).Inc()

	r.publish(ctx, rec)
	return rec, nil
}

// Emit records e without returning failures. Ledger mutations are already
// committed when their audit event is emitted, so a failed append leaves the
// ledger without its audit trail and is escalated at error level.
func (r *Recorder) Emit(ctx context.Context, e Entry) {
	if r == nil {
		return
	}
	if _, err := r.Record(ctx, e); err != nil {
		auditDroppedEvents.WithLabelValues(e.EventType).Inc()
		r.logger.Error("audit event dropped",
			zap.String("event_type", e.EventType),
			zap.String("reference_id", e.ReferenceID),
			zap.Error(err))
	}
}

func (r *Recorder) publish(ctx context.Context, rec *domain.AuditRecord) {
	if r.stream == nil {
		return
	}
	payload, err := json.Marshal(streamMessage{
		ID:          rec.ID,
		Service:     rec.Event.Service,
		EventType:   rec.Event.EventType,
		ActorID:     rec.Event.ActorID,
		Amount:      rec.Event.Amount,
		ReferenceID: rec.Event.ReferenceID,
		Metadata:    rec.Event.Metadata,
		Checksum:    rec.Checksum,
		CreatedAt:   rec.CreatedAt,
	})
	if err != nil {
		r.logger.Error("failed to marshal audit message", zap.String("audit_id", rec.ID), zap.Error(err))
		return
	}

	key := rec.Event.ReferenceID
	if key == "" {
		key = rec.ID
	}
	if err := r.stream.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: payload}); err != nil {
		auditStreamErrors.Inc()
		r.logger.Error("failed to publish audit record",
			zap.String("audit_id", rec.ID),
			zap.Error(err))
	}
}

// Verify reloads a stored record and checks it against its checksum.
// A mismatch is escalated at error level and returned as ErrChecksumMismatch.
func (r *Recorder) Verify(ctx context.Context, auditID string) (*domain.AuditRecord, error) {
	rec, err := r.repo.GetAuditRecord(ctx, auditID)
	if err != nil {
		return nil, err
	}
	if !Verify(rec.Event, r.secret, rec.Checksum) {
		auditChecksumMismatches.Inc()
		r.logger.Error("audit checksum mismatch",
			zap.String("audit_id", rec.ID),
			zap.String("event_type", rec.Event.EventType),
			zap.String("actor_id", rec.Event.ActorID),
			zap.String("reference_id", rec.Event.ReferenceID))
		return rec, fmt.Errorf("audit record %s: %w", rec.ID, domain.ErrChecksumMismatch)
	}
	return rec, nil
}

// Matches checks a caller-supplied event against expected with the service secret.
func (r *Recorder) Matches(e domain.AuditEvent, expected string) bool {
	return Verify(e, r.secret, expected)
}

// normalize gives metadata the shape it has after a JSON round trip through
// storage, so a checksum computed now still matches after reload.
func normalize(m map[string]interface{}) (map[string]interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode audit metadata: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode audit metadata: %w", err)
	}
	return out, nil
}
