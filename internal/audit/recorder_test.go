package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/repository/memory"
	dto "github.com/prometheus/client_model/go"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func TestRecorder_RecordPersistsAndStreams(t *testing.T) {
	store := memory.NewStore()
	writer := new(MockWriter)
	writer.On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
		if len(msgs) != 1 || string(msgs[0].Key) != "ref-1" {
			return false
		}
		var body map[string]interface{}
		return json.Unmarshal(msgs[0].Value, &body) == nil && body["eventType"] == domain.EventDepositCompleted
	})).Return(nil).Once()

	rec := NewRecorder(store, writer, "payment-service", testSecret, zap.NewNop())
	amount := decimal.RequireFromString("25.00")
	got, err := rec.Record(context.Background(), Entry{
		EventType:   domain.EventDepositCompleted,
		ActorID:     "user-1",
		Amount:      &amount,
		ReferenceID: "ref-1",
		Metadata:    map[string]interface{}{"wallet_id": "w-1", "count": 2},
	})
	require.NoError(t, err)
	writer.AssertExpectations(t)

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "payment-service", got.Event.Service)

	verified, err := rec.Verify(context.Background(), got.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Checksum, verified.Checksum)
}

func TestRecorder_StreamFailureDoesNotFailRecord(t *testing.T) {
	store := memory.NewStore()
	writer := new(MockWriter)
	writer.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	rec := NewRecorder(store, writer, "payment-service", testSecret, zap.NewNop())
	got, err := rec.Record(context.Background(), Entry{EventType: domain.EventFundsCleared, ActorID: "user-1"})
	require.NoError(t, err)

	_, err = store.GetAuditRecord(context.Background(), got.ID)
	assert.NoError(t, err)
}

func TestRecorder_VerifyDetectsSecretRotation(t *testing.T) {
	store := memory.NewStore()
	amount := decimal.RequireFromString("100.50")
	got, err := NewRecorder(store, nil, "payment-service", testSecret, zap.NewNop()).
		Record(context.Background(), Entry{
			EventType: domain.EventTransferCompleted,
			ActorID:   "user-123",
			Amount:    &amount,
			Metadata:  map[string]interface{}{"foo": "bar"},
		})
	require.NoError(t, err)

	other := NewRecorder(store, nil, "payment-service", "rotated-key", zap.NewNop())
	_, err = other.Verify(context.Background(), got.ID)
	assert.ErrorIs(t, err, domain.ErrChecksumMismatch)
}

func TestRecorder_VerifyUnknownRecord(t *testing.T) {
	rec := NewRecorder(memory.NewStore(), nil, "payment-service", testSecret, zap.NewNop())
	_, err := rec.Verify(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecorder_EmitOnNilRecorder(t *testing.T) {
	var rec *Recorder
	assert.NotPanics(t, func() {
		rec.Emit(context.Background(), Entry{EventType: domain.EventFundsCleared})
	})
}

type failingAuditRepo struct{}

func (failingAuditRepo) InsertAuditRecord(ctx context.Context, r *domain.AuditRecord) error {
	return errors.New("disk full")
}

func (failingAuditRepo) GetAuditRecord(ctx context.Context, id string) (*domain.AuditRecord, error) {
	return nil, domain.ErrNotFound
}

func droppedEvents(t *testing.T, eventType string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, auditDroppedEvents.WithLabelValues(eventType).Write(&m))
	return m.GetCounter().GetValue()
}

func TestRecorder_EmitEscalatesDroppedEvents(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	rec := NewRecorder(failingAuditRepo{}, nil, "payment-service", testSecret, zap.New(core))
	before := droppedEvents(t, domain.EventChargebackProcessed)

	rec.Emit(context.Background(), Entry{
		EventType:   domain.EventChargebackProcessed,
		ActorID:     "admin-1",
		ReferenceID: "job-1:debit:chargeback",
	})

	assert.Equal(t, before+1, droppedEvents(t, domain.EventChargebackProcessed))
	dropped := logs.FilterMessage("audit event dropped").All()
	require.Len(t, dropped, 1)
	assert.Equal(t, zapcore.ErrorLevel, dropped[0].Level)
	assert.Empty(t, logs.FilterLevelExact(zapcore.WarnLevel).All())
}
