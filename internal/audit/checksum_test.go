package audit

import (
	"testing"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "super-secret-integrity-key"

func transferEvent(amount string) domain.AuditEvent {
	a := decimal.RequireFromString(amount)
	return domain.AuditEvent{
		Service:     "payment-service",
		EventType:   "TRANSFER_COMPLETED",
		ActorID:     "user-123",
		Amount:      &a,
		ReferenceID: "ref-abc",
		Metadata:    map[string]interface{}{"foo": "bar"},
	}
}

func TestChecksum_StableAcrossCalls(t *testing.T) {
	e := transferEvent("100.50")

	first, err := Checksum(e, testSecret)
	require.NoError(t, err)
	second, err := Checksum(e, testSecret)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestChecksum_DetectsTampering(t *testing.T) {
	base, err := Checksum(transferEvent("100.50"), testSecret)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(e *domain.AuditEvent)
	}{
		{"amount by one cent", func(e *domain.AuditEvent) {
			a := decimal.RequireFromString("100.51")
			e.Amount = &a
		}},
		{"metadata value", func(e *domain.AuditEvent) {
			e.Metadata = map[string]interface{}{"foo": "tampered"}
		}},
		{"extra metadata key", func(e *domain.AuditEvent) {
			e.Metadata = map[string]interface{}{"foo": "bar", "x": "y"}
		}},
		{"actor", func(e *domain.AuditEvent) { e.ActorID = "user-124" }},
		{"event type", func(e *domain.AuditEvent) { e.EventType = "TRANSFER_COMPENSATED" }},
		{"reference", func(e *domain.AuditEvent) { e.ReferenceID = "ref-abd" }},
		{"service", func(e *domain.AuditEvent) { e.Service = "wallet-service" }},
		{"amount removed", func(e *domain.AuditEvent) { e.Amount = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := transferEvent("100.50")
			tt.mutate(&e)
			got, err := Checksum(e, testSecret)
			require.NoError(t, err)
			assert.NotEqual(t, base, got)
		})
	}
}

func TestChecksum_SecretMatters(t *testing.T) {
	a, err := Checksum(transferEvent("100.50"), testSecret)
	require.NoError(t, err)
	b, err := Checksum(transferEvent("100.50"), "another-key")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestChecksum_EquivalentAmountsHashEqually(t *testing.T) {
	a, err := Checksum(transferEvent("100.50"), testSecret)
	require.NoError(t, err)
	b, err := Checksum(transferEvent("100.5"), testSecret)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCanonical_KeyOrder(t *testing.T) {
	e := transferEvent("100.50")
	e.Metadata = map[string]interface{}{"z": 1, "a": "<b>"}

	raw, err := Canonical(e, testSecret)
	require.NoError(t, err)
	assert.Equal(t,
		`{"service":"payment-service","eventType":"TRANSFER_COMPLETED","actorId":"user-123",`+
			`"amount":100.5,"metadata":{"a":"<b>","z":1},"referenceId":"ref-abc",`+
			`"secret":"super-secret-integrity-key"}`,
		string(raw))
}

func TestVerify(t *testing.T) {
	e := transferEvent("100.50")
	sum, err := Checksum(e, testSecret)
	require.NoError(t, err)

	assert.True(t, Verify(e, testSecret, sum))
	assert.False(t, Verify(transferEvent("100.51"), testSecret, sum))
	assert.False(t, Verify(e, testSecret, ""))
}
