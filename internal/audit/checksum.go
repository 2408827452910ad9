// Package audit computes and verifies tamper-evident checksums over
// ledger events and appends the checksummed records to the audit log.
package audit

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
)

// canonicalEvent fixes the key order of the hashed document. Map keys inside
// metadata are sorted by encoding/json.
type canonicalEvent struct {
	Service     string                 `json:"service"`
	EventType   string                 `json:"eventType"`
	ActorID     string                 `json:"actorId"`
	Amount      *json.Number           `json:"amount"`
	Metadata    map[string]interface{} `json:"metadata"`
	ReferenceID string                 `json:"referenceId"`
	Secret      string                 `json:"secret"`
}

// Canonical returns the exact bytes that are hashed for e.
func Canonical(e domain.AuditEvent, secret string) ([]byte, error) {
	doc := canonicalEvent{
		Service:     e.Service,
		EventType:   e.EventType,
		ActorID:     e.ActorID,
		Metadata:    e.Metadata,
		ReferenceID: e.ReferenceID,
		Secret:      secret,
	}
	if e.Amount != nil {
		// 100.50 and 100.5 are the same amount and hash the same.
		n := json.Number(e.Amount.String())
		doc.Amount = &n
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode audit event: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Checksum is the hex SHA-256 of the canonical event plus secret.
func Checksum(e domain.AuditEvent, secret string) (string, error) {
	raw, err := Canonical(e, secret)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Verify recomputes the checksum of e and compares it with expected.
func Verify(e domain.AuditEvent, secret, expected string) bool {
	got, err := Checksum(e, secret)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}
