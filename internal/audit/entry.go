package audit

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// Entry is one immutable record in the audit chain. CurrentHash covers
// every semantic field; PreviousHash links the entry to its predecessor,
// so altering any past entry breaks every later link.
type Entry struct {
	ID            string         `json:"id"`
	Timestamp     time.Time      `json:"timestamp"`
	EventType     string         `json:"event_type"`
	UserID        string         `json:"user_id,omitempty"`
	IPAddress     string         `json:"ip_address,omitempty"`
	UserAgent     string         `json:"user_agent,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Resource      string         `json:"resource"`
	Action        string         `json:"action"`
	Status        string         `json:"status"`
	Details       map[string]any `json:"details,omitempty"`
	PreviousHash  string         `json:"previous_hash"`
	CurrentHash   string         `json:"current_hash"`
	Signature     string         `json:"signature,omitempty"`
	RetentionDays int            `json:"retention_days"`
}

// Metadata carries optional caller context for a logged event.
type Metadata struct {
	UserID        string
	IPAddress     string
	UserAgent     string
	CorrelationID string
}

// ComputeHash returns the SHA-256 over the entry's canonical fields.
// CurrentHash and Signature are excluded to avoid circularity; the
// details map serializes with sorted keys, keeping the digest stable.
func (e *Entry) ComputeHash() string {
	details, _ := json.Marshal(e.Details)

	canonical := strings.Join([]string{
		e.ID,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.EventType,
		e.Resource,
		e.Action,
		e.Status,
		string(details),
		e.PreviousHash,
	}, "\n")

	sum := sha256.Sum256([]byte(canonical))

	return hex.EncodeToString(sum[:])
}

// signingPayload is the byte sequence covered by the entry signature.
func (e *Entry) signingPayload() []byte {
	return []byte(e.CurrentHash + "|" + e.Timestamp.UTC().Format(time.RFC3339Nano) + "|" + e.PreviousHash)
}

func (e *Entry) sign(key ed25519.PrivateKey) {
	e.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(key, e.signingPayload()))
}

// VerifySignature checks the stored signature against the public key.
func (e *Entry) VerifySignature(key ed25519.PublicKey) bool {
	sig, err := base64.StdEncoding.DecodeString(e.Signature)
	if err != nil {
		return false
	}

	return ed25519.Verify(key, e.signingPayload(), sig)
}
