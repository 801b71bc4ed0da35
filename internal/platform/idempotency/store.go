package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long completed checkout responses stay replayable.
const DefaultTTL = 24 * time.Hour

// State is the lifecycle of a stored key.
type State string

const (
	StateInFlight  State = "in_flight"
	StateCompleted State = "completed"
)

// Outcome describes what Acquire found for a key.
type Outcome int

const (
	// OutcomeAcquired means the caller now owns the key and must Complete or Release it.
	OutcomeAcquired Outcome = iota
	// OutcomeReplay means a finished response exists and should be written back verbatim.
	OutcomeReplay
	// OutcomeInFlight means another request holds the key.
	OutcomeInFlight
)

// Claim identifies one attempt to use an idempotency key.
type Claim struct {
	Key         string
	Fingerprint string
	Now         time.Time
	TTL         time.Duration
}

func (c Claim) normalized() Claim {
	c.Now = c.Now.UTC()
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	return c
}

// Entry is the stored state for a key.
type Entry struct {
	Key            string
	Fingerprint    string
	State          State
	ResponseStatus int
	ResponseHeader map[string][]string
	ResponseBody   []byte
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ExpiresAt      time.Time
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Reservation is the result of Acquire.
type Reservation struct {
	Outcome Outcome
	Entry   Entry
}

// Response is the captured handler output kept for replays.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Store persists keys and their captured responses.
type Store interface {
	Acquire(ctx context.Context, claim Claim) (Reservation, error)
	Complete(ctx context.Context, claim Claim, resp Response) error
	Release(ctx context.Context, claim Claim) error
	Purge(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key already used for a different request")

func documentID(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func newInFlightEntry(claim Claim) Entry {
	return Entry{
		Key:         claim.Key,
		Fingerprint: claim.Fingerprint,
		State:       StateInFlight,
		CreatedAt:   claim.Now,
		UpdatedAt:   claim.Now,
		ExpiresAt:   claim.Now.Add(claim.TTL),
	}
}

func completeEntry(entry Entry, claim Claim, resp Response) Entry {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = claim.Now
	}
	entry.Key = claim.Key
	entry.Fingerprint = claim.Fingerprint
	entry.State = StateCompleted
	entry.ResponseStatus = resp.Status
	entry.ResponseHeader = replayableHeader(resp.Header)
	entry.ResponseBody = nil
	if len(resp.Body) > 0 {
		entry.ResponseBody = append([]byte(nil), resp.Body...)
	}
	entry.UpdatedAt = claim.Now
	entry.ExpiresAt = claim.Now.Add(claim.TTL)
	return entry
}

// replayableHeader drops hop-by-hop and per-response headers.
func replayableHeader(header http.Header) map[string][]string {
	out := make(map[string][]string, len(header))
	for name, values := range header {
		canonical := http.CanonicalHeaderKey(name)
		switch canonical {
		case "Content-Length", "Date", "Connection", "Keep-Alive", "Transfer-Encoding", "Upgrade", "Trailer", "Te",
			"Proxy-Authenticate", "Proxy-Authorization", "Traceparent", "X-Request-Id":
			continue
		}
		out[canonical] = append([]string(nil), values...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
