package idempotency

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/Anthobetto/UNMI-sub001/internal/platform/firestore"
)

const (
	defaultCollection  = "checkoutIdempotencyKeys"
	defaultMaxAttempts = 5
	defaultPurgeLimit  = 100
)

// FirestoreOption customises the FirestoreStore behaviour.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection holding idempotency keys.
func WithCollection(name string) FirestoreOption {
	return func(store *FirestoreStore) {
		if name != "" {
			store.collection = name
		}
	}
}

// WithMaxAttempts configures transaction retry attempts.
func WithMaxAttempts(attempts int) FirestoreOption {
	return func(store *FirestoreStore) {
		if attempts > 0 {
			store.maxAttempts = attempts
		}
	}
}

// FirestoreStore implements Store on Cloud Firestore so replays work across instances.
type FirestoreStore struct {
	client      *firestore.Client
	collection  string
	maxAttempts int
}

// NewFirestoreStore constructs a Firestore-backed store.
func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) (*FirestoreStore, error) {
	if client == nil {
		return nil, errors.New("idempotency: firestore client is required")
	}
	store := &FirestoreStore{
		client:      client,
		collection:  defaultCollection,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *FirestoreStore) doc(key string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(documentID(key))
}

// Acquire implements Store inside a transaction so two instances cannot both own a key.
func (s *FirestoreStore) Acquire(ctx context.Context, claim Claim) (Reservation, error) {
	claim = claim.normalized()
	ref := s.doc(claim.Key)

	var result Reservation
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil {
			var doc entryDocument
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			entry := doc.entry()
			if !entry.expired(claim.Now) {
				if entry.Fingerprint != claim.Fingerprint {
					return ErrFingerprintMismatch
				}
				result = Reservation{Outcome: OutcomeInFlight, Entry: entry}
				if entry.State == StateCompleted {
					result.Outcome = OutcomeReplay
				}
				return nil
			}
		}

		entry := newInFlightEntry(claim)
		if err := tx.Set(ref, documentFromEntry(entry)); err != nil {
			return err
		}
		result = Reservation{Outcome: OutcomeAcquired, Entry: entry}
		return nil
	}, firestore.MaxAttempts(s.maxAttempts))
	if err != nil {
		if errors.Is(err, ErrFingerprintMismatch) {
			return Reservation{}, err
		}
		return Reservation{}, pfirestore.WrapError("idempotency.acquire", err)
	}
	return result, nil
}

// Complete implements Store.
func (s *FirestoreStore) Complete(ctx context.Context, claim Claim, resp Response) error {
	claim = claim.normalized()
	ref := s.doc(claim.Key)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var current Entry
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var doc entryDocument
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			current = doc.entry()
			if current.Fingerprint != claim.Fingerprint {
				return ErrFingerprintMismatch
			}
		case status.Code(err) != codes.NotFound:
			return err
		}
		return tx.Set(ref, documentFromEntry(completeEntry(current, claim, resp)))
	}, firestore.MaxAttempts(s.maxAttempts))
	if err != nil && !errors.Is(err, ErrFingerprintMismatch) {
		return pfirestore.WrapError("idempotency.complete", err)
	}
	return err
}

// Release implements Store.
func (s *FirestoreStore) Release(ctx context.Context, claim Claim) error {
	_, err := s.doc(claim.Key).Delete(ctx)
	if err == nil || status.Code(err) == codes.NotFound {
		return nil
	}
	return pfirestore.WrapError("idempotency.release", err)
}

// Purge deletes up to limit expired keys in one batch.
func (s *FirestoreStore) Purge(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultPurgeLimit
	}
	docs, err := s.client.Collection(s.collection).
		Where("expiresAt", "<=", now.UTC()).
		Limit(limit).
		Documents(ctx).
		GetAll()
	if err != nil {
		return 0, pfirestore.WrapError("idempotency.purge", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	bw := s.client.BulkWriter(ctx)
	for _, doc := range docs {
		if _, err := bw.Delete(doc.Ref); err != nil {
			bw.End()
			return 0, pfirestore.WrapError("idempotency.purge", err)
		}
	}
	bw.End()
	return len(docs), nil
}

type entryDocument struct {
	Key            string              `firestore:"key"`
	Fingerprint    string              `firestore:"fingerprint"`
	State          string              `firestore:"state"`
	ResponseStatus int                 `firestore:"responseStatus"`
	ResponseHeader map[string][]string `firestore:"responseHeader"`
	ResponseBody   []byte              `firestore:"responseBody"`
	CreatedAt      time.Time           `firestore:"createdAt"`
	UpdatedAt      time.Time           `firestore:"updatedAt"`
	ExpiresAt      time.Time           `firestore:"expiresAt"`
}

func documentFromEntry(e Entry) entryDocument {
	return entryDocument{
		Key:            e.Key,
		Fingerprint:    e.Fingerprint,
		State:          string(e.State),
		ResponseStatus: e.ResponseStatus,
		ResponseHeader: e.ResponseHeader,
		ResponseBody:   e.ResponseBody,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
		ExpiresAt:      e.ExpiresAt,
	}
}

func (d entryDocument) entry() Entry {
	return Entry{
		Key:            d.Key,
		Fingerprint:    d.Fingerprint,
		State:          State(d.State),
		ResponseStatus: d.ResponseStatus,
		ResponseHeader: d.ResponseHeader,
		ResponseBody:   d.ResponseBody,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		ExpiresAt:      d.ExpiresAt,
	}
}
