// Package idempotency makes money-movement requests safe to retry. A client
// supplies an Idempotency-Key; the first request carrying it is executed and
// its response is stored, later requests with the same key and payload get
// that response back.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bmptec/ledger-core/internal/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrNotFound     = errors.New("idempotency key not found")
	ErrHashMismatch = errors.New("idempotency key reused with a different request")
	ErrInProgress   = errors.New("idempotency key in progress")
	ErrInvalidKey   = errors.New("idempotency key is malformed")
)

const (
	MaxKeyLength = 128

	cachePrefix = "ledger:idem:"
	defaultPoll = 50 * time.Millisecond
)

// Backend is the durable half of the store.
type Backend interface {
	GetIdempotencyKey(ctx context.Context, key string) (*repository.IdempotencyKey, error)
	ReserveIdempotencyKey(ctx context.Context, arg repository.ReserveIdempotencyKeyParams) (bool, error)
	FinalizeIdempotencyKey(ctx context.Context, arg repository.FinalizeIdempotencyKeyParams) (*repository.IdempotencyKey, error)
	ReleaseIdempotencyKey(ctx context.Context, key, requestHash string) error
}

// Request identifies one attempt at a keyed operation.
type Request struct {
	Key         string
	Fingerprint string
	Method      string
	Path        string
}

// NewRequest fingerprints method, path and body under key.
func NewRequest(key, method, path string, body []byte) (Request, error) {
	if err := ValidateKey(key); err != nil {
		return Request{}, err
	}
	return Request{Key: key, Fingerprint: Fingerprint(method, path, body), Method: method, Path: path}, nil
}

func ValidateKey(key string) error {
	if key == "" || len(key) > MaxKeyLength {
		return ErrInvalidKey
	}
	for i := 0; i < len(key); i++ {
		if c := key[i]; c < 0x21 || c > 0x7e {
			return ErrInvalidKey
		}
	}
	return nil
}

func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Record is a stored response.
type Record struct {
	Key         string `json:"key"`
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status"`
	Body        []byte `json:"body"`
	ContentType string `json:"content_type"`
	Source      string `json:"-"`
}

// Store keeps finished responses in Postgres and mirrors them to Redis when a
// client is configured. Reservations live only in Postgres.
type Store struct {
	redis   redis.Cmdable
	backend Backend
	ttl     time.Duration
	poll    time.Duration
}

func NewStore(rdb redis.Cmdable, backend Backend, ttl time.Duration) *Store {
	return &Store{redis: rdb, backend: backend, ttl: ttl, poll: defaultPoll}
}

// Begin settles req against the stored state of its key. It returns the
// stored response when the key already finished, waiting for an in-flight
// holder if needed. A nil record with a nil error means the caller now owns
// the key and must call Finish or Release.
func (s *Store) Begin(ctx context.Context, req Request) (*Record, error) {
	rec, err := s.Lookup(ctx, req.Key, req.Fingerprint)
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, ErrInProgress):
		return s.WaitForCompletion(ctx, req.Key, req.Fingerprint)
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	owned, err := s.backend.ReserveIdempotencyKey(ctx, repository.ReserveIdempotencyKeyParams{
		IdempotencyKey: req.Key,
		RequestHash:    req.Fingerprint,
		Method:         req.Method,
		Path:           req.Path,
	})
	if err != nil {
		return nil, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if owned {
		return nil, nil
	}
	// Lost the race to a concurrent request with the same key.
	return s.WaitForCompletion(ctx, req.Key, req.Fingerprint)
}

// Finish stores the response produced for an owned key.
func (s *Store) Finish(ctx context.Context, req Request, status int, body []byte, contentType string) (*Record, error) {
	row, err := s.backend.FinalizeIdempotencyKey(ctx, repository.FinalizeIdempotencyKeyParams{
		ResponseStatus: int32(status),
		ResponseBody:   body,
		ContentType:    contentType,
		IdempotencyKey: req.Key,
		RequestHash:    req.Fingerprint,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finalize idempotency key: %w", err)
	}

	rec := fromRow(row)
	s.mirror(ctx, rec)
	return &rec, nil
}

// Release gives up an owned key without storing a response, so the next
// request with the key runs again.
func (s *Store) Release(ctx context.Context, req Request) error {
	if err := s.backend.ReleaseIdempotencyKey(ctx, req.Key, req.Fingerprint); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// Lookup returns the finished response for key. Redis is consulted first and
// misses fall through to Postgres.
func (s *Store) Lookup(ctx context.Context, key, fingerprint string) (*Record, error) {
	if rec, ok := s.cached(ctx, key); ok {
		if rec.Fingerprint != fingerprint {
			return nil, ErrHashMismatch
		}
		return rec, nil
	}

	row, err := s.backend.GetIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if row.RequestHash != fingerprint {
		return nil, ErrHashMismatch
	}
	if row.InProgress {
		return nil, ErrInProgress
	}

	rec := fromRow(row)
	s.mirror(ctx, rec)
	return &rec, nil
}

// WaitForCompletion polls until the request holding key finishes or ctx ends.
func (s *Store) WaitForCompletion(ctx context.Context, key, fingerprint string) (*Record, error) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		rec, err := s.Lookup(ctx, key, fingerprint)
		if !errors.Is(err, ErrInProgress) {
			return rec, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func fromRow(row *repository.IdempotencyKey) Record {
	return Record{
		Key:         row.IdempotencyKey,
		Fingerprint: row.RequestHash,
		Status:      int(row.ResponseStatus),
		Body:        row.ResponseBody,
		ContentType: row.ContentType,
		Source:      "postgres",
	}
}

func (s *Store) cached(ctx context.Context, key string) (*Record, bool) {
	if s.redis == nil {
		return nil, false
	}
	raw, err := s.redis.Get(ctx, cachePrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("idempotency cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		zap.L().Warn("idempotency cache entry unreadable", zap.Error(err))
		return nil, false
	}
	rec.Source = "redis"
	return &rec, true
}

func (s *Store) mirror(ctx context.Context, rec Record) {
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		zap.L().Warn("encode idempotency cache entry", zap.Error(err))
		return
	}
	if err := s.redis.Set(ctx, cachePrefix+rec.Key, payload, s.ttl).Err(); err != nil {
		zap.L().Warn("idempotency cache write failed", zap.Error(err))
	}
}
