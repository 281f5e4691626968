package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/trentd187/archery-club/internal/metrics"
	"github.com/trentd187/archery-club/internal/models"
	"github.com/trentd187/archery-club/internal/store"
)

const roundsKey = "rounds"

func sessionKey(id int64) string     { return fmt.Sprintf("session:%d", id) }
func roundKey(id int64) string       { return fmt.Sprintf("round:%d", id) }
func roundRangesKey(id int64) string { return fmt.Sprintf("round:%d:ranges", id) }

// Store is a read-through cache in front of a store.Store. Methods it does not override
// go straight to the wrapped store.
//
// Inside Tx reads bypass the cache, and the keys a transaction invalidates are deleted
// only after it commits, so no reader can cache a row from a transaction that rolled back.
type Store struct {
	store.Store
	cache   Cache
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	inTx    bool
	pending *[]string
}

// NewStore wraps next with c.
func NewStore(next store.Store, c Cache, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *Store {
	return &Store{Store: next, cache: c, ttl: ttl, logger: logger, metrics: m}
}

var _ store.Store = (*Store)(nil)

func (s *Store) Tx(ctx context.Context, fn func(tx store.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	var pending []string
	err := s.Store.Tx(ctx, func(tx store.Store) error {
		return fn(&Store{
			Store: tx, cache: s.cache, ttl: s.ttl, logger: s.logger, metrics: s.metrics,
			inTx: true, pending: &pending,
		})
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, pending...)
	return nil
}

// invalidate deletes keys now, or after commit when called inside Tx.
func (s *Store) invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if s.inTx {
		*s.pending = append(*s.pending, keys...)
		return
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.WarnContext(ctx, "cache invalidation failed", "keys", keys, "error", err)
	}
}

// readThrough returns the cached value for key, or calls load and caches its result.
// The key's generation is read before load; if a write invalidated the key while load
// ran, the loaded value is already stale and is returned without being cached.
func readThrough[T any](ctx context.Context, s *Store, key string, load func() (T, error)) (T, error) {
	if s.inTx {
		return load()
	}

	raw, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "cache read failed", "key", key, "error", err)
	}
	if hit {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			s.metrics.CacheResult("hit")
			return v, nil
		}
		s.logger.WarnContext(ctx, "dropping undecodable cache entry", "key", key)
	}
	s.metrics.CacheResult("miss")

	// Without a generation there is no safe way to store the result, so skip caching.
	version, verr := s.cache.Version(ctx, key)
	if verr != nil {
		s.logger.WarnContext(ctx, "cache version read failed", "key", key, "error", verr)
	}

	v, err := load()
	if err != nil || verr != nil {
		return v, err
	}
	raw, err = json.Marshal(v)
	if err != nil {
		return v, nil
	}
	stored, err := s.cache.SetIfVersion(ctx, key, version, raw, s.ttl)
	switch {
	case err != nil:
		s.logger.WarnContext(ctx, "cache write failed", "key", key, "error", err)
	case !stored:
		s.logger.DebugContext(ctx, "cache key invalidated during load, not stored", "key", key)
	}
	return v, nil
}

func (s *Store) LoadSession(ctx context.Context, id int64) (*models.Session, error) {
	return readThrough(ctx, s, sessionKey(id), func() (*models.Session, error) {
		return s.Store.LoadSession(ctx, id)
	})
}

func (s *Store) LoadRoundRanges(ctx context.Context, roundID int64) ([]models.RoundRange, error) {
	return readThrough(ctx, s, roundRangesKey(roundID), func() ([]models.RoundRange, error) {
		return s.Store.LoadRoundRanges(ctx, roundID)
	})
}

func (s *Store) GetRound(ctx context.Context, id int64) (*models.Round, error) {
	return readThrough(ctx, s, roundKey(id), func() (*models.Round, error) {
		return s.Store.GetRound(ctx, id)
	})
}

func (s *Store) ListRounds(ctx context.Context) ([]models.Round, error) {
	return readThrough(ctx, s, roundsKey, func() ([]models.Round, error) {
		return s.Store.ListRounds(ctx)
	})
}

func (s *Store) SaveEnd(ctx context.Context, sessionID, roundRangeID int64, endNo int, arrows []models.Arrow) error {
	if err := s.Store.SaveEnd(ctx, sessionID, roundRangeID, endNo, arrows); err != nil {
		return err
	}
	s.invalidate(ctx, sessionKey(sessionID))
	return nil
}

func (s *Store) FinalizeSession(ctx context.Context, sessionID int64) error {
	if err := s.Store.FinalizeSession(ctx, sessionID); err != nil {
		return err
	}
	s.invalidate(ctx, sessionKey(sessionID))
	return nil
}

func (s *Store) CreateRound(ctx context.Context, r *models.Round) error {
	if err := s.Store.CreateRound(ctx, r); err != nil {
		return err
	}
	s.invalidate(ctx, roundsKey, roundKey(r.ID), roundRangesKey(r.ID))
	return nil
}
