// Package cache implements the conversation scoped artifact cache used for
// expensive derived data such as per-document search indexes.
//
// Entries are keyed by (scope, resource). An entry idle for longer than the
// configured TTL is dropped, and every hit refreshes its idle timer. The cache
// is bounded; beyond capacity the least recently used entry is evicted.
//
// Reads hand out leases. A dropped value implementing io.Closer is closed once
// it is out of the cache and every lease on it has been released.
package cache

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/ptacemic/ai-dial-general-purpose-agent/logging"
)

// Defaults match a single agent process serving a handful of conversations.
const (
	DefaultCapacity = 100
	DefaultIdleTTL  = time.Hour
)

// Key builds the cache key for a (scope, resource) pair.
func Key(scope, resource string) string {
	return scope + ":" + resource
}

// Options configures a Store.
type Options struct {
	// Capacity bounds the number of entries; <= 0 uses DefaultCapacity.
	Capacity int
	// IdleTTL is how long an untouched entry survives; <= 0 uses DefaultIdleTTL.
	IdleTTL time.Duration
	// Logger receives eviction and close failures.
	Logger logging.Logger
}

// Release ends a lease. Calling it more than once is a no-op.
type Release func()

type entry[V any] struct {
	value V

	// guarded by Store.refMu
	refs    int
	dropped bool
	closed  bool
}

// Store caches values of type V. It is safe for concurrent use.
type Store[V any] struct {
	mu     sync.Mutex
	lru    *expirable.LRU[string, *entry[V]]
	group  singleflight.Group
	logger logging.Logger

	// refMu is taken after mu and after the LRU's internal lock, never before.
	refMu sync.Mutex
}

// New creates a Store.
func New[V any](optFns ...func(o *Options)) *Store[V] {
	opts := Options{Capacity: DefaultCapacity, IdleTTL: DefaultIdleTTL}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	s := &Store[V]{logger: opts.Logger}
	s.lru = expirable.NewLRU[string, *entry[V]](opts.Capacity, s.onEvict, opts.IdleTTL)
	return s
}

func (s *Store[V]) onEvict(key string, e *entry[V]) {
	s.logger.Debug("cache.evict", "key", key)
	s.drop(key, e)
}

// drop marks e as out of the cache and closes it when nobody holds a lease.
func (s *Store[V]) drop(key string, e *entry[V]) {
	s.refMu.Lock()
	e.dropped = true
	closeNow := e.refs == 0 && !e.closed
	if closeNow {
		e.closed = true
	}
	s.refMu.Unlock()
	if closeNow {
		s.closeValue(key, e.value)
	}
}

func (s *Store[V]) closeValue(key string, v V) {
	c, ok := any(v).(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		s.logger.Warn("cache.close_failed", "key", key, "error", err.Error())
	}
}

// lease pins e. It fails when e has already left the cache.
func (s *Store[V]) lease(key string, e *entry[V]) (Release, bool) {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	if e.dropped {
		return nil, false
	}
	e.refs++

	var once sync.Once
	return func() {
		once.Do(func() {
			s.refMu.Lock()
			e.refs--
			closeNow := e.dropped && e.refs == 0 && !e.closed
			if closeNow {
				e.closed = true
			}
			s.refMu.Unlock()
			if closeNow {
				s.closeValue(key, e.value)
			}
		})
	}, true
}

// Get returns the value for (scope, resource) and refreshes its idle timer.
// The value stays open until release is called, even if it is evicted
// meanwhile.
func (s *Store[V]) Get(scope, resource string) (V, Release, bool) {
	key := Key(scope, resource)

	s.mu.Lock()
	e, ok := s.lru.Get(key)
	if ok {
		// expirable.LRU does not refresh expiry on read; re-adding does.
		s.lru.Add(key, e)
	}
	s.mu.Unlock()

	var zero V
	if !ok {
		return zero, nil, false
	}
	release, ok := s.lease(key, e)
	if !ok {
		return zero, nil, false
	}
	return e.value, release, true
}

// Put stores v under (scope, resource). A replaced value is dropped like an
// evicted one.
func (s *Store[V]) Put(scope, resource string, v V) {
	s.put(Key(scope, resource), v)
}

func (s *Store[V]) put(key string, v V) *entry[V] {
	e := &entry[V]{value: v}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Add would overwrite an existing (possibly expired) entry without the
	// eviction callback; Remove runs it.
	s.lru.Remove(key)
	s.lru.Add(key, e)
	return e
}

// GetOrBuild returns the cached value or derives it with build, leased to
// the caller. Concurrent callers missing the same key share one build; a
// failed build caches nothing.
func (s *Store[V]) GetOrBuild(scope, resource string, build func() (V, error)) (V, Release, error) {
	key := Key(scope, resource)
	for {
		if v, release, ok := s.Get(scope, resource); ok {
			return v, release, nil
		}

		res, err, _ := s.group.Do(key, func() (any, error) {
			s.mu.Lock()
			e, ok := s.lru.Get(key)
			s.mu.Unlock()
			if ok {
				return e, nil
			}
			v, err := safeBuild(build)
			if err != nil {
				return nil, err
			}
			return s.put(key, v), nil
		})
		if err != nil {
			var zero V
			return zero, nil, err
		}

		e := res.(*entry[V])
		if release, ok := s.lease(key, e); ok {
			return e.value, release, nil
		}
		// Dropped before this caller could pin it; derive again.
		s.logger.Debug("cache.rebuild", "key", key)
	}
}

func safeBuild[V any](build func() (V, error)) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cache build panicked: %v", r)
		}
	}()
	v, err = build()
	if err == nil && any(v) == nil {
		err = errors.New("cache build returned nil")
	}
	return v, err
}

// Remove drops (scope, resource). The value is closed once unleased.
func (s *Store[V]) Remove(scope, resource string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Remove(Key(scope, resource))
}

// Len returns the number of live entries.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// Purge drops every entry.
func (s *Store[V]) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Purge()
}
