package question

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrLoad is returned when the question bank source is unreadable or empty.
// Callers degrade to free conversation.
var ErrLoad = errors.New("question bank unavailable")

// Source is the tabular store the bank is read from.
// Implemented by storage.Store.
type Source interface {
	ListQuestions() ([]Record, error)
}

// Load reads the bank from src. Rows without question text are dropped, since
// they can never be asked and would keep the survey from ever completing.
func Load(src Source) (Bank, error) {
	records, err := src.ListQuestions()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}

	bank := make(Bank, 0, len(records))
	for _, r := range records {
		if !r.Selectable() {
			slog.Warn("skipping question without text", "id", r.ID)
			continue
		}
		bank = append(bank, r)
	}
	if len(bank) == 0 {
		return nil, fmt.Errorf("%w: no questions", ErrLoad)
	}
	return bank, nil
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// CachedLoader shares one bank load between sessions starting at the same
// time and keeps the result for ttl.
type CachedLoader struct {
	src   Source
	clock Clock
	ttl   time.Duration
	group singleflight.Group

	mu       sync.RWMutex
	cached   Bank
	cachedAt time.Time
}

// NewCachedLoader creates a CachedLoader with a 5-minute TTL.
func NewCachedLoader(src Source) *CachedLoader {
	return NewCachedLoaderWithClock(src, realClock{}, 5*time.Minute)
}

// NewCachedLoaderWithClock creates a CachedLoader with a custom clock (for testing).
func NewCachedLoaderWithClock(src Source, clock Clock, ttl time.Duration) *CachedLoader {
	return &CachedLoader{src: src, clock: clock, ttl: ttl}
}

// Bank returns the cached bank, loading it when missing or expired.
// Load failures are not cached.
func (l *CachedLoader) Bank(ctx context.Context) (Bank, error) {
	l.mu.RLock()
	if l.cached != nil && l.clock.Now().Before(l.cachedAt.Add(l.ttl)) {
		b := l.cached
		l.mu.RUnlock()
		return b, nil
	}
	l.mu.RUnlock()

	ch := l.group.DoChan("bank", func() (any, error) {
		b, err := Load(l.src)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.cached = b
		l.cachedAt = l.clock.Now()
		l.mu.Unlock()
		return b, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Bank), nil
	}
}

// Invalidate drops the cached bank so the next call reloads it.
func (l *CachedLoader) Invalidate() {
	l.mu.Lock()
	l.cached = nil
	l.mu.Unlock()
	l.group.Forget("bank")
}
