package stock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inMemoryLedger struct {
	mu        sync.RWMutex
	levels    map[string]int64
	movements map[string]Movement
}

// NewInMemory creates a concurrency-safe in-memory ledger for development and tests.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		levels:    make(map[string]int64),
		movements: make(map[string]Movement),
	}
}

func (l *inMemoryLedger) Move(_ context.Context, m Movement) (Movement, error) {
	if m.Quantity <= 0 {
		return Movement{}, ErrInvalidQuantity
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := movementKey(m.Kind, m.ClientRef)
	if existing, ok := l.movements[key]; ok {
		return existing, ErrDuplicateMovement
	}

	from := locationCode(m.From, m.SKU)
	to := locationCode(m.To, m.SKU)
	fromLevel := l.levels[from]
	if m.From != LocationProduction && fromLevel < m.Quantity {
		return Movement{}, ErrInsufficientStock
	}

	l.levels[from] = fromLevel - m.Quantity
	l.levels[to] += m.Quantity

	m.ID = uuid.NewString()
	m.CreatedAt = time.Now().UTC()
	m.FromLevel = l.levels[from]
	m.ToLevel = l.levels[to]
	l.movements[key] = m
	return m, nil
}

func (l *inMemoryLedger) Level(_ context.Context, location, sku string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.levels[locationCode(location, sku)], nil
}

func (l *inMemoryLedger) Levels(_ context.Context) ([]Level, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Level, 0, len(l.levels))
	for code, qty := range l.levels {
		location, sku := splitLocationCode(code)
		out = append(out, Level{Location: location, SKU: sku, Quantity: qty})
	}
	sortLevels(out)
	return out, nil
}

func sortLevels(levels []Level) {
	sort.Slice(levels, func(i, j int) bool {
		if levels[i].SKU != levels[j].SKU {
			return levels[i].SKU < levels[j].SKU
		}
		return levels[i].Location < levels[j].Location
	})
}
