// Package budget tracks per-provider daily spend against configured limits.
package budget

import (
	"math"
	"sync"
	"time"
)

// dateLayout is the calendar-day key. Days roll over at midnight UTC.
const dateLayout = "2006-01-02"

// tolerance absorbs float accumulation error when comparing spend to limits.
const tolerance = 1e-9

// ProviderBudget is one provider's spend for the current UTC day.
// DailyLimit <= 0 means the provider has no daily ceiling.
type ProviderBudget struct {
	DailyLimit float64 `json:"daily_limit"`
	DailySpent float64 `json:"daily_spent"`
	Reserved   float64 `json:"reserved"`
	LastReset  string  `json:"last_reset"`
}

// Unlimited reports whether the budget has no ceiling.
func (b ProviderBudget) Unlimited() bool { return b.DailyLimit <= 0 }

// Remaining is the spend still available today, net of reservations.
func (b ProviderBudget) Remaining() float64 {
	if b.Unlimited() {
		return math.Inf(1)
	}
	return math.Max(0, b.DailyLimit-b.DailySpent-b.Reserved)
}

func (b ProviderBudget) fits(cost float64) bool {
	if b.Unlimited() {
		return true
	}
	return b.DailySpent+b.Reserved+cost <= b.DailyLimit+tolerance
}

// Status is a read-only snapshot of one provider's budget.
type Status struct {
	DailyLimit         float64 `json:"daily_limit"`
	DailySpent         float64 `json:"daily_spent"`
	Reserved           float64 `json:"reserved"`
	Remaining          float64 `json:"remaining"`
	UtilizationPercent float64 `json:"utilization_percent"`
	Unlimited          bool    `json:"unlimited"`
	Date               string  `json:"date"`
}

type entry struct {
	mu     sync.Mutex
	budget ProviderBudget
}

// rollover zeroes spend when the stored day differs from today. Caller holds e.mu.
func (e *entry) rollover(today string) {
	if e.budget.LastReset == today {
		return
	}
	e.budget.DailySpent = 0
	e.budget.Reserved = 0
	e.budget.LastReset = today
}

// Ledger owns per-provider daily budgets. Each provider's budget has its own
// lock so check-and-reserve is atomic per provider.
type Ledger struct {
	mu           sync.RWMutex
	entries      map[string]*entry
	limits       map[string]float64
	defaultLimit float64

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.nowFunc = now
		}
	}
}

// WithDefaultLimit sets the daily limit applied to unconfigured providers.
func WithDefaultLimit(limit float64) Option {
	return func(l *Ledger) {
		l.defaultLimit = limit
	}
}

// NewLedger creates an empty ledger.
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{
		entries: make(map[string]*entry),
		limits:  make(map[string]float64),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) today() string {
	return l.nowFunc().UTC().Format(dateLayout)
}

// SetLimit installs the provider's daily limit. Spend recorded today is kept.
func (l *Ledger) SetLimit(provider string, limit float64) {
	l.mu.Lock()
	l.limits[provider] = limit
	e, ok := l.entries[provider]
	l.mu.Unlock()

	if ok {
		e.mu.Lock()
		e.budget.DailyLimit = limit
		e.mu.Unlock()
	}
}

func (l *Ledger) limitFor(provider string) float64 {
	if limit, ok := l.limits[provider]; ok {
		return limit
	}
	return l.defaultLimit
}

// get returns the provider's entry, creating it on first reference.
func (l *Ledger) get(provider string) *entry {
	l.mu.RLock()
	e, ok := l.entries[provider]
	l.mu.RUnlock()
	if ok {
		return e
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok = l.entries[provider]; ok {
		return e
	}
	e = &entry{budget: ProviderBudget{
		DailyLimit: l.limitFor(provider),
		LastReset:  l.today(),
	}}
	l.entries[provider] = e
	return e
}

// CheckBudget reports whether cost fits in today's remaining budget.
func (l *Ledger) CheckBudget(provider string, cost float64) bool {
	e := l.get(provider)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rollover(l.today())
	return e.budget.fits(clampCost(cost))
}

// RecordSpending adds cost to today's spend.
func (l *Ledger) RecordSpending(provider string, cost float64) {
	e := l.get(provider)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rollover(l.today())
	e.budget.DailySpent += clampCost(cost)
}

// Budget returns a snapshot of the provider's budget for today.
func (l *Ledger) Budget(provider string) ProviderBudget {
	e := l.get(provider)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rollover(l.today())
	return e.budget
}

// Reservation holds budget for an in-flight request. Exactly one of Commit
// or Release takes effect; later calls are no-ops.
type Reservation struct {
	ledger   *Ledger
	provider string
	cost     float64
	date     string

	once sync.Once
}

// Reserve atomically checks that cost fits today's budget and holds it.
// It returns false when the budget would be exceeded.
func (l *Ledger) Reserve(provider string, cost float64) (*Reservation, bool) {
	cost = clampCost(cost)
	e := l.get(provider)
	e.mu.Lock()
	defer e.mu.Unlock()

	today := l.today()
	e.rollover(today)
	if !e.budget.fits(cost) {
		return nil, false
	}
	e.budget.Reserved += cost
	return &Reservation{ledger: l, provider: provider, cost: cost, date: today}, true
}

// Commit converts the held amount into recorded spend.
func (r *Reservation) Commit() {
	r.once.Do(func() { r.settle(true) })
}

// Release returns the held amount without recording spend.
func (r *Reservation) Release() {
	r.once.Do(func() { r.settle(false) })
}

func (r *Reservation) settle(spend bool) {
	e := r.ledger.get(r.provider)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rollover(r.ledger.today())

	// A reservation taken before a rollover was already cleared by it.
	if e.budget.LastReset == r.date {
		e.budget.Reserved = math.Max(0, e.budget.Reserved-r.cost)
	}
	if spend {
		e.budget.DailySpent += r.cost
	}
}

// Status returns a snapshot of every budget referenced so far.
func (l *Ledger) Status() map[string]Status {
	l.mu.RLock()
	entries := make(map[string]*entry, len(l.entries))
	for name, e := range l.entries {
		entries[name] = e
	}
	l.mu.RUnlock()

	today := l.today()
	out := make(map[string]Status, len(entries))
	for name, e := range entries {
		e.mu.Lock()
		e.rollover(today)
		b := e.budget
		e.mu.Unlock()

		st := Status{
			DailyLimit: b.DailyLimit,
			DailySpent: b.DailySpent,
			Reserved:   b.Reserved,
			Unlimited:  b.Unlimited(),
			Date:       b.LastReset,
		}
		if !b.Unlimited() {
			st.Remaining = b.Remaining()
			st.UtilizationPercent = b.DailySpent / b.DailyLimit * 100
		}
		out[name] = st
	}
	return out
}

// Reset discards all recorded spend. Limits are kept.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]*entry)
}

func clampCost(cost float64) float64 {
	if cost < 0 || math.IsNaN(cost) {
		return 0
	}
	return cost
}
