package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrNoAccount signals that no account for the requested provider is
// currently usable. Callers must treat it as "provider temporarily
// unusable" and move on to the next provider, never as a fatal error.
var ErrNoAccount = errors.New("no account available")

// HealthState tracks the lifecycle of one credential.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"  // minute quota exhausted, waiting for rollover
	HealthExhausted HealthState = "exhausted" // repeated server errors, cooling down
	HealthDisabled  HealthState = "disabled"  // auth failure, out for the rest of the run
)

// AccountConfig describes one credential against one provider.
type AccountConfig struct {
	Provider    string  `yaml:"provider"`
	Credential  string  `yaml:"credential"`
	MinuteQuota int     `yaml:"minute_quota"`
	DayQuota    int     `yaml:"day_quota"`
	RPS         float64 `yaml:"rps"`   // token bucket rate inside the minute window
	Burst       int     `yaml:"burst"` // token bucket burst capacity
}

// account is the pool-internal quota state for one credential. All
// mutation happens under the pool mutex.
type account struct {
	cfg         AccountConfig
	minuteUsed  int
	minuteStart time.Time
	dayUsed     int
	dayStart    time.Time
	health      HealthState
	lastUsed    time.Time
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
}

// Lease is handed out by Acquire and must be returned through Release
// with the outcome of the call it gated.
type Lease struct {
	Provider   string
	Credential string
	acct       *account
	released   bool
}

// PoolConfig tunes the server-error trip behaviour shared by all accounts.
type PoolConfig struct {
	ServerErrorThreshold uint32        `yaml:"server_error_threshold"` // consecutive failures before cooldown
	ErrorWindow          time.Duration `yaml:"error_window"`           // rolling window for failure counts
	Cooldown             time.Duration `yaml:"cooldown"`               // exhausted -> healthy interval
}

// DefaultPoolConfig matches the conservative trip settings used for
// free-tier fundamental data APIs.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		ServerErrorThreshold: 3,
		ErrorWindow:          2 * time.Minute,
		Cooldown:             5 * time.Minute,
	}
}

// Pool owns every account and is the single piece of state shared across
// concurrent entity pipelines. Quota draw is compare-and-increment under
// one mutex so N concurrent callers can never over-draw a shared quota.
type Pool struct {
	mu       sync.Mutex
	accounts map[string][]*account
	cfg      PoolConfig
	now      func() time.Time
	log      zerolog.Logger
}

// NewPool builds a pool from configured credentials. Accounts are created
// once at startup and never removed, only disabled.
func NewPool(cfg PoolConfig, accounts []AccountConfig, log zerolog.Logger) *Pool {
	p := &Pool{
		accounts: make(map[string][]*account),
		cfg:      cfg,
		now:      time.Now,
		log:      log.With().Str("component", "account_pool").Logger(),
	}
	for _, ac := range accounts {
		p.addAccount(ac)
	}
	return p
}

func (p *Pool) addAccount(cfg AccountConfig) {
	if cfg.RPS <= 0 {
		// Spread the minute quota evenly across the window by default.
		cfg.RPS = float64(cfg.MinuteQuota) / 60.0
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.MinuteQuota
	}
	a := &account{
		cfg:     cfg,
		health:  HealthHealthy,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
	}
	settings := gobreaker.Settings{
		Name:     cfg.Provider + "/" + cfg.Credential,
		Interval: p.cfg.ErrorWindow,
		Timeout:  p.cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= p.cfg.ServerErrorThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.log.Warn().
				Str("account", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("account breaker state change")
		},
	}
	a.breaker = gobreaker.NewCircuitBreaker(settings)
	p.accounts[cfg.Provider] = append(p.accounts[cfg.Provider], a)
}

// rollover resets minute/day counters on wall-clock window boundaries and
// lifts the Degraded state once its window has passed.
func (a *account) rollover(now time.Time) {
	minute := now.Truncate(time.Minute)
	if !minute.Equal(a.minuteStart) {
		a.minuteStart = minute
		a.minuteUsed = 0
		if a.health == HealthDegraded {
			a.health = HealthHealthy
		}
	}
	day := now.UTC().Truncate(24 * time.Hour)
	if !day.Equal(a.dayStart) {
		a.dayStart = day
		a.dayUsed = 0
	}
}

// usable reports whether the account can take one more call right now.
func (a *account) usable(now time.Time) bool {
	a.rollover(now)
	if a.health == HealthDisabled || a.health == HealthDegraded {
		return false
	}
	// Exhausted accounts recover through the breaker's cooldown: Open
	// means still cooling, anything else means we may probe again.
	if a.breaker.State() == gobreaker.StateOpen {
		a.health = HealthExhausted
		return false
	}
	if a.health == HealthExhausted {
		a.health = HealthHealthy
	}
	if a.cfg.MinuteQuota > 0 && a.minuteUsed >= a.cfg.MinuteQuota {
		return false
	}
	if a.cfg.DayQuota > 0 && a.dayUsed >= a.cfg.DayQuota {
		return false
	}
	return true
}

func (a *account) minuteRemaining() int {
	if a.cfg.MinuteQuota <= 0 {
		return int(^uint(0) >> 1)
	}
	return a.cfg.MinuteQuota - a.minuteUsed
}

// Acquire selects the healthy account with the most remaining minute
// quota (least recently used wins ties), draws one unit of quota, and
// returns a lease. It never blocks; exhaustion returns ErrNoAccount.
func (p *Pool) Acquire(providerID string) (*Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	skipped := make(map[*account]bool)
	for {
		var best *account
		for _, a := range p.accounts[providerID] {
			if skipped[a] || !a.usable(now) {
				continue
			}
			if best == nil ||
				a.minuteRemaining() > best.minuteRemaining() ||
				(a.minuteRemaining() == best.minuteRemaining() && a.lastUsed.Before(best.lastUsed)) {
				best = a
			}
		}
		if best == nil {
			return nil, ErrNoAccount
		}
		// Selection first, token draw second: a bucket that is out of
		// tokens just drops the account from this round's candidates.
		if !best.limiter.Allow() {
			skipped[best] = true
			continue
		}
		best.minuteUsed++
		best.dayUsed++
		best.lastUsed = now
		return &Lease{Provider: providerID, Credential: best.cfg.Credential, acct: best}, nil
	}
}

// AcquireWait behaves like Acquire but is willing to wait up to maxWait
// for a fast-expiring cooldown or minute rollover. It polls rather than
// parking on a condition so cancellation stays prompt.
func (p *Pool) AcquireWait(ctx context.Context, providerID string, maxWait time.Duration) (*Lease, error) {
	deadline := p.now().Add(maxWait)
	for {
		lease, err := p.Acquire(providerID)
		if err == nil {
			return lease, nil
		}
		if p.now().After(deadline) {
			return nil, ErrNoAccount
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// Release records the outcome of the gated call against the leased
// account. Releasing a lease twice is a no-op.
func (p *Pool) Release(lease *Lease, outcome Outcome) {
	if lease == nil || lease.released {
		return
	}
	lease.released = true

	p.mu.Lock()
	defer p.mu.Unlock()

	a := lease.acct
	now := p.now()
	a.rollover(now)

	switch outcome {
	case OutcomeSuccess:
		p.recordBreaker(a, nil)

	case OutcomeRateLimited:
		// The provider says the window is spent: zero what remains and
		// sit out until the wall-clock rollover. The call did not count
		// against the daily budget.
		a.minuteUsed = a.cfg.MinuteQuota
		if a.dayUsed > 0 {
			a.dayUsed--
		}
		a.health = HealthDegraded
		p.log.Warn().
			Str("provider", a.cfg.Provider).
			Str("credential", a.cfg.Credential).
			Msg("account rate limited, degraded until window reset")

	case OutcomeAuthError:
		a.health = HealthDisabled
		p.log.Error().
			Str("provider", a.cfg.Provider).
			Str("credential", a.cfg.Credential).
			Msg("account credential rejected, disabled for this run")

	case OutcomeServerError:
		p.recordBreaker(a, errServerOutcome)
		if a.breaker.State() == gobreaker.StateOpen {
			a.health = HealthExhausted
		}
	}
}

var errServerOutcome = errors.New("server error outcome")

// recordBreaker feeds one success or failure into the account's rolling
// failure window. When the breaker is already open the result is dropped,
// which is fine: the account is out of rotation anyway.
func (p *Pool) recordBreaker(a *account, result error) {
	_, _ = a.breaker.Execute(func() (interface{}, error) {
		return nil, result
	})
}

// Snapshot reports per-account state for health endpoints and logs.
type AccountSnapshot struct {
	Provider     string      `json:"provider"`
	Credential   string      `json:"credential"`
	Health       HealthState `json:"health"`
	MinuteUsed   int         `json:"minute_used"`
	MinuteQuota  int         `json:"minute_quota"`
	DayUsed      int         `json:"day_used"`
	DayQuota     int         `json:"day_quota"`
	BreakerState string      `json:"breaker_state"`
	LastUsed     time.Time   `json:"last_used"`
}

// Snapshot returns a point-in-time view of every account.
func (p *Pool) Snapshot() []AccountSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	var out []AccountSnapshot
	for providerID, accts := range p.accounts {
		for _, a := range accts {
			a.rollover(now)
			out = append(out, AccountSnapshot{
				Provider:     providerID,
				Credential:   a.cfg.Credential,
				Health:       a.health,
				MinuteUsed:   a.minuteUsed,
				MinuteQuota:  a.cfg.MinuteQuota,
				DayUsed:      a.dayUsed,
				DayQuota:     a.cfg.DayQuota,
				BreakerState: a.breaker.State().String(),
				LastUsed:     a.lastUsed,
			})
		}
	}
	return out
}
