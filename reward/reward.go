// Package reward grants achievements for store milestones and sustained
// efficiency.
//
// A Gate observes a crystal.Store (as its Observer) and a crystal.Monitor (as
// its EfficiencyObserver). It only records what it sees; it never reads from
// or writes to the store.
package reward

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/legendaryobs/crystal"
	"github.com/legendaryobs/crystal/internal/stats"
)

// Compile-time checks that Gate observes both the store and the monitor.
var (
	_ crystal.Observer           = (*Gate)(nil)
	_ crystal.EfficiencyObserver = (*Gate)(nil)
)

// Type identifies an achievement rule.
type Type string

// Achievement rules.
const (
	// StorageMilestone fires every 10 writes, worth 10 per write.
	StorageMilestone Type = "storage_milestone"

	// HighEfficiency fires when efficiency exceeds 90 during the first
	// minute of a 10-minute window, worth 5 per efficiency point.
	HighEfficiency Type = "high_efficiency"

	// CacheChampion fires when the hit rate exceeds 95 during the first
	// minute of a 15-minute window, worth 500.
	CacheChampion Type = "cache_champion"

	// SearchMaster fires every 100 searches, worth 250.
	SearchMaster Type = "search_master"
)

const (
	milestoneEvery   = 10
	searchEvery      = 100
	efficiencyWindow = 10 * time.Minute
	championWindow   = 15 * time.Minute
	windowOpening    = time.Minute
)

// Title returns the display title of the rule, e.g. "Storage Milestone".
func (t Type) Title() string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(t), "_", " "))
}

// Achievement is one granted reward.
type Achievement struct {
	ID     string    `json:"id"`
	Type   Type      `json:"type"`
	Title  string    `json:"title"`
	Time   time.Time `json:"time"`
	Reward int64     `json:"reward"`
	Value  float64   `json:"value"`
}

// Gate evaluates the rules and keeps the achievement log and balance.
// A Gate is safe for concurrent use by multiple goroutines.
type Gate struct {
	opts options

	mu       sync.Mutex
	log      []Achievement
	balance  int64
	fired    int64
	lastTime time.Time
	windows  map[Type]int64
}

// New creates a gate.
func New(opts ...Option) *Gate {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	if cfg.logSize <= 0 {
		cfg.logSize = DefaultLogSize
	}
	return &Gate{
		opts:    cfg,
		windows: make(map[Type]int64),
	}
}

// Stored applies the storage milestone rule.
func (g *Gate) Stored(writes int64) {
	if writes > 0 && writes%milestoneEvery == 0 {
		g.grant(StorageMilestone, writes*10, float64(writes))
	}
}

// Searched applies the search milestone rule.
func (g *Gate) Searched(searches int64) {
	if searches > 0 && searches%searchEvery == 0 {
		g.grant(SearchMaster, 250, float64(searches))
	}
}

// ObserveEfficiency applies the periodic efficiency and cache rules.
func (g *Gate) ObserveEfficiency(s crystal.Sample) {
	now := g.opts.now()

	if s.Efficiency > 90 {
		g.grantInWindow(HighEfficiency, now, efficiencyWindow, int64(s.Efficiency*5), s.Efficiency)
	}
	if s.Hits > 0 && s.HitRatio > 95 {
		g.grantInWindow(CacheChampion, now, championWindow, 500, s.HitRatio)
	}
}

// grantInWindow grants t when now falls in the opening minute of a window
// and t has not fired in that window yet.
func (g *Gate) grantInWindow(t Type, now time.Time, window time.Duration, reward int64, value float64) {
	elapsed := now.UnixNano() % int64(window)
	if elapsed >= int64(windowOpening) {
		return
	}
	index := now.UnixNano() / int64(window)

	g.mu.Lock()
	if last, ok := g.windows[t]; ok && last == index {
		g.mu.Unlock()
		return
	}
	g.windows[t] = index
	g.mu.Unlock()

	g.grant(t, reward, value)
}

func (g *Gate) grant(t Type, reward int64, value float64) {
	if g.opts.disabled {
		return
	}

	g.mu.Lock()
	at := g.opts.now()
	if !at.After(g.lastTime) {
		at = g.lastTime.Add(time.Nanosecond)
	}
	g.lastTime = at

	a := Achievement{
		ID:     uuid.NewString(),
		Type:   t,
		Title:  t.Title(),
		Time:   at,
		Reward: reward,
		Value:  value,
	}
	g.log = append(g.log, a)
	if over := len(g.log) - g.opts.logSize; over > 0 {
		g.log = append(g.log[:0], g.log[over:]...)
	}
	g.balance += reward
	g.fired++
	g.mu.Unlock()

	g.opts.stats.IncCounter(stats.MetricRewards, reward)
	g.opts.stats.IncCounter(stats.MetricAchievements, 1)
	g.opts.logger.Info("achievement granted",
		zap.String("type", string(t)),
		zap.Int64("reward", reward),
		zap.Float64("value", value),
	)
}

// Achievements returns the retained achievements, oldest first.
func (g *Gate) Achievements() []Achievement {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Achievement, len(g.log))
	copy(out, g.log)
	return out
}

// Recent returns up to n of the newest achievements, oldest first.
func (g *Gate) Recent(n int) []Achievement {
	g.mu.Lock()
	defer g.mu.Unlock()

	if n <= 0 {
		return nil
	}
	start := max(len(g.log)-n, 0)
	out := make([]Achievement, len(g.log)-start)
	copy(out, g.log[start:])
	return out
}

// Balance returns the total reward granted.
func (g *Gate) Balance() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balance
}

// Fired returns how many achievements were granted, including those dropped
// from the log.
func (g *Gate) Fired() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fired
}
