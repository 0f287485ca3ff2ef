package capture

import (
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/huugi-star/potenote-scanner-sub001/cache"
	"github.com/huugi-star/potenote-scanner-sub001/config"
	"github.com/huugi-star/potenote-scanner-sub001/model"
	"github.com/huugi-star/potenote-scanner-sub001/state"
	"go.uber.org/zap"
)

const (
	// FreshHP is the hit-point value every enemy word starts with.
	FreshHP = 3
)

var (
	// ErrScanNotFound is returned for an unknown scan id.
	ErrScanNotFound = errors.New("capture: scan not found")
	// ErrNoSession is returned when a battle operation runs without an
	// active session.
	ErrNoSession = errors.New("capture: no active battle session")
)

// Engine owns the word pools and the per-word battle state machine.
// It is the only component that mutates WordEnemy hit points, the dex
// and adventure snapshots.
type Engine struct {
	c      *state.Container
	cfg    config.GameConfig
	cache  cache.Cache
	rng    *rand.Rand
	logger *zap.Logger
}

// NewEngine creates an Engine with a time-seeded RNG.
func NewEngine(c *state.Container, cfg config.GameConfig, kv cache.Cache, logger *zap.Logger) *Engine {
	return NewEngineWithRNG(c, cfg, kv, rand.New(rand.NewSource(time.Now().UnixNano())), logger)
}

// NewEngineWithRNG creates an Engine with an injected RNG for
// deterministic tests.
func NewEngineWithRNG(c *state.Container, cfg config.GameConfig, kv cache.Cache, rng *rand.Rand, logger *zap.Logger) *Engine {
	return &Engine{c: c, cfg: cfg, cache: kv, rng: rng, logger: logger}
}

// AddScan registers a new scan's word pool. Words arrive from the
// upstream OCR/LLM pipeline already extracted; every word starts fresh
// at full hit points. The active pool is filled immediately.
func (e *Engine) AddScan(title string, words []model.WordEnemy) (string, error) {
	id := uuid.New().String()
	err := e.c.Mutate(func(st *model.UserState) error {
		scan := &model.WordScan{
			ID:        id,
			Title:     title,
			CreatedAt: time.Now(),
			Words:     make([]model.WordEnemy, len(words)),
		}
		for i, w := range words {
			w.HP = FreshHP
			w.Asked = false
			w.WrongCount = 0
			scan.Words[i] = w
		}
		st.Scans[id] = scan
		e.fillPool(scan)
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// RefillPool explicitly re-rolls a scan's active pool. This is the only
// operation that resets ActiveTotal and clears a stale adventure
// snapshot; continuing an existing pool leaves both untouched.
func (e *Engine) RefillPool(scanID string) error {
	return e.c.Mutate(func(st *model.UserState) error {
		scan, ok := st.Scans[scanID]
		if !ok {
			return ErrScanNotFound
		}
		e.fillPool(scan)
		scan.Snapshot = nil
		return nil
	})
}

// fillPool copies up to ActivePoolSize word indices into the active
// subset, favoring words not yet asked and not yet captured, and
// freezes ActiveTotal at the count selected.
func (e *Engine) fillPool(scan *model.WordScan) {
	size := e.cfg.ActivePoolSize
	if size <= 0 {
		size = 21
	}

	var preferred, rest []int
	for i := range scan.Words {
		w := &scan.Words[i]
		if w.HP > 0 && !w.Asked {
			preferred = append(preferred, i)
		} else if w.HP > 0 {
			rest = append(rest, i)
		}
	}
	e.rng.Shuffle(len(preferred), func(a, b int) { preferred[a], preferred[b] = preferred[b], preferred[a] })
	e.rng.Shuffle(len(rest), func(a, b int) { rest[a], rest[b] = rest[b], rest[a] })

	active := make([]int, 0, size)
	for _, i := range append(preferred, rest...) {
		if len(active) >= size {
			break
		}
		active = append(active, i)
	}
	scan.Active = active
	scan.ActiveTotal = len(active)
}

// Progress reports a scan's capture progress for display. A snapshot
// written at session end wins over live recomputation so progress never
// rewinds after a partial re-exploration.
func (e *Engine) Progress(scanID string) (model.AdventureSnapshot, error) {
	var snap model.AdventureSnapshot
	err := e.c.View(func(st *model.UserState) error {
		scan, ok := st.Scans[scanID]
		if !ok {
			return ErrScanNotFound
		}
		if scan.Snapshot != nil {
			snap = *scan.Snapshot
			return nil
		}
		snap = liveSnapshot(scan)
		return nil
	})
	return snap, err
}

// liveSnapshot recomputes progress strictly from the active pool's
// current hit points. The denominator is the frozen ActiveTotal.
func liveSnapshot(scan *model.WordScan) model.AdventureSnapshot {
	snap := model.AdventureSnapshot{Total: scan.ActiveTotal, TakenAt: time.Now()}
	for _, i := range scan.Active {
		switch hp := scan.Words[i].HP; {
		case hp == 0:
			snap.Captured++
		case hp < FreshHP:
			snap.Defeated++
			snap.Remaining++
		default:
			snap.Remaining++
		}
	}
	return snap
}
