package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/huugi-star/potenote-scanner-sub001/config"
	"github.com/huugi-star/potenote-scanner-sub001/model"
	"github.com/huugi-star/potenote-scanner-sub001/state"
	"go.uber.org/zap"
)

// Typed resource failures. Validation happens before any mutation, so a
// failed operation leaves the state tree untouched.
var (
	ErrInsufficientCoins   = errors.New("progress: insufficient coins")
	ErrInsufficientTickets = errors.New("progress: insufficient tickets")
	ErrInsufficientStamina = errors.New("progress: insufficient stamina")
)

// LimitError reports an exhausted daily allowance. It carries the
// feature name so the caller can render a user-facing message.
type LimitError struct {
	Feature string
	Limit   int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("progress: daily limit reached for %s (%d/day)", e.Feature, e.Limit)
}

// Allowance describes a feature's remaining daily budget.
type Allowance struct {
	Feature   string `json:"feature"`
	Limit     int    `json:"limit"`
	Used      int    `json:"used"`
	Remaining int    `json:"remaining"`
	Unlimited bool   `json:"unlimited"`
}

// Ledger owns the scalar progression slice of the user state: currency,
// tickets, stamina, the VIP flag and all daily/lifetime counters. Other
// engines never touch these fields directly.
type Ledger struct {
	c      *state.Container
	cfg    config.GameConfig
	logger *zap.Logger
}

// NewLedger creates a Ledger bound to the state container.
func NewLedger(c *state.Container, cfg config.GameConfig, logger *zap.Logger) *Ledger {
	return &Ledger{c: c, cfg: cfg, logger: logger}
}

// Today returns the current ISO calendar date. All daily-rollover checks
// in the codebase go through this one helper so reset semantics stay
// identical across features.
func Today() string { return time.Now().Format("2006-01-02") }

// effectiveCount returns today's usage for a counter: a counter stamped
// with an older date counts as zero without being rewritten, so read
// paths stay pure.
func effectiveCount(dc *model.DailyCounter) int {
	if dc == nil || dc.Date != Today() {
		return 0
	}
	return dc.Count
}

// ---- currency / tickets / stamina ----

// SpendCoins deducts amount, failing with ErrInsufficientCoins and no
// mutation when the balance is short.
func (l *Ledger) SpendCoins(amount int) error {
	return l.c.Mutate(func(st *model.UserState) error {
		if st.Progression.Coins < amount {
			return ErrInsufficientCoins
		}
		st.Progression.Coins -= amount
		return nil
	})
}

// AddCoins credits amount.
func (l *Ledger) AddCoins(amount int) error {
	return l.c.Mutate(func(st *model.UserState) error {
		st.Progression.Coins += amount
		return nil
	})
}

// AddTickets credits n gacha tickets.
func (l *Ledger) AddTickets(n int) error {
	return l.c.Mutate(func(st *model.UserState) error {
		st.Progression.Tickets += n
		return nil
	})
}

// UseTicket consumes one ticket.
func (l *Ledger) UseTicket() error {
	return l.c.Mutate(func(st *model.UserState) error {
		if st.Progression.Tickets < 1 {
			return ErrInsufficientTickets
		}
		st.Progression.Tickets--
		return nil
	})
}

// UseStamina consumes amount stamina.
func (l *Ledger) UseStamina(amount int) error {
	return l.c.Mutate(func(st *model.UserState) error {
		if st.Progression.Stamina < amount {
			return ErrInsufficientStamina
		}
		st.Progression.Stamina -= amount
		return nil
	})
}

// RestoreStamina credits amount stamina, clamped to the configured max.
// Driven by the regen scheduler tick and by consumable items.
func (l *Ledger) RestoreStamina(amount int) error {
	return l.c.Mutate(func(st *model.UserState) error {
		st.Progression.Stamina += amount
		if st.Progression.Stamina > l.cfg.MaxStamina {
			st.Progression.Stamina = l.cfg.MaxStamina
		}
		return nil
	})
}

// DebitCoins deducts amount from p, validating first. Exposed so engines
// that must bill and reward inside one atomic state mutation (gacha)
// keep resource semantics in this package.
func DebitCoins(p *model.Progression, amount int) error {
	if p.Coins < amount {
		return ErrInsufficientCoins
	}
	p.Coins -= amount
	return nil
}

// DebitTicket consumes one ticket from p, validating first.
func DebitTicket(p *model.Progression) error {
	if p.Tickets < 1 {
		return ErrInsufficientTickets
	}
	p.Tickets--
	return nil
}

// ---- daily limits ----

// limitFor resolves the per-day cap for a feature under the user's tier.
// A VIP cap of 0 means unlimited.
func (l *Ledger) limitFor(feature string, vip bool) (limit int, unlimited bool) {
	if vip {
		limit, ok := l.cfg.VIPDailyLimits[feature]
		if !ok || limit == 0 {
			return 0, true
		}
		return limit, false
	}
	return l.cfg.DailyLimits[feature], false
}

// CheckDailyLimit reports the remaining allowance for a feature without
// mutating anything, so callers can display it before committing.
func (l *Ledger) CheckDailyLimit(feature string) (Allowance, error) {
	var a Allowance
	err := l.c.View(func(st *model.UserState) error {
		limit, unlimited := l.limitFor(feature, l.vipActive(&st.Progression))
		used := effectiveCount(st.Progression.DailyCounters[feature])
		a = Allowance{Feature: feature, Limit: limit, Used: used, Unlimited: unlimited}
		if !unlimited {
			a.Remaining = limit - used
			if a.Remaining < 0 {
				a.Remaining = 0
			}
		}
		return nil
	})
	return a, err
}

// ConsumeDailyLimit re-validates the allowance and increments the
// feature's counter, rolling it over to today first when stale. Callers
// invoke this exactly once per committed action.
func (l *Ledger) ConsumeDailyLimit(feature string) error {
	return l.c.Mutate(func(st *model.UserState) error {
		limit, unlimited := l.limitFor(feature, l.vipActive(&st.Progression))
		dc := st.Progression.DailyCounters[feature]
		if dc == nil || dc.Date != Today() {
			dc = &model.DailyCounter{Date: Today()}
			st.Progression.DailyCounters[feature] = dc
		}
		if !unlimited && dc.Count >= limit {
			return &LimitError{Feature: feature, Limit: limit}
		}
		dc.Count++
		return nil
	})
}

// ---- VIP ----

func (l *Ledger) vipActive(p *model.Progression) bool {
	if !p.VIP {
		return false
	}
	if p.VIPExpiresAt != nil && time.Now().After(*p.VIPExpiresAt) {
		return false
	}
	return true
}

// SetVIP grants (or revokes) VIP status with an optional expiry.
func (l *Ledger) SetVIP(on bool, expiresAt *time.Time) error {
	return l.c.Mutate(func(st *model.UserState) error {
		st.Progression.VIP = on
		st.Progression.VIPExpiresAt = expiresAt
		return nil
	})
}

// ---- login bonus ----

// GrantLoginBonus pays the daily login bonus once per calendar day and
// stamps LastLoginDate. Returns the coins granted (0 when already paid).
func (l *Ledger) GrantLoginBonus() (int, error) {
	granted := 0
	err := l.c.Mutate(func(st *model.UserState) error {
		if st.Progression.LastLoginDate == Today() {
			return nil
		}
		bonus := l.cfg.LoginBonusCoins
		if l.vipActive(&st.Progression) {
			bonus *= l.cfg.VIPBonusFactor
		}
		st.Progression.Coins += bonus
		st.Progression.LastLoginDate = Today()
		granted = bonus
		return nil
	})
	if err != nil {
		return 0, err
	}
	if granted > 0 {
		l.logger.Info("login bonus granted",
			zap.String("user_id", l.c.UserID()),
			zap.Int("coins", granted))
	}
	return granted, nil
}

// ---- lifetime counters ----

// CountScan bumps the lifetime scan counter.
func (l *Ledger) CountScan() error {
	return l.c.Mutate(func(st *model.UserState) error {
		st.Progression.TotalScans++
		return nil
	})
}

// CountQuiz bumps the lifetime quiz counter plus correct-answer tally.
func (l *Ledger) CountQuiz(correctAnswers int) error {
	return l.c.Mutate(func(st *model.UserState) error {
		st.Progression.TotalQuizzes++
		st.Progression.TotalCorrectAnswers += correctAnswers
		return nil
	})
}

// AddDistance accumulates traveled map distance.
func (l *Ledger) AddDistance(km float64) error {
	return l.c.Mutate(func(st *model.UserState) error {
		st.Progression.TotalDistance += km
		return nil
	})
}
