package gacha

import (
	"time"

	"github.com/huugi-star/potenote-scanner-sub001/catalog"
	"github.com/huugi-star/potenote-scanner-sub001/config"
	"github.com/huugi-star/potenote-scanner-sub001/game/progress"
	"github.com/huugi-star/potenote-scanner-sub001/model"
	"github.com/huugi-star/potenote-scanner-sub001/state"
	"go.uber.org/zap"
)

// CostType selects how a single pull is billed.
type CostType string

const (
	PayCoins  CostType = "coins"
	PayTicket CostType = "ticket"
)

// PullResult reports one resolved pull.
type PullResult struct {
	ItemID string          `json:"item_id"`
	Name   string          `json:"name"`
	Rarity catalog.Rarity  `json:"rarity"`
	IsNew  bool            `json:"is_new"`
	Qty    int             `json:"qty"`
	Pity   model.GachaPity `json:"pity"`
}

// Engine resolves gacha pulls: billing, rarity selection with pity
// guarantees, weighted item picks and inventory stacking. A pull either
// fully commits or, on an insufficient-resource failure, leaves the
// state tree untouched.
type Engine struct {
	c      *state.Container
	cat    *catalog.Catalog
	cfg    config.GameConfig
	rng    RandomSource
	logger *zap.Logger
}

// NewEngine creates an Engine with the crypto-backed RNG.
func NewEngine(c *state.Container, cat *catalog.Catalog, cfg config.GameConfig, logger *zap.Logger) *Engine {
	return NewEngineWithRNG(c, cat, cfg, DefaultRNG(), logger)
}

// NewEngineWithRNG creates an Engine with an injected random source.
func NewEngineWithRNG(c *state.Container, cat *catalog.Catalog, cfg config.GameConfig, rng RandomSource, logger *zap.Logger) *Engine {
	return &Engine{c: c, cat: cat, cfg: cfg, rng: rng, logger: logger}
}

// Pull performs one billed pull.
func (e *Engine) Pull(payWith CostType) (PullResult, error) {
	var res PullResult
	err := e.c.Mutate(func(st *model.UserState) error {
		switch payWith {
		case PayTicket:
			if err := progress.DebitTicket(&st.Progression); err != nil {
				return err
			}
		default:
			if err := progress.DebitCoins(&st.Progression, e.cat.Pricing.SinglePull); err != nil {
				return err
			}
		}
		res = e.resolve(st)
		return nil
	})
	if err != nil {
		return PullResult{}, err
	}
	e.logger.Debug("gacha pull",
		zap.String("item_id", res.ItemID),
		zap.String("rarity", string(res.Rarity)))
	return res, nil
}

// TenPull performs ten strictly sequential pulls billed at the bundled
// price. Later pulls in the batch see pity state advanced by earlier
// ones.
func (e *Engine) TenPull() ([]PullResult, error) {
	var results []PullResult
	err := e.c.Mutate(func(st *model.UserState) error {
		if err := progress.DebitCoins(&st.Progression, e.cat.Pricing.TenPull); err != nil {
			return err
		}
		results = make([]PullResult, 0, 10)
		for i := 0; i < 10; i++ {
			results = append(results, e.resolve(st))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// resolve runs one already-billed pull against st.
func (e *Engine) resolve(st *model.UserState) PullResult {
	rarity := e.rollRarity(&st.Pity)
	e.applyPity(&st.Pity, rarity)
	item := e.pickItem(rarity)
	isNew, qty := addToInventory(st, item.ID, e.cfg.MaxStack)
	return PullResult{
		ItemID: item.ID,
		Name:   item.Name,
		Rarity: rarity,
		IsNew:  isNew,
		Qty:    qty,
		Pity:   st.Pity,
	}
}

// rollRarity picks the tier for the next pull. Pity guarantees take
// precedence over the percentage table: at the SSR threshold the pull
// is forced SSR; at the SR threshold it is forced SR-or-better, rolled
// between SR and SSR by their relative configured rates.
func (e *Engine) rollRarity(pity *model.GachaPity) catalog.Rarity {
	if pity.SSRCounter+1 >= e.cfg.SSRGuarantee {
		return catalog.RaritySSR
	}
	if pity.SRCounter+1 >= e.cfg.SRGuarantee {
		ssr := e.cat.Rates[catalog.RaritySSR]
		sr := e.cat.Rates[catalog.RaritySR]
		if e.rng.Float64()*(ssr+sr) < ssr {
			return catalog.RaritySSR
		}
		return catalog.RaritySR
	}

	draw := e.rng.Float64() * 100
	cum := 0.0
	for _, tier := range catalog.Tiers {
		cum += e.cat.Rates[tier]
		if draw < cum {
			return tier
		}
	}
	return catalog.RarityN
}

// applyPity advances both counters then applies the reset rules:
// SR-or-higher clears the SR counter, only SSR clears the SSR counter.
func (e *Engine) applyPity(pity *model.GachaPity, rarity catalog.Rarity) {
	pity.SRCounter++
	pity.SSRCounter++
	switch rarity {
	case catalog.RaritySSR:
		pity.SRCounter = 0
		pity.SSRCounter = 0
	case catalog.RaritySR:
		pity.SRCounter = 0
	}
}

// pickItem does a weighted pick within the rarity's pool.
func (e *Engine) pickItem(rarity catalog.Rarity) catalog.Item {
	pool := e.cat.Pool(rarity)
	total := 0
	for _, it := range pool {
		total += it.Weight
	}
	draw := e.rng.Float64() * float64(total)
	acc := 0.0
	for _, it := range pool {
		acc += float64(it.Weight)
		if draw < acc {
			return it
		}
	}
	return pool[len(pool)-1]
}

// addToInventory inserts or stacks the item, capping at maxStack.
// Returns whether the item is new plus the resulting quantity.
func addToInventory(st *model.UserState, itemID string, maxStack int) (bool, int) {
	for i := range st.Inventory {
		if st.Inventory[i].ItemID == itemID {
			if st.Inventory[i].Qty < maxStack {
				st.Inventory[i].Qty++
			}
			return false, st.Inventory[i].Qty
		}
	}
	st.Inventory = append(st.Inventory, model.InventoryEntry{
		ItemID:     itemID,
		Qty:        1,
		ObtainedAt: time.Now(),
	})
	return true, 1
}
