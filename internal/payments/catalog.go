package payments

import (
	"fmt"
	"sort"

	"dart-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

// Pack is a purchasable bundle of coins
type Pack struct {
	Id    string
	Coins int64
	Price decimal.Decimal
}

// DefaultPacks is the catalog used when none is configured.
var DefaultPacks = []models.CoinPack{
	{Id: "starter", Coins: 1000, Price: "0.99"},
	{Id: "popular", Coins: 5500, Price: "4.99"},
	{Id: "mega", Coins: 12000, Price: "9.99"},
}

// Catalog indexes the coin packs the payment provider may report.
type Catalog struct {
	byCoins map[int64]Pack
}

func NewCatalog(packs []models.CoinPack) (*Catalog, error) {
	c := &Catalog{byCoins: make(map[int64]Pack, len(packs))}
	for i, p := range packs {
		if p.Id == "" {
			return nil, fmt.Errorf("coin pack at index %d missing id", i)
		}
		if p.Coins <= 0 {
			return nil, fmt.Errorf("coin pack %s must grant a positive amount, got %d", p.Id, p.Coins)
		}
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, fmt.Errorf("coin pack %s has invalid price %q: %w", p.Id, p.Price, err)
		}
		if !price.IsPositive() {
			return nil, fmt.Errorf("coin pack %s must have a positive price", p.Id)
		}
		if _, dup := c.byCoins[p.Coins]; dup {
			return nil, fmt.Errorf("coin pack %s duplicates amount %d", p.Id, p.Coins)
		}
		c.byCoins[p.Coins] = Pack{Id: p.Id, Coins: p.Coins, Price: price}
	}
	return c, nil
}

func (c *Catalog) ByCoins(coins int64) (Pack, bool) {
	p, ok := c.byCoins[coins]
	return p, ok
}

// Packs returns all packs ordered by size.
func (c *Catalog) Packs() []Pack {
	out := make([]Pack, 0, len(c.byCoins))
	for _, p := range c.byCoins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Coins < out[j].Coins })
	return out
}
