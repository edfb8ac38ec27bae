// Package holdings values wallet balances against registry prices.
package holdings

import (
	"memefolio/pkg/models"
	"memefolio/pkg/utils"

	"github.com/shopspring/decimal"
)

// Filter selects the coins that take part in a view.
type Filter func(models.Coin) bool

func All(models.Coin) bool { return true }

func RewardsOnly(c models.Coin) bool { return c.Rewards }

// Aggregate returns one holding per coin passing filter, in coin order, and the USD total
// of the nonzero balances. Missing balances count as zero.
func Aggregate(coins []models.Coin, balances map[string]decimal.Decimal, filter Filter) (decimal.Decimal, []models.Holding) {
	if filter == nil {
		filter = All
	}
	total := decimal.Zero
	list := make([]models.Holding, 0, len(coins))
	for _, c := range coins {
		if !filter(c) {
			continue
		}
		bal := balances[c.ID]
		value := decimal.Zero
		if !bal.IsZero() {
			value = bal.Mul(c.PriceDecimal())
			total = total.Add(value)
		}
		list = append(list, models.Holding{
			Coin:         c,
			Balance:      bal,
			UserBalance:  bal.StringFixed(utils.FiatDecimals),
			UserUsdValue: value.StringFixed(utils.FiatDecimals),
		})
	}
	return total, list
}

// View is a list of holdings with its formatted total.
type View struct {
	Total    string           `json:"total"`
	Holdings []models.Holding `json:"holdings"`
}

// Portfolio is the full and rewards-only valuation of one balance set.
type Portfolio struct {
	Total        decimal.Decimal
	Holdings     []models.Holding
	RewardsTotal decimal.Decimal
	Rewards      []models.Holding
}

func Compute(coins []models.Coin, balances map[string]decimal.Decimal) Portfolio {
	var p Portfolio
	p.Total, p.Holdings = Aggregate(coins, balances, All)
	p.RewardsTotal, p.Rewards = Aggregate(coins, balances, RewardsOnly)
	return p
}

func (p Portfolio) HoldingsView() View {
	return View{Total: p.Total.StringFixed(utils.FiatDecimals), Holdings: nonNil(p.Holdings)}
}

func (p Portfolio) RewardsView() View {
	return View{Total: p.RewardsTotal.StringFixed(utils.FiatDecimals), Holdings: nonNil(p.Rewards)}
}

func nonNil(h []models.Holding) []models.Holding {
	if h == nil {
		return []models.Holding{}
	}
	return h
}
