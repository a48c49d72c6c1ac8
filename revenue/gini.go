// Package revenue computes aggregate bank statistics and evaluates the
// configurable bank revenue expression over them.
package revenue

import (
	"slices"

	"github.com/shopspring/decimal"

	"banker/models"
)

var two = decimal.NewFromInt(2)

// Gini computes the Gini coefficient of per-owner balances:
//
//	G = (2 * Σ(i * v_i)) / (n * Σ v_i) - (n + 1) / n
//
// with v sorted ascending and i starting at 1. The result is rounded half-even
// to two decimal places. An empty list or a zero total yields 0.
func Gini(balances []decimal.Decimal) decimal.Decimal {
	n := len(balances)
	if n == 0 {
		return decimal.Zero
	}

	sorted := slices.Clone(balances)
	slices.SortFunc(sorted, func(a, b decimal.Decimal) int { return a.Cmp(b) })

	sum := decimal.Zero
	weighted := decimal.Zero
	for i, v := range sorted {
		sum = sum.Add(v)
		weighted = weighted.Add(v.Mul(decimal.NewFromInt(int64(i + 1))))
	}
	if sum.IsZero() {
		return decimal.Zero
	}

	count := decimal.NewFromInt(int64(n))
	g := two.Mul(weighted).Div(count.Mul(sum)).
		Sub(count.Add(decimal.NewFromInt(1)).Div(count))
	return g.RoundBank(models.BalanceScale)
}

// BankStats holds the aggregate values bound to the revenue expression variables
type BankStats struct {
	Total    decimal.Decimal // x
	Average  decimal.Decimal // a
	Accounts int             // n
	Holders  int             // c
	Gini     decimal.Decimal // g
}

// ComputeStats aggregates account balances of a bank. The Gini coefficient is
// computed over per-owner totals, not per account.
func ComputeStats(accounts []*models.Account) BankStats {
	stats := BankStats{
		Total:    decimal.Zero,
		Average:  decimal.Zero,
		Accounts: len(accounts),
		Gini:     decimal.Zero,
	}
	if len(accounts) == 0 {
		return stats
	}

	byOwner := make(map[int64]decimal.Decimal)
	for _, a := range accounts {
		stats.Total = stats.Total.Add(a.Balance)
		byOwner[a.OwnerID] = byOwner[a.OwnerID].Add(a.Balance)
	}
	stats.Holders = len(byOwner)
	stats.Average = models.RoundAmount(stats.Total.Div(decimal.NewFromInt(int64(len(accounts)))))

	perOwner := make([]decimal.Decimal, 0, len(byOwner))
	for _, total := range byOwner {
		perOwner = append(perOwner, total)
	}
	stats.Gini = Gini(perOwner)

	return stats
}
