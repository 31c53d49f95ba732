package analytics

import "strings"

// TokenTotal is the amount of one collateral token backing the supply.
type TokenTotal struct {
	Name  string  `json:"name"`
	Total float64 `json:"total"`
}

// Holdings maps token symbol to the amount a strategy holds.
type Holdings map[string]float64

// BlendConfig names the strategy whose holdings of BlendToken are spread back
// over the stable buckets.
type BlendConfig struct {
	PrimaryStrategy  string
	FallbackStrategy string
	BlendToken       string
}

// DefaultBlend targets the OUSD meta strategy, falling back to the LUSD one.
var DefaultBlend = BlendConfig{
	PrimaryStrategy:  "ousd_metastrat",
	FallbackStrategy: "lusd_metastrat",
	BlendToken:       "OUSD",
}

// Share is a collateral token's blended total and percentage of the whole.
type Share struct {
	Name       string  `json:"name"`
	Total      float64 `json:"total"`
	Percentage float64 `json:"percentage"`
}

// Allocation computes each collateral token's share of the grand total.
//
// The BlendToken held by the selected strategy (primary, else fallback) is
// pro-rated onto each collateral token in proportion to that token's part of
// the strategy's holdings of collateral tokens. With neither strategy present
// nothing is added and percentages are of the raw totals. Output order
// follows collateral.
func Allocation(collateral []TokenTotal, strategies map[string]Holdings, cfg BlendConfig) []Share {
	adjusted := make([]float64, len(collateral))
	for i, c := range collateral {
		adjusted[i] = c.Total
	}

	if strat, ok := pickStrategy(strategies, cfg); ok {
		blended := holding(strat, cfg.BlendToken)

		var secondary float64
		for _, c := range collateral {
			if strings.EqualFold(c.Name, cfg.BlendToken) {
				continue
			}
			secondary += holding(strat, c.Name)
		}

		if blended > 0 && secondary > 0 {
			for i, c := range collateral {
				if strings.EqualFold(c.Name, cfg.BlendToken) {
					continue
				}
				adjusted[i] += blended * holding(strat, c.Name) / secondary
			}
		}
	}

	var grand float64
	for _, v := range adjusted {
		grand += v
	}

	out := make([]Share, len(collateral))
	for i, c := range collateral {
		out[i] = Share{Name: c.Name, Total: adjusted[i]}
		if grand > 0 {
			out[i].Percentage = adjusted[i] / grand * 100
		}
	}
	return out
}

func pickStrategy(strategies map[string]Holdings, cfg BlendConfig) (Holdings, bool) {
	if s, ok := strategies[cfg.PrimaryStrategy]; ok && cfg.PrimaryStrategy != "" {
		return s, true
	}
	if s, ok := strategies[cfg.FallbackStrategy]; ok && cfg.FallbackStrategy != "" {
		return s, true
	}
	return nil, false
}

// holding looks a symbol up case-insensitively.
func holding(h Holdings, symbol string) float64 {
	if v, ok := h[symbol]; ok {
		return v
	}
	for k, v := range h {
		if strings.EqualFold(k, symbol) {
			return v
		}
	}
	return 0
}
