package orchestrator

import (
	"context"
	"sort"
	"strings"

	"github.com/quantfold/scalpbot/internal/domain"
)

// Universe is the ranked set of candidate symbols for this run.
type Universe struct {
	Symbols    []string
	Discovered bool
}

// BuildUniverse resolves the trading universe. A non-empty static list wins;
// otherwise candidates are discovered from the venue's 24h tickers, filtered
// to tradable USDT-quoted symbols, ranked by turnover then volume, and capped
// at topN. Discovery failure falls back to the configured default symbol.
func BuildUniverse(ctx context.Context, gw domain.Gateway, static []string, topN int, fallback string) Universe {
	if len(static) > 0 {
		return Universe{Symbols: static}
	}
	if topN < 1 {
		topN = 10
	}
	stats, err := gw.GetTickers(ctx)
	if err == nil && len(stats) > 0 {
		filtered := stats[:0:0]
		for _, s := range stats {
			if s.Tradable && strings.HasSuffix(s.Symbol, "USDT") {
				filtered = append(filtered, s)
			}
		}
		sort.SliceStable(filtered, func(i, j int) bool {
			if filtered[i].Turnover24h != filtered[j].Turnover24h {
				return filtered[i].Turnover24h > filtered[j].Turnover24h
			}
			return filtered[i].Volume24h > filtered[j].Volume24h
		})
		if len(filtered) > topN {
			filtered = filtered[:topN]
		}
		if len(filtered) > 0 {
			syms := make([]string, len(filtered))
			for i, s := range filtered {
				syms[i] = s.Symbol
			}
			return Universe{Symbols: syms, Discovered: true}
		}
	}
	return Universe{Symbols: []string{fallback}}
}

// TopN returns up to n symbols from ranked, in order, skipping exclusions.
func TopN(ranked []string, n int, exclude map[string]bool) []string {
	out := make([]string, 0, n)
	for _, s := range ranked {
		if exclude[s] {
			continue
		}
		out = append(out, s)
		if len(out) >= n {
			break
		}
	}
	return out
}
