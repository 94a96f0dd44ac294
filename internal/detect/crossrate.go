package detect

import (
	"github.com/arbiscan/arbiscan/internal/domain"
)

// crossRateCandidates compares native JPY books against the FX-implied JPY
// view of international USDT books. The pass only pairs quotes of
// different kinds: native-vs-native discrepancies already belong to the
// direct strategy.
func crossRateCandidates(quotes []domain.Quote, p params) []domain.Opportunity {
	var native, converted []domain.Quote
	for _, q := range quotes {
		switch q.Kind {
		case domain.KindNativeJPY:
			native = append(native, q)
		case domain.KindConvertedJPY:
			converted = append(converted, q)
		}
	}

	var out []domain.Opportunity
	for _, n := range native {
		for _, c := range converted {
			// Buy the implied-FX leg, sell domestic.
			if opp, ok := pairCandidate(domain.OpportunityCrossRate, c, n, p); ok {
				out = append(out, opp)
			}
			// Mirror route: buy domestic, sell the implied-FX leg.
			if opp, ok := pairCandidate(domain.OpportunityCrossRate, n, c, p); ok {
				out = append(out, opp)
			}
		}
	}
	return out
}
