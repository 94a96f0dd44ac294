package detect

import (
	"github.com/arbiscan/arbiscan/internal/domain"
)

// internationalVenues are the only venues whose USD books are comparable
// on equal terms.
var internationalVenues = map[string]bool{
	"binance": true,
	"bybit":   true,
}

// usdCandidates runs the direct model on the raw USD views of
// international venues.
func usdCandidates(quotes []domain.Quote, p params) []domain.Opportunity {
	var usd []domain.Quote
	for _, q := range quotes {
		if q.Kind == domain.KindUSD && internationalVenues[q.Exchange] {
			usd = append(usd, q)
		}
	}

	var out []domain.Opportunity
	for i := 0; i < len(usd); i++ {
		for j := i + 1; j < len(usd); j++ {
			if opp, ok := pairCandidate(domain.OpportunityUSD, usd[i], usd[j], p); ok {
				out = append(out, opp)
			}
			if opp, ok := pairCandidate(domain.OpportunityUSD, usd[j], usd[i], p); ok {
				out = append(out, opp)
			}
		}
	}
	return out
}

// Triangle and latency detection are reserved extension points; they keep
// the strategy surface stable while returning nothing.

func triangleCandidates(quotes []domain.Quote, p params) []domain.Opportunity { return nil }

func latencyCandidates(quotes []domain.Quote, p params) []domain.Opportunity { return nil }
