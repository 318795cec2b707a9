package storage

// Stats aggregates a set of turns.
type Stats struct {
	Total         int                `json:"total"`
	ByStatus      map[TurnStatus]int `json:"by_status"`
	BySource      map[TurnSource]int `json:"by_source"`
	TotalTokens   int                `json:"total_tokens"`
	MeanTokenRate float64            `json:"mean_token_rate"`
}

// Summarize computes Stats over turns. The mean token rate only counts
// complete turns.
func Summarize(turns []*Turn) Stats {
	s := Stats{
		ByStatus: map[TurnStatus]int{},
		BySource: map[TurnSource]int{},
	}
	var rateSum float64
	for _, t := range turns {
		s.Total++
		s.ByStatus[t.Status]++
		s.BySource[t.Source]++
		s.TotalTokens += t.Tokens
		if t.Status == TurnComplete {
			rateSum += t.TokenRate
		}
	}
	if n := s.ByStatus[TurnComplete]; n > 0 {
		s.MeanTokenRate = rateSum / float64(n)
	}
	return s
}
