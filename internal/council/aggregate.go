package council

import (
	"sort"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/stat"
)

// Aggregate folds every reviewer's parsed order into one entry per ranked
// response. Positions are the reviewer's literal 1-based list positions, so a
// label missing from labels still occupies its slot. Entries are sorted by
// average rank, ties kept in first-encounter order. Averages round half to
// even at two decimals.
func Aggregate(submissions []RankingSubmission, labels LabelMap) []AggregateRankEntry {
	positions := make(map[LabelTarget][]float64)
	var order []LabelTarget

	for _, s := range submissions {
		for i, label := range s.ParsedRanking {
			target, ok := labels[label]
			if !ok {
				log.Trace().Str("reviewer", s.Model).Str("label", label).Msg("ignoring unknown label")
				continue
			}
			if _, seen := positions[target]; !seen {
				order = append(order, target)
			}
			positions[target] = append(positions[target], float64(i+1))
		}
	}

	aggregate := make([]AggregateRankEntry, 0, len(order))
	for _, target := range order {
		ps := positions[target]
		aggregate = append(aggregate, AggregateRankEntry{
			Model:         target.Model,
			Instance:      target.Instance,
			AverageRank:   scalar.RoundEven(stat.Mean(ps, nil), 2),
			RankingsCount: len(ps),
		})
	}

	sort.SliceStable(aggregate, func(i, j int) bool {
		return aggregate[i].AverageRank < aggregate[j].AverageRank
	})
	return aggregate
}
