package service

import (
	"sort"

	"github.com/noah-isme/bulletin-api/internal/models"
)

// rankState carries the fold over a sorted card list.
type rankState struct {
	position  int
	rank      int
	prevKnown bool
	prev      int64
}

// AssignRanks computes competition ranks ("1, 2, 2, 4") for the bulletins of
// one scope. Averages are compared at two decimals; equal averages share the
// rank of the first card in their group. Input order does not matter, output
// follows rank order with creation time then ID breaking ties.
func AssignRanks(cards []models.Bulletin) []models.RankAssignment {
	sorted := make([]models.Bulletin, len(cards))
	copy(sorted, cards)
	sort.SliceStable(sorted, func(i, j int) bool {
		ai, aj := centiles(sorted[i].Average), centiles(sorted[j].Average)
		if ai != aj {
			return ai > aj
		}
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	out := make([]models.RankAssignment, 0, len(sorted))
	var state rankState
	for _, card := range sorted {
		state = state.next(centiles(card.Average))
		out = append(out, models.RankAssignment{BulletinID: card.ID, Rank: state.rank})
	}
	return out
}

func (s rankState) next(avg int64) rankState {
	s.position++
	if !s.prevKnown || avg != s.prev {
		s.rank = s.position
	}
	s.prev = avg
	s.prevKnown = true
	return s
}

// ProvisionalRank is the rank a new card with avg would take among existing
// averages: one plus the number of strictly better averages.
func ProvisionalRank(avg float64, existing []float64) int {
	target := centiles(avg)
	rank := 1
	for _, other := range existing {
		if centiles(other) > target {
			rank++
		}
	}
	return rank
}

// centiles expresses an average in hundredths after half-up rounding, so
// tie comparison is exact.
func centiles(v float64) int64 {
	return round2(v).Shift(2).IntPart()
}
