package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/bulletin-api/internal/models"
)

func card(id string, avg float64, created time.Time) models.Bulletin {
	return models.Bulletin{ID: id, Average: avg, CreatedAt: created}
}

func ranksByID(assignments []models.RankAssignment) map[string]int {
	out := make(map[string]int, len(assignments))
	for _, a := range assignments {
		out[a.BulletinID] = a.Rank
	}
	return out
}

func TestAssignRanksCompetition(t *testing.T) {
	base := time.Date(2024, 12, 1, 8, 0, 0, 0, time.UTC)
	got := AssignRanks([]models.Bulletin{
		card("d", 9.5, base),
		card("b", 15, base.Add(time.Minute)),
		card("a", 18, base.Add(2*time.Minute)),
		card("c", 15, base.Add(3*time.Minute)),
	})

	assert.Equal(t, []models.RankAssignment{
		{BulletinID: "a", Rank: 1},
		{BulletinID: "b", Rank: 2},
		{BulletinID: "c", Rank: 2},
		{BulletinID: "d", Rank: 4},
	}, got)
}

func TestAssignRanksEndToEndClass(t *testing.T) {
	base := time.Date(2024, 12, 1, 8, 0, 0, 0, time.UTC)
	avgA, _ := ComputeAverage([]float64{18, 16})
	avgB, _ := ComputeAverage([]float64{10, 10})
	avgC, _ := ComputeAverage([]float64{10, 10})

	assert.Equal(t, models.MentionExcellent, ClassifyMention(avgA))
	assert.Equal(t, models.MentionFairlyGood, ClassifyMention(avgB))

	ranks := ranksByID(AssignRanks([]models.Bulletin{
		card("C", avgC, base),
		card("B", avgB, base),
		card("A", avgA, base),
	}))
	assert.Equal(t, map[string]int{"A": 1, "B": 2, "C": 2}, ranks)
}

func TestAssignRanksComparesRoundedAverages(t *testing.T) {
	base := time.Now()
	ranks := ranksByID(AssignRanks([]models.Bulletin{
		card("x", 12.333333, base),
		card("y", 12.33, base),
		card("z", 12.336, base),
	}))
	assert.Equal(t, map[string]int{"z": 1, "x": 2, "y": 2}, ranks)
}

func TestAssignRanksAllTied(t *testing.T) {
	base := time.Now()
	got := AssignRanks([]models.Bulletin{card("a", 11, base), card("b", 11, base), card("c", 11, base)})
	for _, a := range got {
		assert.Equal(t, 1, a.Rank)
	}
	assert.Empty(t, AssignRanks(nil))
}

func TestProvisionalRank(t *testing.T) {
	existing := []float64{18, 15, 15}
	assert.Equal(t, 1, ProvisionalRank(19, existing))
	assert.Equal(t, 2, ProvisionalRank(15, existing))
	assert.Equal(t, 4, ProvisionalRank(9, existing))
	assert.Equal(t, 1, ProvisionalRank(12, nil))
}
