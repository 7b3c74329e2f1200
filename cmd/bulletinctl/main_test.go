package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/bulletin-api/internal/models"
	"github.com/noah-isme/bulletin-api/internal/service"
)

func TestPrintRecalculatedCountsRankedCards(t *testing.T) {
	var out bytes.Buffer
	printRecalculated(&out, []service.RecalculateResult{{
		Scope:         models.RankScope{ClassID: "6A", Period: models.PeriodTerm1, SchoolYear: "2025-2026"},
		TotalStudents: 30,
		Assignments: []models.RankAssignment{
			{BulletinID: "b1", Rank: 1},
			{BulletinID: "b2", Rank: 2},
		},
	}})

	assert.Equal(t, "6A trimestre_1 2025-2026: 2 bulletin(s) ranked, 30 student(s) in class\n1 scope(s) recalculated\n", out.String())
}

func TestRootRegistersMaintenanceCommands(t *testing.T) {
	root := rootCmd()
	for _, name := range []string{"recalculate-ranks", "refresh-details", "create-missing-parents"} {
		cmd, _, err := root.Find([]string{name})
		if assert.NoError(t, err) {
			assert.Equal(t, name, cmd.Name())
		}
	}
}
