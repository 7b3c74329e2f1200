package service

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/bulletin-api/internal/models"
)

// divisionPrecision is the number of decimal places kept while averaging,
// well beyond the two places surfaced to callers.
const divisionPrecision = 16

// mentionBands maps inclusive lower bounds to mentions, best first.
var mentionBands = []struct {
	floor   float64
	mention models.Mention
}{
	{16, models.MentionExcellent},
	{14, models.MentionVeryGood},
	{12, models.MentionGood},
	{10, models.MentionFairlyGood},
	{8, models.MentionPass},
}

// ComputeAverage returns the arithmetic mean of values rounded half-up to two
// decimals. ok is false for an empty set, which has no average.
func ComputeAverage(values []float64) (avg float64, ok bool) {
	if len(values) == 0 {
		return 0, false
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	mean := sum.DivRound(decimal.NewFromInt(int64(len(values))), divisionPrecision)
	return mean.Round(2).InexactFloat64(), true
}

// ClassifyMention maps an average to its band. Bounds are inclusive and the
// average is taken at two decimals, as stored on the bulletin.
func ClassifyMention(avg float64) models.Mention {
	rounded := round2(avg)
	for _, band := range mentionBands {
		if rounded.GreaterThanOrEqual(decimal.NewFromFloat(band.floor)) {
			return band.mention
		}
	}
	return models.MentionInsufficient
}

func round2(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// CoefficientTable supplies display coefficients for subjects without one.
type CoefficientTable struct {
	// Defaults is keyed by lower-cased subject name.
	Defaults map[string]float64
	Fallback float64
}

// Resolve returns own when set, else the configured default for name.
func (t CoefficientTable) Resolve(name string, own float64) float64 {
	if own > 0 {
		return own
	}
	if weight, ok := t.Defaults[strings.ToLower(strings.TrimSpace(name))]; ok {
		return weight
	}
	if t.Fallback > 0 {
		return t.Fallback
	}
	return 2
}

// SubjectBreakdown groups grades per subject, keeping the order in which
// subjects first appear.
func SubjectBreakdown(grades []models.GradeWithSubject, table CoefficientTable) []models.SubjectSummary {
	index := make(map[string]int)
	var summaries []models.SubjectSummary
	values := make(map[string][]float64)

	for _, g := range grades {
		pos, seen := index[g.SubjectID]
		if !seen {
			pos = len(summaries)
			index[g.SubjectID] = pos
			summaries = append(summaries, models.SubjectSummary{
				SubjectID:   g.SubjectID,
				SubjectName: g.SubjectName,
				SubjectCode: subjectCode(g.SubjectCode, g.SubjectName),
				Coefficient: table.Resolve(g.SubjectName, g.SubjectCoefficient),
				Min:         g.Value,
				Max:         g.Value,
			})
		}
		s := &summaries[pos]
		s.Grades = append(s.Grades, models.GradeLine{
			ID:             g.ID,
			Value:          g.Value,
			EvaluationType: g.EvaluationType,
			TypeLabel:      models.EvaluationLabel(g.EvaluationType),
			Comment:        g.Comment,
			GradedOn:       g.GradedOn,
		})
		s.Count++
		if g.Value < s.Min {
			s.Min = g.Value
		}
		if g.Value > s.Max {
			s.Max = g.Value
		}
		values[g.SubjectID] = append(values[g.SubjectID], g.Value)
	}

	for i := range summaries {
		summaries[i].Average, _ = ComputeAverage(values[summaries[i].SubjectID])
	}
	return summaries
}

func subjectCode(code, name string) string {
	if code = strings.TrimSpace(code); code != "" {
		return code
	}
	runes := []rune(strings.TrimSpace(name))
	if len(runes) > 3 {
		runes = runes[:3]
	}
	return strings.ToUpper(string(runes))
}

func gradeValues(grades []models.GradeWithSubject) []float64 {
	values := make([]float64, len(grades))
	for i, g := range grades {
		values[i] = g.Value
	}
	return values
}
