package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterSemicolon(t *testing.T) {
	data := Dataset{Headers: []string{"rank", "student", "average"}}
	data.Append("1", "Awa Diop", "17.00")
	data.Append("2", "Moussa Ba")

	out, err := NewCSVExporter(';').Render(data)
	require.NoError(t, err)
	assert.Equal(t, "rank;student;average\n1;Awa Diop;17.00\n2;Moussa Ba;\n", string(out))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter(0).Render(Dataset{})
	assert.Error(t, err)
}

func TestRenderBulletinProducesPDF(t *testing.T) {
	out, err := NewPDFExporter().RenderBulletin(BulletinSheet{
		SchoolYear:  "2025-2026",
		PeriodLabel: "1er trimestre",
		StudentName: "Awa Diop",
		ClassName:   "Terminale S",
		Subjects: []SubjectLine{
			{Subject: "Mathématiques", Code: "MAT", Coefficient: "4", Average: "17.00", Count: 2, Min: "16.00", Max: "18.00"},
		},
		Average:       "17.00",
		Mention:       "Excellent",
		Rank:          1,
		TotalStudents: 3,
		Remark:        "Très bon trimestre",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderBulletinRequiresStudent(t *testing.T) {
	_, err := NewPDFExporter().RenderBulletin(BulletinSheet{})
	assert.Error(t, err)
}
