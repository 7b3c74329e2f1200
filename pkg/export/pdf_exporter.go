package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// BulletinSheet is the printable content of one report card.
type BulletinSheet struct {
	SchoolName       string
	SchoolYear       string
	PeriodLabel      string
	StudentName      string
	EnrollmentNumber string
	ClassName        string
	Subjects         []SubjectLine
	Average          string
	Mention          string
	Rank             int
	TotalStudents    int
	Remark           string
}

// SubjectLine is one row of the per-subject table.
type SubjectLine struct {
	Subject     string
	Code        string
	Coefficient string
	Average     string
	Count       int
	Min         string
	Max         string
}

var subjectColumns = []struct {
	title string
	width float64
	align string
}{
	{"Matière", 60, "L"},
	{"Code", 20, "C"},
	{"Coef.", 18, "C"},
	{"Moyenne", 24, "C"},
	{"Notes", 18, "C"},
	{"Min", 25, "C"},
	{"Max", 25, "C"},
}

// PDFExporter renders report cards with gofpdf.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderBulletin lays out a single A4 report card.
func (e *PDFExporter) RenderBulletin(sheet BulletinSheet) ([]byte, error) {
	if sheet.StudentName == "" {
		return nil, fmt.Errorf("bulletin sheet requires a student name")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 15)
	title := "Bulletin scolaire"
	if sheet.SchoolName != "" {
		title = sheet.SchoolName + " - " + title
	}
	pdf.CellFormat(0, 10, tr(title), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 7, tr(fmt.Sprintf("%s - Année scolaire %s", sheet.PeriodLabel, sheet.SchoolYear)), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(95, 6, tr("Élève : "+sheet.StudentName), "", 0, "L", false, 0, "")
	pdf.CellFormat(95, 6, tr("Matricule : "+sheet.EnrollmentNumber), "", 1, "R", false, 0, "")
	pdf.CellFormat(95, 6, tr("Classe : "+sheet.ClassName), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for _, col := range subjectColumns {
		pdf.CellFormat(col.width, 8, tr(col.title), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, line := range sheet.Subjects {
		values := []string{line.Subject, line.Code, line.Coefficient, line.Average, fmt.Sprintf("%d", line.Count), line.Min, line.Max}
		for i, col := range subjectColumns {
			pdf.CellFormat(col.width, 7, tr(values[i]), "1", 0, col.align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(63, 8, tr("Moyenne générale : "+sheet.Average), "1", 0, "C", false, 0, "")
	pdf.CellFormat(64, 8, tr("Mention : "+sheet.Mention), "1", 0, "C", false, 0, "")
	pdf.CellFormat(63, 8, tr(fmt.Sprintf("Rang : %d / %d", sheet.Rank, sheet.TotalStudents)), "1", 1, "C", false, 0, "")

	if sheet.Remark != "" {
		pdf.Ln(4)
		pdf.SetFont("Arial", "I", 10)
		pdf.MultiCell(0, 6, tr("Appréciation : "+sheet.Remark), "", "L", false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
