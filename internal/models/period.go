package models

// Period is one of the three terms of a school year.
type Period string

const (
	PeriodTerm1 Period = "trimestre_1"
	PeriodTerm2 Period = "trimestre_2"
	PeriodTerm3 Period = "trimestre_3"
)

// Periods lists every valid period in calendar order.
var Periods = []Period{PeriodTerm1, PeriodTerm2, PeriodTerm3}

// Valid reports whether p is a known period.
func (p Period) Valid() bool {
	switch p {
	case PeriodTerm1, PeriodTerm2, PeriodTerm3:
		return true
	}
	return false
}

// Label is the human readable period name used in mails and PDFs.
func (p Period) Label() string {
	switch p {
	case PeriodTerm1:
		return "1er trimestre"
	case PeriodTerm2:
		return "2ème trimestre"
	case PeriodTerm3:
		return "3ème trimestre"
	}
	return string(p)
}
