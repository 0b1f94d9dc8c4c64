package offering

import (
	"fmt"
	"strconv"
	"strings"
)

// TermFormatError reports a section term that is not "<year> <period> ...".
type TermFormatError struct {
	Term   string
	Reason string
}

func (e *TermFormatError) Error() string {
	return fmt.Sprintf("malformed term %q: %s", e.Term, e.Reason)
}

// Term identifies an academic period, such as Fall of 2012-2013.
type Term struct {
	Period string `json:"period"`
	Year   string `json:"year"`
	ID     string `json:"id"`
}

// NewTerm builds a Term whose ID is period and year joined without a
// separator: "Fall2012-2013".
func NewTerm(period, year string) Term {
	return Term{Period: period, Year: year, ID: period + year}
}

// ParseTerm parses a catalog term string such as "2012-2013 Autumn".
// Tokens after the period are ignored.
func ParseTerm(s string) (Term, error) {
	parts := strings.Split(s, " ")
	if len(parts) < 2 || parts[1] == "" {
		return Term{}, &TermFormatError{Term: s, Reason: "missing period"}
	}
	if _, err := baseYear(parts[0]); err != nil {
		return Term{}, &TermFormatError{Term: s, Reason: err.Error()}
	}
	return NewTerm(parts[1], parts[0]), nil
}

// Next returns the same period in the following academic year:
// Fall 2012-2013 becomes Fall 2013-2014.
func (t Term) Next() (Term, error) {
	base, err := baseYear(t.Year)
	if err != nil {
		return Term{}, &TermFormatError{Term: t.Year, Reason: err.Error()}
	}
	return NewTerm(t.Period, fmt.Sprintf("%d-%d", base+1, base+2)), nil
}

// baseYear returns the leading year of an academic year string "YYYY-YYYY".
func baseYear(year string) (int, error) {
	first, _, _ := strings.Cut(year, "-")
	base, err := strconv.Atoi(first)
	if err != nil {
		return 0, fmt.Errorf("year %q does not start with a number", year)
	}
	return base, nil
}
