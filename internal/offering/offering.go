// Package offering turns the sections of a catalog course into meeting-time
// offerings scoped to an academic term.
//
// Only the primary lecture section ("01") of a course is used, and only its
// first schedule. Each such schedule yields two offerings: one for the term in
// the feed and one for the same period in the following academic year. The
// second is an assumption that courses repeat yearly with the same meeting
// pattern; it is not checked against a later catalog.
package offering

import (
	"fmt"
	"strings"
	"time"

	"github.com/pfrederiksen/course-catalog/internal/catalog"
	"github.com/pfrederiksen/course-catalog/internal/logger"
)

const clockLayout = "15:04:05"

// Fields read from section and schedule nodes.
var (
	fieldSectionNumber = catalog.Required("sectionNumber")
	fieldStartTime     = catalog.Required("startTime")
	fieldEndTime       = catalog.Required("endTime")
	fieldDays          = catalog.Optional("days", "")
	fieldTerm          = catalog.Required("term")
)

// TimeParseError reports a meeting time that is not HH:MM:SS.
type TimeParseError struct {
	CourseID string
	Field    string
	Value    string
	Err      error
}

func (e *TimeParseError) Error() string {
	return fmt.Sprintf("course %s: invalid %s %q: %v", e.CourseID, e.Field, e.Value, e.Err)
}

func (e *TimeParseError) Unwrap() error {
	return e.Err
}

// Offering is one weekly meeting pattern of a course in one term.
type Offering struct {
	Start int      `json:"start"` // HHMM
	End   int      `json:"end"`   // HHMM, not validated against Start
	Days  []string `json:"days"`
	Term  Term     `json:"term"`
}

// PrimaryLecture reports whether a section number denotes the lecture
// section. Discussion and lab sections use other numbers.
func PrimaryLecture(sectionNumber string) bool {
	return sectionNumber == "01"
}

// Expander converts section nodes into offerings.
type Expander struct {
	// IsPrimary selects the sections to expand. Defaults to PrimaryLecture.
	IsPrimary func(sectionNumber string) bool
	// Logger receives the course identifier when a meeting time is bad.
	// Defaults to the package-level logger.
	Logger *logger.Logger
}

// NewExpander creates an Expander with the default section rule.
func NewExpander() *Expander {
	return &Expander{IsPrimary: PrimaryLecture}
}

// Expand returns the offerings of all primary sections, two per section.
// courseID is used only for error reporting.
func (e *Expander) Expand(courseID string, sections []*catalog.Node) ([]Offering, error) {
	offerings := make([]Offering, 0, 2)

	for _, section := range sections {
		number, err := fieldSectionNumber.Read(section)
		if err != nil {
			return nil, err
		}
		if !e.isPrimary(number) {
			continue
		}

		schedule := section.Find("schedule")
		if schedule == nil {
			continue
		}

		pair, err := e.expandSchedule(courseID, section, schedule)
		if err != nil {
			return nil, err
		}
		offerings = append(offerings, pair...)
	}

	return offerings, nil
}

func (e *Expander) expandSchedule(courseID string, section, schedule *catalog.Node) ([]Offering, error) {
	start, err := e.readClock(courseID, schedule, fieldStartTime)
	if err != nil {
		return nil, err
	}
	end, err := e.readClock(courseID, schedule, fieldEndTime)
	if err != nil {
		return nil, err
	}

	rawDays, err := fieldDays.Read(schedule)
	if err != nil {
		return nil, err
	}
	days := NormalizeDays(rawDays)

	rawTerm, err := fieldTerm.Read(section)
	if err != nil {
		return nil, err
	}
	term, err := ParseTerm(rawTerm)
	if err != nil {
		return nil, err
	}
	next, err := term.Next()
	if err != nil {
		return nil, err
	}

	nextDays := make([]string, len(days))
	copy(nextDays, days)

	return []Offering{
		{Start: start, End: end, Days: days, Term: term},
		{Start: start, End: end, Days: nextDays, Term: next},
	}, nil
}

// readClock reads a required time field. Failures are logged with the course
// identifier before being returned.
func (e *Expander) readClock(courseID string, schedule *catalog.Node, f catalog.Field) (int, error) {
	raw, err := f.Read(schedule)
	if err != nil {
		e.log().Error("Missing meeting time", logger.Fields{
			"course": courseID,
			"field":  f.Name,
		}, err)
		return 0, err
	}

	hhmm, err := ParseClock(raw)
	if err != nil {
		perr := &TimeParseError{CourseID: courseID, Field: f.Name, Value: raw, Err: err}
		e.log().Error("Invalid meeting time", logger.Fields{
			"course": courseID,
			"field":  f.Name,
			"value":  raw,
		}, perr)
		return 0, perr
	}
	return hhmm, nil
}

func (e *Expander) isPrimary(number string) bool {
	if e.IsPrimary == nil {
		return PrimaryLecture(number)
	}
	return e.IsPrimary(number)
}

func (e *Expander) log() *logger.Logger {
	if e.Logger == nil {
		return logger.Default()
	}
	return e.Logger
}

// ParseClock converts "HH:MM:SS" to an HHMM integer; seconds are dropped.
// "09:50:00" yields 950.
func ParseClock(s string) (int, error) {
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*100 + t.Minute(), nil
}

// NormalizeDays splits a days field on whitespace and shortens each day to
// its first three characters: "Monday Wednesday" yields [Mon Wed].
// The result is never nil.
func NormalizeDays(s string) []string {
	fields := strings.Fields(s)
	days := make([]string, 0, len(fields))
	for _, f := range fields {
		r := []rune(f)
		if len(r) > 3 {
			r = r[:3]
		}
		days = append(days, string(r))
	}
	return days
}
