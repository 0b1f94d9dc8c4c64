// Package filter decides which catalog courses are kept in the extracted
// output.
//
// A course is kept when a policy carve-out accepts it outright or when its
// "DEPT CODE" identifier is in the allow-list built from program definitions.
// The default carve-out keeps all upper-level Stanford CS courses plus four
// named lower-level ones:
//
//	ok, err := filter.Allowed("CS", "109A", allowList) // true, 109 is named
//	ok, err = filter.Allowed("EE", "101", allowList)   // true only if "EE 101" is listed
//
// Policies are plain values, so other catalogs can supply their own carve-out:
//
//	p := filter.Policy{CarveOut: nil} // allow-list only
//	ok, err := p.Allowed("CS", "229", allowList)
package filter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// InvalidCourseCodeError reports a course code with no usable course number.
type InvalidCourseCodeError struct {
	Code string
}

func (e *InvalidCourseCodeError) Error() string {
	return fmt.Sprintf("invalid course code %q: no course number", e.Code)
}

// AllowList is the set of course identifiers permitted in the output.
// Entries are either "DEPT CODE" pairs or bare course codes.
type AllowList map[string]struct{}

// NewAllowList creates an allow-list containing ids.
func NewAllowList(ids ...string) AllowList {
	a := make(AllowList, len(ids))
	for _, id := range ids {
		a.Add(id)
	}
	return a
}

// Add inserts id into the allow-list.
func (a AllowList) Add(id string) {
	a[id] = struct{}{}
}

// Contains reports whether id is in the allow-list.
func (a AllowList) Contains(id string) bool {
	_, ok := a[id]
	return ok
}

// Len returns the number of entries.
func (a AllowList) Len() int {
	return len(a)
}

// Sorted returns the entries in lexical order.
func (a AllowList) Sorted() []string {
	out := make([]string, 0, len(a))
	for id := range a {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// CarveOut reports whether a course is kept regardless of the allow-list.
// num is the course number with letters stripped from code.
type CarveOut func(dept, code string, num int) bool

// Policy combines a carve-out with allow-list membership.
type Policy struct {
	CarveOut CarveOut // nil means allow-list membership only
}

// DefaultPolicy applies the Stanford CS carve-out.
var DefaultPolicy = Policy{CarveOut: StanfordCS}

// namedCSCourses are the lower-level CS courses always kept.
var namedCSCourses = map[int]bool{
	103: true,
	107: true,
	109: true,
	110: true,
}

// StanfordCS keeps every CS course numbered above 110 and CS 103, 107, 109
// and 110 (including lettered variants such as 109A).
func StanfordCS(dept, code string, num int) bool {
	if dept != "CS" {
		return false
	}
	return num > 110 || namedCSCourses[num]
}

// CourseNumber returns the integer formed by removing all letters from code.
// "103A" yields 103.
func CourseNumber(code string) (int, error) {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return -1
		}
		return r
	}, code)

	if digits == "" {
		return 0, &InvalidCourseCodeError{Code: code}
	}
	num, err := strconv.Atoi(digits)
	if err != nil {
		return 0, &InvalidCourseCodeError{Code: code}
	}
	return num, nil
}

// Allowed reports whether the course dept/code passes p. The course number is
// validated for every course, even ones that would match the allow-list.
func (p Policy) Allowed(dept, code string, allow AllowList) (bool, error) {
	num, err := CourseNumber(code)
	if err != nil {
		return false, err
	}

	if p.CarveOut != nil && p.CarveOut(dept, code, num) {
		return true, nil
	}

	return allow.Contains(CourseID(dept, code)), nil
}

// Allowed applies DefaultPolicy.
func Allowed(dept, code string, allow AllowList) (bool, error) {
	return DefaultPolicy.Allowed(dept, code, allow)
}
