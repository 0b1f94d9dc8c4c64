// Package course builds normalized course records from catalog course nodes.
package course

import (
	"encoding/json"
	"sort"

	"github.com/pfrederiksen/course-catalog/internal/offering"
)

// Units is the unit range a course may be taken for.
type Units struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Record is one normalized course as written to the output file.
type Record struct {
	ID              string              `json:"id"` // "SUBJECT CODE", e.g. "CS 106A"
	Name            string              `json:"name"`
	Grading         string              `json:"grading"`
	Desc            string              `json:"desc"`
	Units           Units               `json:"units"`
	Instructors     InstructorSet       `json:"instructors"`
	CourseOfferings []offering.Offering `json:"courseOfferings"`
}

// InstructorSet holds distinct instructor names. It serializes as a sorted
// JSON array so output is stable across runs.
type InstructorSet map[string]struct{}

// NewInstructorSet creates a set containing names.
func NewInstructorSet(names ...string) InstructorSet {
	s := make(InstructorSet, len(names))
	for _, n := range names {
		s.Add(n)
	}
	return s
}

// Add inserts name into the set.
func (s InstructorSet) Add(name string) {
	s[name] = struct{}{}
}

// Contains reports whether name is in the set.
func (s InstructorSet) Contains(name string) bool {
	_, ok := s[name]
	return ok
}

// Names returns the names in lexical order.
func (s InstructorSet) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// MarshalJSON encodes the set as a sorted array; an empty set is [].
func (s InstructorSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

// UnmarshalJSON decodes an array of names, dropping duplicates.
func (s *InstructorSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*s = NewInstructorSet(names...)
	return nil
}
