package course

import (
	"github.com/pfrederiksen/course-catalog/internal/catalog"
	"github.com/pfrederiksen/course-catalog/internal/filter"
	"github.com/pfrederiksen/course-catalog/internal/offering"
)

// Fields read from a course node. Absent optional fields become "".
var (
	fieldSubject     = catalog.Required("subject")
	fieldCode        = catalog.Required("code")
	fieldTitle       = catalog.Required("title")
	fieldGrading     = catalog.Optional("grading", "")
	fieldDescription = catalog.Optional("description", "")
	fieldInstructor  = catalog.Required("name")
)

// Code returns the course code of a course node, e.g. "106A".
func Code(n *catalog.Node) (string, error) {
	return fieldCode.Read(n)
}

// ID returns the "SUBJECT CODE" identifier of a course node.
func ID(n *catalog.Node) (string, error) {
	subject, err := fieldSubject.Read(n)
	if err != nil {
		return "", err
	}
	code, err := fieldCode.Read(n)
	if err != nil {
		return "", err
	}
	return filter.CourseID(subject, code), nil
}

// Normalizer builds Records from course nodes.
type Normalizer struct {
	Expander *offering.Expander
}

// NewNormalizer creates a Normalizer with the default offering rules.
func NewNormalizer() *Normalizer {
	return &Normalizer{Expander: offering.NewExpander()}
}

// Normalize builds the record for one course node that has already passed
// the allow-list. Any missing required field fails the whole course; a
// partial record is never returned.
func (nz *Normalizer) Normalize(n *catalog.Node) (*Record, error) {
	id, err := ID(n)
	if err != nil {
		return nil, err
	}

	name, err := fieldTitle.Read(n)
	if err != nil {
		return nil, err
	}
	grading, err := fieldGrading.Read(n)
	if err != nil {
		return nil, err
	}
	desc, err := fieldDescription.Read(n)
	if err != nil {
		return nil, err
	}

	unitsMin, err := catalog.Int(n, "unitsMin")
	if err != nil {
		return nil, err
	}
	unitsMax, err := catalog.Int(n, "unitsMax")
	if err != nil {
		return nil, err
	}

	instructors := NewInstructorSet()
	for _, in := range n.FindAll("instructor") {
		instructor, err := fieldInstructor.Read(in)
		if err != nil {
			return nil, err
		}
		instructors.Add(instructor)
	}

	expander := nz.Expander
	if expander == nil {
		expander = offering.NewExpander()
	}
	offerings, err := expander.Expand(id, n.FindAll("section"))
	if err != nil {
		return nil, err
	}

	return &Record{
		ID:              id,
		Name:            name,
		Grading:         grading,
		Desc:            desc,
		Units:           Units{Min: unitsMin, Max: unitsMax},
		Instructors:     instructors,
		CourseOfferings: offerings,
	}, nil
}
