package filter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Program is the part of a program definition that feeds the allow-list.
// Other keys in the programs file are ignored.
type Program struct {
	Name           string   `json:"name,omitempty"`
	BreadthCourses []string `json:"breadthCourses"`
	DepthCourses   []string `json:"depthCourses"`
}

// CourseID joins a department and course code as they appear in the
// allow-list and in course records: "CS 106A".
func CourseID(dept, code string) string {
	return dept + " " + code
}

// ParseCourseID splits a course identifier into department and code.
// The department is everything before the last space, so identifiers with
// punctuated department codes parse as expected:
//   - "MS&E 221" -> ("MS&E", "221")
//   - "103"      -> ("", "103")
func ParseCourseID(id string) (dept, code string) {
	id = strings.TrimSpace(id)
	i := strings.LastIndex(id, " ")
	if i < 0 {
		return "", id
	}
	return strings.TrimSpace(id[:i]), id[i+1:]
}

// LoadPrograms decodes a JSON array of programs and returns the union of
// their breadth and depth courses.
func LoadPrograms(r io.Reader) (AllowList, error) {
	var programs []Program
	if err := json.NewDecoder(r).Decode(&programs); err != nil {
		return nil, fmt.Errorf("parsing programs: %w", err)
	}

	allow := NewAllowList()
	for _, p := range programs {
		for _, id := range p.BreadthCourses {
			allow.Add(id)
		}
		for _, id := range p.DepthCourses {
			allow.Add(id)
		}
	}
	return allow, nil
}

// LoadProgramsFile reads programs from path. See LoadPrograms.
func LoadProgramsFile(path string) (AllowList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening programs file: %w", err)
	}
	defer f.Close()

	return LoadPrograms(f)
}
