package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pfrederiksen/course-catalog/internal/course"
	"github.com/pfrederiksen/course-catalog/internal/filter"
)

// SortOrder represents the available sorting options
type SortOrder string

const (
	SortFeed   SortOrder = "feed"
	SortByID   SortOrder = "id"
	SortByName SortOrder = "name"
)

func parseSortOrder(s string) (SortOrder, error) {
	order := SortOrder(strings.ToLower(strings.TrimSpace(s)))
	switch order {
	case SortFeed, SortByID, SortByName:
		return order, nil
	case "":
		return SortFeed, nil
	default:
		return "", fmt.Errorf("invalid sort order: %s (must be 'feed', 'id' or 'name')", s)
	}
}

// sortRecords reorders records in place. SortFeed keeps the catalog order.
func sortRecords(records []*course.Record, order SortOrder) {
	switch order {
	case SortByID:
		sort.SliceStable(records, func(i, j int) bool {
			return compareByID(records[i], records[j])
		})
	case SortByName:
		sort.SliceStable(records, func(i, j int) bool {
			ni, nj := strings.ToLower(records[i].Name), strings.ToLower(records[j].Name)
			if ni != nj {
				return ni < nj
			}
			// If names are equal, sort by id
			return compareByID(records[i], records[j])
		})
	}
}

// compareByID orders by department, then course number, then code, so that
// "CS 9" sorts before "CS 106A" and "CS 106A" before "CS 106B".
func compareByID(a, b *course.Record) bool {
	deptA, codeA := filter.ParseCourseID(a.ID)
	deptB, codeB := filter.ParseCourseID(b.ID)
	if deptA != deptB {
		return deptA < deptB
	}

	numA, errA := filter.CourseNumber(codeA)
	numB, errB := filter.CourseNumber(codeB)

	// Codes without a number go last
	switch {
	case errA == nil && errB == nil && numA != numB:
		return numA < numB
	case errA == nil && errB != nil:
		return true
	case errA != nil && errB == nil:
		return false
	}
	return codeA < codeB
}
