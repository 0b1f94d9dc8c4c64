package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pfrederiksen/course-catalog/internal/pipeline"
	"github.com/pfrederiksen/course-catalog/internal/scraper"
)

// OutputFormat specifies the output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// OutputResult summarizes one extraction run
type OutputResult struct {
	RunID       string           `json:"run_id"`
	CheckedAt   time.Time        `json:"checked_at"`
	Duration    string           `json:"duration"`
	Departments []string         `json:"departments"`
	Output      string           `json:"output"`
	CourseCount int              `json:"course_count"`
	Summary     pipeline.Summary `json:"summary"`
	Added       []string         `json:"added"`   // ids not in the previous output
	Removed     []string         `json:"removed"` // ids no longer present
}

// WriteOutput writes the result in the specified format
func WriteOutput(w io.Writer, result *OutputResult, format OutputFormat, verbose bool) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, result)
	case FormatText:
		return writeText(w, result, verbose)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// writeJSON outputs results as JSON
func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(v)
}

// writeText outputs results as human-readable text
func writeText(w io.Writer, result *OutputResult, verbose bool) error {
	s := result.Summary

	fmt.Fprintf(w, "Outputting %d courses as %s\n", result.CourseCount, result.Output)
	fmt.Fprintf(w, "Departments: %d  Seen: %d  Kept: %d  Filtered: %d  Skipped: %d  Offerings: %d\n",
		s.Departments, s.Seen, s.Kept, s.Filtered, s.Skipped, s.Offerings)

	if len(result.Added) == 0 && len(result.Removed) == 0 {
		fmt.Fprintln(w, "No changes since last run.")
	} else {
		fmt.Fprintf(w, "Changes since last run: %d added, %d removed\n", len(result.Added), len(result.Removed))
		if verbose {
			for _, id := range result.Added {
				fmt.Fprintf(w, "  NEW: %s\n", id)
			}
			for _, id := range result.Removed {
				fmt.Fprintf(w, "  REMOVED: %s\n", id)
			}
		}
	}

	if verbose {
		fmt.Fprintf(w, "Run: %s (%s)\n", result.RunID, result.Duration)
		fmt.Fprintf(w, "Queried: %s\n", strings.Join(result.Departments, ", "))
	}

	return nil
}

// WriteDepartments lists departments in the specified format
func WriteDepartments(w io.Writer, departments []scraper.Department, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, departments)
	case FormatText:
		if len(departments) == 0 {
			fmt.Fprintln(w, "No departments found.")
			return nil
		}
		for _, d := range departments {
			fmt.Fprintf(w, "%-10s %s\n", d.Code, d.Name)
		}
		fmt.Fprintf(w, "\nTotal: %d departments\n", len(departments))
		return nil
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}
