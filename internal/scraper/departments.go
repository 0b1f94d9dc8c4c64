package scraper

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Department is a catalog department as listed on the landing page.
type Department struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// departmentLink matches link texts such as "Computer Science (CS)" or
// "Management Science and Engineering (MS&E)".
var departmentLink = regexp.MustCompile(`^(.+?)\s*\(([A-Z][A-Z0-9&]*)\)$`)

// ListDepartments fetches the ExploreCourses landing page and returns the
// departments it links to, in page order without duplicates.
func (s *Scraper) ListDepartments(ctx context.Context) ([]Department, error) {
	body, err := s.get(ctx, s.baseURL+"/")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	return parseDepartments(body)
}

// parseDepartments extracts departments from the landing page HTML
func parseDepartments(r io.Reader) ([]Department, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	departments := make([]Department, 0)
	seen := make(map[string]bool)

	doc.Find(`a[href*="search"]`).Each(func(i int, sel *goquery.Selection) {
		text := strings.Join(strings.Fields(sel.Text()), " ")
		matches := departmentLink.FindStringSubmatch(text)
		if matches == nil {
			return
		}

		code := matches[2]
		if seen[code] {
			return
		}
		seen[code] = true
		departments = append(departments, Department{Code: code, Name: matches[1]})
	})

	return departments, nil
}
