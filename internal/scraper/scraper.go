package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/pfrederiksen/course-catalog/internal/catalog"
)

const (
	DefaultBaseURL  = "https://explorecourses.stanford.edu"
	SearchPath      = "/CourseSearch/search"
	XMLView         = "xml-20120105"
	UserAgent       = "course-catalog/1.0 (github.com/pfrederiksen/course-catalog)"
	RobotsAgent     = "course-catalog"
	Timeout         = 30 * time.Second
	DefaultInterval = time.Second
)

// ErrDisallowed is returned when robots.txt forbids fetching a URL.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// Scraper handles fetching and parsing ExploreCourses pages
type Scraper struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	robots  *robotsChecker
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithBaseURL points the scraper at another host, such as a test server.
func WithBaseURL(u string) Option {
	return func(s *Scraper) {
		s.baseURL = u
	}
}

// WithInterval sets the minimum time between requests. Zero or less disables
// pacing.
func WithInterval(d time.Duration) Option {
	return func(s *Scraper) {
		s.limiter = newLimiter(d)
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scraper) {
		s.client = c
	}
}

// WithRobots enables or disables robots.txt checks. Enabled by default.
func WithRobots(enabled bool) Option {
	return func(s *Scraper) {
		if enabled {
			s.robots = &robotsChecker{}
		} else {
			s.robots = nil
		}
	}
}

// New creates a new Scraper instance
func New(opts ...Option) *Scraper {
	s := &Scraper{
		client: &http.Client{
			Timeout: Timeout,
		},
		baseURL: DefaultBaseURL,
		limiter: newLimiter(DefaultInterval),
		robots:  &robotsChecker{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newLimiter(d time.Duration) *rate.Limiter {
	if d <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(d), 1)
}

// BuildURL returns the XML search URL for query, restricted to dept when it
// is not empty.
func (s *Scraper) BuildURL(query, dept string) string {
	u := s.baseURL + SearchPath + "?view=" + XMLView + "&catalog=&page=0&q=" + url.QueryEscape(query)
	if dept != "" {
		u += "&filter-catalognumber-" + url.QueryEscape(dept) + "=on"
	}
	return u
}

// FetchDepartment queries the catalog for dept and returns the parsed
// document.
func (s *Scraper) FetchDepartment(ctx context.Context, dept string) (*catalog.Node, error) {
	body, err := s.get(ctx, s.BuildURL(dept, dept))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := catalog.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s catalog: %w", dept, err)
	}
	return doc, nil
}

// get performs a paced, robots-checked GET and returns the body of a 200
// response. The caller closes the body.
func (s *Scraper) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing URL: %w", err)
	}

	if s.robots != nil {
		allowed, err := s.robots.allowed(ctx, s.client, target)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("fetching %s: %w", rawURL, ErrDisallowed)
		}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching page: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return resp.Body, nil
}
