package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pfrederiksen/course-catalog/internal/catalog"
	"github.com/pfrederiksen/course-catalog/internal/course"
	"github.com/pfrederiksen/course-catalog/internal/filter"
	"github.com/pfrederiksen/course-catalog/internal/logger"
	"github.com/pfrederiksen/course-catalog/internal/metrics"
	"github.com/pfrederiksen/course-catalog/internal/offering"
)

// Fetcher returns the parsed catalog document for one department.
type Fetcher interface {
	FetchDepartment(ctx context.Context, dept string) (*catalog.Node, error)
}

// CourseError reports a course that could not be processed.
type CourseError struct {
	Department string
	CourseID   string // best effort; empty when the course has no readable id
	Err        error
}

func (e *CourseError) Error() string {
	if e.CourseID == "" {
		return fmt.Sprintf("department %s: %v", e.Department, e.Err)
	}
	return fmt.Sprintf("department %s, course %s: %v", e.Department, e.CourseID, e.Err)
}

func (e *CourseError) Unwrap() error {
	return e.Err
}

// Summary counts what a run did.
type Summary struct {
	Departments int `json:"departments"`
	Seen        int `json:"seen"`
	Kept        int `json:"kept"`
	Filtered    int `json:"filtered"`
	Skipped     int `json:"skipped"`
	Offerings   int `json:"offerings"`
}

// Driver runs the fetch, filter, normalize sequence over a list of
// departments.
type Driver struct {
	Departments []string
	AllowList   filter.AllowList
	Policy      *filter.Policy // nil means filter.DefaultPolicy
	Normalizer  *course.Normalizer
	Fetcher     Fetcher

	// Concurrency bounds parallel department fetches. Values below 1 mean 1.
	Concurrency int

	// SkipInvalid logs and skips courses that fail to process instead of
	// aborting the run.
	SkipInvalid bool

	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

type fetchResult struct {
	doc *catalog.Node
	err error
}

// Run processes every department and calls emit once per kept course, in
// order. It stops at the first fetch error, the first emit error, or, unless
// SkipInvalid is set, the first course error.
func (d *Driver) Run(ctx context.Context, emit func(*course.Record) error) (Summary, error) {
	var summary Summary
	if d.Fetcher == nil {
		return summary, errors.New("pipeline: no fetcher configured")
	}

	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}

	workers := d.Concurrency
	if workers < 1 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	results := make([]chan fetchResult, len(d.Departments))
	for i := range results {
		results[i] = make(chan fetchResult, 1)
	}

	launched := make(chan struct{})
	go func() {
		defer close(launched)
		for i, dept := range d.Departments {
			if err := gctx.Err(); err != nil {
				results[i] <- fetchResult{err: err}
				continue
			}
			g.Go(func() error {
				doc, err := d.fetch(gctx, dept)
				results[i] <- fetchResult{doc: doc, err: err}
				return err
			})
		}
	}()

	// stop cancels outstanding fetches and waits for them. A fetch that saw
	// only a cancellation reports the group's first error instead, since a
	// failed fetch cancels its siblings.
	stop := func(err error) error {
		cancel()
		<-launched
		waitErr := g.Wait()
		if waitErr != nil && errors.Is(err, context.Canceled) {
			return waitErr
		}
		return err
	}

	for i, dept := range d.Departments {
		res := <-results[i]
		if res.err != nil {
			return summary, stop(res.err)
		}
		summary.Departments++

		if err := d.processDepartment(dept, res.doc, emit, &summary); err != nil {
			return summary, stop(err)
		}
	}

	<-launched
	if err := g.Wait(); err != nil {
		return summary, err
	}

	d.metrics().MarkRunComplete()
	d.log().Info("Run complete", logger.Fields{
		"departments": summary.Departments,
		"seen":        summary.Seen,
		"kept":        summary.Kept,
		"filtered":    summary.Filtered,
		"skipped":     summary.Skipped,
		"offerings":   summary.Offerings,
	})

	return summary, nil
}

// Collect runs the driver and returns all kept records.
func (d *Driver) Collect(ctx context.Context) ([]*course.Record, Summary, error) {
	records := make([]*course.Record, 0)
	summary, err := d.Run(ctx, func(rec *course.Record) error {
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, summary, err
	}
	return records, summary, nil
}

func (d *Driver) fetch(ctx context.Context, dept string) (*catalog.Node, error) {
	d.log().Info("Getting courses", logger.Fields{"department": dept})

	start := time.Now()
	doc, err := d.Fetcher.FetchDepartment(ctx, dept)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", dept, err)
	}

	m := d.metrics()
	m.ObserveFetch(start)
	m.DepartmentsFetched.Inc()

	return doc, nil
}

func (d *Driver) processDepartment(dept string, doc *catalog.Node, emit func(*course.Record) error, summary *Summary) error {
	m := d.metrics()

	for _, n := range doc.FindAll("course") {
		summary.Seen++
		m.CoursesSeen.WithLabelValues(dept).Inc()

		rec, err := d.processCourse(dept, n)
		if err != nil {
			cerr := &CourseError{Department: dept, Err: err}
			cerr.CourseID, _ = course.ID(n)
			if !d.SkipInvalid {
				return cerr
			}

			summary.Skipped++
			m.CoursesSkipped.WithLabelValues(Reason(err)).Inc()
			d.log().Warn("Skipping course", logger.Fields{
				"department": dept,
				"course":     cerr.CourseID,
				"error":      err.Error(),
			})
			continue
		}

		if rec == nil {
			summary.Filtered++
			m.CoursesFiltered.WithLabelValues(dept).Inc()
			continue
		}

		if err := emit(rec); err != nil {
			return fmt.Errorf("emitting %s: %w", rec.ID, err)
		}

		summary.Kept++
		summary.Offerings += len(rec.CourseOfferings)
		m.CoursesKept.WithLabelValues(dept).Inc()
		m.OfferingsEmitted.Add(float64(len(rec.CourseOfferings)))
		d.log().Debug("Processed", logger.Fields{"course": rec.ID})
	}

	return nil
}

// processCourse returns nil, nil for a course the allow-list drops.
func (d *Driver) processCourse(dept string, n *catalog.Node) (*course.Record, error) {
	code, err := course.Code(n)
	if err != nil {
		return nil, err
	}

	policy := filter.DefaultPolicy
	if d.Policy != nil {
		policy = *d.Policy
	}
	ok, err := policy.Allowed(dept, code, d.AllowList)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	normalizer := d.Normalizer
	if normalizer == nil {
		normalizer = course.NewNormalizer()
	}
	return normalizer.Normalize(n)
}

// Reason classifies a course error for the skipped-courses metric.
func Reason(err error) string {
	var missing *catalog.MissingFieldError
	var invalidField *catalog.InvalidFieldError
	var invalidCode *filter.InvalidCourseCodeError
	var timeParse *offering.TimeParseError
	var termFormat *offering.TermFormatError

	switch {
	case errors.As(err, &missing):
		return metrics.ReasonMissingField
	case errors.As(err, &invalidCode):
		return metrics.ReasonInvalidCode
	case errors.As(err, &invalidField):
		return metrics.ReasonInvalidField
	case errors.As(err, &timeParse):
		return metrics.ReasonTimeParse
	case errors.As(err, &termFormat):
		return metrics.ReasonTermFormat
	default:
		return metrics.ReasonOther
	}
}

func (d *Driver) log() *logger.Logger {
	if d.Logger == nil {
		return logger.Default()
	}
	return d.Logger
}

func (d *Driver) metrics() *metrics.Metrics {
	return d.Metrics
}
