package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pfrederiksen/course-catalog/internal/catalog"
	"github.com/pfrederiksen/course-catalog/internal/course"
	"github.com/pfrederiksen/course-catalog/internal/filter"
	"github.com/pfrederiksen/course-catalog/internal/logger"
	"github.com/pfrederiksen/course-catalog/internal/metrics"
	"github.com/pfrederiksen/course-catalog/internal/offering"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const section = `<sections><section><sectionNumber>01</sectionNumber><term>2012-2013 Autumn</term>` +
	`<schedules><schedule><startTime>10:00:00</startTime><endTime>10:50:00</endTime><days>Monday Wednesday</days></schedule></schedules>` +
	`</section></sections>`

func courseXML(subject, code string) string {
	return fmt.Sprintf(`<course><subject>%s</subject><code>%s</code><title>%s %s</title>`+
		`<unitsMin>3</unitsMin><unitsMax>4</unitsMax>%s</course>`, subject, code, subject, code, section)
}

func feed(courses ...string) string {
	return "<xml><courses>" + strings.Join(courses, "") + "</courses></xml>"
}

type fakeFetcher struct {
	docs  map[string]string
	delay map[string]time.Duration
	errs  map[string]error

	mu          sync.Mutex
	calls       []string
	inflight    int32
	maxInflight int32
}

func (f *fakeFetcher) FetchDepartment(ctx context.Context, dept string) (*catalog.Node, error) {
	f.mu.Lock()
	f.calls = append(f.calls, dept)
	f.mu.Unlock()

	n := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)
	for {
		max := atomic.LoadInt32(&f.maxInflight)
		if n <= max || atomic.CompareAndSwapInt32(&f.maxInflight, max, n) {
			break
		}
	}

	if d := f.delay[dept]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.errs[dept]; err != nil {
		return nil, err
	}

	body, ok := f.docs[dept]
	if !ok {
		body = feed()
	}
	return catalog.Parse(strings.NewReader(body))
}

// lockedBuffer is written from fetch goroutines and the emitting goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newDriver(fetcher Fetcher, depts ...string) *Driver {
	return &Driver{
		Departments: depts,
		AllowList:   filter.NewAllowList("CS 106A", "EE 101", "ME 101", "STATS 101"),
		Policy:      &filter.DefaultPolicy,
		Normalizer:  course.NewNormalizer(),
		Fetcher:     fetcher,
		Logger:      logger.New(logger.LevelError, io.Discard),
		Metrics:     metrics.New(),
	}
}

func ids(records []*course.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestCollect_FiltersAndNormalizes(t *testing.T) {
	fetcher := &fakeFetcher{docs: map[string]string{
		"CS": feed(courseXML("CS", "106A"), courseXML("CS", "101"), courseXML("CS", "229")),
		"EE": feed(courseXML("EE", "101"), courseXML("EE", "102")),
	}}
	d := newDriver(fetcher, "CS", "EE")

	records, summary, err := d.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"CS 106A", "CS 229", "EE 101"}, ids(records))
	assert.Equal(t, Summary{Departments: 2, Seen: 5, Kept: 3, Filtered: 2, Offerings: 6}, summary)

	first := records[0]
	assert.Equal(t, "CS 106A", first.Name)
	require.Len(t, first.CourseOfferings, 2)
	assert.Equal(t, offering.NewTerm("Autumn", "2013-2014"), first.CourseOfferings[1].Term)

	m := d.Metrics
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DepartmentsFetched))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CoursesSeen.WithLabelValues("CS")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CoursesKept.WithLabelValues("CS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CoursesFiltered.WithLabelValues("EE")))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.OfferingsEmitted))
	assert.Greater(t, testutil.ToFloat64(m.LastRunTimestamp), 0.0)
}

func TestCollect_EmptyDepartments(t *testing.T) {
	d := newDriver(&fakeFetcher{})

	records, summary, err := d.Collect(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
	assert.Equal(t, Summary{}, summary)
}

func TestRun_SequentialByDefault(t *testing.T) {
	fetcher := &fakeFetcher{delay: map[string]time.Duration{
		"CS": 20 * time.Millisecond,
		"EE": 20 * time.Millisecond,
		"ME": 20 * time.Millisecond,
	}}
	d := newDriver(fetcher, "CS", "EE", "ME")

	_, err := d.Run(context.Background(), func(*course.Record) error { return nil })
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&fetcher.maxInflight))
	assert.Equal(t, []string{"CS", "EE", "ME"}, fetcher.calls)
}

func TestRun_ParallelKeepsOrder(t *testing.T) {
	fetcher := &fakeFetcher{
		docs: map[string]string{
			"CS":    feed(courseXML("CS", "229"), courseXML("CS", "106A")),
			"EE":    feed(courseXML("EE", "101")),
			"ME":    feed(courseXML("ME", "101")),
			"STATS": feed(courseXML("STATS", "101")),
		},
		delay: map[string]time.Duration{
			"CS": 80 * time.Millisecond,
			"EE": 20 * time.Millisecond,
		},
	}
	d := newDriver(fetcher, "CS", "EE", "ME", "STATS")
	d.Concurrency = 4

	var got []string
	_, err := d.Run(context.Background(), func(rec *course.Record) error {
		got = append(got, rec.ID)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"CS 229", "CS 106A", "EE 101", "ME 101", "STATS 101"}, got)
	assert.Greater(t, atomic.LoadInt32(&fetcher.maxInflight), int32(1))
}

func TestRun_CourseErrorAborts(t *testing.T) {
	bad := `<course><subject>CS</subject><code>106A</code><unitsMin>3</unitsMin><unitsMax>4</unitsMax></course>`
	fetcher := &fakeFetcher{docs: map[string]string{
		"CS": feed(courseXML("CS", "229"), bad, courseXML("CS", "230")),
	}}
	d := newDriver(fetcher, "CS", "EE")

	var emitted []string
	_, err := d.Run(context.Background(), func(rec *course.Record) error {
		emitted = append(emitted, rec.ID)
		return nil
	})
	require.Error(t, err)

	var cerr *CourseError
	require.True(t, errors.As(err, &cerr), "error %v is not a CourseError", err)
	assert.Equal(t, "CS", cerr.Department)
	assert.Equal(t, "CS 106A", cerr.CourseID)

	var missing *catalog.MissingFieldError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "title", missing.Field)
	assert.Equal(t, "department CS, course CS 106A: title not found", err.Error())

	assert.Equal(t, []string{"CS 229"}, emitted)

	_, _, err = d.Collect(context.Background())
	assert.Error(t, err)
}

func TestRun_MissingCodeAborts(t *testing.T) {
	fetcher := &fakeFetcher{docs: map[string]string{
		"CS": feed(`<course><subject>CS</subject><title>No code</title></course>`),
	}}
	d := newDriver(fetcher, "CS")

	_, err := d.Run(context.Background(), func(*course.Record) error { return nil })

	var cerr *CourseError
	require.True(t, errors.As(err, &cerr))
	assert.Empty(t, cerr.CourseID)
	assert.Equal(t, "department CS: code not found", err.Error())
}

func TestRun_SkipInvalid(t *testing.T) {
	badTime := strings.Replace(courseXML("CS", "110"), "10:00:00", "ten o'clock", 1)
	badCode := courseXML("CS", "ABC")
	fetcher := &fakeFetcher{docs: map[string]string{
		"CS": feed(badTime, courseXML("CS", "229"), badCode),
		"EE": feed(courseXML("EE", "101")),
	}}

	logs := &lockedBuffer{}
	d := newDriver(fetcher, "CS", "EE")
	d.SkipInvalid = true
	d.Logger = logger.New(logger.LevelWarn, logs)

	records, summary, err := d.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"CS 229", "EE 101"}, ids(records))
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 4, summary.Seen)
	assert.Equal(t, 1.0, testutil.ToFloat64(d.Metrics.CoursesSkipped.WithLabelValues(metrics.ReasonTimeParse)))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.Metrics.CoursesSkipped.WithLabelValues(metrics.ReasonInvalidCode)))

	assert.Contains(t, logs.String(), "Skipping course")
	assert.Contains(t, logs.String(), "CS 110")
}

func TestRun_FetchErrorAborts(t *testing.T) {
	boom := errors.New("connection reset")
	fetcher := &fakeFetcher{
		docs: map[string]string{"CS": feed(courseXML("CS", "229"))},
		errs: map[string]error{"EE": boom},
	}
	d := newDriver(fetcher, "CS", "EE", "ME")

	var emitted []string
	summary, err := d.Run(context.Background(), func(rec *course.Record) error {
		emitted = append(emitted, rec.ID)
		return nil
	})

	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "fetching EE")
	assert.Equal(t, []string{"CS 229"}, emitted)
	assert.Equal(t, 1, summary.Departments)
}

func TestRun_ParallelFetchErrorReportsCause(t *testing.T) {
	boom := errors.New("service unavailable")
	fetcher := &fakeFetcher{
		delay: map[string]time.Duration{"CS": time.Second},
		errs:  map[string]error{"ME": boom},
	}
	d := newDriver(fetcher, "CS", "EE", "ME")
	d.Concurrency = 3

	start := time.Now()
	_, err := d.Run(context.Background(), func(*course.Record) error { return nil })

	require.ErrorIs(t, err, boom)
	assert.Less(t, time.Since(start), 900*time.Millisecond, "slow fetch should be cancelled")
}

func TestRun_EmitErrorAborts(t *testing.T) {
	diskFull := errors.New("disk full")
	fetcher := &fakeFetcher{docs: map[string]string{
		"CS": feed(courseXML("CS", "229"), courseXML("CS", "230")),
	}}
	d := newDriver(fetcher, "CS")

	calls := 0
	_, err := d.Run(context.Background(), func(*course.Record) error {
		calls++
		return diskFull
	})

	require.ErrorIs(t, err, diskFull)
	assert.Equal(t, 1, calls)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := newDriver(&fakeFetcher{}, "CS", "EE")
	_, err := d.Run(ctx, func(*course.Record) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_NoFetcher(t *testing.T) {
	d := newDriver(nil, "CS")
	_, err := d.Run(context.Background(), func(*course.Record) error { return nil })
	assert.Error(t, err)
}

func TestRun_Logging(t *testing.T) {
	fetcher := &fakeFetcher{docs: map[string]string{"CS": feed(courseXML("CS", "229"))}}
	logs := &lockedBuffer{}
	d := newDriver(fetcher, "CS")
	d.Logger = logger.New(logger.LevelDebug, logs)

	_, err := d.Run(context.Background(), func(*course.Record) error { return nil })
	require.NoError(t, err)

	out := logs.String()
	assert.Contains(t, out, `"message":"Getting courses"`)
	assert.Contains(t, out, `"department":"CS"`)
	assert.Contains(t, out, `"message":"Processed"`)
	assert.Contains(t, out, `"message":"Run complete"`)
}

func TestRun_DefaultsWhenUnset(t *testing.T) {
	fetcher := &fakeFetcher{docs: map[string]string{"CS": feed(courseXML("CS", "229"), courseXML("CS", "101"))}}
	d := &Driver{
		Departments: []string{"CS"},
		Fetcher:     fetcher,
		Logger:      logger.New(logger.LevelError, io.Discard),
	}

	records, _, err := d.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"CS 229"}, ids(records))
	assert.NotNil(t, d.Metrics)
}

func TestReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"missing field", &catalog.MissingFieldError{Field: "title"}, metrics.ReasonMissingField},
		{"wrapped missing field", fmt.Errorf("course: %w", &catalog.MissingFieldError{Field: "code"}), metrics.ReasonMissingField},
		{"invalid field", &catalog.InvalidFieldError{Field: "unitsMin", Value: "x"}, metrics.ReasonInvalidField},
		{"invalid code", &filter.InvalidCourseCodeError{Code: "ABC"}, metrics.ReasonInvalidCode},
		{"time parse", &offering.TimeParseError{CourseID: "CS 1", Field: "startTime", Value: "x"}, metrics.ReasonTimeParse},
		{"term format", &offering.TermFormatError{Term: "2012"}, metrics.ReasonTermFormat},
		{"other", errors.New("boom"), metrics.ReasonOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reason(tt.err))
		})
	}
}

func TestRun_AllowListOnlyPolicy(t *testing.T) {
	fetcher := &fakeFetcher{docs: map[string]string{"CS": feed(courseXML("CS", "106A"), courseXML("CS", "229"))}}
	d := newDriver(fetcher, "CS")
	d.Policy = &filter.Policy{}

	records, summary, err := d.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"CS 106A"}, ids(records))
	assert.Equal(t, 1, summary.Filtered)
}
