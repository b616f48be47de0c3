package otfresults

import (
	"context"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nsip/otf-results/internal/rank"
	"github.com/nsip/otf-results/internal/sheets"
	"github.com/nsip/otf-results/internal/util"
	"golang.org/x/sync/errgroup"
)

// shown to students with no row in the requested test
const absentMessage = "You were absent for this test."

//
// LookupResult is the response to a get request,
// Student is only set when the roll number was found
//
type LookupResult struct {
	Found   bool           `json:"found"`
	Message string         `json:"message,omitempty"`
	Student *StudentResult `json:"student,omitempty"`
}

//
// StudentResult is one student's performance in one test.
// Rank and Percentile are nil when the test has no total
// score column.
//
type StudentResult struct {
	Name            string            `json:"name"`
	RollNumber      string            `json:"rollNumber"`
	Score           string            `json:"score"`
	Accuracy        string            `json:"accuracy"`
	Rank            *int              `json:"rank"`
	Percentile      *int              `json:"percentile"`
	TotalStudents   int               `json:"totalStudents"`
	AverageQPerHour string            `json:"averageQPerHour"`
	AttemptStatus   string            `json:"attemptStatus"`
	RawData         map[string]string `json:"rawData"`
}

//
// find the student in the table and work out their
// rank and percentile
//
func lookupStudent(table rank.Table, rollNumber string) *LookupResult {

	match, ok := rank.FindStudent(table, rollNumber)
	if !ok {
		return &LookupResult{Found: false, Message: absentMessage}
	}

	header := table.Header()
	rec := rank.Record(match.Row, header)
	total := table.Students()

	student := &StudentResult{
		Name:            rank.Field(rec, "Name", "Student Name"),
		RollNumber:      rollNumber,
		Score:           rank.Field(rec, "Total Score", "Score"),
		Accuracy:        rank.Field(rec, "Accuracy", "Accuracy %"),
		TotalStudents:   total,
		AverageQPerHour: rank.Field(rec, "Average Q/hour", "Avg Q/hour"),
		AttemptStatus:   rank.Field(rec, "Attempt Status", "Status"),
		RawData:         rec,
	}
	if len(header) > 0 {
		if v := rank.Field(rec, header[0]); v != "" {
			student.RollNumber = v
		}
	}

	if col := rank.ScoreColumn(header); col >= 0 {
		// 0 only when nobody in the test has a usable score
		if r := rank.Rank(table, match.Index, col); r > 0 {
			student.Rank = &r
			if total > 0 {
				p := rank.Percentile(total, r)
				student.Percentile = &p
			}
		}
	}

	return &LookupResult{Found: true, Student: student}
}

//
// report which tests the student sat.
// Tabs are fetched concurrently; a tab that cannot be read
// is logged and counted as absent rather than failing the
// whole check. Only a failure to list the tabs is an error.
//
func checkAttendance(ctx context.Context, src sheets.Source, rollNumber string, maxFetches int, logger echo.Logger) (map[string]bool, error) {

	defer util.TimeTrack(time.Now(), "attendance check")

	names, err := src.SheetNames(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	attendance := make(map[string]bool, len(names))

	g := &errgroup.Group{}
	g.SetLimit(maxFetches)
	for _, name := range names {
		name := name
		g.Go(func() error {
			present := false
			table, err := src.Values(ctx, name)
			if err != nil {
				logger.Warnf("attendance: cannot read sheet %q: %v", name, err)
			} else if len(table) > 0 {
				_, present = rank.FindStudent(table, rollNumber)
			}

			mu.Lock()
			attendance[name] = present
			mu.Unlock()
			return nil
		})
	}
	// per-tab failures never reach the group
	_ = g.Wait()

	return attendance, nil
}
