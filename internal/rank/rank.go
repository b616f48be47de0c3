//
// Package rank locates a student's row in a results table and
// works out where their score places them in the cohort.
//
package rank

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

//
// Table is the raw content of one test tab.
// Row 0 is the header, every following row is one student.
// Rows may be ragged, missing cells read as empty strings.
//
type Table [][]string

//
// returns the cell at row r, column c or "" if the
// table has no such cell
//
func (t Table) Cell(r, c int) string {
	if r < 0 || r >= len(t) || c < 0 || c >= len(t[r]) {
		return ""
	}
	return t[r][c]
}

//
// returns the header row, nil for an empty table
//
func (t Table) Header() []string {
	if len(t) == 0 {
		return nil
	}
	return t[0]
}

//
// number of student rows, ie. every row bar the header
//
func (t Table) Students() int {
	if len(t) < 2 {
		return 0
	}
	return len(t) - 1
}

// column that holds the roll number
const rollNumberColumn = 0

//
// Match is a student row found in a table
//
type Match struct {
	// the raw cells of the row
	Row []string
	// position of the row in the table, always >= 1
	Index int
}

//
// normalise a roll number for comparison
//
func NormalizeRollNumber(rollNumber string) string {
	return strings.ToUpper(strings.TrimSpace(rollNumber))
}

//
// find the first student row whose roll number matches.
// A cell matches when it equals the query or is the query
// followed by an account suffix such as "OPEN183@user".
//
func FindStudent(t Table, rollNumber string) (Match, bool) {

	query := NormalizeRollNumber(rollNumber)

	for i := 1; i < len(t); i++ {
		cell := t.Cell(i, rollNumberColumn)
		if cell == "" {
			continue
		}
		candidate := NormalizeRollNumber(cell)
		if candidate == query || strings.HasPrefix(candidate, query+"@") {
			return Match{Row: t[i], Index: i}, true
		}
	}

	return Match{}, false
}

var leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

//
// extract a numeric score from a cell.
// Cells can hold a plain number "12" or a fraction "9/15",
// for fractions only the numerator is the score.
// Trailing text after the number is ignored ("85%" is 85).
// Returns false for empty or non-numeric cells.
//
func ParseScore(cell string) (float64, bool) {

	s := strings.TrimSpace(cell)
	if s == "" {
		return 0, false
	}

	if i := strings.Index(s, "/"); i >= 0 {
		s = strings.TrimSpace(s[:i])
		// "/15" has no numerator, count it as zero
		if s == "" {
			return 0, true
		}
	}

	num := leadingNumber.FindString(s)
	if num == "" {
		return 0, false
	}
	score, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}

	return score, true
}

type entry struct {
	score float64
	index int
}

//
// calculate the 1-based rank of the student at rowIndex
// by score in column scoreCol.
//
// Rows with no parseable score are left out of the ranking.
// Equal scores keep their original row order, there is no
// secondary tie-break (eg. on accuracy).
// If the student's own score cannot be parsed the number of
// ranked students is returned.
//
func Rank(t Table, rowIndex int, scoreCol int) int {

	if len(t) < 2 {
		return 1
	}

	scores := make([]entry, 0, len(t)-1)
	for i := 1; i < len(t); i++ {
		score, ok := ParseScore(t.Cell(i, scoreCol))
		if !ok {
			continue
		}
		scores = append(scores, entry{score: score, index: i})
	}

	sort.SliceStable(scores, func(a, b int) bool {
		return scores[a].score > scores[b].score
	})

	for pos, e := range scores {
		if e.index == rowIndex {
			return pos + 1
		}
	}

	return len(scores)
}

//
// percentage of the cohort that this rank outperforms,
// rounded to the nearest whole number.
// Rank 2 of 45 gives 96, displayed to students as "Top 4%".
//
func Percentile(total, rank int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(total-rank) / float64(total) * 100))
}

//
// find the column holding the total score, the first header
// that mentions both "total" and "score".
// Returns -1 if the table has no such column.
//
func ScoreColumn(header []string) int {
	for i, h := range header {
		lh := strings.ToLower(h)
		if strings.Contains(lh, "total") && strings.Contains(lh, "score") {
			return i
		}
	}
	return -1
}

//
// map header names to the cells of a row
//
func Record(row []string, header []string) map[string]string {
	rec := make(map[string]string, len(header))
	for i, h := range header {
		if i < len(row) {
			rec[h] = row[i]
		} else {
			rec[h] = ""
		}
	}
	return rec
}

//
// return the first non-empty value found under any of the
// given column names, sheets are not consistent in naming
//
func Field(rec map[string]string, names ...string) string {
	for _, n := range names {
		if v := rec[n]; v != "" {
			return v
		}
	}
	return ""
}
