// Package quarterly holds the period handling shared by the quarterly
// sector-account pipelines: parsing SDMX quarter tokens and deriving the
// temporal columns their data sheets lead with.
package quarterly

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TemporalHeader is the fixed set of leading columns on a quarterly data
// sheet.
var TemporalHeader = []string{"PERIOD", "YEAR", "SEMESTER", "QUARTER"}

// TemporalColWidth applies to each of the temporal columns.
const TemporalColWidth = 10.0

// Period is one calendar quarter.
type Period struct {
	Year    int
	Quarter int
}

// Parse reads an SDMX quarter token, accepting both "2024-Q1" and
// "2024Q1".
func Parse(s string) (Period, bool) {
	year, rest, found := strings.Cut(s, "Q")
	if !found {
		return Period{}, false
	}
	year = strings.TrimSuffix(year, "-")

	y, err := strconv.Atoi(year)
	if err != nil || y <= 0 {
		return Period{}, false
	}
	q, err := strconv.Atoi(rest)
	if err != nil || q < 1 || q > 4 {
		return Period{}, false
	}
	return Period{Year: y, Quarter: q}, true
}

// String renders the compact form used in period columns and ranges,
// "2024Q1".
func (p Period) String() string {
	return fmt.Sprintf("%dQ%d", p.Year, p.Quarter)
}

// Semester is "Sem1" for the first two quarters and "Sem2" for the rest.
func (p Period) Semester() string {
	if p.Quarter <= 2 {
		return "Sem1"
	}
	return "Sem2"
}

// Label is the bare quarter tag, "Q1".."Q4".
func (p Period) Label() string {
	return fmt.Sprintf("Q%d", p.Quarter)
}

// Less orders periods chronologically.
func (p Period) Less(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Quarter < other.Quarter
}

// TemporalCells are the row values under TemporalHeader.
func (p Period) TemporalCells() []any {
	return []any{p.String(), p.Year, p.Semester(), p.Label()}
}

// Sorted returns the periods seen in a value set, oldest first.
func Sorted(set map[Period]bool) []Period {
	periods := make([]Period, 0, len(set))
	for p := range set {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].Less(periods[j]) })
	return periods
}
