package activity

import (
	"fmt"
	"sort"
	"time"
)

// weekdays in ISO order, Monday first
var weekdays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// Distribute buckets commits by author date in UTC for every granularity.
// Hour and weekday rows cover the full range including empty buckets; day,
// week and month rows only appear when they hold commits. Within each
// granularity the counts sum to len(commits).
func Distribute(commits []Commit) []Bucket {
	hours := make([]int, 24)
	days := make(map[time.Weekday]int)
	perDay := make(map[string]int)
	perWeek := make(map[string]int)
	perMonth := make(map[string]int)

	for _, c := range commits {
		t := c.Date.UTC()
		hours[t.Hour()]++
		days[t.Weekday()]++
		perDay[t.Format("2006-01-02")]++
		perWeek[WeekKey(t)]++
		perMonth[t.Format("2006-01")]++
	}

	out := make([]Bucket, 0, 24+7+len(perDay)+len(perWeek)+len(perMonth))
	for h, n := range hours {
		out = append(out, Bucket{Granularity: Hour, Key: fmt.Sprintf("%02d", h), Count: n})
	}
	for _, d := range weekdays {
		out = append(out, Bucket{Granularity: Weekday, Key: d.String(), Count: days[d]})
	}
	out = appendSorted(out, Day, perDay)
	out = appendSorted(out, Week, perWeek)
	out = appendSorted(out, Month, perMonth)
	return out
}

// WeekKey formats the ISO week of t as YYYY-Www, using the ISO year.
func WeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// Totals sums bucket counts per granularity.
func Totals(buckets []Bucket) map[Granularity]int {
	totals := make(map[Granularity]int, len(Granularities))
	for _, b := range buckets {
		totals[b.Granularity] += b.Count
	}
	return totals
}

func appendSorted(out []Bucket, g Granularity, counts map[string]int) []Bucket {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, Bucket{Granularity: g, Key: k, Count: counts[k]})
	}
	return out
}
