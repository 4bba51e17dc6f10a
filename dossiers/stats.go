package dossiers

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Default windows of the time series.
const (
	DefaultDayWindow   = 31 * 24 * time.Hour
	DefaultMonthWindow = 365 * 24 * time.Hour
)

type DayCount struct {
	Day   time.Time
	Total int
}

type MonthCount struct {
	Month time.Time
	Total int
}

type CountryCount struct {
	Country string
	Total   int64
}

type MonthDuration struct {
	Month    time.Time
	Dossiers int
	Average  time.Duration
}

func (s *Store) loadTimestamps(ctx context.Context, statuses ...Status) ([]Dossier, error) {
	q := s.db.WithContext(ctx).Model(&Dossier{}).Select("ds_id", "status", "created_at", "updated_at")
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var rows []Dossier
	if err := q.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load dossier timestamps: %w", err)
	}
	return rows, nil
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

func truncateMonth(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// CountByDay counts dossiers created on each day between from and to, days
// without dossiers included.
func (s *Store) CountByDay(ctx context.Context, from, to time.Time) ([]DayCount, error) {
	rows, err := s.loadTimestamps(ctx)
	if err != nil {
		return nil, err
	}
	perDay := make(map[time.Time]int)
	for _, d := range rows {
		if inRange(d.CreatedAt, from, to) {
			perDay[truncateDay(d.CreatedAt)]++
		}
	}
	var out []DayCount
	for day := truncateDay(from); !day.After(truncateDay(to)); day = day.AddDate(0, 0, 1) {
		out = append(out, DayCount{Day: day, Total: perDay[day]})
	}
	return out, nil
}

// CountByMonth counts dossiers created in each month between from and to.
// Months without dossiers are left out.
func (s *Store) CountByMonth(ctx context.Context, from, to time.Time) ([]MonthCount, error) {
	rows, err := s.loadTimestamps(ctx)
	if err != nil {
		return nil, err
	}
	perMonth := make(map[time.Time]int)
	for _, d := range rows {
		if inRange(d.CreatedAt, from, to) {
			perMonth[truncateMonth(d.CreatedAt)]++
		}
	}
	out := make([]MonthCount, 0, len(perMonth))
	for m, n := range perMonth {
		out = append(out, MonthCount{Month: m, Total: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out, nil
}

// CountByCountry counts dossiers per nationality, biggest first.
func (s *Store) CountByCountry(ctx context.Context) ([]CountryCount, error) {
	expr := fmt.Sprintf("json_extract(champs_json, '$.%s')", KeyNationality)
	var out []CountryCount
	err := s.db.WithContext(ctx).Model(&Dossier{}).
		Select(expr + " AS country, count(*) AS total").
		Where(expr + " IS NOT NULL").
		Group("country").
		Order("total DESC, country ASC").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("count by country: %w", err)
	}
	return out, nil
}

// TimeToProcess is the mean time between creation and last update of the
// dossiers in status. ok is false when no dossier qualifies.
func (s *Store) TimeToProcess(ctx context.Context, status Status) (avg time.Duration, ok bool, err error) {
	rows, err := s.loadTimestamps(ctx, status)
	if err != nil {
		return 0, false, err
	}
	var total time.Duration
	n := 0
	for _, d := range rows {
		if d.UpdatedAt == nil {
			continue
		}
		total += d.UpdatedAt.Sub(d.CreatedAt)
		n++
	}
	if n == 0 {
		return 0, false, nil
	}
	return total / time.Duration(n), true, nil
}

// TimeToProcessByMonth is TimeToProcess grouped by creation month.
func (s *Store) TimeToProcessByMonth(ctx context.Context, status Status, from, to time.Time) ([]MonthDuration, error) {
	rows, err := s.loadTimestamps(ctx, status)
	if err != nil {
		return nil, err
	}
	type acc struct {
		n     int
		total time.Duration
	}
	perMonth := make(map[time.Time]*acc)
	for _, d := range rows {
		if d.UpdatedAt == nil || !inRange(d.CreatedAt, from, to) {
			continue
		}
		m := truncateMonth(d.CreatedAt)
		a, ok := perMonth[m]
		if !ok {
			a = &acc{}
			perMonth[m] = a
		}
		a.n++
		a.total += d.UpdatedAt.Sub(d.CreatedAt)
	}
	out := make([]MonthDuration, 0, len(perMonth))
	for m, a := range perMonth {
		out = append(out, MonthDuration{Month: m, Dossiers: a.n, Average: a.total / time.Duration(a.n)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out, nil
}
