package dossiers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	StatsFileName         = "stats.json"
	ValidityCheckFileName = "validity_check.json"
)

// Chart is the Frappe Charts data shape.
type Chart struct {
	Labels   []string       `json:"labels"`
	Datasets []ChartDataset `json:"datasets"`
}

type ChartDataset struct {
	Name   string `json:"name"`
	Values []any  `json:"values"`
}

type StatsSummary struct {
	LastUpdate          time.Time `json:"last_update"`
	TimeToProcess       int       `json:"time_to_process"` // days
	TotalDossiersClosed int64     `json:"total_dossiers_closed"`
	TotalDossiers       int64     `json:"total_dossiers"`
}

// StatsReport is the content of stats.json.
type StatsReport struct {
	Data                     StatsSummary `json:"data"`
	NumDossiersDay           Chart        `json:"data_num_dossiers_day"`
	NumDossiersMonth         Chart        `json:"data_num_dossiers_month"`
	NumByStatus              Chart        `json:"data_num_by_status"`
	NumByCountry             Chart        `json:"data_num_by_contry"`
	TimeToProcessByMonthDays Chart        `json:"data_time_to_process_by_month"`
}

func days(d time.Duration) int {
	return int(math.Floor(d.Hours() / 24))
}

// BuildStatsReport computes every chart of stats.json at now.
func BuildStatsReport(ctx context.Context, s *Store, now time.Time) (*StatsReport, error) {
	now = now.UTC()
	r := &StatsReport{}

	perDay, err := s.CountByDay(ctx, now.Add(-DefaultDayWindow), now)
	if err != nil {
		return nil, err
	}
	r.NumDossiersDay = Chart{Datasets: []ChartDataset{{Name: "Nombre de dossiers par jour"}}}
	for _, d := range perDay {
		r.NumDossiersDay.Labels = append(r.NumDossiersDay.Labels, d.Day.Format("02/01/06"))
		r.NumDossiersDay.Datasets[0].Values = append(r.NumDossiersDay.Datasets[0].Values, d.Total)
	}

	perMonth, err := s.CountByMonth(ctx, now.Add(-DefaultMonthWindow), now)
	if err != nil {
		return nil, err
	}
	r.NumDossiersMonth = Chart{Datasets: []ChartDataset{{Name: "Nombre de dossiers par mois"}}}
	for _, m := range perMonth {
		r.NumDossiersMonth.Labels = append(r.NumDossiersMonth.Labels, m.Month.Format("01/06"))
		r.NumDossiersMonth.Datasets[0].Values = append(r.NumDossiersMonth.Datasets[0].Values, m.Total)
	}

	perStatus, err := s.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	r.NumByStatus = Chart{Datasets: []ChartDataset{{Name: "Nombre de dossiers par statut"}}}
	for _, st := range Statuses {
		r.NumByStatus.Labels = append(r.NumByStatus.Labels, st.Label())
		r.NumByStatus.Datasets[0].Values = append(r.NumByStatus.Datasets[0].Values, perStatus[st])
	}

	perCountry, err := s.CountByCountry(ctx)
	if err != nil {
		return nil, err
	}
	title := cases.Title(language.French)
	r.NumByCountry = Chart{Datasets: []ChartDataset{{Name: "Nombre de dossiers par pays"}}}
	for _, c := range perCountry {
		r.NumByCountry.Labels = append(r.NumByCountry.Labels, title.String(strings.ToLower(c.Country)))
		r.NumByCountry.Datasets[0].Values = append(r.NumByCountry.Datasets[0].Values, c.Total)
	}

	ttpByMonth, err := s.TimeToProcessByMonth(ctx, StatusClosed, now.Add(-DefaultMonthWindow), now)
	if err != nil {
		return nil, err
	}
	r.TimeToProcessByMonthDays = Chart{Datasets: []ChartDataset{{Name: "Temps de traitement moyen par mois (en jours)"}}}
	for _, m := range ttpByMonth {
		r.TimeToProcessByMonthDays.Labels = append(r.TimeToProcessByMonthDays.Labels,
			fmt.Sprintf("%s - %d jour(s)", m.Month.Format("01/2006"), days(m.Average)))
		r.TimeToProcessByMonthDays.Datasets[0].Values = append(r.TimeToProcessByMonthDays.Datasets[0].Values, days(m.Average))
	}

	ttp, _, err := s.TimeToProcess(ctx, StatusClosed)
	if err != nil {
		return nil, err
	}
	closed, err := s.Count(ctx, StatusClosed)
	if err != nil {
		return nil, err
	}
	total, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	r.Data = StatsSummary{
		LastUpdate:          now,
		TimeToProcess:       days(ttp),
		TotalDossiersClosed: closed,
		TotalDossiers:       total,
	}
	return r, nil
}

// WriteJSONFile encodes v into dir/name. The file is written next to its
// destination and renamed, so readers never see a partial document.
func WriteJSONFile(dir string, name string, v any) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", fmt.Errorf("export dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	dstPath := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, "."+name+"-*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	_, writeErr := tmp.Write(b)
	closeErr := tmp.Close()
	if writeErr != nil {
		_ = os.Remove(tmpPath)
		return "", writeErr
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return "", closeErr
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, dstPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	return dstPath, nil
}
