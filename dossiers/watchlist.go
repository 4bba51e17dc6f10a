package dossiers

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// WatchEntry is one line of the watch-before-renewal list.
type WatchEntry struct {
	ExpiresOn   time.Time
	DSID        int64
	Nationality string
	FirstName   string
	LastName    string
	Status      Status
}

func (e WatchEntry) String() string {
	return fmt.Sprintf("%s - %d - %s - %s - %s - %s",
		e.ExpiresOn.Format("02/01/2006"), e.DSID, e.Nationality, e.FirstName, e.LastName, e.Status.Label())
}

var permitEndExpr = fmt.Sprintf("json_extract(champs_json, '$.%s')", KeyPermitEnd)

// Watchlist returns the dossiers whose residence permit expires after now's
// date, the furthest expiry first. They are the ones to check before the
// holder renews the permit at the préfecture.
func (s *Store) Watchlist(ctx context.Context, now time.Time) ([]WatchEntry, error) {
	today := truncateDay(now)
	var rows []Dossier
	err := s.db.WithContext(ctx).
		Where(datatypes.JSONQuery("champs_json").HasKey(KeyPermitEnd)).
		Where(permitEndExpr+" > ?", formatDate(today)).
		Order(permitEndExpr + " DESC").
		Order("ds_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("watchlist: %w", err)
	}

	out := make([]WatchEntry, 0, len(rows))
	for i := range rows {
		d := &rows[i]
		c, err := d.Champs()
		if err != nil {
			return nil, err
		}
		expires, ok := c.Date(KeyPermitEnd)
		if !ok || !expires.After(today) {
			continue
		}
		out = append(out, WatchEntry{
			ExpiresOn:   expires,
			DSID:        d.DSID,
			Nationality: c.String(KeyNationality),
			FirstName:   c.String(KeyFirstName),
			LastName:    c.String(KeyLastName),
			Status:      d.Status,
		})
	}
	return out, nil
}
