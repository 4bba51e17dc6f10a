package dossiers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ValidityEntry is one accepted dossier exposed to the validity-check UI.
// Names are obfuscated.
type ValidityEntry struct {
	DSID       int64   `json:"id"`
	Siret      string  `json:"siret"`
	FirstName  string  `json:"prenom"`
	LastName   string  `json:"nom"`
	BirthDate  *string `json:"date_de_naissance"`
	HasExpired bool    `json:"has_expired"`
	APTStart   *string `json:"date_de_debut_apt"`
	APTEnd     *string `json:"date_de_fin_apt"`
}

// ValidityCheck lists closed dossiers ordered by DSID. Dossiers without an
// etablissement siret are logged and left out.
func (s *Store) ValidityCheck(ctx context.Context, now time.Time) ([]ValidityEntry, error) {
	var rows []Dossier
	err := s.db.WithContext(ctx).
		Where("status = ?", StatusClosed).
		Order("ds_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("validity check: %w", err)
	}

	out := make([]ValidityEntry, 0, len(rows))
	for i := range rows {
		e, err := validityEntry(&rows[i], now)
		if err != nil {
			var mre *MalformedRecordError
			if errors.As(err, &mre) {
				s.logger.Warn("dossier left out of validity check", "ds_id", rows[i].DSID, "err", err)
				continue
			}
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func validityEntry(d *Dossier, now time.Time) (ValidityEntry, error) {
	siret, err := d.Siret()
	if err != nil {
		return ValidityEntry{}, err
	}
	c, err := d.Champs()
	if err != nil {
		return ValidityEntry{}, err
	}
	expired, err := d.HasExpired(now)
	if err != nil {
		return ValidityEntry{}, err
	}
	return ValidityEntry{
		DSID:       d.DSID,
		Siret:      siret,
		FirstName:  Obfuscate(c.String(KeyFirstName)),
		LastName:   Obfuscate(c.String(KeyLastName)),
		BirthDate:  dateString(c, KeyBirthDate),
		HasExpired: expired,
		APTStart:   dateString(c, KeyAPTStart),
		APTEnd:     dateString(c, KeyAPTEnd),
	}, nil
}

func dateString(c Champs, key string) *string {
	t, ok := c.Date(key)
	if !ok {
		return nil
	}
	s := formatDate(t)
	return &s
}

// Obfuscate masks a trimmed string with '*', keeping spaces and the second
// character: " Emma Louise " -> "*m** ******".
func Obfuscate(s string) string {
	var b strings.Builder
	for i, r := range []rune(strings.TrimSpace(s)) {
		if i == 1 || r == ' ' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('*')
	}
	return b.String()
}
