package dossiers

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Dossier is one demarches-simplifiees.fr filing.
//
// RawJSON is the detail response as received and the source of truth for
// every derived value. ChampsJSON is recomputed from RawJSON on each save and
// only exists to make the fields queryable.
type Dossier struct {
	ID         uint           `gorm:"primaryKey"`
	DSID       int64          `gorm:"column:ds_id;uniqueIndex;not null"`
	Status     Status         `gorm:"index;size:50;not null"`
	CreatedAt  time.Time      `gorm:"index;autoCreateTime:false"`
	UpdatedAt  *time.Time     `gorm:"autoUpdateTime:false"`
	Department string         `gorm:"index;size:255"` // department printed on the residence permit
	RawJSON    datatypes.JSON `gorm:"column:raw_json;not null"`
	ChampsJSON datatypes.JSON `gorm:"column:champs_json;not null"`
}

func (d *Dossier) BeforeSave(tx *gorm.DB) error {
	champs, err := ExtractChampsFromRaw(d.RawJSON)
	if err != nil {
		return err
	}
	b, err := json.Marshal(champs)
	if err != nil {
		return err
	}
	d.ChampsJSON = datatypes.JSON(b)
	return nil
}

func (d *Dossier) String() string {
	return fmt.Sprint(d.DSID)
}

// Champs decodes the stored flat field map.
func (d *Dossier) Champs() (Champs, error) {
	if len(d.ChampsJSON) == 0 {
		return ExtractChampsFromRaw(d.RawJSON)
	}
	var c Champs
	if err := json.Unmarshal(d.ChampsJSON, &c); err != nil {
		return nil, fmt.Errorf("decode champs of dossier %d: %w", d.DSID, err)
	}
	return c, nil
}

// Etablissement returns the `etablissement` object of the raw payload, nil
// when the dossier has none.
func (d *Dossier) Etablissement() (map[string]any, error) {
	p, err := decodeDetail(d.RawJSON)
	if err != nil {
		return nil, err
	}
	return p.Etablissement, nil
}

// Siret returns `etablissement.siret`.
func (d *Dossier) Siret() (string, error) {
	etab, err := d.Etablissement()
	if err != nil {
		return "", err
	}
	if etab == nil {
		return "", malformed(d.DSID, "missing etablissement")
	}
	siret, ok := etab["siret"].(string)
	if !ok || siret == "" {
		return "", malformed(d.DSID, "missing etablissement.siret")
	}
	return siret, nil
}

// Email is the applicant's e-mail address.
func (d *Dossier) Email() (string, error) {
	p, err := decodeDetail(d.RawJSON)
	if err != nil {
		return "", err
	}
	return p.Email, nil
}

// Accompagnateurs lists the agents following the dossier.
func (d *Dossier) Accompagnateurs() ([]string, error) {
	p, err := decodeDetail(d.RawJSON)
	if err != nil {
		return nil, err
	}
	return p.Accompagnateurs, nil
}

// HasExpired reports whether the work authorisation ended before now's date.
func (d *Dossier) HasExpired(now time.Time) (bool, error) {
	c, err := d.Champs()
	if err != nil {
		return false, err
	}
	end, ok := c.Date(KeyAPTEnd)
	if !ok {
		return false, nil
	}
	return end.Before(truncateDay(now)), nil
}
