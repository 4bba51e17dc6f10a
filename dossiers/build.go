package dossiers

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type detailEnvelope struct {
	Dossier *dossierPayload `json:"dossier"`
}

// dossierPayload is the subset of GET /dossiers/{id} read by the sync.
type dossierPayload struct {
	ID              int64          `json:"id"`
	State           string         `json:"state"`
	CreatedAt       string         `json:"created_at"`
	UpdatedAt       *string        `json:"updated_at"`
	Email           string         `json:"email"`
	Champs          []Champ        `json:"champs"`
	ChampsPrivate   []Champ        `json:"champs_private"`
	Etablissement   map[string]any `json:"etablissement"`
	Accompagnateurs []string       `json:"accompagnateurs"`
}

func decodeDetail(raw []byte) (*dossierPayload, error) {
	var env detailEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, malformed(0, "decode detail: %v", err)
	}
	if env.Dossier == nil {
		return nil, malformed(0, "missing dossier object")
	}
	return env.Dossier, nil
}

// ExtractChampsFromRaw runs ExtractChamps on a raw detail response.
func ExtractChampsFromRaw(raw []byte) (Champs, error) {
	p, err := decodeDetail(raw)
	if err != nil {
		return nil, err
	}
	return ExtractChamps(p.ID, p.Champs, p.ChampsPrivate)
}

// BuildDossier turns a raw detail response into a candidate Dossier ready for
// Store.UpsertIfNewer.
func BuildDossier(raw []byte) (*Dossier, error) {
	p, err := decodeDetail(raw)
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, malformed(0, "missing id")
	}

	status, err := ParseStatus(p.State)
	if err != nil {
		return nil, malformed(p.ID, "%v", err)
	}
	createdAt, err := ParseDateTime(p.CreatedAt)
	if err != nil {
		return nil, malformed(p.ID, "created_at: %v", err)
	}
	var updatedAt *time.Time
	if p.UpdatedAt != nil && *p.UpdatedAt != "" {
		t, err := ParseDateTime(*p.UpdatedAt)
		if err != nil {
			return nil, malformed(p.ID, "updated_at: %v", err)
		}
		updatedAt = &t
	}
	department, err := publicValue(p, DepartmentLabel)
	if err != nil {
		return nil, err
	}

	champs, err := ExtractChamps(p.ID, p.Champs, p.ChampsPrivate)
	if err != nil {
		return nil, err
	}
	champsJSON, err := json.Marshal(champs)
	if err != nil {
		return nil, err
	}

	return &Dossier{
		DSID:       p.ID,
		Status:     status,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
		Department: department,
		RawJSON:    datatypes.JSON(append([]byte(nil), raw...)),
		ChampsJSON: datatypes.JSON(champsJSON),
	}, nil
}

func publicValue(p *dossierPayload, label string) (string, error) {
	want := normalizeLabel(label)
	for _, c := range p.Champs {
		if normalizeLabel(c.TypeDeChamp.Libelle) != want {
			continue
		}
		s, _ := c.Value.(string)
		return s, nil
	}
	return "", malformed(p.ID, "missing field %q", label)
}
