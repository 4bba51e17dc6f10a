package dossiers

import (
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ChampSpec maps one upstream field label to a stable key.
type ChampSpec struct {
	Key     string
	Label   string
	Private bool // found in champs_private
	Date    bool // holds a YYYY-MM-DD value
}

// ChampSpecs is the label dictionary. Every label must be present in a
// dossier payload, even when its value is null.
var ChampSpecs = []ChampSpec{
	{Key: "date_de_debut_apt", Label: "Date de début APT", Private: true, Date: true},
	{Key: "date_de_fin_apt", Label: "Date de fin APT", Private: true, Date: true},
	{Key: "cadre_reserve_a_ladministration", Label: "Cadre réservé à l'administration", Private: true},

	{Key: "delivre_par", Label: "Délivré par"},
	{Key: "salaire_brut", Label: "Salaire brut"},
	{Key: "nombre_dheures", Label: "Nombre d'heures"},
	{Key: "date_de_fin", Label: "Date de fin", Date: true},
	{Key: "date_de_debut", Label: "Date de début", Date: true},
	{Key: "type_de_contrat", Label: "Type de contrat"},
	{Key: "adresse_ou_letudiant_va_travailler", Label: "Adresse ou l'étudiant va travailler"},
	{Key: "emploi_occupe", Label: "Emploi occupé"},
	{Key: "telephone_de_lemployeur", Label: "Téléphone de l'employeur"},
	{Key: "e_mail_de_lemployeur", Label: "E-mail de l'employeur"},
	{Key: "prenom_de_lemployeur", Label: "Prénom de l'employeur"},
	{Key: "nom_de_lemployeur", Label: "Nom de l'employeur"},
	{Key: "departement_titre_de_sejour", Label: DepartmentLabel},
	{Key: "numero", Label: "Numéro"},
	{Key: "reference_de_lancienne_autorisation_de_travail", Label: "Référence de l’ancienne autorisation de travail"},
	{Key: "demande", Label: "Demande"},
	{Key: "telephone", Label: "Téléphone"},
	{Key: "e_mail", Label: "E-mail"},
	{Key: "lieu_de_naissance", Label: "Lieu de naissance"},
	{Key: "date_de_naissance", Label: "Date de naissance", Date: true},
	{Key: "nationalite", Label: "Nationalité"},
	{Key: "prenom", Label: "Prénom"},
	{Key: "nom", Label: "Nom"},
	{Key: "civilite", Label: "Civilité"},
	{Key: "code_postal_de_residence_en_france", Label: "Code postal de résidence en France"},
	{Key: "commune_de_residence_en_france", Label: "Commune de résidence en France"},
	{Key: "a_propos_de_lemployeur", Label: "À propos de l'employeur"},
	{Key: "informations_sur_le_contrat", Label: "Informations sur le contrat"},
	{Key: "employeur", Label: "Employeur"},
	{Key: "date_dexpiration_titre_sejour", Label: "Date d’expiration", Date: true},
	{Key: "salarie", Label: "Salarié"},
	{Key: "document_autorisant_le_sejour_en_france", Label: "Document autorisant le séjour en France"},
}

// DepartmentLabel is the public field holding the department printed on the
// residence permit.
const DepartmentLabel = "Département qui figure sur le titre de séjour"

// Keys used by the projections.
const (
	KeyAPTStart    = "date_de_debut_apt"
	KeyAPTEnd      = "date_de_fin_apt"
	KeyBirthDate   = "date_de_naissance"
	KeyNationality = "nationalite"
	KeyFirstName   = "prenom"
	KeyLastName    = "nom"
	KeyPermitEnd   = "date_dexpiration_titre_sejour"
)

var dateKeys = func() map[string]bool {
	m := make(map[string]bool)
	for _, s := range ChampSpecs {
		if s.Date {
			m[s.Key] = true
		}
	}
	return m
}()

// Champ is one entry of `champs` or `champs_private`.
type Champ struct {
	Value       any `json:"value"`
	TypeDeChamp struct {
		Libelle string `json:"libelle"`
	} `json:"type_de_champ"`
}

// Champs is the flat key → value view of a dossier's fields. Values are
// kept as received (string or nil).
type Champs map[string]any

// ExtractChamps builds the flat field map. Private entries override public
// entries carrying the same label.
func ExtractChamps(dsID int64, public, private []Champ) (Champs, error) {
	byLabel := make(map[string]any, len(public)+len(private))
	for _, c := range public {
		byLabel[normalizeLabel(c.TypeDeChamp.Libelle)] = c.Value
	}
	for _, c := range private {
		byLabel[normalizeLabel(c.TypeDeChamp.Libelle)] = c.Value
	}

	out := make(Champs, len(ChampSpecs))
	for _, spec := range ChampSpecs {
		v, ok := byLabel[normalizeLabel(spec.Label)]
		if !ok {
			return nil, malformed(dsID, "missing field %q", spec.Label)
		}
		out[spec.Key] = v
	}
	return out, nil
}

func normalizeLabel(s string) string {
	return norm.NFC.String(s)
}

// Get returns the value stored under key. Date fields are coerced to
// time.Time when they parse.
func (c Champs) Get(key string) any {
	v := c[key]
	if dateKeys[key] {
		return CoerceDate(v)
	}
	return v
}

// String returns the value as text, "" for null.
func (c Champs) String(key string) string {
	switch v := c[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Date returns the coerced date stored under key.
func (c Champs) Date(key string) (time.Time, bool) {
	t, ok := c.Get(key).(time.Time)
	return t, ok
}
