package dossiers

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const fixtureID = 44950

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "dossiers.db"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func loadFixture(t *testing.T) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", "dossier_44950.json"))
	require.NoError(t, err)
	return b
}

// fixtureDoc is the 44950 payload decoded for editing.
type fixtureDoc map[string]any

func newFixtureDoc(t *testing.T) fixtureDoc {
	t.Helper()
	var doc fixtureDoc
	require.NoError(t, json.Unmarshal(loadFixture(t), &doc))
	return doc
}

func (d fixtureDoc) dossier() map[string]any {
	return d["dossier"].(map[string]any)
}

func (d fixtureDoc) set(key string, v any) fixtureDoc {
	d.dossier()[key] = v
	return d
}

// setChamp replaces the value of every public or private field with label.
func (d fixtureDoc) setChamp(label string, v any) fixtureDoc {
	for _, list := range []string{"champs", "champs_private"} {
		for _, c := range d.dossier()[list].([]any) {
			champ := c.(map[string]any)
			if champ["type_de_champ"].(map[string]any)["libelle"] == label {
				champ["value"] = v
			}
		}
	}
	return d
}

// dropChamp removes the field with label from both lists.
func (d fixtureDoc) dropChamp(label string) fixtureDoc {
	for _, list := range []string{"champs", "champs_private"} {
		var kept []any
		for _, c := range d.dossier()[list].([]any) {
			if c.(map[string]any)["type_de_champ"].(map[string]any)["libelle"] != label {
				kept = append(kept, c)
			}
		}
		d.dossier()[list] = kept
	}
	return d
}

func (d fixtureDoc) bytes(t *testing.T) []byte {
	t.Helper()
	b, err := json.Marshal(d)
	require.NoError(t, err)
	return b
}

// newPayload returns the fixture as dossier id with the given state and
// timestamps. An empty updatedAt is sent as null.
func newPayload(t *testing.T, id int64, state, createdAt, updatedAt string) []byte {
	t.Helper()
	doc := newFixtureDoc(t).set("id", id).set("state", state).set("created_at", createdAt)
	if updatedAt == "" {
		doc.set("updated_at", nil)
	} else {
		doc.set("updated_at", updatedAt)
	}
	return doc.bytes(t)
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return b
}
