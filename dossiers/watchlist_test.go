package dossiers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeWithPermitEnd(t *testing.T, s *Store, id int64, state string, permitEnd any, firstName string) {
	t.Helper()
	raw := newFixtureDoc(t).
		set("id", id).set("state", state).
		setChamp("Date d’expiration", permitEnd).
		setChamp("Prénom", firstName).
		bytes(t)
	upsert(t, s, raw)
}

func TestStore_Watchlist(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 10, 19, 15, 30, 0, 0, time.UTC)

	storeWithPermitEnd(t, s, 10, "en_instruction", "2027-01-01", "Alice")
	storeWithPermitEnd(t, s, 11, "accepte", "2028-06-30", "Bruno")
	storeWithPermitEnd(t, s, 12, "en_construction", "2026-10-19", "Chloé")
	storeWithPermitEnd(t, s, 13, "accepte", "2025-01-01", "Driss")
	storeWithPermitEnd(t, s, 14, "accepte", nil, "Eva")
	storeWithPermitEnd(t, s, 15, "refuse", "not a date", "Farid")
	storeWithPermitEnd(t, s, 9, "en_instruction", "2027-01-01", "Gaspard")

	entries, err := s.Watchlist(context.Background(), now)
	require.NoError(t, err)

	var ids []int64
	for _, e := range entries {
		ids = append(ids, e.DSID)
	}
	assert.Equal(t, []int64{11, 9, 10}, ids)

	first := entries[0]
	assert.Equal(t, time.Date(2028, 6, 30, 0, 0, 0, 0, time.UTC), first.ExpiresOn)
	assert.Equal(t, "FRANCE", first.Nationality)
	assert.Equal(t, "Bruno", first.FirstName)
	assert.Equal(t, "Doe", first.LastName)
	assert.Equal(t, StatusClosed, first.Status)
	assert.Equal(t, "30/06/2028 - 11 - FRANCE - Bruno - Doe - Accepté", first.String())
}

func TestStore_Watchlist_Empty(t *testing.T) {
	entries, err := newTestStore(t).Watchlist(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
