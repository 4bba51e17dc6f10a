package dossiers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingClient is an in-memory upstream that records every call.
type countingClient struct {
	pages     map[int]*Listing
	listErr   map[int]error
	details   map[int64][]byte
	detailErr map[int64]error

	listCalls []int
	fetched   []int64
}

func newCountingClient() *countingClient {
	return &countingClient{
		pages:     map[int]*Listing{},
		listErr:   map[int]error{},
		details:   map[int64][]byte{},
		detailErr: map[int64]error{},
	}
}

func (c *countingClient) ListDossiers(ctx context.Context, page, perPage int) (*Listing, error) {
	c.listCalls = append(c.listCalls, page)
	if err := c.listErr[page]; err != nil {
		return nil, err
	}
	return c.pages[page], nil
}

func (c *countingClient) GetDossier(ctx context.Context, dsID int64) ([]byte, error) {
	c.fetched = append(c.fetched, dsID)
	if err := c.detailErr[dsID]; err != nil {
		return nil, err
	}
	raw, ok := c.details[dsID]
	if !ok {
		return nil, &TransportError{URL: fmt.Sprintf("/dossiers/%d", dsID), StatusCode: 404, Err: errors.New("Not Found")}
	}
	return raw, nil
}

func (c *countingClient) reset() {
	c.listCalls = nil
	c.fetched = nil
}

// singlePage lists ids on one page.
func (c *countingClient) singlePage(ids ...int64) {
	c.pages[1] = listing(1, 1, ids...)
}

func listing(page, pages int, ids ...int64) *Listing {
	l := &Listing{Dossiers: []ListingItem{}, Pagination: Pagination{Page: page, ResultatsParPage: 1000, NombreDePage: pages}}
	for _, id := range ids {
		l.Dossiers = append(l.Dossiers, ListingItem{ID: id})
	}
	return l
}

func newTestSyncer(c Client, s RecordStore) *Syncer {
	return NewSyncer(c, s, SyncConfig{Logger: discardLogger()})
}

func TestSyncer_FixtureEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := newCountingClient()
	c.singlePage(fixtureID)
	c.details[fixtureID] = loadFixture(t)

	stats, err := newTestSyncer(c, s).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Checked)
	assert.Equal(t, 2, stats.HTTPQueries)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Created)
	assert.NotEmpty(t, stats.RunID)

	d, err := s.FindByDSID(ctx, fixtureID)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, StatusClosed, d.Status)
	assert.Equal(t, "75 - Paris", d.Department)
	ch, err := d.Champs()
	require.NoError(t, err)
	assert.Equal(t, "Morane", ch.String("nom_de_lemployeur"))
	siret, err := d.Siret()
	require.NoError(t, err)
	assert.Equal(t, "52222222222222", siret)

	// closed dossiers are not fetched again
	c.reset()
	stats, err = newTestSyncer(c, s).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.HTTPQueries)
	assert.Equal(t, 0, stats.Processed)
	assert.Equal(t, 1, stats.SkippedTerminal)
	assert.Empty(t, c.fetched)
}

func TestSyncer_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := newCountingClient()
	c.singlePage(1, 2)
	c.details[1] = newPayload(t, 1, "en_instruction", "2018-03-27T08:49:51.491Z", "2018-03-27T09:00:00.000Z")
	c.details[2] = newPayload(t, 2, "en_construction", "2018-03-27T08:49:51.491Z", "")

	stats, err := newTestSyncer(c, s).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Created)

	before, err := s.FindByDSID(ctx, 1)
	require.NoError(t, err)

	c.reset()
	stats, err = newTestSyncer(c, s).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.HTTPQueries)
	assert.Equal(t, 0, stats.Processed)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, []int64{1, 2}, c.fetched)

	after, err := s.FindByDSID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.True(t, before.UpdatedAt.Equal(*after.UpdatedAt))

	// upstream moved on
	c.details[1] = newPayload(t, 1, "accepte", "2018-03-27T08:49:51.491Z", "2018-04-02T10:00:00.000Z")
	stats, err = newTestSyncer(c, s).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 1, stats.Skipped)

	after, err = s.FindByDSID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, after.Status)
}

func TestSyncer_Pagination(t *testing.T) {
	s := newTestStore(t)
	c := newCountingClient()
	c.pages[1] = listing(1, 3, 1, 2)
	c.pages[2] = listing(2, 3, 3, 2)
	c.pages[3] = listing(3, 3, 4)
	for id := int64(1); id <= 4; id++ {
		c.details[id] = newPayload(t, id, "en_instruction", "2018-03-27T08:49:51.491Z", "")
	}

	stats, err := newTestSyncer(c, s).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, c.listCalls)
	assert.Equal(t, []int64{1, 2, 3, 4}, c.fetched)
	assert.Equal(t, 4, stats.Checked)
	assert.Equal(t, 3+4, stats.HTTPQueries)
	assert.Equal(t, 4, stats.Created)
}

func TestSyncer_EmptyListing(t *testing.T) {
	c := newCountingClient()
	stats, err := newTestSyncer(c, newTestStore(t)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Checked)
	assert.Equal(t, 1, stats.HTTPQueries)
	assert.Empty(t, c.fetched)
}

func TestSyncer_MalformedListingIsFatal(t *testing.T) {
	c := newCountingClient()
	c.pages[1] = listing(1, 2, 1)
	c.listErr[2] = fmt.Errorf("%w: missing dossiers", ErrMalformedListing)
	c.details[1] = newPayload(t, 1, "en_instruction", "2018-03-27T08:49:51.491Z", "")

	_, err := newTestSyncer(c, newTestStore(t)).Run(context.Background())
	require.ErrorIs(t, err, ErrMalformedListing)
	assert.Empty(t, c.fetched)
}

func TestSyncer_EmptyLaterPageIsFatal(t *testing.T) {
	c := newCountingClient()
	c.pages[1] = listing(1, 2, 1)

	_, err := newTestSyncer(c, newTestStore(t)).Run(context.Background())
	require.ErrorIs(t, err, ErrMalformedListing)
}

func TestSyncer_ListingTransportErrorIsFatal(t *testing.T) {
	c := newCountingClient()
	c.listErr[1] = &TransportError{URL: "/dossiers", StatusCode: 500, Err: errors.New("Internal Server Error")}

	stats, err := newTestSyncer(c, newTestStore(t)).Run(context.Background())
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 1, stats.HTTPQueries)
}

func TestSyncer_RecordFailuresDoNotStopTheRun(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := newCountingClient()
	c.singlePage(1, 2, 3, 4)
	c.details[1] = newFixtureDoc(t).set("id", 1).dropChamp("Nationalité").bytes(t)
	c.detailErr[2] = &TransportError{URL: "/dossiers/2", Err: errors.New("connection reset")}
	c.details[3] = newFixtureDoc(t).set("id", 33).bytes(t)
	c.details[4] = newPayload(t, 4, "en_instruction", "2018-03-27T08:49:51.491Z", "")

	stats, err := newTestSyncer(c, s).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Failed)
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 5, stats.HTTPQueries)

	for _, id := range []int64{1, 2, 3, 33} {
		d, err := s.FindByDSID(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, d, id)
	}
}

type failingStore struct{}

func (failingStore) TerminalIDs(ctx context.Context) (map[int64]struct{}, error) {
	return map[int64]struct{}{}, nil
}

func (failingStore) UpsertIfNewer(ctx context.Context, candidate *Dossier) (UpsertOutcome, error) {
	return OutcomeSkipped, errors.New("disk full")
}

func TestSyncer_StoreErrorIsFatal(t *testing.T) {
	c := newCountingClient()
	c.singlePage(1, 2)
	c.details[1] = newPayload(t, 1, "en_instruction", "2018-03-27T08:49:51.491Z", "")
	c.details[2] = newPayload(t, 2, "en_instruction", "2018-03-27T08:49:51.491Z", "")

	_, err := newTestSyncer(c, failingStore{}).Run(context.Background())
	require.ErrorContains(t, err, "disk full")
	assert.Equal(t, []int64{1}, c.fetched)
}

func TestSyncer_Cancelled(t *testing.T) {
	c := newCountingClient()
	c.singlePage(1)
	c.details[1] = newPayload(t, 1, "en_instruction", "2018-03-27T08:49:51.491Z", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestSyncer(c, newTestStore(t)).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, c.fetched)
}

func TestRunStats_WriteSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RunStats{Checked: 3, HTTPQueries: 4, Processed: 2, Failed: 1}.WriteSummary(&buf))

	want := strings.Repeat("-", 80) + "\n" +
		"3 - number of dossiers checked\n" +
		"4 - number of HTTP queries performed\n" +
		"2 - number of dossiers processed\n" +
		"1 - number of dossiers failed\n" +
		"Done.\n"
	assert.Equal(t, want, buf.String())
}
