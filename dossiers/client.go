package dossiers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is the upstream forms API as seen by the sync.
type Client interface {
	// ListDossiers returns one listing page, or nil when the upstream
	// answered with an empty document.
	ListDossiers(ctx context.Context, page, perPage int) (*Listing, error)
	// GetDossier returns the raw detail response of one dossier.
	GetDossier(ctx context.Context, dsID int64) ([]byte, error)
}

type Listing struct {
	Dossiers   []ListingItem `json:"dossiers"`
	Pagination Pagination    `json:"pagination"`
}

type ListingItem struct {
	ID        int64  `json:"id"`
	UpdatedAt string `json:"updated_at"`
}

type Pagination struct {
	Page             int `json:"page"`
	ResultatsParPage int `json:"resultats_par_page"`
	NombreDePage     int `json:"nombre_de_page"`
}

const maxResponseBytes = 32 * 1024 * 1024

// APIClient talks to the demarches-simplifiees.fr v1 API of one procedure.
type APIClient struct {
	http    *http.Client
	baseURL string
	token   string
}

func NewAPIClient(cfg APIConfig, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	base := strings.TrimRight(cfg.BaseURL, "/") + "/procedures/" + url.PathEscape(cfg.ProcedureID)
	return &APIClient{http: httpClient, baseURL: base, token: cfg.Token}
}

func (c *APIClient) ListDossiers(ctx context.Context, page, perPage int) (*Listing, error) {
	body, err := c.get(ctx, c.baseURL+"/dossiers", url.Values{
		"page":               {strconv.Itoa(page)},
		"resultats_par_page": {strconv.Itoa(perPage)},
	})
	if err != nil {
		return nil, err
	}
	return decodeListing(body)
}

func (c *APIClient) GetDossier(ctx context.Context, dsID int64) ([]byte, error) {
	return c.get(ctx, c.baseURL+"/dossiers/"+strconv.FormatInt(dsID, 10), nil)
}

func (c *APIClient) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	if c.token != "" {
		params.Set("token", c.token)
	}
	full := endpoint
	if len(params) > 0 {
		full += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, &TransportError{URL: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{URL: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{URL: endpoint, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}
	if len(strings.TrimSpace(string(body))) > 0 && !json.Valid(body) {
		return nil, &TransportError{URL: endpoint, StatusCode: resp.StatusCode, Err: errors.New("response is not JSON")}
	}
	return body, nil
}

// decodeListing returns nil for an empty document (empty body, null, {} or
// []) and ErrMalformedListing when dossiers or pagination is missing.
func decodeListing(body []byte) (*Listing, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedListing, err)
	}
	if isEmptyDocument(doc) {
		return nil, nil
	}

	var parsed struct {
		Dossiers   *[]ListingItem `json:"dossiers"`
		Pagination *Pagination    `json:"pagination"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedListing, err)
	}
	if parsed.Dossiers == nil {
		return nil, fmt.Errorf("%w: missing dossiers", ErrMalformedListing)
	}
	if parsed.Pagination == nil {
		return nil, fmt.Errorf("%w: missing pagination", ErrMalformedListing)
	}
	return &Listing{Dossiers: *parsed.Dossiers, Pagination: *parsed.Pagination}, nil
}

func isEmptyDocument(doc any) bool {
	switch v := doc.(type) {
	case nil:
		return true
	case map[string]any:
		return len(v) == 0
	case []any:
		return len(v) == 0
	case bool:
		return !v
	case string:
		return v == ""
	case float64:
		return v == 0
	default:
		return false
	}
}
