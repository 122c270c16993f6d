// Package chembl fetches molecules from the ChEMBL web services.
package chembl

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

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/yungbote/compoundlab-backend/internal/observability"
	"github.com/yungbote/compoundlab-backend/internal/platform/httpx"
	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
)

const (
	Source         = "chembl"
	DefaultBaseURL = "https://www.ebi.ac.uk/chembl/api/data"
)

var ErrNotFound = errors.New("chembl: molecule not found")

type Client interface {
	GetMolecule(ctx context.Context, chemblID string) (*Molecule, error)
}

type Config struct {
	BaseURL        string
	Timeout        time.Duration
	CacheTTL       time.Duration
	RequestsPerSec float64
	Burst          int
	Retry          httpx.RetryPolicy
}

// Molecule is the subset of a ChEMBL molecule record the importer maps.
type Molecule struct {
	ChemblID         string
	PrefName         string
	CanonicalSmiles  string
	StandardInchi    string
	StandardInchiKey string
	FullFormula      string
	FullMolWeight    *float64
	ALogP            *float64
	Ro5Violations    *int
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
	cache      *gocache.Cache
	limiter    *rate.Limiter
	metrics    *observability.Metrics
}

func New(log *logger.Logger, cfg Config, metrics *observability.Metrics) (Client, error) {
	return NewWithHTTPClient(log, cfg, metrics, nil)
}

func NewWithHTTPClient(log *logger.Logger, cfg Config, metrics *observability.Metrics, httpClient *http.Client) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &client{
		log:        log.With("client", "ChEMBLClient"),
		cfg:        cfg,
		httpClient: httpClient,
		cache:      gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		metrics:    metrics,
	}, nil
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "chembl: <nil error>"
	}
	msg := strings.TrimSpace(e.Body)
	if len(msg) > 500 {
		msg = msg[:500] + "..."
	}
	return fmt.Sprintf("chembl http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// flexFloat accepts both JSON numbers and the quoted decimals ChEMBL returns.
type flexFloat struct{ v *float64 }

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("chembl: numeric field %q: %w", s, err)
	}
	f.v = &v
	return nil
}

type moleculeResponse struct {
	MoleculeChemblID   string `json:"molecule_chembl_id"`
	PrefName           string `json:"pref_name"`
	MoleculeStructures *struct {
		CanonicalSmiles  string `json:"canonical_smiles"`
		StandardInchi    string `json:"standard_inchi"`
		StandardInchiKey string `json:"standard_inchi_key"`
	} `json:"molecule_structures"`
	MoleculeProperties *struct {
		FullMolformula   string    `json:"full_molformula"`
		FullMwt          flexFloat `json:"full_mwt"`
		ALogP            flexFloat `json:"alogp"`
		NumRo5Violations *int      `json:"num_ro5_violations"`
	} `json:"molecule_properties"`
}

func (c *client) GetMolecule(ctx context.Context, chemblID string) (*Molecule, error) {
	id := strings.ToUpper(strings.TrimSpace(chemblID))
	if id == "" {
		return nil, fmt.Errorf("chembl id required")
	}
	if v, ok := c.cache.Get(id); ok {
		m := *v.(*Molecule)
		return &m, nil
	}

	start := time.Now()
	raw, err := httpx.Retry(ctx, c.cfg.Retry, func() (*moleculeResponse, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return c.fetch(ctx, id)
	}, func(err error, next time.Duration) {
		c.log.Warn("ChEMBL request retrying", "chembl_id", id, "sleep", next.String(), "error", err)
	})
	status := "ok"
	var he *HTTPError
	switch {
	case errors.As(err, &he) && he.StatusCode == http.StatusNotFound:
		status = "not_found"
		err = fmt.Errorf("%w: %s", ErrNotFound, id)
	case err != nil:
		status = "error"
	}
	c.metrics.ObserveExternalCall("chembl", "molecule.get", status, time.Since(start))
	if err != nil {
		return nil, err
	}

	m := toMolecule(raw)
	if m.ChemblID == "" {
		m.ChemblID = id
	}
	c.cache.SetDefault(id, m)
	out := *m
	return &out, nil
}

func (c *client) fetch(ctx context.Context, id string) (*moleculeResponse, error) {
	endpoint := fmt.Sprintf("%s/molecule/%s.json", c.cfg.BaseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	var out moleculeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("chembl decode error: %w", err)
	}
	return &out, nil
}

func toMolecule(r *moleculeResponse) *Molecule {
	m := &Molecule{
		ChemblID: strings.TrimSpace(r.MoleculeChemblID),
		PrefName: strings.TrimSpace(r.PrefName),
	}
	if s := r.MoleculeStructures; s != nil {
		m.CanonicalSmiles = strings.TrimSpace(s.CanonicalSmiles)
		m.StandardInchi = strings.TrimSpace(s.StandardInchi)
		m.StandardInchiKey = strings.TrimSpace(s.StandardInchiKey)
	}
	if p := r.MoleculeProperties; p != nil {
		m.FullFormula = strings.TrimSpace(p.FullMolformula)
		m.FullMolWeight = p.FullMwt.v
		m.ALogP = p.ALogP.v
		m.Ro5Violations = p.NumRo5Violations
	}
	return m
}
