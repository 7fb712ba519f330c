// Package loader fetches and parses the market and equilibrium datasets.
package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/saltfish/seatscope/go-backend/internal/domain"
	"github.com/saltfish/seatscope/go-backend/internal/parser"
)

// Default file names of the two datasets.
const (
	MarketFile      = "market_data.csv"
	EquilibriumFile = "equilibrium_data.csv"
)

// Source provides both datasets. Malformed rows are returned as warnings;
// a returned error is always a *domain.LoadError.
type Source interface {
	Name() string
	LoadMarket(ctx context.Context) ([]domain.MarketRecord, []domain.RowError, error)
	LoadEquilibrium(ctx context.Context) ([]domain.EquilibriumRecord, []domain.RowError, error)
}

// Fetcher opens a named file.
type Fetcher interface {
	Fetch(ctx context.Context, name string) (io.ReadCloser, error)
	String() string
}

// FileFetcher reads files from a directory.
type FileFetcher struct {
	Dir string
}

func (f FileFetcher) Fetch(_ context.Context, name string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(f.Dir, name))
}

func (f FileFetcher) String() string { return "file://" + f.Dir }

// HTTPFetcher fetches files relative to a base URL.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

func (f HTTPFetcher) Fetch(ctx context.Context, name string) (io.ReadCloser, error) {
	base, err := url.Parse(f.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if base.Path == "" || base.Path[len(base.Path)-1] != '/' {
		base.Path += "/"
	}
	target := base.ResolveReference(&url.URL{Path: name})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/csv, text/plain;q=0.9, */*;q=0.5")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: unexpected status %s", target, resp.Status)
	}
	return resp.Body, nil
}

func (f HTTPFetcher) String() string { return f.BaseURL }

// CSVSource parses the datasets from CSV files provided by a Fetcher.
type CSVSource struct {
	fetcher         Fetcher
	parser          *parser.Parser
	marketFile      string
	equilibriumFile string
}

// NewCSVSource creates a CSVSource. Empty file names fall back to the defaults.
func NewCSVSource(fetcher Fetcher, p *parser.Parser, marketFile, equilibriumFile string) *CSVSource {
	if marketFile == "" {
		marketFile = MarketFile
	}
	if equilibriumFile == "" {
		equilibriumFile = EquilibriumFile
	}
	return &CSVSource{
		fetcher:         fetcher,
		parser:          p,
		marketFile:      marketFile,
		equilibriumFile: equilibriumFile,
	}
}

func (s *CSVSource) Name() string { return s.fetcher.String() }

func (s *CSVSource) LoadMarket(ctx context.Context) ([]domain.MarketRecord, []domain.RowError, error) {
	body, err := s.fetcher.Fetch(ctx, s.marketFile)
	if err != nil {
		return nil, nil, domain.NewLoadError(domain.DatasetMarket, "fetching", err)
	}
	defer body.Close()
	return s.parser.ParseMarket(body)
}

func (s *CSVSource) LoadEquilibrium(ctx context.Context) ([]domain.EquilibriumRecord, []domain.RowError, error) {
	body, err := s.fetcher.Fetch(ctx, s.equilibriumFile)
	if err != nil {
		return nil, nil, domain.NewLoadError(domain.DatasetEquilibrium, "fetching", err)
	}
	defer body.Close()
	return s.parser.ParseEquilibrium(body)
}
