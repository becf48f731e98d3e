package filing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

const qualifyingForm = "10-K"

// tickerIndexTTL bounds how long the ticker → CIK map is reused before it is
// fetched again. EDGAR republishes the index daily.
const tickerIndexTTL = 24 * time.Hour

// LocatorConfig holds the EDGAR endpoints and identification headers.
type LocatorConfig struct {
	TickerIndexURL string
	SubmissionsURL string
	ArchivesURL    string
	UserAgent      string
}

// Locator resolves the most recent qualifying filing URL for a ticker via the
// SEC EDGAR index and submissions APIs.
type Locator struct {
	cfg        LocatorConfig
	httpClient *http.Client

	mu        sync.Mutex
	cikByTick map[string]int64
	fetchedAt time.Time
}

func NewLocator(cfg LocatorConfig, httpClient *http.Client) *Locator {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Locator{
		cfg:        cfg,
		httpClient: httpClient,
	}
}

// Resolve returns the document URL of the ticker's most recent qualifying
// filing. Selection is deterministic: latest filing date wins, ties broken by
// the highest accession number.
func (l *Locator) Resolve(ctx context.Context, ticker string) (string, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return "", fmt.Errorf("%w: empty ticker", ErrNoFiling)
	}

	cik, err := l.lookupCIK(ctx, ticker)
	if err != nil {
		return "", err
	}

	sub, err := l.fetchSubmissions(ctx, cik)
	if err != nil {
		return "", err
	}

	recent := sub.Filings.Recent
	type candidate struct {
		filingDate string
		accession  string
		document   string
	}
	var candidates []candidate
	for i := range recent.Form {
		if recent.Form[i] != qualifyingForm {
			continue
		}
		if i >= len(recent.AccessionNumber) || i >= len(recent.PrimaryDocument) || i >= len(recent.FilingDate) {
			break
		}
		candidates = append(candidates, candidate{
			filingDate: recent.FilingDate[i],
			accession:  recent.AccessionNumber[i],
			document:   recent.PrimaryDocument[i],
		})
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: no %s on file for %s", ErrNoFiling, qualifyingForm, ticker)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].filingDate != candidates[j].filingDate {
			return candidates[i].filingDate > candidates[j].filingDate
		}
		return candidates[i].accession > candidates[j].accession
	})
	best := candidates[0]

	accession := strings.ReplaceAll(best.accession, "-", "")
	return fmt.Sprintf("%s/%d/%s/%s",
		strings.TrimRight(l.cfg.ArchivesURL, "/"), cik, accession, best.document), nil
}

func (l *Locator) lookupCIK(ctx context.Context, ticker string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cikByTick == nil || time.Since(l.fetchedAt) > tickerIndexTTL {
		index, err := l.fetchTickerIndex(ctx)
		if err != nil {
			return 0, err
		}
		l.cikByTick = index
		l.fetchedAt = time.Now()
	}

	cik, ok := l.cikByTick[ticker]
	if !ok {
		return 0, fmt.Errorf("%w: unknown ticker %s", ErrNoFiling, ticker)
	}
	return cik, nil
}

func (l *Locator) fetchTickerIndex(ctx context.Context) (map[string]int64, error) {
	raw, err := l.get(ctx, l.cfg.TickerIndexURL)
	if err != nil {
		return nil, err
	}

	// The index is a JSON object keyed by row number.
	var parsed map[string]struct {
		CIK    int64  `json:"cik_str"`
		Ticker string `json:"ticker"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse ticker index failed: %v", ErrNoFiling, err)
	}

	index := make(map[string]int64, len(parsed))
	for _, row := range parsed {
		index[strings.ToUpper(row.Ticker)] = row.CIK
	}
	return index, nil
}

type submissions struct {
	Filings struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			FilingDate      []string `json:"filingDate"`
			Form            []string `json:"form"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}

func (l *Locator) fetchSubmissions(ctx context.Context, cik int64) (*submissions, error) {
	url := fmt.Sprintf("%s/CIK%010d.json", strings.TrimRight(l.cfg.SubmissionsURL, "/"), cik)
	raw, err := l.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var sub submissions
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("%w: parse submissions failed: %v", ErrNoFiling, err)
	}
	return &sub, nil
}

func (l *Locator) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request failed: %v", ErrNoFiling, err)
	}
	// EDGAR rejects requests without a descriptive User-Agent.
	req.Header.Set("User-Agent", l.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoFiling, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrNoFiling, url, resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response failed: %v", ErrNoFiling, err)
	}
	return raw, nil
}
