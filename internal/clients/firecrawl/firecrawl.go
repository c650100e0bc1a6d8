package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shpitdev/cable-intel/internal/apierr"
	"github.com/shpitdev/cable-intel/internal/logger"
	"github.com/shpitdev/cable-intel/internal/utils"
)

// Client wraps the Firecrawl scrape endpoint. Fetch failures are classified
// as fetch/timeout errors; the workflow item loop owns retry and backoff.
type Client interface {
	Scrape(ctx context.Context, url string) (*Snapshot, error)
}

// Snapshot is the raw fetched page content used for evidence rows.
type Snapshot struct {
	Markdown  string
	HTML      string
	SourceURL string
	OGImage   string
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(log *logger.Logger) (Client, error) {
	apiKey, err := utils.RequireEnv("FIRECRAWL_API_KEY")
	if err != nil {
		return nil, apierr.New(apierr.KindConfig, err)
	}
	baseURL := utils.GetEnv("FIRECRAWL_BASE_URL", "https://api.firecrawl.dev", log)

	timeoutSec := utils.GetEnvAsInt("FIRECRAWL_TIMEOUT_SECONDS", 60, log)
	if timeoutSec <= 0 {
		timeoutSec = 60
	}

	return &client{
		log:        log.With("client", "FirecrawlClient"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

// NewWithHTTP is the test seam: no env lookup, caller-provided transport.
func NewWithHTTP(log *logger.Logger, baseURL, apiKey string, httpClient *http.Client) Client {
	return &client{
		log:        log.With("client", "FirecrawlClient"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

type scrapeRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
}

type scrapeResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Markdown string `json:"markdown"`
		HTML     string `json:"html"`
		Metadata struct {
			SourceURL string `json:"sourceURL"`
			OGImage   string `json:"ogImage"`
		} `json:"metadata"`
	} `json:"data"`
	Error string `json:"error"`
}

func (c *client) Scrape(ctx context.Context, url string) (*Snapshot, error) {
	body := scrapeRequest{URL: url, Formats: []string{"markdown"}}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, apierr.New(apierr.KindFetch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/scrape", &buf)
	if err != nil {
		return nil, apierr.New(apierr.KindFetch, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apierr.Newf(apierr.KindTimeout, "firecrawl scrape timed out: %v", err)
		}
		return nil, apierr.New(apierr.KindFetch, err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, apierr.New(apierr.KindFetch, readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apierr.Newf(apierr.KindFetch, "firecrawl http %d: %s", resp.StatusCode, truncate(string(raw), 512))
	}

	var parsed scrapeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, apierr.Newf(apierr.KindFetch, "firecrawl decode error: %v", err)
	}
	if !parsed.Success {
		return nil, apierr.Newf(apierr.KindFetch, "firecrawl scrape unsuccessful: %s", parsed.Error)
	}

	sourceURL := parsed.Data.Metadata.SourceURL
	if sourceURL == "" {
		sourceURL = url
	}
	c.log.Debug("Scraped page",
		"url", url,
		"markdown_bytes", strconv.Itoa(len(parsed.Data.Markdown)),
	)
	return &Snapshot{
		Markdown:  parsed.Data.Markdown,
		HTML:      parsed.Data.HTML,
		SourceURL: sourceURL,
		OGImage:   parsed.Data.Metadata.OGImage,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
