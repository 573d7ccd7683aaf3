package news

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/quantlab/scanbridge/pkg/httputil"
	"github.com/quantlab/scanbridge/pkg/logger"
)

const maxHeadlines = 20

// Headline is one scraped news item with its keyword-based sentiment.
type Headline struct {
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Sentiment string    `json:"sentiment"` // positive, negative, neutral
	FetchedAt time.Time `json:"fetched_at"`
}

// Client scrapes stock headlines from Moneycontrol's tag pages. Headlines
// are a side channel for the scan output; a scrape failure never fails a
// scan.
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

// NewClient creates a headline scraper.
func NewClient(httpClient *httputil.Client, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.Component("news"),
		baseURL:    "https://www.moneycontrol.com",
	}
}

// Headlines fetches and scores recent headlines for a symbol.
func (c *Client) Headlines(ctx context.Context, symbol string) ([]Headline, error) {
	tag := strings.ToLower(strings.TrimSpace(symbol))
	if tag == "" {
		return nil, fmt.Errorf("empty symbol")
	}

	fullURL := fmt.Sprintf("%s/news/tags/%s.html", c.baseURL, url.PathEscape(tag))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body failed: %w", err)
	}

	headlines, err := parseHeadlines(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse headlines failed: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"count":  len(headlines),
	}).Debug("Fetched headlines")

	return headlines, nil
}

// parseHeadlines extracts headline anchors from a tag page.
func parseHeadlines(html string) ([]Headline, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var headlines []Headline

	doc.Find("li.clearfix h2 a").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		title := strings.TrimSpace(sel.Text())
		if title == "" {
			title = strings.TrimSpace(sel.AttrOr("title", ""))
		}
		if title == "" {
			return true
		}

		headlines = append(headlines, Headline{
			Title:     title,
			URL:       sel.AttrOr("href", ""),
			Sentiment: scoreSentiment(title),
			FetchedAt: now,
		})
		return len(headlines) < maxHeadlines
	})

	return headlines, nil
}
