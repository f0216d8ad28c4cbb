package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-shiori/go-readability"
)

// Article is the extracted main content of a web page.
type Article struct {
	URL   string
	Title string
	Text  string
}

// Fetcher downloads a page and extracts its readable text.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (Article, error)
}

type FetcherType string

const (
	HTTPFetcherType     FetcherType = "http"
	ChromedpFetcherType FetcherType = "chromedp"
)

// NewFetcher builds a fetcher of the requested type. chromedp renders
// JavaScript-heavy pages in a headless browser before extraction.
func NewFetcher(fetcherType FetcherType, timeout time.Duration, maxChars int) (Fetcher, error) {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if maxChars <= 0 {
		maxChars = 40000
	}
	switch fetcherType {
	case HTTPFetcherType:
		return &httpFetcher{client: &http.Client{Timeout: timeout}, maxChars: maxChars}, nil
	case ChromedpFetcherType:
		return &chromedpFetcher{timeout: timeout, maxChars: maxChars}, nil
	default:
		return nil, fmt.Errorf("unsupported fetcher type: %s", fetcherType)
	}
}

type httpFetcher struct {
	client   *http.Client
	maxChars int
}

func (f *httpFetcher) Fetch(ctx context.Context, pageURL string) (Article, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return Article{}, fmt.Errorf("invalid url %q: %w", pageURL, err)
	}
	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return Article{}, err
	}
	req.Header.Set("User-Agent", "analyst/1.0 (+research assistant)")
	resp, err := f.client.Do(req)
	if err != nil {
		return Article{}, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Article{}, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return Article{}, fmt.Errorf("extract %s: %w", pageURL, err)
	}
	return buildArticle(pageURL, article.Title, article.TextContent, f.maxChars)
}

type chromedpFetcher struct {
	timeout  time.Duration
	maxChars int
}

func (f *chromedpFetcher) Fetch(ctx context.Context, pageURL string) (Article, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return Article{}, fmt.Errorf("invalid url %q: %w", pageURL, err)
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	html, err := fetchHTML(ctx, pageURL)
	if err != nil {
		return Article{}, fmt.Errorf("render %s: %w", pageURL, err)
	}
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return Article{}, fmt.Errorf("extract %s: %w", pageURL, err)
	}
	return buildArticle(pageURL, article.Title, article.TextContent, f.maxChars)
}

func fetchHTML(ctx context.Context, pageURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent("analyst/1.0 (+research assistant)"),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}

func buildArticle(pageURL, title, text string, maxChars int) (Article, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Article{}, errors.New("no readable text extracted")
	}
	if len(text) > maxChars {
		text = text[:maxChars]
	}
	return Article{URL: pageURL, Title: strings.TrimSpace(title), Text: text}, nil
}
