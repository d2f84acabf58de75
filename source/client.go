package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/apex/log"
	"github.com/hashicorp/go-cleanhttp"
)

var (
	// ErrUnexpectedStatus is returned when an upstream page does not answer with 2xx.
	ErrUnexpectedStatus = errors.New("unexpected upstream status")

	// ErrMalformedPage is returned when a page lacks an element every item must have.
	ErrMalformedPage = errors.New("malformed upstream page")
)

const userAgent = "openaio-api"

// Client reads the upstream sites.
type Client struct {
	// HTTPClient performs the requests. Its timeout bounds every fetch.
	HTTPClient *http.Client

	// CommunityURL is the base URL of the community site, without trailing slash.
	CommunityURL string

	// ShopURL is the base URL of the shop, without trailing slash.
	ShopURL string
}

// NewClient creates a Client using a pooled HTTP client with the given timeout.
func NewClient(communityURL, shopURL string, timeout time.Duration) *Client {
	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = timeout
	return &Client{
		HTTPClient:   httpClient,
		CommunityURL: strings.TrimRight(communityURL, "/"),
		ShopURL:      strings.TrimRight(shopURL, "/"),
	}
}

// document downloads and parses a page.
func (c *Client) document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	log.WithFields(log.Fields{
		"url":      pageURL,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("upstream page")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", pageURL, err)
	}
	return doc, nil
}

var spaces = regexp.MustCompile(`\s\s+`)

// normalizeText collapses runs of whitespace and trims the result.
func normalizeText(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

// resolveURL resolves ref against base. A ref that cannot be parsed is returned as is.
func resolveURL(base, ref string) string {
	b, err := url.Parse(base + "/")
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// requiredAttr returns an attribute of the first element matched by selector,
// or ErrMalformedPage when there is none.
func requiredAttr(s *goquery.Selection, selector, attr string) (string, error) {
	v, ok := s.Find(selector).First().Attr(attr)
	if !ok {
		return "", fmt.Errorf("%w: missing %s[%s]", ErrMalformedPage, selector, attr)
	}
	return v, nil
}
