// Package source fetches pages of raw referral listings from the upstream
// scrape target and transforms them into placeholder offers.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/codeGROOVE-dev/retry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"referlut-marketplace/internal/cache"
	"referlut-marketplace/internal/models"
	"referlut-marketplace/internal/sanitize"
	"referlut-marketplace/internal/tracing"
)

const (
	// DefaultPageSize matches the upstream DataTables endpoint.
	DefaultPageSize = 25

	// DefaultLogo is served when a row's image markup cannot be parsed.
	DefaultLogo = "https://images.pexels.com/photos/4968630/pexels-photo-4968630.jpeg"

	// placeholderTotal is the slot estimate used until enrichment corrects it.
	placeholderTotal = 10

	snapshotTTL = time.Hour
)

// Upstream row column indexes. The endpoint returns rows as positional
// arrays; only these five columns are consumed.
const (
	colImage        = 0
	colBrand        = 1
	colReward       = 10
	colInstructions = 13
	colDescription  = 17
)

var priceRe = regexp.MustCompile(`£(\d+)`)

// listingResponse is the upstream DataTables envelope.
type listingResponse struct {
	Data         [][]any `json:"data"`
	RecordsTotal int     `json:"recordsTotal"`
}

// Offer keeps the transformed placeholder together with the raw text the
// enrichment workers need.
type Offer struct {
	Offer        *models.Offer
	RewardText   string // raw reward column, e.g. "£75 reward"
	Instructions string // raw instructions column
	Description  string // raw description column
}

// Page is one fetched-and-transformed upstream page.
type Page struct {
	Offers []Offer
	Info   models.PageInfo
}

// Client talks to the upstream listing endpoint.
type Client struct {
	httpClient *http.Client
	endpoint   string
	nonce      string
	pageSize   int
	logger     *slog.Logger
	snapshots  cache.Cache // optional; raw page snapshots keyed by page index
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPageSize overrides the upstream page size.
func WithPageSize(n int) Option {
	return func(c *Client) { c.pageSize = n }
}

// WithSnapshotCache enables raw-page snapshotting in the given cache.
func WithSnapshotCache(cc cache.Cache) Option {
	return func(c *Client) { c.snapshots = cc }
}

// NewClient creates a listing client for the given endpoint.
func NewClient(endpoint, nonce string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		endpoint:   endpoint,
		nonce:      nonce,
		pageSize:   DefaultPageSize,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PageSize returns the configured upstream page size.
func (c *Client) PageSize() int {
	return c.pageSize
}

// FetchPage fetches one zero-based page of listings and transforms each row
// into a placeholder offer. The error is not swallowed here; the pagination
// controller decides how a failed page presents to clients.
func (c *Client) FetchPage(ctx context.Context, page int) (*Page, error) {
	if page < 0 {
		return nil, fmt.Errorf("page index must be non-negative, got %d", page)
	}

	ctx, span := tracing.GetTracer().StartSpan(ctx, "source.FetchPage")
	defer span.End()
	span.SetAttributes(attribute.Int("listing.page", page))

	listing, err := c.fetchListing(ctx, page)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return c.transform(page, listing), nil
}

// fetchListing returns the raw upstream envelope for a page, consulting the
// snapshot cache first.
func (c *Client) fetchListing(ctx context.Context, page int) (*listingResponse, error) {
	key := cache.ListingPageKey(page)

	if c.snapshots != nil {
		var cached listingResponse
		if err := cache.GetJSON(ctx, c.snapshots, key, &cached); err == nil {
			c.logger.Debug("listing snapshot hit", "page", page)
			return &cached, nil
		}
	}

	body := c.buildForm(page)

	var listing *listingResponse
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(body))
			if err != nil {
				return fmt.Errorf("create request: %w", err)
			}
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
			req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
			req.Header.Set("X-Requested-With", "XMLHttpRequest")
			req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:137.0) Gecko/20100101 Firefox/137.0")

			start := time.Now()
			resp, err := c.httpClient.Do(req)
			if err != nil {
				c.logger.Warn("listing request failed, will retry", "page", page, "error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					c.logger.Warn("failed to close response body", "error", closeErr)
				}
			}()

			c.logger.Info("listing request completed",
				"page", page,
				"status_code", resp.StatusCode,
				"duration_ms", time.Since(start).Milliseconds())

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}

			raw, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read body: %w", err)
			}

			var decoded listingResponse
			if err := json.Unmarshal(raw, &decoded); err != nil {
				c.logger.Warn("listing response is not valid JSON, will retry", "page", page, "error", err)
				return fmt.Errorf("decode listing: %w", err)
			}

			listing = &decoded
			return nil
		},
		retry.Attempts(4),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(10*time.Second),
		retry.MaxJitter(time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Info("retrying listing fetch", "page", page, "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch listing page %d: %w", page, err)
	}

	if c.snapshots != nil {
		if err := cache.SetJSON(ctx, c.snapshots, key, listing, snapshotTTL); err != nil {
			c.logger.Warn("failed to snapshot listing page", "page", page, "error", err)
		}
	}

	return listing, nil
}

// buildForm encodes the DataTables pagination and column parameters.
func (c *Client) buildForm(page int) string {
	form := url.Values{}
	form.Set("draw", "1")
	form.Set("start", strconv.Itoa(page*c.pageSize))
	form.Set("length", strconv.Itoa(c.pageSize))
	form.Set("order[0][column]", strconv.Itoa(colReward))
	form.Set("order[0][dir]", "desc")
	if c.nonce != "" {
		form.Set("wdtNonce", c.nonce)
	}

	columns := []struct {
		index int
		name  string
	}{
		{colImage, "Image"},
		{colBrand, "Name"},
		{colReward, "Sign Up Reward"},
		{colInstructions, "Instructions"},
		{colDescription, "Description"},
	}
	for _, col := range columns {
		prefix := fmt.Sprintf("columns[%d]", col.index)
		form.Set(prefix+"[data]", strconv.Itoa(col.index))
		form.Set(prefix+"[name]", col.name)
		form.Set(prefix+"[searchable]", "true")
		form.Set(prefix+"[orderable]", strconv.FormatBool(col.index == colReward))
		form.Set(prefix+"[search][value]", "")
		form.Set(prefix+"[search][regex]", "false")
	}

	return form.Encode()
}

// transform converts raw rows into placeholder offers and derives the page
// metadata. Row order is preserved.
func (c *Client) transform(page int, listing *listingResponse) *Page {
	offers := make([]Offer, 0, len(listing.Data))

	for _, row := range listing.Data {
		brand := columnString(row, colBrand)
		if brand == "" {
			continue
		}

		description := columnString(row, colDescription)
		if description == "" {
			description = fmt.Sprintf("Refer a friend to %s and earn rewards.", brand)
		}
		instructions := columnString(row, colInstructions)
		reward := columnString(row, colReward)
		if reward == "" {
			reward = "£0"
		}

		offer := &models.Offer{
			ID:           uuid.New().String(),
			Brand:        brand,
			Type:         models.TypeReferral,
			Title:        brand + " Referral",
			Description:  sanitize.HTML(description),
			Instructions: sanitize.HTML(instructions),
			Total:        placeholderTotal,
			Used:         rand.IntN(placeholderTotal),
			Price:        ExtractPrice(reward),
			Logo:         ExtractImageURL(columnString(row, colImage)),
			CreatedAt:    randomPastDate(),
			TitleLoading: true,
			TotalLoading: true,
		}
		offer.RecomputeFeatured()

		offers = append(offers, Offer{
			Offer:        offer,
			RewardText:   reward,
			Instructions: instructions,
			Description:  description,
		})
	}

	totalRecords := listing.RecordsTotal
	totalPages := 0
	if totalRecords > 0 {
		totalPages = int(math.Ceil(float64(totalRecords) / float64(c.pageSize)))
	}

	return &Page{
		Offers: offers,
		Info: models.PageInfo{
			CurrentPage:  page,
			TotalPages:   totalPages,
			TotalRecords: totalRecords,
			HasMore:      page*c.pageSize+len(offers) < totalRecords,
		},
	}
}

// ExtractPrice finds a £<digits> amount in reward text, defaulting to 0.
func ExtractPrice(reward string) float64 {
	m := priceRe.FindStringSubmatch(reward)
	if m == nil {
		return 0
	}
	price, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return price
}

// ExtractImageURL pulls the src attribute out of an <img> fragment, falling
// back to the default logo when the markup is missing or unparseable.
func ExtractImageURL(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return DefaultLogo
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return DefaultLogo
	}

	src, ok := doc.Find("img").First().Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		return DefaultLogo
	}
	return src
}

// columnString reads a positional column as a string; missing or non-string
// columns read as empty.
func columnString(row []any, idx int) string {
	if idx >= len(row) {
		return ""
	}
	s, ok := row[idx].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// randomPastDate returns a display timestamp within the past year, matching
// how seeded catalogue entries are dated.
func randomPastDate() time.Time {
	now := time.Now()
	span := now.Sub(now.AddDate(-1, 0, 0))
	return now.Add(-time.Duration(rand.Int64N(int64(span))))
}
