// Package marketplace owns the page cache and pagination state for the
// referral listing, and applies background enrichment results to cached
// offers.
package marketplace

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"referlut-marketplace/internal/enrich"
	"referlut-marketplace/internal/events"
	"referlut-marketplace/internal/models"
	"referlut-marketplace/internal/source"
)

// Fetcher is the upstream page source. *source.Client satisfies it; tests
// substitute fakes.
type Fetcher interface {
	FetchPage(ctx context.Context, page int) (*source.Page, error)
}

// Controller tracks pagination state and caches fetched pages for the
// lifetime of the instance. All state is owned here rather than living in
// package globals, so independent paginated views can hold independent
// controllers.
type Controller struct {
	fetcher  Fetcher
	enricher *enrich.Enricher
	events   *events.Manager
	logger   *slog.Logger

	// lifetime context for enrichment workers; Close cancels them
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	pages    map[int][]*models.Offer
	inflight map[int]chan struct{}
	info     models.PageInfo
	loading  bool

	catalogue []*models.Offer // fixed local loyalty/charity/referral seed list
}

// New creates a Controller. enricher may be nil to disable enrichment.
func New(fetcher Fetcher, enricher *enrich.Enricher, ev *events.Manager, logger *slog.Logger) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		fetcher:   fetcher,
		enricher:  enricher,
		events:    ev,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		pages:     make(map[int][]*models.Offer),
		inflight:  make(map[int]chan struct{}),
		catalogue: seedCatalogue(),
	}
}

// Close cancels outstanding enrichment workers.
func (c *Controller) Close() {
	c.cancel()
}

// PageInfo returns the current pagination state.
func (c *Controller) PageInfo() models.PageInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// Loading reports whether a page load is in flight.
func (c *Controller) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// LoadPage returns the offers for a zero-based page, optionally narrowed by
// a case-insensitive brand substring filter.
//
// Cached pages are served from memory with no network call; cache entries
// never expire within the lifetime of the controller. On a miss the page is
// fetched, cached, and returned immediately as placeholders while title and
// slot-count enrichment continue in the background. Concurrent loads of the
// same page share one fetch.
//
// An upstream failure yields an empty list with Status PageDegraded rather
// than an error, so callers can always render; PageEmpty means the upstream
// genuinely had no rows for the page.
func (c *Controller) LoadPage(ctx context.Context, page int, brandFilter string) (models.PageResult, error) {
	if page < 0 {
		return models.PageResult{}, fmt.Errorf("page index must be non-negative, got %d", page)
	}

	for {
		c.mu.Lock()
		if offers, ok := c.pages[page]; ok {
			c.info.CurrentPage = page
			result := c.snapshotLocked(page, offers, brandFilter)
			c.mu.Unlock()
			return result, nil
		}

		wait, ok := c.inflight[page]
		if !ok {
			break
		}
		c.mu.Unlock()

		// Another caller is already fetching this page; share its result.
		select {
		case <-wait:
		case <-ctx.Done():
			return models.PageResult{}, ctx.Err()
		}
	}

	// This caller leads the fetch.
	done := make(chan struct{})
	c.inflight[page] = done
	c.loading = true
	c.mu.Unlock()

	fetched, err := c.fetcher.FetchPage(ctx, page)

	c.mu.Lock()
	delete(c.inflight, page)
	c.loading = len(c.inflight) > 0
	close(done)

	if err != nil {
		c.mu.Unlock()
		c.logger.Error("page load failed", "page", page, "error", err)
		c.events.PublishPageLoaded(ctx, page, 0, models.PageDegraded)
		return models.PageResult{
			Offers: []*models.Offer{},
			Page:   models.PageInfo{CurrentPage: page},
			Status: models.PageDegraded,
		}, nil
	}

	offers := make([]*models.Offer, len(fetched.Offers))
	for i := range fetched.Offers {
		offers[i] = fetched.Offers[i].Offer
		if c.enricher == nil {
			// No workers will run; the placeholder title and total are final,
			// so the loading flags must not stay set.
			offers[i].TitleLoading = false
			offers[i].TotalLoading = false
		}
	}
	c.pages[page] = offers
	c.info = fetched.Info
	result := c.snapshotLocked(page, offers, brandFilter)
	c.mu.Unlock()

	c.logger.Info("page loaded",
		"page", page,
		"offers", len(offers),
		"total_pages", fetched.Info.TotalPages,
		"total_records", fetched.Info.TotalRecords)
	c.events.PublishPageLoaded(ctx, page, len(offers), result.Status)

	if c.enricher != nil {
		for _, fo := range fetched.Offers {
			c.enrichOffer(page, fo)
		}
	}

	return result, nil
}

// snapshotLocked copies the page's offers (filtered if requested) so callers
// never observe a concurrent enrichment write mid-serialization. Caller
// holds c.mu.
func (c *Controller) snapshotLocked(page int, offers []*models.Offer, brandFilter string) models.PageResult {
	out := make([]*models.Offer, 0, len(offers))
	needle := strings.ToLower(brandFilter)
	for _, o := range offers {
		if needle != "" && !strings.Contains(strings.ToLower(o.Brand), needle) {
			continue
		}
		copied := *o
		out = append(out, &copied)
	}

	status := models.PageOK
	if len(offers) == 0 {
		status = models.PageEmpty
	}

	info := c.info
	info.CurrentPage = page
	return models.PageResult{Offers: out, Page: info, Status: status}
}

// enrichOffer launches the two fire-and-forget workers for one placeholder.
// They mutate the cached offer under the controller lock and announce
// completion through the events manager; they are bound to the controller's
// context, not the request's, so navigating away does not abandon a write
// mid-flight but closing the controller cancels them.
func (c *Controller) enrichOffer(page int, fo source.Offer) {
	offer := fo.Offer

	go func() {
		title, fellBack := c.enricher.Title(c.ctx, offer.Brand, fo.RewardText, fo.Description)

		c.mu.Lock()
		offer.Title = title
		offer.TitleLoading = false
		c.mu.Unlock()

		c.events.PublishTitleEnriched(c.ctx, events.OfferEnrichedData{
			OfferID:  offer.ID,
			Page:     page,
			Title:    title,
			Fallback: fellBack,
		})
	}()

	go func() {
		total, fellBack := c.enricher.Total(c.ctx, fo.Instructions, fo.Description)

		c.mu.Lock()
		offer.Total = total
		offer.RecomputeFeatured()
		offer.ClampUsed()
		offer.TotalLoading = false
		featured := offer.Featured
		c.mu.Unlock()

		c.events.PublishTotalEnriched(c.ctx, events.OfferEnrichedData{
			OfferID:  offer.ID,
			Page:     page,
			Total:    total,
			Featured: featured,
			Fallback: fellBack,
		})
	}()
}

// OffersForType returns the local catalogue entries of one type.
func (c *Controller) OffersForType(t models.OfferType) []*models.Offer {
	return c.FilteredOffers(t, "")
}

// FilteredOffers returns catalogue entries of one type whose brand contains
// brandFilter, case-insensitively. Pure read, no side effects.
func (c *Controller) FilteredOffers(t models.OfferType, brandFilter string) []*models.Offer {
	needle := strings.ToLower(brandFilter)
	out := make([]*models.Offer, 0)
	for _, o := range c.catalogue {
		if o.Type != t {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(o.Brand), needle) {
			continue
		}
		copied := *o
		out = append(out, &copied)
	}
	return out
}

// FindOffer looks up an offer by ID across cached pages and the local
// catalogue. Returns a copy.
func (c *Controller) FindOffer(id string) (*models.Offer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, offers := range c.pages {
		for _, o := range offers {
			if o.ID == id {
				copied := *o
				return &copied, true
			}
		}
	}
	for _, o := range c.catalogue {
		if o.ID == id {
			copied := *o
			return &copied, true
		}
	}
	return nil, false
}

// AllBrands returns the distinct brands in the local catalogue, sorted.
func (c *Controller) AllBrands() []string {
	seen := make(map[string]struct{})
	for _, o := range c.catalogue {
		seen[o.Brand] = struct{}{}
	}
	brands := make([]string, 0, len(seen))
	for b := range seen {
		brands = append(brands, b)
	}
	sort.Strings(brands)
	return brands
}
