package marketplace

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"referlut-marketplace/internal/enrich"
	"referlut-marketplace/internal/events"
	"referlut-marketplace/internal/models"
	"referlut-marketplace/internal/source"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	pages map[int]*source.Page
	err   error
}

func (f *fakeFetcher) FetchPage(ctx context.Context, page int) (*source.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.pages[page]; ok {
		return p, nil
	}
	return &source.Page{Info: models.PageInfo{CurrentPage: page}}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func placeholderOffer(id, brand string) source.Offer {
	return source.Offer{
		Offer: &models.Offer{
			ID: id, Brand: brand, Type: models.TypeReferral,
			Title: brand + " Referral", Total: 10, Used: 3, Price: 75,
			TitleLoading: true, TotalLoading: true,
		},
		RewardText:  "£75 reward",
		Description: "desc",
	}
}

func onePage(offers ...source.Offer) map[int]*source.Page {
	return map[int]*source.Page{
		0: {
			Offers: offers,
			Info:   models.PageInfo{CurrentPage: 0, TotalPages: 1, TotalRecords: len(offers)},
		},
	}
}

func TestLoadPage_CachesPage(t *testing.T) {
	fetcher := &fakeFetcher{pages: onePage(placeholderOffer("o1", "Acme"))}
	c := New(fetcher, nil, events.NewManager(true), testLogger())
	defer c.Close()

	first, err := c.LoadPage(context.Background(), 0, "")
	if err != nil {
		t.Fatalf("First load failed: %v", err)
	}
	second, err := c.LoadPage(context.Background(), 0, "")
	if err != nil {
		t.Fatalf("Second load failed: %v", err)
	}

	if fetcher.callCount() != 1 {
		t.Errorf("Expected 1 upstream fetch, got %d", fetcher.callCount())
	}
	if len(first.Offers) != 1 || len(second.Offers) != 1 {
		t.Fatalf("Expected 1 offer from both loads, got %d and %d", len(first.Offers), len(second.Offers))
	}
	if first.Offers[0].ID != second.Offers[0].ID {
		t.Error("Expected the cached load to return the same offer")
	}
	if first.Status != models.PageOK {
		t.Errorf("Expected status ok, got %q", first.Status)
	}
}

func TestLoadPage_ClearsLoadingFlagsWithoutEnricher(t *testing.T) {
	fetcher := &fakeFetcher{pages: onePage(placeholderOffer("o1", "Acme"))}
	c := New(fetcher, nil, events.NewManager(true), testLogger())
	defer c.Close()

	result, err := c.LoadPage(context.Background(), 0, "")
	if err != nil {
		t.Fatalf("LoadPage failed: %v", err)
	}

	offer := result.Offers[0]
	if offer.TitleLoading || offer.TotalLoading {
		t.Errorf("Expected loading flags cleared when no enrichment runs, got title=%v total=%v",
			offer.TitleLoading, offer.TotalLoading)
	}
	// The placeholder values stand as final.
	if offer.Title != "Acme Referral" {
		t.Errorf("Expected placeholder title kept, got %q", offer.Title)
	}
	if offer.Total != 10 {
		t.Errorf("Expected placeholder total kept, got %d", offer.Total)
	}

	cached, ok := c.FindOffer("o1")
	if !ok {
		t.Fatal("Expected cached offer")
	}
	if cached.TitleLoading || cached.TotalLoading {
		t.Error("Expected cached offer's loading flags cleared as well")
	}
}

type slowFetcher struct {
	fakeFetcher
	delay time.Duration
}

func (s *slowFetcher) FetchPage(ctx context.Context, page int) (*source.Page, error) {
	time.Sleep(s.delay)
	return s.fakeFetcher.FetchPage(ctx, page)
}

func TestLoadPage_ConcurrentLoadsShareOneFetch(t *testing.T) {
	fetcher := &slowFetcher{
		fakeFetcher: fakeFetcher{pages: onePage(placeholderOffer("o1", "Acme"))},
		delay:       100 * time.Millisecond,
	}
	c := New(fetcher, nil, events.NewManager(true), testLogger())
	defer c.Close()

	const callers = 8
	results := make([]models.PageResult, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.LoadPage(context.Background(), 0, "")
		}(i)
	}
	wg.Wait()

	if got := fetcher.callCount(); got != 1 {
		t.Errorf("Expected concurrent loads to share 1 upstream fetch, got %d", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("Caller %d failed: %v", i, errs[i])
		}
		if len(results[i].Offers) != 1 || results[i].Offers[0].ID != "o1" {
			t.Errorf("Caller %d got unexpected result: %+v", i, results[i].Offers)
		}
	}
}

func TestLoadPage_NegativePage(t *testing.T) {
	c := New(&fakeFetcher{}, nil, events.NewManager(true), testLogger())
	defer c.Close()

	if _, err := c.LoadPage(context.Background(), -1, ""); err == nil {
		t.Fatal("Expected error for negative page index")
	}
}

func TestLoadPage_DegradedOnFetchFailure(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("upstream down")}
	c := New(fetcher, nil, events.NewManager(true), testLogger())
	defer c.Close()

	result, err := c.LoadPage(context.Background(), 0, "")
	if err != nil {
		t.Fatalf("Expected degraded result instead of error, got %v", err)
	}
	if result.Status != models.PageDegraded {
		t.Errorf("Expected status degraded, got %q", result.Status)
	}
	if len(result.Offers) != 0 {
		t.Errorf("Expected empty offer list on degraded page, got %d", len(result.Offers))
	}

	// A failed page is not cached; the next load tries upstream again.
	if _, err := c.LoadPage(context.Background(), 0, ""); err != nil {
		t.Fatalf("Retry load failed: %v", err)
	}
	if fetcher.callCount() != 2 {
		t.Errorf("Expected a fresh fetch after failure, got %d calls", fetcher.callCount())
	}
}

func TestLoadPage_EmptyStatus(t *testing.T) {
	fetcher := &fakeFetcher{pages: onePage()}
	c := New(fetcher, nil, events.NewManager(true), testLogger())
	defer c.Close()

	result, err := c.LoadPage(context.Background(), 0, "")
	if err != nil {
		t.Fatalf("LoadPage failed: %v", err)
	}
	if result.Status != models.PageEmpty {
		t.Errorf("Expected status empty, got %q", result.Status)
	}
}

func TestLoadPage_BrandFilter(t *testing.T) {
	fetcher := &fakeFetcher{pages: onePage(
		placeholderOffer("o1", "Acme"),
		placeholderOffer("o2", "Beta"),
	)}
	c := New(fetcher, nil, events.NewManager(true), testLogger())
	defer c.Close()

	result, err := c.LoadPage(context.Background(), 0, "ac")
	if err != nil {
		t.Fatalf("LoadPage failed: %v", err)
	}
	if len(result.Offers) != 1 || result.Offers[0].Brand != "Acme" {
		t.Fatalf("Expected only Acme to match filter, got %d offers", len(result.Offers))
	}
	// The filter narrows the view, not the cache.
	unfiltered, _ := c.LoadPage(context.Background(), 0, "")
	if len(unfiltered.Offers) != 2 {
		t.Errorf("Expected full page without filter, got %d offers", len(unfiltered.Offers))
	}
}

type scriptedCompleter struct{}

func (scriptedCompleter) Complete(ctx context.Context, req enrich.CompletionRequest) (string, error) {
	// Title synthesis asks for 60 tokens, slot inference for 10.
	switch req.MaxTokens {
	case 60:
		return "Sparkling New Title", nil
	case 10:
		return "21", nil
	}
	return "", errors.New("unexpected request")
}

func TestLoadPage_EnrichmentAppliesInBackground(t *testing.T) {
	fetcher := &fakeFetcher{pages: onePage(placeholderOffer("o1", "Acme"))}
	enricher := enrich.New(scriptedCompleter{}, testLogger())
	c := New(fetcher, enricher, events.NewManager(true), testLogger())
	defer c.Close()

	result, err := c.LoadPage(context.Background(), 0, "")
	if err != nil {
		t.Fatalf("LoadPage failed: %v", err)
	}
	// The initial result is a placeholder; enrichment lands asynchronously.
	if !result.Offers[0].TitleLoading || !result.Offers[0].TotalLoading {
		t.Error("Expected placeholder loading flags on the initial result")
	}

	deadline := time.Now().Add(2 * time.Second)
	var offer *models.Offer
	for time.Now().Before(deadline) {
		got, ok := c.FindOffer("o1")
		if ok && !got.TitleLoading && !got.TotalLoading {
			offer = got
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if offer == nil {
		t.Fatal("Enrichment did not complete before deadline")
	}

	if offer.Title != "Sparkling New Title" {
		t.Errorf("Expected enriched title, got %q", offer.Title)
	}
	if offer.Total != 21 {
		t.Errorf("Expected corrected total 21, got %d", offer.Total)
	}
	if !offer.Featured {
		t.Error("Expected featured after total correction above 20")
	}
	if offer.Used < 0 || offer.Used >= offer.Total {
		t.Errorf("Expected used within [0, %d), got %d", offer.Total, offer.Used)
	}
}

func TestFilteredOffers_BrandSubstring(t *testing.T) {
	c := New(&fakeFetcher{}, nil, events.NewManager(true), testLogger())
	defer c.Close()

	matches := c.FilteredOffers(models.TypeLoyalty, "cost")
	if len(matches) != 2 {
		t.Fatalf("Expected 2 loyalty offers matching 'cost', got %d", len(matches))
	}

	brands := []string{matches[0].Brand, matches[1].Brand}
	sort.Strings(brands)
	if brands[0] != "Costa Coffee" || brands[1] != "Costco" {
		t.Errorf("Expected Costa Coffee and Costco, got %v", brands)
	}
}

func TestFilteredOffers_TypeIsolation(t *testing.T) {
	c := New(&fakeFetcher{}, nil, events.NewManager(true), testLogger())
	defer c.Close()

	for _, o := range c.FilteredOffers(models.TypeCharity, "") {
		if o.Type != models.TypeCharity {
			t.Errorf("Expected only charity offers, got %q for %s", o.Type, o.Brand)
		}
	}
	if len(c.FilteredOffers(models.TypeCharity, "")) != 3 {
		t.Errorf("Expected 3 charity offers in the catalogue")
	}
}

func TestAllBrands_SortedDistinct(t *testing.T) {
	c := New(&fakeFetcher{}, nil, events.NewManager(true), testLogger())
	defer c.Close()

	brands := c.AllBrands()
	if !sort.StringsAreSorted(brands) {
		t.Errorf("Expected sorted brands, got %v", brands)
	}

	seen := make(map[string]bool)
	for _, b := range brands {
		if seen[b] {
			t.Errorf("Duplicate brand %q", b)
		}
		seen[b] = true
	}
}

func TestFindOffer_Catalogue(t *testing.T) {
	c := New(&fakeFetcher{}, nil, events.NewManager(true), testLogger())
	defer c.Close()

	offer, ok := c.FindOffer("r-monzo-invite")
	if !ok {
		t.Fatal("Expected to find seeded Monzo referral")
	}
	if offer.Brand != "Monzo" {
		t.Errorf("Expected Monzo, got %q", offer.Brand)
	}

	// Returned offers are copies; mutating one must not touch the catalogue.
	offer.Brand = "changed"
	again, _ := c.FindOffer("r-monzo-invite")
	if again.Brand != "Monzo" {
		t.Error("Expected FindOffer to return an independent copy")
	}
}

func TestFindOffer_Missing(t *testing.T) {
	c := New(&fakeFetcher{}, nil, events.NewManager(true), testLogger())
	defer c.Close()

	if _, ok := c.FindOffer("no-such-offer"); ok {
		t.Fatal("Expected lookup miss for unknown ID")
	}
}
