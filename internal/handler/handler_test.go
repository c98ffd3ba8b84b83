package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"referlut-marketplace/internal/cookies"
	"referlut-marketplace/internal/database"
	"referlut-marketplace/internal/events"
	"referlut-marketplace/internal/features"
	"referlut-marketplace/internal/marketplace"
	"referlut-marketplace/internal/models"
	"referlut-marketplace/internal/service"
	"referlut-marketplace/internal/source"
)

type staticFetcher struct {
	page *source.Page
}

func (s *staticFetcher) FetchPage(ctx context.Context, page int) (*source.Page, error) {
	if s.page != nil {
		return s.page, nil
	}
	return &source.Page{Info: models.PageInfo{CurrentPage: page}}, nil
}

func setupTestHandler(t *testing.T) (*Handler, *marketplace.Controller, func()) {
	t.Helper()
	dbPath := "./test_handler_" + time.Now().Format("20060102150405.000000000") + ".db"
	db, err := database.NewDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ev := events.NewManager(true)

	fetcher := &staticFetcher{page: &source.Page{
		Offers: []source.Offer{{
			Offer: &models.Offer{
				ID: "p0-acme", Brand: "Acme", Type: models.TypeReferral,
				Title: "Acme Referral", Total: 10, Used: 2, Price: 75,
			},
			RewardText: "£75 reward",
		}},
		Info: models.PageInfo{CurrentPage: 0, TotalPages: 1, TotalRecords: 1},
	}}

	ctrl := marketplace.New(fetcher, nil, ev, logger)
	svc := service.NewService(db, ctrl, nil, ev, logger)

	flags := features.NewManager()
	flags.Register(features.FeatureCookieMirror, true, "mirror user offers and conversations into cookies")

	h := NewHandler(ctrl, svc, flags)

	cleanup := func() {
		ctrl.Close()
		db.Close()
		os.Remove(dbPath)
	}
	return h, ctrl, cleanup
}

func setupRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/marketplace/pages/{page}", h.GetPage)
	r.Get("/marketplace/offers/{type}", h.GetOffersByType)
	r.Get("/marketplace/brands", h.GetBrands)
	r.Post("/offers", h.CreateOffer)
	r.Get("/offers", h.ListUserOffers)
	r.Post("/conversations/messages", h.SendMessage)
	r.Get("/conversations", h.ListConversations)
	return r
}

func TestGetPage_Success(t *testing.T) {
	h, _, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	req := httptest.NewRequest("GET", "/marketplace/pages/0", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var result models.PageResult
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if result.Status != models.PageOK {
		t.Errorf("Expected status ok, got %q", result.Status)
	}
	if len(result.Offers) != 1 || result.Offers[0].Brand != "Acme" {
		t.Errorf("Expected the fetched Acme offer, got %+v", result.Offers)
	}
}

func TestGetPage_InvalidPage(t *testing.T) {
	h, _, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	for _, path := range []string{"/marketplace/pages/abc", "/marketplace/pages/-1"} {
		req := httptest.NewRequest("GET", path, nil)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("GET %s: expected status 400, got %d", path, rr.Code)
		}
	}
}

func TestGetOffersByType(t *testing.T) {
	h, _, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	req := httptest.NewRequest("GET", "/marketplace/offers/loyalty?brand=cost", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var offers []*models.Offer
	if err := json.Unmarshal(rr.Body.Bytes(), &offers); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if len(offers) != 2 {
		t.Errorf("Expected 2 loyalty offers matching 'cost', got %d", len(offers))
	}
}

func TestGetOffersByType_InvalidType(t *testing.T) {
	h, _, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	req := httptest.NewRequest("GET", "/marketplace/offers/bogus", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown type, got %d", rr.Code)
	}
}

func TestGetBrands(t *testing.T) {
	h, ctrl, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	req := httptest.NewRequest("GET", "/marketplace/brands", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var resp models.BrandsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if len(resp.Brands) != len(ctrl.AllBrands()) {
		t.Errorf("Expected %d brands, got %d", len(ctrl.AllBrands()), len(resp.Brands))
	}
}

func TestCreateOffer_Success(t *testing.T) {
	h, _, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	body, _ := json.Marshal(models.CreateOfferRequest{
		Brand: "Acme",
		Type:  models.TypeReferral,
		Title: "Get £60 with Acme",
		Total: 5,
		Price: 60,
	})
	req := httptest.NewRequest("POST", "/offers", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var offer models.Offer
	if err := json.Unmarshal(rr.Body.Bytes(), &offer); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if offer.ID == "" {
		t.Error("Expected a generated offer ID")
	}

	// The created offer is mirrored into the userOffers cookie.
	var mirrored *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == cookies.OffersCookie {
			mirrored = c
		}
	}
	if mirrored == nil {
		t.Fatal("Expected userOffers cookie on the response")
	}

	readReq := httptest.NewRequest("GET", "/", nil)
	readReq.AddCookie(mirrored)
	stored := cookies.ReadOffers(readReq)
	if len(stored) != 1 || stored[0].ID != offer.ID {
		t.Errorf("Expected created offer in cookie, got %+v", stored)
	}
}

func TestCreateOffer_InvalidJSON(t *testing.T) {
	h, _, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	req := httptest.NewRequest("POST", "/offers", bytes.NewBufferString("invalid json"))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestCreateOffer_ValidationFailure(t *testing.T) {
	h, _, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	body, _ := json.Marshal(models.CreateOfferRequest{
		Type:  models.TypeReferral,
		Title: "no brand",
		Total: 5,
	})
	req := httptest.NewRequest("POST", "/offers", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rr.Code)
	}

	var resp models.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal error response: %v", err)
	}
	if resp.Error == "" {
		t.Error("Expected an error message")
	}
}

func TestSendMessage_Success(t *testing.T) {
	h, ctrl, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	offers := ctrl.OffersForType(models.TypeReferral)
	body, _ := json.Marshal(models.SendMessageRequest{
		Sender:    models.User{ID: "u1", Name: "Alice"},
		Recipient: models.User{ID: "u2", Name: "Bob"},
		OfferID:   offers[0].ID,
		Text:      "Is this still available?",
	})

	req := httptest.NewRequest("POST", "/conversations/messages", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var resp models.SendMessageResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if len(resp.Conversation.Messages) != 1 {
		t.Errorf("Expected 1 message, got %d", len(resp.Conversation.Messages))
	}

	// The conversation is mirrored into the userConversations cookie.
	found := false
	for _, c := range rr.Result().Cookies() {
		if c.Name == cookies.ConversationsCookie {
			found = true
		}
	}
	if !found {
		t.Error("Expected userConversations cookie on the response")
	}
}

func TestSendMessage_SelfMessage(t *testing.T) {
	h, ctrl, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	offers := ctrl.OffersForType(models.TypeReferral)
	body, _ := json.Marshal(models.SendMessageRequest{
		Sender:    models.User{ID: "u1", Name: "Alice"},
		Recipient: models.User{ID: "u1", Name: "Alice"},
		OfferID:   offers[0].ID,
		Text:      "hello me",
	})

	req := httptest.NewRequest("POST", "/conversations/messages", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for self-message, got %d", rr.Code)
	}
}

func TestListConversations_RequiresUserID(t *testing.T) {
	h, _, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	req := httptest.NewRequest("GET", "/conversations", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without user_id, got %d", rr.Code)
	}
}

func TestListConversations_Success(t *testing.T) {
	h, ctrl, cleanup := setupTestHandler(t)
	defer cleanup()
	r := setupRouter(h)

	offers := ctrl.OffersForType(models.TypeReferral)
	body, _ := json.Marshal(models.SendMessageRequest{
		Sender:    models.User{ID: "u1", Name: "Alice"},
		Recipient: models.User{ID: "u2", Name: "Bob"},
		OfferID:   offers[0].ID,
		Text:      "hi",
	})
	post := httptest.NewRequest("POST", "/conversations/messages", bytes.NewBuffer(body))
	post.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(httptest.NewRecorder(), post)

	req := httptest.NewRequest("GET", "/conversations?user_id=u1", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var convs []models.Conversation
	if err := json.Unmarshal(rr.Body.Bytes(), &convs); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if len(convs) != 1 {
		t.Errorf("Expected 1 conversation, got %d", len(convs))
	}
}
