package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"referlut-marketplace/internal/cookies"
	"referlut-marketplace/internal/features"
	"referlut-marketplace/internal/marketplace"
	"referlut-marketplace/internal/models"
	"referlut-marketplace/internal/service"
	"referlut-marketplace/internal/validation"
)

// Handler provides HTTP handlers for the API.
type Handler struct {
	ctrl        *marketplace.Controller
	service     *service.Service
	features    *features.Manager
	maxBodySize int64
}

// NewHandlerOptions holds options for creating a handler.
type NewHandlerOptions struct {
	MaxBodySize int64
}

// DefaultHandlerOptions returns default handler options.
func DefaultHandlerOptions() NewHandlerOptions {
	return NewHandlerOptions{
		MaxBodySize: 1 << 20, // 1MB; marketplace bodies are small
	}
}

// NewHandler creates a new handler instance.
func NewHandler(ctrl *marketplace.Controller, svc *service.Service, flags *features.Manager) *Handler {
	return NewHandlerWithOptions(ctrl, svc, flags, DefaultHandlerOptions())
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(ctrl *marketplace.Controller, svc *service.Service, flags *features.Manager, opts NewHandlerOptions) *Handler {
	return &Handler{
		ctrl:        ctrl,
		service:     svc,
		features:    flags,
		maxBodySize: opts.MaxBodySize,
	}
}

// GetPage handles GET /marketplace/pages/{page}?brand=
//
// A degraded page (upstream failure) still returns 200 with an empty offer
// list; clients read the status field to tell an outage from an empty
// catalogue.
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil || page < 0 {
		h.respondError(w, http.StatusBadRequest, "page must be a non-negative integer")
		return
	}

	brand := validation.SanitizeString(r.URL.Query().Get("brand"))

	result, err := h.ctrl.LoadPage(r.Context(), page, brand)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// GetOffersByType handles GET /marketplace/offers/{type}?brand=
func (h *Handler) GetOffersByType(w http.ResponseWriter, r *http.Request) {
	offerType := models.OfferType(chi.URLParam(r, "type"))
	if !offerType.Valid() {
		h.respondError(w, http.StatusBadRequest, "type must be one of referral, loyalty, charity")
		return
	}

	brand := validation.SanitizeString(r.URL.Query().Get("brand"))
	h.respondJSON(w, http.StatusOK, h.ctrl.FilteredOffers(offerType, brand))
}

// GetBrands handles GET /marketplace/brands
func (h *Handler) GetBrands(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, models.BrandsResponse{Brands: h.ctrl.AllBrands()})
}

// CreateOffer handles POST /offers
func (h *Handler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req models.CreateOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	offer, err := h.service.CreateOffer(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	if h.features.IsEnabled(features.FeatureCookieMirror) {
		// Mirror failure must not fail the create; the store has it.
		mirrored := append(cookies.ReadOffers(r), offer)
		_ = cookies.WriteOffers(w, mirrored)
	}

	h.respondJSON(w, http.StatusCreated, offer)
}

// ListUserOffers handles GET /offers
func (h *Handler) ListUserOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.service.ListUserOffers(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, offers)
}

// SendMessage handles POST /conversations/messages
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	resp, err := h.service.SendMessage(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	if h.features.IsEnabled(features.FeatureCookieMirror) {
		existing := cookies.ReadConversations(r)
		replaced := false
		for i := range existing {
			if existing[i].ID == resp.Conversation.ID {
				existing[i] = resp.Conversation
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, resp.Conversation)
		}
		_ = cookies.WriteConversations(w, existing)
	}

	h.respondJSON(w, http.StatusCreated, resp)
}

// ListConversations handles GET /conversations?user_id=
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID := validation.SanitizeString(r.URL.Query().Get("user_id"))

	convs, err := h.service.ListConversations(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, convs)
}

// respondServiceError maps validation failures to 400 and everything else
// to 500.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	var verr *validation.ValidationError
	if errors.As(err, &verr) {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondError(w, http.StatusInternalServerError, err.Error())
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}
