// Package cookies stores the user's own offers and conversations as JSON
// documents in browser cookies, mirroring the server-side store so the
// frontend can read them without an extra round trip.
package cookies

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"referlut-marketplace/internal/models"
)

const (
	// OffersCookie holds the user's created offers.
	OffersCookie = "userOffers"
	// ConversationsCookie holds the user's conversations.
	ConversationsCookie = "userConversations"

	maxAge = 30 * 24 * time.Hour
)

// ReadOffers returns the offers stored in the request's cookie. A missing or
// malformed cookie yields an empty list, never an error.
func ReadOffers(r *http.Request) []models.Offer {
	var offers []models.Offer
	if !readJSON(r, OffersCookie, &offers) {
		return []models.Offer{}
	}
	return offers
}

// WriteOffers replaces the offers cookie on the response.
func WriteOffers(w http.ResponseWriter, offers []models.Offer) error {
	return writeJSON(w, OffersCookie, offers)
}

// ReadConversations returns the conversations stored in the request's
// cookie. Message timestamps are reconstructed from their serialized form.
// A missing or malformed cookie yields an empty list, never an error.
func ReadConversations(r *http.Request) []models.Conversation {
	var convs []models.Conversation
	if !readJSON(r, ConversationsCookie, &convs) {
		return []models.Conversation{}
	}
	return convs
}

// WriteConversations replaces the conversations cookie on the response.
func WriteConversations(w http.ResponseWriter, convs []models.Conversation) error {
	return writeJSON(w, ConversationsCookie, convs)
}

// readJSON reports whether the named cookie existed and decoded cleanly
// into dest.
func readJSON(r *http.Request, name string, dest interface{}) bool {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return false
	}

	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return false
	}

	return json.Unmarshal(raw, dest) == nil
}

// writeJSON sets the named cookie to the base64url-encoded JSON of value
// with a 30-day expiry. Cookie values cannot carry raw JSON characters, so
// the document is always encoded.
func writeJSON(w http.ResponseWriter, name string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		Path:     "/",
		Expires:  time.Now().Add(maxAge),
		MaxAge:   int(maxAge.Seconds()),
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
