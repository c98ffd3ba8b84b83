package models

import "time"

// OfferType is the closed set of marketplace listing kinds.
type OfferType string

const (
	TypeReferral OfferType = "referral"
	TypeLoyalty  OfferType = "loyalty"
	TypeCharity  OfferType = "charity"
)

// Valid reports whether t is one of the known offer types.
func (t OfferType) Valid() bool {
	switch t {
	case TypeReferral, TypeLoyalty, TypeCharity:
		return true
	}
	return false
}

// Offer represents a single referral/loyalty/charity listing.
type Offer struct {
	ID           string    `json:"id"`           // uuid
	Brand        string    `json:"brand"`        // merchant display name
	Type         OfferType `json:"type"`         // referral | loyalty | charity
	Title        string    `json:"title"`        // placeholder until title enrichment completes
	Description  string    `json:"description"`  // sanitized HTML
	Instructions string    `json:"instructions"` // sanitized HTML, optional
	Used         int       `json:"used"`         // claimed slots, always < Total
	Total        int       `json:"total"`        // estimate until total enrichment completes
	Price        float64   `json:"price"`        // reward value in GBP
	Featured     bool      `json:"featured"`     // Price >= 50 or Total > 20
	Logo         string    `json:"logo"`         // image URL
	CreatedAt    time.Time `json:"created_at"`
	TitleLoading bool      `json:"is_title_loading"`
	TotalLoading bool      `json:"is_total_loading"`
}

// RecomputeFeatured re-evaluates the featured flag. Call whenever Total or
// Price changes.
func (o *Offer) RecomputeFeatured() {
	o.Featured = o.Price >= 50 || o.Total > 20
}

// ClampUsed pulls Used back into [0, Total) after a total correction.
func (o *Offer) ClampUsed() {
	if o.Used >= o.Total {
		o.Used = o.Total - 1
	}
	if o.Used < 0 {
		o.Used = 0
	}
}

// PageInfo describes the pagination state of the upstream listing.
type PageInfo struct {
	CurrentPage  int  `json:"current_page"` // zero-based
	TotalPages   int  `json:"total_pages"`
	TotalRecords int  `json:"total_records"`
	HasMore      bool `json:"has_more"`
}

// PageStatus distinguishes an empty catalogue from an upstream failure.
type PageStatus string

const (
	PageOK       PageStatus = "ok"
	PageEmpty    PageStatus = "empty"
	PageDegraded PageStatus = "degraded" // upstream fetch failed, list is empty
)

// PageResult is what a page load hands back to the caller.
type PageResult struct {
	Offers []*Offer   `json:"offers"`
	Page   PageInfo   `json:"page"`
	Status PageStatus `json:"status"`
}

// User is a marketplace participant.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// Message is a single chat message inside a conversation.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// Conversation is a two-party chat about one offer. Created on first
// message; there is no deletion path.
type Conversation struct {
	ID           string    `json:"id"`
	Participants []User    `json:"participants"`
	Messages     []Message `json:"messages"`
	OfferID      string    `json:"offer_id"`
	OfferType    OfferType `json:"offer_type"`
	OfferBrand   string    `json:"offer_brand"`
}

// CreateOfferRequest is the body for POST /offers.
type CreateOfferRequest struct {
	Brand        string    `json:"brand"`
	Type         OfferType `json:"type"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Instructions string    `json:"instructions"`
	Total        int       `json:"total"`
	Price        float64   `json:"price"`
	Logo         string    `json:"logo"`
}

// SendMessageRequest is the body for POST /conversations/messages.
type SendMessageRequest struct {
	Sender    User   `json:"sender"`
	Recipient User   `json:"recipient"`
	OfferID   string `json:"offer_id"`
	Text      string `json:"text"`
}

// SendMessageResponse returns the updated conversation plus the generated
// reply, if any.
type SendMessageResponse struct {
	Conversation Conversation `json:"conversation"`
	Reply        *Message     `json:"reply,omitempty"`
}

// BrandsResponse lists the distinct brands in the local catalogue.
type BrandsResponse struct {
	Brands []string `json:"brands"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
