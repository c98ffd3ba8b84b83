package validation

import (
	"fmt"
	"strings"
	"unicode"

	"referlut-marketplace/internal/models"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

const (
	maxBrandLength       = 100
	maxTitleLength       = 200
	maxDescriptionLength = 5000
	maxMessageLength     = 2000
	maxTotal             = 1000
	maxPrice             = 10000
)

// ValidateCreateOffer checks a user-submitted offer.
func ValidateCreateOffer(req models.CreateOfferRequest) error {
	if strings.TrimSpace(req.Brand) == "" {
		return &ValidationError{Field: "brand", Message: "is required"}
	}
	if len(req.Brand) > maxBrandLength {
		return &ValidationError{Field: "brand", Message: fmt.Sprintf("cannot exceed %d characters", maxBrandLength)}
	}

	if !req.Type.Valid() {
		return &ValidationError{Field: "type", Message: "must be one of referral, loyalty, charity"}
	}

	if strings.TrimSpace(req.Title) == "" {
		return &ValidationError{Field: "title", Message: "is required"}
	}
	if len(req.Title) > maxTitleLength {
		return &ValidationError{Field: "title", Message: fmt.Sprintf("cannot exceed %d characters", maxTitleLength)}
	}

	if len(req.Description) > maxDescriptionLength {
		return &ValidationError{Field: "description", Message: fmt.Sprintf("cannot exceed %d characters", maxDescriptionLength)}
	}

	if req.Total < 1 {
		return &ValidationError{Field: "total", Message: "must be at least 1"}
	}
	if req.Total > maxTotal {
		return &ValidationError{Field: "total", Message: fmt.Sprintf("cannot exceed %d", maxTotal)}
	}

	if req.Price < 0 {
		return &ValidationError{Field: "price", Message: "must be non-negative"}
	}
	if req.Price > maxPrice {
		return &ValidationError{Field: "price", Message: "exceeds maximum allowed value"}
	}

	return nil
}

// ValidateSendMessage checks a conversation message submission.
func ValidateSendMessage(req models.SendMessageRequest) error {
	if err := validateUser(req.Sender, "sender"); err != nil {
		return err
	}
	if err := validateUser(req.Recipient, "recipient"); err != nil {
		return err
	}
	if req.Sender.ID == req.Recipient.ID {
		return &ValidationError{Field: "recipient", Message: "cannot message yourself"}
	}

	if strings.TrimSpace(req.OfferID) == "" {
		return &ValidationError{Field: "offer_id", Message: "is required"}
	}

	if strings.TrimSpace(req.Text) == "" {
		return &ValidationError{Field: "text", Message: "is required"}
	}
	if len(req.Text) > maxMessageLength {
		return &ValidationError{Field: "text", Message: fmt.Sprintf("cannot exceed %d characters", maxMessageLength)}
	}

	return nil
}

func validateUser(u models.User, field string) error {
	if strings.TrimSpace(u.ID) == "" {
		return &ValidationError{Field: field + ".id", Message: "is required"}
	}
	if strings.TrimSpace(u.Name) == "" {
		return &ValidationError{Field: field + ".name", Message: "is required"}
	}
	return nil
}

// SanitizeString strips control characters (except whitespace) and trims.
func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}
