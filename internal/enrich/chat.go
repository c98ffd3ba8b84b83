package enrich

import (
	"context"
	"fmt"
	"strings"

	"referlut-marketplace/internal/models"
)

// ChatReply drafts the offer owner's reply to a marketplace message. The
// system prompt embeds the offer details so answers stay specific; failures
// degrade to a per-type template.
func (e *Enricher) ChatReply(ctx context.Context, userMessage string, offer *models.Offer, owner models.User) string {
	offerType := string(offer.Type)
	if offerType != "" {
		offerType = strings.ToUpper(offerType[:1]) + offerType[1:]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, the college student advertiser of a %s refer-a-friend for %s.\n\n", owner.Name, offerType, offer.Brand)
	fmt.Fprintf(&sb, "referral Details:\n")
	fmt.Fprintf(&sb, "- Title: %s\n", offer.Title)
	fmt.Fprintf(&sb, "- Brand: %s\n", offer.Brand)
	fmt.Fprintf(&sb, "- Type: %s\n", offerType)
	fmt.Fprintf(&sb, "- Description: %s\n", offer.Description)
	fmt.Fprintf(&sb, "- Price: £%.0f\n", offer.Price)
	fmt.Fprintf(&sb, "- Available spots: %d of %d\n", offer.Total-offer.Used, offer.Total)
	if offer.Instructions != "" {
		fmt.Fprintf(&sb, "- Instructions: %s\n", offer.Instructions)
	}
	sb.WriteString("\nRespond as if you are the discoverer of this offer and, being a student, are excited to find someone to profit with from the referral bonus. Be helpful, friendly, and provide specific details about the offer when asked. Keep responses conversational and under 150 words.")

	out, err := e.completer.Complete(ctx, CompletionRequest{
		System:      sb.String(),
		Prompt:      userMessage,
		MaxTokens:   200,
		Temperature: 0.7,
	})
	if err != nil {
		e.logger.Warn("chat completion failed, using fallback", "brand", offer.Brand, "error", err)
		return fallbackReply(offer, owner)
	}

	reply := strings.TrimSpace(out)
	if reply == "" {
		return fallbackReply(offer, owner)
	}
	signature := "- " + owner.Name
	if !strings.Contains(reply, signature) {
		reply += "\n\n" + signature
	}
	return reply
}

// fallbackReply is used when the completion API is unavailable.
func fallbackReply(offer *models.Offer, owner models.User) string {
	excerpt := func(n int) string {
		if len(offer.Description) <= n {
			return offer.Description
		}
		return offer.Description[:n]
	}

	switch offer.Type {
	case models.TypeReferral:
		return fmt.Sprintf("Thanks for your interest in my %s referral! I'd be happy to share the details. %s... Once you confirm, I'll send you the referral code right away. Let me know if you have any other questions!\n\n- %s",
			offer.Brand, excerpt(100), owner.Name)
	case models.TypeLoyalty:
		return fmt.Sprintf("Hi there! I'm glad you're interested in my %s loyalty program. This is a great way to enjoy the benefits without paying full price. %s... I can add you to my account once you confirm. Feel free to ask any questions!\n\n- %s",
			offer.Brand, excerpt(90), owner.Name)
	case models.TypeCharity:
		return fmt.Sprintf("Thank you for your interest in supporting the %s initiative! I'm coordinating this donation pool to maximize our impact. %s... Your contribution will make a real difference. Let me know if you have any questions about the process.\n\n- %s",
			offer.Brand, excerpt(100), owner.Name)
	default:
		return fmt.Sprintf("Thanks for reaching out about my %s offer! I appreciate your interest. %s... Please let me know if you need more information or are ready to proceed.\n\n- %s",
			offer.Brand, excerpt(120), owner.Name)
	}
}
