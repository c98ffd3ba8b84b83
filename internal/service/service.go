package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"referlut-marketplace/internal/database"
	"referlut-marketplace/internal/enrich"
	"referlut-marketplace/internal/events"
	"referlut-marketplace/internal/marketplace"
	"referlut-marketplace/internal/models"
	"referlut-marketplace/internal/sanitize"
	"referlut-marketplace/internal/source"
	"referlut-marketplace/internal/validation"
)

// Service provides business logic for user-created offers and
// conversations. The paginated listing itself is owned by the marketplace
// controller.
type Service struct {
	db       *database.DB
	ctrl     *marketplace.Controller
	enricher *enrich.Enricher
	events   *events.Manager
	logger   *slog.Logger
}

// NewService creates a new service instance. enricher may be nil; chat
// replies then fall back to templates only when a conversation partner
// exists, i.e. no reply is generated.
func NewService(db *database.DB, ctrl *marketplace.Controller, enricher *enrich.Enricher, ev *events.Manager, logger *slog.Logger) *Service {
	return &Service{db: db, ctrl: ctrl, enricher: enricher, events: ev, logger: logger}
}

// CreateOffer validates and persists a user-created offer.
func (s *Service) CreateOffer(ctx context.Context, req models.CreateOfferRequest) (models.Offer, error) {
	if err := validation.ValidateCreateOffer(req); err != nil {
		return models.Offer{}, err
	}

	offer := models.Offer{
		ID:           uuid.New().String(),
		Brand:        validation.SanitizeString(req.Brand),
		Type:         req.Type,
		Title:        validation.SanitizeString(req.Title),
		Description:  sanitize.HTML(req.Description),
		Instructions: sanitize.HTML(req.Instructions),
		Used:         0,
		Total:        req.Total,
		Price:        req.Price,
		Logo:         validation.SanitizeString(req.Logo),
		CreatedAt:    time.Now().UTC(),
	}
	if offer.Logo == "" {
		offer.Logo = source.DefaultLogo
	}
	offer.RecomputeFeatured()

	if err := s.db.InsertOffer(offer); err != nil {
		return models.Offer{}, fmt.Errorf("failed to persist offer: %w", err)
	}

	s.events.PublishOfferCreated(ctx, offer)
	return offer, nil
}

// ListUserOffers returns all user-created offers.
func (s *Service) ListUserOffers(ctx context.Context) ([]models.Offer, error) {
	offers, err := s.db.ListOffers()
	if err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	if offers == nil {
		offers = []models.Offer{}
	}
	return offers, nil
}

// SendMessage records a message between two users about one offer, creating
// the conversation on first contact, and drafts the owner's reply.
func (s *Service) SendMessage(ctx context.Context, req models.SendMessageRequest) (models.SendMessageResponse, error) {
	if err := validation.ValidateSendMessage(req); err != nil {
		return models.SendMessageResponse{}, err
	}

	offer, ok := s.findOffer(req.OfferID)
	if !ok {
		return models.SendMessageResponse{}, &validation.ValidationError{
			Field: "offer_id", Message: "offer not found",
		}
	}

	conv, err := s.db.FindConversation(req.OfferID, req.Sender.ID, req.Recipient.ID)
	if err != nil {
		return models.SendMessageResponse{}, fmt.Errorf("failed to look up conversation: %w", err)
	}

	msg := models.Message{
		ID:         uuid.New().String(),
		SenderID:   req.Sender.ID,
		ReceiverID: req.Recipient.ID,
		Text:       validation.SanitizeString(req.Text),
		Timestamp:  time.Now().UTC(),
	}

	if conv == nil {
		created := models.Conversation{
			ID:           uuid.New().String(),
			Participants: []models.User{req.Sender, req.Recipient},
			Messages:     []models.Message{msg},
			OfferID:      offer.ID,
			OfferType:    offer.Type,
			OfferBrand:   offer.Brand,
		}
		if err := s.db.CreateConversation(created); err != nil {
			return models.SendMessageResponse{}, fmt.Errorf("failed to create conversation: %w", err)
		}
		conv = &created
	} else {
		if err := s.db.AppendMessage(conv.ID, msg); err != nil {
			return models.SendMessageResponse{}, fmt.Errorf("failed to append message: %w", err)
		}
		conv.Messages = append(conv.Messages, msg)
	}

	s.events.PublishMessageSent(ctx, conv.ID, offer.ID, req.Sender.ID)

	var reply *models.Message
	if s.enricher != nil {
		text := s.enricher.ChatReply(ctx, msg.Text, offer, req.Recipient)
		r := models.Message{
			ID:         uuid.New().String(),
			SenderID:   req.Recipient.ID,
			ReceiverID: req.Sender.ID,
			Text:       text,
			Timestamp:  time.Now().UTC(),
		}
		if err := s.db.AppendMessage(conv.ID, r); err != nil {
			// The user's message is already stored; losing the reply is
			// recoverable, so log and continue without it.
			s.logger.Warn("failed to persist generated reply", "conversation_id", conv.ID, "error", err)
		} else {
			conv.Messages = append(conv.Messages, r)
			reply = &r
		}
	}

	return models.SendMessageResponse{Conversation: *conv, Reply: reply}, nil
}

// ListConversations returns every conversation the user participates in.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	if validation.SanitizeString(userID) == "" {
		return nil, &validation.ValidationError{Field: "user_id", Message: "is required"}
	}

	convs, err := s.db.ListConversations(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	return convs, nil
}

// findOffer resolves an offer from the live marketplace (cached pages and
// catalogue) or the user-created store.
func (s *Service) findOffer(id string) (*models.Offer, bool) {
	if offer, ok := s.ctrl.FindOffer(id); ok {
		return offer, true
	}

	offers, err := s.db.ListOffers()
	if err != nil {
		s.logger.Warn("failed to search user offers", "error", err)
		return nil, false
	}
	for i := range offers {
		if offers[i].ID == id {
			return &offers[i], true
		}
	}
	return nil, false
}
