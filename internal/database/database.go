package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"referlut-marketplace/internal/models"
)

// DB wraps the database connection and provides methods for data access.
// It persists user-created offers and conversations; the scraped listing
// itself is never stored here.
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection and initializes the schema.
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables if they don't exist.
func (db *DB) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS user_offers (
			id TEXT PRIMARY KEY,
			brand TEXT NOT NULL,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			instructions TEXT NOT NULL DEFAULT '',
			used INTEGER NOT NULL,
			total INTEGER NOT NULL,
			price REAL NOT NULL,
			featured INTEGER NOT NULL,
			logo TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			offer_id TEXT NOT NULL,
			offer_type TEXT NOT NULL,
			offer_brand TEXT NOT NULL,
			participants TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			receiver_id TEXT NOT NULL,
			text TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_offers_type ON user_offers(type)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_offer ON conversations(offer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

// InsertOffer persists a user-created offer.
func (db *DB) InsertOffer(offer models.Offer) error {
	query := `INSERT INTO user_offers (
		id, brand, type, title, description, instructions,
		used, total, price, featured, logo, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.Exec(
		query,
		offer.ID,
		offer.Brand,
		string(offer.Type),
		offer.Title,
		offer.Description,
		offer.Instructions,
		offer.Used,
		offer.Total,
		offer.Price,
		offer.Featured,
		offer.Logo,
		offer.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert offer: %w", err)
	}

	return nil
}

// ListOffers returns all user-created offers, newest first.
func (db *DB) ListOffers() ([]models.Offer, error) {
	query := `SELECT id, brand, type, title, description, instructions,
		used, total, price, featured, logo, created_at
		FROM user_offers
		ORDER BY created_at DESC`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query offers: %w", err)
	}
	defer rows.Close()

	var offers []models.Offer
	for rows.Next() {
		var offer models.Offer
		var offerType, createdAtStr string

		err := rows.Scan(
			&offer.ID,
			&offer.Brand,
			&offerType,
			&offer.Title,
			&offer.Description,
			&offer.Instructions,
			&offer.Used,
			&offer.Total,
			&offer.Price,
			&offer.Featured,
			&offer.Logo,
			&createdAtStr,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}

		offer.Type = models.OfferType(offerType)
		offer.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}

		offers = append(offers, offer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating offers: %w", err)
	}

	return offers, nil
}

// CreateConversation persists a new conversation and its initial messages.
func (db *DB) CreateConversation(conv models.Conversation) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO conversations (id, offer_id, offer_type, offer_brand, participants)
		VALUES (?, ?, ?, ?, ?)`,
		conv.ID,
		conv.OfferID,
		string(conv.OfferType),
		conv.OfferBrand,
		serializeParticipants(conv.Participants),
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}

	if len(conv.Messages) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO messages (
			id, conversation_id, sender_id, receiver_id, text, timestamp
		) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, msg := range conv.Messages {
			if _, err := stmt.Exec(
				msg.ID, conv.ID, msg.SenderID, msg.ReceiverID, msg.Text,
				msg.Timestamp.Format(time.RFC3339),
			); err != nil {
				return fmt.Errorf("failed to insert message %s: %w", msg.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// AppendMessage adds a message to an existing conversation.
func (db *DB) AppendMessage(conversationID string, msg models.Message) error {
	_, err := db.conn.Exec(
		`INSERT INTO messages (id, conversation_id, sender_id, receiver_id, text, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, conversationID, msg.SenderID, msg.ReceiverID, msg.Text,
		msg.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// FindConversation looks up the conversation between two users about one
// offer. Returns nil when none exists.
func (db *DB) FindConversation(offerID, userA, userB string) (*models.Conversation, error) {
	convs, err := db.conversationsByOffer(offerID)
	if err != nil {
		return nil, err
	}

	for i := range convs {
		if hasParticipant(convs[i], userA) && hasParticipant(convs[i], userB) {
			return &convs[i], nil
		}
	}
	return nil, nil
}

// ListConversations returns every conversation the user participates in,
// messages ordered oldest first.
func (db *DB) ListConversations(userID string) ([]models.Conversation, error) {
	rows, err := db.conn.Query(
		`SELECT id, offer_id, offer_type, offer_brand, participants FROM conversations`)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}

	convs, err := db.scanConversations(rows)
	if err != nil {
		return nil, err
	}

	out := make([]models.Conversation, 0, len(convs))
	for _, conv := range convs {
		if hasParticipant(conv, userID) {
			out = append(out, conv)
		}
	}
	return out, nil
}

// conversationsByOffer loads all conversations about one offer.
func (db *DB) conversationsByOffer(offerID string) ([]models.Conversation, error) {
	rows, err := db.conn.Query(
		`SELECT id, offer_id, offer_type, offer_brand, participants
		FROM conversations WHERE offer_id = ?`, offerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}

	return db.scanConversations(rows)
}

// scanConversations drains rows and attaches each conversation's messages.
func (db *DB) scanConversations(rows *sql.Rows) ([]models.Conversation, error) {
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		var conv models.Conversation
		var offerType, participantsJSON string

		if err := rows.Scan(&conv.ID, &conv.OfferID, &offerType, &conv.OfferBrand, &participantsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}

		conv.OfferType = models.OfferType(offerType)
		conv.Participants = deserializeParticipants(participantsJSON)
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}

	for i := range convs {
		msgs, err := db.messagesFor(convs[i].ID)
		if err != nil {
			return nil, err
		}
		convs[i].Messages = msgs
	}

	return convs, nil
}

// messagesFor loads one conversation's messages ordered by timestamp.
func (db *DB) messagesFor(conversationID string) ([]models.Message, error) {
	rows, err := db.conn.Query(
		`SELECT id, sender_id, receiver_id, text, timestamp
		FROM messages WHERE conversation_id = ? ORDER BY timestamp ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var msg models.Message
		var tsStr string

		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Text, &tsStr); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		msg.Timestamp, err = time.Parse(time.RFC3339, tsStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp: %w", err)
		}

		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return msgs, nil
}

func hasParticipant(conv models.Conversation, userID string) bool {
	for _, p := range conv.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// serializeParticipants stores the two participants as a JSON column.
func serializeParticipants(users []models.User) string {
	data, err := json.Marshal(users)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// deserializeParticipants parses the participants column; malformed data
// reads as an empty list.
func deserializeParticipants(serialized string) []models.User {
	if serialized == "" {
		return []models.User{}
	}
	var users []models.User
	if err := json.Unmarshal([]byte(serialized), &users); err != nil {
		return []models.User{}
	}
	return users
}
