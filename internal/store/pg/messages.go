package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/openautogroup/lotview/internal/store"
)

// PGMessageStore implements store.MessageStore backed by Postgres.
type PGMessageStore struct {
	db *sql.DB
}

func NewPGMessageStore(db *sql.DB) *PGMessageStore {
	return &PGMessageStore{db: db}
}

const messageCols = `id, dealership_id, conversation_id, external_message_id, ghl_message_id,
	direction, sender_name, content, is_read, sent_at, sync_source, created_at`

func (s *PGMessageStore) Insert(ctx context.Context, m *store.Message) (*store.Message, error) {
	now := time.Now()
	// Partial unique indexes on (dealership_id, external_message_id) and
	// (dealership_id, ghl_message_id) make racing inserts collapse to one
	// row; we never read-then-write.
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO messages (dealership_id, conversation_id, external_message_id, ghl_message_id,
			direction, sender_name, content, is_read, sent_at, sync_source, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		 RETURNING id`,
		m.DealershipID, m.ConversationID, nilStr(m.ExternalMessageID), nilStr(m.GHLMessageID),
		string(m.Direction), nilStr(m.SenderName), m.Content, m.IsRead, m.SentAt, string(m.SyncSource), now,
	).Scan(&m.ID)
	if err == nil {
		m.CreatedAt = now
		return m, nil
	}

	mapped := mapErr(err)
	if !errors.Is(mapped, store.ErrAlreadyExists) {
		return nil, mapped
	}

	// Duplicate: hand back the winning row. If the lookup itself fails the
	// caller gets that error, never a nil row with ErrAlreadyExists.
	existing, lookupErr := s.getByDedupKey(ctx, m.DealershipID, m.ExternalMessageID, m.GHLMessageID)
	if lookupErr != nil {
		return nil, lookupErr
	}
	return existing, store.ErrAlreadyExists
}

func (s *PGMessageStore) Exists(ctx context.Context, dealershipID int64, externalMessageID, ghlMessageID string) (bool, error) {
	if externalMessageID == "" && ghlMessageID == "" {
		return false, nil
	}
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM messages
			WHERE dealership_id = $1
			  AND ((external_message_id = NULLIF($2,'')) OR (ghl_message_id = NULLIF($3,'')))
		 )`,
		dealershipID, externalMessageID, ghlMessageID).Scan(&exists)
	return exists, mapErr(err)
}

func (s *PGMessageStore) ExistsNear(ctx context.Context, conversationID int64, direction store.Direction, body string, at time.Time, window time.Duration) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM messages
			WHERE conversation_id = $1 AND direction = $2 AND content = $3
			  AND sent_at BETWEEN $4 AND $5
		 )`,
		conversationID, string(direction), body, at.Add(-window), at.Add(window)).Scan(&exists)
	return exists, mapErr(err)
}

func (s *PGMessageStore) ListByConversation(ctx context.Context, conversationID, dealershipID int64, limit int) ([]store.Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE conversation_id = $1 AND dealership_id = $2
		 ORDER BY sent_at DESC LIMIT $3`,
		conversationID, dealershipID, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var result []store.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *m)
	}
	// Reverse to chronological order.
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, rows.Err()
}

func (s *PGMessageStore) SetGHLMessageID(ctx context.Context, id int64, ghlMessageID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET ghl_message_id = $1 WHERE id = $2 AND ghl_message_id IS NULL`,
		ghlMessageID, id)
	return mapErr(err)
}

func (s *PGMessageStore) MarkRead(ctx context.Context, conversationID, dealershipID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET is_read = true
		 WHERE conversation_id = $1 AND dealership_id = $2 AND is_read = false`,
		conversationID, dealershipID)
	return mapErr(err)
}

func (s *PGMessageStore) getByDedupKey(ctx context.Context, dealershipID int64, externalMessageID, ghlMessageID string) (*store.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE dealership_id = $1
		   AND ((external_message_id = NULLIF($2,'')) OR (ghl_message_id = NULLIF($3,'')))
		 LIMIT 1`,
		dealershipID, externalMessageID, ghlMessageID)
	return scanMessage(row)
}

func scanMessage(row rowScanner) (*store.Message, error) {
	var m store.Message
	var extID, ghlID, sender *string
	var direction, source string
	err := row.Scan(&m.ID, &m.DealershipID, &m.ConversationID, &extID, &ghlID,
		&direction, &sender, &m.Content, &m.IsRead, &m.SentAt, &source, &m.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	m.ExternalMessageID = derefStr(extID)
	m.GHLMessageID = derefStr(ghlID)
	m.SenderName = derefStr(sender)
	m.Direction = store.Direction(direction)
	m.SyncSource = store.SyncSource(source)
	return &m, nil
}
