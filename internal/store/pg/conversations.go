package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/openautogroup/lotview/internal/store"
)

// PGConversationStore implements store.ConversationStore backed by Postgres.
type PGConversationStore struct {
	db *sql.DB
}

func NewPGConversationStore(db *sql.DB) *PGConversationStore {
	return &PGConversationStore{db: db}
}

const conversationCols = `id, dealership_id, channel, participant_id, page_access_token,
	assigned_to_user_id, ai_enabled, ai_watch_mode, lead_status, pipeline_stage, tags,
	handoff_name, handoff_phone, handoff_email, ghl_contact_id,
	last_message, last_message_at, created_at, updated_at`

func (s *PGConversationStore) Upsert(ctx context.Context, c *store.Conversation) (*store.Conversation, error) {
	now := time.Now()
	// Insert-or-ignore on the natural key, then read back. Two racing
	// upserts converge on the single row the unique index admits.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (dealership_id, channel, participant_id, page_access_token,
			ai_enabled, ai_watch_mode, lead_status, tags, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
		 ON CONFLICT (dealership_id, channel, participant_id) DO NOTHING`,
		c.DealershipID, string(c.Channel), c.ParticipantID, nilStr(c.PageAccessToken),
		c.AIEnabled, c.AIWatchMode, nilStr(c.LeadStatus), jsonArray(c.Tags), now)
	if err != nil {
		return nil, mapErr(err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationCols+` FROM conversations
		 WHERE dealership_id = $1 AND channel = $2 AND participant_id = $3`,
		c.DealershipID, string(c.Channel), c.ParticipantID)
	return scanConversation(row)
}

func (s *PGConversationStore) Get(ctx context.Context, id, dealershipID int64) (*store.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE id = $1 AND dealership_id = $2`,
		id, dealershipID)
	return scanConversation(row)
}

func (s *PGConversationStore) List(ctx context.Context, dealershipID int64, channel store.Channel, page, limit int) (*store.ConversationList, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset := 0
	if page > 1 {
		offset = (page - 1) * limit
	}

	where := "dealership_id = $1"
	args := []any{dealershipID}
	if channel != "" {
		where += " AND channel = $2"
		args = append(args, string(channel))
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM conversations WHERE "+where, args...).Scan(&total); err != nil {
		return nil, mapErr(err)
	}

	args = append(args, limit, offset)
	q := fmt.Sprintf(`SELECT %s FROM conversations WHERE %s ORDER BY last_message_at DESC NULLS LAST LIMIT $%d OFFSET $%d`,
		conversationCols, where, len(args)-1, len(args))
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	items := []store.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *c)
	}
	return &store.ConversationList{Items: items, Total: total}, rows.Err()
}

func (s *PGConversationStore) Update(ctx context.Context, c *store.Conversation) error {
	c.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET page_access_token=$1, assigned_to_user_id=$2, ai_enabled=$3,
			ai_watch_mode=$4, lead_status=$5, pipeline_stage=$6, tags=$7, ghl_contact_id=$8, updated_at=$9
		 WHERE id=$10 AND dealership_id=$11`,
		nilStr(c.PageAccessToken), c.AssignedToUserID, c.AIEnabled,
		c.AIWatchMode, nilStr(c.LeadStatus), nilStr(c.PipelineStage), jsonArray(c.Tags),
		nilStr(c.GHLContactID), c.UpdatedAt, c.ID, c.DealershipID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PGConversationStore) SetHandoff(ctx context.Context, id, dealershipID int64, name, phone, email string) error {
	// COALESCE keeps any non-empty stored value; mined fields never
	// overwrite what a human or earlier pass already captured.
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET
			handoff_name  = COALESCE(handoff_name, NULLIF($1, '')),
			handoff_phone = COALESCE(handoff_phone, NULLIF($2, '')),
			handoff_email = COALESCE(handoff_email, NULLIF($3, '')),
			updated_at = $4
		 WHERE id = $5 AND dealership_id = $6`,
		name, phone, email, time.Now(), id, dealershipID)
	return mapErr(err)
}

func (s *PGConversationStore) TouchLastMessage(ctx context.Context, id int64, preview string, at time.Time) error {
	if len(preview) > 280 {
		preview = preview[:280]
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET last_message = $1, last_message_at = $2, updated_at = $3 WHERE id = $4`,
		preview, at, time.Now(), id)
	return mapErr(err)
}

func scanConversation(row rowScanner) (*store.Conversation, error) {
	var c store.Conversation
	var channel string
	var pageToken, leadStatus, stage, hName, hPhone, hEmail, ghlContact, lastMsg *string
	var tags []byte
	err := row.Scan(&c.ID, &c.DealershipID, &channel, &c.ParticipantID, &pageToken,
		&c.AssignedToUserID, &c.AIEnabled, &c.AIWatchMode, &leadStatus, &stage, &tags,
		&hName, &hPhone, &hEmail, &ghlContact,
		&lastMsg, &c.LastMessageAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	c.Channel = store.Channel(channel)
	c.PageAccessToken = derefStr(pageToken)
	c.LeadStatus = derefStr(leadStatus)
	c.PipelineStage = derefStr(stage)
	c.HandoffName = derefStr(hName)
	c.HandoffPhone = derefStr(hPhone)
	c.HandoffEmail = derefStr(hEmail)
	c.GHLContactID = derefStr(ghlContact)
	c.LastMessage = derefStr(lastMsg)
	scanJSONArray(tags, &c.Tags)
	return &c, nil
}
