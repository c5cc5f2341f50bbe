package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// TranscriptLog persists turns to PostgreSQL for long-term history. The
// dialogue frame itself lives in a Store; this table is append-only.
type TranscriptLog struct {
	db  *sql.DB
	now func() time.Time
}

// NewTranscriptLog returns nil when db is nil so callers can leave history off.
func NewTranscriptLog(db *sql.DB) *TranscriptLog {
	if db == nil {
		return nil
	}
	return &TranscriptLog{db: db, now: time.Now}
}

// MessageRecord is one stored turn half.
type MessageRecord struct {
	ID             uuid.UUID `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Append records one message and bumps the conversation's counters,
// creating the conversation row on first use.
func (l *TranscriptLog) Append(ctx context.Context, conversationID, role, content string) error {
	if l == nil || l.db == nil {
		return nil
	}
	now := l.now().UTC()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("conversation: begin transcript tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (conversation_id, message_count, started_at, last_message_at)
		VALUES ($1, 1, $2, $2)
		ON CONFLICT (conversation_id) DO UPDATE SET
			message_count = conversations.message_count + 1,
			last_message_at = EXCLUDED.last_message_at
	`, conversationID, now); err != nil {
		return fmt.Errorf("conversation: upsert conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversation_messages (id, conversation_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), conversationID, role, content, now); err != nil {
		return fmt.Errorf("conversation: insert message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("conversation: commit transcript: %w", err)
	}
	return nil
}

// History returns a conversation's messages oldest first. An empty roles
// filter returns every role; a non-positive limit returns everything.
func (l *TranscriptLog) History(ctx context.Context, conversationID string, roles []string, limit int) ([]MessageRecord, error) {
	if l == nil || l.db == nil {
		return nil, nil
	}
	query := `
		SELECT id, conversation_id, role, content, created_at
		FROM conversation_messages
		WHERE conversation_id = $1
		  AND (cardinality($2::text[]) = 0 OR role = ANY($2))
		ORDER BY created_at ASC
	`
	if roles == nil {
		roles = []string{}
	}
	args := []any{conversationID, pq.Array(roles)}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("conversation: query history: %w", err)
	}
	defer rows.Close()

	var out []MessageRecord
	for rows.Next() {
		var m MessageRecord
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan history: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
