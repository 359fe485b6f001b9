package chat

import (
	"context"
	"database/sql"
	"encoding/json"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) CreateSession(ctx context.Context, s *Session) error {
	query := `INSERT INTO chat_sessions (user_id, title) VALUES ($1, $2) RETURNING id, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query, s.UserID, s.Title).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

func (r *PostgresRepo) GetSession(ctx context.Context, userID, sessionID string) (*Session, error) {
	s := &Session{}
	query := `SELECT id, user_id, title, created_at, updated_at FROM chat_sessions WHERE id = $1 AND user_id = $2`
	err := r.db.QueryRowContext(ctx, query, sessionID, userID).Scan(&s.ID, &s.UserID, &s.Title, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepo) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	query := `SELECT id, user_id, title, created_at, updated_at FROM chat_sessions WHERE user_id = $1 ORDER BY updated_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.Title, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *PostgresRepo) SaveMessage(ctx context.Context, m *Message) error {
	var sources []byte
	if m.Sources != nil {
		var err error
		sources, err = json.Marshal(m.Sources)
		if err != nil {
			return err
		}
	}

	query := `INSERT INTO chat_messages (session_id, role, content, query_type, used_context, sources)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`
	return r.db.QueryRowContext(ctx, query, m.SessionID, m.Role, m.Content, m.QueryType, m.UsedContext, sources).
		Scan(&m.ID, &m.CreatedAt)
}

func (r *PostgresRepo) ListMessages(ctx context.Context, userID, sessionID string) ([]Message, error) {
	query := `SELECT m.id, m.session_id, m.role, m.content, COALESCE(m.query_type, ''), m.used_context, m.sources, m.created_at
		FROM chat_messages m
		JOIN chat_sessions s ON s.id = m.session_id
		WHERE m.session_id = $1 AND s.user_id = $2
		ORDER BY m.created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, sessionID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var sources []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.QueryType, &m.UsedContext, &sources, &m.CreatedAt); err != nil {
			return nil, err
		}
		if len(sources) > 0 {
			if err := json.Unmarshal(sources, &m.Sources); err != nil {
				return nil, err
			}
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *PostgresRepo) TouchSession(ctx context.Context, sessionID string) error {
	query := `UPDATE chat_sessions SET updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, sessionID)
	return err
}

func (r *PostgresRepo) CountSessions(ctx context.Context, userID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM chat_sessions WHERE user_id = $1`
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&count)
	return count, err
}
