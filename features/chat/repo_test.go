package chat_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"sojourn/backend/features/chat"
	"sojourn/backend/internal/rag"
)

func TestPostgresRepo_CreateSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO chat_sessions`).
		WithArgs("user-a", "What is IELTS?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("session-1", now, now))

	repo := chat.NewPostgresRepo(db)
	s := &chat.Session{UserID: "user-a", Title: "What is IELTS?"}
	err = repo.CreateSession(context.Background(), s)

	assert.NoError(t, err)
	assert.Equal(t, "session-1", s.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_GetSession_WrongTenant(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT id, user_id, title`).
		WithArgs("session-1", "user-b").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "created_at", "updated_at"}))

	repo := chat.NewPostgresRepo(db)
	_, err = repo.GetSession(context.Background(), "user-b", "session-1")

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_SaveMessage(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO chat_messages`).
		WithArgs("session-1", chat.RoleAssistant, "Tier 4.", "PROFILE_DEPENDENT", true, []byte(`[{"asset_id":"asset-1","excerpt":"Visa type"}]`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("msg-1", time.Now()))

	repo := chat.NewPostgresRepo(db)
	m := &chat.Message{
		SessionID:   "session-1",
		Role:        chat.RoleAssistant,
		Content:     "Tier 4.",
		QueryType:   "PROFILE_DEPENDENT",
		UsedContext: true,
		Sources:     []rag.SourceSnippet{{AssetID: "asset-1", Excerpt: "Visa type"}},
	}
	err = repo.SaveMessage(context.Background(), m)

	assert.NoError(t, err)
	assert.Equal(t, "msg-1", m.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ListMessages(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "session_id", "role", "content", "query_type", "used_context", "sources", "created_at"}).
		AddRow("m1", "session-1", chat.RoleUser, "q", "", false, nil, now).
		AddRow("m2", "session-1", chat.RoleAssistant, "a", "GENERAL", false, []byte(`[{"asset_id":"x","excerpt":"y"}]`), now)

	mock.ExpectQuery(`SELECT m.id, m.session_id`).
		WithArgs("session-1", "user-a").
		WillReturnRows(rows)

	repo := chat.NewPostgresRepo(db)
	messages, err := repo.ListMessages(context.Background(), "user-a", "session-1")

	assert.NoError(t, err)
	assert.Len(t, messages, 2)
	assert.Equal(t, chat.RoleUser, messages[0].Role)
	assert.Len(t, messages[1].Sources, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_CountSessions(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM chat_sessions`).
		WithArgs("user-a").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	repo := chat.NewPostgresRepo(db)
	count, err := repo.CountSessions(context.Background(), "user-a")

	assert.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
