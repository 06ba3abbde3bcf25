package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ilkoid/poncho-assistants/pkg/config"
)

// setupMockDB creates a new mock database for testing.
func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestAssistantRepo_Get(t *testing.T) {
	now := time.Now()
	query := regexp.QuoteMeta(`SELECT id, credential, details, icon_src, created_at, updated_at FROM assistant WHERE id = $1`)

	tests := []struct {
		name      string
		setupMock func(sqlmock.Sqlmock)
		wantErr   error
		wantCred  string
	}{
		{
			name: "found",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(query).WithArgs("a1").WillReturnRows(
					sqlmock.NewRows([]string{"id", "credential", "details", "icon_src", "created_at", "updated_at"}).
						AddRow("a1", "cred-1", `{"id":"asst_1","name":"Helper","instructions":"be nice"}`, "", now, now))
			},
			wantCred: "cred-1",
		},
		{
			name: "not found",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(query).WithArgs("a1").WillReturnError(sql.ErrNoRows)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "database error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(query).WithArgs("a1").WillReturnError(errors.New("connection refused"))
			},
			wantErr: errors.New("failed to load assistant"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			tt.setupMock(mock)

			got, err := NewAssistantRepo(db).Get(context.Background(), "a1")
			switch {
			case tt.wantErr == nil:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.Credential != tt.wantCred {
					t.Errorf("expected credential %s, got %s", tt.wantCred, got.Credential)
				}
			case errors.Is(tt.wantErr, ErrNotFound):
				if !errors.Is(err, ErrNotFound) {
					t.Errorf("expected ErrNotFound, got %v", err)
				}
			default:
				if err == nil || !regexp.MustCompile(tt.wantErr.Error()).MatchString(err.Error()) {
					t.Errorf("expected %q, got %v", tt.wantErr, err)
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestAssistantRepo_List(t *testing.T) {
	db, mock := setupMockDB(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM assistant ORDER BY updated_at DESC`)).WillReturnRows(
		sqlmock.NewRows([]string{"id", "credential", "details", "icon_src", "created_at", "updated_at"}).
			AddRow("a2", "c", `{"id":"asst_2","name":"B"}`, "", now, now).
			AddRow("a1", "c", `{"id":"asst_1","name":"A"}`, "", now, now))

	list, err := NewAssistantRepo(db).List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 || list[0].ID != "a2" {
		t.Errorf("unexpected list %+v", list)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAssistantRepo_SaveRequiresID(t *testing.T) {
	db, _ := setupMockDB(t)
	if err := NewAssistantRepo(db).Save(context.Background(), &StoredAssistant{}); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestParseDetails(t *testing.T) {
	tests := []struct {
		name    string
		details string
		wantErr bool
		wantID  string
	}{
		{"valid", `{"id":"asst_1","name":"Helper","instructions":"x"}`, false, "asst_1"},
		{"broken json", `{"id":`, true, ""},
		{"empty remote id", `{"name":"Helper"}`, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &StoredAssistant{ID: "a1", Details: tt.details}
			d, err := a.ParseDetails()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDetails) {
					t.Errorf("expected ErrInvalidDetails, got %v", err)
				}
				return
			}
			if err != nil || d.ID != tt.wantID {
				t.Errorf("unexpected result %+v %v", d, err)
			}
		})
	}
}

func TestChatMessageRepo_FindByChatID(t *testing.T) {
	db, mock := setupMockDB(t)
	query := regexp.QuoteMeta(`WHERE chat_id = $1 AND session_id <> '' ORDER BY created_at DESC LIMIT 1`)

	mock.ExpectQuery(query).WithArgs("chat-1").WillReturnRows(
		sqlmock.NewRows([]string{"id", "role", "chatflow_id", "chat_id", "session_id", "content", "created_at"}).
			AddRow("m1", RoleAssistant, "", "chat-1", "thread_abc", "hi", time.Now()))
	mock.ExpectQuery(query).WithArgs("chat-2").WillReturnError(sql.ErrNoRows)

	repo := NewChatMessageRepo(db)

	msg, err := repo.FindByChatID(context.Background(), "chat-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.SessionID != "thread_abc" {
		t.Errorf("expected thread_abc, got %s", msg.SessionID)
	}

	_, err = repo.FindByChatID(context.Background(), "chat-2")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestChatMessageRepo_Append(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO chat_message`)).
		WithArgs("m1", RoleUser, "", "chat-1", "thread_1", "hello", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo := NewChatMessageRepo(db)
	err := repo.Append(context.Background(), &StoredChatMessage{
		ID: "m1", Role: RoleUser, ChatID: "chat-1", SessionID: "thread_1", Content: "hello",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := repo.Append(context.Background(), &StoredChatMessage{ID: "m2"}); err == nil {
		t.Error("expected error for missing chat id")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestChatMessageRepo_DeleteBySessionID(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM chat_message WHERE session_id = $1`)).
		WithArgs("thread_1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := NewChatMessageRepo(db).DeleteBySessionID(context.Background(), "thread_1")
	if err != nil || n != 3 {
		t.Fatalf("expected 3 deleted, got %d (%v)", n, err)
	}
}

func TestCredentialRepo_GetAndParams(t *testing.T) {
	db, mock := setupMockDB(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM credential WHERE id = $1`)).WithArgs("c1").WillReturnRows(
		sqlmock.NewRows([]string{"id", "name", "credential_name", "data", "created_at", "updated_at"}).
			AddRow("c1", "prod key", "openAIApi", `{"openAIApiKey":"sk-test"}`, now, now))

	c, err := NewCredentialRepo(db).Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	params, err := c.Params()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params["openAIApiKey"] != "sk-test" {
		t.Errorf("unexpected params %v", params)
	}

	broken := &Credential{ID: "c2", Data: "{"}
	if _, err := broken.Params(); err == nil {
		t.Error("expected error for broken data")
	}
}

// TestSQLiteRoundTrip гоняет миграцию и репозитории на настоящем sqlite в памяти.
func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, config.DatabaseConfig{Driver: "sqlite3", DSN: ":memory:", AutoMigrate: true})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer db.Close()

	assistants := NewAssistantRepo(db)
	if err := assistants.Save(ctx, &StoredAssistant{ID: "a1", Credential: "c1", Details: `{"id":"asst_1","name":"Helper"}`}); err != nil {
		t.Fatalf("save assistant: %v", err)
	}
	// upsert
	if err := assistants.Save(ctx, &StoredAssistant{ID: "a1", Credential: "c2", Details: `{"id":"asst_1","name":"Helper v2"}`}); err != nil {
		t.Fatalf("update assistant: %v", err)
	}
	got, err := assistants.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("get assistant: %v", err)
	}
	if got.Credential != "c2" {
		t.Errorf("expected upserted credential c2, got %s", got.Credential)
	}

	chats := NewChatMessageRepo(db)
	if _, err := chats.FindByChatID(ctx, "chat-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found before append, got %v", err)
	}
	if err := chats.Append(ctx, &StoredChatMessage{ID: "m1", Role: RoleUser, ChatID: "chat-1", SessionID: "thread_1", Content: "hi"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	msg, err := chats.FindByChatID(ctx, "chat-1")
	if err != nil || msg.SessionID != "thread_1" {
		t.Fatalf("unexpected lookup result %+v %v", msg, err)
	}

	n, err := chats.DeleteByChatID(ctx, "chat-1")
	if err != nil || n != 1 {
		t.Fatalf("expected 1 deleted, got %d (%v)", n, err)
	}
}
