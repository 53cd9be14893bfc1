// Package testdb opens throwaway SQLite databases for service tests.
package testdb

import (
	"context"
	"testing"

	"github.com/aimd54/questlog/internal/models"
	"github.com/aimd54/questlog/internal/repository"
	"github.com/aimd54/questlog/pkg/logger"
)

// New returns a migrated in-memory store closed at test cleanup.
func New(t *testing.T) *repository.Store {
	t.Helper()

	db, err := repository.NewSQLiteDB(":memory:", logger.Nop())
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	if err := db.AutoMigrate(); err != nil {
		t.Fatalf("Failed to auto-migrate tables: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return repository.NewStore(db)
}

// CreateUser inserts a user with an unusable password hash.
func CreateUser(t *testing.T, store *repository.Store, email string) *models.User {
	t.Helper()

	user := &models.User{Email: email, PasswordHash: "x", DisplayName: email}
	if err := store.Users.Create(context.Background(), user); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}
