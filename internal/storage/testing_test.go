package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/YunYun501/Lazy-Learn-V2/internal/config"
	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = Migrate(ctx, db, "sqlite")
	require.NoError(t, err)
	return db
}

func seedDocument(t *testing.T, repos *Repositories, courseID *string) *domain.Document {
	t.Helper()
	doc := &domain.Document{Title: "Physics", FilePath: "/tmp/physics.pdf", CourseID: courseID}
	require.NoError(t, repos.Documents.Create(context.Background(), doc))
	return doc
}
