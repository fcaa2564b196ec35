package models

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// NewTestDatabase creates a migrated in-memory SQLite database for testing
func NewTestDatabase(t *testing.T) *Database {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db, err := open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
