package test_utils

import (
	"database/sql"
	"testing"

	"github.com/homekeep/homekeep/pkg/user"
)

// CreateTestUser inserts a user row with an explicit id so tests can satisfy
// foreign keys on events and connections.
func CreateTestUser(t *testing.T, db *sql.DB, id int, displayName string) user.User {
	t.Helper()

	_, err := db.Exec(`INSERT INTO users (id, display_name, timezone) VALUES ($1, $2, $3)`,
		id, displayName, "Europe/Warsaw")
	if err != nil {
		t.Fatalf("Failed to insert test user: %v", err)
	}
	return user.User{
		Id:          id,
		DisplayName: displayName,
		Timezone:    "Europe/Warsaw",
	}
}
