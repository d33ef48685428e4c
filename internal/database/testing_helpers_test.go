package database

import (
	"testing"

	"github.com/pashagolub/pgxmock/v4"
)

// Database test helpers.
//
// SessionStore works against the DBTX interface (dbtx.go), so unit tests
// build it with NewSessionStoreWithDB(mock, ttl) on top of a pgxmock pool:
//
//	mock := NewMockPool(t)
//	store := NewSessionStoreWithDB(mock, time.Hour)
//	mock.ExpectExec(`DELETE FROM auth_sessions`).
//	    WithArgs("sess-1").
//	    WillReturnResult(pgxmock.NewResult("DELETE", 1))
//
// Queries are matched as regular expressions. Expectations are verified
// automatically when the test ends.

// NewMockPool creates a pgxmock pool whose expectations are checked on cleanup
func NewMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	t.Cleanup(func() {
		mock.Close()
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled mock expectations: %v", err)
		}
	})
	return mock
}
