package auth

import (
	"testing"
	"time"
)

// Every soft-deletable entity exposes the same Deleted accessor; repository
// filters and service checks rely on all three being present.
func TestSoftDeleteAccessors(t *testing.T) {
	now := time.Now()

	user := &User{ID: "user-1"}
	if user.Deleted() {
		t.Error("fresh user must not read as deleted")
	}
	user.DeletedAt = &now
	if !user.Deleted() {
		t.Error("user with deleted_at set must read as deleted")
	}

	session := &Session{ID: "session-1"}
	if session.Deleted() {
		t.Error("fresh session must not read as deleted")
	}
	session.DeletedAt = &now
	if !session.Deleted() {
		t.Error("revoked session must read as deleted")
	}

	tok := &OneTimeToken{ID: "tok-1"}
	if tok.Deleted() {
		t.Error("fresh token must not read as consumed")
	}
	tok.DeletedAt = &now
	if !tok.Deleted() {
		t.Error("consumed token must read as deleted")
	}
}
