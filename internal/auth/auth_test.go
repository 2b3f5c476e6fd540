package auth

import (
	"errors"
	"testing"

	"github.com/classcast/classcast/internal/storage"
)

type fakeUserStore struct {
	users map[string]storage.User
}

func (f *fakeUserStore) FindUserByID(id string) (storage.User, error) {
	u, ok := f.users[id]
	if !ok {
		return storage.User{}, storage.ErrNotFound
	}
	return u, nil
}

func newTestVerifier() *Verifier {
	return NewVerifier("test-secret", &fakeUserStore{users: map[string]storage.User{
		"t1": {ID: "t1", FirstName: "Grace", LastName: "Hopper", Role: "teacher", IsActive: true},
		"s1": {ID: "s1", FirstName: "Alan", LastName: "Kay", Role: "student", IsActive: true},
		"s2": {ID: "s2", FirstName: "Ada", LastName: "Lovelace", Role: "student", IsActive: false},
	}})
}

func TestVerifyResolvesIdentity(t *testing.T) {
	v := newTestVerifier()

	token, err := Sign("test-secret", "t1", RoleTeacher)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	identity, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if identity.UserID != "t1" {
		t.Fatalf("expected user t1, got %q", identity.UserID)
	}
	if identity.Name != "Grace Hopper" {
		t.Fatalf("expected resolved display name, got %q", identity.Name)
	}
	if identity.Role != RoleTeacher {
		t.Fatalf("expected teacher role, got %q", identity.Role)
	}
}

func TestVerifyRoleComesFromAccount(t *testing.T) {
	v := newTestVerifier()

	// Token claims teacher, account says student. The account wins.
	token, err := Sign("test-secret", "s1", RoleTeacher)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	identity, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if identity.Role != RoleStudent {
		t.Fatalf("expected account role student, got %q", identity.Role)
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	v := newTestVerifier()

	if _, err := v.Verify(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	if _, err := v.Verify("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	wrongKey, err := Sign("other-secret", "t1", RoleTeacher)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if _, err := v.Verify(wrongKey); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong key, got %v", err)
	}

	unknownUser, err := Sign("test-secret", "ghost", RoleStudent)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if _, err := v.Verify(unknownUser); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for unknown user, got %v", err)
	}
}

func TestVerifyRejectsInactiveAccount(t *testing.T) {
	v := newTestVerifier()

	token, err := Sign("test-secret", "s2", RoleStudent)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if _, err := v.Verify(token); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
}
