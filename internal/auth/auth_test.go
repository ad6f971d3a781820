package auth

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestGenerateAndValidateKey(t *testing.T) {
	m := NewManager(NewMemoryStore())
	ctx := context.Background()

	raw, key, err := m.GenerateKey(ctx, "usr_1", "default")
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if !strings.HasPrefix(raw, "fk_") {
		t.Errorf("raw key should have fk_ prefix, got %s", raw)
	}
	if key.UserID != "usr_1" {
		t.Errorf("key bound to %s, want usr_1", key.UserID)
	}

	got, err := m.ValidateKey(ctx, raw)
	if err != nil {
		t.Fatalf("ValidateKey failed: %v", err)
	}
	if got.ID != key.ID {
		t.Errorf("validated key %s, want %s", got.ID, key.ID)
	}
}

func TestValidateKey_BearerPrefix(t *testing.T) {
	m := NewManager(NewMemoryStore())
	ctx := context.Background()

	raw, _, err := m.GenerateKey(ctx, "usr_1", "default")
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	if _, err := m.ValidateKey(ctx, "Bearer "+raw); err != nil {
		t.Errorf("bearer-prefixed key should validate: %v", err)
	}
}

func TestValidateKey_Invalid(t *testing.T) {
	m := NewManager(NewMemoryStore())
	ctx := context.Background()

	cases := []string{"", "notakey", "fk_deadbeef"}
	for _, raw := range cases {
		if _, err := m.ValidateKey(ctx, raw); err == nil {
			t.Errorf("ValidateKey(%q) should fail", raw)
		}
	}
}

func TestRevokeKey(t *testing.T) {
	m := NewManager(NewMemoryStore())
	ctx := context.Background()

	raw, key, err := m.GenerateKey(ctx, "usr_1", "default")
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	if err := m.RevokeKey(ctx, key.ID, "usr_1"); err != nil {
		t.Fatalf("RevokeKey failed: %v", err)
	}

	if _, err := m.ValidateKey(ctx, raw); err == nil {
		t.Error("revoked key should not validate")
	}
}

func TestRevokeKey_WrongUser(t *testing.T) {
	m := NewManager(NewMemoryStore())
	ctx := context.Background()

	_, key, err := m.GenerateKey(ctx, "usr_1", "default")
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	if err := m.RevokeKey(ctx, key.ID, "usr_2"); err != ErrKeyNotFound {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestValidateKey_Expired(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store)
	ctx := context.Background()

	raw, key, err := m.GenerateKey(ctx, "usr_1", "default")
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	past := time.Now().Add(-time.Hour)
	key.ExpiresAt = &past
	if err := store.Update(ctx, key); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if _, err := m.ValidateKey(ctx, raw); err == nil {
		t.Error("expired key should not validate")
	}
}
