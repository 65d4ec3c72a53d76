package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("edit message: %w", Permission("only the sender can edit a message"))
	if !errors.Is(err, ErrForbidden) {
		t.Fatal("errors.Is(permission, ErrForbidden) = false, want true")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("errors.Is(permission, ErrNotFound) = true, want false")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{Validation("x"), KindValidation},
		{NotFound("x"), KindNotFound},
		{fmt.Errorf("wrapped: %w", Auth("x")), KindAuth},
		{errors.New("pgx: connection refused"), KindStore},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Fatalf("KindOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestPublicMessageHidesStoreCause(t *testing.T) {
	err := Store("insert message", errors.New("duplicate key value violates unique constraint"))
	if got := PublicMessage(err); got != "internal error" {
		t.Fatalf("PublicMessage = %q, want internal error", got)
	}
	if got := PublicMessage(Permission("forbidden")); got != "forbidden" {
		t.Fatalf("PublicMessage = %q, want forbidden", got)
	}
	if got := PublicMessage(errors.New("raw")); got != "internal error" {
		t.Fatalf("PublicMessage = %q, want internal error", got)
	}
}

func TestHTTPStatusAndCode(t *testing.T) {
	if got := HTTPStatus(KindPermission); got != http.StatusForbidden {
		t.Fatalf("HTTPStatus(permission) = %d", got)
	}
	if got := Code(KindPermission); got != "forbidden" {
		t.Fatalf("Code(permission) = %q", got)
	}
	if got := HTTPStatus(KindStore); got != http.StatusInternalServerError {
		t.Fatalf("HTTPStatus(store) = %d", got)
	}
	if got := Code(KindStore); got != "internal" {
		t.Fatalf("Code(store) = %q", got)
	}
}
