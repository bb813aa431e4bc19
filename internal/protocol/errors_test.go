package protocol

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrInvalidArgument,
		ErrNotFound,
		ErrAlreadyExists,
		ErrInvalidState,
		ErrExternal,
		ErrInternal,
		WarnEffect,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestCodeOf_WrappedAndPlain(t *testing.T) {
	err := fmt.Errorf("select w9: %w", Errorf(ErrNotFound, "world %s", "w9"))
	if got := CodeOf(err); got != ErrNotFound {
		t.Fatalf("code=%q want %q", got, ErrNotFound)
	}
	if got := CodeOf(errors.New("boom")); got != ErrInternal {
		t.Fatalf("plain error code=%q", got)
	}
	if CodeOf(nil) != "" {
		t.Fatalf("nil error should have no code")
	}

	cause := errors.New("disk full")
	ext := External("write world", cause)
	if !IsCode(ext, ErrExternal) {
		t.Fatalf("expected external code, got %q", CodeOf(ext))
	}
	if !errors.Is(ext, cause) {
		t.Fatalf("cause lost: %v", ext)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[string]int{
		ErrInvalidArgument: http.StatusBadRequest,
		ErrNotFound:        http.StatusNotFound,
		ErrAlreadyExists:   http.StatusConflict,
		ErrInvalidState:    http.StatusConflict,
		ErrExternal:        http.StatusBadGateway,
		ErrInternal:        http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := HTTPStatus(code); got != want {
			t.Fatalf("%s: status=%d want %d", code, got, want)
		}
	}
}
