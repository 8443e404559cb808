package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", Validation("bad %s", "input"), http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("upload: %w", Validation("too big")), http.StatusBadRequest},
		{"not found", fmt.Errorf("post 1: %w", ErrNotFound), http.StatusNotFound},
		{"config", Config("Supabase configuration missing"), http.StatusInternalServerError},
		{"upstream", &UpstreamError{Vendor: "OpenAI", Status: 401}, http.StatusInternalServerError},
		{"store", Store("insert chat", errors.New("boom")), http.StatusInternalServerError},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HTTPStatus(tc.err); got != tc.want {
				t.Fatalf("HTTPStatus = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestUpstreamErrorMessage(t *testing.T) {
	err := &UpstreamError{Vendor: "ElevenLabs", Status: 422, Body: `{"detail":"x"}`, Message: "invalid voice"}
	if got, want := err.Error(), "ElevenLabs API error: 422 - invalid voice"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	bare := &UpstreamError{Vendor: "OpenAI", Status: 503}
	if got, want := bare.Error(), "OpenAI API error: 503 - Service Unavailable"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestStoreNil(t *testing.T) {
	if Store("op", nil) != nil {
		t.Fatal("Store(nil) must be nil")
	}
	var se *StoreError
	if !errors.As(Store("op", errors.New("x")), &se) || se.Op != "op" {
		t.Fatal("expected StoreError with op")
	}
}
