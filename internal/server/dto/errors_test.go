package dto

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAPIError(t *testing.T) {
	t.Run("NewAPIError", func(t *testing.T) {
		err := NewAPIError(ErrorCodeNotFound, "item not found")
		if err.StatusCode() != http.StatusNotFound {
			t.Errorf("StatusCode() = %d, want %d", err.StatusCode(), http.StatusNotFound)
		}
		if err.Code() != ErrorCodeNotFound {
			t.Errorf("Code() = %s, want %s", err.Code(), ErrorCodeNotFound)
		}
		if err.Error() != "item not found" {
			t.Errorf("Error() = %q", err.Error())
		}
		if err.Details() != nil {
			t.Errorf("Details() = %v", err.Details())
		}
	})
	t.Run("WithStatus", func(t *testing.T) {
		err := OAuthError("invalid state").WithStatus(http.StatusBadRequest).WithDetail("provider", "google")
		if err.StatusCode() != http.StatusBadRequest || err.Code() != ErrorCodeOAuthError {
			t.Errorf("got %d %s", err.StatusCode(), err.Code())
		}
		if err.Details()["provider"] != "google" {
			t.Errorf("Details() = %v", err.Details())
		}
	})
	t.Run("Wrap", func(t *testing.T) {
		orig := errors.New("disk full")
		err := StorageError(orig)
		if !errors.Is(err, orig) {
			t.Error("errors.Is did not find the wrapped error")
		}
		if err.Error() != "storage error: disk full" {
			t.Errorf("Error() = %q", err.Error())
		}
	})
	t.Run("satisfies ErrorWithStatus", func(t *testing.T) {
		var err error = MissingField("name")
		var ews ErrorWithStatus
		if !errors.As(err, &ews) {
			t.Fatal("errors.As failed")
		}
		if ews.Details()["field"] != "name" {
			t.Errorf("Details() = %v", ews.Details())
		}
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *APIError
		status int
		code   ErrorCode
	}{
		{"NotFound", NotFound("history"), http.StatusNotFound, ErrorCodeNotFound},
		{"BadRequest", BadRequest("bad"), http.StatusBadRequest, ErrorCodeValidationFailed},
		{"InvalidField", InvalidField("quantity", "bad"), http.StatusBadRequest, ErrorCodeValidationFailed},
		{"MissingField", MissingField("name"), http.StatusBadRequest, ErrorCodeMissingField},
		{"InvalidFormat", InvalidFormat("bad json"), http.StatusBadRequest, ErrorCodeInvalidFormat},
		{"PayloadTooLarge", PayloadTooLarge(10), http.StatusRequestEntityTooLarge, ErrorCodePayloadTooLarge},
		{"Unauthorized", Unauthorized(), http.StatusUnauthorized, ErrorCodeUnauthorized},
		{"RateLimitExceeded", RateLimitExceeded(3), http.StatusTooManyRequests, ErrorCodeRateLimitExceeded},
		{"StorageError", StorageError(errors.New("x")), http.StatusInternalServerError, ErrorCodeStorageError},
		{"Internal", Internal("x"), http.StatusInternalServerError, ErrorCodeInternal},
		{"InternalWithError", InternalWithError("x", errors.New("y")), http.StatusInternalServerError, ErrorCodeInternal},
		{"InvalidProvider", InvalidProvider(), http.StatusNotFound, ErrorCodeInvalidProvider},
		{"OAuthError", OAuthError("token_exchange"), http.StatusInternalServerError, ErrorCodeOAuthError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.StatusCode() != tt.status {
				t.Errorf("StatusCode() = %d, want %d", tt.err.StatusCode(), tt.status)
			}
			if tt.err.Code() != tt.code {
				t.Errorf("Code() = %s, want %s", tt.err.Code(), tt.code)
			}
		})
	}
}

func TestAddItemRequest(t *testing.T) {
	zero := int64(0)
	neg := int64(-2)
	three := int64(3)
	tests := []struct {
		name      string
		req       AddItemRequest
		wantCode  ErrorCode
		wantDelta int64
	}{
		{"default quantity", AddItemRequest{Name: "milk"}, "", 1},
		{"explicit quantity", AddItemRequest{Name: "milk", Quantity: &three}, "", 3},
		{"missing name", AddItemRequest{}, ErrorCodeMissingField, 1},
		{"zero quantity", AddItemRequest{Name: "milk", Quantity: &zero}, ErrorCodeValidationFailed, 0},
		{"negative quantity", AddItemRequest{Name: "milk", Quantity: &neg}, ErrorCodeValidationFailed, -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Validate() = %v", err)
				}
			} else {
				var ews ErrorWithStatus
				if !errors.As(err, &ews) || ews.Code() != tt.wantCode {
					t.Fatalf("Validate() = %v, want code %s", err, tt.wantCode)
				}
			}
			if got := tt.req.Delta(); got != tt.wantDelta {
				t.Errorf("Delta() = %d, want %d", got, tt.wantDelta)
			}
		})
	}
}

func TestAsError(t *testing.T) {
	plain := errors.New("boom")
	got := AsError(plain)
	if got.Code() != ErrorCodeInternal || got.StatusCode() != http.StatusInternalServerError {
		t.Errorf("AsError(plain) = %d %s", got.StatusCode(), got.Code())
	}
	if !errors.Is(got.(error), plain) {
		t.Error("cause lost")
	}

	wrapped := fmt.Errorf("handler: %w", MissingField("name"))
	got = AsError(wrapped)
	if got.Code() != ErrorCodeMissingField {
		t.Errorf("AsError(wrapped) = %s", got.Code())
	}
	resp := NewErrorResponse(got)
	if resp.Error.Code != ErrorCodeMissingField || resp.Details["field"] != "name" {
		t.Errorf("NewErrorResponse = %+v", resp)
	}
}
