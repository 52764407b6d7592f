package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/VSydorenko/simplyCMS-core-sub001/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "abc123"})
	rec := httptest.NewRecorder()

	err := NewError("invalid_request", "quantity must be\npositive", http.StatusBadRequest).
		WithField("quantity").
		WithDetails(map[string]any{"min": 1})
	WriteError(ctx, rec, err)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %s", ct)
	}

	var payload map[string]any
	if decodeErr := json.Unmarshal(rec.Body.Bytes(), &payload); decodeErr != nil {
		t.Fatalf("decode: %v", decodeErr)
	}
	if payload["error"] != "invalid_request" || payload["message"] != "quantity must be positive" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if payload["trace_id"] != "abc123" {
		t.Fatalf("expected trace id, got %v", payload["trace_id"])
	}
	// WithDetails replaces earlier details.
	if _, ok := payload["field"]; ok {
		t.Fatalf("expected field to be replaced by details, got %v", payload)
	}
	if payload["min"] != float64(1) {
		t.Fatalf("expected min detail, got %v", payload["min"])
	}
}

func TestNewErrorDefaultsStatus(t *testing.T) {
	err := NewError("boom", "", 0)
	if err.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500 default, got %d", err.Status)
	}
	if err.Error() != "boom" {
		t.Fatalf("unexpected error string %q", err.Error())
	}
	if got := NewError("price_unavailable", "no price", http.StatusUnprocessableEntity).WithField("product_id").Details["field"]; got != "product_id" {
		t.Fatalf("expected field detail, got %v", got)
	}
}
