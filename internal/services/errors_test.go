package services_test

import (
	"errors"
	"strings"
	"testing"

	"bidsort/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "convert", "dcm2niix", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"convert", "dcm2niix", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		marker error
		want   services.Outcome
	}{
		{services.ErrMissingSidecarField, services.OutcomeDiscard},
		{services.ErrMalformedName, services.OutcomeFatal},
		{services.ErrUnknownSessionTag, services.OutcomeFatal},
		{services.ErrQuotaViolation, services.OutcomeFatal},
		{services.ErrExternalTool, services.OutcomeFatal},
	}
	for _, tt := range tests {
		err := services.Wrap(tt.marker, "stage", "op", "msg", nil)
		if got := services.Classify(err); got != tt.want {
			t.Fatalf("Classify(%v) = %s, want %s", tt.marker, got, tt.want)
		}
	}
}

func TestCause(t *testing.T) {
	err := services.Wrap(services.ErrQuotaViolation, "ledger", "quota", "too few", nil)
	if got := services.Cause(err); got != "quota violation" {
		t.Fatalf("unexpected cause %q", got)
	}
	if got := services.Cause(errors.New("other")); got != "unknown" {
		t.Fatalf("unexpected cause %q", got)
	}
	if got := services.Cause(nil); got != "" {
		t.Fatalf("expected empty cause for nil, got %q", got)
	}
}
