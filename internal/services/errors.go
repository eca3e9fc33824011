package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedName       = errors.New("malformed name")
	ErrUnknownSessionTag   = errors.New("unknown session tag")
	ErrMissingSidecarField = errors.New("missing sidecar field")
	ErrQuotaViolation      = errors.New("quota violation")
	ErrExternalTool        = errors.New("external tool error")
	ErrValidation          = errors.New("validation error")
	ErrConfiguration       = errors.New("configuration error")
	ErrTransient           = errors.New("transient failure")
)

// Outcome tells the driver how far a failure propagates.
type Outcome string

const (
	// OutcomeDiscard means the acquisition is not useful; drop it and continue.
	OutcomeDiscard Outcome = "discard"
	// OutcomeFatal means the folder cannot be trusted; abort it and report.
	OutcomeFatal Outcome = "fatal"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later outcome classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps a stage error to the outcome the driver should apply.
func Classify(err error) Outcome {
	switch {
	case errors.Is(err, ErrMissingSidecarField):
		return OutcomeDiscard
	default:
		return OutcomeFatal
	}
}

// Cause returns the short marker name carried by err, used as the failure
// cause in the run history.
func Cause(err error) string {
	for _, marker := range []error{
		ErrMalformedName,
		ErrUnknownSessionTag,
		ErrMissingSidecarField,
		ErrQuotaViolation,
		ErrExternalTool,
		ErrValidation,
		ErrConfiguration,
		ErrTransient,
	} {
		if errors.Is(err, marker) {
			return marker.Error()
		}
	}
	if err == nil {
		return ""
	}
	return "unknown"
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
