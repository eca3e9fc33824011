// Package identity turns decoded scanner identifiers into canonical dataset
// identity using the configured correction and session tables.
package identity

import (
	"fmt"
	"strings"

	"bidsort/internal/config"
	"bidsort/internal/services"
)

// Canonical is the resolved identity of one converted group.
type Canonical struct {
	// SubjectCode is the subject prefix taken from the session table (e.g. "PAT").
	SubjectCode string
	// Session is the canonical session folder name (e.g. "ses-acute").
	Session string
	// ID is the corrected numeric subject id, zero-padded to at least two digits.
	ID string
}

// Subject returns the subject label without the "sub-" prefix.
func (c Canonical) Subject() string {
	return c.SubjectCode + c.ID
}

// SubjectDir returns the subject folder name, e.g. "sub-PAT07".
func (c Canonical) SubjectDir() string {
	return "sub-" + c.Subject()
}

// Resolver resolves raw subject tokens and session tags. It is safe for
// concurrent use; the underlying tables are read-only.
type Resolver struct {
	corrections map[string]string
	sessions    map[string]config.SessionCode
}

// NewResolver builds a resolver over the mapping tables.
func NewResolver(mapping config.Mapping) *Resolver {
	return &Resolver{corrections: mapping.Corrections, sessions: mapping.Sessions}
}

// Resolve applies the correction table to rawSubject and looks up sessionTag.
// Unknown tags fail with services.ErrUnknownSessionTag.
func (r *Resolver) Resolve(rawSubject, sessionTag string) (Canonical, error) {
	subject := rawSubject
	if corrected, ok := r.corrections[rawSubject]; ok {
		subject = corrected
	}
	code, ok := r.sessions[sessionTag]
	if !ok {
		return Canonical{}, services.Wrap(
			services.ErrUnknownSessionTag,
			"identity",
			"resolve",
			fmt.Sprintf("session tag %q for subject %s is not in the session table", sessionTag, rawSubject),
			nil,
		)
	}
	return Canonical{
		SubjectCode: code.ID,
		Session:     code.Session,
		ID:          PadID(subject),
	}, nil
}

// PadID left-pads a numeric id with zeros to a minimum width of two.
func PadID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) < 2 {
		return strings.Repeat("0", 2-len(id)) + id
	}
	return id
}
