package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Protocol class names used in the mapping tables. They double as the BIDS
// suffix written into canonical filenames.
const (
	ClassDiffusion  = "dwi"
	ClassT1         = "T1w"
	ClassT2         = "T2w"
	ClassFunctional = "bold"
)

// SessionCode maps a raw session tag to the subject code prefix and the
// canonical session folder name.
type SessionCode struct {
	ID      string `toml:"id" json:"ID"`
	Session string `toml:"session" json:"session"`
}

// Mapping holds the read-only lookup tables that turn scanner naming into
// canonical dataset identity.
type Mapping struct {
	// File optionally points at a flat JSON code table; its entries override
	// the tables below.
	File        string                 `toml:"file"`
	Corrections map[string]string      `toml:"corrections"`
	Sessions    map[string]SessionCode `toml:"sessions"`
	Protocols   []string               `toml:"protocols"`
	Classes     map[string]string      `toml:"classes"`
	Directions  map[string]string      `toml:"directions"`

	protocolPattern *regexp.Regexp
}

// ProtocolPattern returns the compiled, start-anchored alternation of the
// recognized protocol patterns.
func (m *Mapping) ProtocolPattern() *regexp.Regexp {
	return m.protocolPattern
}

// IsKnownClass reports whether name is one of the supported protocol classes.
func IsKnownClass(name string) bool {
	switch name {
	case ClassDiffusion, ClassT1, ClassT2, ClassFunctional:
		return true
	default:
		return false
	}
}

func (m *Mapping) compile() error {
	patterns := make([]string, 0, len(m.Protocols))
	for _, p := range m.Protocols {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	m.Protocols = patterns
	if len(patterns) == 0 {
		m.protocolPattern = nil
		return nil
	}
	re, err := regexp.Compile("^(?:" + strings.Join(patterns, "|") + ")")
	if err != nil {
		return fmt.Errorf("mapping.protocols: %w", err)
	}
	m.protocolPattern = re
	return nil
}

// loadLegacyFile merges a flat JSON code table of the form
//
//	{"WrongNaming": {"7": "17"}, "PROTOCOLS": "dti|MPR|BOLD",
//	 "A": {"ID": "PAT", "session": "ses-acute"}, "dti": "dwi", "j-": "dir-AP"}
//
// into the mapping. String values naming a protocol class are protocol
// classes; every other string value is an acquisition direction code.
func (m *Mapping) loadLegacyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("mapping.file: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("mapping.file: %s is not valid JSON", path)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return fmt.Errorf("mapping.file: %s must contain a JSON object", path)
	}
	if m.Corrections == nil {
		m.Corrections = map[string]string{}
	}
	if m.Sessions == nil {
		m.Sessions = map[string]SessionCode{}
	}
	if m.Classes == nil {
		m.Classes = map[string]string{}
	}
	if m.Directions == nil {
		m.Directions = map[string]string{}
	}
	root.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		switch {
		case name == "WrongNaming":
			value.ForEach(func(raw, canonical gjson.Result) bool {
				m.Corrections[raw.String()] = canonical.String()
				return true
			})
		case name == "PROTOCOLS":
			m.Protocols = strings.Split(value.String(), "|")
		case value.IsObject():
			if value.Get("ID").Exists() && value.Get("session").Exists() {
				m.Sessions[name] = SessionCode{ID: value.Get("ID").String(), Session: value.Get("session").String()}
			}
		case value.Type == gjson.String:
			if IsKnownClass(value.Str) {
				m.Classes[name] = value.Str
			} else {
				m.Directions[name] = value.Str
			}
		}
		return true
	})
	return nil
}
