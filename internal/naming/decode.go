package naming

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"bidsort/internal/fileutil"
	"bidsort/internal/services"
)

// FieldSeparator separates the id, protocol, and timestamp fields.
const FieldSeparator = "--"

var (
	digitRun    = regexp.MustCompile(`\d+`)
	alnumRun    = regexp.MustCompile(`[A-Z0-9]+`)
	timestampRe = regexp.MustCompile(`^\d{6}`)
	stampDigits = regexp.MustCompile(`^\d+`)
)

// Info is the identity decoded from one converted file group.
type Info struct {
	// Base is the group base name with all extensions stripped.
	Base string
	// RawSubject is the leading digit run of the id field without leading zeros.
	RawSubject string
	// SessionTag is the upper-cased alphanumeric remainder after the digit run.
	SessionTag string
	// Protocol is the protocol field, verbatim.
	Protocol string
	// AcquisitionTime is the timestamp field reformatted as YYYYMM-DD...
	AcquisitionTime string
	// Suffix is whatever the converter appended after the timestamp digits
	// to tell apart images of one series, such as "_e2" or "_ph".
	Suffix string
}

// Series returns the base name without the converter suffix. Groups that
// share it were produced from one acquired series.
func (i Info) Series() string {
	return strings.TrimSuffix(i.Base, i.Suffix)
}

// Decode parses a converted file name (any member of the group) into Info.
// It fails with services.ErrMalformedName when the base name does not split
// into exactly three fields or the id field carries no digit run.
func Decode(filename string) (Info, error) {
	base, _ := fileutil.SplitName(filename)
	fields := strings.Split(base, FieldSeparator)
	if len(fields) != 3 {
		return Info{}, malformed(base, fmt.Sprintf("expected 3 %q-separated fields, found %d", FieldSeparator, len(fields)))
	}
	id, protocol, stamp := fields[0], fields[1], fields[2]
	if protocol == "" {
		return Info{}, malformed(base, "empty protocol field")
	}

	loc := digitRun.FindStringIndex(id)
	if loc == nil {
		return Info{}, malformed(base, "id field contains no digits")
	}
	raw := strings.TrimLeft(id[loc[0]:loc[1]], "0")
	if raw == "" {
		raw = "0"
	}
	session := alnumRun.FindString(cases.Upper(language.Und).String(id[loc[1]:]))
	if session == "" {
		return Info{}, malformed(base, "id field has no session tag after the subject number")
	}

	acq, err := FormatTimestamp(stamp)
	if err != nil {
		return Info{}, malformed(base, err.Error())
	}

	return Info{
		Base:            base,
		RawSubject:      raw,
		SessionTag:      session,
		Protocol:        protocol,
		AcquisitionTime: acq,
		Suffix:          stamp[len(stampDigits.FindString(stamp)):],
	}, nil
}

// FormatTimestamp rewrites a converter timestamp (YYYYMMDDhhmmss...) as
// YYYYMM-DDhhmmss...
func FormatTimestamp(stamp string) (string, error) {
	if !timestampRe.MatchString(stamp) {
		return "", fmt.Errorf("timestamp %q does not start with YYYYMM", stamp)
	}
	return stamp[:6] + "-" + stamp[6:], nil
}

func malformed(base, reason string) error {
	return services.Wrap(services.ErrMalformedName, "decode", base, reason, nil)
}
