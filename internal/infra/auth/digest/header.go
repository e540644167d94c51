// Package digest parses and builds the Digest authorization header:
//
//	Digest sig="<hex>" ts="<timestamp>" id="<identity>"
//
// Parsing is all-or-nothing. Any structural deviation yields a failed
// Outcome that carries no detail about what was wrong.
package digest

import (
	"strings"

	"keygate/internal/domain"
)

const Scheme = "Digest"

var fieldOrder = [...]string{"sig", "ts", "id"}

// Outcome is the result of Parse: either credentials or a bare failure.
type Outcome struct {
	creds domain.Credentials
	ok    bool
}

// Failed reports whether the header could not be parsed.
func (o Outcome) Failed() bool {
	return !o.ok
}

// Credentials returns the parsed components and true, or zero values and
// false for a failed outcome.
func (o Outcome) Credentials() (domain.Credentials, bool) {
	if !o.ok {
		return domain.Credentials{}, false
	}
	return o.creds, true
}

// Parse never panics. Exactly four whitespace separated tokens are accepted:
// the literal scheme followed by sig, ts and id in that order, each written
// as key="value" with a non-empty value.
func Parse(value string) Outcome {
	tokens := strings.Fields(value)
	if len(tokens) != 1+len(fieldOrder) || tokens[0] != Scheme {
		return Outcome{}
	}
	var values [len(fieldOrder)]string
	for i, name := range fieldOrder {
		v, ok := parseParam(tokens[i+1], name)
		if !ok {
			return Outcome{}
		}
		values[i] = v
	}
	return Outcome{
		creds: domain.Credentials{
			Signature: values[0],
			Timestamp: values[1],
			Identity:  values[2],
		},
		ok: true,
	}
}

func parseParam(token, name string) (string, bool) {
	key, raw, found := strings.Cut(token, "=")
	if !found || key != name {
		return "", false
	}
	if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
		return "", false
	}
	v := raw[1 : len(raw)-1]
	if v == "" || strings.Contains(v, `"`) {
		return "", false
	}
	return v, true
}

// Format builds the header value for creds. It does not validate; values
// containing whitespace or quotes produce a header Parse will reject.
func Format(creds domain.Credentials) string {
	var b strings.Builder
	b.WriteString(Scheme)
	b.WriteString(` sig="`)
	b.WriteString(creds.Signature)
	b.WriteString(`" ts="`)
	b.WriteString(creds.Timestamp)
	b.WriteString(`" id="`)
	b.WriteString(creds.Identity)
	b.WriteString(`"`)
	return b.String()
}
