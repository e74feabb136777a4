package graphdb

import (
	"regexp"
	"strings"
	"unicode"
)

// temporalCall matches date("..."), datetime('...') and duration("...")
// wrapping a single string literal. The graph store keeps temporal values
// as plain ISO strings, so the wrapper is dropped and the literal kept.
var temporalCall = regexp.MustCompile(`(?i)\b(?:date|datetime|duration)\(\s*("(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*')\s*\)`)

// RewriteQuery strips temporal constructor calls around string literals.
// Calls with no argument or a non-literal argument are left alone.
func RewriteQuery(query string) string {
	return temporalCall.ReplaceAllString(query, "$1")
}

// Quote renders s as a single-quoted Cypher string literal.
func Quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`)
	return "'" + r.Replace(s) + "'"
}

// Identifier renders s as a safe label or relationship type. Runs of
// characters outside [A-Za-z0-9_] collapse to one underscore; an empty
// result falls back to fallback.
func Identifier(s, fallback string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.TrimSpace(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return fallback
	}
	if unicode.IsDigit(rune(out[0])) {
		out = "_" + out
	}
	return out
}

// TraceAppend is the Cypher expression that appends $trace_id to the
// comma-joined trace_id property of variable v, leaving it unchanged when the
// id is already listed. It matches AppendTraceID for a non-empty $trace_id.
func TraceAppend(v string) string {
	return "CASE WHEN " + v + ".trace_id IS NULL OR " + v + ".trace_id = '' THEN $trace_id" +
		" WHEN (',' + " + v + ".trace_id + ',') CONTAINS (',' + $trace_id + ',') THEN " + v + ".trace_id" +
		" ELSE " + v + ".trace_id + ',' + $trace_id END"
}

// AppendTraceID adds id to a comma-joined trace list unless it is already
// present.
func AppendTraceID(existing, id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return existing
	}
	if existing == "" {
		return id
	}
	for _, t := range strings.Split(existing, ",") {
		if t == id {
			return existing
		}
	}
	return existing + "," + id
}
