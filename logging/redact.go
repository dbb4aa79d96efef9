package logging

import (
	"io"
	"regexp"
	"strings"
)

// Redaction replaces masked values.
const Redaction = "***"

// PIIFields are the keys masked by default.
var PIIFields = []string{"name", "email", "password", "ssn", "phone"}

// FilterDatum masks the value of every field=value pair in message that is
// terminated by separator.
func FilterDatum(fields []string, redaction, message, separator string) string {
	if len(fields) == 0 {
		return message
	}
	sep := regexp.QuoteMeta(separator)
	pattern := regexp.MustCompile(`(` + alternation(fields) + `)=.*?` + sep)
	return pattern.ReplaceAllString(message, "${1}="+escapeReplacement(redaction)+escapeReplacement(separator))
}

// RedactingWriter masks configured fields in each write. It understands JSON
// events ("email":"...") and key=value text (email=...).
type RedactingWriter struct {
	out       io.Writer
	jsonField *regexp.Regexp
	kvField   *regexp.Regexp
	jsonRepl  string
	kvRepl    string
}

// NewRedactingWriter wraps out.
func NewRedactingWriter(out io.Writer, fields []string, redaction string) *RedactingWriter {
	alt := alternation(fields)
	r := escapeReplacement(redaction)
	return &RedactingWriter{
		out:       out,
		jsonField: regexp.MustCompile(`"(` + alt + `)":"(?:[^"\\]|\\.)*"`),
		kvField:   regexp.MustCompile(`\b(` + alt + `)=[^;,\s"]*`),
		jsonRepl:  `"${1}":"` + r + `"`,
		kvRepl:    "${1}=" + r,
	}
}

func (w *RedactingWriter) Write(p []byte) (int, error) {
	masked := w.jsonField.ReplaceAll(p, []byte(w.jsonRepl))
	masked = w.kvField.ReplaceAll(masked, []byte(w.kvRepl))
	if _, err := w.out.Write(masked); err != nil {
		return 0, err
	}
	return len(p), nil
}

func alternation(fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = regexp.QuoteMeta(f)
	}
	return strings.Join(quoted, "|")
}

func escapeReplacement(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}
