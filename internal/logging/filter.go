// Package logging provides sensitive data filtering for gantry logs.
//
// Pipeline runs shell out to build tools whose output and environment can
// carry credentials: signing keystore passwords, publish repository tokens,
// CI secrets injected through the environment. Run logs and history records
// are persisted to disk, so anything that looks like a credential is
// redacted before it is written.
package logging

import (
	"io"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// Redacted placeholder for filtered values.
const RedactedValue = "[REDACTED]"

// sensitivePatterns defines regex patterns for detecting sensitive data.
var sensitivePatterns = []*regexp.Regexp{
	// Signing and keystore material passed to build invocations
	regexp.MustCompile(`(?i)(keystore[._-]?password|key[._-]?password|signing[._-]?password)\s*[:=]\s*\S+`),
	regexp.MustCompile(`(?i)(signing[._-]?key|store[._-]?file[._-]?password)\s*[:=]\s*\S+`),

	// Publish repository credentials (Maven, Sonatype, package registries)
	regexp.MustCompile(`(?i)(ossrh|sonatype|nexus|maven)[._-]?(username|password|token)\s*[:=]\s*\S+`),
	regexp.MustCompile(`(?i)(publish|repository|registry)[._-]?(token|password|credential)s?\s*[:=]\s*\S+`),

	// GitHub tokens (used by release publication)
	regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{36,}`),

	// Generic API keys and secrets
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*['"]?[a-zA-Z0-9_-]{16,}['"]?`),
	regexp.MustCompile(`(?i)(secret|password|passwd|credential)s?\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_-]{16,}`),
	regexp.MustCompile(`(?i)authorization:\s*\S+`),

	// Private keys
	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),

	// Long base64 strings that could be encoded credentials
	regexp.MustCompile(`\b[A-Za-z0-9+/]{64,}={0,2}\b`),
}

// sensitiveFieldNames lists field names whose values are always redacted.
var sensitiveFieldNames = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"credential",
	"credentials",
	"authorization",
	"auth",
	"keystore_password",
	"key_password",
	"signing_key",
	"publish_token",
}

// SensitiveDataHook is a zerolog hook that flags log events containing
// sensitive data. It cannot rewrite the message in place (zerolog events
// are write-only) so it adds a marker field instead; callers that build
// messages from command output should pass them through
// FilterSensitiveValue first.
type SensitiveDataHook struct{}

// Run implements the zerolog.Hook interface.
func (h SensitiveDataHook) Run(e *zerolog.Event, _ zerolog.Level, message string) {
	if ContainsSensitiveData(message) {
		e.Bool("contains_filtered_data", true)
	}
}

// ContainsSensitiveData reports whether the string matches any known
// credential pattern.
func ContainsSensitiveData(s string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(s) {
			return true
		}
	}

	return false
}

// FilterSensitiveValue replaces credential-shaped substrings with
// RedactedValue. Safe to call on command output before it is persisted.
func FilterSensitiveValue(s string) string {
	filtered := s
	for _, pattern := range sensitivePatterns {
		filtered = pattern.ReplaceAllString(filtered, RedactedValue)
	}

	return filtered
}

// IsSensitiveFieldName reports whether a field name indicates its value
// should be redacted regardless of content.
func IsSensitiveFieldName(name string) bool {
	lower := strings.ToLower(name)
	for _, sensitive := range sensitiveFieldNames {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}

	return false
}

// FilteringWriter wraps an io.Writer and redacts sensitive data before it
// reaches the underlying writer. Log files persist across runs, so nothing
// credential-shaped may be written through to disk.
type FilteringWriter struct {
	w io.Writer
}

// NewFilteringWriter creates a FilteringWriter around w.
func NewFilteringWriter(w io.Writer) *FilteringWriter {
	return &FilteringWriter{w: w}
}

// Write implements io.Writer, filtering sensitive data before writing.
// It reports the original length on success so callers do not interpret
// redaction shrinkage as a short write.
func (fw *FilteringWriter) Write(p []byte) (n int, err error) {
	filtered := FilterSensitiveValue(string(p))
	if _, err = fw.w.Write([]byte(filtered)); err != nil {
		return 0, err
	}

	return len(p), nil
}
