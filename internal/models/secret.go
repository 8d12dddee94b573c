package models

import "strings"

// StreamKey is the secret part of an ingest URL. Loggers built by the
// observability package redact every value of this type.
type StreamKey string

// Masked returns a short, log-safe hint of the key.
func (k StreamKey) Masked() string {
	if len(k) <= 4 {
		return "****"
	}
	return "****" + string(k[len(k)-4:])
}

// Scrub replaces every occurrence of k in s with "[FILTERED]". Encoder
// output quotes the full ingest URL, key included.
func (k StreamKey) Scrub(s string) string {
	if k == "" {
		return s
	}
	return strings.ReplaceAll(s, string(k), "[FILTERED]")
}
