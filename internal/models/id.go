// Package models defines the persisted document shapes and shared types for
// the studiod configuration core.
package models

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewULID generates a new ULID string.
func NewULID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// NewUniqueID generates a process-unique id for a registry entry, prefixed
// with the entity kind: "output_01J...", "encoder_01J...".
func NewUniqueID(kind string) string {
	return fmt.Sprintf("%s_%s", kind, NewULID())
}

// ValidUniqueID reports whether id has the kind-prefixed ULID form.
func ValidUniqueID(id string) bool {
	kind, raw, ok := strings.Cut(id, "_")
	if !ok || kind == "" {
		return false
	}
	_, err := ulid.Parse(raw)
	return err == nil
}
