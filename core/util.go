package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NowFunc is mockable.
var NowFunc = func() time.Time { return time.Now().UTC() }

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// NewID returns a random identifier for a new record.
func NewID() string {
	return uuid.New().String()
}

// NewOrderedID returns an identifier that sorts after every id generated before it.
func NewOrderedID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
