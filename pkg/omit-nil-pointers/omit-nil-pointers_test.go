package omitnilpointers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOmitNilPointers(t *testing.T) {
	ended := int64(42)
	var missing *int64

	got := OmitNilPointers(map[string]any{
		"id":       "s1",
		"ended_at": &ended,
		"started":  missing,
		"title":    nil,
	})

	assert.Equal(t, map[string]any{"id": "s1", "ended_at": int64(42)}, got)
}
