package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type inviteInput struct {
	Name  string `json:"name" validate:"required,max=8"`
	Email string `json:"email" validate:"omitempty,email"`
	Role  string `json:"role" validate:"omitempty,oneof=guest moderator"`
}

func TestValidate(t *testing.T) {
	v := NewValidator()

	_, ok := v.Validate(inviteInput{Name: "Ann", Role: "guest"})
	assert.True(t, ok)

	errs, ok := v.Validate(inviteInput{Email: "nope", Role: "admin"})
	assert.False(t, ok)
	assert.Len(t, errs, 3)

	byField := map[string]ValidationError{}
	for _, e := range errs {
		byField[e.Field] = e
	}
	assert.Equal(t, "REQUIRED", byField["name"].Code)
	assert.Equal(t, "EMAIL", byField["email"].Code)
	assert.Equal(t, "role must be one of: guest moderator", byField["role"].Message)
}
