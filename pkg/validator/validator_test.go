package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Email string `validate:"required,email"`
	Code  string `validate:"required,len=6,numeric"`
}

func TestValidate_Success(t *testing.T) {
	err := Validate(sampleRequest{Email: "ada@example.com", Code: "123456"})
	assert.NoError(t, err)
}

func TestValidate_FieldErrors(t *testing.T) {
	err := Validate(sampleRequest{Email: "not-an-email", Code: "12"})
	require.Error(t, err)

	valErr, ok := err.(*ValidationError)
	require.True(t, ok)

	fields := valErr.Fields()
	assert.Equal(t, "must be a valid email address", fields["Email"])
	assert.Equal(t, "must be exactly 6 characters", fields["Code"])
	assert.Contains(t, err.Error(), "field 'Email'")
}

func TestValidate_RequiredTag(t *testing.T) {
	err := Validate(sampleRequest{})
	require.Error(t, err)

	valErr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, "is required", valErr.Fields()["Email"])
}
