package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "volunteerhub/pkg/domain-errors"
)

func TestParseActivityID(t *testing.T) {
	original := NewActivityID()

	parsed, err := ParseActivityID(original.String())
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}

func TestParseRejectsInvalidInput(t *testing.T) {
	cases := map[string]string{
		"empty":    "",
		"garbage":  "not-a-uuid",
		"nil uuid": "00000000-0000-0000-0000-000000000000",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseUserID(input)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func TestIsNil(t *testing.T) {
	assert.True(t, UserID{}.IsNil())
	assert.False(t, NewUserID().IsNil())
}
