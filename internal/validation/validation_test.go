package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateUsername(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		username string
		ok       bool
	}{
		{name: "valid simple", username: "mira", ok: true},
		{name: "valid with digits and underscore", username: "mira_k2", ok: true},
		{name: "minimum length", username: "abc", ok: true},
		{name: "maximum length", username: strings.Repeat("a", 20), ok: true},
		{name: "too short", username: "ab", ok: false},
		{name: "too long", username: strings.Repeat("a", 21), ok: false},
		{name: "uppercase", username: "Mira", ok: false},
		{name: "hyphen", username: "mira-k", ok: false},
		{name: "space", username: "mira k", ok: false},
		{name: "leading underscore", username: "_mira", ok: false},
		{name: "trailing underscore", username: "mira_", ok: false},
		{name: "reserved admin", username: "admin", ok: false},
		{name: "reserved forum", username: "forum", ok: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateUsername(tc.username)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNormalizeUsername(t *testing.T) {
	assert.Equal(t, "mira_k", NormalizeUsername("  Mira_K "))
}

func TestValidatePost(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidatePost("Rig question", "Which lens?"))
	assert.Error(t, ValidatePost("", "body"))
	assert.Error(t, ValidatePost("   ", "body"))
	assert.Error(t, ValidatePost("title", ""))
	assert.Error(t, ValidatePost(strings.Repeat("t", MaxTitleLen+1), "body"))
	assert.NoError(t, ValidatePost(strings.Repeat("é", MaxTitleLen), "body"), "length counts runes")
}

func TestValidateComment(t *testing.T) {
	assert.NoError(t, ValidateComment("nice"))
	assert.Error(t, ValidateComment("  "))
	assert.Error(t, ValidateComment(strings.Repeat("c", MaxCommentLen+1)))
}
