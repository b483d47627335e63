package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEmail(t *testing.T) {
	valid := []string{"jane@example.com", "jane.doe@mail.example.org", "j-d_1@ex-ample.io"}
	for _, e := range valid {
		assert.True(t, IsValidEmail(e), e)
	}

	invalid := []string{"", "jane", "jane@", "jane@example", "jane@example.c", "ja ne@example.com", "@example.com"}
	for _, e := range invalid {
		assert.False(t, IsValidEmail(e), e)
	}
}

func TestPasswordViolations(t *testing.T) {
	tests := []struct {
		name     string
		password string
		expected []string
	}{
		{"accepts policy-compliant password", "Abcdefg1!", nil},
		{"too short", "Ab1!", []string{MsgPasswordTooShort}},
		{"no uppercase", "abcdefg1!", []string{MsgPasswordNoUpper}},
		{"no special character", "Abcdefg12", []string{MsgPasswordNoSpecial}},
		{"over bcrypt input limit", "Abcdefg1!" + strings.Repeat("x", 64), []string{MsgPasswordTooLong}},
		{"exactly 72 bytes", "Abcdefg1!" + strings.Repeat("x", 63), nil},
		{"limit counts bytes not characters", "Abcdefg1!" + strings.Repeat("é", 32), []string{MsgPasswordTooLong}},
		{"reports every rule", "abc", []string{MsgPasswordTooShort, MsgPasswordNoUpper, MsgPasswordNoSpecial}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, PasswordViolations(tc.password))
		})
	}
}

func TestNewPasswordViolations(t *testing.T) {
	assert.Empty(t, NewPasswordViolations("Abcdefg1!", "Abcdefg1!"))
	assert.Equal(t, []string{MsgPasswordsDontMatch}, NewPasswordViolations("Abcdefg1!", "Abcdefg1?"))
	assert.Equal(t,
		[]string{MsgPasswordTooShort, MsgPasswordNoUpper, MsgPasswordNoSpecial, MsgPasswordsDontMatch},
		NewPasswordViolations("abc", "abd"))
}

func TestAccountViolations(t *testing.T) {
	tests := []struct {
		name     string
		username string
		email    string
		expected []string
	}{
		{"accepts valid account", "alice", "alice@example.com", nil},
		{"missing username", "", "alice@example.com", []string{MsgUsernameRequired}},
		{"username at column width", strings.Repeat("a", MaxUsernameLength), "alice@example.com", nil},
		{"username too long", strings.Repeat("a", MaxUsernameLength+1), "alice@example.com", []string{MsgUsernameTooLong}},
		{"email too long", "alice", strings.Repeat("a", 250) + "@example.com", []string{MsgEmailTooLong}},
		{"malformed email", "alice", "alice@", []string{MsgInvalidEmail}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, AccountViolations(tc.username, tc.email))
		})
	}
}
