package util

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	emailRegex        = regexp.MustCompile(`^[\w.-]+@[\w.-]+\.\w{2,}$`)
	specialCharsRegex = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)
)

const MinPasswordLength = 8

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

// Column widths of users.username and users.email.
const (
	MaxUsernameLength = 150
	MaxEmailLength    = 255
)

const (
	MsgUsernameRequired   = "Username is required."
	MsgInvalidEmail       = "Invalid email format."
	MsgPasswordTooShort   = "Password must be at least 8 characters."
	MsgPasswordNoUpper    = "Password must contain at least one uppercase letter."
	MsgPasswordNoSpecial  = "Password must contain at least one special character."
	MsgPasswordsDontMatch = "Passwords do not match."
	MsgPasswordTooLong    = "Password must be at most 72 bytes."
	MsgUsernameTooLong    = "Username must be at most 150 characters."
	MsgEmailTooLong       = "Email must be at most 255 characters."
)

func IsValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// AccountViolations checks username and email against the stored column
// widths and the email pattern.
func AccountViolations(username, email string) []string {
	var violations []string
	if username == "" {
		violations = append(violations, MsgUsernameRequired)
	} else if utf8.RuneCountInString(username) > MaxUsernameLength {
		violations = append(violations, MsgUsernameTooLong)
	}
	if utf8.RuneCountInString(email) > MaxEmailLength {
		violations = append(violations, MsgEmailTooLong)
	} else if !IsValidEmail(email) {
		violations = append(violations, MsgInvalidEmail)
	}
	return violations
}

// PasswordViolations returns every policy rule the password breaks, in a
// stable order. An empty result means the password is acceptable.
func PasswordViolations(password string) []string {
	var violations []string
	if utf8.RuneCountInString(password) < MinPasswordLength {
		violations = append(violations, MsgPasswordTooShort)
	}
	if len(password) > MaxPasswordBytes {
		violations = append(violations, MsgPasswordTooLong)
	}
	if !strings.ContainsFunc(password, unicode.IsUpper) {
		violations = append(violations, MsgPasswordNoUpper)
	}
	if !specialCharsRegex.MatchString(password) {
		violations = append(violations, MsgPasswordNoSpecial)
	}
	return violations
}

// NewPasswordViolations checks the policy plus confirmation match.
func NewPasswordViolations(password, confirm string) []string {
	violations := PasswordViolations(password)
	if password != confirm {
		violations = append(violations, MsgPasswordsDontMatch)
	}
	return violations
}
