package common

import (
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"unicode"

	"resumatch/internal/errors"
	"resumatch/internal/formatters"
)

// SupportedFormats returns the formats the registry renders, narrowed to
// configured when it is non-empty
func SupportedFormats(configured []string) []string {
	available := formatters.GlobalRegistry.GetSupportedFormats()
	if len(configured) == 0 {
		return available
	}
	return slices.DeleteFunc(available, func(format string) bool {
		return !slices.Contains(configured, format)
	})
}

// ValidateOutputFormat checks format against SupportedFormats(configured)
func ValidateOutputFormat(format string, configured []string) error {
	supported := SupportedFormats(configured)
	if slices.Contains(supported, format) {
		return nil
	}
	return errors.NewValidationError(errors.ErrCodeInvalidFormat,
		fmt.Sprintf("unsupported output format '%s', supported: %s", format, strings.Join(supported, ", ")), nil)
}

// MinPasswordLength is the shortest password the backend accepts
const MinPasswordLength = 8

// Password rules reported by ValidatePassword
const (
	RuleMinLength = "at least 8 characters"
	RuleUpper     = "an uppercase letter"
	RuleLower     = "a lowercase letter"
	RuleDigit     = "a digit"
	RuleSpecial   = "a special character"
)

// ValidatePassword returns the rules password violates, in a fixed order.
// An empty result means the password is acceptable.
func ValidatePassword(password string) []string {
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	var violations []string
	if len([]rune(password)) < MinPasswordLength {
		violations = append(violations, RuleMinLength)
	}
	if !hasUpper {
		violations = append(violations, RuleUpper)
	}
	if !hasLower {
		violations = append(violations, RuleLower)
	}
	if !hasDigit {
		violations = append(violations, RuleDigit)
	}
	if !hasSpecial {
		violations = append(violations, RuleSpecial)
	}
	return violations
}

// CheckPassword wraps ValidatePassword into a validation error
func CheckPassword(password string) error {
	violations := ValidatePassword(password)
	if len(violations) == 0 {
		return nil
	}
	return errors.NewValidationError(errors.ErrCodeWeakPassword,
		"password must contain "+strings.Join(violations, ", "), nil).
		WithContext("violations", violations)
}

// ValidateEmail checks that email is a bare address such as user@example.com
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.NewValidationError(errors.ErrCodeInvalidRequest, "email is required", nil)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return errors.NewValidationError(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("invalid email address: %s", email), err)
	}

	at := strings.LastIndex(email, "@")
	if at < 1 || !strings.Contains(email[at+1:], ".") {
		return errors.NewValidationError(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("invalid email address: %s", email), nil)
	}
	return nil
}
