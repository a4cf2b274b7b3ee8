package zen

import (
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

// normalizeEmail lower-cases and trims an address. It does not validate.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// checkEmail normalizes email and rejects anything that is not a plausible
// address.
func (e *Engine) checkEmail(email string) (string, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return "", ErrInvalidEmail
	}
	if err := e.validate.Var(normalized, "required,email,max=254"); err != nil {
		return "", ErrInvalidEmail
	}
	return normalized, nil
}

// checkPassword enforces the length bounds and requires at least one letter
// and one digit. With Password.MinStrength set it also rejects passwords whose
// zxcvbn score is lower; userInputs (the email, the name) count against it.
func (e *Engine) checkPassword(pw string, userInputs ...string) error {
	if len(pw) < e.config.Password.MinLength || len(pw) > e.config.Password.MaxLength {
		return ErrWeakPassword
	}

	var letter, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return ErrWeakPassword
	}

	if floor := e.config.Password.MinStrength; floor > 0 {
		if zxcvbn.PasswordStrength(pw, userInputs).Score < floor {
			return ErrWeakPassword
		}
	}
	return nil
}
