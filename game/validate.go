package game

// IsDigits reports whether s is exactly CodeLength ASCII digits.
func IsDigits(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ValidSecret reports whether s can be used as a team secret: four digits,
// no digit repeated.
func ValidSecret(s string) bool {
	if !IsDigits(s) {
		return false
	}
	var seen [10]bool
	for i := 0; i < len(s); i++ {
		d := s[i] - '0'
		if seen[d] {
			return false
		}
		seen[d] = true
	}
	return true
}

// ValidateSecret returns ErrInvalidSecret for anything ValidSecret rejects.
func ValidateSecret(s string) error {
	if !ValidSecret(s) {
		return ErrInvalidSecret
	}
	return nil
}

// ValidateGuess only checks shape. Guesses may repeat digits.
func ValidateGuess(s string) error {
	if !IsDigits(s) {
		return ErrInvalidGuess
	}
	return nil
}
