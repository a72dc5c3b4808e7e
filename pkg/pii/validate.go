package pii

import "strings"

func onlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ValidLuhn reports whether digits is a 13 to 19 digit string passing the Luhn checksum.
func ValidLuhn(digits string) bool {
	if len(digits) < 13 || len(digits) > 19 || !isDigits(digits) {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// ValidSSN accepts a 9 digit string that is not all one digit and does not
// start with a reserved area number (000, 666, 9xx).
func ValidSSN(digits string) bool {
	if len(digits) != 9 || !isDigits(digits) {
		return false
	}
	if strings.Count(digits, digits[:1]) == len(digits) {
		return false
	}
	if strings.HasPrefix(digits, "000") || strings.HasPrefix(digits, "666") || digits[0] == '9' {
		return false
	}
	return true
}

func ValidPhone(candidate string) bool {
	n := len(onlyDigits(candidate))
	return n == 10 || n == 11
}

func validCreditCard(candidate string) bool {
	return ValidLuhn(onlyDigits(candidate))
}

func validSSNCandidate(candidate string) bool {
	return ValidSSN(onlyDigits(candidate))
}

var nonValues = map[string]struct{}{
	"null": {}, "undefined": {}, "true": {}, "false": {}, "none": {}, "n/a": {},
}

func validName(candidate string) bool {
	if len(candidate) < 2 {
		return false
	}
	_, ok := nonValues[strings.ToLower(candidate)]
	return !ok
}

func validAddress(candidate string) bool {
	if strings.Contains(candidate, "@") {
		return false
	}
	var hasLetter, hasDigit bool
	for i := 0; i < len(candidate); i++ {
		c := candidate[i]
		switch {
		case c >= '0' && c <= '9':
			hasDigit = true
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
			hasLetter = true
		}
	}
	return hasLetter && hasDigit
}
