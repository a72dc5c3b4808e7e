package pii

import "strings"

func maskValue(piiType Type, value string) string {
	switch piiType {
	case TypeEmail:
		return maskEmail(value)
	case TypePhone, TypeCreditCard:
		return maskDigits(onlyDigits(value))
	case TypeSsn:
		digits := onlyDigits(value)
		if len(digits) < 4 {
			return maskGeneric(value)
		}
		return "***-**-" + digits[len(digits)-4:]
	case TypeIpAddress:
		return value
	default:
		return maskGeneric(value)
	}
}

func maskEmail(value string) string {
	at := strings.LastIndex(value, "@")
	if at < 0 {
		return maskGeneric(value)
	}
	local, domain := value[:at], value[at+1:]
	keep := min(2, len(local))
	return local[:keep] + "***@" + domain
}

func maskDigits(digits string) string {
	if len(digits) <= 4 {
		return strings.Repeat("*", len(digits))
	}
	return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}

func maskGeneric(value string) string {
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	return value[:2] + "***" + value[len(value)-2:]
}
