package channels

import (
	"errors"
	"strings"
)

var errInvalidPhone = errors.New("invalid phone number")

// NormalizePhone converts local numbers such as 050-123-4567 to E.164 using
// countryCode. Numbers already carrying + or 00 keep their own prefix.
func NormalizePhone(phone, countryCode string) (string, error) {
	phone = strings.TrimPrefix(strings.TrimSpace(phone), "whatsapp:")
	plus := strings.HasPrefix(phone, "+")

	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) < 7 {
		return "", errInvalidPhone
	}

	switch {
	case plus:
		return "+" + d, nil
	case strings.HasPrefix(d, "00"):
		return "+" + d[2:], nil
	case strings.HasPrefix(d, "0"):
		return "+" + countryCode + d[1:], nil
	case countryCode != "" && strings.HasPrefix(d, countryCode):
		return "+" + d, nil
	default:
		return "+" + countryCode + d, nil
	}
}
