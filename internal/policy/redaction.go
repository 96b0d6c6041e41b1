// Package policy masks contact details before they are logged or written
// to the execution audit log.
package policy

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`([a-zA-Z0-9._%+\-]+)@([a-zA-Z0-9.\-]+\.[a-zA-Z]{2,})`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
)

// MaskContacts hides email local parts, phone digits and card numbers in s.
// Emails keep their first character and domain; phones keep the last two
// digits.
func MaskContacts(s string) string {
	out := emailPattern.ReplaceAllStringFunc(s, maskEmail)
	// Cards first, otherwise the phone pattern swallows them.
	out = cardPattern.ReplaceAllString(out, "[card]")
	return phonePattern.ReplaceAllStringFunc(out, maskPhone)
}

func maskEmail(addr string) string {
	m := emailPattern.FindStringSubmatch(addr)
	if len(m) != 3 {
		return "[email]"
	}
	local := []rune(m[1])
	return string(local[0]) + "***@" + m[2]
}

func maskPhone(number string) string {
	digits := make([]rune, 0, len(number))
	for _, r := range number {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) < 2 {
		return "[phone]"
	}
	return strings.Repeat("*", len(digits)-2) + string(digits[len(digits)-2:])
}
