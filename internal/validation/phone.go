// Package validation содержит функции валидации входных данных.
package validation

import "strings"

// NormalizePhone приводит кенийский мобильный номер к международному формату 2547XXXXXXXX
// или 2541XXXXXXXX. Допускаются форматы 07..., 01..., +254..., 254... и 7...;
// пробелы, дефисы и скобки игнорируются.
func NormalizePhone(raw string) (string, bool) {
	var b strings.Builder
	for i, ch := range strings.TrimSpace(raw) {
		switch {
		case ch >= '0' && ch <= '9':
			b.WriteRune(ch)
		case ch == '+' && i == 0:
		case ch == ' ' || ch == '-' || ch == '(' || ch == ')':
		default:
			return "", false
		}
	}

	digits := b.String()
	switch {
	case len(digits) == 10 && digits[0] == '0':
		digits = "254" + digits[1:]
	case len(digits) == 9:
		digits = "254" + digits
	}

	if len(digits) != 12 || !strings.HasPrefix(digits, "254") {
		return "", false
	}
	if digits[3] != '7' && digits[3] != '1' {
		return "", false
	}

	return digits, true
}
