package middleware

import "strings"

// MaskSessionToken маскирует session token в логах: полный токен даёт доступ к анонимной сессии.
func MaskSessionToken(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "***"
}
