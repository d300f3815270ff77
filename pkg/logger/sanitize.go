package logger

import (
	"net/url"
	"strings"
	"unicode"
)

const (
	redacted        = "REDACTED"
	maxUserAgentLen = 256
)

// SanitizedAccount masks an account id for logging. Emails keep their first
// character and top-level domain ("a****@****.io"); other ids keep only the
// first character.
func SanitizedAccount(account string) string {
	if account == "" {
		return ""
	}
	user, domain, isEmail := strings.Cut(account, "@")
	if !isEmail {
		return maskTail(account)
	}
	if user == "" || domain == "" || strings.Contains(domain, "@") {
		return "[invalid-account]"
	}

	labels := strings.Split(domain, ".")
	for i := 0; i < len(labels)-1; i++ {
		labels[i] = strings.Repeat("*", len(labels[i]))
	}
	return maskTail(user) + "@" + strings.Join(labels, ".")
}

func maskTail(s string) string {
	if len(s) <= 1 {
		return s
	}
	return s[:1] + strings.Repeat("*", len(s)-1)
}

// sensitiveParams are query keys whose values never reach the logs
var sensitiveParams = []string{
	"password", "token", "secret", "code", "otp", "email", "auth",
}

// RedactedQuery returns rawQuery with the values of sensitive keys replaced.
// A query that does not parse is redacted as a whole.
func RedactedQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return redacted
	}
	for key := range values {
		if isSensitiveParam(key) {
			values[key] = []string{redacted}
		}
	}
	return values.Encode()
}

func isSensitiveParam(key string) bool {
	key = strings.ToLower(key)
	for _, param := range sensitiveParams {
		if strings.Contains(key, param) {
			return true
		}
	}
	return false
}

// SanitizedUserAgent strips control characters from a client-supplied user
// agent and bounds its length.
func SanitizedUserAgent(ua string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, ua)
	if len(cleaned) > maxUserAgentLen {
		cleaned = strings.ToValidUTF8(cleaned[:maxUserAgentLen], "") + "..."
	}
	return cleaned
}
