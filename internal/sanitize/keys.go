package sanitize

import "strings"

// defaultSensitiveKeys are always redacted. Matching ignores case.
var defaultSensitiveKeys = []string{
	"password",
	"passwd",
	"pwd",
	"secret",
	"client_secret",
	"token",
	"access_token",
	"refresh_token",
	"id_token",
	"auth",
	"authorization",
	"apikey",
	"api_key",
	"x-api-key",
	"service_role_key",
	"anon_key",
	"private_key",
	"privatekey",
	"cookie",
	"set-cookie",
	"session",
	"session_id",
	"sessionid",
	"jwt",
	"credentials",
	"connection_string",
	"database_url",
	"db_password",
	"credit_card",
	"card_number",
	"cvv",
	"ssn",
	"email",
	"phone",
	"ip",
	"ip_address",
	"aws_access_key_id",
	"aws_secret_access_key",
	"aws_session_token",
}

func buildKeySet(extra []string) map[string]struct{} {
	set := make(map[string]struct{}, len(defaultSensitiveKeys)+len(extra))
	for _, k := range defaultSensitiveKeys {
		set[k] = struct{}{}
	}
	for _, k := range extra {
		if k == "" {
			continue
		}
		set[strings.ToLower(k)] = struct{}{}
	}
	return set
}

// DefaultSensitiveKeys returns a copy of the built-in key list.
func DefaultSensitiveKeys() []string {
	out := make([]string, len(defaultSensitiveKeys))
	copy(out, defaultSensitiveKeys)
	return out
}
