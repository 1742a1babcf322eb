package plugin

import (
	"fmt"
	"strings"
)

// SecretData is the credential document handed over by the orchestrator: a service account key
// plus billing metadata (billing_dataset, target_project_id, bucket, ...).
type SecretData map[string]any

// Options is the free-form plugin configuration attached to a data source.
type Options map[string]any

var (
	// ServiceAccountKeys must be present for every Google API session.
	ServiceAccountKeys = []string{"project_id", "private_key", "token_uri", "client_email"}
	// StorageKeys must be present for bucket sessions.
	StorageKeys = append(append([]string{}, ServiceAccountKeys...), "bucket")
)

// Require returns a RequiredParameter error for the first missing or empty key, in the given order.
func (s SecretData) Require(keys ...string) error {
	for _, k := range keys {
		v, ok := s[k]
		if !ok || v == nil {
			return RequiredParameter("secret_data." + k)
		}
		if str, isStr := v.(string); isStr && strings.TrimSpace(str) == "" {
			return RequiredParameter("secret_data." + k)
		}
	}
	return nil
}

// String returns the value at key formatted as a string, or "" when absent.
func (s SecretData) String(key string) string {
	return stringValue(s[key])
}

// Strings returns the value at key as a string slice. A single string becomes a one-element slice.
func (s SecretData) Strings(key string) []string {
	switch v := s[key].(type) {
	case nil:
		return nil
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str := stringValue(item); str != "" {
				out = append(out, str)
			}
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{v}
	default:
		return []string{fmt.Sprint(v)}
	}
}

func (o Options) String(key string) string {
	return stringValue(o[key])
}

func (o Options) Bool(key string) bool {
	switch v := o[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true") || v == "1"
	default:
		return false
	}
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
