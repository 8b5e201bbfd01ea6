package rediskey

import "fmt"

// Publishable key cache namespaces (global convention across services)
const (
	KeyPrefix         = "pk"
	KeyValidityPrefix = "pk:valid"
	KeyTokenPrefix    = "pk:token"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildKeyValidityKey returns "pk:valid:{keyID}"
func BuildKeyValidityKey(keyID string) string {
	return NamespaceKey(KeyValidityPrefix, keyID)
}

// BuildKeyTokenKey returns "pk:token:{token}"
func BuildKeyTokenKey(token string) string {
	return NamespaceKey(KeyTokenPrefix, token)
}
