package redis

import "fmt"

const (
	// KeyPrefixInstance is the prefix for instance snapshot keys
	KeyPrefixInstance = "wagate:instance:"
	// KeyAllInstances is the key for the set of all known instance names
	KeyAllInstances = "wagate:instances:all"
	// KeySentCounts is the hash of messages sent per instance
	KeySentCounts = "wagate:messages:sent"
	// DefaultStreamKey is the stream lifecycle events are appended to
	DefaultStreamKey = "wagate:events"
)

// InstanceKey returns the Redis key for an instance snapshot
func InstanceKey(name string) string {
	return KeyPrefixInstance + name
}

// AllInstancesKey returns the key for the set of all instance names
func AllInstancesKey() string {
	return KeyAllInstances
}

// ExtractInstanceName extracts the instance name from a Redis key
func ExtractInstanceName(key string) (string, error) {
	if len(key) <= len(KeyPrefixInstance) || key[:len(KeyPrefixInstance)] != KeyPrefixInstance {
		return "", fmt.Errorf("invalid instance key: %s", key)
	}
	return key[len(KeyPrefixInstance):], nil
}
