package audit

import "fmt"

// ConfigurationError reports an invalid threshold ordering. A run must not
// proceed past it.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid audit configuration: " + e.Reason
}

// MalformedRecordError reports a key whose timestamps cannot be used.
type MalformedRecordError struct {
	Username string
	KeyID    string
	Field    string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed access key %s for user %s: missing %s", e.KeyID, e.Username, e.Field)
}
