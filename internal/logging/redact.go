package logging

import "go.uber.org/zap/zapcore"

const redacted = "[redacted]"

// Redact hides a secret while still showing whether it was set.
func Redact(secret string) string {
	if secret == "" {
		return ""
	}
	return redacted
}

// Secret is a string that never renders its value through fmt or zap.
type Secret string

// String implements fmt.Stringer.
func (s Secret) String() string {
	return Redact(string(s))
}

// GoString implements fmt.GoStringer so %#v stays redacted too.
func (s Secret) GoString() string {
	return Redact(string(s))
}

// Reveal returns the underlying value for the one call site that needs it.
func (s Secret) Reveal() string {
	return string(s)
}

// MarshalLogObject lets a Secret be logged with zap.Object.
func (s Secret) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddBool("set", s != "")
	return nil
}
