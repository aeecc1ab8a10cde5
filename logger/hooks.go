package logger

import (
	"net/http"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// callerHook points Entry.Caller at the first frame outside logrus and
// this package, so wrapped calls report the real call site.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(6, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		fn := frame.Function
		if !strings.Contains(fn, "sirupsen/logrus") && !strings.Contains(fn, "cointrade/logger") && fn != "" {
			entry.Caller = &frame
			return nil
		}
		if !more {
			return nil
		}
	}
}

var secretParts = []string{"sign", "key", "passphrase", "password", "secret", "authorization", "cookie", "token"}

func isSecret(name string) bool {
	name = strings.ToLower(name)
	for _, part := range secretParts {
		if strings.Contains(name, part) {
			return true
		}
	}
	return false
}

var secretFields = map[string]bool{
	"api_key": true, "apikey": true, "secret": true, "password": true, "passphrase": true,
	"private_key": true, "privatekey": true, "signature": true, "authorization": true,
}

// redactHook masks credential fields that slipped into an entry.
type redactHook struct{}

func (h *redactHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *redactHook) Fire(entry *logrus.Entry) error {
	for k, v := range entry.Data {
		if s, ok := v.(string); ok && s != "" && secretFields[strings.ToLower(k)] {
			entry.Data[k] = "***"
		}
	}
	return nil
}

// SafeHeaders renders headers for logging with credential bearing values
// masked.
func SafeHeaders(h http.Header) Fields {
	out := make(Fields, len(h))
	for k := range h {
		if isSecret(k) {
			out[k] = "***"
			continue
		}
		out[k] = h.Get(k)
	}
	return out
}
