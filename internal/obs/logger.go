// Package obs carries the engine's ambient logging and metrics stack: a
// logrus-based field logger factory and a small set of Prometheus
// counters/gauges describing tracker timeouts, DHT gossip fan-out and
// gateway retries.
package obs

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the base logger used by engine construction:
// timestamped, level-prefixed, writing to stderr, selected by a single
// level character.
func NewLogger(levelChar byte) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(levelFromChar(levelChar))
	return l
}

func levelFromChar(c byte) logrus.Level {
	switch c {
	case 't', 'T':
		return logrus.TraceLevel
	case 'd', 'D':
		return logrus.DebugLevel
	case 'i', 'I':
		return logrus.InfoLevel
	case 'w', 'W':
		return logrus.WarnLevel
	case 'e', 'E':
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Component scopes a logger to one named actor instance.
func Component(base logrus.FieldLogger, name string, fields logrus.Fields) *logrus.Entry {
	f := logrus.Fields{"component": name}
	for k, v := range fields {
		f[k] = v
	}
	return base.WithFields(f)
}
