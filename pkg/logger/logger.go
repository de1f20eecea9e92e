package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New creates the process-wide logger. Output is always JSON so the
// collector side never has to guess at the format.
func New() *logrus.Logger {
	log := logrus.New()

	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "time",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "msg",
		},
	})

	log.SetOutput(os.Stdout)
	log.SetLevel(levelFromEnv())

	return log
}

func levelFromEnv() logrus.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// SetLevel applies a configured level string on top of the env default.
func SetLevel(log *logrus.Logger, level string) {
	if level == "" {
		return
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("Unknown log level, keeping default")
		return
	}
	log.SetLevel(parsed)
}
