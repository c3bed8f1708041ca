package logging

import (
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"vehiclereport/internal/domain"
)

type Logger struct {
	*logrus.Entry
}

// New builds a logger. Local environments get a readable text format; everything else
// logs JSON.
func New(level, environment string) *Logger {
	return newWithOutput(level, environment, os.Stdout)
}

func newWithOutput(level, environment string, out io.Writer) *Logger {
	base := logrus.New()

	if environment == "" || environment == "local" {
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	}
	base.SetOutput(out)

	switch level {
	case "debug":
		base.SetLevel(logrus.DebugLevel)
	case "warn":
		base.SetLevel(logrus.WarnLevel)
	case "error":
		base.SetLevel(logrus.ErrorLevel)
	default:
		base.SetLevel(logrus.InfoLevel)
	}

	return &Logger{Entry: logrus.NewEntry(base)}
}

// WithReport attaches the identifying fields of a report.
func (l *Logger) WithReport(r domain.Report) *logrus.Entry {
	return WithReport(l.Entry, r)
}

// WithRun tags a unit of background work (a stats run, a worker poll) with a fresh id.
func (l *Logger) WithRun(name string) *logrus.Entry {
	return l.WithFields(logrus.Fields{
		"run":    name,
		"run_id": uuid.NewString(),
	})
}

// WithError standardizes error logging
func (l *Logger) WithError(err error) *logrus.Entry {
	if err == nil {
		return l.Entry
	}
	return l.Entry.WithField("error", err.Error())
}

// WithReport is WithReport for any field logger.
func WithReport(log logrus.FieldLogger, r domain.Report) *logrus.Entry {
	fields := logrus.Fields{
		"report_uuid": r.UUID,
		"tier":        string(r.Tier),
		"year":        r.Year,
		"make":        r.Make,
		"model":       r.Model,
		"mileage":     r.Mileage,
	}
	if r.UserID != nil {
		fields["user_id"] = *r.UserID
	}
	return log.WithFields(fields)
}
