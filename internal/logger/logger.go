package logger

import (
	"os"

	"github.com/sirupsen/logrus"

	"rollcall/internal/config"
)

// Log is the process-wide logger. Packages take a *logrus.Entry derived from
// it so tests can substitute their own.
var Log = logrus.New()

// Init configures Log from the application config: JSON output in
// production and staging, coloured text otherwise.
func Init(cfg *config.App) {
	Log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		Log.Warnf("invalid log level %q, defaulting to info: %v", cfg.LogLevel, err)
		level = logrus.InfoLevel
	}
	Log.SetLevel(level)

	if cfg.IsProduction() || cfg.Env == "staging" {
		Log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	Log.WithField("env", cfg.Env).WithField("level", Log.GetLevel().String()).Debug("logger initialised")
}

// For returns an entry tagged with the component name.
func For(component string) *logrus.Entry {
	return Log.WithField("component", component)
}
