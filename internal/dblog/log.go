// Package dblog provides the package-level structured logger shared by
// every component, backed by logrus the way ethereum-go-ethereum, dumbdb,
// and canonical-lxd set up their loggers.
package dblog

import (
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

var log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	if term.IsTerminal(int(os.Stderr.Fd())) {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLevel parses and applies a textual log level ("debug", "info",
// "warn", "error"); an unrecognized level is ignored.
func SetLevel(level string) {
	if level == "" {
		return
	}
	if lvl, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	}
}

// L returns the shared logger.
func L() *logrus.Logger { return log }
