// Package logging builds the one process-wide logrus.Logger every other
// package threads through its constructor: text output with full
// timestamps on a TTY, JSON otherwise, so the same binary is readable on a
// developer's terminal and greppable under systemd/journald on the SBC.
package logging

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// New builds a logrus.Logger writing to w (os.Stderr when nil) at level,
// choosing a text or JSON formatter by whether w looks like a terminal.
func New(level string, w io.Writer) *logrus.Logger {
	if w == nil {
		w = os.Stderr
	}

	log := logrus.New()
	log.SetOutput(w)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	return log
}
