package core

import "github.com/sirupsen/logrus"

// log is the package-level structured logger: one logrus.Logger shared by
// the package, with entries tagged via WithField rather than instantiating
// a logger per call site.
var log = logrus.New()

// SetLogger lets a host application swap in its own configured logrus
// instance (level, formatter, hooks) instead of the package default.
func SetLogger(l *logrus.Logger) {
	if l != nil {
		log = l
	}
}
