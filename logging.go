package isotp

import "github.com/sirupsen/logrus"

// pkgLogger is the package-level default logger, overridable with
// SetLogger, for callers that don't care about per-Session logging.
var pkgLogger = logrus.New()

// SetLogger replaces the package-level default logger used by Sessions
// created without a WithLogger option.
func SetLogger(lg *logrus.Logger) {
	if lg != nil {
		pkgLogger = lg
	}
}
