package logger

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

var Log = logrus.New()

// InitLogger sets the level and installs the colored formatter.
func InitLogger(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	Log.SetLevel(lvl)
	Log.SetFormatter(&Formatter{})
	return nil
}
