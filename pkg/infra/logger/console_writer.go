package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// consoleHook mirrors every entry to stdout so container logs stay useful
// while the async writer owns the log file.
type consoleHook struct{}

func NewConsoleHook() logrus.Hook {
	return consoleHook{}
}

func (consoleHook) Fire(entry *logrus.Entry) error {
	line, err := entry.Logger.Formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(line)
	return err
}

func (consoleHook) Levels() []logrus.Level {
	return logrus.AllLevels
}
