package logger

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[37m"
	colorReset  = "\033[0m"
)

// Formatter prints "<time> <LEVEL> <message> key=value ..." with colored level and fields.
type Formatter struct {
	DisableColors bool
}

func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	b.WriteString(entry.Time.Format("2006-01-02T15:04:05-07:00"))
	b.WriteString(" ")

	levelText := strings.ToUpper(entry.Level.String())
	fmt.Fprintf(b, "%s%s%s ", f.color(levelColor(entry.Level)), levelText, f.color(colorReset))

	b.WriteString(entry.Message)

	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(b, " %s%s=%v%s", f.color(colorBlue), k, entry.Data[k], f.color(colorReset))
		}
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func (f *Formatter) color(code string) string {
	if f.DisableColors {
		return ""
	}
	return code
}

func levelColor(level logrus.Level) string {
	switch level {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return colorRed
	case logrus.WarnLevel:
		return colorYellow
	case logrus.InfoLevel:
		return colorGreen
	case logrus.DebugLevel, logrus.TraceLevel:
		return colorGray
	default:
		return colorReset
	}
}
