package logger

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	colorRed    = 31
	colorYellow = 33
	colorBlue   = 36
	colorGray   = 37
)

const defaultTimestampFormat = "15:04:05"

func colorByLevel(level logrus.Level) int {
	switch level {
	case logrus.DebugLevel, logrus.TraceLevel:
		return colorGray
	case logrus.WarnLevel:
		return colorYellow
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return colorRed
	default:
		return colorBlue
	}
}

// Formatter writes "time [LEVEL] message key=value ..." lines, with fields
// sorted by key.
type Formatter struct {
	DisableColor bool
	// HideLogTime drops the timestamp, for output compared in tests.
	HideLogTime     bool
	TimestampFormat string
}

func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	if !f.HideLogTime {
		format := f.TimestampFormat
		if format == "" {
			format = defaultTimestampFormat
		}
		b.WriteString(entry.Time.Format(format))
		b.WriteByte(' ')
	}

	line := fmt.Sprintf("[%s] %s", strings.ToUpper(entry.Level.String()), entry.Message)
	if f.DisableColor {
		b.WriteString(line)
	} else {
		fmt.Fprintf(b, "\033[%dm%s\033[0m", colorByLevel(entry.Level), line)
	}

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, " %s=%v", k, entry.Data[k])
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}
