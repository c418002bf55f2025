package logging

import log "github.com/sirupsen/logrus"

// LogFieldFormatter decorates every entry with a fixed set of fields
// (e.g. the process name) before handing off to an underlying
// logrus.Formatter.
type LogFieldFormatter struct {
	Formatter log.Formatter
	Fields    log.Fields
}

// Format implements logrus.Formatter.
func (f *LogFieldFormatter) Format(e *log.Entry) ([]byte, error) {
	for k, v := range f.Fields {
		e.Data[k] = v
	}
	return f.Formatter.Format(e)
}
