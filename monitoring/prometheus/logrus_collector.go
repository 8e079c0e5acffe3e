package prometheus

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var logEntries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lottery_log_entries_total",
	Help: "Count of log messages by level and component prefix.",
}, []string{"level", "prefix"})

// LogrusCollector is a logrus hook counting log entries per level and
// component. Install it once, before any service starts logging.
type LogrusCollector struct{}

// NewLogrusCollector returns the hook to register with logrus.AddHook.
func NewLogrusCollector() *LogrusCollector {
	return &LogrusCollector{}
}

// Fire is called by logrus on every matching log entry.
func (*LogrusCollector) Fire(entry *logrus.Entry) error {
	prefix := "global"
	if v, ok := entry.Data["prefix"]; ok {
		prefix, ok = v.(string)
		if !ok {
			return errors.New("prefix is not a string")
		}
	}
	logEntries.WithLabelValues(entry.Level.String(), prefix).Inc()
	return nil
}

// Levels restricts the hook to entries that indicate real activity; debug
// and trace chatter is not worth a counter series.
func (*LogrusCollector) Levels() []logrus.Level {
	return []logrus.Level{logrus.InfoLevel, logrus.WarnLevel, logrus.ErrorLevel}
}
