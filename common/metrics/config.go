// Package metrics builds a tally root scope from configuration,
// selecting between a Prometheus, a statsd, or a no-op reporter. The
// scheduler core is not a network service, so this package does not
// stand up an HTTP exposition endpoint, and Scope does not hand back
// the Prometheus reporter it builds: it returns only the root scope
// and its closer.
package metrics

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
	tallyprom "github.com/uber-go/tally/prometheus"
	tallystatsd "github.com/uber-go/tally/statsd"

	"github.com/cactus/go-statsd-client/statsd"
)

// Config selects which tally reporter backend, if any, metrics flow
// through.
type Config struct {
	Prometheus *PrometheusConfig `yaml:"prometheus"`
	Statsd     *StatsdConfig     `yaml:"statsd"`
}

// PrometheusConfig enables the Prometheus tally reporter.
type PrometheusConfig struct {
	Enable bool `yaml:"enable"`
}

// StatsdConfig enables the statsd tally reporter.
type StatsdConfig struct {
	Enable   bool   `yaml:"enable"`
	Endpoint string `yaml:"endpoint"`
}

// Scope builds a root tally.Scope and its closer according to cfg. With
// neither backend enabled it falls back to a statsd no-op client,
// a safe default.
func Scope(cfg Config, rootName string, flushInterval time.Duration) (tally.Scope, func() error) {
	var reporter tally.StatsReporter
	var cachedReporter tally.CachedStatsReporter
	separator := "."

	switch {
	case cfg.Prometheus != nil && cfg.Prometheus.Enable:
		separator = "_"
		cachedReporter = tallyprom.NewReporter(tallyprom.Options{})
	case cfg.Statsd != nil && cfg.Statsd.Enable:
		log.WithField("endpoint", cfg.Statsd.Endpoint).Info("metrics: statsd reporter enabled")
		c, err := statsd.NewClient(cfg.Statsd.Endpoint, "")
		if err != nil {
			log.WithError(err).Error("metrics: statsd client failed, falling back to no-op")
			c, _ = statsd.NewNoopClient()
		}
		reporter = tallystatsd.NewReporter(c, tallystatsd.Options{})
	default:
		c, _ := statsd.NewNoopClient()
		reporter = tallystatsd.NewReporter(c, tallystatsd.Options{})
	}

	scope, closer := tally.NewRootScope(tally.ScopeOptions{
		Prefix:         rootName,
		Tags:           map[string]string{},
		Reporter:       reporter,
		CachedReporter: cachedReporter,
		Separator:      separator,
	}, flushInterval)
	return scope, closer.Close
}
