// Command eec-scheduler is a demo driver: it loads a scheduler config
// and a workload scenario file, then runs the scheduler end to end
// against the in-memory reference simulator in simharness.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/ayjanu/eec/common/logging"
	"github.com/ayjanu/eec/common/metrics"
	"github.com/ayjanu/eec/config"
	"github.com/ayjanu/eec/scheduler"
)

var (
	app = kingpin.New("eec-scheduler", "Energy-efficient cluster scheduler demo driver")

	cfgFiles = app.Flag(
		"config", "YAML config file(s); later files override earlier ones").
		Short('c').
		ExistingFiles()

	workloadFile = app.Flag(
		"workload", "YAML workload scenario file (machines + tasks)").
		Short('w').
		Required().
		ExistingFile()

	debug = app.Flag("debug", "enable debug-level logging").
		Short('d').
		Default("false").
		Envar("EEC_DEBUG").
		Bool()
)

func main() {
	app.HelpFlag.Short('h')
	kingpin.MustParse(app.Parse(os.Args[1:]))

	log.SetFormatter(&logging.LogFieldFormatter{
		Formatter: &log.JSONFormatter{},
		Fields:    log.Fields{"app": app.Name},
	})

	cfg, err := config.Load(*cfgFiles...)
	if err != nil {
		log.WithError(err).Fatal("failed to load scheduler config")
	}

	if *debug || cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	logging.ConfigureSentry(&cfg.Sentry)

	scope, closeScope := metrics.Scope(cfg.Metrics, "eec_scheduler", cfg.FleetRefreshInterval.AsDuration())
	defer closeScope()
	scope.Counter("startup").Inc(1)

	w, err := loadWorkload(*workloadFile)
	if err != nil {
		log.WithError(err).Fatal("failed to load workload scenario")
	}

	h := w.seed()
	s := scheduler.New(h, cfg)

	log.WithFields(log.Fields{
		"machines": len(w.Machines),
		"tasks":    len(w.Tasks),
		"horizon":  w.Horizon,
	}).Info("running scenario")

	if err := h.Run(s, w.Horizon); err != nil {
		log.WithError(err).Fatal("scenario run failed")
	}
}
