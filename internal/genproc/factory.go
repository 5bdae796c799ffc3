package genproc

import (
	"time"

	"chatrelay/internal/config"
	"chatrelay/internal/logger"
)

// RunnerFactory builds one ProcessRunner per request from the generator
// configuration. The model identifier is passed as an argument; the prompt
// itself never is.
type RunnerFactory struct {
	cfg config.GeneratorConfig
	log *logger.Logger
}

func NewRunnerFactory(cfg config.GeneratorConfig, log *logger.Logger) *RunnerFactory {
	return &RunnerFactory{cfg: cfg, log: log}
}

func (f *RunnerFactory) New() Generator {
	return NewProcessRunner(
		f.cfg.Binary,
		[]string{"run", f.cfg.Model},
		time.Duration(f.cfg.FeedTimeoutSeconds)*time.Second,
		f.log,
	)
}
