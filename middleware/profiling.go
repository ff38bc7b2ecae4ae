package middleware

import (
	"github.com/grafana/pyroscope-go"
	"github.com/rs/zerolog/log"

	"github.com/zhenhaojia/house/config"
)

var profiler *pyroscope.Profiler

// InitProfiling starts continuous profiling against a Pyroscope server.
func InitProfiling(cfg *config.Config) error {
	p, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.Service.Name,
		ServerAddress:   cfg.Profiling.Endpoint,
		Tags: map[string]string{
			"env":     cfg.Service.Env,
			"version": cfg.Service.Version,
		},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	})
	if err != nil {
		return err
	}
	profiler = p
	return nil
}

// StopProfiling flushes and stops the profiler, if one was started.
func StopProfiling() {
	if profiler == nil {
		return
	}
	if err := profiler.Stop(); err != nil {
		log.Warn().Err(err).Msg("Failed to stop profiler")
	}
	profiler = nil
}
