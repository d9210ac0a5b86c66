package cmd

import (
	"bacman/config"
	"bacman/core"
	"bacman/database"
	"bacman/logger"
	"bacman/models"
)

// probeRuntime is the wiring shared by every command that runs probes.
type probeRuntime struct {
	Gate        *core.ActivationGate
	Sender      *core.HTTPSender
	Coordinator *core.Coordinator
	Live        *core.ResultLog
}

func senderConfigFromAppConfig() core.SenderConfig {
	cfg := core.DefaultSenderConfig()
	if config.AppConfig.Replay.Timeout > 0 {
		cfg.Timeout = config.AppConfig.Replay.Timeout
	}
	cfg.SkipTLSVerify = config.AppConfig.Replay.SkipTLSVerify
	cfg.AllowLoopback = config.AppConfig.Replay.AllowLoopback
	cfg.RequestsPerSecond = config.AppConfig.Replay.RequestsPerSecond
	if config.AppConfig.Replay.Burst > 0 {
		cfg.Burst = config.AppConfig.Replay.Burst
	}
	return cfg
}

// loadActivationState merges config defaults with whatever the last run persisted.
func loadActivationState() models.ActivationState {
	def := models.ActivationState{
		Active:             config.AppConfig.Probe.ActiveOnStart,
		OverrideHeaderText: config.AppConfig.Probe.OverrideHeaders,
	}
	if database.DB == nil {
		return def
	}
	state, err := database.LoadActivationState(def)
	if err != nil {
		logger.Error("Could not load persisted activation state, using config defaults: %v", err)
		return def
	}
	return state
}

// newProbeRuntime builds gate, sender, coordinator and sinks. extra sinks receive every
// result after the live log, the store and the proxy log.
func newProbeRuntime(state models.ActivationState, extra ...core.ResultSink) *probeRuntime {
	gate := core.NewActivationGate(state, nil)
	sender := core.NewHTTPSender(senderConfigFromAppConfig())
	live := core.NewResultLog(config.AppConfig.Probe.LiveLogSize)

	sinks := core.MultiSink{live, core.StoreSink{}, core.LogSink{}}
	sinks = append(sinks, extra...)

	coord := core.NewCoordinator(gate, &core.ReplayExecutor{Sender: sender}, sinks, core.CoordinatorOptions{
		Observer: func(seq int64, st models.ProbeState) {
			logger.ProxyDebug("Probe #%d -> %s", seq, st)
		},
	})
	logger.Info("Probe runtime ready: run %s, active=%t, %d override headers", coord.RunID(), gate.Active(), len(gate.OverrideHeaders()))
	return &probeRuntime{Gate: gate, Sender: sender, Coordinator: coord, Live: live}
}

func loadExclusionRules() []models.ProbeExclusionRule {
	if database.DB == nil {
		return nil
	}
	rules, err := database.GetProbeExclusionRules()
	if err != nil {
		logger.Error("Could not load probe exclusion rules: %v", err)
		return nil
	}
	return rules
}

func (rt *probeRuntime) proxyOptions(port string) core.ProxyOptions {
	return core.ProxyOptions{
		Port:            port,
		CACertPath:      config.AppConfig.Proxy.CACertPath,
		CAKeyPath:       config.AppConfig.Proxy.CAKeyPath,
		WaitForResponse: config.AppConfig.Probe.WaitForResponse,
		Exclusions:      loadExclusionRules(),
	}
}

// drain stops new probes, waits for in-flight ones and releases the sender.
func (rt *probeRuntime) drain() {
	rt.Coordinator.Close()
	if n := rt.Coordinator.InFlight(); n > 0 {
		logger.Info("Waiting for %d in-flight probes to finish...", n)
	}
	rt.Coordinator.Wait()
	rt.Sender.Close()
}
