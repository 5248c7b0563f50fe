package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/halcyard/taskguard/internal/alert"
	"codeberg.org/halcyard/taskguard/internal/audit"
	"codeberg.org/halcyard/taskguard/internal/config"
	"codeberg.org/halcyard/taskguard/internal/errors"
	"codeberg.org/halcyard/taskguard/internal/logger"
	"codeberg.org/halcyard/taskguard/internal/monitor"
	"codeberg.org/halcyard/taskguard/internal/notify"
	"codeberg.org/halcyard/taskguard/internal/sched"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, logger.IsService())
	logger.Debug().Msg("Config loaded")

	if err := run(cfg); err != nil {
		logger.Error().Err(err).Msg("Daemon exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ledger, err := audit.New(audit.Config{
		Dir:            cfg.AuditDir,
		MaxFileSize:    cfg.MaxFileSizeMB * 1024 * 1024,
		RetentionDays:  cfg.RetentionDays,
		Compress:       cfg.Compress,
		SigningKeyPath: cfg.SigningKeyPath,
		VerifyKeyPath:  cfg.VerifyKeyPath,
	}, logger.Component("audit"))
	if err != nil {
		return err
	}
	defer func() {
		if _, serr := ledger.LogEvent("system.stop", "daemon", "shutdown", "success", nil, audit.Metadata{}); serr != nil {
			logger.Error().Err(serr).Msg("Failed to record shutdown event")
		}
		if cerr := ledger.Close(); cerr != nil {
			logger.Error().Err(cerr).Msg("Failed to close audit ledger")
		}
	}()

	sink := &ledgerSink{ledger: ledger}

	notifier := notify.NewManager(logger.Component("notify"))
	notifier.ConfigureChannels(buildChannels(cfg.Channels))

	mon := monitor.New(logger.Component("monitor"), notifier, sink)

	alerts := alert.New(logger.Component("alert"), notifier, sink)
	alerts.SetRules(buildRules(cfg.Thresholds))

	var history *monitor.History
	if cfg.HistoryEnabled {
		history, err = monitor.NewHistory(cfg.HistoryDB, logger.Component("history"))
		if err != nil {
			return err
		}
		defer func() {
			if cerr := history.Close(); cerr != nil {
				logger.Error().Err(cerr).Msg("Failed to close stats history")
			}
		}()
	}

	if _, err := ledger.LogEvent("system.start", "daemon", "startup", "success", nil, audit.Metadata{}); err != nil {
		return err
	}

	scheduler := sched.New(logger.Component("sched"))
	registerTasks(scheduler, ledger, mon, alerts, history)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	scheduler.Start(ctx)
	<-ctx.Done()
	scheduler.Stop()

	return nil
}

func registerTasks(s *sched.Scheduler, ledger *audit.Logger, mon *monitor.Monitor, alerts *alert.Manager, history *monitor.History) {
	s.Add(sched.Task{
		Name:     "realtime-refresh",
		Interval: time.Second,
		Run: func(ctx context.Context) error {
			mon.RefreshGauges(ctx)
			return nil
		},
	})

	s.Add(sched.Task{
		Name:     "stats-window",
		Interval: time.Minute,
		Run: func(_ context.Context) error {
			if !mon.NeedsReset(time.Now()) {
				return nil
			}
			if history != nil {
				if err := history.Record(mon.Snapshot(), time.Now().UTC()); err != nil {
					logger.Error().Err(err).Msg("Failed to persist stats window before reset")
				}
			}
			mon.ResetWindow()
			return nil
		},
	})

	s.Add(sched.Task{
		Name:     "rule-evaluation",
		Interval: time.Minute,
		Run: func(_ context.Context) error {
			dash := mon.Dashboard()
			alerts.Evaluate(alert.Context{
				Stats:            dash.Stats,
				ActiveExecutions: dash.ActiveExecutions,
				RecentErrors:     dash.RecentErrors,
				CPUPercent:       dash.Gauges.CPUPercent,
				MemoryPercent:    dash.Gauges.MemoryPercent,
				LoginFailures:    countLoginFailures(ledger, time.Minute),
				Timestamp:        dash.Timestamp,
			})
			return nil
		},
	})

	s.Add(sched.Task{
		Name:     "rotation-check",
		Interval: time.Minute,
		Run: func(_ context.Context) error {
			return ledger.RotateIfNeeded()
		},
	})

	s.Add(sched.Task{
		Name:     "retention-sweep",
		Interval: time.Hour,
		Run: func(_ context.Context) error {
			_, err := ledger.Sweep()
			return err
		},
	})

	s.Add(sched.Task{
		Name:     "integrity-verification",
		Interval: 6 * time.Hour,
		Run: func(ctx context.Context) error {
			report, err := ledger.Verify(ctx)
			if err != nil {
				return err
			}
			handleIntegrityReport(report, mon)
			return nil
		},
	})
}

// handleIntegrityReport alerts on actual findings. A scan cut short by
// shutdown with nothing found is not a violation; the next run covers
// the gap.
func handleIntegrityReport(report *audit.Report, mon *monitor.Monitor) {
	errFactory := errors.New()

	if len(report.Discrepancies) > 0 {
		logger.ErrorWithCode(errFactory.WithData(errors.ErrLedgerIntegrity, len(report.Discrepancies))).
			Int("files", report.Files).
			Msg("Audit chain integrity violation")
		mon.RaiseAlert(notify.SeverityCritical, "Audit chain integrity violation",
			fmt.Sprintf("%d discrepancies across %d files", len(report.Discrepancies), report.Files),
			map[string]string{"files": fmt.Sprintf("%d", report.Files)})
		return
	}

	if report.Aborted {
		logger.Warn().Err(errFactory.New(audit.ErrVerifyAborted)).Msg("Integrity verification aborted before completion")
	}
}

// countLoginFailures counts failed authentication records appended to
// the ledger inside the trailing window. The count comes from the
// ledger because login events are recorded there directly and never
// pass through the monitor.
func countLoginFailures(ledger *audit.Logger, window time.Duration) int {
	entries, err := ledger.Query(audit.Filter{
		EventType: "auth.login",
		Status:    "failure",
		From:      time.Now().UTC().Add(-window),
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to count recent login failures")
		return 0
	}

	return len(entries)
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

// ledgerSink adapts the audit logger to the sink interfaces the monitor
// and alert manager accept.
type ledgerSink struct {
	ledger *audit.Logger
}

func (s *ledgerSink) Record(eventType, resource, action, status string, details map[string]any) error {
	_, err := s.ledger.LogEvent(eventType, resource, action, status, details, audit.Metadata{})
	return err
}

func buildChannels(channels []config.Channel) []notify.ChannelConfig {
	out := make([]notify.ChannelConfig, 0, len(channels))
	for _, ch := range channels {
		minSeverity, err := notify.ParseSeverity(ch.MinSeverity)
		if err != nil {
			logger.Warn().Str("channel", ch.ID).Str("min_severity", ch.MinSeverity).Msg("Unknown minimum severity, defaulting to info")
		}
		out = append(out, notify.ChannelConfig{
			ID:          ch.ID,
			Type:        notify.ChannelType(ch.Type),
			Enabled:     ch.Enabled,
			Target:      ch.Target,
			MinSeverity: minSeverity,
		})
	}

	return out
}

func buildRules(t config.Thresholds) []alert.Rule {
	cooldown := time.Duration(t.CooldownMinutes) * time.Minute

	return []alert.Rule{
		alert.ErrorRateRule(t.ErrorRate, cooldown),
		alert.MeanDurationRule(time.Duration(t.MeanDurationMs)*time.Millisecond, cooldown),
		alert.MemoryRule(t.MemoryPercent, cooldown),
		alert.SecurityEventRule(t.SecurityEvents, cooldown),
		alert.LoginFailureSpikeRule(t.LoginFailures, cooldown),
	}
}
