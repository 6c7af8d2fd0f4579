// Command device is the on-device OTA update client. It loads a TOML
// config, builds an orchestrator.Manager, and performs one
// check-and-apply pass, or loops on an interval under --daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"otaupdate/internal/config"
	"otaupdate/internal/deletepolicy"
	"otaupdate/internal/events"
	"otaupdate/internal/fetch"
	"otaupdate/internal/fsiface"
	"otaupdate/internal/logger"
	"otaupdate/internal/maintenance"
	"otaupdate/internal/orchestrator"
	"otaupdate/internal/reboot"
)

var (
	// Version is set at build time via -ldflags.
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "config.toml", "Configuration file path")
	generateConfig := flag.Bool("generate-config", false, "Generate default config file and exit")
	showVersion := flag.Bool("version", false, "Show version information and exit")
	daemon := flag.Bool("daemon", false, "Run continuously, checking on an interval gated by the maintenance window")
	interval := flag.Duration("interval", 30*time.Minute, "Check interval when run with --daemon")
	confirm := flag.Bool("confirm", false, "Confirm a pending update (clears confirm_pending state) and exit")
	revert := flag.Bool("revert", false, "Revert the most recent update from backup and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("otaupdate device %s\n", Version)
		return
	}

	if *generateConfig {
		def := config.Default()
		if err := config.WriteTOML(*configPath, def); err != nil {
			fmt.Fprintf(os.Stderr, "failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("generated default configuration at %s\n", *configPath)
		return
	}

	var cfg config.DeviceConfig
	if err := config.LoadTOML(*configPath, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.LevelFromString(cfg.Logging.Level), cfg.Logging.Dir, cfg.Logging.FileName, 1000)
	log.SetConsoleOutput(cfg.Logging.Console)
	log.SetRotationPolicy(logger.RotationPolicy{
		Enabled:    cfg.Logging.MaxSizeMB > 0,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		MaxFiles:   cfg.Logging.MaxFiles,
	})
	defer log.Close()

	mgr := buildManager(cfg, log)

	if *confirm {
		if !mgr.ConfirmUpdate(true) {
			log.Warn("no update awaiting confirmation")
			return
		}
		log.Info("update confirmed")
		return
	}
	if *revert {
		if err := mgr.RevertUpdate(context.Background()); err != nil {
			log.Error("revert failed", "error", err)
			os.Exit(1)
		}
		log.Info("revert complete")
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	win := toMaintenanceWindow(cfg.MaintenanceWindow)

	if !*daemon {
		runOnce(ctx, mgr, log)
		return
	}

	log.Info("starting in daemon mode", "interval", interval.String())
	for {
		if win.Allows(time.Now()) {
			runOnce(ctx, mgr, log)
		} else {
			log.Debug("skipping check: outside maintenance window")
		}
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-time.After(*interval):
		}
	}
}

func runOnce(ctx context.Context, mgr *orchestrator.Manager, log *logger.Logger) {
	if err := mgr.CheckAndPerformOTA(ctx); err != nil {
		log.Error("update check failed", "error", err)
		return
	}
	log.Info("update check complete", "state", mgr.Status().State)
}

func buildManager(cfg config.DeviceConfig, log *logger.Logger) *orchestrator.Manager {
	var sink events.Sink = events.NoopSink{}
	if cfg.EventSinkWSURL != "" {
		sink = events.NewWSSink(cfg.EventSinkWSURL)
	}

	return orchestrator.New(orchestrator.Options{
		ManifestURL:             cfg.ManifestURL,
		BaseFileURL:             cfg.BaseFileURL,
		DestDir:                 cfg.DestDir,
		ForceUpdate:             cfg.ForceUpdate,
		RecurseHTTPFS:           cfg.RecurseHTTPFS,
		StrictHTTPFS:            cfg.StrictHTTPFS,
		OTAStateFile:            cfg.OTAStateFile,
		LocalManifestFile:       cfg.LocalManifestFile,
		ApplicationName:         cfg.ApplicationName,
		HTTPTimeout:             cfg.HTTPTimeout(),
		BackupSkipExtensions:    cfg.BackupSkipExtensions,
		BackupSkipPrefixes:      cfg.BackupSkipPrefixes,
		ManifestAuthKey:         cfg.ManifestAuthKey,
		ManifestSignatureField:  cfg.ManifestSignatureField,
		DownloadRetries:         cfg.DownloadRetries,
		RetryBaseDelayMS:        cfg.RetryBaseDelayMS,
		ResumeDownloads:         cfg.ResumeDownloads,
		IOChunkSize:             cfg.IOChunkSize,
		MD5ChunkSize:            cfg.MD5ChunkSize,
		DeletePolicy:            deletepolicy.Policy(cfg.DeleteFilesNotInManifestPolicy),
		DeleteExtensionAllowlist: cfg.DeleteFilesNotInManifestExtensions,
		Sink:                    sink,
		Fetcher:                 fetch.NewHTTPFetcher(),
		Reboot:                  reboot.NewSystemdHook(cfg.ApplicationName, isRunningAsService(), nil),
		FS:                      fsiface.OSFileSystem{},
		RunID:                   cfg.RunID,
	})
}

func toMaintenanceWindow(c config.MaintenanceWindowConfig) maintenance.Window {
	days := make([]time.Weekday, 0, len(c.DaysOfWeek))
	for _, d := range c.DaysOfWeek {
		days = append(days, time.Weekday(d))
	}
	return maintenance.Window{
		Enabled:    c.Enabled,
		StartHour:  c.StartHour,
		EndHour:    c.EndHour,
		DaysOfWeek: days,
		Timezone:   c.Timezone,
	}
}

func isRunningAsService() bool {
	// Best-effort: treat an absent controlling terminal as running
	// under a service manager. Good enough to pick systemctl vs. a
	// plain process exit; operators can still force behavior via the
	// reboot hook's IsService flag if this heuristic is wrong for their
	// platform.
	fi, err := os.Stdin.Stat()
	if err != nil {
		return true
	}
	return (fi.Mode() & os.ModeCharDevice) == 0
}
