package sync

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/notionmirror/notionmirror/cmd/util"
	"github.com/notionmirror/notionmirror/pkg/config"
	"github.com/notionmirror/notionmirror/pkg/errors"
	"github.com/notionmirror/notionmirror/pkg/manifest"
	"github.com/notionmirror/notionmirror/pkg/mirror"
	"github.com/notionmirror/notionmirror/pkg/notion"
	"github.com/notionmirror/notionmirror/pkg/rclone"
	"github.com/notionmirror/notionmirror/pkg/run"
	"github.com/notionmirror/notionmirror/pkg/source"
)

// New creates a new `sync` command.
func New() *cobra.Command {
	var fullRebuild, noRclone bool
	var configPath string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror the workspace locally and reconcile the remote to match.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := syncRun(configPath, fullRebuild, noRclone); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().BoolVar(&fullRebuild, "full-rebuild", false,
		"Ignore the previous manifest and rebuild the local mirror from scratch.")
	cmd.Flags().BoolVar(&noRclone, "no-rclone", false,
		"Only build the local mirror, don't reconcile the remote.")
	cmd.Flags().StringVar(&configPath, "config", "",
		"Path to the config file (default "+config.DefaultPath+").")
	return cmd
}

func syncRun(configPath string, fullRebuild, noRclone bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return errors.WithContext(err, "load config")
	}
	if err := cfg.RequireToken(); err != nil {
		return err
	}

	clock := clockwork.NewRealClock()

	// Tee logs into the per-date run log alongside stderr.
	logFile, err := run.OpenRunLog(cfg.LogDir, clock.Now())
	if err != nil {
		return errors.WithContext(err, "open run log")
	}
	defer logFile.Close()
	log.SetOutput(io.MultiWriter(os.Stderr, logFile))

	// The lock file lives inside the mirror root, which might not exist yet.
	if err := os.MkdirAll(cfg.MirrorDir, 0755); err != nil {
		return errors.WithContext(err, "create mirror dir")
	}

	client := notion.NewHTTPClient(notion.Options{
		Token:      cfg.Token,
		APIVersion: cfg.NotionVersion,
	})
	driver := rclone.NewDriver(rclone.Options{
		Exe:           cfg.Rclone.Exe,
		Dest:          cfg.RemoteDest(),
		DriveUseTrash: cfg.Rclone.DriveUseTrash,
		Timeout:       cfg.Rclone.Timeout(),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if !noRclone {
		if err := driver.CheckVersion(ctx); err != nil {
			return err
		}
	}

	orchestrator := &run.Orchestrator{
		Walker:    source.NewWalker(client, cfg.PageConcurrency),
		Store:     manifest.NewStore(cfg.ManifestPath(), clock),
		Lock:      manifest.NewFileLock(cfg.LockPath()),
		Builder:   mirror.NewBuilder(cfg.MirrorDir, client, clock),
		Driver:    driver,
		Clock:     clock,
		MirrorDir: cfg.MirrorDir,
	}

	summary, err := orchestrator.Run(ctx, run.Options{
		FullRebuild: fullRebuild,
		SkipRemote:  noRclone,
	})
	if err != nil {
		return err
	}

	fmt.Printf("OK: %s\n", summary)
	return nil
}

func loadConfig(configPath string) (config.Config, error) {
	if configPath != "" {
		return config.ParseFromPath(configPath)
	}
	return config.Parse()
}
