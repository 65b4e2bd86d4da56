package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rescp17/fileproc/api"
	"github.com/rescp17/fileproc/internal/config"
	"github.com/rescp17/fileproc/internal/logger"
	"github.com/rescp17/fileproc/pkg/discovery"
	"github.com/rescp17/fileproc/pkg/processor"
	"github.com/rescp17/fileproc/pkg/rpc"
	"github.com/rescp17/fileproc/pkg/system"
	"github.com/rescp17/fileproc/pkg/transfer"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cobra.Command{
		Use:   "fileprocd",
		Short: "File processing service",
	}
	cmd.AddCommand(newServeCmd())

	if err := fang.Execute(ctx, cmd, fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Serve the FileProcessor operations",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         runServe,
	}

	f := cmd.Flags()
	f.String("listen", ":50051", "Address to listen on")
	f.String("work-dir", "", "Directory for per-job temporary files (default system temp dir)")
	f.String("ghostscript", "gs", "Ghostscript executable used by CompressPDF")
	f.Int("max-jobs", 4, "Maximum number of jobs processed at once")
	f.Int("chunk-size", transfer.DefaultChunkSize, "Bytes per response data chunk")
	f.Bool("announce", false, "Announce the service on the local network with mDNS")
	f.Bool("echo", false, "Return every input unchanged (diagnostics)")
	f.Duration("stats-interval", time.Minute, "How often to log runtime stats (0 disables)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-file", "", "Also write logs to this rotated file")
	f.Bool("log-json", true, "Write logs as JSON")
	f.String("env-file", "", "Dotenv file with FILEPROC_* settings (default .env)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(cmd.Flags(), envFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	jsonLogs, _ := cmd.Flags().GetBool("log-json")
	log, closer, err := logger.New(logger.Options{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		JSON:    jsonLogs,
		Console: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	svc, err := processor.NewService(processor.Options{
		WorkDir:     cfg.WorkDir,
		Ghostscript: cfg.Ghostscript,
		MaxJobs:     cfg.MaxJobs,
		ChunkSize:   cfg.ChunkSize,
		Echo:        cfg.Echo,
		Logger:      log,
	})
	if err != nil {
		return err
	}
	srv := rpc.NewServer(log)
	api.RegisterFileProcessorServer(srv, svc)

	l, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Listen, err)
	}

	monitor := system.NewMonitor()
	log.Info("Starting fileprocd",
		"version", version,
		"listen", l.Addr().String(),
		"maxJobs", cfg.MaxJobs,
		"echo", cfg.Echo,
		"host", monitor.Info(),
	)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return srv.Serve(ctx, l)
	})
	g.Go(func() error {
		monitor.Run(ctx, log, cfg.StatsInterval)
		return nil
	})
	if cfg.Announce {
		g.Go(func() error {
			return announce(ctx, l.Addr(), log)
		})
	}

	err = g.Wait()
	log.Info("fileprocd stopped", "error", err)
	return err
}

func announce(ctx context.Context, addr net.Addr, log *slog.Logger) error {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return fmt.Errorf("cannot announce non-TCP address %s", addr)
	}
	name, err := os.Hostname()
	if err != nil {
		name = "fileprocd"
	}

	adapter := &discovery.MDNSAdapter{Logger: log}
	err = adapter.Announce(ctx, discovery.ServiceInfo{
		Name:   name,
		Type:   discovery.DefaultServiceType,
		Domain: discovery.DefaultDomain,
		Port:   tcp.Port,
		Text: map[string]string{
			"version": version,
			"service": api.ServiceName,
			"port":    strconv.Itoa(tcp.Port),
		},
	})
	if err != nil {
		// Serving does not depend on being discoverable.
		log.Warn("mDNS announcement stopped", "error", err)
	}
	return nil
}
