package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/rescp17/fileproc/api"
	"github.com/rescp17/fileproc/internal/config"
	"github.com/rescp17/fileproc/internal/logger"
	"github.com/rescp17/fileproc/internal/util"
	"github.com/rescp17/fileproc/pkg/client"
	"github.com/rescp17/fileproc/pkg/discovery"
	"github.com/rescp17/fileproc/pkg/operation"
	"github.com/rescp17/fileproc/pkg/rpc"
	"github.com/rescp17/fileproc/pkg/transfer"
	"github.com/rescp17/fileproc/pkg/ui"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fang.Execute(ctx, newRootCmd(), fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "invoke <operation> <input> <output> [params...]",
		Short:        "Run a file through a remote processing operation",
		Long:         longHelp(),
		Args:         cobra.MinimumNArgs(3),
		SilenceUsage: true,
		RunE:         runInvoke,
	}

	f := cmd.Flags()
	f.String("addr", "localhost:50051", "Processing service address (host:port)")
	f.Duration("timeout", 5*time.Minute, "Deadline for the whole call")
	f.Bool("discover", false, "Find the service on the local network instead of using --addr")
	f.Duration("discover-timeout", 3*time.Second, "How long to wait for --discover")
	f.Bool("progress", false, "Show live transfer progress")
	f.Int("chunk-size", transfer.DefaultChunkSize, "Bytes per data chunk")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-file", "", "Also write logs to this rotated file")
	f.String("env-file", "", "Dotenv file with FILEPROC_* settings (default .env)")
	return cmd
}

func longHelp() string {
	var b strings.Builder
	b.WriteString("Send a file to a processing service and save the result.\n\nOperations:\n")
	for _, op := range operation.All() {
		usage := op.Name
		if params := op.Usage(); params != "" {
			usage += " " + params
		}
		fmt.Fprintf(&b, "  %s%s\n", util.PadRight(usage, 28), op.Description)
	}
	b.WriteString("\nSettings can also come from FILEPROC_* environment variables, e.g. FILEPROC_ADDR.")
	return b.String()
}

func runInvoke(cmd *cobra.Command, args []string) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(cmd.Flags(), envFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Log records would tear the progress view apart; send them to the file only.
	var console io.Writer = cmd.ErrOrStderr()
	if cfg.Progress {
		console = io.Discard
	}
	log, closer, err := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile, Console: console})
	if err != nil {
		return err
	}
	defer closer.Close()

	req := client.Request{
		Operation:   args[0],
		Source:      args[1],
		Destination: args[2],
		Args:        args[3:],
	}
	if err := client.Validate(req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
	defer cancel()

	addr := cfg.Addr
	if cfg.Discover {
		if addr, err = discover(ctx, cfg.DiscoverTimeout, log); err != nil {
			return err
		}
	}

	conn, err := rpc.Dial(addr, rpc.WithLogger(log))
	if err != nil {
		return err
	}
	svc := api.NewFileProcessorClient(conn)
	newClient := func(opts ...client.Option) (*client.Client, error) {
		opts = append([]client.Option{client.WithConfig(cfg.TransferConfig()), client.WithLogger(log)}, opts...)
		return client.New(svc, opts...)
	}

	var res *client.Result
	if cfg.Progress {
		label := fmt.Sprintf("%s %s → %s", req.Operation, req.Source, addr)
		res, err = ui.RunWithProgress(ctx, cmd.ErrOrStderr(), label, func(ctx context.Context, report client.ProgressFunc) (*client.Result, error) {
			c, err := newClient(client.WithProgress(report))
			if err != nil {
				return nil, err
			}
			return c.Transfer(ctx, req)
		})
	} else {
		var c *client.Client
		if c, err = newClient(); err != nil {
			return err
		}
		res, err = c.Transfer(ctx, req)
	}

	if res != nil {
		fmt.Fprintln(cmd.OutOrStdout(), ui.Summary(req, res))
	}
	return err
}

func discover(ctx context.Context, timeout time.Duration, log *slog.Logger) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	adapter := &discovery.MDNSAdapter{Logger: log}
	service := discovery.ServiceName(discovery.DefaultServiceType, discovery.DefaultDomain)
	info, err := discovery.First(ctx, adapter.Discover(ctx, service))
	if err != nil {
		return "", fmt.Errorf("discovering %s: %w", service, err)
	}
	log.Info("Discovered service", "name", info.Name, "target", info.Target())
	return info.Target(), nil
}
