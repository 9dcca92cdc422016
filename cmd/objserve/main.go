package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"objserve/internal/cli"
	"objserve/internal/server"
	"objserve/pkg/object"

	"github.com/spf13/cobra"
)

var cfg server.Config

var rootCmd = &cobra.Command{
	Use:           "objserve",
	Short:         "Objserve serves immutable objects over HTTP.",
	Long:          `Objserve serves objects from R2 or an SQL store over HTTP, with byte-range and conditional request support.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the object server.",
	Long:  `Start the object server. Objects are served at the root of PORT; /metrics and /ping are served on METRICS_PORT.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return server.Serve(ctx, cfg, server.NewLogger(os.Stderr, cfg.LogLevel))
	},
}

var putCmdFlags cli.PutFlags
var putCmd = &cobra.Command{
	Use:   "put [key] [file]",
	Short: "Upload a file under a key.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd.Context(), func(ctx context.Context, store object.ObjectStorage) error {
			obj, err := cli.Put(ctx, store, server.NewLogger(os.Stderr, cfg.LogLevel), putCmdFlags, args[0], args[1])
			if err != nil {
				return err
			}
			cli.PrintObject(cmd.OutOrStdout(), obj)
			return nil
		})
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls [prefix]",
	Short: "List stored objects.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		return withBackend(cmd.Context(), func(ctx context.Context, store object.ObjectStorage) error {
			return cli.List(ctx, store, cmd.OutOrStdout(), prefix)
		})
	},
}

var statCmd = &cobra.Command{
	Use:   "stat [key]",
	Short: "Show the metadata of an object.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd.Context(), func(ctx context.Context, store object.ObjectStorage) error {
			return cli.Stat(ctx, store, cmd.OutOrStdout(), args[0])
		})
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm [key1] [key2] ...",
	Short: "Remove objects.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd.Context(), func(ctx context.Context, store object.ObjectStorage) error {
			return cli.Remove(ctx, store, cmd.OutOrStdout(), args)
		})
	},
}

func withBackend(ctx context.Context, fn func(context.Context, object.ObjectStorage) error) error {
	store, err := server.OpenBackend(ctx, cfg.Backend)
	if err != nil {
		return err
	}
	defer store.Close(context.Background())
	return fn(ctx, store)
}

func main() {
	var err error
	cfg, err = server.LoadConfig(".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	rootCmd.AddCommand(serveCmd, putCmd, lsCmd, statCmd, rmCmd)

	// ==========
	// root flags
	// ==========
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfg.Backend.Driver, "backend", cfg.Backend.Driver, "Object backend: r2, sqlite or libsql")
	pf.StringVar(&cfg.Backend.Source, "source", cfg.Backend.Source, "DSN of the sqlite/libsql store")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error")

	// ==============
	// serveCmd flags
	// ==============
	serveCmd.Flags().IntVarP(&cfg.Port, "port", "p", cfg.Port, "Port of the object listener")
	serveCmd.Flags().IntVar(&cfg.MetricsPort, "metrics-port", cfg.MetricsPort, "Port of the /metrics and /ping listener, 0 disables it")
	serveCmd.Flags().StringVar(&cfg.RangePolicy, "range-policy", cfg.RangePolicy, "Range policy: eager or deferred")
	serveCmd.Flags().StringVar(&cfg.MaxRangeLength, "max-range-length", cfg.MaxRangeLength, "Largest range served by the deferred policy, e.g. 8MiB")
	serveCmd.Flags().DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Grace period for in-flight requests")

	// ============
	// putCmd flags
	// ============
	putCmd.Flags().StringVarP(&putCmdFlags.ContentType, "content-type", "t", "", "Content-Type, detected from the file extension when empty")
	putCmd.Flags().StringVarP(&putCmdFlags.CacheControl, "cache-control", "c", "", "Cache-Control stored with the object")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "objserve:", err)
		os.Exit(1)
	}
}
