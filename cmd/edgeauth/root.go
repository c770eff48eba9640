package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ggoodman/edgeauth/internal/config"
	"github.com/ggoodman/edgeauth/internal/logctx"
	"github.com/spf13/cobra"
)

// app carries state shared by subcommands once the root pre-run has loaded it.
type app struct {
	cfg *config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var logLevel, logFormat string

	root := &cobra.Command{
		Use:   "edgeauth",
		Short: "Bearer token authentication at the edge",
		Long: `edgeauth verifies Firebase Authentication ID tokens on inbound requests.
Requests with a valid token are forwarded with x-user-uid and x-user-email
headers; everything else is answered with a uniform 401. CORS pre-flight
requests are answered directly.

Configuration is read from EDGEAUTH_* environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.LogFormat = logFormat
			}
			log, err := newLogger(cmd.ErrOrStderr(), cfg)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log = log
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "json", "Log format (json, text)")

	root.AddCommand(
		newLambdaCmd(a),
		newServeCmd(a),
		newVerifyCmd(a),
		newKeysCmd(a),
	)
	return root
}

// runtimeAPIEnv is set by the AWS Lambda runtime, which starts the bootstrap
// binary without arguments.
const runtimeAPIEnv = "AWS_LAMBDA_RUNTIME_API"

// defaultArgs selects the lambda subcommand when running inside Lambda with
// no explicit command line.
func defaultArgs(args []string, getenv func(string) string) []string {
	if len(args) == 0 && getenv(runtimeAPIEnv) != "" {
		return []string{"lambda"}
	}
	return args
}

func newLogger(w io.Writer, cfg *config.Config) (*slog.Logger, error) {
	lvl, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch strings.ToLower(cfg.LogFormat) {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	case "text":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}
	return slog.New(logctx.Handler{Handler: h}), nil
}
