package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"roomcast/logging"
	"roomcast/metric"
	"roomcast/signal"
)

func newServeCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:                "serve",
		Short:              "Run the signaling server",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := SetupConfig(w, args)
			if errors.Is(err, pflag.ErrHelp) {
				return nil
			}
			if err != nil {
				return err
			}
			logger := logging.Init(w, config.Debug)
			return signal.New(config, logger).Start(cmd.Context())
		},
	}
}

// SetupConfig sets up and returns the configuration.
func SetupConfig(w io.Writer, args []string) (signal.Config, error) {
	config, err := Parse(w, args)
	if err != nil {
		return config, err
	}
	if err = config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// Parse parses the command line arguments of the server.
func Parse(w io.Writer, args []string) (signal.Config, error) {
	con := signal.Config{}

	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.SetOutput(w)
	fs.IntVar(&con.Port, "port", signal.DefaultPort, "listening port")
	fs.BoolVar(&con.Debug, "debug", false, "debug mode")
	fs.StringVar(&con.KeyFile, "key", "", "key file path")
	fs.StringVar(&con.CertFile, "cert", "", "cert file path")
	fs.IntVar(&con.MetricsPort, "metrics-port", metric.DefaultMetricsPort, "metrics port, 0 disables metrics")
	fs.StringVar(&con.MetricsPath, "metrics-path", metric.DefaultMetricsPath, "metrics path")
	fs.Float64Var(&con.Rate, "rate", signal.DefaultRate, "messages per second a connection may send")
	fs.IntVar(&con.Burst, "burst", signal.DefaultBurst, "message burst a connection may send")
	fs.StringVar(&con.AllowedOrigin, "origin", "*", "allowed CORS origin")

	err := fs.Parse(args)
	if err != nil {
		return signal.Config{}, fmt.Errorf("failed to parse args: %w", err)
	}

	if fs.NArg() != 0 {
		return signal.Config{}, errors.New("some args are not parsed")
	}

	return con, nil
}
