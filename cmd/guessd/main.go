package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"cosmossdk.io/log"
	"github.com/cometbft/cometbft/abci/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Layr-Labs/guess-game/internal/app"
	"github.com/Layr-Labs/guess-game/internal/state"
)

const envPrefix = "GUESSD"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "guessd",
		Short:        "guessing-game settlement ledger daemon",
		SilenceUsage: true,
	}
	root.AddCommand(newStartCmd())
	return root
}

// newStartCmd wires flags through viper so every option can also come from
// the environment (GUESSD_HOME, GUESSD_MAX_POT, ...).
func newStartCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "start",
		Short: "run the ABCI application server",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runStart(v)
		},
	}

	flags := cmd.Flags()
	flags.String("home", ".guessd", "app home directory (state is stored under <home>/app)")
	flags.String("addr", "tcp://127.0.0.1:26658", "ABCI listen address")
	flags.String("transport", "socket", "ABCI transport (socket|grpc)")
	flags.Uint64("max-pot", 0, "pot ceiling that deactivates a game and latches withdrawals (0 disables)")
	flags.Uint64("withdrawal-delay", 0, "seconds between withdrawal request and claim")
	flags.StringSlice("operator", nil, "genesis operator identity (repeatable)")
	flags.StringSlice("guardian", nil, "genesis guardian identity (repeatable)")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(flags)

	return cmd
}

func runStart(v *viper.Viper) error {
	logger := log.NewLogger(os.Stderr)

	cfg := state.Config{
		MaxPot:              v.GetUint64("max-pot"),
		WithdrawalDelaySecs: v.GetUint64("withdrawal-delay"),
		Operators:           v.GetStringSlice("operator"),
		Guardians:           v.GetStringSlice("guardian"),
	}

	a, err := app.New(v.GetString("home"), cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	srv, err := server.NewServer(v.GetString("addr"), v.GetString("transport"), a)
	if err != nil {
		return fmt.Errorf("create abci server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start abci server: %w", err)
	}
	defer func() { _ = srv.Stop() }()

	logger.Info("abci server started",
		"addr", v.GetString("addr"),
		"transport", v.GetString("transport"))

	// Wait for signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")
	return nil
}
