// Package cli provides the commands of the termdeck client.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termdeck/internal/hostclient"
	"github.com/GriffinCanCode/termdeck/internal/infrastructure/config"
	"github.com/GriffinCanCode/termdeck/internal/infrastructure/logging"
	"github.com/GriffinCanCode/termdeck/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/termdeck/internal/shared/paths"
	"github.com/GriffinCanCode/termdeck/internal/slots"
)

// Version is set at build time.
var Version = "dev"

const requestTimeout = 10 * time.Second

// env carries what every command needs. It is built lazily so --help
// works without a config.
type env struct {
	cfg    *config.Config
	addr   string
	logger *logging.Logger
}

func newRootCmd() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:     "termdeck",
		Short:   "Persistent terminal sessions you can detach from and reattach to",
		Version: Version,
		Long: `termdeck attaches your terminal to a shell owned by a termdeck server.

Detaching (Ctrl-]) leaves the shell running. Each named slot remembers its
session, so "termdeck attach work" later returns to the same shell.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			e.cfg = cfg
			if e.addr == "" {
				e.addr = cfg.Client.Addr
			}
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if e.logger != nil {
				_ = e.logger.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&e.addr, "addr", "", "server address (default $TERMDECK_ADDR)")

	root.AddCommand(
		newAttachCmd(e),
		newListCmd(e),
		newKillCmd(e),
		newScrollbackCmd(e),
		newSlotsCmd(e),
	)
	return root
}

// Execute runs the root command and returns an exit code.
func Execute() int {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "termdeck:", err)
		return 1
	}
	return 0
}

// log returns the client logger. The display owns stdout, so logs go to a
// file or nowhere.
func (e *env) log() *logging.Logger {
	if e.logger == nil {
		e.logger = logging.NewClient(logging.Config{
			Level:       e.cfg.Logging.Level,
			Development: e.cfg.Logging.Development,
			Service:     "termdeck-client",
			File:        e.cfg.Client.LogFile,
		})
	}
	return e.logger
}

func (e *env) client() *hostclient.Client {
	return hostclient.New(hostclient.Config{
		BaseURL: e.addr,
		Timeout: requestTimeout,
		Logger:  e.log().Named("hostclient"),
	})
}

func (e *env) store() (*slots.Store, error) {
	if e.cfg.Client.Slots != "" {
		return slots.Open(e.cfg.Client.Slots)
	}
	return slots.OpenDefault()
}

func (e *env) settingsPath() string {
	if e.cfg.Client.Settings != "" {
		return e.cfg.Client.Settings
	}
	path, err := paths.SettingsFile()
	if err != nil {
		e.log().Debug("No settings file location", zap.Error(err))
		return ""
	}
	return path
}

// resolve maps a slot name to its session id. Anything that is not a
// bound slot is taken as a session id.
func (e *env) resolve(nameOrID string) (string, error) {
	store, err := e.store()
	if err != nil {
		return "", err
	}
	id, ok, err := store.Get(nameOrID)
	if err != nil {
		return "", err
	}
	if ok {
		return id, nil
	}
	return nameOrID, nil
}

// requestContext bounds one command's calls and tags them with a single
// trace id.
func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := tracing.WithTraceID(cmd.Context(), tracing.NewTraceID())
	return context.WithTimeout(ctx, requestTimeout)
}
