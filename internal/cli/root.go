package cli

import (
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/icewiki/nomulus/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	// Viper holds flag, environment and file settings. Config is decoded
	// from it before any subcommand runs.
	Viper  *viper.Viper
	Config config.Config
	Log    *logrus.Logger

	// Now overrides the clock (for testing).
	Now func() time.Time
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the registry CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Viper: config.New(), Now: time.Now}

	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Domain name registry core",
		Long: `Run registry commands against a domain, contact and host store.

Settings come from flags, REGISTRY_* environment variables and an optional
config file, in that order of precedence.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.ConfigFile, "config", "", "config file (yaml, json or toml)")
	flags.String("db-driver", "", "database driver (sqlite3|pgx)")
	flags.String("db-dsn", "", "database path or connection string")
	flags.String("tld-dir", "", "directory of CUE TLD definitions")
	flags.String("log-level", "", "log level (debug|info|warn|error)")
	for key, flag := range map[string]string{
		"db_driver": "db-driver",
		"db_dsn":    "db-dsn",
		"tld_dir":   "tld-dir",
		"log_level": "log-level",
	} {
		_ = opts.Viper.BindPFlag(key, flags.Lookup(flag))
	}

	// Add subcommands
	cmd.AddCommand(NewExecCommand(opts))
	cmd.AddCommand(NewLookupCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewTransferQueryCommand(opts))
	cmd.AddCommand(NewChargesCommand(opts))
	cmd.AddCommand(NewGetTLDCommand(opts))
	cmd.AddCommand(NewPollCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

func (o *RootOptions) load() error {
	if !slices.Contains(ValidFormats, o.Format) {
		return fmt.Errorf("invalid format %q: must be one of %v", o.Format, ValidFormats)
	}
	if o.ConfigFile != "" {
		o.Viper.SetConfigFile(o.ConfigFile)
	}
	cfg, err := config.Load(o.Viper)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if o.Verbose {
		cfg.LogLevel = logrus.DebugLevel.String()
	}
	o.Config = cfg
	o.Log = cfg.Logger()
	return nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// instant parses an --at flag, defaulting to the current time.
func (o *RootOptions) instant(at string) (time.Time, error) {
	if at == "" {
		return o.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return time.Time{}, NewExitError(ExitCommandError, fmt.Sprintf("invalid --at %q: want RFC 3339", at))
	}
	return t.UTC(), nil
}
