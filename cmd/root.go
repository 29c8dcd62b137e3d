// Package cmd holds the pagedriver command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/pagedriver/internal/config"
	"github.com/xkilldash9x/pagedriver/internal/observability"

	// Register the rendering backends.
	_ "github.com/xkilldash9x/pagedriver/internal/renderer/cdp"
	_ "github.com/xkilldash9x/pagedriver/internal/renderer/sim"
)

// app is the state shared by the commands of one root command.
type app struct {
	v        *viper.Viper
	cfg      *config.Config
	cfgFile  string
	logLevel string
}

// newRootCmd builds the command tree. Every call returns an independent tree
// with its own viper instance.
func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "pagedriver",
		Short:         "pagedriver loads pages in a rendering engine and captures what they show.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.initializeConfig(); err != nil {
				return err
			}
			if err := a.loadConfig(); err != nil {
				// Keep a usable logger for the error report.
				observability.InitializeLogger(config.NewDefaultConfig().Logger())
				return err
			}
			observability.Initialize(a.cfg.Logger(), zapWriter(cmd))
			observability.GetLogger().Debug("Starting pagedriver.", zap.String("version", Version))
			return nil
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./pagedriver.yaml or $HOME/.pagedriver/pagedriver.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newScrapeCmd(a))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command line with ctx, which should be cancelled on
// interrupt.
func Execute(ctx context.Context) error {
	rootCmd := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
	}
	observability.Sync()
	return err
}

// initializeConfig reads the config file and environment into a.v.
func (a *app) initializeConfig() error {
	v := a.v
	config.SetDefaults(v)

	if a.cfgFile != "" {
		path, err := homedir.Expand(a.cfgFile)
		if err != nil {
			return fmt.Errorf("could not resolve config path '%s': %w", a.cfgFile, err)
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".pagedriver"))
		}
		v.SetConfigName("pagedriver")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PAGEDRIVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// loadConfig unmarshals a.v, applying flag overrides bound so far.
func (a *app) loadConfig() error {
	cfg, err := config.NewConfigFromViper(a.v)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.SetLoggerLevel(a.logLevel)
	}
	a.cfg = cfg
	return nil
}

// zapWriter sends console logs to the command's stderr.
func zapWriter(cmd *cobra.Command) zapcore.WriteSyncer {
	if f, ok := cmd.ErrOrStderr().(*os.File); ok {
		return zapcore.Lock(f)
	}
	return zapcore.AddSync(cmd.ErrOrStderr())
}
