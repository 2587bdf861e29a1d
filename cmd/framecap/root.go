package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gogpu/framecap"
)

// app is the state shared by all commands of one invocation.
type app struct {
	v     *viper.Viper
	cfg   *Config
	level slog.LevelVar
	out   io.Writer
}

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"log-level": "log.level",
	"position":  "position",
	"fps":       "fps",
	"frames":    "frames",
	"synthetic": "synthetic",
}

func newRootCmd() *cobra.Command {
	a := &app{out: os.Stdout}
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "framecap",
		Short:         "Capture camera frames into pooled GPU frame buffers",
		Version:       framecap.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.out = cmd.OutOrStdout()
			return a.load(configPath, cmd.Flags())
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./framecap.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("synthetic", false, "use the built-in test-pattern cameras")

	rootCmd.AddCommand(newDevicesCmd(a))
	rootCmd.AddCommand(newRunCmd(a))
	return rootCmd
}

// load builds the viper instance, binds the flags that were set and
// installs the logger.
func (a *app) load(configPath string, flags *pflag.FlagSet) error {
	a.v = newViper(configPath)

	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		if err := a.v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("failed to bind --%s: %w", f.Name, err)
		}
	})
	if bindErr != nil {
		return bindErr
	}

	cfg, err := loadConfig(a.v)
	if err != nil {
		return err
	}
	a.apply(cfg)
	return nil
}

// apply makes cfg current and updates the log level.
func (a *app) apply(cfg *Config) {
	a.cfg = cfg
	lvl, _ := cfg.level()
	a.level.Set(lvl)
	framecap.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: &a.level,
	})))
}
