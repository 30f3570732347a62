package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/regcascade/internal/config"
	"github.com/zjrosen/regcascade/internal/log"
	"github.com/zjrosen/regcascade/internal/paths"
)

var (
	version = "dev"
	cfgFile string
	cfg     config.Config

	// loadErr holds a config file that exists but could not be read.
	loadErr error

	debugFlag  bool
	logFile    string
	logCleanup = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "regcascade",
	Short: "Compile and run multi-resolution antsRegistration jobs",
	Long: `regcascade compiles sparse per-resolution registration parameters into
antsRegistration command lines, skips invocations whose outputs already exist,
and records every decision in a local ledger.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ./.regcascade/config.yaml, then ~/.config/regcascade/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false,
		"log debug output to stderr (or --log-file)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"write logs to this file")
	rootCmd.PersistentFlags().String("state-dir", "",
		"directory holding the ledger and traces (default: ./.regcascade)")

	_ = viper.BindPFlag("state_dir", rootCmd.PersistentFlags().Lookup("state-dir"))
}

func initConfig() {
	config.SetDefaults(viper.GetViper())
	viper.SetEnvPrefix("REGCASCADE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .regcascade/config.yaml (current directory)
		// 2. ~/.config/regcascade/config.yaml (user config)
		local := filepath.Join(paths.StateDirName, "config.yaml")
		if _, err := os.Stat(local); err == nil {
			viper.SetConfigFile(local)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "regcascade"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	loadErr = nil
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			loadErr = fmt.Errorf("reading config: %w", err)
		}
	}

	cfg = config.Config{}
	if err := viper.Unmarshal(&cfg); err != nil && loadErr == nil {
		loadErr = fmt.Errorf("decoding config: %w", err)
	}
}

func setupLogging(_ *cobra.Command, _ []string) error {
	level := log.LevelInfo
	if debugFlag || os.Getenv("REGCASCADE_DEBUG") != "" {
		level = log.LevelDebug
	}

	switch {
	case logFile != "":
		cleanup, err := log.Init(logFile, level)
		if err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
		logCleanup = cleanup
	case level == log.LevelDebug:
		log.InitWriter(os.Stderr, level)
	}

	log.Debug(log.CatConfig, "Configuration loaded", "file", viper.ConfigFileUsed())
	return nil
}

// Execute runs the root command
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() { logCleanup() }()
	return rootCmd.ExecuteContext(ctx)
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
