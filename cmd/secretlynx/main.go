package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/bl4ck0w1/secretlynx/cmd/secretlynx/commands"
	"github.com/bl4ck0w1/secretlynx/pkg/models"
	"github.com/bl4ck0w1/secretlynx/pkg/utils"
)

var (
	version   = "1.0.0"
	commit    = "unknown"
	buildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:           "secretlynx",
	Short:         "SecretLynx - Website Secret Exposure Scanner",
	Long:          "SecretLynx finds credentials leaked in a website's HTML, JavaScript and CSS, probes it for common security misconfigurations and produces a remediation plan.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		cfg, err := commands.ResolveConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		initLogging(cfg.Global)

		if err := ensureDirs(cfg); err != nil {
			logrus.Warnf("Failed to ensure directories: %v", err)
		}

		if !viper.GetBool("quiet") && cmd.Name() != "version" {
			printBanner()
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	commands.ToolVersion = version

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.secretlynx/config.yaml)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet mode (no banner or progress output)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "log level (debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
	rootCmd.PersistentFlags().String("log-file", "", "log file path")
	rootCmd.PersistentFlags().String("data-dir", "", "directory for stored scan results")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("global.log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("global.log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("global.log_file", rootCmd.PersistentFlags().Lookup("log-file"))
	_ = viper.BindPFlag("storage.data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))

	rootCmd.AddCommand(commands.NewScanCommand())
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewReportCommand())
	rootCmd.AddCommand(commands.NewStatsCommand())
	rootCmd.AddCommand(commands.NewConfigureCommand())
	rootCmd.AddCommand(commands.NewVersionCommand(version, commit, buildDate))

	rootCmd.InitDefaultCompletionCmd()
	installConsolidatedHelp(rootCmd)

	rootCmd.SetVersionTemplate(fmt.Sprintf("SecretLynx %s (commit %s, built %s)\n", version, commit, buildDate))
}

func initConfig() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logrus.Warnf("Failed to load .env file: %v", err)
	}

	viper.SetEnvPrefix("SECRETLYNX")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("get home dir: %w", err)
		}
		viper.AddConfigPath(filepath.Join(home, ".secretlynx"))
		viper.AddConfigPath("/etc/secretlynx/")
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			logrus.Warnf("Failed reading config file: %v", err)
		}
	} else {
		logrus.Debugf("Using config file: %s", viper.ConfigFileUsed())
	}
	return nil
}

func initLogging(g models.GlobalConfig) {
	logConfig := utils.LogConfig{
		Level:         g.LogLevel,
		Format:        g.LogFormat,
		FileLocation:  g.LogFile,
		EnableConsole: true,
	}
	if g.Debug {
		logConfig.Level = "debug"
	}

	logger, err := utils.NewLogger(logConfig, "secretlynx", version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize structured logger, falling back: %v\n", err)
		logrus.SetFormatter(&logrus.JSONFormatter{})
		logrus.SetLevel(logrus.InfoLevel)
		return
	}

	logrus.SetOutput(logger.Out)
	logrus.SetLevel(logger.Level)
	logrus.SetFormatter(logger.Formatter)
	for _, hooks := range logger.Hooks {
		for _, h := range hooks {
			logrus.AddHook(h)
		}
	}
}

func ensureDirs(cfg *models.Config) error {
	for _, d := range []string{cfg.Storage.DataDir, cfg.Reports.OutputDir} {
		if d == "" {
			continue
		}
		if err := utils.EnsureDir(d); err != nil {
			return fmt.Errorf("ensure dir %s: %w", d, err)
		}
	}
	return nil
}

func printBanner() {
	const banner = `
   ____                     _   _                    
  / ___|  ___  ___ _ __ ___| |_| |   _   _ _ __ __  __
  \___ \ / _ \/ __| '__/ _ \ __| |  | | | | '_ \\ \/ /
   ___) |  __/ (__| | |  __/ |_| |__| |_| | | | |>  < 
  |____/ \___|\___|_|  \___|\__|_____\__, |_| |_/_/\_\
                                     |___/   v%s

            Website Secret Exposure Scanner
  ______________________________________________________
`
	fmt.Fprintf(os.Stderr, banner, version)
	fmt.Fprintf(os.Stderr, "Build: %s (%s) | %s/%s\n\n", commit, buildDate, runtime.GOOS, runtime.GOARCH)
}

func installConsolidatedHelp(root *cobra.Command) {
	defaultHelp := root.HelpFunc()
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != root {
			defaultHelp(cmd, args)
			return
		}

		if !viper.GetBool("quiet") {
			printBanner()
		}

		fmt.Println("USAGE:")
		fmt.Println("  secretlynx [command] [global flags]")
		fmt.Println()
		fmt.Println("GLOBAL FLAGS:")
		fmt.Print(root.PersistentFlags().FlagUsages())
		fmt.Println()

		cmds := []*cobra.Command{}
		for _, c := range root.Commands() {
			if c.IsAvailableCommand() && !c.Hidden {
				cmds = append(cmds, c)
			}
		}
		sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name() < cmds[j].Name() })
		fmt.Println("COMMANDS:")
		for _, c := range cmds {
			fmt.Printf("  %-12s %s\n", c.Name(), c.Short)
			for _, sc := range c.Commands() {
				if sc.IsAvailableCommand() && !sc.Hidden {
					fmt.Printf("    %-10s %s\n", sc.Name(), sc.Short)
				}
			}
		}
		fmt.Println()

		fmt.Println("ENVIRONMENT:")
		fmt.Println("  NEURA_ROUTER_API_KEY     key for the recommendation API (required for scan and serve)")
		fmt.Println("  NEURA_ROUTER_API_URL     recommendation API base URL")
		fmt.Println("  NEURA_ROUTER_API_MODEL   recommendation model")
		fmt.Println("  SECRETLYNX_<SECTION>_<KEY> overrides any config key, e.g. SECRETLYNX_SCANNER_ACTIVE_PROBES=false")
		fmt.Println()
		fmt.Println("NOTES:")
		fmt.Println("  • Use \"secretlynx [command] --help\" for focused help on any command.")
		fmt.Println("  • A .env file in the working directory is loaded before anything else.")
	})
}

func main() {
	startTime := time.Now()
	Execute()
	logrus.Debugf("Execution completed in %v", time.Since(startTime))
}
