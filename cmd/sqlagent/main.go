package main

import (
	"io"
	"os"
	"strings"

	"github.com/go-go-golems/sqlagent/cmd/sqlagent/cmds"
	"github.com/go-go-golems/sqlagent/pkg/settings"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var rootCmd = &cobra.Command{
	Use:   "sqlagent",
	Short: "sqlagent answers questions about a SQL database with a tool-calling language model",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		return initLogger(cmd)
	},
	SilenceUsage: true,
}

type logConfig struct {
	WithCaller bool
	Level      string
	LogFormat  string
	LogFile    string
}

func initLogger(cmd *cobra.Command) error {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	v.SetEnvPrefix(settings.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	logLevel := v.GetString("log-level")
	if v.GetBool("verbose") && logLevel != "trace" {
		logLevel = "debug"
	}

	return InitLogger(&logConfig{
		Level:      logLevel,
		LogFile:    v.GetString("log-file"),
		LogFormat:  v.GetString("log-format"),
		WithCaller: v.GetBool("with-caller"),
	})
}

func InitLogger(config *logConfig) error {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if config.WithCaller {
		logger = logger.With().Caller().Logger()
	}

	format := config.LogFormat
	if format == "" {
		format = "json"
		if isatty.IsTerminal(os.Stderr.Fd()) {
			format = "text"
		}
	}

	var logWriter io.Writer
	if format == "text" {
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
	} else {
		logWriter = os.Stderr
	}

	if config.LogFile != "" {
		logWriter = io.MultiWriter(
			logWriter,
			zerolog.ConsoleWriter{
				NoColor: true,
				Out: &lumberjack.Logger{
					Filename:   config.LogFile,
					MaxSize:    10, // megabytes
					MaxBackups: 3,
					MaxAge:     28,    //days
					Compress:   false, // disabled by default
				},
			})
	}

	log.Logger = logger.Output(logWriter)

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		return err
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// logging flags
	rootCmd.PersistentFlags().Bool("with-caller", false, "Log caller")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (json, text; default text on a terminal)")
	rootCmd.PersistentFlags().String("log-file", "", "Log file (default: stderr)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Verbose output")

	rootCmd.PersistentFlags().String("config", "", "Path to config file (default ~/.sqlagent/config.yaml)")
	settings.AddFlags(rootCmd.PersistentFlags())

	toolsCmd, err := cmds.NewToolsCommand()
	cobra.CheckErr(err)

	rootCmd.AddCommand(
		cmds.NewServeCommand(),
		cmds.NewAskCommand(),
		cmds.NewDashboardCommand(),
		cmds.NewChatCommand(),
		toolsCmd,
	)
}
