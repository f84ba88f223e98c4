package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/absfs/jdfs"
)

const envPrefix = "JDFS"

// app carries what every subcommand needs once flags are resolved.
type app struct {
	conn *jdfs.Connection
	log  *zap.Logger
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	state := &app{}

	root := &cobra.Command{
		Use:           "jdfs",
		Short:         "Browse and edit encrypted virtual filesystems in S3",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfigFile(v); err != nil {
				return err
			}
			logger, err := newLogger(v.GetString("log-level"), v.GetString("log-format"))
			if err != nil {
				return err
			}
			state.log = logger

			conn, err := jdfs.New(&jdfs.Config{
				Credential: jdfs.Credential{
					AccessKeyID:     v.GetString("access-key"),
					SecretAccessKey: v.GetString("secret-key"),
				},
				Endpoint:       v.GetString("endpoint"),
				Insecure:       v.GetBool("insecure"),
				ForcePathStyle: v.GetBool("path-style"),
				PageSize:       v.GetInt("page-size"),
				PasswordFunc:   terminalPassword,
				Logger:         logger,
			})
			if err != nil {
				return err
			}
			state.conn = conn
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if state.log != nil {
				_ = state.log.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (yaml, json or toml)")
	flags.String("access-key", "", "S3 access key id")
	flags.String("secret-key", "", "S3 secret access key")
	flags.String("endpoint", jdfs.DefaultEndpoint, "S3 endpoint host[:port]")
	flags.Bool("insecure", false, "use http instead of https")
	flags.Bool("path-style", false, "address every bucket path-style")
	flags.Int("page-size", 0, "max-keys per listing request (0 = store default)")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")

	for _, name := range []string{"config", "access-key", "secret-key", "endpoint", "insecure", "path-style", "page-size", "log-level", "log-format"} {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root.AddCommand(
		newBucketsCommand(state),
		newMkbucketCommand(state),
		newPrepareCommand(state),
		newLsCommand(state),
		newGetCommand(state),
		newPutCommand(state),
		newRmCommand(state),
		newMkdirCommand(state),
		newPasswdCommand(state),
		newAuditCommand(state),
	)
	return root
}

func loadConfigFile(v *viper.Viper) error {
	cfgPath := strings.TrimSpace(v.GetString("config"))
	if cfgPath == "" {
		return nil
	}
	expanded, err := expandPath(cfgPath)
	if err != nil {
		return fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		return fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config file %q is a directory", expanded)
	}
	v.SetConfigFile(expanded)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return nil
}

func expandPath(p string) (string, error) {
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	return filepath.Abs(p)
}

func newLogger(levelName, format string) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", levelName)
	}

	var config zap.Config
	switch format {
	case "json":
		config = zap.NewProductionConfig()
	case "console", "":
		config = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	config.Level = zap.NewAtomicLevelAt(level)
	config.OutputPaths = []string{"stderr"}
	return config.Build(zap.AddStacktrace(zapcore.ErrorLevel))
}
