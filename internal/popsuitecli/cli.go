package popsuitecli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/phillip-england/popsuite/internal/backend"
	"github.com/phillip-england/popsuite/internal/clientapp"
	"github.com/phillip-england/popsuite/internal/envutil"
	"github.com/phillip-england/popsuite/internal/logging"
)

var ErrUsage = errors.New("usage")

const envPrefix = "POPSUITE"

type app struct {
	v       *viper.Viper
	cfgFile string
	envFile string
	out     io.Writer
	errOut  io.Writer
	log     *logrus.Logger
}

// Execute runs the popsuite command line with args (without the program
// name).
func Execute(args []string) error {
	root := NewRootCommand(os.Stdout, os.Stderr)
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

// PrintUsage writes the root command's usage text to w.
func PrintUsage(w io.Writer) {
	root := NewRootCommand(w, w)
	root.SetOut(w)
	_ = root.Usage()
}

func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{v: viper.New(), out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "popsuite",
		Short: "Merchandising admin client for the POP backend.",
		Long: `popsuite serves the data entry and admin pages in front of the
merchandising backend and exports or imports management tables from the
command line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initConfig()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	})

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.popsuite.yaml)")
	flags.StringVar(&a.envFile, "env-file", ".env", "path to .env file")
	flags.StringP("log-level", "l", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text or json")
	flags.String("api-base-url", "", "merchandising backend base URL")
	flags.String("backend-cookie", "", "name of the backend session cookie")
	flags.Int("retry-max", 0, "retries for backend reads")
	flags.Duration("fetch-timeout", 0, "timeout of a single backend read")
	for key, flag := range map[string]string{
		"log_level":      "log-level",
		"log_format":     "log-format",
		"api_base_url":   "api-base-url",
		"backend_cookie": "backend-cookie",
		"retry_max":      "retry-max",
		"fetch_timeout":  "fetch-timeout",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(a.setupCommand(), a.runCommand(), a.exportCommand(), a.importCommand())
	return root
}

// initConfig layers the .env file, POPSUITE_* variables and the optional
// YAML config over the built in defaults.
func (a *app) initConfig() error {
	if err := loadDotEnv(a.envFile); err != nil {
		return err
	}

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return err
		}
		a.v.AddConfigPath(home)
		a.v.SetConfigName(".popsuite")
		a.v.SetConfigType("yaml")
	}
	a.v.SetEnvPrefix(envPrefix)
	a.v.AutomaticEnv()

	def := clientapp.DefaultConfigFromEnv()
	a.v.SetDefault("addr", def.Addr)
	a.v.SetDefault("api_base_url", def.APIBaseURL)
	a.v.SetDefault("read_timeout", def.ReadTimeout)
	a.v.SetDefault("write_timeout", def.WriteTimeout)
	a.v.SetDefault("fetch_timeout", def.FetchTimeout)
	a.v.SetDefault("submit_timeout", def.SubmitTimeout)
	a.v.SetDefault("retry_max", def.RetryMax)
	a.v.SetDefault("session_cookie", def.SessionCookie)
	a.v.SetDefault("backend_cookie", def.BackendCookie)
	a.v.SetDefault("session_idle", def.SessionIdle)
	a.v.SetDefault("submit_action", def.SubmitAction)

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	a.log = logging.New(logging.Config{
		Level:  a.v.GetString("log_level"),
		Format: a.v.GetString("log_format"),
		Output: a.errOut,
	})
	return nil
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := envutil.LoadDotEnv(path); err != nil {
		return fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (a *app) clientConfig() clientapp.Config {
	return clientapp.Config{
		Addr:          a.v.GetString("addr"),
		APIBaseURL:    a.v.GetString("api_base_url"),
		ReadTimeout:   a.v.GetDuration("read_timeout"),
		WriteTimeout:  a.v.GetDuration("write_timeout"),
		FetchTimeout:  a.v.GetDuration("fetch_timeout"),
		SubmitTimeout: a.v.GetDuration("submit_timeout"),
		RetryMax:      a.v.GetInt("retry_max"),
		SessionCookie: a.v.GetString("session_cookie"),
		BackendCookie: a.v.GetString("backend_cookie"),
		SessionIdle:   a.v.GetDuration("session_idle"),
		SubmitAction:  a.v.GetString("submit_action"),
		Logger:        a.log,
	}
}

// backendClient builds a client for one-shot commands. session is the
// backend session cookie value of a logged in admin.
func (a *app) backendClient(session string) *backend.Client {
	cfg := a.clientConfig()
	client := backend.New(backend.Config{
		BaseURL:       cfg.APIBaseURL,
		Timeout:       cfg.FetchTimeout,
		WriteTimeout:  cfg.SubmitTimeout,
		RetryMax:      cfg.RetryMax,
		SessionCookie: cfg.BackendCookie,
		Logger:        a.log,
	})
	if session != "" {
		client = client.WithSession(session)
	}
	return client
}

func usageArgs(n int, usage string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("%w: %s", ErrUsage, usage)
		}
		return nil
	}
}
