package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind            string
	disconnectGrace time.Duration
	images          string
	port            int
	prefix          string
	profile         bool
	sessionGrace    time.Duration
	suggestionKey   string
	suggestionModel string
	suggestionURL   string
	tlsCert         string
	tlsKey          string
	turnTimer       time.Duration
	verbose         bool
	words           string
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}

	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}

	if c.disconnectGrace < 0 || c.sessionGrace < 0 || c.turnTimer < 0 {
		return errors.New("grace and timer durations must not be negative")
	}

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}

	return "http"
}

func initLogger(cfg *Config) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("CODEWORDS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "codewords",
		Short:         "A team-versus-team word-guessing party game, synchronized in real time.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}

			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: CODEWORDS_BIND)")
	fs.DurationVar(&cfg.disconnectGrace, "disconnect-grace", 10*time.Second, "time a disconnected player may reconnect before being removed (env: CODEWORDS_DISCONNECT_GRACE)")
	fs.StringVar(&cfg.images, "images", "", "directory of reveal artwork, with one subdirectory per tile type (env: CODEWORDS_IMAGES)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: CODEWORDS_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: CODEWORDS_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: CODEWORDS_PROFILE)")
	fs.DurationVar(&cfg.sessionGrace, "session-grace", 5*time.Minute, "time before an abandoned session is deleted (env: CODEWORDS_SESSION_GRACE)")
	fs.StringVar(&cfg.suggestionKey, "suggestion-key", "", "api key for the clue suggestion backend (env: CODEWORDS_SUGGESTION_KEY)")
	fs.StringVar(&cfg.suggestionModel, "suggestion-model", "gpt-4o-mini", "model requested from the clue suggestion backend (env: CODEWORDS_SUGGESTION_MODEL)")
	fs.StringVar(&cfg.suggestionURL, "suggestion-url", "", "chat-completions endpoint for clue suggestions (env: CODEWORDS_SUGGESTION_URL)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: CODEWORDS_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: CODEWORDS_TLS_KEY)")
	fs.DurationVar(&cfg.turnTimer, "turn-timer", 0, "optional per-turn countdown deadline, 0 to disable (env: CODEWORDS_TURN_TIMER)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: CODEWORDS_VERBOSE)")
	fs.StringVar(&cfg.words, "words", "", "path to a yaml file of additional word lists (env: CODEWORDS_WORDS)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("codewords v{{.Version}}\n")

	cmd.SilenceUsage = true

	return cmd
}
