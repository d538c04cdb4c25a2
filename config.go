/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Seednode/showdown/games/battle"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	maxImageSize   string
	port           int
	prefix         string
	profile        bool
	reconnectGrace time.Duration
	redisAddr      string
	redisDB        int
	redisQueue     string
	seeding        string
	sessionTimeout time.Duration
	tieBreak       string
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
	voteTimeout    time.Duration

	imageLimit int64
	logger     *logrus.Logger
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.reconnectGrace < 0 || c.sessionTimeout < 0 || c.voteTimeout < 0 {
		return errors.New("durations must not be negative")
	}
	if c.redisDB < 0 {
		return fmt.Errorf("invalid redis database: %d", c.redisDB)
	}
	if c.redisAddr != "" && c.redisQueue == "" {
		return errors.New("--redis-queue must not be empty when --redis-addr is set")
	}

	size, err := humanize.ParseBytes(c.maxImageSize)
	if err != nil {
		return fmt.Errorf("invalid max image size %q: %w", c.maxImageSize, err)
	}
	if size == 0 {
		return errors.New("max image size must be greater than zero")
	}
	c.imageLimit = int64(size)

	if _, err := battle.ParseTieBreak(c.tieBreak); err != nil {
		return err
	}
	if _, err := battle.ParseSeeding(c.seeding); err != nil {
		return err
	}

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// lobbyOptions assumes validate has already succeeded.
func (c *Config) lobbyOptions() battle.Options {
	tieBreak, _ := battle.ParseTieBreak(c.tieBreak)
	seeding, _ := battle.ParseSeeding(c.seeding)

	return battle.Options{
		ReconnectGrace: c.reconnectGrace,
		VoteTimeout:    c.voteTimeout,
		MaxImageSize:   c.imageLimit,
		TieBreak:       tieBreak,
		Seeding:        seeding,
		Logger:         c.logger,
	}
}

// readLimit bounds the websocket frames that get decoded. Images arrive
// base64 encoded inside a JSON envelope, so allow twice the decoded size plus
// headroom.
func (c *Config) readLimit() int64 {
	return 2*c.imageLimit + 64*1024
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("SHOWDOWN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "showdown",
		Short:         "Head-to-head voting battles for groups, played in the browser.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}

			cfg.logger = newLogger(cfg)

			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: SHOWDOWN_BIND)")
	fs.StringVar(&cfg.maxImageSize, "max-image-size", "16MB", "largest accepted candidate image (env: SHOWDOWN_MAX_IMAGE_SIZE)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: SHOWDOWN_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: SHOWDOWN_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: SHOWDOWN_PROFILE)")
	fs.DurationVar(&cfg.reconnectGrace, "reconnect-grace", 5*time.Second, "time a disconnected host has to return before the lobby closes (env: SHOWDOWN_RECONNECT_GRACE)")
	fs.StringVar(&cfg.redisAddr, "redis-addr", "", "redis address for archiving finished games, disabled if empty (env: SHOWDOWN_REDIS_ADDR)")
	fs.IntVar(&cfg.redisDB, "redis-db", 0, "redis database index (env: SHOWDOWN_REDIS_DB)")
	fs.StringVar(&cfg.redisQueue, "redis-queue", "showdown_results", "redis list that finished games are pushed onto (env: SHOWDOWN_REDIS_QUEUE)")
	fs.StringVar(&cfg.seeding, "seeding", string(battle.SeedingSubmission), "order of the first round: submission or shuffle (env: SHOWDOWN_SEEDING)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle lobbies are closed (env: SHOWDOWN_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tieBreak, "tie-break", string(battle.TieBreakEarliest), "winner of a tied battle: earliest or random (env: SHOWDOWN_TIE_BREAK)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: SHOWDOWN_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: SHOWDOWN_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: SHOWDOWN_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: SHOWDOWN_VERSION)")
	fs.DurationVar(&cfg.voteTimeout, "vote-timeout", 0, "close a battle after this long even if votes are missing, disabled if zero (env: SHOWDOWN_VOTE_TIMEOUT)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("showdown v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
