// Package main provides the bot entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	apidiscord "github.com/MassimilianoBaglioni/soundboard-bot/internal/api/discord"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/app/expander"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/app/notification"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/app/resolver"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/app/session"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/app/soundboard"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/infra/config"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/infra/discord"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/infra/logger"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/infra/spotify"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/infra/ytdlp"
)

var (
	app        = kingpin.New("soundboard-bot", "Discord music and soundboard bot")
	configPath = app.Flag("config", "Path to config file").Default("config/bot.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	listSoundsCmd       = app.Command("list-sounds", "List soundboard clips and exit")
	registerCommandsCmd = app.Command("register-commands", "Register slash commands and exit")
)

func init() {
	app.Command("start", "Start the bot (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output:     "stdout",
		Level:      "info",
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 30,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	switch command {
	case listSoundsCmd.FullCommand():
		err = printSounds(cfg)
	case registerCommandsCmd.FullCommand():
		err = registerCommands(cfg)
	default:
		err = run(cfg)
	}
	if err != nil {
		zlog.Error().Msgf("Bot error: %v", err)
		os.Exit(1)
	}
}

// run wires the bot and blocks until a shutdown signal arrives.
func run(cfg *config.Config) error {
	ctx := context.Background()

	client, err := discord.New(cfg.Discord.Token)
	if err != nil {
		return err
	}

	if cfg.YtDlp.Install {
		if err := ytdlp.Install(ctx); err != nil {
			return err
		}
	}
	fetcher := ytdlp.New(ytdlp.Config{Proxy: cfg.YtDlp.Proxy})

	// Interface values stay nil when the catalog is disabled.
	var (
		lookup  resolver.CatalogLookup
		catalog expander.Catalog
	)
	if cfg.Spotify.Enabled() {
		sp, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			Market:       cfg.Spotify.Market,
			MaxRetries:   cfg.Resolver.MaxRetries,
		})
		if err != nil {
			return errors.Wrap(err, "failed to create Spotify client")
		}
		lookup, catalog = sp, sp
	} else {
		zlog.Info().Msg("Spotify credentials not configured, catalog links are disabled")
	}

	sounds, err := soundboard.Load(cfg.Soundboard.Dir)
	if err != nil {
		return err
	}
	zlog.Info().Msgf("Soundboard loaded: dir=%s count=%d", sounds.Dir(), sounds.Len())

	voice := discord.NewVoice(client.Session(), fetcher, discord.AudioConfig{
		Bitrate:        cfg.Audio.Bitrate,
		Volume:         cfg.Audio.Volume,
		BufferedFrames: cfg.Audio.BufferedFrames,
	})

	trackResolver := resolver.New(fetcher, lookup, resolver.Config{
		MetadataTimeout: cfg.Resolver.MetadataTimeout(),
		RatePerSecond:   cfg.Resolver.RatePerSecond,
		Burst:           cfg.Resolver.Burst,
	})
	if cfg.Resolver.RateLimited() {
		zlog.Info().Msgf("Resolver rate limit: rate_per_second=%v burst=%d", cfg.Resolver.RatePerSecond, cfg.Resolver.Burst)
	} else {
		zlog.Info().Msg("Resolver rate limit disabled")
	}

	sessionMgr := session.NewManager(cfg, session.Dependencies{
		Voice:    voice,
		Locator:  client,
		Resolver: trackResolver,
		Lister:   fetcher,
		Catalog:  catalog,
		Notifier: notification.NewManager(client),
		Sounds:   sounds,
	})
	defer sessionMgr.Close()

	handler := apidiscord.NewHandler(sessionMgr, client, sounds, cfg)
	client.Session().AddHandler(handler.OnInteraction)

	if err := client.Open(); err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			zlog.Error().Msgf("Failed to close Discord session: %v", err)
		}
	}()

	if err := apidiscord.RegisterCommands(client.Session(), client.Session().State.User.ID, cfg.Discord.GuildID); err != nil {
		return err
	}

	zlog.Info().Msg("Bot is running. Press Ctrl+C to exit")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	zlog.Info().Msg("Received shutdown signal...")
	return nil
}

// printSounds prints the soundboard clips.
func printSounds(cfg *config.Config) error {
	sounds, err := soundboard.Load(cfg.Soundboard.Dir)
	if err != nil {
		return err
	}

	fmt.Printf("Soundboard clips in %s:\n", sounds.Dir())
	for _, s := range sounds.Sounds() {
		fmt.Printf("  %3s  %-30s %s\n", s.ID, s.Label, s.FileName)
	}
	return nil
}

// registerCommands overwrites the slash commands without starting the bot.
func registerCommands(cfg *config.Config) error {
	client, err := discord.New(cfg.Discord.Token)
	if err != nil {
		return err
	}

	self, err := client.Session().User("@me")
	if err != nil {
		return errors.Wrap(err, "failed to fetch application user")
	}
	return apidiscord.RegisterCommands(client.Session(), self.ID, cfg.Discord.GuildID)
}
