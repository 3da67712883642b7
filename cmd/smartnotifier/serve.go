package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hammamikhairi/smartnotifier/internal/app"
	"github.com/hammamikhairi/smartnotifier/internal/config"
	"github.com/hammamikhairi/smartnotifier/internal/domain"
	"github.com/hammamikhairi/smartnotifier/internal/feed"
	"github.com/hammamikhairi/smartnotifier/internal/gate"
	"github.com/hammamikhairi/smartnotifier/internal/listener"
	"github.com/hammamikhairi/smartnotifier/internal/server"
	"github.com/hammamikhairi/smartnotifier/internal/speech"
	"github.com/hammamikhairi/smartnotifier/internal/storage"
)

var (
	serveAddr    string
	serveFeed    string
	serveBackend string
	serveMemory  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the notification daemon",
	Long: `Runs the listener, the voice queue and the local HTTP API until
interrupted. With --feed, notifications are also read as JSON lines from a
file or from stdin ("-").`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().StringVar(&serveFeed, "feed", "", `JSON-lines notification feed, "-" for stdin`)
	serveCmd.Flags().StringVar(&serveBackend, "backend", "", "speech backend: azure, command or log")
	serveCmd.Flags().BoolVar(&serveMemory, "memory", false, "keep rules and the log in memory only")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if serveAddr != "" {
		cfg.ListenAddr = serveAddr
	}
	if serveBackend != "" {
		cfg.Speech.Backend = serveBackend
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, where, err := serveStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	speaker, err := buildSpeaker(cfg.Speech)
	if err != nil {
		return err
	}
	queue := speech.NewQueue(speaker, log.With("component", "queue"),
		speech.WithDelay(cfg.Speech.Delay),
		speech.WithCleanup(cfg.Speech.Cleanup),
		speech.WithReadyTimeout(cfg.Speech.ReadyTimeout),
	)
	queue.Start(ctx)
	defer queue.Close()

	g, err := buildGate(cfg.Gate)
	if err != nil {
		return err
	}

	l := listener.New(store, g, queue, log.With("component", "listener"),
		listener.WithResolver(listener.AppsResolver(cfg.Apps)))
	defer l.Close()

	a := app.New(store, l, log.With("component", "app"), app.WithSelfPackage(cfg.SelfPackage))
	defer a.Close(context.Background())
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-a.Errors():
				log.Warn("rule save: %v", err)
			}
		}
	}()

	if serveFeed != "" {
		go func() {
			if _, err := feed.ReadPath(ctx, serveFeed, l, log.With("component", "feed")); err != nil {
				log.Error("%v", err)
			}
		}()
	}

	srv := server.New(a, l, g, log.With("component", "http"))
	out.Banner(cfg.ListenAddr)
	log.Info("serving (store=%s, backend=%s)", where, cfg.Speech.Backend)
	return srv.ListenAndServe(ctx, cfg.ListenAddr)
}

// serveStore opens the SQLite database, or a seeded in-memory store with
// --memory. It also returns a description for the startup log.
func serveStore(cmd *cobra.Command) (domain.Store, string, error) {
	if !serveMemory {
		store, err := openStore(cmd)
		if err != nil {
			return nil, "", err
		}
		return store, store.Path(), nil
	}
	store := storage.NewMemoryStore(log)
	store.SetLogLimit(cfg.LogLimit)
	if err := storage.Seed(cmd.Context(), store, cfg.SelfPackage, log); err != nil {
		return nil, "", err
	}
	return store, "memory", nil
}

func buildSpeaker(sc config.SpeechConfig) (domain.Speaker, error) {
	switch sc.Backend {
	case config.BackendAzure:
		tts := speech.NewAzureClient(sc.AzureKey, sc.AzureRegion, log, speech.WithVoice(sc.AzureVoice))
		player, err := speech.NewPlayer(log)
		if err != nil {
			return nil, fmt.Errorf("audio player: %w", err)
		}
		cache := speech.NewAudioCache(tts.Voice(), sc.CacheDir, sc.DiskCache, speech.DefaultCacheEntries, log)
		log.Info("TTS enabled (voice=%s, region=%s)", tts.Voice(), sc.AzureRegion)
		return speech.NewAzureSpeaker(tts, cache, player, log), nil
	case config.BackendCommand:
		sp := speech.NewCommandSpeaker(sc.Command, log)
		if !sp.Ready() {
			log.Warn("speech command %q not found; announcements will be dropped", sc.Command[0])
		}
		return sp, nil
	default:
		return speech.NewLogSpeaker(log), nil
	}
}

func buildGate(gc config.GateConfig) (*gate.Gate, error) {
	mode, err := gate.ParseRingerMode(gc.RingerMode)
	if err != nil {
		return nil, err
	}
	quiet, err := gate.ParseWindow(gc.QuietHours)
	if err != nil {
		return nil, err
	}
	return gate.New(mode, gc.DoNotDisturb, quiet), nil
}
