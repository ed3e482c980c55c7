package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/harmony/internal/audio"
	"github.com/glizzus/harmony/internal/command"
	"github.com/glizzus/harmony/internal/config"
	"github.com/glizzus/harmony/internal/datalayer"
	"github.com/glizzus/harmony/internal/gateway"
	"github.com/glizzus/harmony/internal/generator"
	"github.com/glizzus/harmony/internal/handler"
	"github.com/glizzus/harmony/internal/interactions"
	"github.com/glizzus/harmony/internal/logger"
	"github.com/glizzus/harmony/internal/metrics"
	"github.com/glizzus/harmony/internal/opus"
	"github.com/glizzus/harmony/internal/queue"
	"github.com/glizzus/harmony/internal/repository"
	"github.com/glizzus/harmony/internal/rest"
	"github.com/glizzus/harmony/internal/schedule"
	"github.com/glizzus/harmony/internal/voice"
	"github.com/redis/go-redis/v9"
)

const (
	flowPruneInterval = time.Minute
	flowMaxAge        = 15 * time.Minute
)

type configs struct {
	discord   *config.DiscordConfig
	gateway   *config.GatewayConfig
	audio     *config.AudioConfig
	log       *config.LogConfig
	http      *config.HTTPConfig
	postgres  *config.PostgresConfig
	minio     *config.MinioConfig
	redis     *config.RedisConfig
	scheduler *config.SchedulerConfig
}

func loadConfigs() (*configs, error) {
	var (
		c   configs
		err error
	)
	if c.discord, err = config.NewDiscordConfigFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load discord config: %w", err)
	}
	if c.gateway, err = config.NewGatewayConfigFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load gateway config: %w", err)
	}
	if c.audio, err = config.NewAudioConfigFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load audio config: %w", err)
	}
	if c.log, err = config.NewLogConfig(nil); err != nil {
		return nil, fmt.Errorf("failed to load log config: %w", err)
	}
	if c.http, err = config.NewHTTPConfig(nil); err != nil {
		return nil, fmt.Errorf("failed to load http config: %w", err)
	}
	if c.postgres, err = config.NewPostgresConfigFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load postgres config: %w", err)
	}
	if c.minio, err = config.NewMinioConfigFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load minio config: %w", err)
	}
	if c.redis, err = config.NewRedisConfigFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load redis config: %w", err)
	}
	if c.scheduler, err = config.NewSchedulerConfig(nil); err != nil {
		return nil, fmt.Errorf("failed to load scheduler config: %w", err)
	}
	return &c, nil
}

// openTransport returns where voice frames are sent. The closer is nil when
// there is nothing to release.
func openTransport(cfg *config.AudioConfig) (voice.Transport, io.Closer, error) {
	switch cfg.Transport {
	case config.TransportFile:
		f, err := os.Create(cfg.OutputPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create audio output: %w", err)
		}
		return &voice.WriterTransport{W: f}, f, nil
	default:
		return &voice.DiscardTransport{}, nil, nil
	}
}

func runBotForever() error {
	if err := config.LoadEnv(); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No .env file found, continuing without it")
		} else {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	cfg, err := loadConfigs()
	if err != nil {
		return err
	}

	log := logger.New(cfg.log.Level, cfg.log.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	restClient, err := rest.New(cfg.discord.Token)
	if err != nil {
		return err
	}
	user, err := restClient.Login(ctx)
	if err != nil {
		return fmt.Errorf("failed to log in: %w", err)
	}
	log.InfoContext(ctx, "Logged in", "user", user.Username, "id", user.ID)

	pool, err := datalayer.NewPostgresPool(ctx, cfg.postgres)
	if err != nil {
		return fmt.Errorf("failed to create postgres pool: %w", err)
	}
	defer pool.Close()

	if err := datalayer.MigratePostgres(pool); err != nil {
		return fmt.Errorf("failed to migrate postgres: %w", err)
	}
	soundCrons := repository.NewPostgresSoundCronRepository(pool)

	clips, err := datalayer.NewMinioStorage(cfg.minio)
	if err != nil {
		return fmt.Errorf("failed to create minio storage: %w", err)
	}
	if err := clips.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("failed to ensure minio bucket: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.redis.Addr,
		Password: cfg.redis.Password,
		DB:       cfg.redis.DB,
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn("failed to close redis client", "error", err)
		}
	}()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	blacklist := queue.NewRedisBlacklist(rdb)

	m := metrics.New()

	gw := gateway.New(gateway.Options{
		URL:            cfg.gateway.URL,
		Intents:        discordgo.Intent(cfg.gateway.Intents),
		ConnectTimeout: cfg.gateway.ConnectTimeout,
		ReconnectDelay: cfg.gateway.ReconnectDelay,
		MaxBackoff:     cfg.gateway.MaxBackoff,
		Observer:       m,
		Logger:         log,
	})

	transport, output, err := openTransport(cfg.audio)
	if err != nil {
		return err
	}
	if output != nil {
		defer output.Close()
	}

	voiceManager := voice.NewManager(gw, gw.Inline(), transport,
		voice.WithLogger(log),
		voice.WithStageSpeaker(restClient),
		voice.WithPlayerOptions(audio.WithObserver(m), audio.WithLogger(log)),
	)
	sources := handler.FFmpegSources(audio.FFmpegOptions{Executable: cfg.audio.FFmpegPath})

	music := handler.NewMusic(handler.MusicOptions{
		State:         gw,
		Voice:         voiceManager,
		Queue:         queue.NewRedisQueue(rdb),
		Replier:       restClient,
		NewSource:     sources,
		Logger:        log,
		DefaultVolume: cfg.audio.Volume,
	})
	prefixRouter := command.NewRouter(cfg.discord.CommandPrefix, log)
	prefixRouter.SetObserver(m)
	if err := music.Register(prefixRouter); err != nil {
		return fmt.Errorf("failed to register prefix commands: %w", err)
	}
	gw.Dispatcher().AddListener(gateway.EventMessage, prefixRouter.Listener())

	encode := func(r io.Reader) (io.ReadCloser, error) {
		return opus.EncodeWith(cfg.audio.FFmpegPath, r)
	}
	flows := interactions.NewFlowManager(&generator.UUIDV7Generator{})
	slashRouter := interactions.NewRouter(restClient, flows, log)
	slashRouter.SetObserver(m)
	soundCronHandler := handler.NewSoundCronHandler(handler.SoundCronHandlerOptions{
		Repository:  soundCrons,
		Clips:       clips,
		Blacklist:   blacklist,
		Piper:       handler.NewAudioPiper(clips, nil, encode, cfg.audio.MaxClipLength),
		IDGenerator: &generator.UUIDV4Generator{},
		Logger:      log,
	})
	if err := soundCronHandler.Register(slashRouter); err != nil {
		return fmt.Errorf("failed to register slash commands: %w", err)
	}
	gw.Dispatcher().AddListener(gateway.EventInteractionCreate, slashRouter.Listener())

	if err := gw.Connect(ctx, cfg.discord.Token); err != nil {
		return fmt.Errorf("failed to connect to the gateway: %w", err)
	}
	defer func() {
		if err := gw.Disconnect(); err != nil {
			log.Warn("failed to disconnect from the gateway", "error", err)
		}
	}()

	if err := gw.AwaitReady(ctx); err != nil {
		return fmt.Errorf("gateway never became ready: %w", err)
	}
	if err := slashRouter.Sync(ctx, restClient, gw.ApplicationID(), cfg.discord.CommandGuildID()); err != nil {
		return fmt.Errorf("failed to sync commands: %w", err)
	}

	scheduler := handler.NewSoundCronScheduler(handler.SchedulerOptions{
		Jobs:      soundCrons,
		Clips:     clips,
		Blacklist: blacklist,
		Player:    handler.NewVoiceClipPlayer(gw, voiceManager, sources),
		Interval:  cfg.scheduler.PollInterval,
		Lookahead: cfg.scheduler.Lookahead,
		Logger:    log,
	})
	go scheduler.Run(ctx)

	go schedule.Poll(ctx, flowPruneInterval, func(ctx context.Context) {
		if n := flows.Prune(flowMaxAge); n > 0 {
			log.DebugContext(ctx, "Pruned idle flows", "count", n)
		}
	})

	server := newServer(cfg.http.Addr, log, m, gw, voiceManager)
	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "addr", cfg.http.Addr)
		serverErr <- server.ListenAndServe()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case <-gw.Done():
		runErr = fmt.Errorf("gateway closed: %w", gw.Err())
	case err := <-serverErr:
		runErr = fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.http.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Warn("failed to shut down http server", "error", err)
	}
	if err := voiceManager.Close(shutdownCtx); err != nil {
		log.Warn("failed to leave voice channels", "error", err)
	}
	return runErr
}

func main() {
	if err := runBotForever(); err != nil {
		log.Fatalf("failed to run bot: %v", err)
	}
}
