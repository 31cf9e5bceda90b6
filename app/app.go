// Package app wires the service together and runs it until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/EasterCompany/dex-scribe-service/audio"
	"github.com/EasterCompany/dex-scribe-service/cache"
	"github.com/EasterCompany/dex-scribe-service/cleanup"
	"github.com/EasterCompany/dex-scribe-service/config"
	"github.com/EasterCompany/dex-scribe-service/constants"
	"github.com/EasterCompany/dex-scribe-service/events"
	"github.com/EasterCompany/dex-scribe-service/handlers"
	"github.com/EasterCompany/dex-scribe-service/health"
	"github.com/EasterCompany/dex-scribe-service/interfaces"
	"github.com/EasterCompany/dex-scribe-service/llm"
	logger "github.com/EasterCompany/dex-scribe-service/log"
	"github.com/EasterCompany/dex-scribe-service/pipeline"
	"github.com/EasterCompany/dex-scribe-service/reporting"
	"github.com/EasterCompany/dex-scribe-service/session"
	"github.com/EasterCompany/dex-scribe-service/stt"
	"github.com/EasterCompany/dex-scribe-service/summary"
	"github.com/EasterCompany/dex-scribe-service/system"
	"github.com/EasterCompany/dex-scribe-service/upload"
	"github.com/EasterCompany/dex-scribe-service/utils"
	"github.com/EasterCompany/dex-scribe-service/voice"
	"github.com/EasterCompany/dex-scribe-service/worker"
	"github.com/bwmarrin/discordgo"
)

type App struct {
	Config      *config.AllConfig
	Session     *discordgo.Session
	Logger      logger.Logger
	Cache       *cache.DB
	Summarizer  *llm.Client
	Transcriber *stt.STT
	Uploader    *upload.Drive
	Recorder    *audio.Recorder
	Controller  *events.Controller
	Workers     *worker.WorkerPool

	cacheErr  error
	speechErr error
	driveErr  error
}

// NewApp builds every component from cfg. Optional collaborators that fail
// to initialize are logged and left out.
func NewApp(ctx context.Context, cfg *config.AllConfig) (*App, error) {
	if !cfg.SummaryEnabled() {
		return nil, fmt.Errorf("summary.api_key (or GEMINI_API_KEY) is required to run")
	}

	s, err := session.NewSession(cfg.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}

	appLogger, err := logger.NewLogger(s, cfg.Discord.LogChannelID, cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Session: s, Logger: appLogger}

	a.Cache, a.cacheErr = cache.New(ctx, cfg.Cache)
	if a.cacheErr != nil {
		appLogger.Error("Failed to initialize session cache", a.cacheErr)
	}

	a.Summarizer, err = llm.NewClient(ctx, cfg.Summary.APIKey, cfg.Summary.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize summarizer: %w", err)
	}

	if cfg.Speech.Enabled {
		a.Transcriber, a.speechErr = stt.New(ctx, cfg.Speech.APIKey, cfg.Speech.LanguageCode)
		if a.speechErr != nil {
			if cfg.Summary.Mode == config.ModeTranscript {
				return nil, fmt.Errorf("failed to initialize speech client: %w", a.speechErr)
			}
			appLogger.Error("Failed to initialize speech client", a.speechErr)
		}
	}

	if cfg.Upload.Enabled {
		a.Uploader, a.driveErr = upload.NewDrive(ctx, cfg.Upload.CredentialsFile, cfg.Upload.FolderID)
		if a.driveErr != nil {
			appLogger.Error("Failed to initialize drive uploader", a.driveErr)
		}
	}

	a.Recorder = audio.NewRecorder(cfg.Recording.WorkDir, cfg.Recording.FlushGrace,
		audio.OggSinkFactory(cfg.Recording.SampleRate, cfg.Recording.Channels), appLogger)
	a.Recorder.FreeBytes = system.FreeBytes
	a.Recorder.MinFreeBytes = cfg.Recording.MinFreeBytes

	a.Workers = worker.New(cfg.Summary.Workers, cfg.Summary.QueueSize, a.newChain(), appLogger)

	gateway := voice.NewDiscordGateway(s, appLogger, cfg.Discord.SelfMute, cfg.Discord.SelfDeaf)
	gateway.ReadyTimeout = cfg.Recording.ReadyTimeout
	a.Controller = events.NewController(gateway, a.Recorder, a.Workers, events.Options{
		ReadyTimeout:   cfg.Recording.ReadyTimeout,
		RecoveryWindow: cfg.Recording.RecoveryWindow,
		MaxDuration:    cfg.Recording.MaxDuration,
		WorkDir:        cfg.Recording.WorkDir,
	}, appLogger)
	a.Controller.ChannelName = a.channelName
	if a.Cache != nil {
		a.Controller.Store = a.Cache
	}

	return a, nil
}

func (a *App) newChain() *worker.Chain {
	cfg := a.Config
	var transcriber interfaces.Transcriber
	if a.Transcriber != nil {
		transcriber = a.Transcriber
	}
	orchestrator := summary.NewOrchestrator(a.Summarizer, transcriber, summary.Options{
		Mode:        cfg.Summary.Mode,
		MinDuration: cfg.Summary.MinDuration,
		SampleRate:  int(cfg.Recording.SampleRate),
		Channels:    int(cfg.Recording.Channels),
		Retry: utils.RetryPolicy{
			Attempts:  cfg.Summary.Attempts,
			BaseDelay: cfg.Summary.BaseDelay,
			Jitter:    cfg.Summary.Jitter,
		},
	}, a.Logger)

	pipelineOpts := pipeline.Options{
		FFmpegPath:       cfg.Pipeline.FFmpegPath,
		MinArtifactBytes: cfg.Pipeline.MinArtifactBytes,
		NearEmptyBytes:   cfg.Pipeline.NearEmptyBytes,
		MaxSummaryBytes:  cfg.Pipeline.MaxSummaryBytes,
		Quality:          cfg.Pipeline.Quality,
	}
	if cfg.Summary.Mode == config.ModeTranscript {
		pipelineOpts.TranscriptSampleRate = cfg.Pipeline.TranscriptSampleRate
	}

	chain := &worker.Chain{
		Pipeline:        pipeline.NewProcessor(pipeline.NewCommandExecutor(), pipelineOpts, a.Logger),
		Summary:         orchestrator,
		Notifier:        reporting.NewNotifier(a.Session, cfg.Discord.NotesChannelID, a.Logger),
		KeepArtifacts:   cfg.Recording.KeepArtifacts,
		PipelineTimeout: cfg.Pipeline.Timeout,
		Logger:          a.Logger,
	}
	if a.Uploader != nil {
		chain.Uploader = a.Uploader
	}
	return chain
}

func (a *App) channelName(roomID string) string {
	if ch, err := a.Session.State.Channel(roomID); err == nil && ch.Name != "" {
		return ch.Name
	}
	if ch, err := a.Session.Channel(roomID); err == nil && ch.Name != "" {
		return ch.Name
	}
	return roomID
}

// Run connects to Discord, posts the boot report and follows the target
// until ctx is cancelled. It then shuts everything down in order.
func (a *App) Run(ctx context.Context) error {
	// Sweep before any presence event can start a session of our own.
	var store cleanup.SnapshotStore
	if a.Cache != nil {
		store = a.Cache
	}
	swept := cleanup.SweepOrphans(ctx, store, a.Config.Recording.WorkDir, a.Controller.HoldsSession, a.Logger)

	handler := events.NewHandler(a.Config.Discord.TargetUserID, a.Controller, a.Logger)
	a.Session.AddHandler(handler.VoiceStateUpdate)
	a.Session.AddHandler(handlers.ConnectHandler(a.Logger))
	a.Session.AddHandler(handlers.DisconnectHandler(a.Logger))
	a.Session.AddHandler(handlers.ResumedHandler(a.Logger))
	a.Session.AddHandler(handlers.ReadyHandler(a.Logger))

	a.Workers.Start(context.WithoutCancel(ctx))

	if err := a.Session.Open(); err != nil {
		return fmt.Errorf("error opening connection to Discord: %w", err)
	}

	boot := reporting.NewBootMessage(a.Logger)
	boot.PostInitialMessage()
	boot.Done(constants.BootStepDiscord)
	a.reportClients(boot)

	boot.Done(constants.BootStepCleanup)

	report := &reporting.StatusReport{
		Services:      a.serviceStatus(ctx),
		SweptSessions: swept.Count,
		TargetUserID:  a.Config.Discord.TargetUserID,
	}
	reporting.CollectHostStatus(report, a.Config.Recording.WorkDir, a.Logger)
	reporting.PostFinalStatus(boot, report, a.Logger)

	a.Logger.Info("scribe is running", "target_user_id", a.Config.Discord.TargetUserID)
	<-ctx.Done()
	return a.Shutdown(context.Background())
}

func (a *App) reportClients(boot *reporting.BootMessage) {
	switch {
	case a.Cache != nil:
		boot.Done(constants.BootStepCache)
	case a.cacheErr != nil:
		boot.Skipped(constants.BootStepCache, "unreachable")
	default:
		boot.Skipped(constants.BootStepCache, "not configured")
	}

	boot.Done(constants.BootStepSummarizer)

	if a.Config.Speech.Enabled {
		if a.Transcriber != nil {
			boot.Done(constants.BootStepSpeech)
		} else {
			boot.Skipped(constants.BootStepSpeech, "failed")
		}
	}
	if a.Config.Upload.Enabled {
		if a.Uploader != nil {
			boot.Done(constants.BootStepDrive)
		} else {
			boot.Skipped(constants.BootStepDrive, "failed")
		}
	}
}

func (a *App) serviceStatus(ctx context.Context) reporting.ServiceStatus {
	var pinger health.Pinger
	if a.Cache != nil {
		pinger = a.Cache
	}
	return reporting.ServiceStatus{
		Discord:    health.GetDiscordStatus(a.Session),
		Cache:      health.GetCacheStatus(ctx, pinger, a.Config.Cache.Addr),
		FFmpeg:     health.GetFFmpegStatus(a.Config.Pipeline.FFmpegPath),
		Summarizer: health.GetClientStatus(true, nil),
		Speech:     health.GetClientStatus(a.Config.Speech.Enabled, a.speechErr),
		Drive:      health.GetClientStatus(a.Config.Upload.Enabled, a.driveErr),
	}
}

// Shutdown tears down live sessions, drains the worker pool and closes the
// Discord session and clients.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down")
	var errs []error

	tctx, cancel := context.WithTimeout(ctx, a.Config.Recording.ReadyTimeout+a.Config.Recording.FlushGrace*4)
	if err := a.Controller.Shutdown(tctx); err != nil {
		errs = append(errs, fmt.Errorf("controller shutdown: %w", err))
	}
	cancel()

	wctx, cancel := context.WithTimeout(ctx, a.Config.Pipeline.Timeout)
	if err := a.Workers.Stop(wctx); err != nil {
		errs = append(errs, fmt.Errorf("worker drain: %w", err))
	}
	cancel()

	if err := a.Session.Close(); err != nil {
		errs = append(errs, err)
	}
	if a.Transcriber != nil {
		a.Transcriber.Close()
	}
	if a.Cache != nil {
		_ = a.Cache.Close()
	}
	a.Logger.Info("shutdown complete", "metrics", utils.GetMetrics())
	_ = a.Logger.Sync()
	return errors.Join(errs...)
}
