// Package log provides the service logger: structured console output through
// zap, with errors mirrored to a Discord log channel when one is configured.
package log

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/EasterCompany/dex-scribe-service/utils"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// discordMessageLimit keeps posted log lines under Discord's 2000 character cap.
const discordMessageLimit = 1900

// Logger is the interface every component logs through.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(context string, err error, keysAndValues ...interface{})
	Fatal(context string, err error)
	Post(msg string)
	PostInitialMessage(msg string) (*discordgo.Message, error)
	UpdateInitialMessage(messageID, content string)
	Sync() error
}

// ChannelPoster is the subset of *discordgo.Session the logger posts through.
type ChannelPoster interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEdit(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type logger struct {
	sugar     *zap.SugaredLogger
	poster    ChannelPoster
	channelID string
	mu        sync.Mutex
}

// NewLogger creates a Logger writing to stderr at the given level. When poster
// and channelID are set, errors and Post calls are mirrored to that channel.
func NewLogger(poster ChannelPoster, channelID, level string) (Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	base, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("could not build logger: %w", err)
	}
	zap.RedirectStdLog(base)

	return &logger{sugar: base.Sugar(), poster: poster, channelID: channelID}, nil
}

// NewNop returns a Logger that discards everything. Used in tests.
func NewNop() Logger {
	return &logger{sugar: zap.NewNop().Sugar()}
}

func (l *logger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *logger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Error logs err under context and mirrors a short form to the log channel.
func (l *logger) Error(context string, err error, keysAndValues ...interface{}) {
	kv := append([]interface{}{"error", err}, keysAndValues...)
	l.sugar.Errorw(context, kv...)
	l.Post(fmt.Sprintf("```\n[ERROR] %s\n%v\n```", context, err))
}

// Fatal logs an error and then exits the program.
func (l *logger) Fatal(context string, err error) {
	l.Error(context, err)
	_ = l.Sync()
	os.Exit(1)
}

// Post sends a message to the log channel.
func (l *logger) Post(msg string) {
	if l.poster == nil || l.channelID == "" {
		return
	}
	msg = utils.Truncate(msg, discordMessageLimit)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.poster.ChannelMessageSend(l.channelID, msg); err != nil {
		l.sugar.Warnw("could not post to log channel", "error", err)
	}
}

// PostInitialMessage sends a message and returns it so it can be edited later.
func (l *logger) PostInitialMessage(msg string) (*discordgo.Message, error) {
	if l.poster == nil || l.channelID == "" {
		return nil, fmt.Errorf("log channel not configured")
	}
	return l.poster.ChannelMessageSend(l.channelID, msg)
}

// UpdateInitialMessage edits a message previously sent with PostInitialMessage.
func (l *logger) UpdateInitialMessage(messageID, content string) {
	if l.poster == nil || l.channelID == "" || messageID == "" {
		return
	}
	if _, err := l.poster.ChannelMessageEdit(l.channelID, messageID, content); err != nil {
		l.sugar.Warnw("could not edit log channel message", "error", err, "message_id", messageID)
	}
}

func (l *logger) Sync() error {
	return l.sugar.Sync()
}
