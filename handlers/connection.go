// Package handlers holds Discord gateway lifecycle handlers.
package handlers

import (
	logger "github.com/EasterCompany/dex-scribe-service/log"
	"github.com/EasterCompany/dex-scribe-service/utils"
	"github.com/bwmarrin/discordgo"
)

// ConnectHandler logs when the bot successfully connects to the Discord gateway.
func ConnectHandler(logger logger.Logger) func(*discordgo.Session, *discordgo.Connect) {
	return func(s *discordgo.Session, c *discordgo.Connect) {
		logger.Info("gateway connection established")
	}
}

// DisconnectHandler logs when the bot disconnects from the Discord gateway.
func DisconnectHandler(logger logger.Logger) func(*discordgo.Session, *discordgo.Disconnect) {
	return func(s *discordgo.Session, d *discordgo.Disconnect) {
		logger.Warn("gateway connection lost")
	}
}

// ResumedHandler counts gateway resumes.
func ResumedHandler(logger logger.Logger) func(*discordgo.Session, *discordgo.Resumed) {
	return func(s *discordgo.Session, r *discordgo.Resumed) {
		utils.IncrementReconnects()
		logger.Info("gateway session resumed", "metrics", utils.GetMetrics())
	}
}

// ReadyHandler logs the bot identity once the gateway is ready.
func ReadyHandler(logger logger.Logger) func(*discordgo.Session, *discordgo.Ready) {
	return func(s *discordgo.Session, r *discordgo.Ready) {
		logger.Info("discord ready", "user", r.User.Username, "guilds", len(r.Guilds))
	}
}
