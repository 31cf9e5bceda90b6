package handlers

import (
	"testing"

	logger "github.com/EasterCompany/dex-scribe-service/log"
	"github.com/EasterCompany/dex-scribe-service/utils"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
)

func TestResumedHandler_CountsReconnects(t *testing.T) {
	before := utils.GetMetrics()["discord_reconnects"].(int64)
	ResumedHandler(logger.NewNop())(nil, &discordgo.Resumed{})
	assert.Equal(t, before+1, utils.GetMetrics()["discord_reconnects"].(int64))
}

func TestReadyHandler(t *testing.T) {
	assert.NotPanics(t, func() {
		ReadyHandler(logger.NewNop())(nil, &discordgo.Ready{User: &discordgo.User{Username: "scribe"}})
	})
}
