package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EasterCompany/dex-scribe-service/config"
)

func TestNewApp_RequiresSummarizer(t *testing.T) {
	cfg := &config.AllConfig{
		Discord: &config.DiscordConfig{Token: "t", TargetUserID: "u1"},
		Summary: &config.SummaryConfig{Mode: config.ModeAudio},
	}
	a, err := NewApp(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, a)
	assert.Contains(t, err.Error(), "summary.api_key")
}
