package cli

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/EasterCompany/dex-scribe-service/config"
)

// ANSI color codes for formatted output
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
)

type checkLevel int

const (
	levelOK checkLevel = iota
	levelWarn
	levelFail
)

type check struct {
	Section string
	Level   checkLevel
	Message string
}

func newVerifyConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-config",
		Short: "Check the configuration and external prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s--- Scribe Config Verifier ---%s\n", colorBlue, colorReset)

			cfg, err := config.LoadUnvalidated(opts.configPath)
			if err != nil {
				fmt.Fprintf(out, "  %s[FAIL]%s %v\n", colorRed, colorReset, err)
				return err
			}

			checks := verifyConfig(cfg, exec.LookPath, fileExists)
			if !printChecks(out, checks) {
				fmt.Fprintf(out, "%s❌ Some issues were found in the configuration.%s\n", colorRed, colorReset)
				return fmt.Errorf("configuration has errors")
			}
			fmt.Fprintf(out, "%s✅ Configuration seems correct.%s\n", colorGreen, colorReset)
			return nil
		},
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// verifyConfig reports on every section. A failing Validate is a FAIL; missing
// optional features are warnings.
func verifyConfig(cfg *config.AllConfig, lookPath func(string) (string, error), exists func(string) bool) []check {
	var checks []check
	add := func(section string, level checkLevel, format string, args ...interface{}) {
		checks = append(checks, check{Section: section, Level: level, Message: fmt.Sprintf(format, args...)})
	}

	if err := cfg.Validate(); err != nil {
		add("config", levelFail, "%v", err)
	} else {
		add("config", levelOK, "all required settings are present")
	}

	if cfg.Discord.NotesChannelID == "" {
		add("discord", levelWarn, "notes_channel_id is empty, summaries will only be logged")
	} else {
		add("discord", levelOK, "summaries post to %s", cfg.Discord.NotesChannelID)
	}
	if cfg.Discord.LogChannelID == "" {
		add("discord", levelWarn, "log_channel_id is empty, errors stay on the console")
	}

	if path, err := lookPath(cfg.Pipeline.FFmpegPath); err != nil {
		add("pipeline", levelFail, "%s not found on PATH", cfg.Pipeline.FFmpegPath)
	} else {
		add("pipeline", levelOK, "ffmpeg at %s", path)
	}

	if cfg.SummaryEnabled() {
		add("summary", levelOK, "model %s, mode %s", cfg.Summary.Model, cfg.Summary.Mode)
	} else {
		add("summary", levelFail, "api_key not set. Set SCRIBE_SUMMARY_API_KEY or GEMINI_API_KEY")
	}

	switch {
	case !cfg.Speech.Enabled:
		add("speech", levelOK, "disabled")
	case cfg.Speech.APIKey == "":
		add("speech", levelWarn, "no api_key, using application default credentials")
	default:
		add("speech", levelOK, "language %s", cfg.Speech.LanguageCode)
	}

	switch {
	case !cfg.Upload.Enabled:
		add("upload", levelOK, "disabled")
	case !exists(cfg.Upload.CredentialsFile):
		add("upload", levelFail, "credentials file %s not readable", cfg.Upload.CredentialsFile)
	default:
		add("upload", levelOK, "uploading to folder %q", cfg.Upload.FolderID)
	}

	if cfg.Cache.Addr == "" {
		add("cache", levelWarn, "no addr, orphaned sessions are not tracked across restarts")
	} else {
		add("cache", levelOK, "redis at %s", cfg.Cache.Addr)
	}

	return checks
}

func printChecks(out io.Writer, checks []check) bool {
	ok := true
	section := ""
	for _, c := range checks {
		if c.Section != section {
			section = c.Section
			fmt.Fprintf(out, "\nVerifying %s'%s'%s...\n", colorBlue, section, colorReset)
		}
		switch c.Level {
		case levelOK:
			fmt.Fprintf(out, "  %s[OK]%s %s\n", colorGreen, colorReset, c.Message)
		case levelWarn:
			fmt.Fprintf(out, "  %s[WARN]%s %s\n", colorYellow, colorReset, c.Message)
		default:
			fmt.Fprintf(out, "  %s[FAIL]%s %s\n", colorRed, colorReset, c.Message)
			ok = false
		}
	}
	fmt.Fprintln(out, "\n--------------------------")
	return ok
}
