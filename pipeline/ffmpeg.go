package pipeline

import (
	"fmt"
	"strings"

	"github.com/EasterCompany/dex-scribe-service/audio"
)

// mergeArgs builds an ffmpeg invocation that delays each input by its offset
// and mixes them into one mono 48kHz PCM track as long as the longest input.
func mergeArgs(inputs []audio.Artifact, output string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y"}
	for _, in := range inputs {
		args = append(args, "-i", in.Path)
	}

	var filter strings.Builder
	for i, in := range inputs {
		ms := in.Offset.Milliseconds()
		fmt.Fprintf(&filter, "[%d:a]adelay=%d:all=1[a%d];", i, ms, i)
	}
	for i := range inputs {
		fmt.Fprintf(&filter, "[a%d]", i)
	}
	fmt.Fprintf(&filter, "amix=inputs=%d:duration=longest:dropout_transition=0[out]", len(inputs))

	args = append(args,
		"-filter_complex", filter.String(),
		"-map", "[out]",
		"-ac", "1",
		"-ar", "48000",
		"-acodec", "pcm_s16le",
		output,
	)
	return args
}

// transcodeArgs builds an ffmpeg invocation producing a VBR mp3.
func transcodeArgs(input, output string, quality int) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", input,
		"-codec:a", "libmp3lame",
		"-qscale:a", fmt.Sprintf("%d", quality),
		output,
	}
}

// downsampleArgs builds an ffmpeg invocation producing mono Opus at rate, the
// smallest input the speech service accepts inline for a long meeting.
func downsampleArgs(input, output string, rate int) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", input,
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", rate),
		"-c:a", "libopus",
		"-b:a", "24k",
		"-application", "voip",
		output,
	}
}
