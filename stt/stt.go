package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/EasterCompany/dex-scribe-service/interfaces"
	"google.golang.org/api/option"
)

// MaxInlineContentBytes is the Speech API's limit for audio sent inline
// rather than through a Cloud Storage URI.
const MaxInlineContentBytes = 10 << 20

// ErrInputTooLarge is returned for audio above MaxInlineContentBytes.
var ErrInputTooLarge = fmt.Errorf("transcription %w", interfaces.ErrInputTooLarge)

// recognizeFunc runs one recognition request to completion.
type recognizeFunc func(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error)

// STT is the speech-to-text client
type STT struct {
	speechClient *speech.Client
	recognize    recognizeFunc
	languageCode string
}

// New creates a new Google Cloud Speech client. An empty apiKey falls back
// to Application Default Credentials.
func New(ctx context.Context, apiKey, languageCode string) (*STT, error) {
	var opts []option.ClientOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	speechClient, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	s := &STT{speechClient: speechClient, languageCode: languageCode}
	s.recognize = func(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error) {
		op, err := speechClient.LongRunningRecognize(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("could not start recognition: %w", err)
		}
		return op.Wait(ctx)
	}
	return s, nil
}

// Close cleans up the speech client connection.
func (s *STT) Close() {
	if s.speechClient != nil {
		s.speechClient.Close()
	}
}

// Transcribe recognizes audio in a single request.
func (s *STT) Transcribe(ctx context.Context, audio interfaces.Audio) (string, error) {
	req, err := buildRequest(audio, s.languageCode)
	if err != nil {
		return "", err
	}
	resp, err := s.recognize(ctx, req)
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	transcript := joinResults(resp.GetResults())
	if transcript == "" {
		return "", errors.New("no transcription generated")
	}
	return transcript, nil
}

func buildRequest(audio interfaces.Audio, languageCode string) (*speechpb.LongRunningRecognizeRequest, error) {
	var encoding speechpb.RecognitionConfig_AudioEncoding
	switch audio.MimeType {
	case "audio/wav":
		encoding = speechpb.RecognitionConfig_LINEAR16
	case "audio/ogg":
		encoding = speechpb.RecognitionConfig_OGG_OPUS
	default:
		return nil, fmt.Errorf("unsupported audio type for transcription: %s", audio.MimeType)
	}
	if len(audio.Data) > MaxInlineContentBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrInputTooLarge, len(audio.Data))
	}
	if languageCode == "" {
		languageCode = "en-US"
	}
	return &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   encoding,
			SampleRateHertz:            int32(audio.SampleRate),
			AudioChannelCount:          int32(audio.Channels),
			LanguageCode:               languageCode,
			EnableAutomaticPunctuation: true,
			Model:                      "default",
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio.Data},
		},
	}, nil
}

func joinResults(results []*speechpb.SpeechRecognitionResult) string {
	var parts []string
	for _, r := range results {
		if alts := r.GetAlternatives(); len(alts) > 0 {
			if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, " ")
}
