package translate

import (
	"context"
	"regexp"
	"strings"
	"time"

	"anistream-proxy-go/pkg/logging"
	"anistream-proxy-go/pkg/subtitle"

	"github.com/pkg/errors"
)

// batchSeparator joins cue texts within one translation request. The
// marker survives translation untouched, which is what makes splitting
// the response back into per-cue texts possible.
const batchSeparator = "\n||||\n"

var separatorSplitPattern = regexp.MustCompile(`\s*\|\|\|\|\s*`)

// Service translates whole VTT documents in cue batches.
type Service struct {
	translator Translator
	log        *logging.Logger

	batchSize  int
	maxRetries int
	retryUnit  time.Duration
	batchDelay time.Duration
}

// NewService creates a translation service with production batching
// defaults (50 cues per batch, 3 tries, linear backoff, 200ms throttle).
func NewService(translator Translator, log *logging.Logger) *Service {
	return &Service{
		translator: translator,
		log:        log.WithComponent("translate-pipeline"),
		batchSize:  50,
		maxRetries: 3,
		retryUnit:  time.Second,
		batchDelay: 200 * time.Millisecond,
	}
}

// TranslateVTT translates every cue of a VTT document into targetLang,
// preserving cue count, order and timings. Batches are dispatched
// sequentially; a batch that exhausts its retries fails the whole
// document, so callers never see a half-translated track.
func (s *Service) TranslateVTT(ctx context.Context, vtt, targetLang string) (string, error) {
	cues := subtitle.ParseCues(vtt)
	if len(cues) == 0 {
		return "", errors.New("no cues found in subtitle document")
	}

	s.log.Info("translating cues", "count", len(cues), "target", targetLang)

	translated := make([]subtitle.Cue, 0, len(cues))

	for start := 0; start < len(cues); start += s.batchSize {
		end := min(start+s.batchSize, len(cues))
		batch := cues[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		result, err := s.translateBatch(ctx, strings.Join(texts, batchSeparator), targetLang)
		if err != nil {
			return "", errors.Wrapf(err, "batch starting at cue %d", start)
		}

		parts := separatorSplitPattern.Split(result, -1)
		for i, c := range batch {
			text := c.Text
			if i < len(parts) && strings.TrimSpace(parts[i]) != "" {
				text = strings.TrimSpace(parts[i])
			}
			translated = append(translated, subtitle.Cue{Timing: c.Timing, Text: text})
		}

		if end < len(cues) {
			select {
			case <-time.After(s.batchDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}

	s.log.Info("translation done", "cues", len(translated))
	return subtitle.BuildVTT(translated), nil
}

// translateBatch retries one batch with linear backoff.
func (s *Service) translateBatch(ctx context.Context, text, targetLang string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		result, err := s.translator.Translate(ctx, text, targetLang)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt < s.maxRetries {
			delay := time.Duration(attempt) * s.retryUnit
			s.log.Debug("batch translation failed, retrying", "attempt", attempt, "delay", delay, "error", err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", lastErr
}
