package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/bobarin/habitcast/internal/models"
	"github.com/bobarin/habitcast/internal/retry"
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Synthesizer: common interface for the text-to-speech backend.
// The backend never returns audio bytes. It writes <token>.wav into a shared
// directory and the synthesizer waits for that file to appear.
// ---------------------------------------------------------------------------

type Synthesizer interface {
	// Synthesize returns the absolute path of the produced wav file.
	Synthesize(ctx context.Context, narrator *models.Narrator, script, token string) (string, error)
}

// OutputToken names one synthesis request: habit_<type>_<id>_<isoDate>_<uuid>.
func OutputToken(habit models.Habit, isoDate string) string {
	return fmt.Sprintf("habit_%s_%d_%s_%s", habit.Type, habit.ID, isoDate, uuid.NewString())
}

type TTSConfig struct {
	BaseURL        string
	GeneratePath   string
	VoicesDir      string
	ProjectRoot    string
	WarmupAttempts int
	WarmupDelay    time.Duration
	FileTimeout    time.Duration
	FilePoll       time.Duration
	RequestTimeout time.Duration
}

// TTSServerService talks to a local TTS server over plain GET requests.
type TTSServerService struct {
	cfg    TTSConfig
	client *http.Client
	clock  retry.Clock
}

var _ Synthesizer = (*TTSServerService)(nil)

func NewTTSServerService(cfg TTSConfig) *TTSServerService {
	return &TTSServerService{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		clock:  retry.RealClock,
	}
}

// WithClock replaces the clock used by both polling loops.
func (s *TTSServerService) WithClock(clock retry.Clock) *TTSServerService {
	s.clock = clock
	return s
}

func (s *TTSServerService) generateURL() string {
	return s.cfg.BaseURL + s.cfg.GeneratePath
}

// EnsureReady probes the generate endpoint until it answers with a 2xx.
func (s *TTSServerService) EnsureReady(ctx context.Context) error {
	policy := retry.Policy{
		Attempts: s.cfg.WarmupAttempts,
		Delay:    s.cfg.WarmupDelay,
		Clock:    s.clock,
	}

	attempts := max(policy.Attempts, 1)
	err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		if err := s.get(ctx, s.generateURL()); err != nil {
			log.Printf("[TTS] Server check failed (attempt %d/%d): %v", attempt, attempts, err)
			return err
		}
		if attempt > 1 {
			log.Printf("[TTS] Server responded after %d attempts", attempt)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", models.ErrTTSServerUnavailable, err)
	}
	return nil
}

func (s *TTSServerService) Synthesize(ctx context.Context, narrator *models.Narrator, script, token string) (string, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("text", script)
	params.Set("output", token)
	speaker := "default"
	if narrator.Voice != nil && *narrator.Voice != "" {
		speaker = *narrator.Voice
		params.Set("speaker", speaker)
	}
	sample := "none"
	if narrator.SamplePath != nil && *narrator.SamplePath != "" {
		sample = s.resolveSample(*narrator.SamplePath)
		params.Set("sample", sample)
	}

	log.Printf("[TTS] Triggering synthesis token=%s speaker=%s sample=%s", token, speaker, sample)
	if err := s.get(ctx, s.generateURL()+"?"+params.Encode()); err != nil {
		return "", fmt.Errorf("tts synthesis request failed: %w", err)
	}

	path := filepath.Join(s.cfg.VoicesDir, token+".wav")
	if err := retry.WaitForFile(ctx, path, s.cfg.FileTimeout, s.cfg.FilePoll, s.clock); err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			return "", fmt.Errorf("%w: %s", models.ErrSynthesisTimeout, path)
		}
		return "", err
	}

	log.Printf("[TTS] Detected synthesized file at %s", path)
	return path, nil
}

// resolveSample anchors relative sample paths at the project root.
func (s *TTSServerService) resolveSample(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.cfg.ProjectRoot, p)
}

func (s *TTSServerService) get(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create TTS request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("TTS server returned status %d: %s", resp.StatusCode, string(body))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
