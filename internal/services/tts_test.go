package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bobarin/habitcast/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps int
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps++
	return ctx.Err()
}

type fakeTTSServer struct {
	*httptest.Server
	voicesDir  string
	probes     atomic.Int32
	failProbes int32
	lastQuery  atomic.Value
	writeFile  bool
}

// newFakeTTSServer answers bare probes (after failProbes failures) and, for
// synthesis requests, writes <output>.wav into voicesDir when writeFile is set.
func newFakeTTSServer(t *testing.T, failProbes int32, writeFile bool) *fakeTTSServer {
	t.Helper()
	f := &fakeTTSServer{voicesDir: t.TempDir(), failProbes: failProbes, writeFile: writeFile}

	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate_audio", r.URL.Path)

		output := r.URL.Query().Get("output")
		if output == "" {
			if f.probes.Add(1) <= f.failProbes {
				http.Error(w, "loading model", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			return
		}

		f.lastQuery.Store(r.URL.Query())
		if f.writeFile {
			require.NoError(t, os.WriteFile(filepath.Join(f.voicesDir, output+".wav"), []byte("RIFF"), 0o644))
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(f.Server.Close)
	return f
}

func (f *fakeTTSServer) service(clock *stepClock) *TTSServerService {
	return NewTTSServerService(TTSConfig{
		BaseURL:        f.URL,
		GeneratePath:   "/generate_audio",
		VoicesDir:      f.voicesDir,
		ProjectRoot:    "/srv/habitcast",
		WarmupAttempts: 5,
		WarmupDelay:    time.Second,
		FileTimeout:    time.Second,
		FilePoll:       250 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
	}).WithClock(clock)
}

func TestOutputToken(t *testing.T) {
	token := OutputToken(models.NewDaySpecificHabit(3, "Yoga", time.Monday, "18:00", "19:00"), "2024-03-04")
	assert.Regexp(t, regexp.MustCompile(`^habit_day-specific_3_2024-03-04_[0-9a-f-]{36}$`), token)

	other := OutputToken(models.NewDaySpecificHabit(3, "Yoga", time.Monday, "18:00", "19:00"), "2024-03-04")
	assert.NotEqual(t, token, other)
}

func TestSynthesizeAfterWarmup(t *testing.T) {
	server := newFakeTTSServer(t, 2, true)
	clock := &stepClock{}

	narrator := testNarrator()
	narrator.Voice = strPtr("v2/en_speaker_6")
	narrator.SamplePath = strPtr("audio/narrator-samples/coach.wav")

	path, err := server.service(clock).Synthesize(context.Background(), narrator, "Back to work.", "habit_default_1_2024-03-04_abc")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(server.voicesDir, "habit_default_1_2024-03-04_abc.wav"), path)
	assert.FileExists(t, path)
	assert.Equal(t, int32(3), server.probes.Load())
	assert.Equal(t, 2, clock.sleeps, "one sleep per failed probe")

	q := server.lastQuery.Load().(url.Values)
	assert.Equal(t, []string{"Back to work."}, q["text"])
	assert.Equal(t, []string{"v2/en_speaker_6"}, q["speaker"])
	assert.Equal(t, []string{"/srv/habitcast/audio/narrator-samples/coach.wav"}, q["sample"])
}

func TestSynthesizeOmitsUnsetVoiceAndSample(t *testing.T) {
	server := newFakeTTSServer(t, 0, true)
	narrator := testNarrator()
	narrator.SamplePath = strPtr("/abs/sample.wav")

	_, err := server.service(&stepClock{}).Synthesize(context.Background(), narrator, "Go.", "tok")
	require.NoError(t, err)

	q := server.lastQuery.Load().(url.Values)
	_, hasSpeaker := q["speaker"]
	assert.False(t, hasSpeaker)
	assert.Equal(t, []string{"/abs/sample.wav"}, q["sample"])
}

func TestSynthesizeServerUnavailable(t *testing.T) {
	server := newFakeTTSServer(t, 100, true)
	clock := &stepClock{}

	_, err := server.service(clock).Synthesize(context.Background(), testNarrator(), "Go.", "tok")
	require.ErrorIs(t, err, models.ErrTTSServerUnavailable)
	assert.Equal(t, int32(5), server.probes.Load())
	assert.Nil(t, server.lastQuery.Load(), "no synthesis request after failed warmup")
}

func TestSynthesizeTimesOutWaitingForFile(t *testing.T) {
	server := newFakeTTSServer(t, 0, false)

	_, err := server.service(&stepClock{}).Synthesize(context.Background(), testNarrator(), "Go.", "tok")
	require.ErrorIs(t, err, models.ErrSynthesisTimeout)
}
