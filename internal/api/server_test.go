package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/newsroom/internal/orchestrator"
	"github.com/apresai/newsroom/internal/profile"
	"github.com/apresai/newsroom/internal/progress"
	"github.com/apresai/newsroom/internal/script"
	"github.com/apresai/newsroom/internal/store"
)

type stubPipeline struct {
	scripts map[string]*script.Script
}

func (f *stubPipeline) Produce(ctx context.Context, job *store.Job, emit progress.Callback) (*script.Script, error) {
	sc := &script.Script{
		EpisodeID: "tech-daily-20260314",
		Title:     "Tech Daily - March 14, 2026",
		Date:      time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Segments: []script.Segment{{
			Title: "Chips",
			Lines: []script.DialogueLine{{Speaker: "alex", Text: "Hello."}},
		}},
	}
	f.scripts[sc.EpisodeID] = sc
	return sc, nil
}

func (f *stubPipeline) Finish(ctx context.Context, job *store.Job, sc *script.Script, emit progress.Callback) (string, error) {
	return sc.EpisodeID, nil
}

func (f *stubPipeline) LoadScript(episodeID string) (*script.Script, error) {
	return f.scripts[episodeID], nil
}

func (f *stubPipeline) SaveScript(sc *script.Script) error {
	f.scripts[sc.EpisodeID] = sc
	return nil
}

type stubFactory struct{ pipe *stubPipeline }

func (f *stubFactory) New(ctx context.Context, p *profile.Profile, opts store.Options) (orchestrator.Pipeline, error) {
	return f.pipe, nil
}

func testServer(t *testing.T) (http.Handler, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.SaveProfile(context.Background(), &profile.Profile{
		ID:   "p1",
		Name: "Tech Daily",
	}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := &stubFactory{pipe: &stubPipeline{scripts: make(map[string]*script.Script)}}
	orch := orchestrator.New(st, factory, 5, logger, context.Background())
	srv := NewServer(st, orch, "https://pods.example.com/", logger)
	return srv.Router(), st
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func startJob(t *testing.T, h http.Handler, body string) string {
	t.Helper()
	w := doJSON(t, h, http.MethodPost, "/jobs", body)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["jobId"])
	return resp["jobId"]
}

func waitForJobState(t *testing.T, st *store.Store, jobID, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		job, err := st.GetJob(context.Background(), jobID)
		require.NoError(t, err)
		return job != nil && job.State == want
	}, 5*time.Second, 20*time.Millisecond)
}

func TestCreateJobValidation(t *testing.T) {
	h, _ := testServer(t)

	w := doJSON(t, h, http.MethodPost, "/jobs", `{"options":{}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodPost, "/jobs", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodPost, "/jobs", `{"profileId":"missing"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJobStatusSnapshot(t *testing.T) {
	h, st := testServer(t)

	id := startJob(t, h, `{"profileId":"p1"}`)
	waitForJobState(t, st, id, store.StateCompleted)

	w := doJSON(t, h, http.MethodGet, "/jobs/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var snap struct {
		JobID           string   `json:"jobId"`
		Status          string   `json:"status"`
		CurrentStage    string   `json:"currentStage"`
		ProgressPercent int      `json:"progressPercent"`
		StagesCompleted []string `json:"stagesCompleted"`
		StagesPending   []string `json:"stagesPending"`
		CurrentActivity string   `json:"currentActivity"`
		EpisodeID       string   `json:"episodeId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, id, snap.JobID)
	assert.Equal(t, "completed", snap.Status)
	assert.Equal(t, "done", snap.CurrentStage)
	assert.Equal(t, 100, snap.ProgressPercent)
	assert.Equal(t, "tech-daily-20260314", snap.EpisodeID)
	assert.NotEmpty(t, snap.CurrentActivity)
	// Slices serialize as arrays even when empty.
	assert.Contains(t, w.Body.String(), `"stagesPending":[`)
}

func TestJobStatusNotFound(t *testing.T) {
	h, _ := testServer(t)
	w := doJSON(t, h, http.MethodGet, "/jobs/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelConflict(t *testing.T) {
	h, st := testServer(t)

	id := startJob(t, h, `{"profileId":"p1"}`)
	waitForJobState(t, st, id, store.StateCompleted)

	w := doJSON(t, h, http.MethodPost, "/jobs/"+id+"/cancel", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestApproveFlow(t *testing.T) {
	h, st := testServer(t)

	id := startJob(t, h, `{"profileId":"p1","options":{"editorialReview":true}}`)
	waitForJobState(t, st, id, store.StateWaitingForReview)

	// Empty body approves the script as written.
	w := doJSON(t, h, http.MethodPost, "/jobs/"+id+"/approve", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	waitForJobState(t, st, id, store.StateCompleted)
}

func TestApproveConflictAndNotFound(t *testing.T) {
	h, st := testServer(t)

	id := startJob(t, h, `{"profileId":"p1"}`)
	waitForJobState(t, st, id, store.StateCompleted)

	w := doJSON(t, h, http.MethodPost, "/jobs/"+id+"/approve", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, h, http.MethodPost, "/jobs/nope/approve", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListEpisodes(t *testing.T) {
	h, st := testServer(t)
	ctx := context.Background()

	require.NoError(t, st.SaveEpisode(ctx, &store.Episode{
		ID:              "ep1",
		ProfileID:       "p1",
		Title:           "Episode One",
		Date:            time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		AudioPath:       "/tmp/ep1.mp3",
		DurationSeconds: 900,
	}, nil))

	w := doJSON(t, h, http.MethodGet, "/profiles/p1/episodes", "")
	require.Equal(t, http.StatusOK, w.Code)

	var out []struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		Status   string `json:"status"`
		HasAudio bool   `json:"hasAudio"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "ep1", out[0].ID)
	assert.Equal(t, store.EpisodeStatusDraft, out[0].Status)
	assert.True(t, out[0].HasAudio)

	// Unknown profiles return an empty list, not an error.
	w = doJSON(t, h, http.MethodGet, "/profiles/ghost/episodes", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestEpisodeFeed(t *testing.T) {
	h, st := testServer(t)

	require.NoError(t, st.SaveEpisode(context.Background(), &store.Episode{
		ID:              "ep1",
		ProfileID:       "p1",
		Title:           "Episode One",
		Date:            time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Status:          store.EpisodeStatusPublished,
		DurationSeconds: 900,
	}, nil))
	require.NoError(t, st.SaveEpisode(context.Background(), &store.Episode{
		ID:        "ep2",
		ProfileID: "p1",
		Title:     "Still in Review",
		Date:      time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
	}, nil))

	w := doJSON(t, h, http.MethodGet, "/episodes/ep1/feed.xml", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/rss+xml; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "<itunes:duration>00:15:00</itunes:duration>")
	assert.Contains(t, w.Body.String(), "https://pods.example.com/episodes/ep1/audio")

	// Draft episodes stay out of the feed.
	w = doJSON(t, h, http.MethodGet, "/episodes/ep2/feed.xml", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, h, http.MethodGet, "/episodes/nope/feed.xml", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEpisodeAudio(t *testing.T) {
	h, st := testServer(t)
	ctx := context.Background()

	audioPath := filepath.Join(t.TempDir(), "ep1.mp3")
	require.NoError(t, os.WriteFile(audioPath, []byte("fake mp3 bytes"), 0644))

	require.NoError(t, st.SaveEpisode(ctx, &store.Episode{
		ID:        "ep1",
		ProfileID: "p1",
		Title:     "Episode One",
		Date:      time.Now(),
		AudioPath: audioPath,
	}, nil))
	require.NoError(t, st.SaveEpisode(ctx, &store.Episode{
		ID:        "ep2",
		ProfileID: "p1",
		Title:     "No Audio",
		Date:      time.Now(),
	}, nil))

	w := doJSON(t, h, http.MethodGet, "/episodes/ep1/audio", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fake mp3 bytes", w.Body.String())

	// Each download bumps the play counter.
	ep, err := st.GetEpisode(ctx, "ep1")
	require.NoError(t, err)
	assert.Equal(t, 1, ep.PlayCount)

	w = doJSON(t, h, http.MethodGet, "/episodes/ep2/audio", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
