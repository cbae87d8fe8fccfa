package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/newsroom/internal/content"
	"github.com/apresai/newsroom/internal/profile"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testProfile() *profile.Profile {
	until := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	return &profile.Profile{
		ID:                "p1",
		Name:              "Tech Daily",
		Tone:              "casual",
		Audience:          "developers",
		TargetDurationMin: 15,
		TopicCount:        4,
		Hosts: []profile.Host{
			{Name: "Alex", Persona: "optimist", VoiceID: "v1", Expertise: []string{"ai"}},
			{Name: "Sam", Persona: "skeptic", VoiceID: "v2"},
		},
		Sources: []profile.ContentSource{
			{ID: "s1", Kind: content.KindRSS, Name: "feeds", Config: json.RawMessage(`{"urls":["https://a.com/rss"]}`), Priority: 8, Credibility: 0.9, Active: true},
			{ID: "s2", Kind: content.KindForum, Name: "forum", Config: json.RawMessage(`{}`), Priority: 5, Credibility: 0.6, Active: false},
		},
		Avoidance: []profile.AvoidanceRule{
			{Keyword: "crypto", Kind: profile.AvoidPermanent},
			{Keyword: "layoffs", Kind: profile.AvoidTemporary, Until: &until},
			{Keyword: "elections", Kind: profile.AvoidReduceFrequency, MinDaysBetween: 7},
		},
		Schedule: profile.Schedule{Enabled: true, Hour: 6, Minute: 30, Timezone: "UTC"},
	}
}

func TestProfileRoundtrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveProfile(ctx, testProfile()))

	got, err := s.GetProfile(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "Tech Daily", got.Name)
	assert.Equal(t, 15, got.TargetDurationMin)
	require.Len(t, got.Hosts, 2)
	assert.Equal(t, "Alex", got.Hosts[0].Name)
	assert.Equal(t, []string{"ai"}, got.Hosts[0].Expertise)
	require.Len(t, got.Sources, 2)
	assert.Equal(t, content.KindRSS, got.Sources[0].Kind)
	assert.True(t, got.Sources[0].Active)
	require.Len(t, got.Avoidance, 3)
	assert.Equal(t, profile.AvoidTemporary, got.Avoidance[1].Kind)
	require.NotNil(t, got.Avoidance[1].Until)
	assert.Equal(t, 7, got.Avoidance[2].MinDaysBetween)
	assert.True(t, got.Schedule.Enabled)
}

func TestProfileUpsertReplacesChildren(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	p := testProfile()
	require.NoError(t, s.SaveProfile(ctx, p))

	p.Hosts = p.Hosts[:1]
	p.Avoidance = nil
	require.NoError(t, s.SaveProfile(ctx, p))

	got, err := s.GetProfile(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, got.Hosts, 1)
	assert.Empty(t, got.Avoidance)
}

func TestSourceIDsScopedToProfile(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// Two profiles may reuse the same natural source id.
	a := testProfile()
	a.Sources = []profile.ContentSource{
		{ID: "rss-main", Kind: content.KindRSS, Name: "a-feeds", Config: json.RawMessage(`{}`), Active: true},
	}
	require.NoError(t, s.SaveProfile(ctx, a))

	b := testProfile()
	b.ID = "p2"
	b.Sources = []profile.ContentSource{
		{ID: "rss-main", Kind: content.KindRSS, Name: "b-feeds", Config: json.RawMessage(`{}`), Active: true},
	}
	require.NoError(t, s.SaveProfile(ctx, b))

	got, err := s.GetProfile(ctx, "p2")
	require.NoError(t, err)
	require.Len(t, got.Sources, 1)
	assert.Equal(t, "rss-main", got.Sources[0].ID)
	assert.Equal(t, "b-feeds", got.Sources[0].Name)

	got, err = s.GetProfile(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, got.Sources, 1)
	assert.Equal(t, "a-feeds", got.Sources[0].Name)
}

func TestGetProfileMissing(t *testing.T) {
	s := testStore(t)
	got, err := s.GetProfile(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestScheduledProfiles(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	enabled := testProfile()
	require.NoError(t, s.SaveProfile(ctx, enabled))

	disabled := testProfile()
	disabled.ID = "p2"
	disabled.Schedule.Enabled = false
	require.NoError(t, s.SaveProfile(ctx, disabled))

	got, err := s.ScheduledProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ID)
}

func TestSetLastScheduledRun(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveProfile(ctx, testProfile()))

	at := time.Date(2026, 3, 14, 6, 30, 0, 0, time.UTC)
	require.NoError(t, s.SetLastScheduledRun(ctx, "p1", at))

	got, err := s.GetProfile(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got.Schedule.LastRun)
	assert.True(t, got.Schedule.LastRun.Equal(at))
}

func TestJobLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveProfile(ctx, testProfile()))

	job := &Job{
		ID:            "job1",
		ProfileID:     "p1",
		State:         StatePending,
		Stage:         "initializing",
		Progress:      5,
		StagesPending: []string{"aggregation", "clustering"},
		Options:       Options{TopicCount: 3, EditorialReview: true},
	}
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJob(ctx, "job1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatePending, got.State)
	assert.Equal(t, 3, got.Options.TopicCount)
	assert.True(t, got.Options.EditorialReview)
	assert.Equal(t, []string{"aggregation", "clustering"}, got.StagesPending)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)

	// Frozen option defaults survive the roundtrip.
	assert.True(t, got.Options.Continuity())
	assert.True(t, got.Options.Audio())

	now := time.Now().UTC()
	got.State = StateRunning
	got.Stage = "aggregation"
	got.Progress = 20
	got.StartedAt = &now
	got.MarkStageDone("aggregation")
	got.Log("aggregation", "Fetched 42 items")
	require.NoError(t, s.UpdateJob(ctx, got))

	got2, err := s.GetJob(ctx, "job1")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, got2.State)
	assert.Equal(t, []string{"aggregation"}, got2.StagesCompleted)
	assert.Equal(t, []string{"clustering"}, got2.StagesPending)
	require.NotNil(t, got2.StartedAt)
	require.Len(t, got2.Activity, 1)
	assert.Equal(t, "Fetched 42 items", got2.Activity[0].Message)
}

func TestGetJobMissing(t *testing.T) {
	s := testStore(t)
	got, err := s.GetJob(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMarkStageDoneIdempotent(t *testing.T) {
	job := &Job{StagesPending: []string{"a", "b"}}
	job.MarkStageDone("a")
	job.MarkStageDone("a")
	assert.Equal(t, []string{"a"}, job.StagesCompleted)
	assert.Equal(t, []string{"b"}, job.StagesPending)

	// Completed and pending never overlap.
	for _, done := range job.StagesCompleted {
		assert.NotContains(t, job.StagesPending, done)
	}
}

func TestActivityLogTrimmed(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveProfile(ctx, testProfile()))

	job := &Job{ID: "job1", ProfileID: "p1", State: StateRunning, Stage: "research"}
	require.NoError(t, s.CreateJob(ctx, job))

	for i := 0; i < 250; i++ {
		job.Log("research", fmt.Sprintf("entry %d", i))
	}
	require.NoError(t, s.UpdateJob(ctx, job))

	got, err := s.GetJob(ctx, "job1")
	require.NoError(t, err)
	require.Len(t, got.Activity, 200)
	// The newest entries win.
	assert.Equal(t, "entry 249", got.Activity[199].Message)
	assert.Equal(t, "entry 50", got.Activity[0].Message)
}

func TestTransitionJob(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveProfile(ctx, testProfile()))

	job := &Job{ID: "job1", ProfileID: "p1", State: StatePending, Stage: "initializing"}
	require.NoError(t, s.CreateJob(ctx, job))

	ok, err := s.TransitionJob(ctx, "job1", StateCancelled, StatePending, StateRunning)
	require.NoError(t, err)
	assert.True(t, ok)

	// A second transition from a now-terminal state is refused.
	ok, err = s.TransitionJob(ctx, "job1", StateCancelled, StatePending, StateRunning)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetJob(ctx, "job1")
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, got.State)
}

func TestUpdateJobDoesNotResurrectTerminal(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveProfile(ctx, testProfile()))

	job := &Job{ID: "job1", ProfileID: "p1", State: StateRunning, Stage: "research"}
	require.NoError(t, s.CreateJob(ctx, job))

	// Cancellation lands while a worker still holds a running snapshot.
	ok, err := s.TransitionJob(ctx, "job1", StateCancelled, StateRunning)
	require.NoError(t, err)
	require.True(t, ok)

	stale := *job
	stale.State = StateRunning
	stale.Progress = 50
	err = s.UpdateJob(ctx, &stale)
	require.ErrorIs(t, err, ErrJobStale)

	got, err := s.GetJob(ctx, "job1")
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, got.State)

	// Adding detail in the same terminal state is still allowed.
	got.Error = "Cancelled by user"
	require.NoError(t, s.UpdateJob(ctx, got))

	got, err = s.GetJob(ctx, "job1")
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, got.State)
	assert.Equal(t, "Cancelled by user", got.Error)
}

func TestJobsInStates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveProfile(ctx, testProfile()))

	for i, state := range []string{StatePending, StateRunning, StateCompleted, StateWaitingForReview} {
		job := &Job{ID: fmt.Sprintf("job%d", i), ProfileID: "p1", State: state, Stage: "x"}
		require.NoError(t, s.CreateJob(ctx, job))
	}

	got, err := s.JobsInStates(ctx, StatePending, StateRunning)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.JobsInStates(ctx, StateWaitingForReview)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "job3", got[0].ID)
}

func TestEpisodeRoundtrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveProfile(ctx, testProfile()))

	ep := &Episode{
		ID:              "tech-daily-20260314",
		ProfileID:       "p1",
		Title:           "Tech Daily - March 14, 2026",
		Date:            time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Status:          EpisodeStatusPublished,
		ScriptPath:      "scripts/tech-daily-20260314.json",
		AudioPath:       "episodes/tech-daily-20260314.mp3",
		DurationSeconds: 912.5,
		Segments: []EpisodeSegment{
			{Title: "Intro", ContentType: "intro", AudioPath: "audio/section_intro.wav", StartTimeSeconds: 0, DurationSeconds: 12},
			{TopicID: "t1", Title: "Chips", StartTimeSeconds: 12.5, DurationSeconds: 400},
			{TopicID: "t2", Title: "Models", ContentType: "topic", AudioPath: "audio/section_segment2.wav", StartTimeSeconds: 413, DurationSeconds: 500},
		},
	}
	covered := []CoveredTopic{
		{TopicName: "Chips", Category: "hardware", EpisodeID: ep.ID, CoveredAt: time.Now().UTC()},
	}
	require.NoError(t, s.SaveEpisode(ctx, ep, covered))

	got, err := s.GetEpisode(ctx, ep.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ep.Title, got.Title)
	assert.Equal(t, EpisodeStatusPublished, got.Status)
	assert.InDelta(t, 912.5, got.DurationSeconds, 0.001)
	require.Len(t, got.Segments, 3)
	assert.Equal(t, "intro", got.Segments[0].ContentType)
	assert.Equal(t, "audio/section_intro.wav", got.Segments[0].AudioPath)
	// An unset content type is stored as a topic segment.
	assert.Equal(t, "topic", got.Segments[1].ContentType)
	assert.Equal(t, "t2", got.Segments[2].TopicID)
	assert.InDelta(t, 413, got.Segments[2].StartTimeSeconds, 0.001)

	// Re-saving replaces segments instead of duplicating them.
	ep.Segments = ep.Segments[:1]
	require.NoError(t, s.SaveEpisode(ctx, ep, nil))
	got, err = s.GetEpisode(ctx, ep.ID)
	require.NoError(t, err)
	assert.Len(t, got.Segments, 1)
}

func TestListEpisodesNewestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveProfile(ctx, testProfile()))

	for i := 1; i <= 3; i++ {
		ep := &Episode{
			ID:        fmt.Sprintf("ep%d", i),
			ProfileID: "p1",
			Title:     fmt.Sprintf("Episode %d", i),
			Date:      time.Date(2026, 3, i, 0, 0, 0, 0, time.UTC),
		}
		require.NoError(t, s.SaveEpisode(ctx, ep, nil))
	}

	got, err := s.ListEpisodes(ctx, "p1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ep3", got[0].ID)
	assert.Equal(t, "ep2", got[1].ID)
	// Episodes saved without an explicit status start as drafts.
	assert.Equal(t, EpisodeStatusDraft, got[0].Status)
}

func TestIncrementPlayCount(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveProfile(ctx, testProfile()))
	require.NoError(t, s.SaveEpisode(ctx, &Episode{ID: "ep1", ProfileID: "p1", Date: time.Now()}, nil))

	require.NoError(t, s.IncrementPlayCount(ctx, "ep1"))
	require.NoError(t, s.IncrementPlayCount(ctx, "ep1"))

	got, err := s.GetEpisode(ctx, "ep1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.PlayCount)
}

func TestRecentTopics(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveProfile(ctx, testProfile()))

	old := time.Now().UTC().Add(-30 * 24 * time.Hour)
	recent := time.Now().UTC().Add(-2 * 24 * time.Hour)

	require.NoError(t, s.SaveEpisode(ctx, &Episode{ID: "ep1", ProfileID: "p1", Date: old},
		[]CoveredTopic{{TopicName: "Old Story", EpisodeID: "ep1", CoveredAt: old}}))
	require.NoError(t, s.SaveEpisode(ctx, &Episode{ID: "ep2", ProfileID: "p1", Date: recent},
		[]CoveredTopic{{TopicName: "Fresh Story", EpisodeID: "ep2", CoveredAt: recent}}))

	got, err := s.RecentTopics(ctx, "p1", time.Now().UTC().Add(-14*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Fresh Story", got[0].TopicName)
}

func TestSettings(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	got, err := s.Setting(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, "", got)

	require.NoError(t, s.SetSetting(ctx, "theme", "dark"))
	require.NoError(t, s.SetSetting(ctx, "theme", "light"))

	got, err = s.Setting(ctx, "theme")
	require.NoError(t, err)
	assert.Equal(t, "light", got)
}

func TestMigrateIdempotent(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Migrate())
}
