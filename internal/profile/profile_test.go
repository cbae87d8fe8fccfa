package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Tech Daily", "tech-daily"},
		{"AI & Robotics Weekly!", "ai-robotics-weekly"},
		{"  spaced  out  ", "spaced-out"},
		{"already-slugged", "already-slugged"},
	}
	for _, tt := range tests {
		p := Profile{Name: tt.name}
		assert.Equal(t, tt.want, p.Slug())
	}
}

func TestEpisodeID(t *testing.T) {
	p := Profile{Name: "Tech Daily"}
	date := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "tech-daily-20260314", p.EpisodeID(date))
}

func TestHostByName(t *testing.T) {
	p := Profile{Hosts: []Host{
		{Name: "Alex", VoiceID: "v1"},
		{Name: "Sam", VoiceID: "v2"},
	}}

	h, ok := p.HostByName("sam")
	assert.True(t, ok)
	assert.Equal(t, "v2", h.VoiceID)

	_, ok = p.HostByName("jordan")
	assert.False(t, ok)
}

func TestActiveSources(t *testing.T) {
	p := Profile{Sources: []ContentSource{
		{ID: "a", Active: true},
		{ID: "b", Active: false},
		{ID: "c", Active: true},
	}}

	active := p.ActiveSources()
	assert.Len(t, active, 2)
	assert.Equal(t, "a", active[0].ID)
	assert.Equal(t, "c", active[1].ID)
}

func TestAvoidanceRuleActiveAt(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	permanent := AvoidanceRule{Keyword: "crypto", Kind: AvoidPermanent}
	assert.True(t, permanent.ActiveAt(now))

	expired := AvoidanceRule{Keyword: "layoffs", Kind: AvoidTemporary, Until: &past}
	assert.False(t, expired.ActiveAt(now))

	current := AvoidanceRule{Keyword: "layoffs", Kind: AvoidTemporary, Until: &future}
	assert.True(t, current.ActiveAt(now))

	reduce := AvoidanceRule{Keyword: "elections", Kind: AvoidReduceFrequency, MinDaysBetween: 7}
	assert.True(t, reduce.ActiveAt(now))
}
