// Package profile holds the long-lived show configuration: audience, hosts,
// content sources, avoidance rules, and the generation schedule.
package profile

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/apresai/newsroom/internal/content"
)

// Profile is one configured podcast. Profiles are created and mutated by
// users and never destroyed automatically.
type Profile struct {
	ID                string
	Name              string
	Tone              string
	Audience          string
	TargetDurationMin int
	TopicCount        int
	Hosts             []Host
	Sources           []ContentSource
	Avoidance         []AvoidanceRule
	Schedule          Schedule
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Host is one voice on the show.
type Host struct {
	Name      string
	Persona   string
	VoiceID   string
	Style     string
	Expertise []string
}

// ContentSource configures one connector. Config is opaque here and decoded
// by the connector for its kind.
type ContentSource struct {
	ID          string
	Kind        content.SourceKind
	Name        string
	Config      json.RawMessage
	Priority    int     // 1-10
	Credibility float64 // 0-1
	Active      bool
}

// AvoidanceRuleKind controls how an avoidance rule is enforced.
type AvoidanceRuleKind string

const (
	AvoidTemporary       AvoidanceRuleKind = "temporary"
	AvoidPermanent       AvoidanceRuleKind = "permanent"
	AvoidReduceFrequency AvoidanceRuleKind = "reduce-frequency"
)

// AvoidanceRule suppresses or downranks topics matching a keyword.
type AvoidanceRule struct {
	Keyword        string
	Kind           AvoidanceRuleKind
	Until          *time.Time
	MinDaysBetween int
}

// Active reports whether the rule applies at the given time.
func (r AvoidanceRule) ActiveAt(now time.Time) bool {
	if r.Kind == AvoidTemporary && r.Until != nil && now.After(*r.Until) {
		return false
	}
	return true
}

// Schedule is the per-profile generation schedule in local time.
type Schedule struct {
	Enabled  bool
	Hour     int
	Minute   int
	Weekdays []time.Weekday
	Timezone string
	LastRun  *time.Time
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slug returns a filesystem- and episode-id-safe form of the profile name.
func (p Profile) Slug() string {
	s := slugRe.ReplaceAllString(strings.ToLower(p.Name), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = p.ID
	}
	return s
}

// EpisodeID derives the stable episode identifier for a target date.
func (p Profile) EpisodeID(date time.Time) string {
	return p.Slug() + "-" + date.Format("20060102")
}

// HostByName returns the host matching name case-insensitively.
func (p Profile) HostByName(name string) (Host, bool) {
	for _, h := range p.Hosts {
		if strings.EqualFold(h.Name, name) {
			return h, true
		}
	}
	return Host{}, false
}

// ActiveSources returns the sources with the active flag set.
func (p Profile) ActiveSources() []ContentSource {
	var out []ContentSource
	for _, s := range p.Sources {
		if s.Active {
			out = append(out, s)
		}
	}
	return out
}
