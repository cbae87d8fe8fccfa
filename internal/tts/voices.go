package tts

import (
	"strings"

	"github.com/apresai/newsroom/internal/profile"
)

// AssignVoices maps each host's lowercase name to a voice. A host's
// configured voice ID wins; otherwise the provider default for the
// host's position is used.
func AssignVoices(p Provider, hosts []profile.Host) map[string]Voice {
	out := make(map[string]Voice, len(hosts))
	for i, h := range hosts {
		v := p.DefaultVoice(i)
		if h.VoiceID != "" {
			v = Voice{ID: h.VoiceID, Name: h.Name}
		}
		out[strings.ToLower(h.Name)] = v
	}
	return out
}
