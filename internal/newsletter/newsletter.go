// Package newsletter renders a companion markdown digest for each
// episode, covering the same topics in written form.
package newsletter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apresai/newsroom/internal/profile"
	"github.com/apresai/newsroom/internal/research"
	"github.com/apresai/newsroom/internal/script"
)

// Path returns the newsletter location for an episode.
func Path(outputRoot, episodeID string) string {
	return filepath.Join(outputRoot, "newsletters", episodeID+".md")
}

// Write renders the newsletter to disk and returns its path.
func Write(outputRoot string, p *profile.Profile, sc *script.Script, topics []research.VerifiedTopic) (string, error) {
	path := Path(outputRoot, sc.EpisodeID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create newsletter dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(Render(p, sc, topics)), 0644); err != nil {
		return "", fmt.Errorf("write newsletter: %w", err)
	}
	return path, nil
}

// Render produces the markdown body.
func Render(p *profile.Profile, sc *script.Script, topics []research.VerifiedTopic) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", sc.Title)
	fmt.Fprintf(&b, "*%s, %s*\n\n", p.Name, sc.Date.Format("January 2, 2006"))
	fmt.Fprintf(&b, "In this episode we cover %d stories in about %s.\n\n",
		len(sc.Segments), formatDuration(sc))

	for _, vt := range topics {
		if !vt.Approved {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n", vt.Topic.Headline)
		if vt.Topic.Summary != "" {
			fmt.Fprintf(&b, "%s\n\n", vt.Topic.Summary)
		}
		if len(vt.Topic.Facts) > 0 {
			b.WriteString("**Key facts**\n\n")
			for _, f := range vt.Topic.Facts {
				if f.SourceName != "" {
					fmt.Fprintf(&b, "- %s ([%s](%s))\n", f.Claim, f.SourceName, f.SourceURL)
				} else {
					fmt.Fprintf(&b, "- %s\n", f.Claim)
				}
			}
			b.WriteString("\n")
		}
		if len(vt.Topic.Opinions) > 0 {
			b.WriteString("**What people are saying**\n\n")
			for _, o := range vt.Topic.Opinions {
				attribution := o.Person
				if o.Role != "" {
					attribution += ", " + o.Role
				}
				fmt.Fprintf(&b, "> \"%s\" - %s\n\n", o.Quote, attribution)
			}
		}
		if len(vt.Topic.CounterArguments) > 0 {
			b.WriteString("**The other side**\n\n")
			for _, c := range vt.Topic.CounterArguments {
				fmt.Fprintf(&b, "- %s\n", c.Text)
			}
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "---\n\nProduced for %s listeners.\n", p.Name)
	return b.String()
}

func formatDuration(sc *script.Script) string {
	min := int(sc.EstimatedDuration().Minutes())
	if min < 1 {
		min = 1
	}
	return fmt.Sprintf("%d minutes", min)
}
