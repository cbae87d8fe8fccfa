package research

import (
	"fmt"
	"strings"

	"github.com/apresai/newsroom/internal/cluster"
	"github.com/apresai/newsroom/internal/llm"
)

// topicContext renders the cluster's member items as prompt material.
func topicContext(t cluster.Topic, maxItems int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", t.Name)
	if t.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", t.Summary)
	}
	b.WriteString("\nSource items:\n")
	for i, it := range t.Items {
		if i >= maxItems {
			break
		}
		fmt.Fprintf(&b, "- [%s] %s (%s)\n", it.SourceName, it.Title, it.URL)
		if it.Body != "" {
			fmt.Fprintf(&b, "  %s\n", llm.Truncate(it.Body, 300))
		}
	}
	return b.String()
}

func quickPrompt(t cluster.Topic) string {
	return fmt.Sprintf(`Research this developing story for a news podcast. Verify the key claims with web search.

%s

Structure your answer with these exact section headers:

## Summary
Two or three sentences on what happened.

## Key Facts
One fact per line. Every fact must cite its source URL in parentheses at the end of the line.

## Expert Opinions
One per line, as: "quote" - Person Name, Role. Mark each line [PRO], [CON], or [NEUTRAL].

## Community Sentiment
One sentence on how people are reacting.`, topicContext(t, 8))
}

func followUpPrompt(t cluster.Topic) string {
	return fmt.Sprintf(`You already know the basics of this story. Dig into background and consequences.

%s

Structure your answer with these exact section headers:

## Background
How we got here. Prior events and context.

## Current Situation
The latest developments.

## Implications
What this likely means going forward.

## Key Facts
Any additional verified facts, one per line, source URL in parentheses.`, topicContext(t, 5))
}

func deepPrompt(t cluster.Topic) string {
	return fmt.Sprintf(`Produce comprehensive podcast research on this topic. Use web search to verify everything.

%s

Structure your answer with these exact section headers:

## Summary
Three or four sentences.

## Background
How we got here.

## Current Situation
The latest developments.

## Implications
Likely consequences, second-order effects.

## Key Facts
At least six verified facts, one per line, each ending with its source URL in parentheses.

## Expert Opinions
At least three, one per line, as: "quote" - Person Name, Role. Mark each line [PRO], [CON], or [NEUTRAL].

## Community Sentiment
How practitioners and the public are reacting.`, topicContext(t, 10))
}
