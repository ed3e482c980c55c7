package presenters

import (
	"fmt"
	"strings"

	"github.com/glizzus/harmony/internal/command"
	"github.com/glizzus/harmony/internal/queue"
)

// QueueMessage renders the head of a guild queue. total is the full queue
// length, which may exceed len(tracks).
func QueueMessage(tracks []queue.Track, total int) string {
	if total == 0 {
		return "The queue is empty."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "**Queue** (%d)\n", total)
	for i, t := range tracks {
		fmt.Fprintf(&sb, "%d. %s", i+1, TrackTitle(t))
		if t.RequestedBy != "" {
			fmt.Fprintf(&sb, " (<@%s>)", t.RequestedBy)
		}
		sb.WriteByte('\n')
	}
	if rest := total - len(tracks); rest > 0 {
		fmt.Fprintf(&sb, "…and %d more", rest)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func TrackTitle(t queue.Track) string {
	if t.Title != "" {
		return t.Title
	}
	return t.URL
}

// HelpMessage lists the prefix commands.
func HelpMessage(prefix string, commands []command.Command) string {
	var sb strings.Builder
	sb.WriteString("**Commands**")
	for _, c := range commands {
		fmt.Fprintf(&sb, "\n`%s%s`", prefix, c.Name)
		if c.Description != "" {
			sb.WriteString(" ")
			sb.WriteString(c.Description)
		}
	}
	return sb.String()
}
