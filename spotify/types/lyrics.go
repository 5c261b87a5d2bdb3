package types

import (
	"fmt"
	"strings"
	"time"
)

type LyricsLine struct {
	Start time.Duration
	Text  string
}

type Lyrics struct {
	Synced bool
	Lines  []LyricsLine
}

func (l *Lyrics) IsEmpty() bool {
	return nil == l || len(l.Lines) == 0
}

// LRC renders l in the LRC format. Unsynced lyrics are rendered without
// timestamps.
func (l *Lyrics) LRC() string {
	var sb strings.Builder
	for _, line := range l.Lines {
		if l.Synced {
			minutes := int(line.Start / time.Minute)
			seconds := line.Start % time.Minute
			fmt.Fprintf(&sb, "[%02d:%05.2f]", minutes, seconds.Seconds())
		}
		sb.WriteString(line.Text)
		sb.WriteByte('\n')
	}

	return sb.String()
}

func (l *Lyrics) Plain() string {
	lines := make([]string, len(l.Lines))
	for i, line := range l.Lines {
		lines[i] = line.Text
	}

	return strings.Join(lines, "\n")
}
