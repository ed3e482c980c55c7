package util_test

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/harmony/internal/util"
)

func TestFindFirst(t *testing.T) {
	even := func(x int) bool { return x%2 == 0 }

	tests := []struct {
		name     string
		slice    []int
		expected int
		found    bool
	}{
		{name: "first match wins", slice: []int{1, 2, 3, 4}, expected: 2, found: true},
		{name: "no match", slice: []int{1, 3, 5, 7}},
		{name: "empty slice", slice: []int{}},
		{name: "nil slice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, found := util.FindFirst(tt.slice, even)
			if result != tt.expected || found != tt.found {
				t.Errorf("FindFirst() = (%v, %v), want (%v, %v)", result, found, tt.expected, tt.found)
			}
		})
	}
}

func TestFindFirstPointers(t *testing.T) {
	channels := []*discordgo.Channel{
		{ID: "text", Type: discordgo.ChannelTypeGuildText},
		{ID: "voice", Type: discordgo.ChannelTypeGuildVoice},
	}

	got, ok := util.FindFirst(channels, func(c *discordgo.Channel) bool {
		return c.Type == discordgo.ChannelTypeGuildVoice
	})
	if !ok || got != channels[1] {
		t.Errorf("expected the voice channel, got %v", got)
	}

	got, ok = util.FindFirst(channels, func(c *discordgo.Channel) bool { return c.ID == "missing" })
	if ok || got != nil {
		t.Errorf("expected a nil miss, got %v", got)
	}
}
