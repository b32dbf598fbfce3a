// narrator/narrator.go
package narrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wfunc/roundtable/models"
)

var (
	// ErrUnavailable covers transport failures, timeouts and non-2xx replies.
	ErrUnavailable = errors.New("narrator unavailable")
	// ErrTooShort is returned when the model produced no usable text.
	ErrTooShort = errors.New("narrative too short")
)

// Narrator turns a round's actions into story text.
type Narrator interface {
	Generate(ctx context.Context, snap models.Snapshot, actions []models.ActionLine) (string, error)
}

// Opener writes the opening scene for a new game.
type Opener interface {
	Open(ctx context.Context, campaign, location string) (string, error)
}

// Fallback is the deterministic narrative used whenever the narrator cannot
// produce one.
func Fallback(actions []models.ActionLine) string {
	if len(actions) == 0 {
		return "*The party waits, watching the world around them...*"
	}
	parts := make([]string, len(actions))
	for i, a := range actions {
		parts[i] = a.ParticipantName + " " + a.Text
	}
	return "*The actions unfold: " + strings.Join(parts, ", ") + "*"
}

// OpeningFallback is the opening scene used when no narrator is reachable.
func OpeningFallback(campaign, location string) string {
	if location == "" {
		location = "a mysterious location"
	}
	return fmt.Sprintf("The sun sets on the horizon as you arrive at %s. "+
		"Your adventure in **%s** begins. The air is thick with possibility and mystery. "+
		"What would you like to do?", location, campaign)
}

// RoundHeader prefixes a resolved round's narrative in the game log.
func RoundHeader(round int, narrative string) string {
	return fmt.Sprintf("**Round %d**\n%s", round, narrative)
}

// BuildPrompt renders the round prompt. recentLimit caps the recent log
// lines included; zero means all of snap.RecentLogs.
func BuildPrompt(snap models.Snapshot, actions []models.ActionLine, recentLimit int) string {
	campaign := snap.Game.CampaignName
	if campaign == "" {
		campaign = "Campaign"
	}
	location := snap.Game.Location
	if location == "" {
		location = "Unknown Location"
	}

	var party []string
	for _, p := range snap.Roster {
		party = append(party, fmt.Sprintf("- %s (%s): HP %d/%d, Stats: %s", p.Name, p.Class, p.HP, p.MaxHP, p.Stats))
	}

	var encounters []string
	for _, e := range snap.Session.Encounters {
		desc := e.Description
		if desc == "" {
			desc = "Unknown encounter"
		}
		encounters = append(encounters, "- "+desc)
	}

	logs := snap.RecentLogs
	if recentLimit > 0 && len(logs) > recentLimit {
		logs = logs[:recentLimit]
	}
	var events []string
	for _, l := range logs {
		events = append(events, "- "+l.Message)
	}

	var lines []string
	for _, a := range actions {
		lines = append(lines, fmt.Sprintf("- %s: %s", a.ParticipantName, a.Text))
	}

	var b strings.Builder
	b.WriteString("You are a Dungeon Master running a D&D campaign. Generate a narrative response based on the current game state and player actions.\n\n")
	fmt.Fprintf(&b, "**Campaign:** %s\n", campaign)
	fmt.Fprintf(&b, "**Current Location:** %s\n", location)
	fmt.Fprintf(&b, "**Round:** %d\n\n", snap.Session.RoundNumber)
	writeSection(&b, "Party Members", party, "- No active players")
	writeSection(&b, "Active Encounters", encounters, "- None")
	writeSection(&b, "Recent Events", events, "- The adventure begins...")
	writeSection(&b, "Player Actions This Round", lines, "- No actions taken")
	b.WriteString("**Instructions:**\n")
	b.WriteString("- Write a narrative response that describes what happens based on the player actions\n")
	b.WriteString("- Use D&D terminology and style\n")
	b.WriteString("- Be creative but respect the game rules (don't make impossible things happen)\n")
	b.WriteString("- Keep the response to 2-4 sentences\n")
	b.WriteString("- Focus on the outcome of the actions and the world's response\n")
	b.WriteString("- Maintain consistency with the campaign setting and recent events\n\n")
	b.WriteString("**Narrative Response:**")
	return b.String()
}

// OpeningPrompt renders the prompt for a game's first scene.
func OpeningPrompt(campaign, location string) string {
	if location == "" {
		location = "a mysterious location"
	}
	var b strings.Builder
	b.WriteString("You are a Dungeon Master starting a D&D campaign. Generate an opening narrative that sets the scene for the adventure.\n\n")
	fmt.Fprintf(&b, "**Campaign Name:** %s\n", campaign)
	fmt.Fprintf(&b, "**Starting Location:** %s\n\n", location)
	b.WriteString("**Instructions:**\n")
	b.WriteString("- Write a compelling opening scene (2-3 sentences)\n")
	b.WriteString("- Set the mood and atmosphere\n")
	b.WriteString("- Describe the immediate surroundings\n")
	b.WriteString("- Hint at adventure or mystery ahead\n")
	b.WriteString("- Use D&D narrative style\n")
	b.WriteString("- End with something that invites player interaction\n\n")
	b.WriteString("**Opening Scene:**")
	return b.String()
}

func writeSection(b *strings.Builder, title string, lines []string, empty string) {
	fmt.Fprintf(b, "**%s:**\n", title)
	if len(lines) == 0 {
		b.WriteString(empty)
	} else {
		b.WriteString(strings.Join(lines, "\n"))
	}
	b.WriteString("\n\n")
}

var echoedHeadings = []string{
	"**Narrative Response:**",
	"Narrative Response:",
	"**Opening Scene:**",
	"Opening Scene:",
}

// Clean strips code fences and echoed prompt headings from model output.
func Clean(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		lines = lines[1:]
		if n := len(lines); n > 0 && strings.HasPrefix(strings.TrimSpace(lines[n-1]), "```") {
			lines = lines[:n-1]
		}
		text = strings.TrimSpace(strings.Join(lines, "\n"))
	}
	for _, h := range echoedHeadings {
		if strings.HasPrefix(text, h) {
			text = strings.TrimSpace(strings.TrimPrefix(text, h))
		}
	}
	return text
}
