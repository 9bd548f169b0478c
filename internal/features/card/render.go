package card

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/hykim/melobot/internal/music"
)

const (
	customIDJoin    = "card_join"
	customIDAdd     = "card_add"
	customIDPause   = "card_pause"
	customIDSkip    = "card_skip"
	customIDStop    = "card_stop"
	customIDLoop    = "card_loop"
	customIDShuffle = "card_shuffle"
	customIDQueue   = "card_queue"
	customIDVolDown = "card_voldown"
	customIDVolUp   = "card_volup"

	addTrackModalID = "card_add_modal"
	addTrackInputID = "card_add_input"
)

var cardAccent = 0x3C6AA1

// BuildCardComponents renders the persistent player card for one guild.
func BuildCardComponents(snap music.Snapshot, voiceConnected bool) []discordgo.MessageComponent {
	divider := true
	spacing := discordgo.SeparatorSpacingSizeSmall

	components := []discordgo.MessageComponent{
		discordgo.TextDisplay{Content: "▶️ **Now Playing**"},
		discordgo.Separator{Divider: &divider, Spacing: &spacing},
	}

	components = append(components, nowPlayingComponents(snap)...)

	loopLabel := "off"
	if snap.Loop {
		loopLabel = "on"
	}

	components = append(components,
		discordgo.Separator{Divider: &divider, Spacing: &spacing},
		discordgo.TextDisplay{Content: fmt.Sprintf("🔁 Loop **%s** • 🔊 Volume **%d%%**", loopLabel, int(snap.Volume*100))},
		discordgo.TextDisplay{Content: fmt.Sprintf("📋 Queue **%d track(s)**", len(snap.Queue))},
	)

	if snap.Current != nil && snap.Current.RequestedBy != "" {
		components = append(components, discordgo.TextDisplay{
			Content: fmt.Sprintf("`Requested by %s`", escapeCardText(snap.Current.RequestedBy)),
		})
	}

	components = append(components, discordgo.Separator{Divider: &divider, Spacing: &spacing})
	components = append(components, buttonRows(snap, voiceConnected)...)

	return []discordgo.MessageComponent{
		discordgo.Container{
			AccentColor: &cardAccent,
			Components:  components,
		},
	}
}

func nowPlayingComponents(snap music.Snapshot) []discordgo.MessageComponent {
	if snap.Current == nil {
		return []discordgo.MessageComponent{
			discordgo.TextDisplay{Content: "🟡 **Nothing is playing**"},
			discordgo.TextDisplay{Content: "Press **Add** or type a song name in this channel."},
		}
	}

	track := *snap.Current

	title := strings.TrimSpace(track.Title)
	if title == "" {
		title = "Unknown Title"
	}
	safeTitle := escapeCardText(title)

	var header string
	if track.SourceURL != "" {
		header = fmt.Sprintf("🎧 **[%s](%s)**", safeTitle, track.SourceURL)
	} else {
		header = fmt.Sprintf("🎧 **%s**", safeTitle)
	}

	lines := []discordgo.MessageComponent{
		discordgo.TextDisplay{Content: header},
	}

	if track.Artist != "" {
		lines = append(lines, discordgo.TextDisplay{Content: "🎤 " + escapeCardText(track.Artist)})
	}

	status := "▶️ **Playing**"
	switch snap.Phase {
	case music.PhasePaused:
		status = "⏸️ **Paused**"
	case music.PhaseResolving:
		status = "⏳ **Loading**"
	}
	lines = append(lines, discordgo.TextDisplay{Content: status})

	progress := fmt.Sprintf("`%s` `%s` `%s`",
		formatDuration(snap.Position),
		buildProgressBar(snap.Position, track.Duration, 12),
		formatDuration(track.Duration),
	)
	lines = append(lines, discordgo.TextDisplay{Content: progress})

	if thumb := strings.TrimSpace(track.Thumbnail); thumb != "" {
		return []discordgo.MessageComponent{
			discordgo.Section{
				Components: lines,
				Accessory: discordgo.Thumbnail{
					Media: discordgo.UnfurledMediaItem{URL: thumb},
				},
			},
		}
	}
	return lines
}

func buttonRows(snap music.Snapshot, voiceConnected bool) []discordgo.MessageComponent {
	hasTrack := snap.Current != nil
	paused := snap.Phase == music.PhasePaused

	joinLabel := "Join"
	joinStyle := discordgo.SuccessButton
	if voiceConnected {
		joinLabel = "Leave"
		joinStyle = discordgo.DangerButton
	}

	pauseLabel := "Pause"
	pauseStyle := discordgo.SecondaryButton
	if paused {
		pauseLabel = "Resume"
		pauseStyle = discordgo.SuccessButton
	}

	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{Style: joinStyle, Label: joinLabel, CustomID: customIDJoin},
				discordgo.Button{Style: discordgo.PrimaryButton, Label: "Add", CustomID: customIDAdd},
				discordgo.Button{Style: pauseStyle, Label: pauseLabel, CustomID: customIDPause, Disabled: !hasTrack},
				discordgo.Button{Style: discordgo.SecondaryButton, Label: "Skip", CustomID: customIDSkip, Disabled: !hasTrack},
				discordgo.Button{Style: discordgo.DangerButton, Label: "Stop", CustomID: customIDStop, Disabled: !hasTrack},
			},
		},
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{Style: discordgo.SecondaryButton, Label: "Loop", CustomID: customIDLoop},
				discordgo.Button{Style: discordgo.SecondaryButton, Label: "Shuffle", CustomID: customIDShuffle, Disabled: len(snap.Queue) < 2},
				discordgo.Button{Style: discordgo.SecondaryButton, Label: "Queue", CustomID: customIDQueue},
				discordgo.Button{Style: discordgo.SecondaryButton, Label: "Vol -", CustomID: customIDVolDown},
				discordgo.Button{Style: discordgo.SecondaryButton, Label: "Vol +", CustomID: customIDVolUp},
			},
		},
	}
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "live"
	}
	totalSeconds := int(d.Seconds())
	min := totalSeconds / 60
	sec := totalSeconds % 60
	return fmt.Sprintf("%02d:%02d", min, sec)
}

func buildProgressBar(position, duration time.Duration, size int) string {
	if size <= 0 {
		size = 12
	}
	if duration <= 0 {
		return "○" + strings.Repeat("─", size)
	}
	ratio := float64(position) / float64(duration)
	ratio = max(0.0, min(1.0, ratio))
	marker := int(ratio * float64(size))
	marker = min(size, max(0, marker))
	left := strings.Repeat("━", marker)
	right := strings.Repeat("─", size-marker)
	return fmt.Sprintf("%s◉%s", left, right)
}

func escapeCardText(text string) string {
	replacer := strings.NewReplacer(
		"*", "\\*",
		"_", "\\_",
		"`", "\\`",
		"~", "\\~",
		"|", "\\|",
		">", "\\>",
	)
	return replacer.Replace(text)
}
