package queueview

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/hykim/melobot/internal/music"
)

const (
	CustomIDPrefix = "queue_page"
	DefaultPerPage = 10
	MaxPerPage     = 25
)

type PageInfo struct {
	Page       int
	PerPage    int
	TotalItems int
	TotalPages int
	StartIndex int
	EndIndex   int
}

// BuildQueueComponents renders one page of the pending queue along with the
// track currently playing.
func BuildQueueComponents(snap music.Snapshot, page int, perPage int) ([]discordgo.MessageComponent, PageInfo) {
	total := len(snap.Queue)
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	perPage = clamp(perPage, 1, MaxPerPage)
	totalPages := max(1, int(math.Ceil(float64(total)/float64(perPage))))
	page = clamp(page, 1, totalPages)

	start := (page - 1) * perPage
	end := min(start+perPage, total)

	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		lines = append(lines, trackLine(i+1, snap.Queue[i]))
	}

	listContent := "The queue is empty."
	if len(lines) > 0 {
		listContent = strings.Join(lines, "\n")
	}

	headline := "Nothing is playing."
	if snap.Current != nil {
		headline = fmt.Sprintf("▶️ **%s** · %s", trackTitle(*snap.Current), formatDuration(snap.Current.Duration))
		if snap.Loop {
			headline += " · 🔁"
		}
	}

	info := PageInfo{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
		StartIndex: start,
		EndIndex:   end,
	}

	divider := true
	spacing := discordgo.SeparatorSpacingSizeSmall
	accent := 0x3C6AA1

	components := []discordgo.MessageComponent{
		discordgo.Container{
			AccentColor: &accent,
			Components: []discordgo.MessageComponent{
				discordgo.TextDisplay{Content: "📋 **Queue**"},
				discordgo.TextDisplay{Content: headline},
				discordgo.Separator{Divider: &divider, Spacing: &spacing},
				discordgo.TextDisplay{Content: listContent},
				discordgo.Separator{Divider: &divider, Spacing: &spacing},
				discordgo.TextDisplay{Content: fmt.Sprintf("Page **%d/%d** · **%d** queued", page, totalPages, total)},
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.Button{
							Style:    discordgo.SecondaryButton,
							Label:    "Prev",
							CustomID: MakeQueuePageCustomID(page-1, perPage),
							Disabled: page <= 1,
						},
						discordgo.Button{
							Style:    discordgo.SecondaryButton,
							Label:    "Next",
							CustomID: MakeQueuePageCustomID(page+1, perPage),
							Disabled: page >= totalPages,
						},
					},
				},
			},
		},
	}

	return components, info
}

func trackLine(index int, t music.Track) string {
	title := trackTitle(t)
	if t.SourceURL != "" {
		return fmt.Sprintf("%d. [%s](%s) · %s", index, title, t.SourceURL, formatDuration(t.Duration))
	}
	return fmt.Sprintf("%d. %s · %s", index, title, formatDuration(t.Duration))
}

func trackTitle(t music.Track) string {
	title := strings.TrimSpace(t.Title)
	if title == "" {
		title = "Unknown title"
	}
	if t.Artist != "" {
		title = t.Artist + " - " + title
	}
	return title
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "live"
	}
	total := int(d.Seconds())
	if total >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func MakeQueuePageCustomID(page int, perPage int) string {
	if page < 1 {
		page = 1
	}
	perPage = clamp(perPage, 1, MaxPerPage)
	return fmt.Sprintf("%s:%d:%d", CustomIDPrefix, page, perPage)
}

func ParseQueuePageCustomID(customID string) (page int, perPage int, ok bool) {
	if !strings.HasPrefix(customID, CustomIDPrefix+":") {
		return 0, 0, false
	}

	parts := strings.Split(customID, ":")
	if len(parts) != 3 {
		return 0, 0, false
	}

	page, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	perPage, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, false
	}

	return clamp(page, 1, 1<<30), clamp(perPage, 1, MaxPerPage), true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
