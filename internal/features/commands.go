package features

import (
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"

	"github.com/hykim/melobot/internal/features/card"
	musiccmd "github.com/hykim/melobot/internal/features/music/commands"
	musiclisteners "github.com/hykim/melobot/internal/features/music/listeners"
	"github.com/hykim/melobot/internal/features/ping"
	"github.com/hykim/melobot/internal/music"
)

// CommandList is the full slash-command surface pushed to Discord.
var CommandList = []*discordgo.ApplicationCommand{
	{
		Name:        "ping",
		Description: "Check the bot's status",
	},
	{
		Name:        "play",
		Description: "Search for a track and add it to the queue",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "query",
				Description: "Song name, artist, or a link",
				Required:    true,
			},
		},
	},
	{
		Name:        "music",
		Description: "Playback controls",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "skip",
				Description: "Skip the current track",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "stop",
				Description: "Stop playback and clear the queue",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "pause",
				Description: "Pause the current track",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "resume",
				Description: "Resume a paused track",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "queue",
				Description: "Show the queue",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "loop",
				Description: "Toggle repeating the current track",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "shuffle",
				Description: "Shuffle the queue",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "volume",
				Description: "Show or set the playback volume",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "level",
						Description: "Volume from 0 to 100",
						Required:    false,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "leave",
				Description: "Disconnect from the voice channel",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "nowplaying",
				Description: "Show the current track",
			},
		},
	},
	{
		Name:        "setup",
		Description: "Create the player card channel for this server",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:         discordgo.ApplicationCommandOptionChannel,
				Name:         "category",
				Description:  "Category to create the card channel in",
				Required:     false,
				ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildCategory},
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "channel_name",
				Description: "Card channel name (default: " + card.DefaultCardChannelName + ")",
				Required:    false,
			},
		},
	},
}

// Registry wires every feature surface to one shared player service.
type Registry struct {
	svc       *music.Service
	card      *card.Manager
	music     *musiccmd.Handlers
	listeners *musiclisteners.Listeners
	ownerID   string

	handlers map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate)
}

func NewRegistry(
	svc *music.Service,
	cardManager *card.Manager,
	musicHandlers *musiccmd.Handlers,
	musicListeners *musiclisteners.Listeners,
	ownerID string,
) *Registry {
	r := &Registry{
		svc:       svc,
		card:      cardManager,
		music:     musicHandlers,
		listeners: musicListeners,
		ownerID:   ownerID,
	}
	r.handlers = map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate){
		"ping": func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			ping.RespondStatus(s, i, svc.Manager(), discordgo.InteractionResponseChannelMessageWithSource)
		},
		"play":  musicHandlers.Play,
		"music": musicHandlers.Music,
		"setup": cardManager.Setup,
	}
	return r
}

func RegisterCommands(s *discordgo.Session, appID string, guildID string) ([]*discordgo.ApplicationCommand, error) {
	scope := "global"
	if guildID != "" {
		scope = fmt.Sprintf("guild:%s", guildID)
	}

	log.Printf("Registering %d commands (%s)", len(CommandList), scope)

	cmds, err := s.ApplicationCommandBulkOverwrite(appID, guildID, CommandList)
	if err != nil {
		return nil, fmt.Errorf("cannot bulk overwrite commands: %w", err)
	}
	return cmds, nil
}

// AddHandlers attaches all gateway handlers to one session.
func (r *Registry) AddHandlers(s *discordgo.Session) {
	s.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if r.handleSyncMessage(s, m) {
			return
		}
		r.listeners.HandleMessage(s, m)
	})

	s.AddHandler(r.listeners.HandleVoiceStateUpdate)

	s.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if r.card.HandleModal(i) {
			return
		}

		switch i.Type {
		case discordgo.InteractionApplicationCommand:
			data := i.ApplicationCommandData()
			if handler, ok := r.handlers[data.Name]; ok {
				handler(s, i)
			}
		case discordgo.InteractionMessageComponent:
			if i.MessageComponentData().CustomID == ping.RefreshCustomID {
				ping.RespondStatus(s, i, r.svc.Manager(), discordgo.InteractionResponseUpdateMessage)
				return
			}
			if r.card.Route(s, i) {
				return
			}
		default:
			return
		}
	})
}
