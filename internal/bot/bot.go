package bot

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/hykim/melobot/config"
	"github.com/hykim/melobot/internal/database"
	"github.com/hykim/melobot/internal/features"
	"github.com/hykim/melobot/internal/features/card"
	"github.com/hykim/melobot/internal/features/modals"
	musiccmd "github.com/hykim/melobot/internal/features/music/commands"
	musiclisteners "github.com/hykim/melobot/internal/features/music/listeners"
	"github.com/hykim/melobot/internal/music"
	"github.com/hykim/melobot/internal/redis"
)

const shutdownTimeout = 10 * time.Second

type Bot struct {
	config       *config.Config
	sessions     []*discordgo.Session
	manager      *music.PlayerManager
	registry     *features.Registry
	started      bool
	presenceStop chan struct{}
}

func New(cfg *config.Config) (*Bot, error) {
	dbConfig := &database.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	if err := database.Initialize(dbConfig); err != nil {
		log.Printf("Warning: Database initialization failed: %v", err)
	}

	redisConfig := redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	if _, err := redis.Init(redisConfig); err != nil {
		log.Printf("Warning: Redis initialization failed: %v", err)
	}

	shardCount := cfg.ShardCount
	if shardCount < 1 {
		s, err := discordgo.New("Bot " + cfg.DiscordToken)
		if err != nil {
			return nil, err
		}

		if gw, err := s.GatewayBot(); err == nil && gw.Shards > 0 {
			shardCount = gw.Shards
		} else {
			log.Printf("Warning: failed to auto-detect shard count, defaulting to 1: %v", err)
			shardCount = 1
		}
	}

	if shardCount < 1 {
		shardCount = 1
	}

	sessions := make([]*discordgo.Session, 0, shardCount)
	for shard := 0; shard < shardCount; shard++ {
		s, err := discordgo.New("Bot " + cfg.DiscordToken)
		if err != nil {
			return nil, err
		}

		s.Identify.Intents = discordgo.IntentsGuilds |
			discordgo.IntentsGuildVoiceStates |
			discordgo.IntentsGuildMessages |
			discordgo.IntentsMessageContent

		if shardCount > 1 {
			s.Identify.Shard = &[2]int{shard, shardCount}
			s.ShardCount = shardCount
		}

		sessions = append(sessions, s)
	}

	b := &Bot{
		config:   cfg,
		sessions: sessions,
	}
	b.wireFeatures()
	return b, nil
}

// wireFeatures builds the player stack and attaches every feature surface
// to the shard sessions.
func (b *Bot) wireFeatures() {
	cfg := b.config

	var metadata music.MetadataResolver
	if cfg.SpotifyClientID != "" && cfg.SpotifyClientSecret != "" {
		metadata = music.NewSpotifyClient(cfg.SpotifyClientID, cfg.SpotifyClientSecret)
	}

	locator := music.NewYTDLPLocator()
	cache := music.NewMediaCacheFromDefault()
	awaiter := modals.NewAwaiter()
	repo := database.NewCardRepository()

	defaultVolume := float64(cfg.DefaultVolume) / 100
	if defaultVolume <= 0 || defaultVolume > 1 {
		defaultVolume = 0.5
	}

	var cardManager *card.Manager
	manager := music.NewPlayerManager(music.Deps{
		Locator:       locator,
		Factory:       music.NewFFmpegSourceFactory(),
		Cache:         cache,
		Dialer:        b.dialerForShards(),
		Notifier:      music.NewRateLimitedNotifier(music.NotifierFunc(func(guildID string) { cardManager.StateChanged(guildID) })),
		DefaultVolume: defaultVolume,
		MaxQueueSize:  cfg.MaxQueueSize,
	})

	svc := music.NewService(manager, metadata, locator)
	cardManager = card.NewManager(svc, repo, awaiter, b.sessionFor)

	musicHandlers := musiccmd.New(svc, cardManager)
	autoLeave := time.Duration(cfg.AutoLeaveTimeout) * time.Second
	musicListeners := musiclisteners.New(svc, cardManager, autoLeave)

	b.manager = manager
	b.registry = features.NewRegistry(svc, cardManager, musicHandlers, musicListeners, cfg.OwnerID)
}

// sessionFor maps a guild to the shard session that serves it.
func (b *Bot) sessionFor(guildID string) *discordgo.Session {
	if len(b.sessions) == 0 {
		return nil
	}
	if len(b.sessions) == 1 {
		return b.sessions[0]
	}

	id, err := strconv.ParseUint(guildID, 10, 64)
	if err != nil {
		return b.sessions[0]
	}
	return b.sessions[(id>>22)%uint64(len(b.sessions))]
}

func (b *Bot) dialerForShards() music.VoiceDialer {
	return dialerFunc(func(guildID, channelID string) (music.VoiceConn, error) {
		s := b.sessionFor(guildID)
		if s == nil {
			return nil, music.ErrVoiceTransport
		}
		return music.NewSessionDialer(s).Join(guildID, channelID)
	})
}

type dialerFunc func(guildID, channelID string) (music.VoiceConn, error)

func (f dialerFunc) Join(guildID, channelID string) (music.VoiceConn, error) {
	return f(guildID, channelID)
}

func (b *Bot) Start() error {
	if b.started {
		return nil
	}

	if len(b.sessions) == 0 {
		return nil
	}

	for _, s := range b.sessions {
		b.registerHandlers(s)
		b.registry.AddHandlers(s)
	}

	if _, err := features.RegisterCommands(b.sessions[0], b.config.ApplicationID, b.config.GuildID); err != nil {
		log.Printf("Warning: failed to register slash commands: %v", err)
	}

	for _, s := range b.sessions {
		if err := s.Open(); err != nil {
			return err
		}
	}

	b.startPresenceUpdater()
	b.started = true
	log.Printf("Bot session opened (%d shard(s))", len(b.sessions))
	return nil
}

func (b *Bot) registerHandlers(s *discordgo.Session) {
	s.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		if s.State != nil && s.State.User != nil {
			log.Printf("Bot ready as %s#%s", s.State.User.Username, s.State.User.Discriminator)
		} else {
			log.Printf("Bot ready")
		}
		b.updatePresence()
	})
}

func (b *Bot) Stop() error {
	if !b.started {
		return nil
	}

	b.started = false
	b.stopPresenceUpdater()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	b.manager.Shutdown(ctx)

	for _, s := range b.sessions {
		if err := s.Close(); err != nil {
			return err
		}
	}

	if err := database.Close(); err != nil {
		log.Printf("Warning: failed to close database: %v", err)
	}

	if err := redis.Close(); err != nil {
		log.Printf("Warning: failed to close redis: %v", err)
	}

	log.Printf("Bot session closed (%d shard(s))", len(b.sessions))
	return nil
}
