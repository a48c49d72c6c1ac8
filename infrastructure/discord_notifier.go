package infrastructure

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// DiscordSession is the part of *discordgo.Session the notifier needs
type DiscordSession interface {
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier sends direct messages to players. Player ids are Discord
// user ids.
type DiscordNotifier struct {
	session DiscordSession

	mu       sync.Mutex
	channels map[int64]string
}

// NewDiscordNotifier creates a notifier using an open Discord session
func NewDiscordNotifier(session DiscordSession) *DiscordNotifier {
	return &DiscordNotifier{
		session:  session,
		channels: make(map[int64]string),
	}
}

// NewDiscordSession opens a bot session with the given token
func NewDiscordSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("failed to open Discord session: %w", err)
	}
	log.Info("Discord session opened")
	return session, nil
}

// Notify sends a direct message to a player
func (n *DiscordNotifier) Notify(ctx context.Context, ownerID int64, message string) error {
	channelID, err := n.dmChannel(ctx, ownerID)
	if err != nil {
		return err
	}

	if _, err := n.session.ChannelMessageSend(channelID, message, discordgo.WithContext(ctx)); err != nil {
		// the channel may have been closed; create a fresh one next time
		n.mu.Lock()
		delete(n.channels, ownerID)
		n.mu.Unlock()
		return fmt.Errorf("failed to message user %d: %w", ownerID, err)
	}

	log.WithField("owner_id", ownerID).Debug("Sent Discord notification")
	return nil
}

func (n *DiscordNotifier) dmChannel(ctx context.Context, ownerID int64) (string, error) {
	n.mu.Lock()
	channelID, ok := n.channels[ownerID]
	n.mu.Unlock()
	if ok {
		return channelID, nil
	}

	channel, err := n.session.UserChannelCreate(strconv.FormatInt(ownerID, 10), discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to open DM channel for user %d: %w", ownerID, err)
	}

	n.mu.Lock()
	n.channels[ownerID] = channel.ID
	n.mu.Unlock()
	return channel.ID, nil
}
