package channels

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/dotsetgreg/planbot/pkg/bus"
	"github.com/dotsetgreg/planbot/pkg/config"
	"github.com/dotsetgreg/planbot/pkg/logger"
	"github.com/dotsetgreg/planbot/pkg/planner"
	"github.com/dotsetgreg/planbot/pkg/utils"
)

const (
	sendTimeout = 10 * time.Second

	// Discord allows 2000 characters; leave room for list numbering.
	messageLimit = 1900

	maxButtonsPerRow = 5
	maxRows          = 5
	menuIDPrefix     = "menu:"
)

type DiscordChannel struct {
	*BaseChannel
	session *discordgo.Session

	dmMu sync.Mutex
	dms  map[string]string
}

func NewDiscordChannel(cfg config.DiscordConfig, bus *bus.MessageBus) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsDirectMessages |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	return &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", bus, cfg.AllowFrom),
		session:     session,
		dms:         make(map[string]string),
	}, nil
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	logger.InfoC("discord", "Starting Discord bot")

	c.session.AddHandler(c.handleMessage)
	c.session.AddHandler(c.handleInteraction)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	c.setRunning(true)

	botUser, err := c.session.User("@me")
	if err != nil {
		return fmt.Errorf("failed to get bot user: %w", err)
	}
	logger.InfoCF("discord", "Discord bot connected", map[string]interface{}{
		"username": botUser.Username,
		"user_id":  botUser.ID,
	})

	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	logger.InfoC("discord", "Stopping Discord bot")
	c.setRunning(false)

	if err := c.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}

	return nil
}

// Send delivers msg to the user's DM channel, or to msg.ChatID when the
// turn came from elsewhere. The menu rides on the last chunk.
func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return ErrNotRunning
	}

	channelID, err := c.targetChannel(msg)
	if err != nil {
		return err
	}

	content := msg.Content
	if strings.TrimSpace(content) == "" {
		content = "."
	}
	chunks := splitMessage(content, messageLimit)
	for i, chunk := range chunks {
		send := &discordgo.MessageSend{Content: chunk}
		if i == len(chunks)-1 && len(msg.Menu) > 0 {
			send.Components = menuComponents(msg.Menu)
		}
		if err := c.sendComplex(ctx, channelID, send); err != nil {
			return err
		}
	}
	return nil
}

// Forward re-posts the attachments of a saved message. Falls back to a jump
// link when the original cannot be fetched.
func (c *DiscordChannel) Forward(ctx context.Context, userID string, ref planner.PhotoRef) error {
	if !c.IsRunning() {
		return ErrNotRunning
	}
	channelID, err := c.dmChannel(userID)
	if err != nil {
		return err
	}

	var urls []string
	orig, err := c.session.ChannelMessage(ref.Peer, ref.Message)
	if err != nil {
		logger.WarnCF("discord", "Saved message unavailable, sending link", map[string]interface{}{
			"user_id":    userID,
			"channel_id": ref.Peer,
			"message_id": ref.Message,
			"error":      err.Error(),
		})
		urls = append(urls, fmt.Sprintf("https://discord.com/channels/@me/%s/%s", ref.Peer, ref.Message))
	} else {
		for _, a := range orig.Attachments {
			urls = append(urls, a.URL)
		}
	}
	if len(urls) == 0 {
		return fmt.Errorf("message %s has no attachments", ref.Message)
	}

	return c.sendComplex(ctx, channelID, &discordgo.MessageSend{Content: strings.Join(urls, "\n")})
}

func (c *DiscordChannel) targetChannel(msg bus.OutboundMessage) (string, error) {
	if msg.ChatID != "" {
		return msg.ChatID, nil
	}
	if msg.UserID == "" {
		return "", fmt.Errorf("outbound message has neither chat nor user id")
	}
	return c.dmChannel(msg.UserID)
}

func (c *DiscordChannel) dmChannel(userID string) (string, error) {
	c.dmMu.Lock()
	defer c.dmMu.Unlock()
	if id, ok := c.dms[userID]; ok {
		return id, nil
	}
	ch, err := c.session.UserChannelCreate(userID)
	if err != nil {
		return "", fmt.Errorf("open DM with %s: %w", userID, err)
	}
	c.dms[userID] = ch.ID
	return ch.ID, nil
}

func (c *DiscordChannel) sendComplex(ctx context.Context, channelID string, send *discordgo.MessageSend) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := c.session.ChannelMessageSendComplex(channelID, send)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send discord message: %w", err)
		}
		return nil
	case <-sendCtx.Done():
		return fmt.Errorf("send message timeout: %w", sendCtx.Err())
	}
}

// menuComponents lays the menu out as button rows within Discord's 5x5
// component limit.
func menuComponents(menu bus.Menu) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	for _, row := range menu {
		for start := 0; start < len(row); start += maxButtonsPerRow {
			end := start + maxButtonsPerRow
			if end > len(row) {
				end = len(row)
			}
			buttons := make([]discordgo.MessageComponent, 0, end-start)
			for _, label := range row[start:end] {
				buttons = append(buttons, discordgo.Button{
					Label:    label,
					Style:    buttonStyle(label),
					CustomID: menuIDPrefix + label,
				})
			}
			rows = append(rows, discordgo.ActionsRow{Components: buttons})
			if len(rows) == maxRows {
				return rows
			}
		}
	}
	return rows
}

func buttonStyle(label string) discordgo.ButtonStyle {
	switch {
	case strings.HasPrefix(label, "Del"):
		return discordgo.DangerButton
	case label == "Back to menu":
		return discordgo.SecondaryButton
	case label == "Suggest" || label == "Quick note" || label == "Complete":
		return discordgo.SuccessButton
	default:
		return discordgo.PrimaryButton
	}
}

// splitMessage cuts content into chunks of at most limit bytes, preferring
// line breaks, then spaces.
func splitMessage(content string, limit int) []string {
	var chunks []string
	for len(content) > limit {
		cut := strings.LastIndex(content[:limit], "\n")
		if cut <= 0 {
			cut = strings.LastIndex(content[:limit], " ")
		}
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8Start(content[cut]) {
				cut--
			}
		}
		chunks = append(chunks, content[:cut])
		content = strings.TrimLeft(content[cut:], "\n ")
	}
	if content != "" || len(chunks) == 0 {
		chunks = append(chunks, content)
	}
	return chunks
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}

func (c *DiscordChannel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Author == nil {
		return
	}

	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	if m.Author.Bot {
		return
	}

	if !c.IsAllowed(m.Author.ID) {
		logger.DebugCF("discord", "Message rejected by allowlist", map[string]interface{}{
			"user_id": m.Author.ID,
		})
		return
	}

	attachments := make([]string, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		attachments = append(attachments, a.URL)
	}
	if strings.TrimSpace(m.Content) == "" && len(attachments) == 0 {
		return
	}

	if m.GuildID == "" {
		c.rememberDM(m.Author.ID, m.ChannelID)
	}

	logger.DebugCF("discord", "Received message", map[string]interface{}{
		"user_id":     m.Author.ID,
		"preview":     utils.Truncate(m.Content, 50),
		"attachments": len(attachments),
	})

	metadata := map[string]string{
		"username":   m.Author.Username,
		"guild_id":   m.GuildID,
		"channel_id": m.ChannelID,
		"is_dm":      fmt.Sprintf("%t", m.GuildID == ""),
	}

	c.HandleMessage(m.Author.ID, m.ChannelID, m.ID, m.Content, attachments, metadata)
}

// handleInteraction turns a menu button press into an inbound turn carrying
// the button label.
func (c *DiscordChannel) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i == nil || i.Type != discordgo.InteractionMessageComponent {
		return
	}
	data := i.MessageComponentData()
	if !strings.HasPrefix(data.CustomID, menuIDPrefix) {
		return
	}

	var user *discordgo.User
	switch {
	case i.Member != nil && i.Member.User != nil:
		user = i.Member.User
	case i.User != nil:
		user = i.User
	default:
		return
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}); err != nil {
		logger.WarnCF("discord", "Failed to acknowledge button press", map[string]interface{}{
			"user_id": user.ID,
			"error":   err.Error(),
		})
	}

	if !c.IsAllowed(user.ID) {
		return
	}
	if i.GuildID == "" {
		c.rememberDM(user.ID, i.ChannelID)
	}

	label := strings.TrimPrefix(data.CustomID, menuIDPrefix)
	c.HandleMessage(user.ID, i.ChannelID, "", label, nil, map[string]string{
		"username":   user.Username,
		"channel_id": i.ChannelID,
		"button":     "true",
	})
}

func (c *DiscordChannel) rememberDM(userID, channelID string) {
	c.dmMu.Lock()
	defer c.dmMu.Unlock()
	c.dms[userID] = channelID
}
