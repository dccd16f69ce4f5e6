package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hako/durafmt"
)

var emojiByMilestone = map[string]string{
	milestoneNormal: "✅",
	milestone25:     "✨",
	milestone50:     "🎉",
	milestone100:    "🎉",
}

const (
	emojiHundred = "💯"
	emojiWrong   = "❌"
)

type countingBot struct {
	dg        *discordgo.Session
	cfg       Config
	store     *countingStore
	bans      *banList
	esc       *escalator
	modlog    *modLog
	queue     *countingQueue
	botUserID string

	// Seams over the discordgo session so the evaluation path can be
	// exercised in tests without a live gateway.
	sendMessage         func(channelID, content string)
	react               func(channelID, messageID, emoji string)
	fetchAuditDeletions func(guildID string) ([]auditDeletion, error)
	now                 func() time.Time
}

func newCountingBot(cfg Config, store *countingStore, bans *banList, modlog *modLog) *countingBot {
	b := &countingBot{
		cfg:    cfg,
		store:  store,
		bans:   bans,
		esc:    newEscalator(cfg),
		modlog: modlog,
	}
	b.queue = newCountingQueue(b.processCountingMessage)
	b.sendMessage = b.discordSendMessage
	b.react = b.discordReact
	b.fetchAuditDeletions = b.discordFetchAuditDeletions
	b.now = time.Now
	bans.announce = func(text string) { b.sendMessage(cfg.CountingChannelID, text) }
	bans.applyExclusion = b.applyChannelExclusion
	return b
}

func (b *countingBot) start() error {
	token := strings.TrimSpace(b.cfg.BotToken)
	if token == "" {
		return fmt.Errorf("discord bot token not configured")
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return err
	}
	dg.Identify.Intents = discordgo.MakeIntent(
		discordgo.IntentsGuilds |
			discordgo.IntentsGuildMessages |
			discordgo.IntentMessageContent,
	)
	// Keep recent messages cached so MessageDelete events still carry
	// the deleted content for the restoration heuristic.
	dg.State.MaxMessageCount = 500

	dg.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		b.handleMessageCreate(m)
	})
	dg.AddHandler(func(s *discordgo.Session, m *discordgo.MessageDelete) {
		b.handleMessageDelete(m)
	})
	dg.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type != discordgo.InteractionApplicationCommand {
			return
		}
		b.handleCommand(s, i)
	})

	if err := dg.Open(); err != nil {
		return err
	}
	b.dg = dg
	if dg.State != nil && dg.State.User != nil {
		b.botUserID = dg.State.User.ID
	}

	if err := b.registerCommands(); err != nil {
		logger.Warn("discord command registration failed", "error", err)
	}

	logger.Info("counting bot started",
		"guild_id", b.cfg.DiscordGuildID,
		"channel_id", b.cfg.CountingChannelID,
	)
	return nil
}

func (b *countingBot) close() {
	if b.queue != nil {
		b.queue.close()
	}
	if b.dg != nil {
		_ = b.dg.Close()
	}
}

func (b *countingBot) handleMessageCreate(m *discordgo.MessageCreate) {
	if m == nil || m.Author == nil || m.Author.Bot {
		return
	}
	if m.ChannelID != b.cfg.CountingChannelID {
		return
	}
	b.queue.enqueue(countingMessage{
		MessageID: m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		AuthorID:  m.Author.ID,
		Content:   m.Content,
	})
}

// processCountingMessage is the queue worker body: exactly one
// invocation runs at a time. State is persisted inside store.Update
// before any reaction or feedback goes out, so a crash between the two
// only loses cosmetics.
func (b *countingBot) processCountingMessage(task countingMessage) {
	var (
		res    countResult
		escRes escalationResult
		banned bool
		rollTo int64
		escHit bool
	)
	err := b.store.Update(func(st *CountingState) error {
		if st.isBanned(task.AuthorID) {
			banned = true
			return errNoStateChange
		}
		res = validateCount(task.Content, task.AuthorID, st)
		switch res.Outcome {
		case countTooHigh, countTooLow, countSameUser:
			escHit = true
			escRes = b.esc.recordMistake(st, task.AuthorID, b.now())
			if escRes.Ban {
				st.rollbackCount()
				rollTo = st.CurrentCount
			}
		}
		return nil
	})
	if err != nil {
		// Without a trustworthy state read the message is dropped
		// rather than guessed at.
		logger.Error("counting state update failed", "message_id", task.MessageID, "error", err)
		return
	}

	if banned {
		b.react(task.ChannelID, task.MessageID, emojiWrong)
		return
	}

	switch res.Outcome {
	case countAccepted:
		b.react(task.ChannelID, task.MessageID, emojiByMilestone[res.Milestone])
		if res.Milestone == milestone100 {
			b.react(task.ChannelID, task.MessageID, emojiHundred)
		}
	case countNotANumber:
		b.react(task.ChannelID, task.MessageID, emojiWrong)
		b.sendMessage(task.ChannelID, fmt.Sprintf(
			"<@%s> that doesn't look like a number. The counter has been reset to 0.", task.AuthorID))
	default:
		b.react(task.ChannelID, task.MessageID, emojiWrong)
		if !escRes.Ban {
			// On a ban the announcement carries the rollback number instead.
			b.sendMessage(task.ChannelID, b.mistakeFeedback(task.AuthorID, res))
		}
		if escHit {
			b.emitEscalation(task, escRes, rollTo)
		}
	}
}

func (b *countingBot) mistakeFeedback(authorID string, res countResult) string {
	next := res.Count + 1
	switch res.Outcome {
	case countTooHigh:
		return fmt.Sprintf("<@%s> too high! The next number is %d.", authorID, next)
	case countTooLow:
		return fmt.Sprintf("<@%s> too low! The next number is %d.", authorID, next)
	case countSameUser:
		return fmt.Sprintf("<@%s> you can't count twice in a row. The next number is %d.", authorID, next)
	}
	return fmt.Sprintf("<@%s> that doesn't count. The next number is %d.", authorID, next)
}

func (b *countingBot) emitEscalation(task countingMessage, escRes escalationResult, rollTo int64) {
	if escRes.Ban {
		duration := b.cfg.AutoBanDuration
		if err := b.bans.Ban(task.AuthorID, task.GuildID, "auto", "counting warnings exceeded", duration); err != nil {
			logger.Error("counting auto-ban failed", "user", task.AuthorID, "error", err)
			return
		}
		text := fmt.Sprintf("<@%s> has been banned from counting", task.AuthorID)
		if duration > 0 {
			text += " for " + durafmt.Parse(duration).LimitFirstN(2).String()
		}
		text += fmt.Sprintf(". The counter rolled back to %d.", rollTo)
		b.sendMessage(task.ChannelID, text)
		return
	}
	if escRes.Warning {
		b.modlog.Append(modLogEntry{
			Action:    "counting_warning",
			Target:    task.AuthorID,
			Moderator: "auto",
			Reason:    fmt.Sprintf("warning %d of %d", escRes.Warnings, b.cfg.MaxWarnings),
		})
		b.sendMessage(task.ChannelID, fmt.Sprintf(
			"<@%s> warning %d/%d — slow down and count carefully.",
			task.AuthorID, escRes.Warnings, b.cfg.MaxWarnings))
	}
}

// handleMessageDelete reposts the most recent accepted count when it
// was deleted by its own author or by a bot; a moderator's deletion is
// respected.
func (b *countingBot) handleMessageDelete(m *discordgo.MessageDelete) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("delete handler panic", "error", r)
		}
	}()
	if m == nil || m.ChannelID != b.cfg.CountingChannelID {
		return
	}
	if m.BeforeDelete == nil || m.BeforeDelete.Author == nil || m.BeforeDelete.Author.Bot {
		return
	}
	authorID := m.BeforeDelete.Author.ID
	n, ok := parseDeletedCount(m.BeforeDelete.Content)
	if !ok || n == 0 {
		return
	}

	st, err := b.store.Load()
	if err != nil {
		logger.Warn("restoration state load failed", "error", err)
		return
	}
	if n != st.CurrentCount {
		return
	}

	entries, fetchErr := b.fetchAuditDeletions(m.GuildID)
	if fetchErr != nil {
		logger.Warn("audit log fetch failed, restoring anyway", "error", fetchErr)
	}
	if !shouldRestoreDeleted(authorID, b.botUserID, m.ChannelID, entries, fetchErr) {
		logger.Debug("restoration suppressed, moderator deletion", "count", n)
		return
	}
	b.sendMessage(m.ChannelID, fmt.Sprintf("%d (restored — the count is still %d)", n, n))
	logger.Info("deleted count restored", "count", n, "author", authorID)
}

func (b *countingBot) discordSendMessage(channelID, content string) {
	if b.dg == nil || channelID == "" || content == "" {
		return
	}
	if _, err := b.dg.ChannelMessageSend(channelID, content); err != nil {
		logger.Warn("discord message send failed", "channel", channelID, "error", err)
	}
}

func (b *countingBot) discordReact(channelID, messageID, emoji string) {
	if b.dg == nil || emoji == "" {
		return
	}
	if err := b.dg.MessageReactionAdd(channelID, messageID, emoji); err != nil {
		logger.Warn("discord reaction failed", "channel", channelID, "error", err)
	}
}

func (b *countingBot) discordFetchAuditDeletions(guildID string) ([]auditDeletion, error) {
	if b.dg == nil || guildID == "" {
		return nil, fmt.Errorf("no session")
	}
	audit, err := b.dg.GuildAuditLog(guildID, "", "", int(discordgo.AuditLogActionMessageDelete), 20)
	if err != nil {
		return nil, err
	}
	entries := make([]auditDeletion, 0, len(audit.AuditLogEntries))
	for _, e := range audit.AuditLogEntries {
		if e == nil {
			continue
		}
		d := auditDeletion{ExecutorID: e.UserID, TargetID: e.TargetID}
		if e.Options != nil {
			d.ChannelID = e.Options.ChannelID
		}
		entries = append(entries, d)
	}
	return entries, nil
}

// applyChannelExclusion denies the participant the permission to send
// messages in the counting channel, a channel-scoped ban rather than a
// guild-wide one.
func (b *countingBot) applyChannelExclusion(guildID, userID string, excluded bool) error {
	if b.dg == nil {
		return nil
	}
	if excluded {
		return b.dg.ChannelPermissionSet(
			b.cfg.CountingChannelID, userID, discordgo.PermissionOverwriteTypeMember,
			0, discordgo.PermissionSendMessages,
		)
	}
	return b.dg.ChannelPermissionDelete(b.cfg.CountingChannelID, userID)
}
