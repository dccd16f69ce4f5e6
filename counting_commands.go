package main

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hako/durafmt"
)

func (b *countingBot) registerCommands() error {
	if b.dg == nil {
		return nil
	}
	appID := ""
	if b.dg.State != nil && b.dg.State.User != nil {
		appID = b.dg.State.User.ID
	}
	guildID := b.cfg.DiscordGuildID
	if appID == "" || guildID == "" {
		return fmt.Errorf("missing appID or guildID")
	}

	cmds := []*discordgo.ApplicationCommand{
		{
			Name:        "count",
			Description: "Counting channel controls",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:        "status",
					Description: "Show the current counting state",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
				},
				{
					Name:        "set",
					Description: "Force-set the current count (moderators only)",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{
							Name:        "value",
							Description: "New count value",
							Type:        discordgo.ApplicationCommandOptionInteger,
							Required:    true,
						},
					},
				},
				{
					Name:        "ban",
					Description: "Ban a participant from counting (moderators only)",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{
							Name:        "user",
							Description: "Participant to ban",
							Type:        discordgo.ApplicationCommandOptionUser,
							Required:    true,
						},
						{
							Name:        "duration",
							Description: "Ban length like 30m, 2h or 1d; omit for indefinite",
							Type:        discordgo.ApplicationCommandOptionString,
						},
						{
							Name:        "reason",
							Description: "Reason recorded in the moderation log",
							Type:        discordgo.ApplicationCommandOptionString,
						},
					},
				},
				{
					Name:        "unban",
					Description: "Lift a counting ban (moderators only)",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{
							Name:        "user",
							Description: "Participant to unban",
							Type:        discordgo.ApplicationCommandOptionUser,
							Required:    true,
						},
					},
				},
			},
		},
	}

	_, err := b.dg.ApplicationCommandBulkOverwrite(appID, guildID, cmds)
	return err
}

func (b *countingBot) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if s == nil || i == nil || i.Member == nil || i.Member.User == nil {
		return
	}
	if i.GuildID != "" && b.cfg.DiscordGuildID != "" && i.GuildID != b.cfg.DiscordGuildID {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != "count" || len(data.Options) == 0 {
		return
	}
	sub := data.Options[0]
	switch sub.Name {
	case "status":
		b.handleStatusCommand(s, i)
	case "set":
		b.handleSetCommand(s, i, sub)
	case "ban":
		b.handleBanCommand(s, i, sub)
	case "unban":
		b.handleUnbanCommand(s, i, sub)
	}
}

func (b *countingBot) handleStatusCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	st, err := b.store.Load()
	if err != nil {
		logger.Warn("status command state load failed", "error", err)
		_ = respondEphemeral(s, i, "Counting state is unavailable right now.")
		return
	}
	last := "nobody yet"
	if st.LastUserID != "" {
		last = "<@" + st.LastUserID + ">"
	}
	_ = respondEphemeral(s, i, fmt.Sprintf(
		"Current count: **%d** (next is **%d**)\nHighest ever: %d\nTotal correct: %d\nLast counted by: %s\nActive bans: %d",
		st.CurrentCount, st.CurrentCount+1, st.HighestCount, st.TotalCorrect, last, len(st.BannedMeta)))
}

func (b *countingBot) handleSetCommand(s *discordgo.Session, i *discordgo.InteractionCreate, sub *discordgo.ApplicationCommandInteractionDataOption) {
	if !memberCanModerate(i) {
		_ = respondEphemeral(s, i, "You need the Manage Channels permission for that.")
		return
	}
	var value int64 = -1
	for _, opt := range sub.Options {
		if opt.Name == "value" && opt.Type == discordgo.ApplicationCommandOptionInteger {
			value = opt.IntValue()
		}
	}
	if value < 0 {
		_ = respondEphemeral(s, i, "The count must be a non-negative integer.")
		return
	}
	err := b.store.Update(func(st *CountingState) error {
		st.CurrentCount = value
		if st.HighestCount < value {
			st.HighestCount = value
		}
		st.LastUserID = ""
		return nil
	})
	if err != nil {
		logger.Error("count set failed", "value", value, "error", err)
		_ = respondEphemeral(s, i, "Failed to update the count (server error).")
		return
	}
	b.modlog.Append(modLogEntry{
		Action:    "counting_set",
		Target:    fmt.Sprintf("%d", value),
		Moderator: i.Member.User.ID,
	})
	b.sendMessage(b.cfg.CountingChannelID, fmt.Sprintf("The count has been set to **%d**. Next is %d.", value, value+1))
	_ = respondEphemeral(s, i, fmt.Sprintf("Count set to %d.", value))
}

func (b *countingBot) handleBanCommand(s *discordgo.Session, i *discordgo.InteractionCreate, sub *discordgo.ApplicationCommandInteractionDataOption) {
	if !memberCanModerate(i) {
		_ = respondEphemeral(s, i, "You need the Manage Channels permission for that.")
		return
	}
	var (
		userID   string
		duration time.Duration
		reason   = "manual ban"
	)
	for _, opt := range sub.Options {
		switch opt.Name {
		case "user":
			if u := opt.UserValue(nil); u != nil {
				userID = u.ID
			}
		case "duration":
			d, err := parseShortDuration(opt.StringValue())
			if err != nil {
				_ = respondEphemeral(s, i, "Invalid duration. Use forms like 30m, 2h or 1d.")
				return
			}
			duration = d
		case "reason":
			if v := opt.StringValue(); v != "" {
				reason = v
			}
		}
	}
	if userID == "" {
		_ = respondEphemeral(s, i, "Missing user.")
		return
	}
	if err := b.bans.Ban(userID, i.GuildID, i.Member.User.ID, reason, duration); err != nil {
		logger.Error("manual ban failed", "user", userID, "error", err)
		_ = respondEphemeral(s, i, "Failed to apply the ban (server error).")
		return
	}
	scope := "indefinitely"
	if duration > 0 {
		scope = "for " + durafmt.Parse(duration).LimitFirstN(2).String()
	}
	_ = respondEphemeral(s, i, fmt.Sprintf("<@%s> banned from counting %s.", userID, scope))
}

func (b *countingBot) handleUnbanCommand(s *discordgo.Session, i *discordgo.InteractionCreate, sub *discordgo.ApplicationCommandInteractionDataOption) {
	if !memberCanModerate(i) {
		_ = respondEphemeral(s, i, "You need the Manage Channels permission for that.")
		return
	}
	var userID string
	for _, opt := range sub.Options {
		if opt.Name == "user" {
			if u := opt.UserValue(nil); u != nil {
				userID = u.ID
			}
		}
	}
	if userID == "" {
		_ = respondEphemeral(s, i, "Missing user.")
		return
	}
	if err := b.bans.Unban(userID, i.Member.User.ID, "manual unban"); err != nil {
		logger.Error("manual unban failed", "user", userID, "error", err)
		_ = respondEphemeral(s, i, "Failed to lift the ban (server error).")
		return
	}
	_ = respondEphemeral(s, i, fmt.Sprintf("<@%s> may count again.", userID))
}

func memberCanModerate(i *discordgo.InteractionCreate) bool {
	if i == nil || i.Member == nil {
		return false
	}
	return i.Member.Permissions&discordgo.PermissionManageChannels != 0
}

func respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) error {
	if s == nil || i == nil {
		return nil
	}
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}
