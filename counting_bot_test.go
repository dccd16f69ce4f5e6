package main

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

func newTestBot(t *testing.T) (*countingBot, *messageRecorder, *countingStore) {
	t.Helper()
	store := newTestStore(t)
	cfg := defaultConfig()
	cfg.DiscordGuildID = "G"
	cfg.CountingChannelID = "C"
	cfg.AutoBanDuration = time.Hour

	modlog := newModLog("")
	bans := newBanList(store, modlog)
	bot := newCountingBot(cfg, store, bans, modlog)

	rec := &messageRecorder{}
	bot.sendMessage = rec.send
	bot.react = rec.reactTo
	bot.fetchAuditDeletions = func(string) ([]auditDeletion, error) { return nil, nil }

	t.Cleanup(func() {
		bans.Stop()
		bot.queue.close()
	})
	return bot, rec, store
}

func countingTask(author, content string) countingMessage {
	return countingMessage{
		MessageID: "m-" + content,
		ChannelID: "C",
		GuildID:   "G",
		AuthorID:  author,
		Content:   content,
	}
}

func TestProcessMessageAcceptReacts(t *testing.T) {
	bot, rec, store := newTestBot(t)

	bot.processCountingMessage(countingTask("A", "1"))
	bot.processCountingMessage(countingTask("B", "2"))

	st, err := store.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if st.CurrentCount != 2 || st.LastUserID != "B" {
		t.Fatalf("state = {%d, %q}, want {2, B}", st.CurrentCount, st.LastUserID)
	}
	msgs, reactions := rec.snapshot()
	if len(msgs) != 0 {
		t.Fatalf("accepted counts should produce no chat feedback, got %v", msgs)
	}
	if len(reactions) != 2 || reactions[0] != "✅" || reactions[1] != "✅" {
		t.Fatalf("reactions = %v, want two ✅", reactions)
	}
}

func TestProcessMessageHundredGetsBonusReaction(t *testing.T) {
	bot, rec, store := newTestBot(t)
	if err := store.Update(func(st *CountingState) error {
		st.CurrentCount = 99
		st.HighestCount = 99
		return nil
	}); err != nil {
		t.Fatalf("seed error: %v", err)
	}

	bot.processCountingMessage(countingTask("A", "100"))

	_, reactions := rec.snapshot()
	if len(reactions) != 2 || reactions[1] != "💯" {
		t.Fatalf("reactions = %v, want tier emoji plus 💯", reactions)
	}
}

func TestProcessMessageNotANumberResetsAndReplies(t *testing.T) {
	bot, rec, store := newTestBot(t)
	if err := store.Update(func(st *CountingState) error {
		st.CurrentCount = 41
		st.HighestCount = 41
		st.LastUserID = "A"
		return nil
	}); err != nil {
		t.Fatalf("seed error: %v", err)
	}

	bot.processCountingMessage(countingTask("B", "lol"))

	st, _ := store.Load()
	if st.CurrentCount != 0 || st.LastUserID != "" {
		t.Fatalf("expected reset, got {%d, %q}", st.CurrentCount, st.LastUserID)
	}
	msgs, reactions := rec.snapshot()
	if len(reactions) != 1 || reactions[0] != "❌" {
		t.Fatalf("reactions = %v, want ❌", reactions)
	}
	if len(msgs) != 1 || !strings.Contains(msgs[0], "reset to 0") {
		t.Fatalf("feedback = %v, want reset notice", msgs)
	}
}

func TestProcessMessageBannedUserIgnored(t *testing.T) {
	bot, rec, store := newTestBot(t)
	if err := store.Update(func(st *CountingState) error {
		st.CurrentCount = 41
		st.addBan("A", "G", nil)
		return nil
	}); err != nil {
		t.Fatalf("seed error: %v", err)
	}

	bot.processCountingMessage(countingTask("A", "42"))

	st, _ := store.Load()
	if st.CurrentCount != 41 {
		t.Fatalf("banned participant moved the counter to %d", st.CurrentCount)
	}
	msgs, reactions := rec.snapshot()
	if len(msgs) != 0 {
		t.Fatalf("banned participant got feedback: %v", msgs)
	}
	if len(reactions) != 1 || reactions[0] != "❌" {
		t.Fatalf("reactions = %v, want a single ❌", reactions)
	}
}

func TestProcessMessageEscalatesToBanWithRollback(t *testing.T) {
	bot, rec, store := newTestBot(t)
	if err := store.Update(func(st *CountingState) error {
		st.CurrentCount = 10
		st.HighestCount = 10
		return nil
	}); err != nil {
		t.Fatalf("seed error: %v", err)
	}

	// threshold 5 x maxWarnings 3 = 15 mistakes to a ban.
	for i := 0; i < 15; i++ {
		bot.processCountingMessage(countingTask("A", "99"))
	}

	st, err := store.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if !st.isBanned("A") {
		t.Fatalf("participant not banned after 15 mistakes")
	}
	meta := st.BannedMeta["A"]
	if meta.ExpiresAt == nil {
		t.Fatalf("escalated ban should carry the auto expiry")
	}
	if st.CurrentCount != 9 {
		t.Fatalf("counter = %d, want rollback to 9", st.CurrentCount)
	}
	if st.LastUserID != "" {
		t.Fatalf("lastUserId should clear on rollback, got %q", st.LastUserID)
	}

	msgs, _ := rec.snapshot()
	var warnings, banNotices int
	for _, m := range msgs {
		if strings.Contains(m, "warning") {
			warnings++
		}
		if strings.Contains(m, "banned from counting") {
			banNotices++
		}
	}
	if warnings != 2 {
		t.Fatalf("chat warnings = %d, want 2 (the third escalates straight to the ban)", warnings)
	}
	if banNotices != 1 {
		t.Fatalf("ban notices = %d, want 1", banNotices)
	}
}

func TestProcessMessageMistakeWindowExpiresViaClock(t *testing.T) {
	bot, rec, store := newTestBot(t)
	clock := time.Now()
	bot.now = func() time.Time { return clock }
	if err := store.Update(func(st *CountingState) error {
		st.CurrentCount = 10
		st.HighestCount = 10
		return nil
	}); err != nil {
		t.Fatalf("seed error: %v", err)
	}

	// Four mistakes inside the window, then one more after it lapsed.
	for i := 0; i < 4; i++ {
		bot.processCountingMessage(countingTask("A", "99"))
	}
	clock = clock.Add(defaultMistakeWindow + time.Minute)
	bot.processCountingMessage(countingTask("A", "99"))

	st, err := store.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	info := st.MistakeTracker["A"]
	if info == nil || info.Mistakes != 1 || info.Warnings != 0 {
		t.Fatalf("tracker after lapsed window = %+v, want 1 mistake, 0 warnings", info)
	}
	msgs, _ := rec.snapshot()
	for _, m := range msgs {
		if strings.Contains(m, "warning") {
			t.Fatalf("fifth mistake after the window lapsed still warned: %v", msgs)
		}
	}
}

func TestProcessMessageSameUserTwice(t *testing.T) {
	bot, rec, store := newTestBot(t)

	bot.processCountingMessage(countingTask("A", "1"))
	bot.processCountingMessage(countingTask("A", "2"))

	st, _ := store.Load()
	if st.CurrentCount != 1 {
		t.Fatalf("count = %d, want 1", st.CurrentCount)
	}
	msgs, _ := rec.snapshot()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "twice in a row") {
		t.Fatalf("feedback = %v, want same-user notice", msgs)
	}
}

func TestHandleMessageDeleteRestores(t *testing.T) {
	bot, rec, store := newTestBot(t)
	if err := store.Update(func(st *CountingState) error {
		st.CurrentCount = 5
		st.HighestCount = 5
		st.LastUserID = "A"
		return nil
	}); err != nil {
		t.Fatalf("seed error: %v", err)
	}

	bot.handleMessageDelete(deletedMessage("A", "5"))

	msgs, _ := rec.snapshot()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "5") || !strings.Contains(msgs[0], "restored") {
		t.Fatalf("restoration message missing: %v", msgs)
	}
}

func TestHandleMessageDeleteModeratorSuppresses(t *testing.T) {
	bot, rec, store := newTestBot(t)
	if err := store.Update(func(st *CountingState) error {
		st.CurrentCount = 5
		return nil
	}); err != nil {
		t.Fatalf("seed error: %v", err)
	}
	bot.fetchAuditDeletions = func(string) ([]auditDeletion, error) {
		return []auditDeletion{{ExecutorID: "MOD", TargetID: "A", ChannelID: "C"}}, nil
	}

	bot.handleMessageDelete(deletedMessage("A", "5"))

	if msgs, _ := rec.snapshot(); len(msgs) != 0 {
		t.Fatalf("moderator deletion should suppress restoration, got %v", msgs)
	}
}

func TestHandleMessageDeleteOtherChannelModeration(t *testing.T) {
	bot, rec, store := newTestBot(t)
	if err := store.Update(func(st *CountingState) error {
		st.CurrentCount = 5
		return nil
	}); err != nil {
		t.Fatalf("seed error: %v", err)
	}
	// The moderator cleaned up this author somewhere else; the counting
	// channel deletion is still the author's own.
	bot.fetchAuditDeletions = func(string) ([]auditDeletion, error) {
		return []auditDeletion{{ExecutorID: "MOD", TargetID: "A", ChannelID: "off-topic"}}, nil
	}

	bot.handleMessageDelete(deletedMessage("A", "5"))

	msgs, _ := rec.snapshot()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "restored") {
		t.Fatalf("deletion in another channel should not suppress restoration, got %v", msgs)
	}
}

func TestHandleMessageDeleteStaleCountIgnored(t *testing.T) {
	bot, rec, store := newTestBot(t)
	if err := store.Update(func(st *CountingState) error {
		st.CurrentCount = 10
		return nil
	}); err != nil {
		t.Fatalf("seed error: %v", err)
	}

	// An older number being deleted is not the live count.
	bot.handleMessageDelete(deletedMessage("A", "5"))

	if msgs, _ := rec.snapshot(); len(msgs) != 0 {
		t.Fatalf("stale deletion should be ignored, got %v", msgs)
	}
}

func deletedMessage(author, content string) *discordgo.MessageDelete {
	return &discordgo.MessageDelete{
		Message: &discordgo.Message{
			ID:        "del-" + content,
			ChannelID: "C",
			GuildID:   "G",
		},
		BeforeDelete: &discordgo.Message{
			Content: content,
			Author:  &discordgo.User{ID: author},
		},
	}
}
