package main

import (
	"sync"
	"time"

	"github.com/remeh/sizedwaitgroup"
)

// banList manages the banned → unbanned lifecycle for counting
// participants. The persisted bannedMeta in CountingState is the source
// of truth; the in-memory timer map only exists to fire pending
// auto-unbans and is rebuilt from the store on startup (rehydrate).
type banList struct {
	store  *countingStore
	modlog *modLog

	// applyExclusion pushes the ban through the chat platform's
	// moderation API (channel permission overwrite). Swappable seam so
	// tests run without a live session. May be nil.
	applyExclusion func(guildID, userID string, banned bool) error
	// announce posts a plain chat message to the counting channel.
	// Failures are cosmetic. May be nil.
	announce func(text string)

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newBanList(store *countingStore, modlog *modLog) *banList {
	return &banList{
		store:  store,
		modlog: modlog,
		timers: make(map[string]*time.Timer),
	}
}

// Ban excludes a participant from the counting game. A zero duration
// means the ban is indefinite and only a manual unban lifts it. Banning
// an already banned participant re-arms the expiry timer.
func (b *banList) Ban(userID, guildID, moderator, reason string, duration time.Duration) error {
	if userID == "" {
		return nil
	}
	var expiresAt *time.Time
	if duration > 0 {
		t := time.Now().Add(duration)
		expiresAt = &t
	}
	err := b.store.Update(func(st *CountingState) error {
		st.addBan(userID, guildID, expiresAt)
		return nil
	})
	if err != nil {
		return err
	}

	if b.applyExclusion != nil {
		if exErr := b.applyExclusion(guildID, userID, true); exErr != nil {
			logger.Warn("counting ban exclusion failed", "user", userID, "error", exErr)
		}
	}
	b.modlog.Append(modLogEntry{Action: "counting_ban", Target: userID, Moderator: moderator, Reason: reason})
	logger.Info("counting participant banned",
		"user", userID,
		"reason", reason,
		"duration", duration,
	)

	if duration > 0 {
		b.armTimer(userID, duration)
	} else {
		b.cancelTimer(userID)
	}
	return nil
}

// Unban lifts a ban, cancels any pending auto-unban timer and persists
// the change.
func (b *banList) Unban(userID, moderator, reason string) error {
	if userID == "" {
		return nil
	}
	b.cancelTimer(userID)
	guildID := ""
	err := b.store.Update(func(st *CountingState) error {
		if meta, ok := st.BannedMeta[userID]; ok {
			guildID = meta.GuildID
		}
		st.removeBan(userID)
		return nil
	})
	if err != nil {
		return err
	}

	if b.applyExclusion != nil {
		if exErr := b.applyExclusion(guildID, userID, false); exErr != nil {
			logger.Warn("counting unban exclusion removal failed", "user", userID, "error", exErr)
		}
	}
	b.modlog.Append(modLogEntry{Action: "counting_unban", Target: userID, Moderator: moderator, Reason: reason})
	logger.Info("counting participant unbanned", "user", userID, "reason", reason)
	return nil
}

// IsBanned reports whether the participant is currently excluded.
func (b *banList) IsBanned(userID string) bool {
	st, err := b.store.Load()
	if err != nil {
		return false
	}
	return st.isBanned(userID)
}

func (b *banList) armTimer(userID string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.timers[userID]; ok {
		old.Stop()
	}
	b.timers[userID] = time.AfterFunc(d, func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("auto-unban timer panic", "user", userID, "error", r)
			}
		}()
		b.mu.Lock()
		delete(b.timers, userID)
		b.mu.Unlock()
		if err := b.Unban(userID, "auto", "ban expired"); err != nil {
			logger.Warn("auto-unban failed", "user", userID, "error", err)
			return
		}
		if b.announce != nil {
			b.announce("<@" + userID + "> your counting ban has expired. Welcome back!")
		}
	})
}

func (b *banList) cancelTimer(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.timers[userID]; ok {
		t.Stop()
		delete(b.timers, userID)
	}
}

// Rehydrate reconstructs auto-unban timers from the persisted metadata
// after a restart. Bans that expired while the process was down are
// lifted immediately; the sweep is bounded so a long backlog of expired
// bans cannot stampede the moderation API.
func (b *banList) Rehydrate(now time.Time) {
	st, err := b.store.Load()
	if err != nil {
		logger.Error("ban rehydration state load failed", "error", err)
		return
	}

	expired := make([]string, 0, 4)
	armed := 0
	for userID, meta := range st.BannedMeta {
		if meta.ExpiresAt == nil {
			continue
		}
		remaining := meta.ExpiresAt.Sub(now)
		if remaining <= 0 {
			expired = append(expired, userID)
			continue
		}
		b.armTimer(userID, remaining)
		armed++
	}

	swg := sizedwaitgroup.New(4)
	for _, userID := range expired {
		swg.Add()
		go func(id string) {
			defer swg.Done()
			if err := b.Unban(id, "auto", "ban expired during downtime"); err != nil {
				logger.Warn("rehydration unban failed", "user", id, "error", err)
			}
		}(userID)
	}
	swg.Wait()

	logger.Info("counting bans rehydrated",
		"expired", len(expired),
		"rearmed", armed,
	)
}

// Stop cancels every pending timer; used on shutdown so the process can
// exit without stray goroutines firing into closed resources.
func (b *banList) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, t := range b.timers {
		t.Stop()
		delete(b.timers, id)
	}
}
