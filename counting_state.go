package main

import "time"

// CountingState is the single process-wide record backing the counting
// game. It is owned by the counting store and mutated only through the
// queue worker and the ban list; every mutation is persisted before any
// user-visible feedback is sent.
type CountingState struct {
	CurrentCount int64  `json:"current_count"`
	LastUserID   string `json:"last_user_id,omitempty"`
	HighestCount int64  `json:"highest_count"`
	TotalCorrect int64  `json:"total_correct"`
	// BannedUsers is kept alongside BannedMeta for records written by
	// older builds that only stored the flat list. normalize reconciles
	// the two on load.
	BannedUsers    []string                `json:"banned_users,omitempty"`
	BannedMeta     map[string]banMeta      `json:"banned_meta,omitempty"`
	MistakeTracker map[string]*mistakeInfo `json:"mistake_tracker,omitempty"`
}

type banMeta struct {
	// ExpiresAt nil means the ban is indefinite and only a manual unban
	// lifts it.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	GuildID   string     `json:"guild_id,omitempty"`
}

type mistakeInfo struct {
	Mistakes    int       `json:"mistakes"`
	Warnings    int       `json:"warnings"`
	LastUpdated time.Time `json:"last_updated"`
}

func newCountingState() *CountingState {
	return &CountingState{
		BannedMeta:     make(map[string]banMeta),
		MistakeTracker: make(map[string]*mistakeInfo),
	}
}

// normalize rebuilds the derived fields: missing maps are allocated, the
// flat ban list is regenerated from the metadata, the high-water mark is
// lifted and a stale last author is cleared. BannedMeta is the source of
// truth here; folding a legacy flat list into it happens only on load,
// via mergeLegacyBans, so removing a metadata entry actually unbans.
func (st *CountingState) normalize() {
	if st.BannedMeta == nil {
		st.BannedMeta = make(map[string]banMeta)
	}
	if st.MistakeTracker == nil {
		st.MistakeTracker = make(map[string]*mistakeInfo)
	}
	st.BannedUsers = st.BannedUsers[:0]
	for id := range st.BannedMeta {
		st.BannedUsers = append(st.BannedUsers, id)
	}
	if st.HighestCount < st.CurrentCount {
		st.HighestCount = st.CurrentCount
	}
	if st.CurrentCount == 0 {
		st.LastUserID = ""
	}
}

// mergeLegacyBans folds a flat banned_users list written by older builds
// into BannedMeta as indefinite bans. Called on the load path only.
// Reports whether any entry was added so the caller can persist the
// corrected shape.
func (st *CountingState) mergeLegacyBans() bool {
	if st.BannedMeta == nil {
		st.BannedMeta = make(map[string]banMeta)
	}
	healed := false
	for _, id := range st.BannedUsers {
		if id == "" {
			continue
		}
		if _, ok := st.BannedMeta[id]; !ok {
			st.BannedMeta[id] = banMeta{}
			healed = true
		}
	}
	return healed
}

func (st *CountingState) isBanned(userID string) bool {
	_, ok := st.BannedMeta[userID]
	return ok
}

func (st *CountingState) addBan(userID, guildID string, expiresAt *time.Time) {
	st.BannedMeta[userID] = banMeta{ExpiresAt: expiresAt, GuildID: guildID}
	st.normalize()
}

func (st *CountingState) removeBan(userID string) {
	delete(st.BannedMeta, userID)
	st.normalize()
}

// resetCount zeroes the counter. The high-water mark and lifetime total
// are preserved.
func (st *CountingState) resetCount() {
	st.CurrentCount = 0
	st.LastUserID = ""
}

// rollbackCount steps the counter back by one after a ban so the banned
// participant's final claim is not counted. LastUserID is cleared so any
// participant may post the next number.
func (st *CountingState) rollbackCount() {
	if st.CurrentCount > 0 {
		st.CurrentCount--
	}
	st.LastUserID = ""
}
