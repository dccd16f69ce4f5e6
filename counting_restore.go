package main

import (
	"strconv"
	"strings"
)

// When the most recent accepted count disappears from the channel, the
// game silently loses a valid number unless someone reposts it. The
// audit log tells us who deleted it: a self-delete or a bot cleanup is
// restored, a moderator's deliberate removal is respected.

type auditDeletion struct {
	ExecutorID string
	TargetID   string
	ChannelID  string
}

// shouldRestoreDeleted is the pure decision: given the deleted
// message's author, our own bot user id, the counting channel and the
// recent message-delete audit entries, decide whether to repost. Only
// entries for the counting channel count; a moderator cleaning up the
// same author elsewhere says nothing about this deletion. A failed
// audit fetch restores rather than lose a valid count.
func shouldRestoreDeleted(authorID, botID, channelID string, entries []auditDeletion, fetchErr error) bool {
	if fetchErr != nil {
		return true
	}
	for _, e := range entries {
		if e.TargetID != authorID || e.ChannelID != channelID {
			continue
		}
		// Most recent deletion targeting this author. Self-cleanup and
		// bot actions restore; anyone else is a moderator call.
		return e.ExecutorID == authorID || e.ExecutorID == botID
	}
	// No matching audit entry; Discord omits self-deletes entirely.
	return true
}

// parseDeletedCount extracts the literal integer a deleted counting
// message carried. Only plain numbers are considered; a deleted
// arithmetic expression is not worth reconstructing.
func parseDeletedCount(content string) (int64, bool) {
	content = strings.TrimSpace(content)
	if content == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(content, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
