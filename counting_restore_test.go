package main

import (
	"errors"
	"testing"
)

func TestShouldRestoreDeleted(t *testing.T) {
	const (
		author  = "A"
		bot     = "BOT"
		mod     = "M"
		channel = "C"
	)
	cases := []struct {
		name     string
		entries  []auditDeletion
		fetchErr error
		want     bool
	}{
		{
			name: "no matching audit entry restores",
			want: true,
		},
		{
			name:    "self deletion restores",
			entries: []auditDeletion{{ExecutorID: author, TargetID: author, ChannelID: channel}},
			want:    true,
		},
		{
			name:    "bot deletion restores",
			entries: []auditDeletion{{ExecutorID: bot, TargetID: author, ChannelID: channel}},
			want:    true,
		},
		{
			name:    "moderator deletion suppresses",
			entries: []auditDeletion{{ExecutorID: mod, TargetID: author, ChannelID: channel}},
			want:    false,
		},
		{
			name: "only the most recent matching entry counts",
			entries: []auditDeletion{
				{ExecutorID: mod, TargetID: author, ChannelID: channel},
				{ExecutorID: author, TargetID: author, ChannelID: channel},
			},
			want: false,
		},
		{
			name: "entries for other targets are skipped",
			entries: []auditDeletion{
				{ExecutorID: mod, TargetID: "someone-else", ChannelID: channel},
				{ExecutorID: author, TargetID: author, ChannelID: channel},
			},
			want: true,
		},
		{
			name: "moderator deletion in another channel is ignored",
			entries: []auditDeletion{
				{ExecutorID: mod, TargetID: author, ChannelID: "off-topic"},
			},
			want: true,
		},
		{
			name: "other channel entry does not shadow the counting one",
			entries: []auditDeletion{
				{ExecutorID: author, TargetID: author, ChannelID: "off-topic"},
				{ExecutorID: mod, TargetID: author, ChannelID: channel},
			},
			want: false,
		},
		{
			name:     "audit fetch failure fails open",
			fetchErr: errors.New("api down"),
			want:     true,
		},
	}
	for _, tc := range cases {
		got := shouldRestoreDeleted(author, bot, channel, tc.entries, tc.fetchErr)
		if got != tc.want {
			t.Errorf("%s: shouldRestoreDeleted = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestParseDeletedCount(t *testing.T) {
	cases := []struct {
		content string
		want    int64
		ok      bool
	}{
		{"42", 42, true},
		{" 42 ", 42, true},
		{"0", 0, true},
		{"6*7", 0, false},
		{"-5", 0, false},
		{"hello", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseDeletedCount(tc.content)
		if ok != tc.ok || got != tc.want {
			t.Errorf("parseDeletedCount(%q) = (%d, %v), want (%d, %v)", tc.content, got, ok, tc.want, tc.ok)
		}
	}
}
