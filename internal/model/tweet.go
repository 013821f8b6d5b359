package model

import "time"

// MaxMessageLength is the posting API's limit, counted in runes.
const MaxMessageLength = 140

type Tweet struct {
	ID        int64      `json:"id"`
	Message   string     `json:"message"`
	SendAt    time.Time  `json:"sendAt"`
	Sent      bool       `json:"sent"`
	Attempts  int        `json:"attempts"`
	LastError *string    `json:"lastError,omitempty"`
	SentAt    *time.Time `json:"sentAt,omitempty"`
	RemoteID  *string    `json:"remoteId,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Due reports whether the tweet should already have been delivered at now.
func (t Tweet) Due(now time.Time) bool {
	return !t.Sent && !t.SendAt.After(now)
}
