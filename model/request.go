package model

import "time"

// StatusEditRequest is the inbound edit boundary payload. Nil pointer
// fields were absent from the payload and mean "unchanged", not "clear".
// Media and Poll carry their own presence flags because for federated
// updates the payload is a full object representation where an absent
// poll means removal.
type StatusEditRequest struct {
	Text        *string    `json:"text,omitempty"`
	SpoilerText *string    `json:"spoiler_text,omitempty"`
	Sensitive   *bool      `json:"sensitive,omitempty"`
	Language    *string    `json:"language,omitempty" validate:"omitempty,bcp47_language_tag"`
	UpdatedAt   *time.Time `json:"updated,omitempty"`

	MediaProvided bool             `json:"media_provided,omitempty"`
	Media         []AttachmentSpec `json:"media,omitempty" validate:"omitempty,max=16,dive"`

	PollProvided bool      `json:"poll_provided,omitempty"`
	Poll         *PollSpec `json:"poll,omitempty" validate:"omitempty"`

	// entity lists declared by a remote payload, merged with the ones
	// derived from the text
	Tags       []string `json:"tags,omitempty"`
	Mentions   []string `json:"mentions,omitempty"`
	References []string `json:"references,omitempty"`
}

type AttachmentSpec struct {
	RemoteUrl   string `json:"url" validate:"required,url"`
	Description string `json:"name,omitempty" validate:"max=1500"`
}

// PollSpec may carry per-option vote counts observed at the origin.
// VoteCounts is either empty or aligned 1:1 with Options.
type PollSpec struct {
	Options    []string  `json:"options" validate:"required,min=2,max=8"`
	VoteCounts []int64   `json:"vote_counts,omitempty"`
	Multiple   bool      `json:"multiple,omitempty"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
}
