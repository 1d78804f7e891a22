package model

import "time"

type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
	VisibilityDirect   Visibility = "direct"
	VisibilityLimited  Visibility = "limited"
)

type LimitedScope string

const (
	LimitedScopeNone     LimitedScope = ""
	LimitedScopeCircle   LimitedScope = "circle"
	LimitedScopePersonal LimitedScope = "personal"
)

type Status struct {
	Id          string       `json:"id"`
	Uri         string       `json:"uri"`
	Account     Account      `json:"account"`
	Text        string       `json:"text"`
	SpoilerText string       `json:"spoiler_text,omitempty"`
	Visibility  Visibility   `json:"visibility"`
	Scope       LimitedScope `json:"limited_scope,omitempty"`
	Language    string       `json:"language,omitempty"`
	Sensitive   bool         `json:"sensitive"`
	CreatedAt   time.Time    `json:"created_at"`
	EditedAt    time.Time    `json:"edited_at"`

	Mentions         []Mention         `json:"mentions"`
	Tags             []string          `json:"tags"`
	References       []string          `json:"references,omitempty"`
	MediaAttachments []MediaAttachment `json:"media_attachments"`
	Poll             *Poll             `json:"poll,omitempty"`

	ReblogOfId         string `json:"reblog_of_id,omitempty"`
	InReplyToAccountId string `json:"in_reply_to_account_id,omitempty"`
	PreviewCardUrl     string `json:"preview_card_url,omitempty"`
}

func (st Status) Edited() bool {
	return !st.EditedAt.IsZero()
}

// ActiveMentions returns the mentions still present in the visible text.
// Silent mentions are retained for notification history but not rendered.
func (st Status) ActiveMentions() (active []Mention) {
	for _, m := range st.Mentions {
		if !m.Silent {
			active = append(active, m)
		}
	}
	return
}

func (st Status) OrderedMediaIds() (ids []string) {
	for _, a := range st.MediaAttachments {
		ids = append(ids, a.Id)
	}
	return
}

type Account struct {
	Id          string `json:"id"`
	Acct        string `json:"acct"`
	Domain      string `json:"domain,omitempty"`
	Uri         string `json:"uri,omitempty"`
	Url         string `json:"url,omitempty"`
	Inbox       string `json:"inbox,omitempty"`
	SharedInbox string `json:"shared_inbox,omitempty"`
}

func (a Account) Local() bool {
	return a.Domain == ""
}

type Mention struct {
	AccountId string `json:"account_id"`
	Acct      string `json:"acct"`
	Silent    bool   `json:"silent"`
}

// MediaAttachment belongs to an account and is optionally attached to one
// status. For remote reconciliation its identity is RemoteUrl, not Id.
type MediaAttachment struct {
	Id          string `json:"id"`
	AccountId   string `json:"account_id"`
	StatusId    string `json:"status_id,omitempty"`
	RemoteUrl   string `json:"remote_url"`
	Description string `json:"description,omitempty"`
	Pending     bool   `json:"pending,omitempty"`
}

type Poll struct {
	Id         string    `json:"id"`
	StatusId   string    `json:"status_id"`
	Options    []string  `json:"options"`
	Multiple   bool      `json:"multiple"`
	ExpiresAt  time.Time `json:"expires_at"`
	Tallies    []int64   `json:"tallies"`
	VotesCount int64     `json:"votes_count"`
}

// StatusEdit is one immutable historical version of a status's editable
// fields. Records are never mutated or reordered after creation.
type StatusEdit struct {
	Id                string    `json:"id"`
	StatusId          string    `json:"status_id"`
	Text              string    `json:"text"`
	SpoilerText       string    `json:"spoiler_text,omitempty"`
	Sensitive         bool      `json:"sensitive"`
	MediaIds          []string  `json:"media_ids,omitempty"`
	MediaDescriptions []string  `json:"media_descriptions,omitempty"`
	PollOptions       []string  `json:"poll_options,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

type DomainBlock struct {
	Domain              string `json:"domain"`
	Severity            string `json:"severity"`
	RejectSendSensitive bool   `json:"reject_send_sensitive"`
	RejectHashtag       bool   `json:"reject_hashtag"`
	RejectStrangerReply bool   `json:"reject_reply_exclude_followers"`
}
