package model

import "time"

const ActivityContext = "https://www.w3.org/ns/activitystreams"

const (
	ActivityTypeUpdate = "Update"
	ActivityTypeDelete = "Delete"
	ActivityTypeUndo   = "Undo"
)

type Activity struct {
	Context   string    `json:"@context"`
	Id        string    `json:"id"`
	Type      string    `json:"type"`
	Actor     string    `json:"actor"`
	Published time.Time `json:"published"`
	To        []string  `json:"to,omitempty"`
	Cc        []string  `json:"cc,omitempty"`
	Object    any       `json:"object"`
}

// Note is the object representation wrapped by an Update activity.
type Note struct {
	Id           string     `json:"id"`
	Type         string     `json:"type"`
	Content      string     `json:"content"`
	Summary      string     `json:"summary,omitempty"`
	Sensitive    bool       `json:"sensitive,omitempty"`
	Updated      *time.Time `json:"updated,omitempty"`
	AttributedTo string     `json:"attributedTo"`
}

// Tombstone is the minimal placeholder wrapped by a Delete activity.
type Tombstone struct {
	Id      string `json:"id"`
	Type    string `json:"type"`
	AtomUri string `json:"atomUri,omitempty"`
}

// Announce is the original boost object wrapped by an Undo activity.
type Announce struct {
	Id     string `json:"id"`
	Type   string `json:"type"`
	Actor  string `json:"actor"`
	Object string `json:"object"`
}
