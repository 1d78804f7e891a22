package model

// Recipient is one remote delivery target. Inbox is the shared inbox when
// the origin server advertises one, the personal inbox otherwise.
type Recipient struct {
	AccountId string `json:"account_id"`
	Domain    string `json:"domain"`
	Inbox     string `json:"inbox"`
}
