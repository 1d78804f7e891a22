package storage

import (
	"context"
	"errors"
	"github.com/awakari/fedistatus/model"
)

var ErrNotFound = errors.New("not found")

type Statuses interface {
	GetStatus(ctx context.Context, id string) (st model.Status, err error)
	GetStatusByUri(ctx context.Context, uri string) (st model.Status, err error)
	SaveStatus(ctx context.Context, st model.Status) (err error)
	DeleteStatus(ctx context.Context, id string) (err error)
}

// Snapshots is the append-only edit history ledger backend. Records are
// never mutated or reordered after creation; ListEdits returns creation
// order.
type Snapshots interface {
	AppendEdit(ctx context.Context, e model.StatusEdit) (err error)
	ListEdits(ctx context.Context, statusId string) (edits []model.StatusEdit, err error)
}

type Attachments interface {
	SaveAttachment(ctx context.Context, a model.MediaAttachment) (err error)
	StoreFetched(ctx context.Context, id string, data []byte) (err error)
}

// Accounts resolves mention handles and authors. Acct is the webfinger
// form, "user" for local accounts and "user@domain" for remote ones.
type Accounts interface {
	GetAccount(ctx context.Context, id string) (a model.Account, err error)
	GetAccountByAcct(ctx context.Context, acct string) (a model.Account, err error)
	SaveAccount(ctx context.Context, a model.Account) (err error)
}

type Filters interface {
	ListFilters(ctx context.Context, accountId string) (fs []model.Filter, err error)
	SaveFilter(ctx context.Context, f model.Filter) (err error)
	DeleteFilter(ctx context.Context, accountId, id string) (err error)
}

type Follows interface {
	Following(ctx context.Context, followerId, followeeId string) (following bool, err error)
}

// Audiences resolves the delivery audience of a status author: one
// recipient per remote follower, collapsed to shared inboxes by the
// planner.
type Audiences interface {
	FollowerRecipients(ctx context.Context, accountId string) (rcpts []model.Recipient, err error)
	Recipient(ctx context.Context, accountId string) (rcpt model.Recipient, err error)
}

// Tombstones records which domains already received a Delete for a status
// so later edits exclude them instead of tombstoning twice.
type Tombstones interface {
	HasTombstone(ctx context.Context, statusId, domain string) (sent bool, err error)
	SetTombstone(ctx context.Context, statusId, domain string) (err error)
}

type DomainBlocks interface {
	ListDomainBlocks(ctx context.Context) (blocks []model.DomainBlock, err error)
	GetDomainBlock(ctx context.Context, domain string) (block model.DomainBlock, err error)
	SaveDomainBlock(ctx context.Context, b model.DomainBlock) (err error)
}
