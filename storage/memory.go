package storage

import (
	"context"
	"fmt"
	"github.com/awakari/fedistatus/model"
	"strings"
	"sync"
)

// Memory is a map-backed implementation of every storage port, used by
// tests and as the fallback backend when no database is configured.
type Memory struct {
	mu           sync.RWMutex
	statuses     map[string]model.Status
	urisToIds    map[string]string
	accounts     map[string]model.Account
	acctsToIds   map[string]string
	snapshots    map[string][]model.StatusEdit
	attachments  map[string]model.MediaAttachment
	fetched      map[string][]byte
	filters      map[string]map[string]model.Filter
	follows      map[string]bool
	recipients   map[string]model.Recipient
	followers    map[string][]string
	tombstones   map[string]bool
	domainBlocks map[string]model.DomainBlock
}

func NewMemory() *Memory {
	return &Memory{
		statuses:     make(map[string]model.Status),
		urisToIds:    make(map[string]string),
		accounts:     make(map[string]model.Account),
		acctsToIds:   make(map[string]string),
		snapshots:    make(map[string][]model.StatusEdit),
		attachments:  make(map[string]model.MediaAttachment),
		fetched:      make(map[string][]byte),
		filters:      make(map[string]map[string]model.Filter),
		follows:      make(map[string]bool),
		recipients:   make(map[string]model.Recipient),
		followers:    make(map[string][]string),
		tombstones:   make(map[string]bool),
		domainBlocks: make(map[string]model.DomainBlock),
	}
}

func (m *Memory) GetStatus(ctx context.Context, id string) (st model.Status, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.statuses[id]
	if !ok {
		err = fmt.Errorf("%w: status %s", ErrNotFound, id)
	}
	return
}

func (m *Memory) GetStatusByUri(ctx context.Context, uri string) (st model.Status, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.urisToIds[uri]
	if ok {
		st, ok = m.statuses[id]
	}
	if !ok {
		err = fmt.Errorf("%w: status uri %s", ErrNotFound, uri)
	}
	return
}

func (m *Memory) SaveStatus(ctx context.Context, st model.Status) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[st.Id] = st
	if st.Uri != "" {
		m.urisToIds[st.Uri] = st.Id
	}
	return
}

func (m *Memory) DeleteStatus(ctx context.Context, id string) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.statuses[id]; ok && st.Uri != "" {
		delete(m.urisToIds, st.Uri)
	}
	delete(m.statuses, id)
	delete(m.snapshots, id)
	for k := range m.tombstones {
		if strings.HasPrefix(k, id+"/") {
			delete(m.tombstones, k)
		}
	}
	return
}

func (m *Memory) GetAccount(ctx context.Context, id string) (a model.Account, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		err = fmt.Errorf("%w: account %s", ErrNotFound, id)
	}
	return
}

func (m *Memory) GetAccountByAcct(ctx context.Context, acct string) (a model.Account, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.acctsToIds[acct]
	if ok {
		a, ok = m.accounts[id]
	}
	if !ok {
		err = fmt.Errorf("%w: account acct %s", ErrNotFound, acct)
	}
	return
}

func (m *Memory) SaveAccount(ctx context.Context, a model.Account) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.Id] = a
	if a.Acct != "" {
		m.acctsToIds[a.Acct] = a.Id
	}
	return
}

func (m *Memory) AppendEdit(ctx context.Context, e model.StatusEdit) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[e.StatusId] = append(m.snapshots[e.StatusId], e)
	return
}

func (m *Memory) ListEdits(ctx context.Context, statusId string) (edits []model.StatusEdit, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	edits = append(edits, m.snapshots[statusId]...)
	return
}

func (m *Memory) SaveAttachment(ctx context.Context, a model.MediaAttachment) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachments[a.Id] = a
	return
}

func (m *Memory) StoreFetched(ctx context.Context, id string, data []byte) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetched[id] = data
	if a, ok := m.attachments[id]; ok {
		a.Pending = false
		m.attachments[id] = a
	}
	return
}

func (m *Memory) ListFilters(ctx context.Context, accountId string) (fs []model.Filter, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, f := range m.filters[accountId] {
		fs = append(fs, f)
	}
	return
}

func (m *Memory) SaveFilter(ctx context.Context, f model.Filter) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.filters[f.AccountId] == nil {
		m.filters[f.AccountId] = make(map[string]model.Filter)
	}
	m.filters[f.AccountId][f.Id] = f
	return
}

func (m *Memory) DeleteFilter(ctx context.Context, accountId, id string) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.filters[accountId][id]; !ok {
		err = fmt.Errorf("%w: filter %s", ErrNotFound, id)
		return
	}
	delete(m.filters[accountId], id)
	return
}

func (m *Memory) SetFollowing(followerId, followeeId string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.follows[followerId+"/"+followeeId] = true
}

func (m *Memory) Following(ctx context.Context, followerId, followeeId string) (following bool, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	following = m.follows[followerId+"/"+followeeId]
	return
}

func (m *Memory) AddFollower(accountId string, rcpt model.Recipient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recipients[rcpt.AccountId] = rcpt
	m.followers[accountId] = append(m.followers[accountId], rcpt.AccountId)
	m.follows[rcpt.AccountId+"/"+accountId] = true
}

func (m *Memory) SetRecipient(rcpt model.Recipient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recipients[rcpt.AccountId] = rcpt
}

func (m *Memory) FollowerRecipients(ctx context.Context, accountId string) (rcpts []model.Recipient, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.followers[accountId] {
		rcpts = append(rcpts, m.recipients[id])
	}
	return
}

func (m *Memory) Recipient(ctx context.Context, accountId string) (rcpt model.Recipient, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rcpt, ok := m.recipients[accountId]
	if !ok {
		err = fmt.Errorf("%w: recipient %s", ErrNotFound, accountId)
	}
	return
}

func (m *Memory) HasTombstone(ctx context.Context, statusId, domain string) (sent bool, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sent = m.tombstones[statusId+"/"+domain]
	return
}

func (m *Memory) SetTombstone(ctx context.Context, statusId, domain string) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tombstones[statusId+"/"+domain] = true
	return
}

func (m *Memory) ListDomainBlocks(ctx context.Context) (blocks []model.DomainBlock, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.domainBlocks {
		blocks = append(blocks, b)
	}
	return
}

func (m *Memory) GetDomainBlock(ctx context.Context, domain string) (block model.DomainBlock, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	block, ok := m.domainBlocks[domain]
	if !ok {
		err = fmt.Errorf("%w: domain block %s", ErrNotFound, domain)
	}
	return
}

func (m *Memory) SaveDomainBlock(ctx context.Context, b model.DomainBlock) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainBlocks[b.Domain] = b
	return
}
