package service

import (
	"context"
	"errors"
	"fmt"
	"github.com/awakari/fedistatus/model"
	"github.com/awakari/fedistatus/service/distrib"
	"github.com/awakari/fedistatus/service/history"
	"github.com/awakari/fedistatus/service/media"
	"github.com/awakari/fedistatus/service/moderation"
	"github.com/awakari/fedistatus/service/poll"
	"github.com/awakari/fedistatus/service/text"
	"github.com/awakari/fedistatus/storage"
	"slices"
	"strings"
	"time"
)

// Result reports what a reconciliation did.
//
// Material is true when the edit changed the status content and was
// recorded in the edit history. TalliesRefreshed reports that poll vote
// counts were persisted, which happens with or without a material edit.
// Discarded is true when a remote update hit a rejecting moderation rule
// and was dropped without touching the status.
type Result struct {
	Status           model.Status
	Material         bool
	TalliesRefreshed bool
	Discarded        bool

	// deltas of a material edit, for downstream consumers
	MentionsAdded    []string
	MentionsSilenced []string
	MediaChanged     bool
	PollChanged      bool
}

// Service is the status reconciliation engine. All mutation paths for a
// status converge here and are serialized per status id: two concurrent
// edits of the same status apply one after the other, each against the
// state the previous one left.
type Service interface {

	// Update applies a local-origin edit to the status. Moderation rule
	// hits reject the whole edit with ErrValidation. A functionally
	// identical payload is a no-op: no history record, no fan-out.
	Update(ctx context.Context, statusId string, req model.StatusEditRequest) (res Result, err error)

	// UpdateRemote applies a federated update to the locally cached copy
	// of a remote status, addressed by its URI. The update has already
	// legally happened at the origin, so moderation sanitizes instead of
	// rejecting, and a payload older than the cached state is silently
	// ignored. A payload without an updated timestamp never edits the
	// status and only refreshes poll tallies.
	UpdateRemote(ctx context.Context, uri string, req model.StatusEditRequest) (res Result, err error)

	// Remove deletes the status and fans the removal out to its audience,
	// as Undo(Announce) when the status is a reblog.
	Remove(ctx context.Context, statusId string) (err error)

	// History returns the status's past versions in edit order.
	History(ctx context.Context, statusId string) (edits []model.StatusEdit, err error)
}

type svc struct {
	stgStatuses    storage.Statuses
	stgAccounts    storage.Accounts
	stgAttachments storage.Attachments
	ledger         history.Ledger
	mod            moderation.Service
	planner        distrib.Planner
	deliverer      distrib.Deliverer
	fetchQueue     media.Queue
	locks          *keyedLocks
	now            func() time.Time
}

func NewService(
	stgStatuses storage.Statuses,
	stgAccounts storage.Accounts,
	stgAttachments storage.Attachments,
	ledger history.Ledger,
	mod moderation.Service,
	planner distrib.Planner,
	deliverer distrib.Deliverer,
	fetchQueue media.Queue,
) Service {
	return &svc{
		stgStatuses:    stgStatuses,
		stgAccounts:    stgAccounts,
		stgAttachments: stgAttachments,
		ledger:         ledger,
		mod:            mod,
		planner:        planner,
		deliverer:      deliverer,
		fetchQueue:     fetchQueue,
		locks:          newKeyedLocks(),
		now:            time.Now,
	}
}

func (s *svc) Update(ctx context.Context, statusId string, req model.StatusEditRequest) (res Result, err error) {
	unlock := s.locks.Lock(statusId)
	defer unlock()
	var st model.Status
	st, err = s.stgStatuses.GetStatus(ctx, statusId)
	if err != nil {
		return
	}
	return s.reconcile(ctx, st, req, moderation.OriginLocal)
}

func (s *svc) UpdateRemote(ctx context.Context, uri string, req model.StatusEditRequest) (res Result, err error) {
	var st model.Status
	st, err = s.stgStatuses.GetStatusByUri(ctx, uri)
	if err != nil {
		return
	}
	unlock := s.locks.Lock(st.Id)
	defer unlock()
	// reload under the lock, a concurrent edit may have applied while the
	// uri was being resolved
	st, err = s.stgStatuses.GetStatus(ctx, st.Id)
	if err != nil {
		return
	}
	if req.UpdatedAt == nil {
		// no updated marker: the origin did not edit, the payload only
		// carries fresher poll tallies
		return s.refreshTallies(ctx, st, req)
	}
	return s.reconcile(ctx, st, req, moderation.OriginRemote)
}

func (s *svc) refreshTallies(ctx context.Context, st model.Status, req model.StatusEditRequest) (res Result, err error) {
	res.Status = st
	if !req.PollProvided || st.Poll == nil {
		return
	}
	var d poll.Decision
	d, err = poll.Reconcile(st.Poll, req.Poll)
	if err != nil || d.Op != poll.OpKeep || !d.TalliesRefreshed {
		return
	}
	st.Poll = d.Poll
	err = s.stgStatuses.SaveStatus(ctx, st)
	if err == nil {
		res.Status = st
		res.TalliesRefreshed = true
	}
	return
}

func (s *svc) reconcile(ctx context.Context, st model.Status, req model.StatusEditRequest, origin moderation.Origin) (res Result, err error) {
	res.Status = st
	if stale(st, req) {
		return
	}

	candText := st.Text
	if req.Text != nil {
		candText = *req.Text
	}
	candSpoiler := st.SpoilerText
	if req.SpoilerText != nil {
		candSpoiler = *req.SpoilerText
	}
	candSensitive := st.Sensitive
	if req.Sensitive != nil {
		candSensitive = *req.Sensitive
	}
	candLanguage := st.Language
	if req.Language != nil {
		candLanguage = *req.Language
	}

	ent := text.Extract(candText)
	accts := mergeHandles(ent.Mentions, req.Mentions)
	tags := mergeHandles(ent.Hashtags, req.Tags)
	refs := mergeUris(ent.References, req.References)

	var mentioned []model.Account
	mentioned, err = s.resolveMentions(ctx, accts)
	if err != nil {
		return
	}
	var references []moderation.Reference
	references, err = s.resolveReferences(ctx, refs)
	if err != nil {
		return
	}

	var out moderation.Outcome
	out, err = s.mod.Evaluate(ctx, moderation.Input{
		Author:      st.Account,
		Origin:      origin,
		Text:        candText,
		SpoilerText: candSpoiler,
		Mentions:    mentioned,
		References:  references,
		Tags:        tags,
		InReplyTo:   st.InReplyToAccountId,
	})
	if err != nil {
		return
	}
	if out.Rejected {
		res.Discarded = true
		return
	}
	mentioned = dropAccounts(mentioned, out.RemovedMentions)
	refs = dropStrings(refs, out.RemovedReferences)
	if out.RemoveHashtags {
		tags = nil
	}

	var pollDec poll.Decision
	pollDec.Op = poll.OpKeep
	if req.PollProvided {
		pollDec, err = poll.Reconcile(st.Poll, req.Poll)
		if err != nil {
			return
		}
	}
	var mediaRes media.Result
	if req.MediaProvided {
		mediaRes = media.Reconcile(st.Account.Id, st.Id, st.MediaAttachments, req.Media)
	}

	mentions, added, silenced := mergeMentions(st.Mentions, mentioned)

	textChanged := !text.EqualContent(st.Text, candText)
	material := textChanged ||
		st.SpoilerText != candSpoiler ||
		st.Sensitive != candSensitive ||
		st.Language != candLanguage ||
		!sameSet(st.Tags, tags) ||
		!sameSet(st.References, refs) ||
		!sameActiveMentions(st.Mentions, mentions) ||
		mediaRes.Changed ||
		pollDec.Material

	if !material {
		if pollDec.TalliesRefreshed {
			st.Poll = pollDec.Poll
			err = s.stgStatuses.SaveStatus(ctx, st)
			if err == nil {
				res.Status = st
				res.TalliesRefreshed = true
			}
		}
		return
	}

	at := s.now().UTC()
	if req.UpdatedAt != nil {
		at = req.UpdatedAt.UTC()
	}
	_, err = s.ledger.RecordPreEdit(ctx, st, at)
	if err != nil {
		return
	}

	st.Text = candText
	st.SpoilerText = candSpoiler
	st.Sensitive = candSensitive
	st.Language = candLanguage
	st.Tags = tags
	st.References = refs
	st.Mentions = mentions
	if textChanged {
		st.PreviewCardUrl = ""
	}
	if len(added) > 0 && st.Visibility == model.VisibilityLimited && st.Scope == model.LimitedScopePersonal {
		st.Scope = model.LimitedScopeCircle
	}
	if req.MediaProvided {
		err = s.applyMedia(ctx, &st, mediaRes)
		if err != nil {
			return
		}
	}
	applyPoll(&st, pollDec)
	st.EditedAt = at

	err = s.stgStatuses.SaveStatus(ctx, st)
	if err != nil {
		return
	}
	res.Status = st
	res.Material = true
	res.TalliesRefreshed = pollDec.TalliesRefreshed
	res.MentionsAdded = added
	res.MentionsSilenced = silenced
	res.MediaChanged = mediaRes.Changed
	res.PollChanged = pollDec.Material

	if st.Account.Local() {
		var plan []distrib.Delivery
		plan, err = s.planner.PlanUpdate(ctx, st)
		if err != nil {
			err = fmt.Errorf("status %s reconciled, fan-out planning failed: %w", st.Id, err)
			return
		}
		s.deliverer.Deliver(plan)
	}
	return
}

func (s *svc) Remove(ctx context.Context, statusId string) (err error) {
	unlock := s.locks.Lock(statusId)
	defer unlock()
	var st model.Status
	st, err = s.stgStatuses.GetStatus(ctx, statusId)
	if err != nil {
		return
	}
	if st.Account.Local() {
		var plan []distrib.Delivery
		plan, err = s.planner.PlanRemove(ctx, st)
		if err != nil {
			return
		}
		s.deliverer.Deliver(plan)
	}
	return s.stgStatuses.DeleteStatus(ctx, st.Id)
}

func (s *svc) History(ctx context.Context, statusId string) (edits []model.StatusEdit, err error) {
	_, err = s.stgStatuses.GetStatus(ctx, statusId)
	if err == nil {
		edits, err = s.ledger.History(ctx, statusId)
	}
	return
}

// stale reports whether the payload's updated timestamp is not newer than
// the state already applied. Stale edits are dropped silently: they are
// reorderings of updates already superseded.
func stale(st model.Status, req model.StatusEditRequest) bool {
	if req.UpdatedAt == nil {
		return false
	}
	applied := st.CreatedAt
	if st.Edited() {
		applied = st.EditedAt
	}
	return !req.UpdatedAt.After(applied)
}

func (s *svc) resolveMentions(ctx context.Context, accts []string) (mentioned []model.Account, err error) {
	for _, acct := range accts {
		var a model.Account
		a, err = s.stgAccounts.GetAccountByAcct(ctx, acct)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			// unresolvable handles stay plain text
			err = nil
			continue
		case err != nil:
			return
		}
		mentioned = append(mentioned, a)
	}
	return
}

func (s *svc) resolveReferences(ctx context.Context, uris []string) (references []moderation.Reference, err error) {
	for _, uri := range uris {
		var ref model.Status
		ref, err = s.stgStatuses.GetStatusByUri(ctx, uri)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			err = nil
			continue
		case err != nil:
			return
		}
		references = append(references, moderation.Reference{
			Uri:      uri,
			AuthorId: ref.Account.Id,
		})
	}
	return
}

func (s *svc) applyMedia(ctx context.Context, st *model.Status, r media.Result) (err error) {
	for _, a := range r.Touched {
		err = s.stgAttachments.SaveAttachment(ctx, a)
		if err != nil {
			return
		}
	}
	for _, a := range r.Detached {
		err = s.stgAttachments.SaveAttachment(ctx, a)
		if err != nil {
			return
		}
	}
	for _, a := range r.ToFetch {
		err = s.stgAttachments.SaveAttachment(ctx, a)
		if err != nil {
			return
		}
	}
	st.MediaAttachments = r.Ordered
	s.fetchQueue.Enqueue(r.ToFetch)
	return
}

func applyPoll(st *model.Status, d poll.Decision) {
	switch d.Op {
	case poll.OpRemove:
		st.Poll = nil
	case poll.OpCreate, poll.OpReplace:
		p := *d.Poll
		p.StatusId = st.Id
		st.Poll = &p
	case poll.OpKeep:
		if d.Poll != nil {
			st.Poll = d.Poll
		}
	}
}

// mergeMentions never drops a mention: accounts no longer present in the
// text keep their mention record flipped to silent, so existing
// notifications and visibility grants survive the edit.
func mergeMentions(current []model.Mention, mentioned []model.Account) (merged []model.Mention, added, silenced []string) {
	active := make(map[string]model.Account, len(mentioned))
	for _, a := range mentioned {
		active[a.Id] = a
	}
	seen := make(map[string]bool, len(current))
	for _, m := range current {
		seen[m.AccountId] = true
		_, present := active[m.AccountId]
		if !present && !m.Silent {
			silenced = append(silenced, m.AccountId)
		}
		m.Silent = !present
		merged = append(merged, m)
	}
	for _, a := range mentioned {
		if !seen[a.Id] {
			merged = append(merged, model.Mention{
				AccountId: a.Id,
				Acct:      a.Acct,
			})
			added = append(added, a.Id)
		}
	}
	return
}

func sameActiveMentions(a, b []model.Mention) bool {
	return sameSet(activeIds(a), activeIds(b))
}

func activeIds(mentions []model.Mention) (ids []string) {
	for _, m := range mentions {
		if !m.Silent {
			ids = append(ids, m.AccountId)
		}
	}
	return
}

func mergeHandles(derived, declared []string) (merged []string) {
	seen := map[string]bool{}
	for _, h := range append(slices.Clone(derived), declared...) {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		merged = append(merged, h)
	}
	return
}

// mergeUris keeps the original case, reference URIs are case-sensitive
func mergeUris(derived, declared []string) (merged []string) {
	seen := map[string]bool{}
	for _, u := range append(slices.Clone(derived), declared...) {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		merged = append(merged, u)
	}
	return
}

func dropAccounts(accounts []model.Account, removedIds []string) (kept []model.Account) {
	for _, a := range accounts {
		if !slices.Contains(removedIds, a.Id) {
			kept = append(kept, a)
		}
	}
	return
}

func dropStrings(values, removed []string) (kept []string) {
	for _, v := range values {
		if !slices.Contains(removed, v) {
			kept = append(kept, v)
		}
	}
	return
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := slices.Clone(a)
	sb := slices.Clone(b)
	slices.Sort(sa)
	slices.Sort(sb)
	return slices.Equal(sa, sb)
}
