package media

import (
	"github.com/awakari/fedistatus/model"
	"github.com/segmentio/ksuid"
)

// Result of merging an ordered incoming attachment list against the
// attachments currently on a status.
//
// Ordered follows the incoming list order. Touched are existing
// attachments matched by remote URL and updated in place: they are never
// re-fetched. ToFetch are the new attachments whose bytes still have to
// be pulled from the origin, asynchronously. Detached attachments are no
// longer on the status but stay owned by the account for reuse.
type Result struct {
	Ordered  []model.MediaAttachment
	Touched  []model.MediaAttachment
	ToFetch  []model.MediaAttachment
	Detached []model.MediaAttachment
	Changed  bool
}

// Reconcile merges incoming against current. Identity is the remote
// source URL, not the list position and not the local id.
func Reconcile(accountId, statusId string, current []model.MediaAttachment, incoming []model.AttachmentSpec) (r Result) {
	byUrl := make(map[string]model.MediaAttachment, len(current))
	for _, a := range current {
		byUrl[a.RemoteUrl] = a
	}
	seen := make(map[string]bool, len(incoming))
	for _, spec := range incoming {
		seen[spec.RemoteUrl] = true
		a, matched := byUrl[spec.RemoteUrl]
		switch matched {
		case true:
			if a.Description != spec.Description {
				a.Description = spec.Description
				r.Changed = true
			}
			r.Touched = append(r.Touched, a)
		default:
			a = model.MediaAttachment{
				Id:          ksuid.New().String(),
				AccountId:   accountId,
				StatusId:    statusId,
				RemoteUrl:   spec.RemoteUrl,
				Description: spec.Description,
				Pending:     true,
			}
			r.ToFetch = append(r.ToFetch, a)
			r.Changed = true
		}
		r.Ordered = append(r.Ordered, a)
	}
	for _, a := range current {
		if !seen[a.RemoteUrl] {
			a.StatusId = ""
			r.Detached = append(r.Detached, a)
			r.Changed = true
		}
	}
	if !r.Changed && !sameOrder(current, r.Ordered) {
		r.Changed = true
	}
	return
}

func sameOrder(a, b []model.MediaAttachment) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].RemoteUrl != b[i].RemoteUrl {
			return false
		}
	}
	return true
}
