package distrib

import (
	"context"
	"errors"
	"fmt"
	"github.com/awakari/fedistatus/model"
	"github.com/awakari/fedistatus/storage"
	"time"
)

// Delivery is one planned send: an activity addressed to one inbox.
type Delivery struct {
	Inbox    string
	Activity model.Activity
}

// Planner computes which remote inboxes receive which activity type for
// a reconciled status. A no-op reconciliation never reaches the planner.
type Planner interface {

	// PlanUpdate fans a material edit out as Update activities to the
	// status audience. A recipient domain blocked with the
	// reject-sensitive flag receives a Delete tombstone for the
	// previously delivered version instead, exactly once: afterwards the
	// domain is excluded from this status's fan-out entirely.
	PlanUpdate(ctx context.Context, st model.Status) (plan []Delivery, err error)

	// PlanRemove fans a removal out as Delete tombstones, or as
	// Undo(Announce) when the removed status is a reblog.
	PlanRemove(ctx context.Context, st model.Status) (plan []Delivery, err error)
}

type planner struct {
	stgAud    storage.Audiences
	stgBlocks storage.DomainBlocks
	stgTombs  storage.Tombstones
}

func NewPlanner(stgAud storage.Audiences, stgBlocks storage.DomainBlocks, stgTombs storage.Tombstones) Planner {
	return planner{
		stgAud:    stgAud,
		stgBlocks: stgBlocks,
		stgTombs:  stgTombs,
	}
}

func (p planner) PlanUpdate(ctx context.Context, st model.Status) (plan []Delivery, err error) {
	var rcpts []model.Recipient
	rcpts, err = p.audience(ctx, st)
	if err != nil {
		return
	}
	sensitive := st.Sensitive || st.SpoilerText != ""
	updated := st.EditedAt
	note := model.Note{
		Id:           st.Uri,
		Type:         "Note",
		Content:      st.Text,
		Summary:      st.SpoilerText,
		Sensitive:    st.Sensitive,
		Updated:      &updated,
		AttributedTo: st.Account.Uri,
	}
	for _, rcpt := range rcpts {
		var sent bool
		sent, err = p.stgTombs.HasTombstone(ctx, st.Id, rcpt.Domain)
		if err != nil {
			return
		}
		if sent {
			// this domain already holds a tombstone for the status
			continue
		}
		var block model.DomainBlock
		block, err = p.stgBlocks.GetDomainBlock(ctx, rcpt.Domain)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			err = nil
		case err != nil:
			return
		}
		switch {
		case block.RejectSendSensitive && sensitive:
			err = p.stgTombs.SetTombstone(ctx, st.Id, rcpt.Domain)
			if err != nil {
				return
			}
			plan = append(plan, Delivery{
				Inbox:    rcpt.Inbox,
				Activity: deleteActivity(st),
			})
		default:
			plan = append(plan, Delivery{
				Inbox: rcpt.Inbox,
				Activity: model.Activity{
					Context:   model.ActivityContext,
					Id:        fmt.Sprintf("%s#updates/%d", st.Uri, st.EditedAt.Unix()),
					Type:      model.ActivityTypeUpdate,
					Actor:     st.Account.Uri,
					Published: st.EditedAt,
					Object:    note,
				},
			})
		}
	}
	return
}

func (p planner) PlanRemove(ctx context.Context, st model.Status) (plan []Delivery, err error) {
	var rcpts []model.Recipient
	rcpts, err = p.audience(ctx, st)
	if err != nil {
		return
	}
	var act model.Activity
	switch {
	case st.ReblogOfId != "":
		act = model.Activity{
			Context:   model.ActivityContext,
			Id:        st.Uri + "#undo",
			Type:      model.ActivityTypeUndo,
			Actor:     st.Account.Uri,
			Published: time.Now().UTC(),
			Object: model.Announce{
				Id:     st.Uri,
				Type:   "Announce",
				Actor:  st.Account.Uri,
				Object: st.ReblogOfId,
			},
		}
	default:
		act = deleteActivity(st)
	}
	for _, rcpt := range rcpts {
		plan = append(plan, Delivery{
			Inbox:    rcpt.Inbox,
			Activity: act,
		})
	}
	return
}

// audience resolves the recipient set by visibility: followers and
// mentioned accounts for the public scopes, the explicit mention set only
// for direct and limited statuses. Local accounts have no inbox and are
// excluded; shared inboxes are deduplicated.
func (p planner) audience(ctx context.Context, st model.Status) (rcpts []model.Recipient, err error) {
	var candidates []model.Recipient
	switch st.Visibility {
	case model.VisibilityDirect, model.VisibilityLimited:
	default:
		candidates, err = p.stgAud.FollowerRecipients(ctx, st.Account.Id)
		if err != nil {
			return
		}
	}
	for _, m := range st.Mentions {
		var rcpt model.Recipient
		rcpt, err = p.stgAud.Recipient(ctx, m.AccountId)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			err = nil
			continue
		case err != nil:
			return
		}
		candidates = append(candidates, rcpt)
	}
	seen := map[string]bool{}
	for _, rcpt := range candidates {
		if rcpt.Inbox == "" || seen[rcpt.Inbox] {
			continue
		}
		seen[rcpt.Inbox] = true
		rcpts = append(rcpts, rcpt)
	}
	return
}

func deleteActivity(st model.Status) model.Activity {
	return model.Activity{
		Context:   model.ActivityContext,
		Id:        st.Uri + "#delete",
		Type:      model.ActivityTypeDelete,
		Actor:     st.Account.Uri,
		Published: time.Now().UTC(),
		Object: model.Tombstone{
			Id:      st.Uri,
			Type:    "Tombstone",
			AtomUri: st.Uri,
		},
	}
}
