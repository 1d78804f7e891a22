package history

import (
	"context"
	"github.com/awakari/fedistatus/model"
	"github.com/awakari/fedistatus/storage"
	"github.com/segmentio/ksuid"
	"time"
)

// Ledger snapshots status states as ordered, immutable records. It is
// append-only: a no-op reconciliation never reaches it.
type Ledger interface {

	// RecordPreEdit appends a snapshot of the status state immediately
	// before a material reconciliation applies the new content.
	RecordPreEdit(ctx context.Context, st model.Status, at time.Time) (id string, err error)

	// History returns all snapshots of a status in creation order.
	// Replaying them in order followed by the current state reconstructs
	// the full edit timeline.
	History(ctx context.Context, statusId string) (edits []model.StatusEdit, err error)
}

type ledger struct {
	stg storage.Snapshots
}

func NewLedger(stg storage.Snapshots) Ledger {
	return ledger{
		stg: stg,
	}
}

func (l ledger) RecordPreEdit(ctx context.Context, st model.Status, at time.Time) (id string, err error) {
	e := model.StatusEdit{
		Id:          ksuid.New().String(),
		StatusId:    st.Id,
		Text:        st.Text,
		SpoilerText: st.SpoilerText,
		Sensitive:   st.Sensitive,
		CreatedAt:   at,
	}
	for _, a := range st.MediaAttachments {
		e.MediaIds = append(e.MediaIds, a.Id)
		e.MediaDescriptions = append(e.MediaDescriptions, a.Description)
	}
	if st.Poll != nil {
		e.PollOptions = append(e.PollOptions, st.Poll.Options...)
	}
	err = l.stg.AppendEdit(ctx, e)
	if err == nil {
		id = e.Id
	}
	return
}

func (l ledger) History(ctx context.Context, statusId string) (edits []model.StatusEdit, err error) {
	return l.stg.ListEdits(ctx, statusId)
}
