package poll

import (
	"errors"
	"fmt"
	"github.com/awakari/fedistatus/model"
	"github.com/segmentio/ksuid"
	"slices"
)

// ErrMalformed rejects a poll spec whose vote counts are not aligned with
// its options. Malformed input aborts the whole reconciliation.
var ErrMalformed = errors.New("malformed poll spec")

type Op int

const (
	OpKeep Op = iota
	OpRemove
	OpCreate
	OpReplace
)

func (op Op) String() string {
	return []string{"keep", "remove", "create", "replace"}[op]
}

// Decision is the outcome of merging an incoming poll spec against the
// existing poll state.
//
// Material is true when the poll itself changed (created, removed, or its
// option labels replaced). A tally refresh on an unchanged option set is
// NOT material: vote counts arrive from the origin independently of edits
// and never mark the status as edited on their own. TalliesRefreshed
// still reports it so the new counts get persisted.
type Decision struct {
	Op               Op
	Poll             *model.Poll
	Material         bool
	TalliesRefreshed bool
}

// Reconcile merges incoming poll data against the current poll.
// Replacing the option labels in any way, including reordering or adding
// one option, discards all vote records and zeroes the tallies.
func Reconcile(current *model.Poll, incoming *model.PollSpec) (d Decision, err error) {
	switch {
	case incoming == nil && current == nil:
		d.Op = OpKeep
	case incoming == nil:
		d.Op = OpRemove
		d.Material = true
	case current == nil:
		err = validate(incoming)
		if err == nil {
			d.Op = OpCreate
			d.Poll = newPoll(incoming)
			d.Material = true
		}
	default:
		err = validate(incoming)
		if err != nil {
			return
		}
		switch slices.Equal(current.Options, incoming.Options) {
		case true:
			d.Op = OpKeep
			kept := *current
			kept.Multiple = incoming.Multiple
			if !incoming.ExpiresAt.IsZero() {
				kept.ExpiresAt = incoming.ExpiresAt
			}
			if len(incoming.VoteCounts) > 0 && !slices.Equal(current.Tallies, incoming.VoteCounts) {
				kept.Tallies = slices.Clone(incoming.VoteCounts)
				kept.VotesCount = sum(incoming.VoteCounts)
				d.TalliesRefreshed = true
			}
			d.Poll = &kept
		default:
			d.Op = OpReplace
			d.Poll = newPoll(incoming)
			d.Poll.Id = current.Id
			d.Poll.StatusId = current.StatusId
			d.Material = true
		}
	}
	return
}

func validate(spec *model.PollSpec) (err error) {
	if len(spec.Options) < 2 {
		err = fmt.Errorf("%w: %d options", ErrMalformed, len(spec.Options))
		return
	}
	if len(spec.VoteCounts) > 0 && len(spec.VoteCounts) != len(spec.Options) {
		err = fmt.Errorf("%w: %d vote counts for %d options", ErrMalformed, len(spec.VoteCounts), len(spec.Options))
	}
	return
}

// newPoll builds a poll with zeroed tallies. A created or replaced poll
// never inherits vote counts: all prior vote records are reset.
func newPoll(spec *model.PollSpec) *model.Poll {
	return &model.Poll{
		Id:        ksuid.New().String(),
		Options:   slices.Clone(spec.Options),
		Multiple:  spec.Multiple,
		ExpiresAt: spec.ExpiresAt,
		Tallies:   make([]int64, len(spec.Options)),
	}
}

func sum(counts []int64) (n int64) {
	for _, c := range counts {
		n += c
	}
	return
}
