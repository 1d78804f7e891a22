package service

import (
	"context"
	"github.com/awakari/fedistatus/config"
	"github.com/awakari/fedistatus/model"
	"github.com/awakari/fedistatus/service/distrib"
	"github.com/awakari/fedistatus/service/history"
	"github.com/awakari/fedistatus/service/moderation"
	"github.com/awakari/fedistatus/service/poll"
	"github.com/awakari/fedistatus/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
	"time"
)

type delivererMock struct {
	plans [][]distrib.Delivery
}

func (dm *delivererMock) Deliver(plan []distrib.Delivery) {
	dm.plans = append(dm.plans, plan)
}

func (dm *delivererMock) Run(ctx context.Context) {
}

func (dm *delivererMock) activities() (types []string) {
	for _, plan := range dm.plans {
		for _, dlv := range plan {
			types = append(types, dlv.Activity.Type)
		}
	}
	return
}

type queueMock struct {
	enqueued []model.MediaAttachment
}

func (qm *queueMock) Enqueue(atts []model.MediaAttachment) {
	qm.enqueued = append(qm.enqueued, atts...)
}

func (qm *queueMock) Run(ctx context.Context) {
}

type fixture struct {
	svc Service
	mem *storage.Memory
	dlv *delivererMock
	fq  *queueMock
}

func newFixture(t *testing.T, modCfg config.ModerationConfig, blocks []model.DomainBlock) fixture {
	t.Helper()
	mem := storage.NewMemory()
	for _, b := range blocks {
		require.Nil(t, mem.SaveDomainBlock(context.TODO(), b))
	}
	dlv := &delivererMock{}
	fq := &queueMock{}
	mod := moderation.NewService(moderation.NewDefaultRules(modCfg, mem, blocks)...)
	svc := NewService(
		mem,
		mem,
		mem,
		history.NewLedger(mem),
		mod,
		distrib.NewPlanner(mem, mem, mem),
		dlv,
		fq,
	)
	return fixture{
		svc: svc,
		mem: mem,
		dlv: dlv,
		fq:  fq,
	}
}

var t0 = time.Date(2025, 6, 27, 8, 0, 0, 0, time.UTC)

func (f fixture) seedLocal(t *testing.T) model.Status {
	t.Helper()
	st := model.Status{
		Id:  "status1",
		Uri: "https://local.example/statuses/status1",
		Account: model.Account{
			Id:   "alice1",
			Acct: "alice",
			Uri:  "https://local.example/users/alice",
		},
		Text:       "Hello world",
		Visibility: model.VisibilityPublic,
		CreatedAt:  t0,
	}
	require.Nil(t, f.mem.SaveStatus(context.TODO(), st))
	return st
}

func (f fixture) seedRemote(t *testing.T) model.Status {
	t.Helper()
	st := model.Status{
		Id:  "status2",
		Uri: "https://example.com/statuses/status2",
		Account: model.Account{
			Id:     "hank1",
			Acct:   "hank@example.com",
			Domain: "example.com",
			Uri:    "https://example.com/users/hank",
		},
		Text:       "Hello world",
		Visibility: model.VisibilityPublic,
		CreatedAt:  t0,
	}
	require.Nil(t, f.mem.SaveStatus(context.TODO(), st))
	return st
}

func strPtr(s string) *string {
	return &s
}

func boolPtr(b bool) *bool {
	return &b
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func TestService_Update_Material(t *testing.T) {
	f := newFixture(t, config.ModerationConfig{}, nil)
	f.seedLocal(t)
	f.mem.AddFollower("alice1", model.Recipient{
		AccountId: "hank1",
		Domain:    "example.com",
		Inbox:     "https://example.com/inbox",
	})

	res, err := f.svc.Update(context.TODO(), "status1", model.StatusEditRequest{
		Text: strPtr("Hello universe"),
	})
	require.Nil(t, err)
	assert.True(t, res.Material)
	assert.Equal(t, "Hello universe", res.Status.Text)
	assert.True(t, res.Status.Edited())

	edits, err := f.svc.History(context.TODO(), "status1")
	require.Nil(t, err)
	require.Len(t, edits, 1)
	assert.Equal(t, "Hello world", edits[0].Text)

	assert.Equal(t, []string{model.ActivityTypeUpdate}, f.dlv.activities())
}

// slowStatuses holds every status read open long enough for concurrent
// editors to overlap unless the engine serializes them.
type slowStatuses struct {
	*storage.Memory
	delay time.Duration
}

func (ss slowStatuses) GetStatus(ctx context.Context, id string) (model.Status, error) {
	time.Sleep(ss.delay)
	return ss.Memory.GetStatus(ctx, id)
}

func TestService_Update_ConcurrentEditsSerialized(t *testing.T) {
	mem := storage.NewMemory()
	dlv := &delivererMock{}
	fq := &queueMock{}
	svc := NewService(
		slowStatuses{Memory: mem, delay: 100 * time.Millisecond},
		mem,
		mem,
		history.NewLedger(mem),
		moderation.NewService(),
		distrib.NewPlanner(mem, mem, mem),
		dlv,
		fq,
	)
	require.Nil(t, mem.SaveStatus(context.TODO(), model.Status{
		Id:  "status1",
		Uri: "https://local.example/statuses/status1",
		Account: model.Account{
			Id:   "alice1",
			Acct: "alice",
			Uri:  "https://local.example/users/alice",
		},
		Text:       "Hello world",
		Visibility: model.VisibilityPublic,
		CreatedAt:  t0,
	}))

	var wg sync.WaitGroup
	for _, txt := range []string{"version A", "version B"} {
		wg.Add(1)
		go func(txt string) {
			defer wg.Done()
			_, err := svc.Update(context.TODO(), "status1", model.StatusEditRequest{
				Text: strPtr(txt),
			})
			assert.Nil(t, err)
		}(txt)
	}
	wg.Wait()

	// both edits applied in some order: the first snapshots the original
	// text, the second snapshots whichever version won the race
	edits, err := svc.History(context.TODO(), "status1")
	require.Nil(t, err)
	require.Len(t, edits, 2)
	assert.Equal(t, "Hello world", edits[0].Text)
	assert.Contains(t, []string{"version A", "version B"}, edits[1].Text)
	st, err := mem.GetStatus(context.TODO(), "status1")
	require.Nil(t, err)
	assert.Contains(t, []string{"version A", "version B"}, st.Text)
	assert.NotEqual(t, edits[1].Text, st.Text)
}

func TestService_Update_Noop(t *testing.T) {
	f := newFixture(t, config.ModerationConfig{}, nil)
	f.seedLocal(t)

	cases := map[string]model.StatusEditRequest{
		"same text": {
			Text: strPtr("Hello world"),
		},
		"markup only": {
			Text: strPtr("<p>Hello world</p>"),
		},
		"same text with timestamp": {
			Text:      strPtr("Hello world"),
			UpdatedAt: timePtr(t0.Add(time.Hour)),
		},
		"empty request": {},
	}
	for k, req := range cases {
		t.Run(k, func(t *testing.T) {
			res, err := f.svc.Update(context.TODO(), "status1", req)
			require.Nil(t, err)
			assert.False(t, res.Material)
			assert.False(t, res.Status.Edited())

			edits, err := f.svc.History(context.TODO(), "status1")
			require.Nil(t, err)
			assert.Empty(t, edits)
			assert.Empty(t, f.dlv.plans)
		})
	}
}

func TestService_Update_IdempotentAtSameTimestamp(t *testing.T) {
	f := newFixture(t, config.ModerationConfig{}, nil)
	f.seedRemote(t)
	at := t0.Add(time.Hour)

	res, err := f.svc.UpdateRemote(context.TODO(), "https://example.com/statuses/status2", model.StatusEditRequest{
		Text:      strPtr("version one"),
		UpdatedAt: timePtr(at),
	})
	require.Nil(t, err)
	require.True(t, res.Material)

	// redelivery of the same timestamp never applies, whatever it carries
	res, err = f.svc.UpdateRemote(context.TODO(), "https://example.com/statuses/status2", model.StatusEditRequest{
		Text:      strPtr("something else entirely"),
		UpdatedAt: timePtr(at),
	})
	require.Nil(t, err)
	assert.False(t, res.Material)
	assert.Equal(t, "version one", res.Status.Text)

	edits, err := f.svc.History(context.TODO(), "status2")
	require.Nil(t, err)
	assert.Len(t, edits, 1)
}

func TestService_Update_NotFound(t *testing.T) {
	f := newFixture(t, config.ModerationConfig{}, nil)
	_, err := f.svc.Update(context.TODO(), "absent", model.StatusEditRequest{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestService_UpdateRemote_OutOfOrder(t *testing.T) {
	f := newFixture(t, config.ModerationConfig{}, nil)
	f.seedRemote(t)

	res, err := f.svc.UpdateRemote(context.TODO(), "https://example.com/statuses/status2", model.StatusEditRequest{
		Text:      strPtr("version two"),
		UpdatedAt: timePtr(t0.Add(2 * time.Hour)),
	})
	require.Nil(t, err)
	require.True(t, res.Material)

	// the older edit arrives late and must not win
	res, err = f.svc.UpdateRemote(context.TODO(), "https://example.com/statuses/status2", model.StatusEditRequest{
		Text:      strPtr("version one"),
		UpdatedAt: timePtr(t0.Add(time.Hour)),
	})
	require.Nil(t, err)
	assert.False(t, res.Material)
	assert.Equal(t, "version two", res.Status.Text)

	edits, err := f.svc.History(context.TODO(), "status2")
	require.Nil(t, err)
	assert.Len(t, edits, 1)
}

func TestService_History_Complete(t *testing.T) {
	f := newFixture(t, config.ModerationConfig{}, nil)
	f.seedLocal(t)

	texts := []string{"v1", "v2", "v3"}
	for _, txt := range texts {
		res, err := f.svc.Update(context.TODO(), "status1", model.StatusEditRequest{
			Text: strPtr(txt),
		})
		require.Nil(t, err)
		require.True(t, res.Material)
	}

	edits, err := f.svc.History(context.TODO(), "status1")
	require.Nil(t, err)
	require.Len(t, edits, 3)
	assert.Equal(t, "Hello world", edits[0].Text)
	assert.Equal(t, "v1", edits[1].Text)
	assert.Equal(t, "v2", edits[2].Text)
}

func TestService_Update_MentionsPreserved(t *testing.T) {
	f := newFixture(t, config.ModerationConfig{}, nil)
	require.Nil(t, f.mem.SaveAccount(context.TODO(), model.Account{
		Id:     "bob1",
		Acct:   "bob@example.com",
		Domain: "example.com",
	}))
	st := f.seedLocal(t)
	st.Text = "Hello @bob@example.com"
	st.Mentions = []model.Mention{
		{AccountId: "bob1", Acct: "bob@example.com"},
	}
	require.Nil(t, f.mem.SaveStatus(context.TODO(), st))

	res, err := f.svc.Update(context.TODO(), "status1", model.StatusEditRequest{
		Text: strPtr("Hello nobody"),
	})
	require.Nil(t, err)
	require.True(t, res.Material)
	require.Len(t, res.Status.Mentions, 1)
	assert.True(t, res.Status.Mentions[0].Silent)
	assert.Empty(t, res.Status.ActiveMentions())
	assert.Equal(t, []string{"bob1"}, res.MentionsSilenced)

	// mentioning bob again reactivates the same record
	res, err = f.svc.Update(context.TODO(), "status1", model.StatusEditRequest{
		Text: strPtr("Hello again @bob@example.com"),
	})
	require.Nil(t, err)
	require.True(t, res.Material)
	require.Len(t, res.Status.Mentions, 1)
	assert.False(t, res.Status.Mentions[0].Silent)
}

func TestService_Update_ScopePromotion(t *testing.T) {
	f := newFixture(t, config.ModerationConfig{}, nil)
	require.Nil(t, f.mem.SaveAccount(context.TODO(), model.Account{
		Id:     "bob1",
		Acct:   "bob@example.com",
		Domain: "example.com",
	}))
	st := f.seedLocal(t)
	st.Visibility = model.VisibilityLimited
	st.Scope = model.LimitedScopePersonal
	require.Nil(t, f.mem.SaveStatus(context.TODO(), st))

	res, err := f.svc.Update(context.TODO(), "status1", model.StatusEditRequest{
		Text: strPtr("Hello @bob@example.com"),
	})
	require.Nil(t, err)
	require.True(t, res.Material)
	assert.Equal(t, model.LimitedScopeCircle, res.Status.Scope)
}

func TestService_Update_PreviewCardReset(t *testing.T) {
	f := newFixture(t, config.ModerationConfig{}, nil)
	st := f.seedLocal(t)
	st.PreviewCardUrl = "https://example.com/article"
	require.Nil(t, f.mem.SaveStatus(context.TODO(), st))

	t.Run("kept when only sensitivity changes", func(t *testing.T) {
		res, err := f.svc.Update(context.TODO(), "status1", model.StatusEditRequest{
			Sensitive: boolPtr(true),
		})
		require.Nil(t, err)
		require.True(t, res.Material)
		assert.Equal(t, "https://example.com/article", res.Status.PreviewCardUrl)
	})

	t.Run("reset when the text changes", func(t *testing.T) {
		res, err := f.svc.Update(context.TODO(), "status1", model.StatusEditRequest{
			Text: strPtr("New text"),
		})
		require.Nil(t, err)
		require.True(t, res.Material)
		assert.Empty(t, res.Status.PreviewCardUrl)
	})
}

func TestService_Update_PollReplaced(t *testing.T) {
	f := newFixture(t, config.ModerationConfig{}, nil)
	st := f.seedLocal(t)
	st.Poll = &model.Poll{
		Id:         "poll1",
		StatusId:   "status1",
		Options:    []string{"Foo", "Bar"},
		Tallies:    []int64{3, 5},
		VotesCount: 8,
	}
	require.Nil(t, f.mem.SaveStatus(context.TODO(), st))

	res, err := f.svc.Update(context.TODO(), "status1", model.StatusEditRequest{
		PollProvided: true,
		Poll: &model.PollSpec{
			Options: []string{"Foo", "Bar", "Baz"},
		},
	})
	require.Nil(t, err)
	require.True(t, res.Material)
	require.NotNil(t, res.Status.Poll)
	assert.Equal(t, "poll1", res.Status.Poll.Id)
	assert.Equal(t, []string{"Foo", "Bar", "Baz"}, res.Status.Poll.Options)
	assert.Equal(t, []int64{0, 0, 0}, res.Status.Poll.Tallies)
	assert.Zero(t, res.Status.Poll.VotesCount)

	edits, err := f.svc.History(context.TODO(), "status1")
	require.Nil(t, err)
	require.Len(t, edits, 1)
	assert.Equal(t, []string{"Foo", "Bar"}, edits[0].PollOptions)
}

func TestService_Update_PollMalformed(t *testing.T) {
	f := newFixture(t, config.ModerationConfig{}, nil)
	f.seedLocal(t)

	_, err := f.svc.Update(context.TODO(), "status1", model.StatusEditRequest{
		PollProvided: true,
		Poll: &model.PollSpec{
			Options:    []string{"Foo", "Bar"},
			VoteCounts: []int64{1},
		},
	})
	assert.ErrorIs(t, err, poll.ErrMalformed)
}

func TestService_UpdateRemote_TallyRefreshOnly(t *testing.T) {
	f := newFixture(t, config.ModerationConfig{}, nil)
	st := f.seedRemote(t)
	st.Poll = &model.Poll{
		Id:       "poll1",
		StatusId: "status2",
		Options:  []string{"Foo", "Bar"},
		Tallies:  []int64{1, 2},
	}
	require.Nil(t, f.mem.SaveStatus(context.TODO(), st))

	// no updated marker: the tallies move, the status is not edited
	res, err := f.svc.UpdateRemote(context.TODO(), "https://example.com/statuses/status2", model.StatusEditRequest{
		PollProvided: true,
		Poll: &model.PollSpec{
			Options:    []string{"Foo", "Bar"},
			VoteCounts: []int64{4, 7},
		},
	})
	require.Nil(t, err)
	assert.False(t, res.Material)
	assert.True(t, res.TalliesRefreshed)
	assert.False(t, res.Status.Edited())
	assert.Equal(t, []int64{4, 7}, res.Status.Poll.Tallies)
	assert.Equal(t, int64(11), res.Status.Poll.VotesCount)

	edits, err := f.svc.History(context.TODO(), "status2")
	require.Nil(t, err)
	assert.Empty(t, edits)
}

func TestService_Update_Media(t *testing.T) {
	f := newFixture(t, config.ModerationConfig{}, nil)
	st := f.seedLocal(t)
	st.MediaAttachments = []model.MediaAttachment{
		{
			Id:        "media1",
			AccountId: "alice1",
			StatusId:  "status1",
			RemoteUrl: "https://example.com/a.png",
		},
	}
	require.Nil(t, f.mem.SaveStatus(context.TODO(), st))

	res, err := f.svc.Update(context.TODO(), "status1", model.StatusEditRequest{
		MediaProvided: true,
		Media: []model.AttachmentSpec{
			{RemoteUrl: "https://example.com/a.png", Description: "a closeup"},
			{RemoteUrl: "https://example.com/b.png"},
		},
	})
	require.Nil(t, err)
	require.True(t, res.Material)
	require.Len(t, res.Status.MediaAttachments, 2)
	// the existing attachment keeps its id, no refetch
	assert.Equal(t, "media1", res.Status.MediaAttachments[0].Id)
	assert.Equal(t, "a closeup", res.Status.MediaAttachments[0].Description)
	assert.True(t, res.Status.MediaAttachments[1].Pending)
	require.Len(t, f.fq.enqueued, 1)
	assert.Equal(t, "https://example.com/b.png", f.fq.enqueued[0].RemoteUrl)

	// dropping an attachment detaches it from the status only
	res, err = f.svc.Update(context.TODO(), "status1", model.StatusEditRequest{
		MediaProvided: true,
		Media: []model.AttachmentSpec{
			{RemoteUrl: "https://example.com/b.png"},
		},
	})
	require.Nil(t, err)
	require.True(t, res.Material)
	require.Len(t, res.Status.MediaAttachments, 1)
}

func TestService_Update_NgWords(t *testing.T) {
	modCfg := config.ModerationConfig{
		NgWords: []string{"ohagi"},
	}

	t.Run("local edit is rejected", func(t *testing.T) {
		f := newFixture(t, modCfg, nil)
		f.seedLocal(t)
		_, err := f.svc.Update(context.TODO(), "status1", model.StatusEditRequest{
			Text: strPtr("ohagi is great"),
		})
		assert.ErrorIs(t, err, moderation.ErrValidation)
		st, err := f.mem.GetStatus(context.TODO(), "status1")
		require.Nil(t, err)
		assert.Equal(t, "Hello world", st.Text)
	})

	t.Run("remote edit is discarded silently", func(t *testing.T) {
		f := newFixture(t, modCfg, nil)
		f.seedRemote(t)
		res, err := f.svc.UpdateRemote(context.TODO(), "https://example.com/statuses/status2", model.StatusEditRequest{
			Text:      strPtr("ohagi is great"),
			UpdatedAt: timePtr(t0.Add(time.Hour)),
		})
		require.Nil(t, err)
		assert.True(t, res.Discarded)
		assert.False(t, res.Material)
		st, err := f.mem.GetStatus(context.TODO(), "status2")
		require.Nil(t, err)
		assert.Equal(t, "Hello world", st.Text)
	})
}

func TestService_UpdateRemote_StrangerMentionStripped(t *testing.T) {
	f := newFixture(t, config.ModerationConfig{
		NgWordsStrangerMention: []string{"buy now"},
	}, nil)
	require.Nil(t, f.mem.SaveAccount(context.TODO(), model.Account{
		Id:   "carol1",
		Acct: "carol",
	}))
	f.seedRemote(t)

	res, err := f.svc.UpdateRemote(context.TODO(), "https://example.com/statuses/status2", model.StatusEditRequest{
		Text:      strPtr("buy now @carol"),
		UpdatedAt: timePtr(t0.Add(time.Hour)),
	})
	require.Nil(t, err)
	require.True(t, res.Material)
	// carol does not follow the author, the mention is stripped
	assert.Empty(t, res.Status.ActiveMentions())
	assert.Equal(t, "buy now @carol", res.Status.Text)
}

func TestService_Update_RejectSensitiveDomain(t *testing.T) {
	f := newFixture(t, config.ModerationConfig{}, []model.DomainBlock{
		{
			Domain:              "example.com",
			Severity:            "noop",
			RejectSendSensitive: true,
		},
	})
	f.seedLocal(t)
	f.mem.AddFollower("alice1", model.Recipient{
		AccountId: "hank1",
		Domain:    "example.com",
		Inbox:     "https://example.com/inbox",
	})
	f.mem.AddFollower("alice1", model.Recipient{
		AccountId: "bill1",
		Domain:    "example2.com",
		Inbox:     "https://example2.com/inbox",
	})

	res, err := f.svc.Update(context.TODO(), "status1", model.StatusEditRequest{
		Text:      strPtr("now with a warning"),
		Sensitive: boolPtr(true),
	})
	require.Nil(t, err)
	require.True(t, res.Material)

	require.Len(t, f.dlv.plans, 1)
	byInbox := map[string]string{}
	for _, dlv := range f.dlv.plans[0] {
		byInbox[dlv.Inbox] = dlv.Activity.Type
	}
	assert.Equal(t, model.ActivityTypeDelete, byInbox["https://example.com/inbox"])
	assert.Equal(t, model.ActivityTypeUpdate, byInbox["https://example2.com/inbox"])
}

func TestService_Remove(t *testing.T) {
	f := newFixture(t, config.ModerationConfig{}, nil)
	f.seedLocal(t)
	f.mem.AddFollower("alice1", model.Recipient{
		AccountId: "hank1",
		Domain:    "example.com",
		Inbox:     "https://example.com/inbox",
	})

	require.Nil(t, f.svc.Remove(context.TODO(), "status1"))
	_, err := f.mem.GetStatus(context.TODO(), "status1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, []string{model.ActivityTypeDelete}, f.dlv.activities())
}
