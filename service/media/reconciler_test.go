package media

import (
	"github.com/awakari/fedistatus/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestReconcile(t *testing.T) {
	foo := model.MediaAttachment{
		Id:          "att1",
		AccountId:   "acc1",
		StatusId:    "status1",
		RemoteUrl:   "https://example.com/foo.png",
		Description: "Old description",
	}
	unused := model.MediaAttachment{
		Id:        "att2",
		AccountId: "acc1",
		StatusId:  "status1",
		RemoteUrl: "https://example.com/unused.png",
	}

	t.Run("matched by url updated in place, not refetched", func(t *testing.T) {
		r := Reconcile("acc1", "status1", []model.MediaAttachment{foo, unused}, []model.AttachmentSpec{
			{RemoteUrl: "https://example.com/foo.png", Description: "A picture"},
		})
		require.Len(t, r.Ordered, 1)
		assert.Equal(t, "att1", r.Ordered[0].Id)
		assert.Equal(t, "A picture", r.Ordered[0].Description)
		assert.Empty(t, r.ToFetch)
		require.Len(t, r.Touched, 1)
		assert.Equal(t, "att1", r.Touched[0].Id)
		require.Len(t, r.Detached, 1)
		assert.Equal(t, "att2", r.Detached[0].Id)
		assert.Empty(t, r.Detached[0].StatusId)
		assert.True(t, r.Changed)
	})

	t.Run("unmatched queued for fetch", func(t *testing.T) {
		r := Reconcile("acc1", "status1", nil, []model.AttachmentSpec{
			{RemoteUrl: "https://example.com/new.png"},
		})
		require.Len(t, r.ToFetch, 1)
		assert.True(t, r.ToFetch[0].Pending)
		assert.Equal(t, "acc1", r.ToFetch[0].AccountId)
		assert.Equal(t, "status1", r.ToFetch[0].StatusId)
		assert.True(t, r.Changed)
	})

	t.Run("same description unchanged", func(t *testing.T) {
		r := Reconcile("acc1", "status1", []model.MediaAttachment{foo}, []model.AttachmentSpec{
			{RemoteUrl: "https://example.com/foo.png", Description: "Old description"},
		})
		assert.False(t, r.Changed)
		assert.Empty(t, r.ToFetch)
		assert.Empty(t, r.Detached)
	})

	t.Run("order follows incoming list", func(t *testing.T) {
		bar := model.MediaAttachment{
			Id:        "att3",
			StatusId:  "status1",
			RemoteUrl: "https://example.com/bar.png",
		}
		r := Reconcile("acc1", "status1", []model.MediaAttachment{foo, bar}, []model.AttachmentSpec{
			{RemoteUrl: "https://example.com/bar.png"},
			{RemoteUrl: "https://example.com/foo.png", Description: "Old description"},
		})
		require.Len(t, r.Ordered, 2)
		assert.Equal(t, "att3", r.Ordered[0].Id)
		assert.Equal(t, "att1", r.Ordered[1].Id)
		assert.True(t, r.Changed)
	})

	t.Run("empty incoming detaches all", func(t *testing.T) {
		r := Reconcile("acc1", "status1", []model.MediaAttachment{foo, unused}, nil)
		assert.Empty(t, r.Ordered)
		assert.Len(t, r.Detached, 2)
		assert.True(t, r.Changed)
	})
}
