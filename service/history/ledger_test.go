package history

import (
	"context"
	"github.com/awakari/fedistatus/model"
	"github.com/awakari/fedistatus/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestLedger(t *testing.T) {
	l := NewLedger(storage.NewMemory())
	st := model.Status{
		Id:          "status1",
		Text:        "Hello world",
		SpoilerText: "Show more",
		MediaAttachments: []model.MediaAttachment{
			{Id: "att1", Description: "A picture"},
		},
		Poll: &model.Poll{
			Options: []string{"Foo", "Bar"},
		},
	}

	id1, err := l.RecordPreEdit(context.TODO(), st, time.Now().UTC())
	require.Nil(t, err)
	require.NotEmpty(t, id1)

	st.Text = "Hello universe"
	id2, err := l.RecordPreEdit(context.TODO(), st, time.Now().UTC())
	require.Nil(t, err)

	edits, err := l.History(context.TODO(), "status1")
	require.Nil(t, err)
	require.Len(t, edits, 2)
	assert.Equal(t, id1, edits[0].Id)
	assert.Equal(t, id2, edits[1].Id)
	assert.Equal(t, "Hello world", edits[0].Text)
	assert.Equal(t, "Hello universe", edits[1].Text)
	assert.Equal(t, []string{"att1"}, edits[0].MediaIds)
	assert.Equal(t, []string{"A picture"}, edits[0].MediaDescriptions)
	assert.Equal(t, []string{"Foo", "Bar"}, edits[0].PollOptions)
}

func TestLedger_EmptyHistory(t *testing.T) {
	l := NewLedger(storage.NewMemory())
	edits, err := l.History(context.TODO(), "missing")
	assert.Nil(t, err)
	assert.Empty(t, edits)
}
