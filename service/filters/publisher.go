package filters

import (
	"context"
	"github.com/bytedance/sonic"
	"github.com/r3labs/sse/v2"
)

const eventFiltersChanged = "filters_changed"

// Publisher announces filter set changes on the owning account's realtime
// stream channels: the personal timeline channel and the system channel.
type Publisher interface {
	PublishFiltersChanged(ctx context.Context, accountId string) (err error)
}

type streamEvent struct {
	Event string `json:"event"`
}

type ssePublisher struct {
	srv *sse.Server
}

func NewSsePublisher(srv *sse.Server) Publisher {
	return ssePublisher{
		srv: srv,
	}
}

func (p ssePublisher) PublishFiltersChanged(_ context.Context, accountId string) (err error) {
	var data []byte
	data, err = sonic.Marshal(streamEvent{Event: eventFiltersChanged})
	if err == nil {
		for _, ch := range []string{"timeline:" + accountId, "timeline:system:" + accountId} {
			p.srv.CreateStream(ch)
			p.srv.Publish(ch, &sse.Event{
				Event: []byte(eventFiltersChanged),
				Data:  data,
			})
		}
	}
	return
}

// PublisherMock records the channels published to, for tests.
type PublisherMock struct {
	Published []string
}

func (pm *PublisherMock) PublishFiltersChanged(_ context.Context, accountId string) (err error) {
	pm.Published = append(pm.Published, "timeline:"+accountId, "timeline:system:"+accountId)
	return
}
