package distrib

import (
	"context"
	"fmt"
	"github.com/awakari/fedistatus/config"
	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
	"github.com/cloudevents/sdk-go/binding/format/protobuf/v2/pb"
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/timestamppb"
	"log/slog"
	"sync"
	"time"
)

const ceKeyInbox = "inbox"
const ceKeyActivityType = "activitytype"

// Deliverer performs the planned sends asynchronously. Reconciliation
// hands a plan over and returns immediately: retries, failures and
// cancellation are owned by the worker pool alone.
type Deliverer interface {
	Deliver(plan []Delivery)
	Run(ctx context.Context)
}

// Sender is the outer transport capability: post a payload to one remote
// inbox. Signing is layered outside of it.
type Sender interface {
	Send(ctx context.Context, payload []byte, inbox string) (err error)
}

type deliverer struct {
	sender Sender
	cfg    config.DeliveryConfig
	log    *slog.Logger
	queue  chan *pb.CloudEvent
}

func NewDeliverer(sender Sender, cfg config.DeliveryConfig, log *slog.Logger) Deliverer {
	return &deliverer{
		sender: sender,
		cfg:    cfg,
		log:    log,
		queue:  make(chan *pb.CloudEvent, cfg.QueueLimit),
	}
}

func (d *deliverer) Deliver(plan []Delivery) {
	for _, dlv := range plan {
		evt, err := d.convertDelivery(dlv)
		if err != nil {
			d.log.Error(fmt.Sprintf("deliverer: failed to convert the delivery for %s: %s", dlv.Inbox, err))
			continue
		}
		select {
		case d.queue <- evt:
		default:
			d.log.Warn(fmt.Sprintf("deliverer: queue full, dropping the delivery %s to %s", evt.Id, dlv.Inbox))
		}
	}
}

func (d *deliverer) convertDelivery(dlv Delivery) (evt *pb.CloudEvent, err error) {
	var payload []byte
	payload, err = sonic.Marshal(dlv.Activity)
	if err != nil {
		return
	}
	evt = &pb.CloudEvent{
		Id:          uuid.NewString(),
		Source:      dlv.Activity.Actor,
		SpecVersion: "1.0",
		Type:        d.cfg.EventType,
		Attributes: map[string]*pb.CloudEventAttributeValue{
			ceKeyInbox: {
				Attr: &pb.CloudEventAttributeValue_CeUri{
					CeUri: dlv.Inbox,
				},
			},
			ceKeyActivityType: {
				Attr: &pb.CloudEventAttributeValue_CeString{
					CeString: dlv.Activity.Type,
				},
			},
			"time": {
				Attr: &pb.CloudEventAttributeValue_CeTimestamp{
					CeTimestamp: timestamppb.New(time.Now().UTC()),
				},
			},
		},
		Data: &pb.CloudEvent_TextData{
			TextData: string(payload),
		},
	}
	return
}

func (d *deliverer) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := uint32(0); i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(ctx)
		}()
	}
	wg.Wait()
}

func (d *deliverer) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-d.queue:
			d.send(ctx, evt)
		}
	}
}

func (d *deliverer) send(ctx context.Context, evt *pb.CloudEvent) {
	inbox := evt.Attributes[ceKeyInbox].GetCeUri()
	payload := []byte(evt.GetTextData())
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = d.cfg.Backoff
	err := backoff.Retry(
		func() error {
			sendCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
			defer cancel()
			return d.sender.Send(sendCtx, payload, inbox)
		},
		backoff.WithContext(b, ctx),
	)
	if err != nil {
		d.log.Error(fmt.Sprintf("deliverer: gave up sending the event %s to %s: %s", evt.Id, inbox, err))
	}
}
