package media

import (
	"context"
	"fmt"
	"github.com/awakari/fedistatus/config"
	"github.com/awakari/fedistatus/model"
	"io"
	"log/slog"
	"net/http"
	"sync"
)

const limitAttachmentLen = 41_943_040

// Fetcher pulls attachment bytes from the remote source.
type Fetcher interface {
	Fetch(ctx context.Context, remoteUrl string) (data []byte, err error)
}

type httpFetcher struct {
	clientHttp *http.Client
	userAgent  string
}

func NewHttpFetcher(clientHttp *http.Client, userAgent string) Fetcher {
	return httpFetcher{
		clientHttp: clientHttp,
		userAgent:  userAgent,
	}
}

func (hf httpFetcher) Fetch(ctx context.Context, remoteUrl string) (data []byte, err error) {
	var req *http.Request
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, remoteUrl, nil)
	var resp *http.Response
	if err == nil {
		req.Header.Add("User-Agent", hf.userAgent)
		resp, err = hf.clientHttp.Do(req)
	}
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			err = fmt.Errorf("fetch %s: status %d", remoteUrl, resp.StatusCode)
		}
	}
	if err == nil {
		data, err = io.ReadAll(io.LimitReader(resp.Body, limitAttachmentLen))
	}
	return
}

// Store persists the fetched bytes and clears the pending flag.
type Store interface {
	StoreFetched(ctx context.Context, attachmentId string, data []byte) (err error)
}

// Queue accepts attachments to fetch without blocking reconciliation.
type Queue interface {
	Enqueue(atts []model.MediaAttachment)
	Run(ctx context.Context)
}

type queue struct {
	fetcher Fetcher
	store   Store
	cfg     config.FetchConfig
	log     *slog.Logger
	tasks   chan model.MediaAttachment
}

func NewQueue(fetcher Fetcher, store Store, cfg config.FetchConfig, log *slog.Logger) Queue {
	return &queue{
		fetcher: fetcher,
		store:   store,
		cfg:     cfg,
		log:     log,
		tasks:   make(chan model.MediaAttachment, cfg.QueueLimit),
	}
}

func (q *queue) Enqueue(atts []model.MediaAttachment) {
	for _, a := range atts {
		select {
		case q.tasks <- a:
		default:
			// a full queue leaves the attachment pending, nothing rolls back
			q.log.Warn(fmt.Sprintf("media.Queue: queue full, attachment %s stays pending", a.Id))
		}
	}
}

func (q *queue) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := uint32(0); i < q.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.work(ctx)
		}()
	}
	wg.Wait()
}

func (q *queue) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-q.tasks:
			fetchCtx, cancel := context.WithTimeout(ctx, q.cfg.Timeout)
			data, err := q.fetcher.Fetch(fetchCtx, a.RemoteUrl)
			if err == nil {
				err = q.store.StoreFetched(fetchCtx, a.Id, data)
			}
			cancel()
			q.log.Debug(fmt.Sprintf("media.Queue: fetch %s (%s): %d bytes, err=%v", a.Id, a.RemoteUrl, len(data), err))
		}
	}
}
