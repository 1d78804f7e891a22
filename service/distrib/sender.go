package distrib

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
)

type httpSender struct {
	clientHttp *http.Client
	userAgent  string
}

func NewHttpSender(clientHttp *http.Client, userAgent string) Sender {
	return httpSender{
		clientHttp: clientHttp,
		userAgent:  userAgent,
	}
}

func (hs httpSender) Send(ctx context.Context, payload []byte, inbox string) (err error) {
	var req *http.Request
	req, err = http.NewRequestWithContext(ctx, http.MethodPost, inbox, bytes.NewReader(payload))
	var resp *http.Response
	if err == nil {
		req.Header.Add("Content-Type", "application/activity+json")
		req.Header.Add("User-Agent", hs.userAgent)
		resp, err = hs.clientHttp.Do(req)
	}
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusBadRequest {
			err = fmt.Errorf("send to %s: status %d", inbox, resp.StatusCode)
		}
	}
	return
}

// SenderMock records sent payloads per inbox, safely across workers.
type SenderMock struct {
	mu    sync.Mutex
	Sent  map[string][][]byte
	Fails map[string]int
}

func NewSenderMock() *SenderMock {
	return &SenderMock{
		Sent:  make(map[string][][]byte),
		Fails: make(map[string]int),
	}
}

func (sm *SenderMock) Send(ctx context.Context, payload []byte, inbox string) (err error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.Fails[inbox] > 0 {
		sm.Fails[inbox]--
		err = fmt.Errorf("send to %s: status 500", inbox)
		return
	}
	sm.Sent[inbox] = append(sm.Sent[inbox], payload)
	return
}

func (sm *SenderMock) SentTo(inbox string) (payloads [][]byte) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	payloads = append(payloads, sm.Sent[inbox]...)
	return
}
