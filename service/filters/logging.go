package filters

import (
	"context"
	"fmt"
	"github.com/awakari/fedistatus/model"
	"github.com/awakari/fedistatus/util"
	"log/slog"
)

type logging struct {
	svc Service
	log *slog.Logger
}

func NewServiceLogging(svc Service, log *slog.Logger) Service {
	return logging{
		svc: svc,
		log: log,
	}
}

func (l logging) Match(ctx context.Context, accountId string, st model.Status, followingAuthor bool) (verdicts []model.FilterVerdict, err error) {
	verdicts, err = l.svc.Match(ctx, accountId, st, followingAuthor)
	l.log.Log(ctx, util.LogLevel(err), fmt.Sprintf("filters.Match(accountId=%s, statusId=%s): %d, %s", accountId, st.Id, len(verdicts), err))
	return
}

func (l logging) Create(ctx context.Context, f model.Filter) (created model.Filter, err error) {
	created, err = l.svc.Create(ctx, f)
	l.log.Log(ctx, util.LogLevel(err), fmt.Sprintf("filters.Create(accountId=%s, title=%s): %s, %s", f.AccountId, f.Title, created.Id, err))
	return
}

func (l logging) Update(ctx context.Context, f model.Filter) (err error) {
	err = l.svc.Update(ctx, f)
	l.log.Log(ctx, util.LogLevel(err), fmt.Sprintf("filters.Update(accountId=%s, id=%s): %s", f.AccountId, f.Id, err))
	return
}

func (l logging) Delete(ctx context.Context, accountId, id string) (err error) {
	err = l.svc.Delete(ctx, accountId, id)
	l.log.Log(ctx, util.LogLevel(err), fmt.Sprintf("filters.Delete(accountId=%s, id=%s): %s", accountId, id, err))
	return
}
