package service

import (
	"context"
	"fmt"
	"github.com/awakari/fedistatus/model"
	"github.com/awakari/fedistatus/util"
	"log/slog"
)

type serviceLogging struct {
	svc Service
	log *slog.Logger
}

func NewServiceLogging(svc Service, log *slog.Logger) Service {
	return serviceLogging{
		svc: svc,
		log: log,
	}
}

func (sl serviceLogging) Update(ctx context.Context, statusId string, req model.StatusEditRequest) (res Result, err error) {
	res, err = sl.svc.Update(ctx, statusId, req)
	sl.log.Log(ctx, util.LogLevel(err), fmt.Sprintf("service.Update(%s): material=%t, tallies=%t, err=%v", statusId, res.Material, res.TalliesRefreshed, err))
	return
}

func (sl serviceLogging) UpdateRemote(ctx context.Context, uri string, req model.StatusEditRequest) (res Result, err error) {
	res, err = sl.svc.UpdateRemote(ctx, uri, req)
	sl.log.Log(ctx, util.LogLevel(err), fmt.Sprintf("service.UpdateRemote(%s): material=%t, tallies=%t, discarded=%t, err=%v", uri, res.Material, res.TalliesRefreshed, res.Discarded, err))
	return
}

func (sl serviceLogging) Remove(ctx context.Context, statusId string) (err error) {
	err = sl.svc.Remove(ctx, statusId)
	sl.log.Log(ctx, util.LogLevel(err), fmt.Sprintf("service.Remove(%s): err=%v", statusId, err))
	return
}

func (sl serviceLogging) History(ctx context.Context, statusId string) (edits []model.StatusEdit, err error) {
	edits, err = sl.svc.History(ctx, statusId)
	sl.log.Log(ctx, util.LogLevel(err), fmt.Sprintf("service.History(%s): %d, err=%v", statusId, len(edits), err))
	return
}
