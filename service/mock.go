package service

import (
	"context"
	"github.com/awakari/fedistatus/model"
	"github.com/awakari/fedistatus/service/moderation"
	"github.com/awakari/fedistatus/storage"
	"time"
)

type serviceMock struct {
}

func NewServiceMock() Service {
	return serviceMock{}
}

func (sm serviceMock) Update(ctx context.Context, statusId string, req model.StatusEditRequest) (res Result, err error) {
	switch statusId {
	case "missing":
		err = storage.ErrNotFound
	case "ng":
		err = moderation.ErrValidation
	case "noop":
		res.Status = model.Status{Id: statusId}
	default:
		res.Status = model.Status{
			Id:       statusId,
			EditedAt: time.Date(2025, 6, 27, 8, 55, 41, 0, time.UTC),
		}
		res.Material = true
	}
	return
}

func (sm serviceMock) UpdateRemote(ctx context.Context, uri string, req model.StatusEditRequest) (res Result, err error) {
	switch uri {
	case "https://example.com/statuses/missing":
		err = storage.ErrNotFound
	case "https://example.com/statuses/ng":
		res.Discarded = true
	default:
		res.Status = model.Status{Id: "status1", Uri: uri}
		res.Material = true
	}
	return
}

func (sm serviceMock) Remove(ctx context.Context, statusId string) (err error) {
	if statusId == "missing" {
		err = storage.ErrNotFound
	}
	return
}

func (sm serviceMock) History(ctx context.Context, statusId string) (edits []model.StatusEdit, err error) {
	switch statusId {
	case "missing":
		err = storage.ErrNotFound
	default:
		edits = []model.StatusEdit{
			{
				Id:       "edit1",
				StatusId: statusId,
				Text:     "Hello world",
			},
		}
	}
	return
}
