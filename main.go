package main

import (
	"context"
	"fmt"
	apiHttp "github.com/awakari/fedistatus/api/http"
	"github.com/awakari/fedistatus/config"
	"github.com/awakari/fedistatus/service"
	"github.com/awakari/fedistatus/service/distrib"
	"github.com/awakari/fedistatus/service/filters"
	"github.com/awakari/fedistatus/service/history"
	"github.com/awakari/fedistatus/service/media"
	"github.com/awakari/fedistatus/service/moderation"
	"github.com/awakari/fedistatus/storage/sqlite"
	"github.com/r3labs/sse/v2"
	"log/slog"
	"net/http"
	"os"
)

func main() {
	//
	cfg, err := config.NewConfigFromEnv()
	if err != nil {
		panic(fmt.Sprintf("failed to load the config from env: %s", err))
	}
	//
	opts := slog.HandlerOptions{
		Level: slog.Level(cfg.Log.Level),
	}
	log := slog.New(slog.NewTextHandler(os.Stdout, &opts))
	log.Info("starting the status reconciliation service")
	//
	stg, err := sqlite.NewRepository(cfg.Db.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to open the storage at %s: %s", cfg.Db.Path, err))
	}
	defer stg.Close()
	log.Info(fmt.Sprintf("opened the storage @ %s", cfg.Db.Path))
	//
	ctx := context.Background()
	blocks, err := stg.ListDomainBlocks(ctx)
	if err != nil {
		panic(fmt.Sprintf("failed to load the domain blocks: %s", err))
	}
	svcMod := moderation.NewService(moderation.NewDefaultRules(cfg.Moderation, stg, blocks)...)
	log.Info(fmt.Sprintf("loaded %d domain blocks", len(blocks)))
	//
	sseSrv := sse.New()
	sseSrv.AutoReplay = false
	defer sseSrv.Close()
	svcFilters, err := filters.NewService(stg, stg, cfg.Filters.CacheSize, filters.NewSsePublisher(sseSrv))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize the filters service: %s", err))
	}
	svcFilters = filters.NewServiceLogging(svcFilters, log)
	//
	clientHttp := &http.Client{}
	fetchQueue := media.NewQueue(
		media.NewHttpFetcher(clientHttp, cfg.Api.Delivery.UserAgent),
		stg,
		cfg.Api.Fetch,
		log,
	)
	go fetchQueue.Run(ctx)
	//
	deliverer := distrib.NewDeliverer(
		distrib.NewHttpSender(clientHttp, cfg.Api.Delivery.UserAgent),
		cfg.Api.Delivery,
		log,
	)
	go deliverer.Run(ctx)
	//
	svc := service.NewService(
		stg,
		stg,
		stg,
		history.NewLedger(stg),
		svcMod,
		distrib.NewPlanner(stg, stg, stg),
		deliverer,
		fetchQueue,
	)
	svc = service.NewServiceLogging(svc, log)
	//
	log.Info(fmt.Sprintf("starting to listen the HTTP API @ port #%d...", cfg.Api.Port))
	r := apiHttp.NewRouter(svc, svcFilters, stg, stg, sseSrv)
	if err = r.Run(fmt.Sprintf(":%d", cfg.Api.Port)); err != nil {
		panic(err)
	}
}
