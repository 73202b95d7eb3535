package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livechat/internal/app/registry"
	"livechat/internal/app/server"
	"livechat/internal/app/server/handlers"
	"livechat/internal/app/worker"
	"livechat/internal/config"
	"livechat/internal/core/services"
	"livechat/internal/platform/logger"
	"livechat/internal/platform/telemetry"
	"livechat/internal/plugins/objstore"
	"livechat/internal/plugins/postgres"
	redisPlugin "livechat/internal/plugins/redis"

	"github.com/google/uuid"
)

func main() {
	// Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Config
	cfg := config.Load()

	// Logger
	log := logger.NewLogger(*cfg)
	log.Info("starting application")

	otelShutdown, err := telemetry.InitTelemetry(ctx, *cfg)
	if err != nil {
		log.Error("failed to initialize telemetry", "err", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Error("telemetry shutdown failed", "err", err)
		}
	}()

	// Infra
	pdb, err := postgres.New(ctx, *cfg.Postgres)
	if err != nil {
		log.Error("postgres connection failed", "err", err)
		return
	}
	defer pdb.Close()
	log.Info("postgres connected")

	rdb, err := redisPlugin.NewRedisClient(ctx, *cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "url", cfg.Redis.URL, "err", err)
		return
	}
	defer rdb.Close()
	log.Info("redis connected")

	// Adapters
	userRepo := postgres.NewUserRepo(pdb)
	roomRepo := postgres.NewRoomRepo(pdb)
	msgRepo := postgres.NewMessageRepo(pdb)
	presStore := redisPlugin.NewRedisPresenceStore(rdb)
	msgQueue := redisPlugin.NewRedisMessageQueue(log, rdb)
	blobStore := objstore.NewClient(*cfg.ObjStore)

	// Core
	hub := registry.NewRegistry(log, *cfg.Chat)
	txManager := services.NewTxManager(pdb)
	governor := services.NewGovernor(cfg.Chat.SendRate, cfg.Chat.SendBurst)
	sequencer := services.NewSequencer(log, msgRepo, msgQueue, txManager)
	backfill := services.NewBackfill(log, msgRepo, cfg.Chat.BackfillPageSize)
	roomSvc := services.NewRoomService(log, roomRepo, hub, presStore, backfill)
	msgSvc := services.NewMessageService(log, governor, sequencer, hub)
	userSvc := services.NewUserService(log, userRepo)
	tokenSvc := services.NewTokenService(cfg.SecretToken)
	attachSvc := services.NewAttachmentService(log, blobStore, cfg.ObjStore.MaxSize)

	wrkr := worker.NewRoomWorker(log, msgQueue, hub, cfg.Chat.WorkerGroup)
	hub.RunWorker(wrkr.Run)
	hub.OnRoomEmpty(func(roomID string) {
		if rid, err := uuid.Parse(roomID); err == nil {
			sequencer.ForgetRoom(rid)
		}
		// Nobody is listening; drop the stream and online set. The durable
		// log keeps the history for backfill.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := msgQueue.DeleteStream(cleanupCtx, roomID); err != nil {
			log.Warn("room cleanup - delete stream failed", "room_id", roomID, "err", err)
		}
		if err := presStore.ClearRoom(cleanupCtx, roomID); err != nil {
			log.Warn("room cleanup - clear presence failed", "room_id", roomID, "err", err)
		}
	})
	defer hub.Close()

	// Server
	srv := server.NewServer(
		log,
		cfg.Service.Name,
		cfg.Service.Addr,
		hub,
		tokenSvc,
		handlers.NewAuthHandler(userSvc, tokenSvc),
		handlers.NewWSHandler(hub, roomSvc, msgSvc, governor, cfg.Chat.OutQueueSize),
		handlers.NewRoomsHandler(roomRepo, backfill),
		handlers.NewAttachmentsHandler(attachSvc, cfg.ObjStore.MaxSize),
	)
	if err := srv.Start(ctx); err != nil {
		log.Error("server exited", "err", err)
	}
	log.Info("shutdown complete")
}
