package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/umarfq/bookline/config"
	"github.com/umarfq/bookline/domain/market"
	"github.com/umarfq/bookline/infra/kafka"
	"github.com/umarfq/bookline/infra/outbox"
	"github.com/umarfq/bookline/jobs/broadcaster"
	"github.com/umarfq/bookline/service"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the engine against the Kafka feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			log, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer log.Sync()
			return serve(cfg, log)
		},
	}
}

func serve(cfg *config.Config, log *zap.Logger) error {
	reg := prometheus.NewRegistry()
	rep, err := service.New(cfg, log, reg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep.Start()
	defer rep.Stop()

	// Completed responses either land in the durable outbox for the
	// broadcaster, or are logged when Kafka publishing is disabled.
	sink := func(req *market.Request) {
		payload, err := service.EncodeResponse(req)
		if err != nil {
			log.Error("encoding response", zap.Error(err))
			return
		}
		log.Info("analytics response", zap.ByteString("event", payload))
	}

	if cfg.Outbox.Enabled {
		ob, err := outbox.Open(cfg.Outbox.Dir)
		if err != nil {
			return err
		}
		defer ob.Close()

		bc, err := broadcaster.New(ob, cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, cfg.Outbox.PublishInterval, log)
		if err != nil {
			return err
		}
		defer bc.Close()
		go bc.Run(ctx)

		sink = func(req *market.Request) {
			payload, err := service.EncodeResponse(req)
			if err != nil {
				log.Error("encoding response", zap.Error(err))
				return
			}
			if err := ob.Put(req.ID, payload); err != nil {
				log.Error("writing outbox", zap.Uint64("id", req.ID), zap.Error(err))
			}
		}
	}
	go rep.PumpResponses(ctx, sink)

	if cfg.Kafka.Enabled {
		consumer := kafka.NewLineConsumer(cfg.Kafka.Brokers, cfg.Kafka.LinesTopic, cfg.Kafka.Group, log)
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx, rep.IngestLine); err != nil {
				log.Error("kafka consumer exited", zap.Error(err))
				stop()
			}
		}()
	}

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server exited", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	log.Info("engine running", zap.Strings("instruments", cfg.Instruments))
	<-ctx.Done()
	return nil
}
