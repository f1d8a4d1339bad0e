package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/umarfq/bookline/config"
	"github.com/umarfq/bookline/domain/market"
	"github.com/umarfq/bookline/infra/feed"
	"github.com/umarfq/bookline/infra/kafka"
	"github.com/umarfq/bookline/service"
)

func replayCmd() *cobra.Command {
	var (
		file    string
		levels  int
		toKafka bool
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a market data line file and print book analytics",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			log, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			defer log.Sync()
			if toKafka {
				return publishFile(cfg, file, log)
			}
			return replay(cfg, file, levels, log)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "line file to replay")
	cmd.Flags().IntVar(&levels, "levels", 3, "levels per analytics query")
	cmd.Flags().BoolVar(&toKafka, "to-kafka", false, "publish lines to the feed topic instead of replaying locally")
	cmd.MarkFlagRequired("file")
	return cmd
}

// publishFile sends each line of the file to the Kafka lines topic, for
// feeding a live serve instance.
func publishFile(cfg *config.Config, file string, log *zap.Logger) error {
	producer := kafka.NewLineProducer(cfg.Kafka.Brokers, cfg.Kafka.LinesTopic)
	defer producer.Close()

	sent := 0
	err := feed.ForEachLine(file, func(line string) error {
		if err := producer.Send(context.Background(), line); err != nil {
			return err
		}
		sent++
		return nil
	})
	if err != nil {
		return err
	}
	log.Info("published lines", zap.Int("count", sent))
	return nil
}

func replay(cfg *config.Config, file string, levels int, log *zap.Logger) error {
	rep, err := service.New(cfg, log, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	rep.Start()
	defer rep.Stop()

	accepted, skipped, err := rep.ReplayFile(file)
	if err != nil {
		return err
	}
	log.Info("replay complete", zap.Int("accepted", accepted), zap.Int("skipped", skipped))

	// Give the books a moment to drain before querying.
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, inst := range cfg.Instruments {
		for _, side := range []market.Side{market.Bid, market.Offer} {
			top, _ := rep.TopOfBook(inst, side)
			fmt.Printf("%s %-5s top=%.2f", inst, side, top)
			for _, kind := range []market.QueryKind{market.AveragePrice, market.AverageQuantity, market.Vwap} {
				req, err := rep.Query(inst, side, kind, levels)
				if err != nil {
					return err
				}
				v, err := rep.Await(ctx, req, nil)
				if err != nil {
					return err
				}
				fmt.Printf("  %s(%d)=%.2f", kind, levels, v)
			}
			fmt.Println()
		}
	}
	return nil
}
