// Package events tails the subscription change channel.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/storesync/storesync/internal/infrastructure/pubsub"
	"github.com/storesync/storesync/internal/interfaces/cli/bootstrap"
)

var env string

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect subscription change events",
	}
	cmd.PersistentFlags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")

	cmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Print subscription change events as they are published",
		RunE:  runWatch,
	})
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap.Init(env)
	if err != nil {
		return err
	}
	if !cfg.Redis.Enabled {
		return fmt.Errorf("redis is disabled in the configuration")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(cmd.OutOrStdout())
	bus := pubsub.NewRedisSubscriptionEventBus(client, log)
	err = bus.Subscribe(ctx, func(_ context.Context, event pubsub.SubscriptionChangeEvent) {
		if err := enc.Encode(event); err != nil {
			log.Warnw("failed to print event", "error", err)
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
