// Package reconcile re-derives subscription state from the stores on demand.
package reconcile

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/storesync/storesync/internal/application/reconciliation/usecases"
	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
	"github.com/storesync/storesync/internal/infrastructure/database"
	"github.com/storesync/storesync/internal/infrastructure/repository"
	"github.com/storesync/storesync/internal/interfaces/cli/bootstrap"
	httpRouter "github.com/storesync/storesync/internal/interfaces/http"
)

var (
	env         string
	userID      uint
	storeEnv    string
	stale       bool
	failedSince time.Duration
	limit       int
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Re-derive subscription state from the stores",
		Long: `Fetch the authoritative purchase state for one user's subscription and
apply whatever notification was missed. With --stale, run one pass of the
recovery sweep over every overdue subscription instead.`,
		Example: `  storesync reconcile --user 42 --store-env production
  storesync reconcile --stale
  storesync reconcile ledger --user 42`,
		RunE: runReconcile,
	}

	cmd.PersistentFlags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.Flags().UintVar(&userID, "user", 0, "User id whose subscription to reconcile")
	cmd.Flags().StringVar(&storeEnv, "store-env", "production", "Store environment of the record (production, sandbox)")
	cmd.Flags().BoolVar(&stale, "stale", false, "Reconcile every subscription past its period end")
	cmd.MarkFlagsMutuallyExclusive("user", "stale")
	cmd.MarkFlagsOneRequired("user", "stale")

	cmd.AddCommand(newFailedCommand(), newLedgerCommand())

	return cmd
}

func newFailedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "failed",
		Short: "List webhook deliveries that failed and may need a replay",
		RunE:  runFailed,
	}

	cmd.Flags().DurationVar(&failedSince, "since", 24*time.Hour, "How far back to look")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of deliveries to list")

	return cmd
}

func runReconcile(cmd *cobra.Command, args []string) error {
	environment, err := vo.ParseEnvironment(storeEnv)
	if err != nil && !stale {
		return err
	}

	cfg, log, err := bootstrap.InitWithDatabase(env)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := httpRouter.NewContainer(ctx, database.Get(), cfg, log)
	if err != nil {
		return fmt.Errorf("failed to wire service: %w", err)
	}
	defer container.Shutdown()

	out := cmd.OutOrStdout()

	if stale {
		changed, err := container.RecoverStaleSubscriptions().Execute(ctx)
		fmt.Fprintf(out, "recovered %d subscription(s)\n", changed)
		return err
	}

	res, err := container.RecoverSubscription().Execute(ctx, usecases.RecoverCommand{
		UserID:      userID,
		Environment: environment,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "user\t%d\n", userID)
	fmt.Fprintf(w, "environment\t%s\n", environment)
	fmt.Fprintf(w, "derived event\t%s\n", res.Kind)
	fmt.Fprintf(w, "status\t%s -> %s\n", res.PreviousStatus, res.Status)
	fmt.Fprintf(w, "applied\t%t\n", res.Applied)
	return w.Flush()
}

func runFailed(cmd *cobra.Command, args []string) error {
	_, log, err := bootstrap.InitWithDatabase(env)
	if err != nil {
		return err
	}
	defer database.Close()

	repo := repository.NewNotificationRepository(database.Get(), log)
	records, err := repo.ListFailed(cmd.Context(), time.Now().UTC().Add(-failedSince), limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RECEIVED\tPLATFORM\tNOTIFICATION\tTYPE\tERROR")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.ReceivedAt.Format(time.RFC3339), r.Platform, r.NotificationID, r.NotificationType, r.Error)
	}
	return w.Flush()
}
