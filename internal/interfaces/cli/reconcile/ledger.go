package reconcile

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/storesync/storesync/internal/domain/ledger"
	"github.com/storesync/storesync/internal/infrastructure/database"
	"github.com/storesync/storesync/internal/infrastructure/repository"
	"github.com/storesync/storesync/internal/interfaces/cli/bootstrap"
)

var (
	ledgerUserID uint
	ledgerTxID   string
)

func newLedgerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Print the ledger entries of a user or a transaction",
		Example: `  storesync reconcile ledger --user 42
  storesync reconcile ledger --tx 2000000123456789`,
		RunE: runLedger,
	}

	cmd.Flags().UintVar(&ledgerUserID, "user", 0, "User id whose entries to print")
	cmd.Flags().StringVar(&ledgerTxID, "tx", "", "Store transaction id of a single entry")
	cmd.MarkFlagsMutuallyExclusive("user", "tx")
	cmd.MarkFlagsOneRequired("user", "tx")

	return cmd
}

func runLedger(cmd *cobra.Command, args []string) error {
	_, log, err := bootstrap.InitWithDatabase(env)
	if err != nil {
		return err
	}
	defer database.Close()

	repo := repository.NewLedgerRepository(database.Get(), log)
	entries, err := lookupLedger(cmd.Context(), repo, ledgerUserID, ledgerTxID)
	if err != nil {
		return err
	}
	return writeLedger(cmd.OutOrStdout(), entries)
}

// lookupLedger reads one entry by transaction id, or every entry of a user.
func lookupLedger(ctx context.Context, repo ledger.Repository, userID uint, txID string) ([]*ledger.Entry, error) {
	if txID == "" {
		return repo.ListByUser(ctx, userID)
	}
	e, err := repo.GetByTransactionID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("no ledger entry for transaction %s", txID)
	}
	return []*ledger.Entry{e}, nil
}

func writeLedger(out io.Writer, entries []*ledger.Entry) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PAID\tUSER\tPLATFORM\tENVIRONMENT\tTRANSACTION\tPLAN\tAMOUNT\tSTATUS")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%d %s\t%s\n",
			e.PaidAt().Format(time.RFC3339), e.UserID(), e.Platform(), e.Environment(),
			e.TransactionID(), e.PlanID(), e.Amount(), e.Currency(), e.Status())
	}
	return w.Flush()
}
