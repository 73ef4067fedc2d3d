package reconcile

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storesync/storesync/internal/domain/ledger"
	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
)

type memLedger struct {
	entries []*ledger.Entry
}

func (m *memLedger) Append(_ context.Context, e *ledger.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memLedger) MarkRefunded(context.Context, string) (bool, error) { return false, nil }

func (m *memLedger) GetByTransactionID(_ context.Context, txID string) (*ledger.Entry, error) {
	for _, e := range m.entries {
		if e.TransactionID() == txID {
			return e, nil
		}
	}
	return nil, nil
}

func (m *memLedger) ListByUser(_ context.Context, userID uint) ([]*ledger.Entry, error) {
	var out []*ledger.Entry
	for _, e := range m.entries {
		if e.UserID() == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func seededLedger(t *testing.T) *memLedger {
	t.Helper()
	repo := &memLedger{}
	paid := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, txID := range []string{"2000000001", "2000000002"} {
		e, err := ledger.NewEntry(ledger.EntryParams{
			TransactionID: txID,
			UserID:        42,
			PlanID:        "premium_monthly",
			Platform:      vo.DeviceTypeIOS,
			AnchorID:      "1000000001",
			Environment:   vo.EnvironmentProduction,
			Amount:        999,
			Currency:      "usd",
			PaidAt:        paid.AddDate(0, i, 0),
		})
		require.NoError(t, err)
		require.NoError(t, repo.Append(context.Background(), e))
	}
	return repo
}

func TestLookupLedger_ByUser(t *testing.T) {
	repo := seededLedger(t)

	entries, err := lookupLedger(context.Background(), repo, 42, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var out bytes.Buffer
	require.NoError(t, writeLedger(&out, entries))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "TRANSACTION")
	assert.Contains(t, lines[1], "2000000001")
	assert.Contains(t, lines[1], "999 usd")
	assert.Contains(t, lines[2], "2026-02-02T03:04:05Z")
}

func TestLookupLedger_ByTransaction(t *testing.T) {
	repo := seededLedger(t)

	entries, err := lookupLedger(context.Background(), repo, 0, "2000000002")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2000000002", entries[0].TransactionID())

	_, err = lookupLedger(context.Background(), repo, 0, "missing")
	assert.ErrorContains(t, err, "no ledger entry for transaction missing")
}
