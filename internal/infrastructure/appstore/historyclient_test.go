package appstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
	apperrors "github.com/storesync/storesync/internal/shared/errors"
	"github.com/storesync/storesync/internal/shared/logger"
)

type fixedToken string

func (f fixedToken) Token() (string, error) { return string(f), nil }

type pagedHistory struct {
	pages     []historyPage
	requests  []string
	authSeen  []string
	forceCode int
}

func (p *pagedHistory) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.requests = append(p.requests, r.URL.RequestURI())
	p.authSeen = append(p.authSeen, r.Header.Get("Authorization"))
	if p.forceCode != 0 {
		w.WriteHeader(p.forceCode)
		_ = json.NewEncoder(w).Encode(apiError{ErrorCode: 4040010, ErrorMessage: "Transaction id not found."})
		return
	}
	idx := 0
	if rev := r.URL.Query().Get("revision"); rev != "" {
		idx, _ = strconv.Atoi(rev)
	}
	_ = json.NewEncoder(w).Encode(p.pages[idx])
}

func newPagedServer(t *testing.T, hasMore ...bool) (*pagedHistory, *httptest.Server) {
	t.Helper()
	h := &pagedHistory{}
	for i, more := range hasMore {
		h.pages = append(h.pages, historyPage{
			Revision:           strconv.Itoa(i + 1),
			HasMore:            more,
			BundleID:           testBundleID,
			Environment:        "Sandbox",
			SignedTransactions: []string{"tx-" + strconv.Itoa(i) + "-a", "tx-" + strconv.Itoa(i) + "-b"},
		})
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return h, srv
}

func newTestHistoryClient(srv *httptest.Server, maxPages int) *HistoryClient {
	return NewHistoryClient(HistoryClientConfig{
		ProductionURL: "http://production.invalid",
		SandboxURL:    srv.URL + "/",
		MaxPages:      maxPages,
	}, fixedToken("api-token"), srv.Client(), logger.NewNopLogger())
}

func TestFetchHistory_FollowsRevisionsUntilDone(t *testing.T) {
	h, srv := newPagedServer(t, true, true, false)
	client := newTestHistoryClient(srv, 0)

	got, err := client.FetchHistory(context.Background(), vo.EnvironmentSandbox, "1000000001")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/inApps/v1/history/1000000001",
		"/inApps/v1/history/1000000001?revision=1",
		"/inApps/v1/history/1000000001?revision=2",
	}, h.requests)
	assert.Equal(t, []string{"tx-0-a", "tx-0-b", "tx-1-a", "tx-1-b", "tx-2-a", "tx-2-b"}, got)
	for _, auth := range h.authSeen {
		assert.Equal(t, "Bearer api-token", auth)
	}
}

func TestFetchHistory_StopsAtPageCap(t *testing.T) {
	h, srv := newPagedServer(t, true, true, true, false)
	client := newTestHistoryClient(srv, 2)

	got, err := client.FetchHistory(context.Background(), vo.EnvironmentSandbox, "1000000001")
	require.NoError(t, err)

	assert.Len(t, h.requests, 2)
	assert.Len(t, got, 4)
}

func TestFetchHistory_StaysInRequestedEnvironment(t *testing.T) {
	prod, prodSrv := newPagedServer(t, false)
	sandbox, sandboxSrv := newPagedServer(t, false)
	prod.forceCode = http.StatusNotFound
	client := NewHistoryClient(HistoryClientConfig{
		ProductionURL: prodSrv.URL,
		SandboxURL:    sandboxSrv.URL,
	}, fixedToken("api-token"), prodSrv.Client(), logger.NewNopLogger())

	_, err := client.FetchHistory(context.Background(), vo.EnvironmentProduction, "1000000001")
	require.Error(t, err)
	assert.Len(t, prod.requests, 1)
	assert.Empty(t, sandbox.requests)

	_, err = client.FetchHistory(context.Background(), vo.EnvironmentSandbox, "1000000001")
	require.NoError(t, err)
	assert.Len(t, prod.requests, 1)
	assert.Len(t, sandbox.requests, 1)
}

func TestFetchHistory_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"server error is retryable", http.StatusServiceUnavailable, apperrors.IsHistoryFetchError},
		{"rate limit is retryable", http.StatusTooManyRequests, apperrors.IsHistoryFetchError},
		{"unauthorized is retryable", http.StatusUnauthorized, apperrors.IsHistoryFetchError},
		{"not found is a rejection", http.StatusNotFound, apperrors.IsStoreRejection},
		{"bad request is a rejection", http.StatusBadRequest, apperrors.IsStoreRejection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, srv := newPagedServer(t, false)
			h.forceCode = tt.status

			_, err := newTestHistoryClient(srv, 0).FetchHistory(context.Background(), vo.EnvironmentSandbox, "1000000001")

			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
}

func TestFetchHistory_RequiresOriginalTransactionID(t *testing.T) {
	_, srv := newPagedServer(t, false)

	_, err := newTestHistoryClient(srv, 0).FetchHistory(context.Background(), vo.EnvironmentSandbox, "")

	assert.True(t, apperrors.IsValidationError(err))
}

type decoderFunc func(ctx context.Context, s string) (*TransactionClaims, error)

func (f decoderFunc) VerifyTransaction(ctx context.Context, s string) (*TransactionClaims, error) {
	return f(ctx, s)
}

func TestSelectLatest(t *testing.T) {
	byID := map[string]*TransactionClaims{
		"t1": fixtureTransaction("t1", 1700000000000),
		"t2": fixtureTransaction("t2", 1702600000000),
		"t0": fixtureTransaction("t0", 1690000000000),
	}
	decoder := decoderFunc(func(_ context.Context, s string) (*TransactionClaims, error) {
		if c, ok := byID[s]; ok {
			return c, nil
		}
		return nil, apperrors.NewVerificationError("bad signature")
	})

	t.Run("picks the latest purchase", func(t *testing.T) {
		got, err := SelectLatest(context.Background(), decoder, []string{"t1", "t2", "t0"}, logger.NewNopLogger())
		require.NoError(t, err)
		assert.Equal(t, "t2", got.TransactionID)
	})

	t.Run("skips undecodable entries", func(t *testing.T) {
		got, err := SelectLatest(context.Background(), decoder, []string{"garbage", "t1"}, logger.NewNopLogger())
		require.NoError(t, err)
		assert.Equal(t, "t1", got.TransactionID)
	})

	t.Run("fails when nothing decodes", func(t *testing.T) {
		_, err := SelectLatest(context.Background(), decoder, []string{"garbage"}, logger.NewNopLogger())
		assert.True(t, apperrors.IsVerificationError(err))
	})
}

func TestSelectLatest_WithSignedHistory(t *testing.T) {
	chain := newTestChain(t, chainOptions{})
	signed := []string{
		chain.sign(t, fixtureTransaction("2000000001", 1700000000000)),
		chain.sign(t, fixtureTransaction("2000000002", 1702600000000)),
	}

	got, err := SelectLatest(context.Background(), chain.verifier(t), signed, logger.NewNopLogger())

	require.NoError(t, err)
	assert.Equal(t, "2000000002", got.TransactionID)
}
