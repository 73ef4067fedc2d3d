package appstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
	"github.com/storesync/storesync/internal/infrastructure/metrics"
	apperrors "github.com/storesync/storesync/internal/shared/errors"
	"github.com/storesync/storesync/internal/shared/logger"
	"github.com/storesync/storesync/internal/shared/utils/logutil"
)

const defaultMaxPages = 100

// TokenSource supplies bearer tokens for the App Store Server API.
type TokenSource interface {
	Token() (string, error)
}

// TransactionDecoder verifies and decodes one signed transaction.
type TransactionDecoder interface {
	VerifyTransaction(ctx context.Context, signedTransaction string) (*TransactionClaims, error)
}

type HistoryClientConfig struct {
	ProductionURL string
	SandboxURL    string
	MaxPages      int
}

// HistoryClient pages through the transaction history of one original
// transaction. Pages are fetched sequentially.
type HistoryClient struct {
	baseURLs   map[vo.Environment]string
	maxPages   int
	tokens     TokenSource
	httpClient *http.Client
	logger     logger.Interface
}

type historyPage struct {
	Revision           string   `json:"revision"`
	HasMore            bool     `json:"hasMore"`
	BundleID           string   `json:"bundleId"`
	Environment        string   `json:"environment"`
	SignedTransactions []string `json:"signedTransactions"`
}

type apiError struct {
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func NewHistoryClient(cfg HistoryClientConfig, tokens TokenSource, httpClient *http.Client, log logger.Interface) *HistoryClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	return &HistoryClient{
		baseURLs: map[vo.Environment]string{
			vo.EnvironmentProduction: strings.TrimRight(cfg.ProductionURL, "/"),
			vo.EnvironmentSandbox:    strings.TrimRight(cfg.SandboxURL, "/"),
		},
		maxPages:   maxPages,
		tokens:     tokens,
		httpClient: httpClient,
		logger:     log,
	}
}

// FetchHistory returns every signed transaction of the lineage, in the order
// the pages delivered them. It stops after the configured page cap.
func (c *HistoryClient) FetchHistory(ctx context.Context, env vo.Environment, originalTransactionID string) ([]string, error) {
	if originalTransactionID == "" {
		return nil, apperrors.NewValidationError("original transaction id is required")
	}
	base, ok := c.baseURLs[env]
	if !ok || base == "" {
		return nil, apperrors.NewInternalError("no App Store API URL for environment", string(env))
	}

	started := time.Now()
	var (
		all      []string
		revision string
		err      error
	)
	defer func() { metrics.ObserveStoreCall("appstore", "history", started, err) }()

	for page := 1; ; page++ {
		if page > c.maxPages {
			c.logger.Warnw("history page cap reached",
				"original_transaction_id", originalTransactionID,
				"pages", c.maxPages,
				"transactions", len(all),
			)
			break
		}

		var p *historyPage
		p, err = c.fetchPage(ctx, base, originalTransactionID, revision)
		if err != nil {
			return nil, fmt.Errorf("fetch history page %d: %w", page, err)
		}
		all = append(all, p.SignedTransactions...)

		if !p.HasMore {
			break
		}
		revision = p.Revision
	}

	c.logger.Debugw("history fetched",
		"original_transaction_id", originalTransactionID,
		"environment", env,
		"transactions", len(all),
	)
	return all, nil
}

func (c *HistoryClient) fetchPage(ctx context.Context, base, originalTransactionID, revision string) (*historyPage, error) {
	endpoint := fmt.Sprintf("%s/inApps/v1/history/%s", base, url.PathEscape(originalTransactionID))
	if revision != "" {
		endpoint += "?revision=" + url.QueryEscape(revision)
	}

	token, err := c.tokens.Token()
	if err != nil {
		return nil, apperrors.NewInternalError("cannot sign App Store API token", err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.NewInternalError("cannot build history request", err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewHistoryFetchError("history request failed", err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, apperrors.NewHistoryFetchError("history response unreadable", err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyAPIError(resp.StatusCode, body)
	}

	var p historyPage
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, apperrors.NewHistoryFetchError("history response is not JSON", logutil.TruncateForLog(string(body), 200))
	}
	return &p, nil
}

// classifyAPIError maps an App Store API failure onto the error taxonomy.
// A 4xx other than 401 and 429 means the lineage does not exist for us.
func classifyAPIError(status int, body []byte) error {
	var ae apiError
	_ = json.Unmarshal(body, &ae)
	detail := fmt.Sprintf("status %d, error %d: %s", status, ae.ErrorCode, ae.ErrorMessage)

	switch {
	case status == http.StatusUnauthorized, status == http.StatusTooManyRequests, status >= 500:
		return apperrors.NewHistoryFetchError("App Store API request failed", detail)
	default:
		return apperrors.NewStoreRejectionError("App Store API rejected the transaction", detail)
	}
}

// SelectLatest decodes every signed transaction and returns the one with
// the latest purchase instant. Undecodable entries are skipped.
func SelectLatest(ctx context.Context, decoder TransactionDecoder, signed []string, log logger.Interface) (*TransactionClaims, error) {
	var latest *TransactionClaims
	for i, s := range signed {
		claims, err := decoder.VerifyTransaction(ctx, s)
		if err != nil {
			log.Warnw("skipping undecodable history transaction", "index", i, "error", err)
			continue
		}
		if latest == nil || claims.PurchaseDate > latest.PurchaseDate {
			latest = claims
		}
	}
	if latest == nil {
		return nil, apperrors.NewVerificationError("no decodable transaction in history", fmt.Sprintf("%d entries", len(signed)))
	}
	return latest, nil
}
