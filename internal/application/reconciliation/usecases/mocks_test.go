package usecases

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/storesync/storesync/internal/domain/delivery"
	"github.com/storesync/storesync/internal/domain/ledger"
	"github.com/storesync/storesync/internal/domain/plan"
	"github.com/storesync/storesync/internal/domain/subscription"
	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
	"github.com/storesync/storesync/internal/infrastructure/appstore"
	"github.com/storesync/storesync/internal/infrastructure/email"
	"github.com/storesync/storesync/internal/infrastructure/playstore"
	"github.com/storesync/storesync/internal/infrastructure/pubsub"
	apperrors "github.com/storesync/storesync/internal/shared/errors"
	"github.com/storesync/storesync/internal/shared/logger"
)

// memSubscriptionRepository keeps persisted snapshots, so an aggregate
// mutated by a failed Apply never leaks into storage.
type memSubscriptionRepository struct {
	mu      sync.Mutex
	records map[string]subscription.ReconstructParams
	nextID  uint

	// SaveHook runs before every save; returning an error fails the save.
	SaveHook func(sub *subscription.Subscription) error
	saves    int
}

func newMemSubscriptionRepository() *memSubscriptionRepository {
	return &memSubscriptionRepository{records: map[string]subscription.ReconstructParams{}}
}

func subKey(userID uint, env vo.Environment) string {
	return fmt.Sprintf("%s/%d", env, userID)
}

func snapshotOf(s *subscription.Subscription) subscription.ReconstructParams {
	return subscription.ReconstructParams{
		ID:                   s.ID(),
		UserID:               s.UserID(),
		PlanID:               s.PlanID(),
		DeviceType:           s.DeviceType(),
		Environment:          s.Environment(),
		AnchorID:             s.AnchorID(),
		CurrentTransactionID: s.CurrentTransactionID(),
		BilledTransactionID:  s.BilledTransactionID(),
		LastEventKind:        s.LastEventKind(),
		Amount:               s.Amount(),
		Currency:             s.Currency(),
		Status:               s.Status(),
		CurrentPeriodStart:   s.CurrentPeriodStart(),
		CurrentPeriodEnd:     s.CurrentPeriodEnd(),
		RevokedAt:            s.RevokedAt(),
		Version:              s.Version(),
		CreatedAt:            s.CreatedAt(),
		UpdatedAt:            s.UpdatedAt(),
	}
}

func (m *memSubscriptionRepository) load(p subscription.ReconstructParams) *subscription.Subscription {
	sub, err := subscription.ReconstructSubscription(p)
	if err != nil {
		panic(err)
	}
	return sub
}

func (m *memSubscriptionRepository) Get(_ context.Context, userID uint, env vo.Environment) (*subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.records[subKey(userID, env)]
	if !ok {
		return nil, nil
	}
	return m.load(p), nil
}

func (m *memSubscriptionRepository) FindByAnchor(_ context.Context, platform vo.DeviceType, anchorID string, env vo.Environment) (*subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.records {
		if p.DeviceType == platform && p.AnchorID == anchorID && p.Environment == env {
			return m.load(p), nil
		}
	}
	return nil, nil
}

func (m *memSubscriptionRepository) Save(_ context.Context, sub *subscription.Subscription) error {
	if m.SaveHook != nil {
		if err := m.SaveHook(sub); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++

	key := subKey(sub.UserID(), sub.Environment())
	stored, exists := m.records[key]
	if sub.IsNew() {
		if exists {
			return subscription.ErrConcurrentModification
		}
		m.nextID++
		sub.SetID(m.nextID)
		sub.MarkPersisted(1)
	} else {
		if !exists || stored.Version != sub.Version() {
			return subscription.ErrConcurrentModification
		}
		sub.MarkPersisted(sub.Version() + 1)
	}
	snap := snapshotOf(sub)
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	m.records[key] = snap
	return nil
}

func (m *memSubscriptionRepository) ListStale(_ context.Context, cutoff time.Time, limit int) ([]*subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*subscription.Subscription
	for _, p := range m.records {
		if p.Status.IsLive() && p.CurrentPeriodEnd != nil && p.CurrentPeriodEnd.Before(cutoff) {
			out = append(out, m.load(p))
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// put seeds a persisted record.
func (m *memSubscriptionRepository) put(p subscription.ReconstructParams) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	if p.ID == 0 {
		p.ID = m.nextID
	}
	if p.Version == 0 {
		p.Version = 1
	}
	m.records[subKey(p.UserID, p.Environment)] = p
}

type memLedger struct {
	mu       sync.Mutex
	entries  map[string]*ledger.Entry
	refunded map[string]bool
}

func newMemLedger() *memLedger {
	return &memLedger{entries: map[string]*ledger.Entry{}, refunded: map[string]bool{}}
}

func (m *memLedger) Append(_ context.Context, e *ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.TransactionID()]; ok {
		return apperrors.NewDuplicateTransactionError("ledger entry exists", e.TransactionID())
	}
	e.SetID(uint(len(m.entries) + 1))
	m.entries[e.TransactionID()] = e
	if e.IsRefunded() {
		m.refunded[e.TransactionID()] = true
	}
	return nil
}

func (m *memLedger) MarkRefunded(_ context.Context, transactionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[transactionID]; !ok {
		return false, nil
	}
	m.refunded[transactionID] = true
	return true, nil
}

func (m *memLedger) GetByTransactionID(_ context.Context, transactionID string) (*ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[transactionID], nil
}

func (m *memLedger) ListByUser(_ context.Context, userID uint) ([]*ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ledger.Entry
	for _, e := range m.entries {
		if e.UserID() == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memLedger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *memLedger) isRefunded(txID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refunded[txID]
}

type mockDirectory struct {
	mu      sync.Mutex
	tokens  map[string]uint
	users   map[uint]bool
	premium map[uint]bool
}

func newMockDirectory(userIDs ...uint) *mockDirectory {
	d := &mockDirectory{tokens: map[string]uint{}, users: map[uint]bool{}, premium: map[uint]bool{}}
	for _, id := range userIDs {
		d.users[id] = true
	}
	return d
}

func (d *mockDirectory) ResolveAccountToken(_ context.Context, token string) (uint, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tokens[token], nil
}

func (d *mockDirectory) Exists(_ context.Context, userID uint) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.users[userID], nil
}

func (d *mockDirectory) SetPremium(_ context.Context, userID uint, premium bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.users[userID] {
		return apperrors.NewNotFoundError("user not found")
	}
	d.premium[userID] = premium
	return nil
}

func (d *mockDirectory) isPremium(userID uint) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.premium[userID]
}

type mockCatalog struct {
	entries []plan.Entry
}

func (c *mockCatalog) FindByProductID(_ context.Context, platform vo.DeviceType, productID string) (*plan.Entry, error) {
	for i := range c.entries {
		if c.entries[i].ProductID(platform) == productID {
			return &c.entries[i], nil
		}
	}
	return nil, nil
}

func (c *mockCatalog) FindByPlanID(_ context.Context, planID string) (*plan.Entry, error) {
	for i := range c.entries {
		if c.entries[i].PlanID == planID {
			return &c.entries[i], nil
		}
	}
	return nil, nil
}

// passthroughTransactor runs fn without a transaction.
type passthroughTransactor struct{}

func (passthroughTransactor) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memNotificationLog struct {
	mu      sync.Mutex
	records []*delivery.Record
}

func (m *memNotificationLog) Record(_ context.Context, r *delivery.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func (m *memNotificationLog) ListFailed(_ context.Context, _ time.Time, _ int) ([]*delivery.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*delivery.Record
	for _, r := range m.records {
		if r.Outcome == delivery.OutcomeFailed {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memNotificationLog) last() *delivery.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) == 0 {
		return nil
	}
	return m.records[len(m.records)-1]
}

type mockVerifier struct {
	VerifyNotificationFunc func(ctx context.Context, signedPayload string) (*appstore.NotificationClaims, error)
	VerifyTransactionFunc  func(ctx context.Context, signedTransaction string) (*appstore.TransactionClaims, error)
	VerifyRenewalInfoFunc  func(ctx context.Context, signedRenewalInfo string) (*appstore.RenewalInfoClaims, error)
}

func (m *mockVerifier) VerifyNotification(ctx context.Context, signedPayload string) (*appstore.NotificationClaims, error) {
	if m.VerifyNotificationFunc != nil {
		return m.VerifyNotificationFunc(ctx, signedPayload)
	}
	return nil, apperrors.NewVerificationError("not configured")
}

func (m *mockVerifier) VerifyTransaction(ctx context.Context, signedTransaction string) (*appstore.TransactionClaims, error) {
	if m.VerifyTransactionFunc != nil {
		return m.VerifyTransactionFunc(ctx, signedTransaction)
	}
	return nil, apperrors.NewVerificationError("not configured")
}

func (m *mockVerifier) VerifyRenewalInfo(ctx context.Context, signedRenewalInfo string) (*appstore.RenewalInfoClaims, error) {
	if m.VerifyRenewalInfoFunc != nil {
		return m.VerifyRenewalInfoFunc(ctx, signedRenewalInfo)
	}
	return nil, apperrors.NewVerificationError("not configured")
}

// transactionsVerifier decodes "signed" transactions by looking them up.
func transactionsVerifier(txs map[string]*appstore.TransactionClaims) func(context.Context, string) (*appstore.TransactionClaims, error) {
	return func(_ context.Context, s string) (*appstore.TransactionClaims, error) {
		if tx, ok := txs[s]; ok {
			cp := *tx
			return &cp, nil
		}
		return nil, apperrors.NewVerificationError("bad signature")
	}
}

type mockHistory struct {
	FetchHistoryFunc func(ctx context.Context, env vo.Environment, originalTransactionID string) ([]string, error)
	calls            int
}

func (m *mockHistory) FetchHistory(ctx context.Context, env vo.Environment, originalTransactionID string) ([]string, error) {
	m.calls++
	if m.FetchHistoryFunc != nil {
		return m.FetchHistoryFunc(ctx, env, originalTransactionID)
	}
	return nil, nil
}

type mockPurchases struct {
	mu                  sync.Mutex
	Package             string
	GetSubscriptionFunc func(ctx context.Context, subscriptionID, token string) (*playstore.SubscriptionPurchase, error)
	acknowledged        []string
	ackDone             chan struct{}
}

func (m *mockPurchases) PackageName() string { return m.Package }

func (m *mockPurchases) GetSubscription(ctx context.Context, subscriptionID, token string) (*playstore.SubscriptionPurchase, error) {
	if m.GetSubscriptionFunc != nil {
		return m.GetSubscriptionFunc(ctx, subscriptionID, token)
	}
	return nil, apperrors.NewVerificationError("purchase token not found")
}

func (m *mockPurchases) Acknowledge(_ context.Context, _ string, token string) error {
	m.mu.Lock()
	m.acknowledged = append(m.acknowledged, token)
	m.mu.Unlock()
	if m.ackDone != nil {
		m.ackDone <- struct{}{}
	}
	return nil
}

type mockSignatures struct {
	VerifyFunc func(data []byte, signature string) error
}

func (m *mockSignatures) Verify(data []byte, signature string) error {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(data, signature)
	}
	return nil
}

type mockPublisher struct {
	events chan pubsub.SubscriptionChangeEvent
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{events: make(chan pubsub.SubscriptionChangeEvent, 16)}
}

func (m *mockPublisher) Publish(_ context.Context, event pubsub.SubscriptionChangeEvent) error {
	m.events <- event
	return nil
}

type mockAlerter struct {
	alerts chan email.PlanNotFoundAlert
}

func (m *mockAlerter) SendPlanNotFound(_ context.Context, alert email.PlanNotFoundAlert) error {
	m.alerts <- alert
	return nil
}

type mockClaimer struct {
	mu       sync.Mutex
	claimed  map[string]bool
	released []string
}

func newMockClaimer() *mockClaimer {
	return &mockClaimer{claimed: map[string]bool{}}
}

func (m *mockClaimer) Claim(_ context.Context, platform, deliveryID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := platform + ":" + deliveryID
	if m.claimed[key] {
		return false
	}
	m.claimed[key] = true
	return true
}

func (m *mockClaimer) Release(_ context.Context, platform, deliveryID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := platform + ":" + deliveryID
	delete(m.claimed, key)
	m.released = append(m.released, deliveryID)
}

// fixture wires a reconciler over in-memory collaborators.
type fixture struct {
	subs       *memSubscriptionRepository
	ledger     *memLedger
	users      *mockDirectory
	catalog    *mockCatalog
	reconciler *ReconcileEventUseCase
	log        logger.Interface
}

const (
	testUserID       uint = 42
	testPlanID            = "premium_monthly"
	testIOSProductID      = "com.example.premium.monthly"
	testAndroidSKU        = "premium_monthly_android"
)

func newFixture() *fixture {
	log := logger.NewNopLogger()
	f := &fixture{
		subs:   newMemSubscriptionRepository(),
		ledger: newMemLedger(),
		users:  newMockDirectory(testUserID),
		catalog: &mockCatalog{entries: []plan.Entry{{
			PlanID:           testPlanID,
			IOSProductID:     testIOSProductID,
			AndroidProductID: testAndroidSKU,
			DisplayPrice:     999,
			Currency:         "usd",
		}}},
		log: log,
	}
	f.reconciler = NewReconcileEventUseCase(f.subs, NewLedgerWriter(f.ledger, log), f.catalog, f.users, passthroughTransactor{}, log)
	return f
}
