package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/campaign-hub/backend/internal/channels"
	"github.com/campaign-hub/backend/internal/config"
	"github.com/campaign-hub/backend/internal/events"
	"github.com/campaign-hub/backend/internal/models"
	"github.com/campaign-hub/backend/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// --- usage ---

type usageKey struct {
	org     uuid.UUID
	channel models.Channel
	period  time.Time
}

type fakeUsageStore struct {
	mu        sync.Mutex
	limits    map[uuid.UUID]*models.PlanLimits
	usage     map[usageKey]*models.MessageUsage
	receipts  map[string]*models.DeliveryReceipt
	planCalls int
}

func newFakeUsageStore() *fakeUsageStore {
	return &fakeUsageStore{
		limits:   map[uuid.UUID]*models.PlanLimits{},
		usage:    map[usageKey]*models.MessageUsage{},
		receipts: map[string]*models.DeliveryReceipt{},
	}
}

func (s *fakeUsageStore) row(org uuid.UUID, ch models.Channel, period time.Time) *models.MessageUsage {
	k := usageKey{org, ch, period}
	u, ok := s.usage[k]
	if !ok {
		u = &models.MessageUsage{OrganisationID: org, Channel: ch, PeriodStart: period}
		s.usage[k] = u
	}
	return u
}

func (s *fakeUsageStore) decrementReserved(org uuid.UUID, ch models.Channel, period time.Time) {
	u := s.row(org, ch, period)
	if u.Reserved > 0 {
		u.Reserved--
	}
}

func (s *fakeUsageStore) snapshot(org uuid.UUID, ch models.Channel) models.MessageUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.row(org, ch, models.PeriodStart(time.Now()))
}

func (s *fakeUsageStore) PlanLimits(_ context.Context, orgID uuid.UUID) (*models.PlanLimits, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.planCalls++
	l, ok := s.limits[orgID]
	if !ok {
		return nil, models.ErrNoActiveSubscription
	}
	cp := *l
	return &cp, nil
}

func (s *fakeUsageStore) GetUsage(_ context.Context, orgID uuid.UUID, ch models.Channel, period time.Time) (*models.MessageUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.row(orgID, ch, period)
	return &cp, nil
}

func (s *fakeUsageStore) IncrementUsage(_ context.Context, orgID uuid.UUID, ch models.Channel, period time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.row(orgID, ch, period).Count++
	return nil
}

func (s *fakeUsageStore) Reserve(_ context.Context, orgID uuid.UUID, ch models.Channel, period time.Time, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.row(orgID, ch, period)
	if limit > 0 && u.Count+u.Reserved >= limit {
		return false, nil
	}
	u.Reserved++
	return true, nil
}

func (s *fakeUsageStore) CancelReservation(_ context.Context, orgID uuid.UUID, ch models.Channel, period time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decrementReserved(orgID, ch, period)
	return nil
}

func (s *fakeUsageStore) RecordSubmission(_ context.Context, rc *models.DeliveryReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.receipts[rc.ProviderMessageID]; ok {
		s.decrementReserved(rc.OrganisationID, rc.Channel, rc.PeriodStart)
		return nil
	}
	cp := *rc
	cp.Status = models.ReceiptStatusReserved
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.receipts[rc.ProviderMessageID] = &cp
	return nil
}

func (s *fakeUsageStore) ConfirmDelivery(_ context.Context, id string, orgID uuid.UUID, ch models.Channel, providerStatus string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := providerStatus
	if rc, ok := s.receipts[id]; ok {
		rc.LastProviderStatus = &status
		switch rc.Status {
		case models.ReceiptStatusReserved:
			s.decrementReserved(rc.OrganisationID, rc.Channel, rc.PeriodStart)
		case models.ReceiptStatusExpired:
		default:
			return false, nil
		}
		rc.Status = models.ReceiptStatusConfirmed
		s.row(rc.OrganisationID, rc.Channel, models.PeriodStart(now)).Count++
		return true, nil
	}
	s.receipts[id] = &models.DeliveryReceipt{
		ProviderMessageID:  id,
		OrganisationID:     orgID,
		Channel:            ch,
		PeriodStart:        models.PeriodStart(now),
		Status:             models.ReceiptStatusConfirmed,
		LastProviderStatus: &status,
		CreatedAt:          now,
	}
	s.row(orgID, ch, models.PeriodStart(now)).Count++
	return true, nil
}

func (s *fakeUsageStore) ReleaseDelivery(_ context.Context, id string, providerStatus string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc, ok := s.receipts[id]
	if !ok || rc.Status != models.ReceiptStatusReserved {
		return false, nil
	}
	rc.Status = models.ReceiptStatusReleased
	rc.LastProviderStatus = &providerStatus
	s.decrementReserved(rc.OrganisationID, rc.Channel, rc.PeriodStart)
	return true, nil
}

func (s *fakeUsageStore) ExpireReservations(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, rc := range s.receipts {
		if rc.Status == models.ReceiptStatusReserved && rc.CreatedAt.Before(cutoff) {
			rc.Status = models.ReceiptStatusExpired
			s.decrementReserved(rc.OrganisationID, rc.Channel, rc.PeriodStart)
			n++
		}
	}
	return n, nil
}

func (s *fakeUsageStore) ListUsage(_ context.Context, orgID uuid.UUID, period time.Time) ([]models.MessageUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.MessageUsage
	for k, u := range s.usage {
		if k.org == orgID && k.period.Equal(period) {
			out = append(out, *u)
		}
	}
	return out, nil
}

// --- posts ---

type fakePostStore struct {
	mu               sync.Mutex
	posts            map[uuid.UUID]*models.CampaignPost
	deletedCampaigns map[uuid.UUID]bool
	dueErr           error
}

func newFakePostStore() *fakePostStore {
	return &fakePostStore{posts: map[uuid.UUID]*models.CampaignPost{}, deletedCampaigns: map[uuid.UUID]bool{}}
}

func (s *fakePostStore) get(id uuid.UUID) models.CampaignPost {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.posts[id]
}

func (s *fakePostStore) GetByID(_ context.Context, id uuid.UUID) (*models.CampaignPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakePostStore) List(_ context.Context, f repositories.PostFilter) ([]models.CampaignPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CampaignPost
	for _, p := range s.posts {
		if f.OrganisationID != nil && p.OrganisationID != *f.OrganisationID {
			continue
		}
		if f.State != nil && p.State != *f.State {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *fakePostStore) ListDue(_ context.Context, now time.Time, limit int) ([]models.CampaignPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dueErr != nil {
		return nil, s.dueErr
	}
	var out []models.CampaignPost
	for _, p := range s.posts {
		if p.IsDue(now) && !s.deletedCampaigns[p.CampaignID] && len(out) < limit {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *fakePostStore) Claim(_ context.Context, id uuid.UUID, now time.Time) (*models.CampaignPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok || p.State != models.PostStatePending || s.deletedCampaigns[p.CampaignID] {
		return nil, models.ErrClaimConflict
	}
	p.State = models.PostStateClaimed
	p.Attempts++
	claimedAt := now
	p.ClaimedAt = &claimedAt
	cp := *p
	return &cp, nil
}

// owned returns the post when it is still claimed at claimedAt.
func (s *fakePostStore) owned(id uuid.UUID, claimedAt time.Time, op string) (*models.CampaignPost, error) {
	p := s.posts[id]
	if p.State != models.PostStateClaimed || p.ClaimedAt == nil || !p.ClaimedAt.Equal(claimedAt) {
		return nil, fmt.Errorf("%s post %s: %w", op, id, models.ErrClaimConflict)
	}
	return p, nil
}

func (s *fakePostStore) MarkSent(_ context.Context, id uuid.UUID, claimedAt, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.owned(id, claimedAt, "mark sent")
	if err != nil {
		return err
	}
	p.State = models.PostStateSent
	p.SentAt = &sentAt
	p.ClaimedAt, p.NextAttemptAt, p.LastError = nil, nil, nil
	return nil
}

func (s *fakePostStore) Release(_ context.Context, id uuid.UUID, claimedAt, next time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.owned(id, claimedAt, "release")
	if err != nil {
		return err
	}
	p.State = models.PostStatePending
	p.ClaimedAt = nil
	p.NextAttemptAt = &next
	p.LastError = &lastError
	return nil
}

func (s *fakePostStore) MarkFailed(_ context.Context, id uuid.UUID, claimedAt time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.owned(id, claimedAt, "mark failed")
	if err != nil {
		return err
	}
	p.State = models.PostStateFailed
	p.ClaimedAt, p.NextAttemptAt = nil, nil
	p.LastError = &lastError
	return nil
}

func (s *fakePostStore) ReleaseStaleClaims(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, p := range s.posts {
		if p.State == models.PostStateClaimed && p.ClaimedAt != nil && p.ClaimedAt.Before(cutoff) {
			p.State = models.PostStatePending
			p.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

func (s *fakePostStore) Requeue(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok || p.State != models.PostStateFailed {
		return models.ErrNotFound
	}
	p.State = models.PostStatePending
	p.Attempts = 0
	p.NextAttemptAt, p.LastError = nil, nil
	return nil
}

// --- recipients, credentials, transactions ---

type fakeRecipientStore struct {
	byCampaign map[uuid.UUID][]models.Contact
}

func (s *fakeRecipientStore) Recipients(_ context.Context, campaignID uuid.UUID, ids []uuid.UUID) ([]models.Contact, error) {
	all := s.byCampaign[campaignID]
	if len(ids) == 0 {
		return all, nil
	}
	want := map[uuid.UUID]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []models.Contact
	for _, c := range all {
		if want[c.ID] {
			out = append(out, c)
		}
	}
	return out, nil
}

type credKey struct {
	org     uuid.UUID
	channel models.Channel
}

type fakeCredentialStore struct {
	creds map[credKey]*models.ChannelCredential
}

func (s *fakeCredentialStore) Get(_ context.Context, orgID uuid.UUID, ch models.Channel) (*models.ChannelCredential, error) {
	c, ok := s.creds[credKey{orgID, ch}]
	if !ok {
		return nil, models.ErrCredentialNotFound
	}
	return c, nil
}

type fakeTransactionStore struct {
	mu  sync.Mutex
	txs []models.PostTransaction
}

func (s *fakeTransactionStore) Create(_ context.Context, t *models.PostTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.txs {
		if existing.PostID == t.PostID {
			return nil
		}
	}
	cp := *t
	cp.ID = uuid.New()
	s.txs = append(s.txs, cp)
	return nil
}

func (s *fakeTransactionStore) ListByCampaign(_ context.Context, orgID, campaignID uuid.UUID) ([]models.PostTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PostTransaction
	for _, t := range s.txs {
		if t.OrganisationID == orgID && t.CampaignID == campaignID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeTransactionStore) all() []models.PostTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PostTransaction(nil), s.txs...)
}

// --- notifications, audit, events ---

type fakeNotificationStore struct {
	mu    sync.Mutex
	items []models.Notification
}

func (s *fakeNotificationStore) Create(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.CreatedAt = time.Now()
	s.items = append(s.items, *n)
	return nil
}

func (s *fakeNotificationStore) List(_ context.Context, orgID uuid.UUID, _, _ int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.items {
		if n.OrganisationID == orgID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *fakeNotificationStore) forPost(postID uuid.UUID) []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.items {
		if n.PostID != nil && *n.PostID == postID {
			out = append(out, n)
		}
	}
	return out
}

type fakeAuditStore struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (s *fakeAuditStore) Log(_ context.Context, entry models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *fakeAuditStore) PostHistory(_ context.Context, orgID, postID uuid.UUID, _ int) ([]models.AuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AuditLog
	for _, e := range s.entries {
		if e.OrganisationID != nil && *e.OrganisationID == orgID && e.EntityID != nil && *e.EntityID == postID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *fakePublisher) Publish(_ context.Context, _ string, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

// --- adapters ---

type scriptedAdapter struct {
	channel  models.Channel
	provider string
	delay    time.Duration
	failFor  map[string]error
	failures []error

	mu          sync.Mutex
	calls       int
	inflight    int
	maxInflight int
	targets     []channels.Target
}

func newScriptedAdapter(ch models.Channel) *scriptedAdapter {
	return &scriptedAdapter{channel: ch, provider: "fake-" + string(ch), failFor: map[string]error{}}
}

func (a *scriptedAdapter) Channel() models.Channel { return a.channel }
func (a *scriptedAdapter) Provider() string        { return a.provider }

func (a *scriptedAdapter) Send(ctx context.Context, _ channels.Content, target channels.Target, _ channels.Credential) (*channels.Result, error) {
	a.mu.Lock()
	a.calls++
	n := a.calls
	a.inflight++
	if a.inflight > a.maxInflight {
		a.maxInflight = a.inflight
	}
	a.targets = append(a.targets, target)
	var seqErr error
	if len(a.failures) > 0 {
		seqErr, a.failures = a.failures[0], a.failures[1:]
	}
	addrErr := a.failFor[target.Address]
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.inflight--
		a.mu.Unlock()
	}()

	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if seqErr != nil {
		return nil, seqErr
	}
	if addrErr != nil {
		return nil, addrErr
	}
	return &channels.Result{ExternalID: fmt.Sprintf("%s-%d", a.provider, n), Provider: a.provider}, nil
}

func (a *scriptedAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func extError(kind channels.ErrorKind) *channels.Error {
	return &channels.Error{Kind: kind, Provider: "fake", Err: fmt.Errorf("provider said %s", kind)}
}

// --- harness ---

func testConfig() *config.Config {
	return &config.Config{
		DispatchBatchSize:       100,
		DispatchWorkers:         4,
		DispatchTickTimeout:     time.Minute,
		DispatchClaimStaleAfter: 10 * time.Minute,
		DispatchMaxAttempts:     3,
		DispatchRetryBase:       5 * time.Minute,
		DispatchRetryMax:        time.Hour,
		FanoutConcurrency:       4,
		SendTimeout:             time.Second,
		SendRetries:             1,
		QuotaEnforce:            true,
		QuotaReservationTTL:     24 * time.Hour,
	}
}

type harness struct {
	org      uuid.UUID
	campaign uuid.UUID

	posts         *fakePostStore
	recipients    *fakeRecipientStore
	credentials   *fakeCredentialStore
	transactions  *fakeTransactionStore
	notifications *fakeNotificationStore
	audit         *fakeAuditStore
	publisher     *fakePublisher
	usage         *fakeUsageStore

	quota      *QuotaGuard
	fanout     *Fanout
	dispatcher *Dispatcher
	scheduler  *Scheduler
	webhook    *DeliveryWebhookService
}

func newHarness(t *testing.T, cfg *config.Config, adapters ...channels.Adapter) *harness {
	t.Helper()
	log := zap.NewNop()
	h := &harness{
		org:           uuid.New(),
		campaign:      uuid.New(),
		posts:         newFakePostStore(),
		recipients:    &fakeRecipientStore{byCampaign: map[uuid.UUID][]models.Contact{}},
		credentials:   &fakeCredentialStore{creds: map[credKey]*models.ChannelCredential{}},
		transactions:  &fakeTransactionStore{},
		notifications: &fakeNotificationStore{},
		audit:         &fakeAuditStore{},
		publisher:     &fakePublisher{},
		usage:         newFakeUsageStore(),
	}

	h.quota = NewQuotaGuard(h.usage, nil, cfg, log)
	h.fanout = NewFanout(h.quota, cfg, log)
	h.fanout.backoff = func(int) time.Duration { return time.Millisecond }
	recorder := NewOutcomeRecorder(h.notifications, h.audit, h.publisher, log)
	h.dispatcher = NewDispatcher(h.posts, h.recipients, h.credentials, h.transactions,
		channels.NewRegistry(adapters...), h.fanout, recorder, cfg, log)
	h.scheduler = NewScheduler(h.posts, h.dispatcher, h.quota, cfg, log)
	h.webhook = NewDeliveryWebhookService(h.quota, log)
	return h
}

func (h *harness) addPost(ch models.Channel, mutate ...func(*models.CampaignPost)) *models.CampaignPost {
	scheduled := time.Now().Add(-time.Minute)
	subject := "Autumn sale"
	p := &models.CampaignPost{
		ID:             uuid.New(),
		CampaignID:     h.campaign,
		OrganisationID: h.org,
		Channel:        ch,
		Subject:        &subject,
		Text:           "Everything 20% off this week",
		MediaURLs:      []string{"https://cdn.example/banner.png"},
		ScheduledAt:    &scheduled,
		State:          models.PostStatePending,
		CreatedAt:      time.Now(),
	}
	for _, m := range mutate {
		m(p)
	}
	h.posts.mu.Lock()
	h.posts.posts[p.ID] = p
	h.posts.mu.Unlock()
	return p
}

func (h *harness) addContacts(n int, mutate func(i int, c *models.Contact)) []models.Contact {
	out := make([]models.Contact, 0, n)
	for i := 0; i < n; i++ {
		email := fmt.Sprintf("user%d@example.com", i)
		mobile := fmt.Sprintf("+1201555%04d", i)
		c := models.Contact{ID: uuid.New(), OrganisationID: h.org, Email: &email, Mobile: &mobile}
		if mutate != nil {
			mutate(i, &c)
		}
		out = append(out, c)
	}
	h.recipients.byCampaign[h.campaign] = append(h.recipients.byCampaign[h.campaign], out...)
	return out
}

func (h *harness) connect(ch models.Channel, accountID string) {
	h.credentials.creds[credKey{h.org, ch}] = &models.ChannelCredential{
		OrganisationID: h.org,
		Channel:        ch,
		AccountID:      accountID,
		AccessToken:    "token-" + accountID,
	}
}

func (h *harness) setPlan(smsLimit, whatsAppLimit int) {
	h.usage.mu.Lock()
	defer h.usage.mu.Unlock()
	h.usage.limits[h.org] = &models.PlanLimits{PlanID: uuid.New(), PlanName: "Growth", SMSLimit: smsLimit, WhatsAppLimit: whatsAppLimit}
}
