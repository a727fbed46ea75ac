package digest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"dealflow/deal"
	"dealflow/notify"
)

var digestNow = time.Date(2025, time.March, 10, 6, 0, 0, 0, time.UTC)

func TestDigestSuppressedWhenNothingActionable(t *testing.T) {
	users := &fakeUsers{accounts: []notify.Account{{WalletAddress: "0xidle", DigestEnabled: true}}}
	sender := &fakeSender{}
	agg := NewAggregator(users, &fakeDeals{}, &fakeDisputes{}, sender)

	rep, err := agg.Run(context.Background(), digestNow)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Suppressed != 1 || rep.Sent != 0 {
		t.Errorf("report = %+v, want 1 suppressed and 0 sent", rep)
	}
	if len(sender.all()) != 0 {
		t.Errorf("sent = %d notifications, want none", len(sender.all()))
	}
}

func TestDigestDisabledUserIsSkipped(t *testing.T) {
	users := &fakeUsers{accounts: []notify.Account{{WalletAddress: "0xopted-out", DigestEnabled: false}}}
	deals := &fakeDeals{active: []deal.Deal{activeDeal("0xopted-out")}}
	sender := &fakeSender{}
	agg := NewAggregator(users, deals, &fakeDisputes{}, sender)

	rep, err := agg.Run(context.Background(), digestNow)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Sent != 0 || len(sender.all()) != 0 {
		t.Errorf("disabled user still received a digest: %+v", rep)
	}
}

func TestDigestComposesStatsAndAlerts(t *testing.T) {
	addr := "0xbuyer"
	deals := &fakeDeals{
		active:    []deal.Deal{activeDeal(addr)},
		unread:    2,
		deadlines: 3,
		events: []deal.TimelineEvent{
			{Reference: "DL-0001", Type: "PAYMENT_RECEIVED", CreatedAt: digestNow.Add(-time.Hour)},
		},
	}
	disputes := &fakeDisputes{active: 1}
	agg := NewAggregator(&fakeUsers{}, deals, disputes, &fakeSender{})

	stats, err := agg.Compose(context.Background(), addr, digestNow)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	if stats.ActiveDeals != 1 || stats.PendingActions != 1 {
		t.Errorf("stats = %+v, want 1 active deal with 1 pending action", stats)
	}
	if stats.UnreadMessages != 2 || stats.UpcomingDeadlines != 3 || stats.ActiveDisputes != 1 {
		t.Errorf("counts = %+v", stats)
	}
	if len(stats.Deals) != 1 || stats.Deals[0].NextAction != "Fund the escrow deposit" {
		t.Errorf("deal summary = %+v", stats.Deals)
	}
	if len(stats.RecentActivity) != 1 || stats.RecentActivity[0].Label != "Payment received" {
		t.Errorf("activity = %+v", stats.RecentActivity)
	}

	want := []string{
		"1 deal(s) requiring your action",
		"3 deadline(s) this week",
		"1 active dispute(s)",
	}
	if len(stats.Alerts) != len(want) {
		t.Fatalf("alerts = %v, want %v", stats.Alerts, want)
	}
	for i := range want {
		if stats.Alerts[i] != want[i] {
			t.Errorf("alert[%d] = %q, want %q", i, stats.Alerts[i], want[i])
		}
	}
}

func TestDigestSendsWhenDeliverable(t *testing.T) {
	addr := "0xbuyer"
	users := &fakeUsers{accounts: []notify.Account{{WalletAddress: addr, Email: "buyer@example.com", FullName: "Buyer", DigestEnabled: true}}}
	deals := &fakeDeals{active: []deal.Deal{activeDeal(addr)}}
	sender := &fakeSender{}
	agg := NewAggregator(users, deals, &fakeDisputes{}, sender)

	rep, err := agg.Run(context.Background(), digestNow)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Sent != 1 {
		t.Fatalf("report = %+v, want 1 sent", rep)
	}

	sent := sender.all()
	if len(sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(sent))
	}
	msg := sent[0]
	if msg.Type != "daily_digest" || msg.Priority != notify.PriorityLow {
		t.Errorf("dispatch = %+v", msg)
	}
	if !strings.Contains(msg.EmailBody, "DL-0001") {
		t.Errorf("email body should list the deal, got %q", msg.EmailBody)
	}
	if !strings.Contains(msg.EmailBody, "Fund the escrow deposit") {
		t.Errorf("email body should carry the next action, got %q", msg.EmailBody)
	}
}

func TestDigestOneUserFailureDoesNotAbortBatch(t *testing.T) {
	users := &fakeUsers{accounts: []notify.Account{
		{WalletAddress: "0xbroken", DigestEnabled: true},
		{WalletAddress: "0xbuyer", DigestEnabled: true},
	}}
	deals := &fakeDeals{
		active:    []deal.Deal{activeDeal("0xbuyer")},
		errorFor:  "0xbroken",
		activeErr: errors.New("store timeout"),
	}
	sender := &fakeSender{}
	agg := NewAggregator(users, deals, &fakeDisputes{}, sender).WithParallelism(1)

	rep, err := agg.Run(context.Background(), digestNow)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Failed != 1 || rep.Sent != 1 {
		t.Errorf("report = %+v, want 1 failed and 1 sent", rep)
	}
}

func TestDigestUnmappedStageCountsAsNoAction(t *testing.T) {
	addr := "0xbuyer"
	odd := activeDeal(addr)
	odd.Stage = deal.Stage("limbo")
	deals := &fakeDeals{active: []deal.Deal{odd}}
	agg := NewAggregator(&fakeUsers{}, deals, &fakeDisputes{}, &fakeSender{})

	stats, err := agg.Compose(context.Background(), addr, digestNow)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if stats.PendingActions != 0 {
		t.Errorf("pending actions = %d, want 0 for unmapped stage", stats.PendingActions)
	}
	if stats.ActiveDeals != 1 {
		t.Errorf("the deal itself still counts as active, got %d", stats.ActiveDeals)
	}
}

func activeDeal(buyer string) deal.Deal {
	return deal.Deal{
		ID:            "deal-1",
		Reference:     "DL-0001",
		Title:         "Widget shipment",
		BuyerAddress:  buyer,
		SellerAddress: "0xseller",
		Stage:         deal.StageAwaitingPayment,
		CreatedAt:     digestNow.Add(-48 * time.Hour),
	}
}

type fakeUsers struct {
	accounts []notify.Account
}

func (f *fakeUsers) ListDigestUsers(ctx context.Context) ([]notify.Account, error) {
	return f.accounts, nil
}

type fakeDeals struct {
	active    []deal.Deal
	unread    int
	deadlines int
	events    []deal.TimelineEvent
	errorFor  string
	activeErr error
}

func (f *fakeDeals) ActiveForUser(ctx context.Context, addr string) ([]deal.Deal, error) {
	if f.errorFor != "" && addr == f.errorFor {
		return nil, f.activeErr
	}
	var out []deal.Deal
	for _, d := range f.active {
		if d.BuyerAddress == addr || d.SellerAddress == addr {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDeals) UnreadMessageCount(ctx context.Context, addr string) (int, error) {
	return f.unread, nil
}

func (f *fakeDeals) UpcomingMilestoneCount(ctx context.Context, addr string, now time.Time, window time.Duration) (int, error) {
	return f.deadlines, nil
}

func (f *fakeDeals) RecentTimelineEvents(ctx context.Context, addr string, since time.Time, limit int) ([]deal.TimelineEvent, error) {
	return f.events, nil
}

type fakeDisputes struct {
	active int
}

func (f *fakeDisputes) ActiveCountForUser(ctx context.Context, addr string) (int, error) {
	return f.active, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []notify.Dispatch
	err  error
}

func (f *fakeSender) Send(ctx context.Context, msg notify.Dispatch) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) all() []notify.Dispatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notify.Dispatch(nil), f.sent...)
}
