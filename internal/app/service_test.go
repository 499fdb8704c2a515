package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/encorefm/encore/internal/adapters/store"
	"github.com/encorefm/encore/internal/adapters/store/memory"
	service "github.com/encorefm/encore/internal/app"
	"github.com/encorefm/encore/internal/domain/model"
	"github.com/encorefm/encore/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

// failingBidStore wraps a real store but refuses RecordBid, standing in
// for a backend that dies between the debit and the aggregate write.
type failingBidStore struct {
	store.Store
	bidErr error
}

func (f *failingBidStore) RecordBid(ctx context.Context, req store.BidRequest) (store.BidOutcome, error) {
	return store.BidOutcome{}, f.bidErr
}

func startService(t *testing.T, opts ...service.Option) *service.Service {
	t.Helper()
	svc := service.New(append([]service.Option{
		service.WithReconcileInterval(0),
	}, opts...)...)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc
}

func TestServicePlaceBid(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service with a funded account", t, func() {
		svc := startService(t)

		_, err := svc.Credit(ctx, store.CreditRequest{AccountID: "u1", Amount: 50})
		So(err, ShouldBeNil)

		Convey("When the account bids 20 on a song", func() {
			result, err := svc.PlaceBid(ctx, service.PlaceBidRequest{
				AccountID: "u1",
				EventID:   "ev1",
				Title:     "Bohemian Rhapsody",
				Artist:    "Queen",
				Amount:    20,
			})

			Convey("Then the balance drops and the song accumulates the bid", func() {
				So(err, ShouldBeNil)
				So(result.Balance.Tokens, ShouldEqual, 30)
				So(result.TotalTokens, ShouldEqual, 20)
				So(result.BidderCount, ShouldEqual, 1)
				So(result.Duplicate, ShouldBeFalse)
				So(result.Simulated, ShouldBeTrue)
			})

			Convey("And a second bidder on the same song grows the aggregate", func() {
				_, err := svc.Credit(ctx, store.CreditRequest{AccountID: "u2", Amount: 40})
				So(err, ShouldBeNil)

				second, err := svc.PlaceBid(ctx, service.PlaceBidRequest{
					AccountID: "u2",
					EventID:   "ev1",
					Title:     "bohemian rhapsody",
					Artist:    "QUEEN",
					Amount:    15,
				})
				So(err, ShouldBeNil)
				So(second.SongID, ShouldEqual, result.SongID)
				So(second.TotalTokens, ShouldEqual, 35)
				So(second.BidderCount, ShouldEqual, 2)
			})
		})

		Convey("When the account bids more than it holds", func() {
			_, err := svc.PlaceBid(ctx, service.PlaceBidRequest{
				AccountID: "u1",
				EventID:   "ev1",
				Title:     "Song",
				Artist:    "Artist",
				Amount:    60,
			})

			Convey("Then the bid fails with insufficient funds and nothing moved", func() {
				So(errors.Is(err, store.ErrInsufficientFunds), ShouldBeTrue)

				balance, err := svc.GetBalance(ctx, "u1")
				So(err, ShouldBeNil)
				So(balance, ShouldEqual, 50)

				entries, err := svc.Leaderboard(ctx, "ev1", 0)
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 0)
			})
		})

		Convey("When the bid input is invalid", func() {
			cases := []service.PlaceBidRequest{
				{AccountID: "", EventID: "ev1", Title: "Song", Amount: 5},
				{AccountID: "u1", EventID: "", Title: "Song", Amount: 5},
				{AccountID: "u1", EventID: "ev1", Title: "  ", Amount: 5},
				{AccountID: "u1", EventID: "ev1", Title: "Song", Amount: 0},
				{AccountID: "u1", EventID: "ev1", Title: "Song", Amount: -5},
			}

			Convey("Then each is rejected before any tokens move", func() {
				for _, req := range cases {
					_, err := svc.PlaceBid(ctx, req)
					So(err, ShouldNotBeNil)
				}
				balance, err := svc.GetBalance(ctx, "u1")
				So(err, ShouldBeNil)
				So(balance, ShouldEqual, 50)
			})
		})

		Convey("When the same request ID is submitted twice", func() {
			req := service.PlaceBidRequest{
				AccountID: "u1",
				EventID:   "ev1",
				Title:     "Song",
				Artist:    "Artist",
				Amount:    10,
				RequestID: "req-42",
			}

			first, err := svc.PlaceBid(ctx, req)
			So(err, ShouldBeNil)
			So(first.Duplicate, ShouldBeFalse)

			second, err := svc.PlaceBid(ctx, req)

			Convey("Then the retry is acknowledged without a second debit", func() {
				So(err, ShouldBeNil)
				So(second.Duplicate, ShouldBeTrue)
				So(second.Balance.Tokens, ShouldEqual, 40)

				entries, err := svc.Leaderboard(ctx, "ev1", 0)
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 1)
				So(entries[0].TotalTokens, ShouldEqual, 10)
			})
		})
	})
}

func TestServiceCompensation(t *testing.T) {
	ctx := context.Background()

	Convey("Given a store that fails after the debit", t, func() {
		backing := memory.New()
		svc := startService(t, service.WithStore(&failingBidStore{
			Store:  backing,
			bidErr: errors.New("backend lost"),
		}))

		_, err := svc.Credit(ctx, store.CreditRequest{AccountID: "u1", Amount: 50})
		So(err, ShouldBeNil)

		Convey("When a bid is placed", func() {
			_, err := svc.PlaceBid(ctx, service.PlaceBidRequest{
				AccountID: "u1",
				EventID:   "ev1",
				Title:     "Song",
				Artist:    "Artist",
				Amount:    20,
				RequestID: "req-1",
			})

			Convey("Then the error surfaces and a compensating credit restored the balance", func() {
				So(err, ShouldNotBeNil)

				balance, err := svc.GetBalance(ctx, "u1")
				So(err, ShouldBeNil)
				So(balance, ShouldEqual, 50)

				txs, err := svc.Transactions(ctx, "u1")
				So(err, ShouldBeNil)
				So(len(txs), ShouldEqual, 3)
				So(txs[1].Reason, ShouldEqual, model.ReasonBid)
				So(txs[2].Reason, ShouldEqual, model.ReasonRefund)
				So(txs[1].Delta+txs[2].Delta, ShouldEqual, 0)

				rec, err := svc.Reconcile(ctx, "u1")
				So(err, ShouldBeNil)
				So(rec.Consistent(), ShouldBeTrue)
			})

			Convey("And the request ID is free for a retry", func() {
				So(err, ShouldNotBeNil)

				retry, err := svc.PlaceBid(ctx, service.PlaceBidRequest{
					AccountID: "u1",
					EventID:   "ev1",
					Title:     "Song",
					Artist:    "Artist",
					Amount:    20,
					RequestID: "req-1",
				})
				// Still failing backend, but the retry is attempted rather
				// than swallowed as a duplicate.
				So(err, ShouldNotBeNil)
				So(retry.Duplicate, ShouldBeFalse)
			})
		})
	})
}

func TestServiceLeaderboard(t *testing.T) {
	ctx := context.Background()

	Convey("Given bids on several songs", t, func() {
		svc := startService(t, service.WithMaxLeaderboardLimit(2))

		for _, accountID := range []string{"u1", "u2"} {
			_, err := svc.Credit(ctx, store.CreditRequest{AccountID: accountID, Amount: 100})
			So(err, ShouldBeNil)
		}

		place := func(accountID, title string, amount int64) {
			_, err := svc.PlaceBid(ctx, service.PlaceBidRequest{
				AccountID: accountID,
				EventID:   "ev1",
				Title:     title,
				Artist:    "Artist",
				Amount:    amount,
			})
			So(err, ShouldBeNil)
		}

		place("u1", "Alpha", 10)
		place("u2", "Beta", 40)
		place("u1", "Gamma", 25)
		place("u2", "Alpha", 5)

		Convey("When the leaderboard is read", func() {
			entries, err := svc.Leaderboard(ctx, "ev1", 0)

			Convey("Then songs rank by total tokens descending", func() {
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 3)
				So(entries[0].Title, ShouldEqual, "Beta")
				So(entries[0].TotalTokens, ShouldEqual, 40)
				So(entries[1].Title, ShouldEqual, "Gamma")
				So(entries[2].Title, ShouldEqual, "Alpha")
				So(entries[2].TotalTokens, ShouldEqual, 15)
				So(entries[2].BidderCount, ShouldEqual, 2)
			})
		})

		Convey("When the requested limit exceeds the configured cap", func() {
			entries, err := svc.Leaderboard(ctx, "ev1", 50)

			Convey("Then the cap applies", func() {
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 2)
			})
		})

		Convey("When another event's leaderboard is read", func() {
			entries, err := svc.Leaderboard(ctx, "ev2", 0)

			Convey("Then it is empty", func() {
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 0)
			})
		})
	})
}

func TestServiceNotifications(t *testing.T) {
	ctx := context.Background()

	Convey("Given a subscriber on an event", t, func() {
		svc := startService(t)

		_, err := svc.Credit(ctx, store.CreditRequest{AccountID: "u1", Amount: 50})
		So(err, ShouldBeNil)

		sub := svc.Subscribe(ctx, "ev1")
		So(sub, ShouldNotBeNil)
		defer sub.Close()

		Convey("When a bid resolves", func() {
			result, err := svc.PlaceBid(ctx, service.PlaceBidRequest{
				AccountID: "u1",
				EventID:   "ev1",
				Title:     "Imagine",
				Artist:    "John Lennon",
				Amount:    20,
			})
			So(err, ShouldBeNil)

			Convey("Then the delta reaches the subscriber", func() {
				select {
				case delta := <-sub.C:
					So(delta.SongID, ShouldEqual, result.SongID)
					So(delta.Title, ShouldEqual, "Imagine")
					So(delta.TotalTokens, ShouldEqual, 20)
					So(delta.EventID, ShouldEqual, "ev1")
				case <-time.After(time.Second):
					So("timed out waiting for delta", ShouldBeEmpty)
				}
			})
		})

		Convey("When a bid fails", func() {
			_, err := svc.PlaceBid(ctx, service.PlaceBidRequest{
				AccountID: "u1",
				EventID:   "ev1",
				Title:     "Imagine",
				Artist:    "John Lennon",
				Amount:    500,
			})
			So(err, ShouldNotBeNil)

			Convey("Then no delta is published", func() {
				select {
				case delta := <-sub.C:
					So(delta, ShouldBeZeroValue)
				case <-time.After(50 * time.Millisecond):
				}
			})
		})
	})
}

func TestServiceLifecycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new service", t, func() {
		svc := service.New(service.WithReconcileInterval(0))

		Convey("When started twice", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)

			Convey("Then stats report a started simulated engine", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldBeTrue)
				So(stats["simulated"], ShouldBeTrue)
				So(stats["store_mode"], ShouldEqual, "memory")
			})

			svc.Stop()
			svc.Stop()
		})
	})

	Convey("Given an injected sqlite-free store", t, func() {
		backing := memory.New()
		svc := startService(t, service.WithStore(backing))

		Convey("Then the engine uses it", func() {
			So(svc.Store(), ShouldEqual, backing)
			So(svc.Simulated(), ShouldBeTrue)
		})
	})
}

func TestServiceCredit(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service", t, func() {
		svc := startService(t)

		Convey("When crediting without a reason", func() {
			bal, err := svc.Credit(ctx, store.CreditRequest{AccountID: "u1", Amount: 25})

			Convey("Then the purchase reason is assumed", func() {
				So(err, ShouldBeNil)
				So(bal.Tokens, ShouldEqual, 25)

				txs, err := svc.Transactions(ctx, "u1")
				So(err, ShouldBeNil)
				So(len(txs), ShouldEqual, 1)
				So(txs[0].Reason, ShouldEqual, model.ReasonPurchase)
			})
		})

		Convey("When crediting with an unknown reason", func() {
			_, err := svc.Credit(ctx, store.CreditRequest{
				AccountID: "u1",
				Amount:    25,
				Reason:    model.Reason("tip"),
			})

			Convey("Then the credit is rejected", func() {
				So(errors.Is(err, store.ErrInvalidReason), ShouldBeTrue)
			})
		})
	})
}
