package oracle

import (
	"errors"
	"testing"
	"time"
)

const px = int64(100_000_000) // 1e8

func testPair() *Pair {
	return &Pair{
		Symbol:          "BTC/USD",
		Base:            "BTC",
		Quote:           "USD",
		MinLeverage:     2,
		MaxLeverage:     50,
		FeeBps:          30,
		MaxDeviationBps: 2000,
		FeedID:          "feed-btc",
	}
}

func newBook(t *testing.T) *PairBook {
	t.Helper()
	pb := NewPairBook()
	if err := pb.Create(testPair()); err != nil {
		t.Fatalf("create: %v", err)
	}
	return pb
}

func TestCreateRejectsDuplicatesAndBadLeverage(t *testing.T) {
	pb := newBook(t)

	if err := pb.Create(testPair()); !errors.Is(err, ErrPairExists) {
		t.Errorf("duplicate: got %v", err)
	}

	bad := testPair()
	bad.Symbol = "ETH/USD"
	bad.MinLeverage = 10
	bad.MaxLeverage = 5
	if err := pb.Create(bad); err == nil {
		t.Error("expected error for inverted leverage bounds")
	}
}

func TestFirstPushActivatesPair(t *testing.T) {
	pb := newBook(t)
	now := time.Now()

	activated, err := pb.Push("BTC/USD", 64000*px, now)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if !activated {
		t.Error("first accepted price should activate the pair")
	}

	price, lastUpdate, active, err := pb.Price("BTC/USD")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if price != 64000*px || !active || !lastUpdate.Equal(now) {
		t.Errorf("state: price=%d active=%v lastUpdate=%v", price, active, lastUpdate)
	}

	// Second push on an already-active pair does not re-activate.
	activated, err = pb.Push("BTC/USD", 64100*px, now.Add(time.Second))
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if activated {
		t.Error("already-active pair reported activation")
	}
}

func TestPushDeviationBound(t *testing.T) {
	pb := newBook(t)
	now := time.Now()
	pb.Push("BTC/USD", 100*px, now)

	// 25% move against a 20% bound.
	if _, err := pb.Push("BTC/USD", 125*px, now); !errors.Is(err, ErrDeviationTooHigh) {
		t.Errorf("expected ErrDeviationTooHigh, got %v", err)
	}

	// The same move is accepted through the attested path.
	activated, price, err := pb.ApplyAttested("BTC/USD", AttestedPrice{
		Mantissa:  125,
		Exponent:  0,
		Timestamp: now,
	}, now)
	if err != nil {
		t.Fatalf("attested: %v", err)
	}
	if activated {
		t.Error("attested update on active pair reported activation")
	}
	if price != 125*px {
		t.Errorf("price: got %d, want %d", price, 125*px)
	}

	// The push path now measures deviation from the attested price.
	if _, err := pb.Push("BTC/USD", 120*px, now); err != nil {
		t.Errorf("push within bound of new price: %v", err)
	}
}

func TestPushRejections(t *testing.T) {
	pb := newBook(t)
	now := time.Now()

	if _, err := pb.Push("DOGE/USD", 100*px, now); !errors.Is(err, ErrUnknownPair) {
		t.Errorf("unknown pair: got %v", err)
	}
	if _, err := pb.Push("BTC/USD", 0, now); !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("zero price: got %v", err)
	}
	if _, err := pb.Push("BTC/USD", -5, now); !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("negative price: got %v", err)
	}
}

func TestApplyAttestedStalenessBound(t *testing.T) {
	pb := newBook(t)
	now := time.Now()

	_, _, err := pb.ApplyAttested("BTC/USD", AttestedPrice{
		Mantissa:  64000,
		Exponent:  0,
		Timestamp: now.Add(-PullStalenessBound - time.Second),
	}, now)
	if !errors.Is(err, ErrAttestationStale) {
		t.Errorf("expected ErrAttestationStale, got %v", err)
	}

	// Exactly at the bound is accepted.
	_, _, err = pb.ApplyAttested("BTC/USD", AttestedPrice{
		Mantissa:  64000,
		Exponent:  0,
		Timestamp: now.Add(-PullStalenessBound),
	}, now)
	if err != nil {
		t.Errorf("at the bound: %v", err)
	}
}

func TestApplyAttestedRejectsUnrepresentable(t *testing.T) {
	pb := newBook(t)
	now := time.Now()

	// Exponent pushes the canonical value out of int64 range.
	_, _, err := pb.ApplyAttested("BTC/USD", AttestedPrice{
		Mantissa:  1,
		Exponent:  12,
		Timestamp: now,
	}, now)
	if !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("expected ErrInvalidPrice, got %v", err)
	}
}

func TestLastUpdateNeverMovesBackward(t *testing.T) {
	pb := newBook(t)
	now := time.Now()

	pb.Push("BTC/USD", 100*px, now)
	pb.Push("BTC/USD", 101*px, now.Add(-time.Minute))

	_, lastUpdate, _, _ := pb.Price("BTC/USD")
	if !lastUpdate.Equal(now) {
		t.Errorf("lastUpdate moved backward: %v", lastUpdate)
	}
}

func TestIsStale(t *testing.T) {
	pb := newBook(t)
	now := time.Now()
	bound := 5 * time.Minute

	// Unknown and never-priced pairs are stale.
	if !pb.IsStale("DOGE/USD", now, bound) {
		t.Error("unknown pair should be stale")
	}
	if !pb.IsStale("BTC/USD", now, bound) {
		t.Error("inactive pair should be stale")
	}

	pb.Push("BTC/USD", 100*px, now)
	if pb.IsStale("BTC/USD", now.Add(bound), bound) {
		t.Error("price at the bound should be fresh")
	}
	if !pb.IsStale("BTC/USD", now.Add(bound+time.Second), bound) {
		t.Error("price past the bound should be stale")
	}
}

func TestOpenInterestCounters(t *testing.T) {
	p := testPair()

	p.AddOpenInterest(1, 300)
	p.AddOpenInterest(-1, 200)
	if p.LongOpenInterest != 300 || p.ShortOpenInterest != 200 {
		t.Errorf("counters: long=%d short=%d", p.LongOpenInterest, p.ShortOpenInterest)
	}

	if clamped := p.ReduceOpenInterest(1, 100); clamped {
		t.Error("unexpected clamp")
	}
	if p.LongOpenInterest != 200 {
		t.Errorf("long: got %d", p.LongOpenInterest)
	}

	// Over-reduction clamps at zero rather than going negative.
	if clamped := p.ReduceOpenInterest(-1, 500); !clamped {
		t.Error("expected clamp flag")
	}
	if p.ShortOpenInterest != 0 {
		t.Errorf("short: got %d", p.ShortOpenInterest)
	}
}
