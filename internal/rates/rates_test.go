package rates

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type stubSource struct {
	price decimal.Decimal
	err   error
	calls int
}

func (s *stubSource) GetCryptoPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	s.calls++
	if s.err != nil {
		return decimal.Zero, s.err
	}
	return s.price, nil
}

func TestCachePassThroughWithoutRedis(t *testing.T) {
	ctx := context.Background()

	source := &stubSource{price: decimal.New(65000, 0)}
	cache := NewCache(source, nil, time.Minute)

	for i := 0; i < 3; i++ {
		price, err := cache.GetCryptoPrice(ctx, "BTC")
		if err != nil {
			t.Fatalf("unexpected error : %s", err)
		}
		if !price.Equal(source.price) {
			t.Fatalf("price = %s, want %s", price.String(), source.price.String())
		}
	}

	// Without redis every call goes to the source.
	if source.calls != 3 {
		t.Fatalf("source calls = %d, want 3", source.calls)
	}
}

func TestCacheSourceError(t *testing.T) {
	ctx := context.Background()

	source := &stubSource{err: errors.New("oracle down")}
	cache := NewCache(source, nil, time.Minute)

	if _, err := cache.GetCryptoPrice(ctx, "BTC"); err == nil {
		t.Fatalf("expected error from source")
	}
}
