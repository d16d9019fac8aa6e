package throttle

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/mealgrid/mealgrid/internal/config"
)

func newQuotaHolder(t *testing.T) *config.QuotaConfigHolder {
	t.Helper()
	holder, err := config.NewQuotaConfigHolder()
	if err != nil {
		t.Fatalf("failed to create quota holder: %v", err)
	}
	return holder
}

func TestLimiterDisabledWithoutRedis(t *testing.T) {
	limiter, err := NewLimiter(Params{
		Cfg:    config.Config{},
		Log:    zap.NewNop(),
		Quotas: newQuotaHolder(t),
	})
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}

	// With no backend every request passes, far beyond the class quota.
	for i := 0; i < 20; i++ {
		res, err := limiter.Allow(context.Background(), ClassAuth, "10.0.0.1")
		if err != nil {
			t.Fatalf("allow failed: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d denied by disabled limiter", i)
		}
		if res.Limit != 5 {
			t.Errorf("limit = %d, want the auth quota 5", res.Limit)
		}
	}
}

func TestLimiterRequiredInProduction(t *testing.T) {
	_, err := NewLimiter(Params{
		Cfg:    config.Config{Environment: config.EnvProduction},
		Log:    zap.NewNop(),
		Quotas: newQuotaHolder(t),
	})
	if err == nil {
		t.Fatal("expected an error when production runs without redis")
	}
}
