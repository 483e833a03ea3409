package container

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/ethereum-optimism/infra/logstash-acceptor/types"
)

// WaitHealthy polls the container's health status until it reports healthy.
// A "starting" status consumes one attempt; once retries attempts are used the
// wait fails with a retry-exhaustion error, otherwise it sleeps delay and
// polls again. Any other status, or the absence of a health field, fails
// immediately without sleeping.
func WaitHealthy(ctx context.Context, rt Runtime, c Container, retries int, delay time.Duration, logger log.Logger) error {
	attempts := 0
	for {
		status, err := rt.InspectHealth(ctx, c)
		if err != nil {
			return &types.HealthCheckError{Err: err}
		}

		switch status {
		case HealthHealthy:
			logger.Debug("Container is healthy", "attempts", attempts+1)
			return nil
		case HealthStarting:
			attempts++
			if attempts >= retries {
				return &types.HealthCheckError{
					Status:  string(status),
					Retries: attempts,
					Err:     errors.Errorf("container still starting after %d attempts", attempts),
				}
			}
			logger.Debug("Container still starting", "attempt", attempts, "retries", retries)
			if err := sleepCtx(ctx, delay); err != nil {
				return &types.HealthCheckError{Status: string(status), Retries: attempts, Err: err}
			}
		default:
			return &types.HealthCheckError{Status: string(status), Retries: attempts}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
