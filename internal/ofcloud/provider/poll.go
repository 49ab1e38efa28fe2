package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// errBootTimeout 轮询次数耗尽
var errBootTimeout = errors.New("resource did not become ready")

// WaitUntil 每隔 interval 调用一次 check，直到返回 true、返回错误或超过 maxAttempts 次
func WaitUntil(ctx context.Context, interval time.Duration, maxAttempts int, check func(ctx context.Context) (bool, error)) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if attempt >= maxAttempts {
			return fmt.Errorf("%w after %d attempts", errBootTimeout, attempt)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// waitActive 包装 WaitUntil，超时归为 BootTimeout，其他错误归为 BootFailure
func waitActive(ctx context.Context, providerID string, interval time.Duration, maxAttempts int, check func(ctx context.Context) (bool, error)) error {
	err := WaitUntil(ctx, interval, maxAttempts, check)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errBootTimeout):
		return newProvisionError(providerID, ProvisionBootTimeout, err)
	default:
		var pe *ProvisionError
		if errors.As(err, &pe) {
			return err
		}
		return newProvisionError(providerID, ProvisionBootFailure, err)
	}
}
