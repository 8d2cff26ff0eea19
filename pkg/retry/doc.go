// Package retry provides backoff strategies, a cancellable Wait, and a retry
// loop for transient renderer failures such as a profile page that fails to
// load.
//
// Basic usage:
//
//	err := retry.Do(ctx, retry.Config{
//		MaxAttempts: cfg.Harvest.NavigationAttempts,
//		Backoff:     &retry.ConstantBackoff{Delay: cfg.Harvest.RetryDelay},
//		Logger:      log,
//	}, func(ctx context.Context, attempt int) error {
//		return session.Navigate(ctx, url, opts)
//	})
//
// Wait is also the scheduler's sleep between runs: it returns early with the
// context error when the process is shutting down.
package retry
