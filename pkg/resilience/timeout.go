// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jllopis/ad4mlang/pkg/errors"
)

// WithTimeout runs fn with a context bounded by d. A zero d runs fn with
// ctx unchanged. When the deadline is hit the error is reported as a
// recoverable TIMEOUT.
func WithTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := fn(ctx)
	if err != nil && stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.New(errors.CodeTimeout, "operation exceeded timeout", err).
			WithContext("timeout", d.String()).
			WithRecoverable(true)
	}
	return err
}
