// Package executor dispatches multi-leg orders and gates repeated signals.
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"golang.org/x/sync/errgroup"
)

// OrderPlacer submits a single order.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderAck, error)
}

// LegError reports which legs of a multi-leg dispatch failed.
type LegError struct {
	Failed []int
	Errs   []error
}

func (e *LegError) Error() string {
	return fmt.Sprintf("executor: %d leg(s) failed: %v", len(e.Failed), errors.Join(e.Errs...))
}

func (e *LegError) Unwrap() []error {
	return e.Errs
}

// PlaceLegs sends every leg concurrently and waits for all of them. A
// failing leg does not cancel the others. Acks are returned in leg order;
// a failed leg leaves a zero ack in its slot. The error is a *LegError when
// any leg failed.
func PlaceLegs(ctx context.Context, placer OrderPlacer, legs []domain.OrderRequest) ([]domain.OrderAck, error) {
	acks := make([]domain.OrderAck, len(legs))
	errs := make([]error, len(legs))

	var g errgroup.Group
	for i, leg := range legs {
		g.Go(func() error {
			ack, err := placer.PlaceOrder(ctx, leg)
			acks[i] = ack
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	var legErr *LegError
	for i, err := range errs {
		if err == nil {
			continue
		}
		if legErr == nil {
			legErr = &LegError{}
		}
		legErr.Failed = append(legErr.Failed, i)
		legErr.Errs = append(legErr.Errs, err)
	}
	if legErr != nil {
		return acks, legErr
	}
	return acks, nil
}
