package service

import "context"

// StoreTx provides a transactional boundary around a request mutation and its
// history row. The postgres wiring passes pkg/platform/tx.Runner; the
// in-memory stores need no boundary and use the no-op.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type noopTx struct{}

func (noopTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
