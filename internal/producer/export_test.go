package producer

import "context"

// SetBeforeCreate installs a hook that runs after the idempotency pre-check
// and before the create transaction.
func (p *Producer) SetBeforeCreate(fn func(ctx context.Context)) {
	p.beforeCreate = fn
}
