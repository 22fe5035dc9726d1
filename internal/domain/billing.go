package domain

import "fmt"

// BillingMode decides when a job type is charged.
type BillingMode string

const (
	// BillingFree never touches the ledger.
	BillingFree BillingMode = "free"
	// BillingPrepaid debits at creation and refunds on terminal failure.
	BillingPrepaid BillingMode = "prepaid"
	// BillingOnSuccess debits inside the completion transaction.
	BillingOnSuccess BillingMode = "on_success"
)

// Valid reports whether m is a known billing mode
func (m BillingMode) Valid() bool {
	switch m {
	case BillingFree, BillingPrepaid, BillingOnSuccess:
		return true
	}
	return false
}

// Price is the cost of one job of a given type.
type Price struct {
	Cost int64       `yaml:"cost"`
	Mode BillingMode `yaml:"mode"`
}

// ChargesAtCreation reports whether the producer must debit before inserting the job.
func (p Price) ChargesAtCreation() bool {
	return p.Mode == BillingPrepaid && p.Cost > 0
}

// ChargesOnSuccess reports whether the worker debits when the job completes.
func (p Price) ChargesOnSuccess() bool {
	return p.Mode == BillingOnSuccess && p.Cost > 0
}

// Pricing maps every job type to its price.
type Pricing map[JobType]Price

// DefaultPricing returns the built-in price table.
func DefaultPricing() Pricing {
	return Pricing{
		JobTypeAnalyze:        {Cost: 0, Mode: BillingFree},
		JobTypeGenerateResume: {Cost: 1, Mode: BillingPrepaid},
		JobTypeGeneratePDF:    {Cost: 1, Mode: BillingPrepaid},
	}
}

// For returns the price of t. Unknown types are free.
func (p Pricing) For(t JobType) Price {
	price, ok := p[t]
	if !ok {
		return Price{Mode: BillingFree}
	}
	return price
}

// Validate checks that every entry is well formed.
func (p Pricing) Validate() error {
	for t, price := range p {
		if !t.Valid() {
			return fmt.Errorf("unknown job type in pricing: %q", t)
		}
		if !price.Mode.Valid() {
			return fmt.Errorf("invalid billing mode %q for %s", price.Mode, t)
		}
		if price.Cost < 0 {
			return fmt.Errorf("negative cost for %s", t)
		}
	}
	return nil
}
