package domain

// InventoryRecord is one row of db_stock. Rows are seeded out of band and only
// ever mutated by a deduction strategy.
type InventoryRecord struct {
	ID          int64
	ProductCode string
	Warehouse   string
	Count       int64
	Version     int64 // optimistic locking
}

// Outcome is the result of a single deduction attempt.
type Outcome string

const (
	OutcomeDecremented Outcome = "decremented"
	OutcomeSoldOut     Outcome = "sold_out"
	OutcomeFailed      Outcome = "failed"
)
