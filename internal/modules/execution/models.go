// Package execution implements the idempotent executor, the execution
// ledger, pre-trade safety checks and the trade execution pipeline.
package execution

import (
	"time"

	"github.com/aristath/custodian/internal/domain"
)

// RecordTTL is how long a terminal execution record guards its idempotency
// key. Expired records are treated as absent and purged in the background.
const RecordTTL = 24 * time.Hour

// Record is one entry of the execution ledger. A key transitions
// pending -> committed or pending -> failed exactly once; terminal records
// are never re-mutated, only looked up.
type Record struct {
	IdempotencyKey string                 `json:"idempotency_key"`
	UserID         int64                  `json:"user_id"`
	OperationName  string                 `json:"operation_name"`
	Status         domain.ExecutionStatus `json:"status"`
	Result         []byte                 `json:"result,omitempty"`
	Error          string                 `json:"error,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	ExpiresAt      time.Time              `json:"expires_at"`
}
