package marketplace

import (
	"fmt"

	"github.com/google/uuid"
)

func newJobID() string { return newID("job") }
func newBidID() string { return newID("bid") }
func newTxnID() string { return newID("txn") }

func newID(prefix string) string {
	u := uuid.New()
	return fmt.Sprintf("%s_%x", prefix, u[:4])
}
