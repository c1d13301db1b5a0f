package concurrency

import "sync/atomic"

type TxnID int64

var nextTxnID atomic.Int64

// Transaction is the caller context threaded through index operations. The
// storage layer only carries it; a nil *Transaction is always accepted.
type Transaction struct {
	id TxnID
}

// NewTransaction returns a transaction with a process-unique id.
func NewTransaction() *Transaction {
	return &Transaction{id: TxnID(nextTxnID.Add(1))}
}

func (t *Transaction) ID() TxnID {
	if t == nil {
		return 0
	}
	return t.id
}
