package crawler

const (
	QuitSignal EventType = iota
	TransactionUnknown
	TransactionUnconfirmed
	TransactionConfirmed
	TransactionDead
)

type EventType int

func (et EventType) String() string {
	switch et {
	case QuitSignal:
		return "QuitSignal"
	case TransactionUnknown:
		return "TransactionUnknown"
	case TransactionUnconfirmed:
		return "TransactionUnconfirmed"
	case TransactionConfirmed:
		return "TransactionConfirmed"
	case TransactionDead:
		return "TransactionDead"
	default:
		return "Unknown"
	}
}

type QuitEvent struct{}

func (q QuitEvent) Type() EventType {
	return QuitSignal
}

// TransactionEvent is emitted every time the status of an observed tx
// changes.
type TransactionEvent struct {
	TxID        string
	EventType   EventType
	BlockHash   string
	BlockHeight int
	BlockTime   int
	// SpentBy is defined only for dead txs and is the hash of the tx that
	// double spent one of its inputs.
	SpentBy string
}

func (t TransactionEvent) Type() EventType {
	return t.EventType
}
