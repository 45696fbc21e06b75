package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Variant distinguishes the escrow trade from the single-session atomic swap.
type Variant int

const (
	VariantEscrow Variant = iota
	VariantSwap
)

func (v Variant) String() string {
	switch v {
	case VariantEscrow:
		return "ESCROW"
	case VariantSwap:
		return "SWAP"
	default:
		return "UNKNOWN"
	}
}

// Side tells whether the local party created the offer or took it.
type Side int

const (
	SideMaker Side = iota
	SideTaker
)

func (s Side) String() string {
	if s == SideMaker {
		return "MAKER"
	}
	return "TAKER"
}

// Direction tells whether the local party buys or sells the base asset.
type Direction int

const (
	DirectionBuy Direction = iota
	DirectionSell
)

func (d Direction) String() string {
	if d == DirectionBuy {
		return "BUYER"
	}
	return "SELLER"
}

// Opposite returns the counterparty's direction.
func (d Direction) Opposite() Direction {
	if d == DirectionBuy {
		return DirectionSell
	}
	return DirectionBuy
}

// Phase is a step of a trade's protocol graph. Escrow and swap trades use
// disjoint subsets of phases, apart from PhaseInit and PhaseCompleted.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseFeePaid
	PhaseDepositPublished
	PhaseDepositConfirmed
	PhasePaymentStarted
	PhasePaymentReceived
	PhasePayoutPublished
	PhaseInputsExchanged
	PhaseTxFinalized
	PhaseCompleted
)

var phaseNames = map[Phase]string{
	PhaseInit:             "INIT",
	PhaseFeePaid:          "FEE_PAID",
	PhaseDepositPublished: "DEPOSIT_PUBLISHED",
	PhaseDepositConfirmed: "DEPOSIT_CONFIRMED",
	PhasePaymentStarted:   "PAYMENT_STARTED",
	PhasePaymentReceived:  "PAYMENT_RECEIVED",
	PhasePayoutPublished:  "PAYOUT_PUBLISHED",
	PhaseInputsExchanged:  "INPUTS_EXCHANGED",
	PhaseTxFinalized:      "TX_FINALIZED",
	PhaseCompleted:        "COMPLETED",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PHASE(%d)", int(p))
}

var (
	escrowPhases = []Phase{
		PhaseInit, PhaseFeePaid, PhaseDepositPublished, PhaseDepositConfirmed,
		PhasePaymentStarted, PhasePaymentReceived, PhasePayoutPublished,
		PhaseCompleted,
	}
	swapPhases = []Phase{
		PhaseInit, PhaseInputsExchanged, PhaseTxFinalized, PhaseCompleted,
	}

	// edges lists, for every variant, the phases reachable in one step.
	// Besides the main chain, a seller may learn about the buyer's payment
	// before its own deposit listener fired, and a buyer never passes through
	// PAYMENT_RECEIVED.
	edges = map[Variant]map[Phase][]Phase{
		VariantEscrow: {
			PhaseInit:             {PhaseFeePaid},
			PhaseFeePaid:          {PhaseDepositPublished},
			PhaseDepositPublished: {PhaseDepositConfirmed, PhasePaymentStarted},
			PhaseDepositConfirmed: {PhasePaymentStarted},
			PhasePaymentStarted:   {PhasePaymentReceived, PhasePayoutPublished},
			PhasePaymentReceived:  {PhasePayoutPublished},
			PhasePayoutPublished:  {PhaseCompleted},
		},
		VariantSwap: {
			PhaseInit:            {PhaseInputsExchanged},
			PhaseInputsExchanged: {PhaseTxFinalized},
			PhaseTxFinalized:     {PhaseCompleted},
		},
	}
)

// Phases returns the ordered phases of the given variant.
func Phases(v Variant) []Phase {
	if v == VariantSwap {
		return append([]Phase(nil), swapPhases...)
	}
	return append([]Phase(nil), escrowPhases...)
}

func rank(v Variant, p Phase) int {
	phases := escrowPhases
	if v == VariantSwap {
		phases = swapPhases
	}
	for i, pp := range phases {
		if pp == p {
			return i
		}
	}
	return -1
}

// Status represents the status of a trade: the phase reached so far and
// whether the trade failed while in that phase.
type Status struct {
	Phase  Phase
	Failed bool
}

func (s Status) String() string {
	if s.Failed {
		return fmt.Sprintf("%s (FAILED)", s.Phase)
	}
	return s.Phase.String()
}

// DisputeState is tracked apart from the main phase chain.
type DisputeState int

const (
	DisputeNone DisputeState = iota
	DisputeRequested
	DisputeStartedByPeer
	DisputeClosed
)

func (d DisputeState) String() string {
	switch d {
	case DisputeRequested:
		return "DISPUTE_REQUESTED"
	case DisputeStartedByPeer:
		return "DISPUTE_STARTED_BY_PEER"
	case DisputeClosed:
		return "DISPUTE_CLOSED"
	default:
		return "NO_DISPUTE"
	}
}

// MessageState is the delivery state of an outgoing message.
type MessageState int

const (
	MessageStateUndefined MessageState = iota
	MessageStateSent
	MessageStateArrived
	MessageStateStoredInMailbox
	MessageStateSendFailed
	MessageStateAcknowledged
	MessageStateFailedAck
)

func (s MessageState) String() string {
	switch s {
	case MessageStateSent:
		return "SENT"
	case MessageStateArrived:
		return "ARRIVED"
	case MessageStateStoredInMailbox:
		return "STORED_IN_MAILBOX"
	case MessageStateSendFailed:
		return "SEND_FAILED"
	case MessageStateAcknowledged:
		return "ACKNOWLEDGED"
	case MessageStateFailedAck:
		return "FAILED_ACK"
	default:
		return "UNDEFINED"
	}
}

// TxRef references a transaction produced during the trade.
type TxRef struct {
	ID  string
	Hex string
}

func (r TxRef) IsEmpty() bool {
	return r.ID == ""
}

// Input is a transaction output spent by one of the parties.
type Input struct {
	TxID   string `json:"txid"`
	Index  uint32 `json:"index"`
	Asset  string `json:"asset"`
	Value  uint64 `json:"value"`
	Script []byte `json:"script"`
}

// Key returns the outpoint of the input in txid:index form.
func (i Input) Key() string {
	return fmt.Sprintf("%s:%d", i.TxID, i.Index)
}

// AccountAgeWitness proves the age of a party's payment account: the party
// signs nonce||date with its escrow key.
type AccountAgeWitness struct {
	Nonce     []byte `json:"nonce"`
	Signature []byte `json:"signature"`
	Date      int64  `json:"date"`
}

func (w AccountAgeWitness) IsEmpty() bool {
	return len(w.Nonce) <= 0 && len(w.Signature) <= 0
}

// Contract holds the terms both parties agreed upon when the offer was taken.
type Contract struct {
	Network       string
	BaseAsset     string
	QuoteAsset    string
	Amount        uint64
	QuoteAmount   uint64
	BuyerDeposit  uint64
	SellerDeposit uint64
	MakerFee      uint64
	TakerFee      uint64
	FeeRate       decimal.Decimal
	FeeAddress    string
	RefundAddress string
	LockBlocks    uint32
	PaymentMethod string
	PaymentAmount string
}

// EscrowAmount is the value locked in the 2-of-2 deposit output.
func (c Contract) EscrowAmount() uint64 {
	return c.Amount + c.BuyerDeposit + c.SellerDeposit
}

// Contribution returns how much the given direction must lock into escrow.
func (c Contract) Contribution(d Direction) uint64 {
	if d == DirectionSell {
		return c.Amount + c.SellerDeposit
	}
	return c.BuyerDeposit
}

// TradeFee returns the fee owed to the fee address by the given side.
func (c Contract) TradeFee(s Side) uint64 {
	if s == SideMaker {
		return c.MakerFee
	}
	return c.TakerFee
}

func (c Contract) validate(v Variant) error {
	if c.Amount <= 0 {
		return ErrContractInvalidAmount
	}
	if c.BaseAsset == "" {
		return ErrContractMissingAsset
	}
	if c.FeeRate.IsNegative() || c.FeeRate.IsZero() {
		return ErrContractInvalidFeeRate
	}
	if v == VariantSwap {
		if c.QuoteAsset == "" || c.QuoteAsset == c.BaseAsset {
			return ErrContractMissingAsset
		}
		if c.QuoteAmount <= 0 {
			return ErrContractInvalidAmount
		}
		return nil
	}
	if c.BuyerDeposit <= 0 || c.SellerDeposit <= 0 {
		return ErrContractInvalidDeposit
	}
	if c.RefundAddress == "" || c.FeeAddress == "" {
		return ErrContractMissingAddress
	}
	return nil
}

// Offer is what a maker publishes and a taker accepts. Direction is the
// maker's direction.
type Offer struct {
	ID           string
	Variant      Variant
	Direction    Direction
	Contract     Contract
	MakerAddress string
	MakerPubKey  []byte
}

// Validate checks the offer terms.
func (o Offer) Validate() error {
	if o.ID == "" {
		return ErrOfferMissingID
	}
	if o.Variant == VariantSwap && o.Direction != DirectionSell {
		return ErrSwapOfferMustSell
	}
	return o.Contract.validate(o.Variant)
}

// Timestamp keeps track of when a trade was created, last updated and closed.
type Timestamp struct {
	Created int64
	Updated int64
	Closed  int64
}
