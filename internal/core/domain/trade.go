package domain

import (
	"fmt"
	"strings"
	"time"
)

// Trade is the state holder of one protocol run. Only task code mutates it,
// always through the methods below.
type Trade struct {
	ID              string
	Variant         Variant
	Side            Side
	Direction       Direction
	Contract        Contract
	Status          Status
	DisputeState    DisputeState
	ErrorMessage    string
	LastTask        string
	PeerAddress     string
	Self            Party
	Peer            Party
	FeeTx           TxRef
	DepositTx       TxRef
	DelayedPayoutTx TxRef
	PayoutTx        TxRef
	SwapTx          TxRef
	LockTime        uint32
	MessageStates   map[string]MessageState
	Timestamp       Timestamp
}

// NewMakerTrade returns the trade of the maker of the given offer, in INIT
// phase. The trade id is the offer id.
func NewMakerTrade(offer Offer) (*Trade, error) {
	if err := offer.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	return &Trade{
		ID:            offer.ID,
		Variant:       offer.Variant,
		Side:          SideMaker,
		Direction:     offer.Direction,
		Contract:      offer.Contract,
		Status:        Status{Phase: PhaseInit},
		Self:          Party{PubKey: offer.MakerPubKey},
		MessageStates: make(map[string]MessageState),
		Timestamp:     Timestamp{Created: now, Updated: now},
	}, nil
}

// NewTakerTrade returns the trade of the taker of the given offer. The maker's
// address and message key are known upfront from the offer.
func NewTakerTrade(offer Offer, takerPubKey []byte) (*Trade, error) {
	if err := offer.Validate(); err != nil {
		return nil, err
	}
	if len(offer.MakerPubKey) <= 0 || offer.MakerAddress == "" {
		return nil, ErrOfferMissingMaker
	}
	now := time.Now().Unix()
	return &Trade{
		ID:            offer.ID,
		Variant:       offer.Variant,
		Side:          SideTaker,
		Direction:     offer.Direction.Opposite(),
		Contract:      offer.Contract,
		Status:        Status{Phase: PhaseInit},
		PeerAddress:   offer.MakerAddress,
		Self:          Party{PubKey: takerPubKey},
		Peer:          Party{PubKey: offer.MakerPubKey},
		MessageStates: make(map[string]MessageState),
		Timestamp:     Timestamp{Created: now, Updated: now},
	}, nil
}

func (t *Trade) IsMaker() bool  { return t.Side == SideMaker }
func (t *Trade) IsTaker() bool  { return t.Side == SideTaker }
func (t *Trade) IsBuyer() bool  { return t.Direction == DirectionBuy }
func (t *Trade) IsSeller() bool { return t.Direction == DirectionSell }

// IsSwap returns whether the trade is an atomic swap.
func (t *Trade) IsSwap() bool {
	return t.Variant == VariantSwap
}

// IsCompleted returns whether the trade reached its final phase.
func (t *Trade) IsCompleted() bool {
	return t.Status.Phase == PhaseCompleted
}

// IsFailed returns whether the trade has been marked as failed.
func (t *Trade) IsFailed() bool {
	return t.Status.Failed
}

// IsClosed returns whether no protocol step can move the trade forward.
func (t *Trade) IsClosed() bool {
	return t.IsCompleted() || t.IsFailed()
}

// IsInDispute returns whether a dispute was opened by any party.
func (t *Trade) IsInDispute() bool {
	return t.DisputeState == DisputeRequested ||
		t.DisputeState == DisputeStartedByPeer
}

// HasReached returns whether the trade is at or beyond the given phase.
func (t *Trade) HasReached(p Phase) bool {
	current, target := rank(t.Variant, t.Status.Phase), rank(t.Variant, p)
	if target < 0 {
		return false
	}
	return current >= target
}

// IsPhaseIn returns whether the current phase is one of the given ones.
func (t *Trade) IsPhaseIn(phases ...Phase) bool {
	for _, p := range phases {
		if t.Status.Phase == p {
			return true
		}
	}
	return false
}

// Advance moves the trade to the given phase. Moving to a phase already
// reached is a no-op and returns false. Skipping phases not linked by an edge
// of the variant's graph is rejected.
func (t *Trade) Advance(p Phase) (bool, error) {
	if t.Status.Failed {
		return false, ErrTradeAlreadyFailed
	}
	if rank(t.Variant, p) < 0 {
		return false, fmt.Errorf(
			"%w: %s is not a %s phase", ErrInvalidPhaseTransition, p, t.Variant,
		)
	}
	if t.HasReached(p) {
		return false, nil
	}

	for _, next := range edges[t.Variant][t.Status.Phase] {
		if next == p {
			t.Status.Phase = p
			t.touch()
			if p == PhaseCompleted {
				t.Timestamp.Closed = t.Timestamp.Updated
			}
			return true, nil
		}
	}
	return false, fmt.Errorf(
		"%w: %s -> %s", ErrInvalidPhaseTransition, t.Status.Phase, p,
	)
}

// Fail marks the trade as failed. The phase is left untouched so that the
// last reached step is still known when recovering funds.
func (t *Trade) Fail(reason string) {
	if t.Status.Failed {
		return
	}
	t.Status.Failed = true
	t.AppendError(reason)
	t.Timestamp.Closed = t.Timestamp.Updated
}

// AppendError adds the given reason to the trade's error message.
func (t *Trade) AppendError(reason string) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return
	}
	if t.ErrorMessage == "" {
		t.ErrorMessage = reason
	} else if !strings.HasSuffix(t.ErrorMessage, reason) {
		t.ErrorMessage = fmt.Sprintf("%s\n%s", t.ErrorMessage, reason)
	}
	t.touch()
}

// ClearError resets the error message after a successful run.
func (t *Trade) ClearError() {
	if t.ErrorMessage == "" {
		return
	}
	t.ErrorMessage = ""
	t.touch()
}

// SetLastTask records the name of the last task completed for the trade.
func (t *Trade) SetLastTask(name string) {
	t.LastTask = name
	t.touch()
}

// RequestDispute opens a dispute on the local side.
func (t *Trade) RequestDispute() (bool, error) {
	if t.IsCompleted() {
		return false, ErrTradeAlreadyCompleted
	}
	if t.DisputeState == DisputeRequested {
		return false, nil
	}
	if t.DisputeState == DisputeClosed {
		return false, ErrDisputeAlreadyClosed
	}
	t.DisputeState = DisputeRequested
	t.touch()
	return true, nil
}

// DisputeStartedByPeer records that the counterparty opened a dispute.
func (t *Trade) DisputeStartedByPeer() (bool, error) {
	if t.DisputeState == DisputeStartedByPeer ||
		t.DisputeState == DisputeRequested {
		return false, nil
	}
	if t.DisputeState == DisputeClosed {
		return false, ErrDisputeAlreadyClosed
	}
	t.DisputeState = DisputeStartedByPeer
	t.touch()
	return true, nil
}

// CloseDispute closes an open dispute.
func (t *Trade) CloseDispute() (bool, error) {
	if t.DisputeState == DisputeClosed {
		return false, nil
	}
	if !t.IsInDispute() {
		return false, ErrNoOpenDispute
	}
	t.DisputeState = DisputeClosed
	t.touch()
	return true, nil
}

// UpdatePeerAddress replaces the counterparty address. Callers must have
// already authenticated the message the new address comes from.
func (t *Trade) UpdatePeerAddress(addr string) bool {
	if addr == "" || addr == t.PeerAddress {
		return false
	}
	t.PeerAddress = addr
	t.touch()
	return true
}

// SetMessageState records the delivery state of the outgoing message of the
// given type. States never go back from ACKNOWLEDGED/FAILED_ACK.
func (t *Trade) SetMessageState(msgType MessageType, state MessageState) {
	if t.MessageStates == nil {
		t.MessageStates = make(map[string]MessageState)
	}
	current := t.MessageStates[string(msgType)]
	if current == MessageStateAcknowledged || current == MessageStateFailedAck {
		return
	}
	// A late stored-in-mailbox report must not hide an arrival.
	if current == MessageStateArrived && state == MessageStateStoredInMailbox {
		return
	}
	t.MessageStates[string(msgType)] = state
	t.touch()
}

// MessageState returns the delivery state of the given outgoing message type.
func (t *Trade) MessageState(msgType MessageType) MessageState {
	return t.MessageStates[string(msgType)]
}

// Copy returns a deep copy of the trade, safe to hand over to other
// goroutines.
func (t *Trade) Copy() Trade {
	c := *t
	c.Self = t.Self.copy()
	c.Peer = t.Peer.copy()
	c.MessageStates = make(map[string]MessageState, len(t.MessageStates))
	for k, v := range t.MessageStates {
		c.MessageStates[k] = v
	}
	return c
}

func (t *Trade) touch() {
	t.Timestamp.Updated = time.Now().Unix()
}
