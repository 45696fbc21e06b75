package protocol

import (
	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	"github.com/tdex-network/tdex-tradeengine/pkg/taskrunner"
)

// resumePoint tells where an interrupted trade picks up from.
type resumePoint int

const (
	resumeNone resumePoint = iota
	// the fee tx is recorded but the fee is not known to be paid.
	resumeFeeTx
	// the maker waits for a taker, the offer must be in the book.
	resumeOffer
	// the deposit tx is fully signed but not known to be published.
	resumeDepositTx
	// the payout tx is finalized but not known to be published.
	resumePayoutTx
	// the swap tx is finalized but not known to be published.
	resumeSwapTx
)

func (r resumePoint) String() string {
	switch r {
	case resumeFeeTx:
		return "fee_tx"
	case resumeOffer:
		return "offer"
	case resumeDepositTx:
		return "deposit_tx"
	case resumePayoutTx:
		return "payout_tx"
	case resumeSwapTx:
		return "swap_tx"
	default:
		return "none"
	}
}

// resumePointOf returns where the given trade can be resumed from, if
// anywhere.
func resumePointOf(t *domain.Trade) resumePoint {
	if t.IsClosed() || t.IsInDispute() {
		return resumeNone
	}
	if t.IsSwap() {
		return swapResumePointOf(t)
	}
	return escrowResumePointOf(t)
}

func swapResumePointOf(t *domain.Trade) resumePoint {
	switch {
	case t.IsPhaseIn(domain.PhaseInit):
		if t.IsMaker() && len(t.Peer.PubKey) <= 0 &&
			t.LastTask == taskAddOfferToBook {
			return resumeOffer
		}
	case t.IsPhaseIn(domain.PhaseTxFinalized):
		if !t.SwapTx.IsEmpty() {
			return resumeSwapTx
		}
	}
	return resumeNone
}

func escrowResumePointOf(t *domain.Trade) resumePoint {
	switch {
	case t.IsPhaseIn(domain.PhaseInit):
		if !t.FeeTx.IsEmpty() {
			return resumeFeeTx
		}
	case t.IsPhaseIn(domain.PhaseFeePaid, domain.PhaseDepositPublished):
		if !t.DepositTx.IsEmpty() &&
			len(t.Self.DelayedPayoutSig) > 0 && len(t.Peer.DelayedPayoutSig) > 0 &&
			t.LastTask != taskSetupDepositTxListener {
			return resumeDepositTx
		}
		if t.IsPhaseIn(domain.PhaseFeePaid) && t.IsMaker() &&
			len(t.Peer.PubKey) <= 0 &&
			isOneOf(t.LastTask, []string{taskCreateFeeTx, taskAddOfferToBook}) {
			return resumeOffer
		}
	case t.IsPhaseIn(domain.PhasePaymentReceived):
		if t.IsSeller() && !t.PayoutTx.IsEmpty() {
			return resumePayoutTx
		}
	}
	return resumeNone
}

func (m *ProcessModel) placeEscrowOfferTasks() []taskrunner.Task {
	return tasks(
		m.checkRestrictions(),
		m.addOfferToBook(),
		m.createFeeTx(),
	)
}

func (m *ProcessModel) takeEscrowOfferTasks() []taskrunner.Task {
	return tasks(
		m.checkRestrictions(),
		m.createFeeTx(),
		m.selectDepositInputs(),
		m.sendInputsForDepositTxRequest(),
	)
}

// resumeTasks returns the tasks left to run from the trade's resume point.
// Every broadcast task checks the tx confidence first, so a tx published
// before the interruption is never sent twice.
func (m *ProcessModel) resumeTasks() []taskrunner.Task {
	t := m.trade
	switch resumePointOf(t) {
	case resumeFeeTx:
		if t.IsMaker() {
			return m.placeEscrowOfferTasks()
		}
		return m.takeEscrowOfferTasks()
	case resumeOffer:
		return tasks(m.addOfferToBook())
	case resumeDepositTx:
		if t.IsMaker() {
			return tasks(
				m.finalizeDelayedPayoutTx(),
				m.backupDelayedPayoutTx(),
				m.publishDepositTx(),
				m.setupDepositTxListener(),
			)
		}
		return tasks(
			m.backupDelayedPayoutTx(),
			m.publishDepositTx(),
			m.sendDepositTxMessage(),
			m.setupDepositTxListener(),
		)
	case resumePayoutTx:
		return tasks(
			m.broadcastPayoutTx(),
			m.sendPayoutTxPublishedMessage(),
			m.setupPayoutTxListener(),
		)
	case resumeSwapTx:
		if t.IsMaker() {
			return tasks(
				m.setupSwapTxListener(),
				m.broadcastSwapTx(),
			)
		}
		if t.MessageState(domain.MsgFinalizedSwapTx) == domain.MessageStateSendFailed {
			return tasks(
				m.setupSwapTxListener(),
				m.sendFinalizedSwapTx(),
			)
		}
		return tasks(m.setupSwapTxListener())
	}
	return nil
}
