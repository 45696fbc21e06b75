package protocol

import (
	"context"

	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
	"github.com/tdex-network/tdex-tradeengine/pkg/taskrunner"
)

// Step identifies what triggers a run: either a local event or the type of
// an inbound message.
type Step string

const (
	StepPlaceOffer             Step = "PLACE_OFFER"
	StepTakeOffer              Step = "TAKE_OFFER"
	StepInitiateSwap           Step = "INITIATE_SWAP"
	StepConfirmPaymentStarted  Step = "CONFIRM_PAYMENT_STARTED"
	StepConfirmPaymentReceived Step = "CONFIRM_PAYMENT_RECEIVED"
	StepOpenDispute            Step = "OPEN_DISPUTE"
	StepResume                 Step = "RESUME"
)

func messageStep(msgType domain.MessageType) Step {
	return Step(msgType)
}

// event is what a run is started for.
type event struct {
	step Step
	// in is defined only for inbound messages.
	in *ports.InboundMessage
	// reason of a dispute opened locally.
	reason string
}

func (e event) message() domain.Message {
	if e.in == nil {
		return nil
	}
	return e.in.Message
}

// flow defines which tasks run for a step, and when the step is accepted.
type flow struct {
	// phases the step is accepted in, any phase if empty.
	phases []domain.Phase
	// after lists the tasks one of which must be the last completed for the
	// step to be accepted. Any if empty.
	after []string
	role  func(t *domain.Trade) bool
	when  func(t *domain.Trade) bool
	// dispute steps are accepted also for failed trades and do not record
	// their tasks as the trade's last one.
	dispute bool
	tasks   func(m *ProcessModel, ev event) []taskrunner.Task
	// compensate undoes the side effects of a failed run. It runs whatever
	// made the run fail, a timeout included.
	compensate func(ctx context.Context, m *ProcessModel)
}

func (f flow) accepts(t *domain.Trade) bool {
	if len(f.phases) > 0 && !t.IsPhaseIn(f.phases...) {
		return false
	}
	if len(f.after) > 0 && !isOneOf(t.LastTask, f.after) {
		return false
	}
	if f.when != nil && !f.when(t) {
		return false
	}
	return f.role == nil || f.role(t)
}

func isOneOf(name string, names []string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func isMaker(t *domain.Trade) bool  { return t.IsMaker() }
func isTaker(t *domain.Trade) bool  { return t.IsTaker() }
func isBuyer(t *domain.Trade) bool  { return t.IsBuyer() }
func isSeller(t *domain.Trade) bool { return t.IsSeller() }

func tasks(ts ...taskrunner.Task) []taskrunner.Task {
	return ts
}

var disputeFlows = map[Step]flow{
	StepOpenDispute: {
		dispute: true,
		tasks: func(m *ProcessModel, ev event) []taskrunner.Task {
			return tasks(
				m.openDispute(),
				m.sendDisputeOpenedMessage(ev.reason),
			)
		},
	},
	messageStep(domain.MsgDisputeOpened): {
		dispute: true,
		tasks: func(m *ProcessModel, ev event) []taskrunner.Task {
			msg := ev.message().(*domain.DisputeOpenedMessage)
			return tasks(m.processDisputeOpenedMessage(msg))
		},
	},
}

var escrowFlows = map[Step]flow{
	StepPlaceOffer: {
		phases: []domain.Phase{domain.PhaseInit},
		role:   isMaker,
		tasks: func(m *ProcessModel, _ event) []taskrunner.Task {
			return m.placeEscrowOfferTasks()
		},
		compensate: compensateFeeTx,
	},
	StepTakeOffer: {
		phases: []domain.Phase{domain.PhaseInit},
		role:   isTaker,
		tasks: func(m *ProcessModel, _ event) []taskrunner.Task {
			return m.takeEscrowOfferTasks()
		},
		compensate: compensateFeeTx,
	},
	messageStep(domain.MsgInputsForDepositTxRequest): {
		phases: []domain.Phase{domain.PhaseFeePaid},
		after:  []string{taskCreateFeeTx, taskAddOfferToBook},
		role:   isMaker,
		tasks: func(m *ProcessModel, ev event) []taskrunner.Task {
			req := ev.message().(*domain.InputsForDepositTxRequest)
			return tasks(
				m.processInputsForDepositTxRequest(*ev.in, req),
				m.removeOfferFromBook(),
				m.verifyPeersAccountAgeWitness(),
				m.checkRestrictions(),
				m.selectDepositInputs(),
				m.createDepositTx(),
				m.createDelayedPayoutTx(),
				m.sendInputsForDepositTxResponse(),
			)
		},
	},
	messageStep(domain.MsgInputsForDepositTxResponse): {
		phases: []domain.Phase{domain.PhaseFeePaid},
		after:  []string{taskSendInputsForDepositTxRequest},
		role:   isTaker,
		tasks: func(m *ProcessModel, ev event) []taskrunner.Task {
			resp := ev.message().(*domain.InputsForDepositTxResponse)
			return tasks(
				m.processInputsForDepositTxResponse(resp),
				m.verifyPeersAccountAgeWitness(),
				m.verifyAndSignDepositTx(),
				m.verifyAndSignDelayedPayoutTx(resp),
				m.backupDelayedPayoutTx(),
				m.publishDepositTx(),
				m.sendDepositTxMessage(),
				m.setupDepositTxListener(),
			)
		},
	},
	messageStep(domain.MsgDepositTx): {
		phases: []domain.Phase{domain.PhaseFeePaid, domain.PhaseDepositPublished},
		after:  []string{taskSendInputsForDepositTxResponse},
		role:   isMaker,
		tasks: func(m *ProcessModel, ev event) []taskrunner.Task {
			msg := ev.message().(*domain.DepositTxMessage)
			return tasks(
				m.processDepositTxMessage(msg),
				m.finalizeDelayedPayoutTx(),
				m.backupDelayedPayoutTx(),
				m.publishDepositTx(),
				m.setupDepositTxListener(),
			)
		},
	},
	StepConfirmPaymentStarted: {
		phases: []domain.Phase{domain.PhaseDepositConfirmed},
		role:   isBuyer,
		tasks: func(m *ProcessModel, _ event) []taskrunner.Task {
			return tasks(
				m.signPayoutTx(),
				m.sendPaymentStartedMessage(),
			)
		},
	},
	messageStep(domain.MsgPaymentStarted): {
		phases: []domain.Phase{
			domain.PhaseDepositPublished, domain.PhaseDepositConfirmed,
		},
		after: []string{taskSetupDepositTxListener},
		role:  isSeller,
		tasks: func(m *ProcessModel, ev event) []taskrunner.Task {
			msg := ev.message().(*domain.PaymentStartedMessage)
			return tasks(m.processPaymentStartedMessage(msg))
		},
	},
	// A payout that failed to be broadcast is retried by confirming again.
	StepConfirmPaymentReceived: {
		phases: []domain.Phase{
			domain.PhasePaymentStarted, domain.PhasePaymentReceived,
		},
		role: isSeller,
		tasks: func(m *ProcessModel, _ event) []taskrunner.Task {
			return tasks(
				m.signAndFinalizePayoutTx(),
				m.broadcastPayoutTx(),
				m.sendPayoutTxPublishedMessage(),
				m.setupPayoutTxListener(),
			)
		},
	},
	messageStep(domain.MsgPayoutTxPublished): {
		phases: []domain.Phase{domain.PhasePaymentStarted},
		after:  []string{taskSendPaymentStartedMessage},
		role:   isBuyer,
		tasks: func(m *ProcessModel, ev event) []taskrunner.Task {
			msg := ev.message().(*domain.PayoutTxPublishedMessage)
			return tasks(
				m.processPayoutTxPublishedMessage(msg),
				m.setupPayoutTxListener(),
			)
		},
	},
}

var swapFlows = map[Step]flow{
	StepPlaceOffer: {
		phases: []domain.Phase{domain.PhaseInit},
		role:   isMaker,
		tasks: func(m *ProcessModel, _ event) []taskrunner.Task {
			return tasks(
				m.checkSwapPolicy(),
				m.addOfferToBook(),
			)
		},
	},
	StepInitiateSwap: {
		phases: []domain.Phase{domain.PhaseInit},
		role:   isTaker,
		tasks: func(m *ProcessModel, _ event) []taskrunner.Task {
			return tasks(
				m.checkSwapPolicy(),
				m.selectSwapInputs(),
				m.sendSwapRequest(),
			)
		},
	},
	messageStep(domain.MsgSwapRequest): {
		phases: []domain.Phase{domain.PhaseInit},
		after:  []string{taskAddOfferToBook},
		role:   isMaker,
		tasks: func(m *ProcessModel, ev event) []taskrunner.Task {
			req := ev.message().(*domain.SwapRequest)
			return tasks(
				m.checkSwapPolicy(),
				m.processSwapRequest(*ev.in, req),
				m.removeOfferFromBook(),
				m.selectSwapInputs(),
				m.createAndSignSwapTx(),
				m.sendSwapTxResponse(),
			)
		},
	},
	messageStep(domain.MsgSwapTxResponse): {
		phases: []domain.Phase{domain.PhaseInit},
		after:  []string{taskSendSwapRequest},
		role:   isTaker,
		tasks: func(m *ProcessModel, ev event) []taskrunner.Task {
			resp := ev.message().(*domain.SwapTxResponse)
			return tasks(
				m.processSwapTxResponse(resp),
				m.verifyAndSignSwapTx(resp),
				m.setupSwapTxListener(),
				m.sendFinalizedSwapTx(),
			)
		},
	},
	// The listener is armed before broadcasting, so that the trade completes
	// once the tx shows up on the network even if the broadcast outcome is
	// lost.
	messageStep(domain.MsgFinalizedSwapTx): {
		phases: []domain.Phase{domain.PhaseInputsExchanged},
		after:  []string{taskSendSwapTxResponse},
		role:   isMaker,
		tasks: func(m *ProcessModel, ev event) []taskrunner.Task {
			msg := ev.message().(*domain.FinalizedSwapTx)
			return tasks(
				m.processFinalizedSwapTx(msg),
				m.setupSwapTxListener(),
				m.broadcastSwapTx(),
			)
		},
	},
}

// resumeFlow runs again the step of a trade interrupted by a fault or a
// restart. Txs already known to the network are not broadcast again.
var resumeFlow = flow{
	when: func(t *domain.Trade) bool {
		return resumePointOf(t) != resumeNone
	},
	tasks: func(m *ProcessModel, _ event) []taskrunner.Task {
		return m.resumeTasks()
	},
	compensate: compensateFeeTx,
}

// flowFor returns the flow of the given step for the trade's variant.
func flowFor(t *domain.Trade, step Step) (flow, bool) {
	if f, ok := disputeFlows[step]; ok {
		return f, true
	}
	if step == StepResume {
		return resumeFlow, true
	}
	flows := escrowFlows
	if t.IsSwap() {
		flows = swapFlows
	}
	f, ok := flows[step]
	return f, ok
}
