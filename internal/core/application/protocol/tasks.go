package protocol

import (
	"context"
	"fmt"

	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
	"github.com/tdex-network/tdex-tradeengine/pkg/swap"
	"github.com/tdex-network/tdex-tradeengine/pkg/taskrunner"
	pkgwallet "github.com/tdex-network/tdex-tradeengine/pkg/wallet"
	"github.com/vulpemventures/go-elements/transaction"
)

// txKind tells which trade tx a confidence listener is watching.
type txKind int

const (
	txDeposit txKind = iota
	txPayout
	txSwap
)

func (k txKind) String() string {
	switch k {
	case txDeposit:
		return "deposit"
	case txPayout:
		return "payout"
	default:
		return "swap"
	}
}

// Names of the tasks some incoming messages are expected after.
const (
	taskCreateFeeTx                    = "CreateFeeTx"
	taskAddOfferToBook                 = "AddOfferToBook"
	taskSendInputsForDepositTxRequest  = "SendInputsForDepositTxRequest"
	taskSendInputsForDepositTxResponse = "SendInputsForDepositTxResponse"
	taskSetupDepositTxListener         = "SetupDepositTxListener"
	taskSendPaymentStartedMessage      = "SendPaymentStartedMessage"
	taskSendSwapRequest                = "SendSwapRequest"
	taskSendSwapTxResponse             = "SendSwapTxResponse"
)

// newSyncTask returns a task whose side effects are all performed by fn.
// The returned mutation, if any, is applied to the trade only if the task is
// still active.
func (m *ProcessModel) newSyncTask(
	name string, fn func(ctx context.Context) (func() error, error),
) taskrunner.Task {
	return taskrunner.NewTask(name, func(ctx context.Context, h *taskrunner.Handle) {
		apply, err := fn(ctx)
		if err != nil {
			h.Fail(err)
			return
		}
		h.CompleteWith(apply)
	})
}

// sendTask sends the message returned by build to the trade peer. Mailbox
// messages stored for later delivery complete the task, while direct
// messages fail if the peer is not reachable. onDelivered, if defined, is
// applied along with the new delivery state.
func (m *ProcessModel) sendTask(
	name string, mailbox bool,
	build func(ctx context.Context) (domain.Message, func() error, error),
) taskrunner.Task {
	return taskrunner.NewTask(name, func(ctx context.Context, h *taskrunner.Handle) {
		msg, onDelivered, err := build(ctx)
		if err != nil {
			h.Fail(err)
			return
		}
		msgType := msg.Type()

		delivered := func(state domain.MessageState) {
			h.CompleteWith(func() error {
				m.trade.SetMessageState(msgType, state)
				if onDelivered != nil {
					return onDelivered()
				}
				return nil
			})
		}

		listener := ports.SendListener{
			OnArrived: func() {
				delivered(domain.MessageStateArrived)
			},
			OnStoredInMailbox: func() {
				if !mailbox {
					h.Fail(&deliveryError{msgType, fmt.Errorf("peer is offline")})
					return
				}
				delivered(domain.MessageStateStoredInMailbox)
			},
			OnFault: func(err error) {
				h.Fail(&deliveryError{msgType, err})
			},
		}

		m.logger.WithField("message", msgType).Debug("sending message")
		peer, pubkey := m.trade.PeerAddress, m.trade.Peer.PubKey
		if mailbox {
			m.transport.SendMailbox(ctx, peer, pubkey, msg, listener)
			return
		}
		m.transport.SendDirect(ctx, peer, pubkey, msg, listener)
	})
}

// broadcastTask publishes the tx returned by getTx, unless the network
// already knows it, and applies onPublished.
func (m *ProcessModel) broadcastTask(
	name string, getTx func() (domain.TxRef, error), onPublished func() error,
) taskrunner.Task {
	return taskrunner.NewTask(name, func(ctx context.Context, h *taskrunner.Handle) {
		tx, err := getTx()
		if err != nil {
			h.Fail(err)
			return
		}
		m.broadcast(ctx, h, tx, onPublished)
	})
}

func (m *ProcessModel) broadcast(
	ctx context.Context, h *taskrunner.Handle, tx domain.TxRef,
	onPublished func() error,
) {
	confidence, err := m.wallet.Confidence(ctx, tx.ID)
	if err != nil {
		h.Fail(err)
		return
	}
	if confidence.IsPublished() {
		m.logger.WithField("txid", tx.ID).Debug("tx already published, skipping broadcast")
		h.CompleteWith(onPublished)
		return
	}

	m.wallet.Broadcast(ctx, tx.Hex, ports.BroadcastListener{
		OnSuccess: func(txid string) {
			m.logger.WithField("txid", txid).Info("tx published")
			h.CompleteWith(onPublished)
		},
		OnFault: func(err error) {
			h.Fail(fmt.Errorf("%w: %s: %s", ErrTxNotPublished, tx.ID, err))
		},
	})
}

// listenerTask arms the confidence listener of the tx returned by getTxID.
// It completes right away, the listener outlives the run.
func (m *ProcessModel) listenerTask(
	name string, kind txKind, getTxID func() string,
) taskrunner.Task {
	return taskrunner.NewTask(name, func(_ context.Context, h *taskrunner.Handle) {
		txid := getTxID()
		if txid == "" {
			h.Failf("missing %s tx", kind)
			return
		}
		m.watch(kind, txid)
		h.Complete()
	})
}

func (m *ProcessModel) addOfferToBook() taskrunner.Task {
	return m.newSyncTask(taskAddOfferToBook, func(ctx context.Context) (func() error, error) {
		offer := domain.Offer{
			ID:           m.trade.ID,
			Variant:      m.trade.Variant,
			Direction:    m.trade.Direction,
			Contract:     m.trade.Contract,
			MakerAddress: m.transport.Address(),
			MakerPubKey:  m.trade.Self.PubKey,
		}
		if err := m.offerBook.AddOffer(ctx, offer); err != nil {
			return nil, err
		}
		return nil, nil
	})
}

// removeOfferFromBook never fails: the offer is taken anyway, and the book
// ignores offers of closed trades.
func (m *ProcessModel) removeOfferFromBook() taskrunner.Task {
	return m.newSyncTask("RemoveOfferFromBook", func(ctx context.Context) (func() error, error) {
		if err := m.offerBook.RemoveOffer(ctx, m.trade.ID); err != nil {
			m.logger.WithError(err).Warn("failed to remove offer from book")
		}
		return nil, nil
	})
}

func (m *ProcessModel) openDispute() taskrunner.Task {
	return m.newSyncTask("OpenDispute", func(context.Context) (func() error, error) {
		return func() error {
			_, err := m.trade.RequestDispute()
			return err
		}, nil
	})
}

func (m *ProcessModel) sendDisputeOpenedMessage(reason string) taskrunner.Task {
	return m.sendTask("SendDisputeOpenedMessage", true, func(context.Context) (domain.Message, func() error, error) {
		return &domain.DisputeOpenedMessage{
			Header: domain.NewHeader(m.trade.ID),
			Reason: reason,
		}, nil, nil
	})
}

func (m *ProcessModel) processDisputeOpenedMessage(msg *domain.DisputeOpenedMessage) taskrunner.Task {
	return m.newSyncTask("ProcessDisputeOpenedMessage", func(context.Context) (func() error, error) {
		m.logger.WithField("reason", msg.Reason).Warn("peer opened a dispute")
		return func() error {
			_, err := m.trade.DisputeStartedByPeer()
			return err
		}, nil
	})
}

// advance returns a mutation moving the trade to the given phases in order.
func (m *ProcessModel) advance(phases ...domain.Phase) func() error {
	return func() error {
		for _, p := range phases {
			if _, err := m.trade.Advance(p); err != nil {
				return err
			}
		}
		return nil
	}
}

func (m *ProcessModel) parseTx(txHex string) (*transaction.Transaction, error) {
	tx, err := m.wallet.ParseTx(txHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", swap.ErrMalformedTx, err)
	}
	return tx, nil
}

func (m *ProcessModel) outputScript(addr string) ([]byte, error) {
	return swap.OutputScript(addr, m.network())
}

// leg returns the inputs and outputs of a party in a shared tx. A zero
// change is omitted.
func (m *ProcessModel) leg(
	p *domain.Party, changeAsset string, outs ...swap.Output,
) (swap.Leg, error) {
	if p.ChangeAmount > 0 {
		script, err := m.outputScript(p.ChangeAddress)
		if err != nil {
			return swap.Leg{}, err
		}
		outs = append(outs, swap.Output{
			Asset: changeAsset, Value: p.ChangeAmount, Script: script,
		})
	}
	return swap.Leg{Inputs: toSwapInputs(p.Inputs), Outputs: outs}, nil
}

func txRef(tx *transaction.Transaction) (domain.TxRef, error) {
	txHex, err := tx.ToHex()
	if err != nil {
		return domain.TxRef{}, err
	}
	return domain.TxRef{ID: tx.TxHash().String(), Hex: txHex}, nil
}

// verifyInputs checks the witness of every given input of tx.
func verifyInputs(tx *transaction.Transaction, ins []domain.Input) error {
	for _, in := range ins {
		index := swap.InputIndex(tx, in.TxID, in.Index)
		if index < 0 {
			return fmt.Errorf("%w: missing input %s", swap.ErrTxMismatch, in.Key())
		}
		if err := pkgwallet.VerifyP2WPKHInput(tx, index, in.Script, in.Value); err != nil {
			return fmt.Errorf("input %s: %w", in.Key(), err)
		}
	}
	return nil
}

func checkSameTerms(ok bool, what string) error {
	if !ok {
		return fmt.Errorf("%w: %s", ErrContractMismatch, what)
	}
	return nil
}
