package protocol

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
	"github.com/tdex-network/tdex-tradeengine/pkg/swap"
	"github.com/tdex-network/tdex-tradeengine/pkg/taskrunner"
	"github.com/vulpemventures/go-elements/transaction"
)

// The buyer of a swap pays the quote amount, that must be in policy asset,
// plus the fee of its leg and of the tx overhead. The seller's fee is
// deducted from its payout.

func (m *ProcessModel) buyerSwapFee(numIns int) uint64 {
	return m.policy.LegFee(numIns, 2, true)
}

func (m *ProcessModel) sellerSwapFee(numIns int) uint64 {
	return m.policy.LegFee(numIns, 2, false)
}

func (m *ProcessModel) sellerSwapPayout(numIns int) (uint64, error) {
	quoteAmount, fee := m.trade.Contract.QuoteAmount, m.sellerSwapFee(numIns)
	if quoteAmount <= fee {
		return 0, fmt.Errorf(
			"%w: quote amount %d does not cover fee %d",
			swap.ErrInputAmountMismatch, quoteAmount, fee,
		)
	}
	payout := quoteAmount - fee
	if err := m.policy.CheckDust(m.trade.Contract.QuoteAsset, payout); err != nil {
		return 0, err
	}
	return payout, nil
}

func (m *ProcessModel) checkSwapPolicy() taskrunner.Task {
	return m.newSyncTask("CheckSwapPolicy", func(context.Context) (func() error, error) {
		if m.trade.Contract.QuoteAsset != m.policyAsset() {
			return nil, ErrQuoteAssetNotPolicy
		}
		return nil, nil
	})
}

// selectSwapInputs selects the inputs of the local leg of the swap: quote
// asset plus fees for the buyer, the exact base amount for the seller.
func (m *ProcessModel) selectSwapInputs() taskrunner.Task {
	return m.newSyncTask("SelectSwapInputs", func(ctx context.Context) (func() error, error) {
		c := m.trade.Contract
		asset, amount := c.BaseAsset, c.Amount
		fee := func(int) uint64 { return 0 }
		if m.trade.IsBuyer() {
			asset, amount, fee = c.QuoteAsset, c.QuoteAmount, m.buyerSwapFee
		}

		ins, err := m.selectInputs(ctx, ports.PurposeSwap, asset, amount, fee)
		if err != nil {
			return nil, err
		}
		change, folded, err := m.policy.Change(
			asset, inputsValue(ins), amount+fee(len(ins)),
		)
		if err != nil {
			return nil, err
		}
		if folded > 0 {
			m.logger.Debugf("folding %d sats of dust change into swap fee", folded)
		}

		payout := c.Amount
		if m.trade.IsSeller() {
			if payout, err = m.sellerSwapPayout(len(ins)); err != nil {
				return nil, err
			}
		}

		changeAddr, err := m.wallet.DeriveAddress(ctx, ports.AddressChange, m.trade.ID)
		if err != nil {
			return nil, err
		}
		payoutAddr, err := m.wallet.DeriveAddress(ctx, ports.AddressPayout, m.trade.ID)
		if err != nil {
			return nil, err
		}

		return func() error {
			self := &m.trade.Self
			if err := self.SetInputs(ins); err != nil {
				return err
			}
			if err := self.SetChange(changeAddr, change); err != nil {
				return err
			}
			if err := self.SetPayoutAddress(payoutAddr); err != nil {
				return err
			}
			return self.SetPayoutAmount(payout)
		}, nil
	})
}

func (m *ProcessModel) sendSwapRequest() taskrunner.Task {
	return m.sendTask(taskSendSwapRequest, false, func(context.Context) (domain.Message, func() error, error) {
		c, self := m.trade.Contract, m.trade.Self
		return &domain.SwapRequest{
			Header:        domain.NewHeader(m.trade.ID),
			Amount:        c.Amount,
			QuoteAmount:   c.QuoteAmount,
			FeeRate:       c.FeeRate.String(),
			Inputs:        self.Inputs,
			ChangeAddress: self.ChangeAddress,
			ChangeAmount:  self.ChangeAmount,
			PayoutAddress: self.PayoutAddress,
		}, nil, nil
	})
}

// checkDeclaredAmount wraps Policy.CheckDeclared logging the accepted
// difference, if any.
func (m *ProcessModel) checkDeclaredAmount(
	kind string, declared, expected uint64,
) error {
	diff, err := m.policy.CheckDeclared(kind, declared, expected)
	if err != nil {
		return err
	}
	if diff > 0 {
		m.logger.Warnf("peer declared %s %d sats below the expected one", kind, diff)
	}
	return nil
}

// processSwapRequest validates the buyer's terms, inputs and declared
// amounts against those computed locally.
func (m *ProcessModel) processSwapRequest(
	in ports.InboundMessage, req *domain.SwapRequest,
) taskrunner.Task {
	return m.newSyncTask("ProcessSwapRequest", func(ctx context.Context) (func() error, error) {
		c := m.trade.Contract
		feeRate, err := decimal.NewFromString(req.FeeRate)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid fee rate", ErrContractMismatch)
		}
		if err := checkSameTerms(
			req.Amount == c.Amount && req.QuoteAmount == c.QuoteAmount, "amounts",
		); err != nil {
			return nil, err
		}
		if err := checkSameTerms(feeRate.Equal(c.FeeRate), "fee rate"); err != nil {
			return nil, err
		}
		if err := m.checkAddress(req.ChangeAddress, req.PayoutAddress); err != nil {
			return nil, err
		}

		value, err := m.validatePeerInputs(ctx, req.Inputs, c.QuoteAsset)
		if err != nil {
			return nil, err
		}
		expectedChange, _, err := m.policy.Change(
			c.QuoteAsset, value, c.QuoteAmount+m.buyerSwapFee(len(req.Inputs)),
		)
		if err != nil {
			return nil, err
		}
		if err := m.checkDeclaredAmount(
			"change", req.ChangeAmount, expectedChange,
		); err != nil {
			return nil, err
		}

		return func() error {
			peer := &m.trade.Peer
			if err := peer.SetPubKey(in.SenderPubKey); err != nil {
				return err
			}
			m.trade.UpdatePeerAddress(in.Sender)
			if err := peer.SetInputs(req.Inputs); err != nil {
				return err
			}
			if err := peer.SetChange(req.ChangeAddress, req.ChangeAmount); err != nil {
				return err
			}
			if err := peer.SetPayoutAddress(req.PayoutAddress); err != nil {
				return err
			}
			return peer.SetPayoutAmount(c.Amount)
		}, nil
	})
}

// buildSwapTx builds the unsigned swap tx. The buyer is the initiator: it
// receives the base asset and its quote change, while the seller receives
// the quote asset and its base change.
func (m *ProcessModel) buildSwapTx() (*transaction.Transaction, error) {
	c := m.trade.Contract
	buyer, seller := m.buyer(), m.seller()

	buyerScript, err := m.outputScript(buyer.PayoutAddress)
	if err != nil {
		return nil, err
	}
	buyerLeg, err := m.leg(buyer, c.QuoteAsset, swap.Output{
		Asset: c.BaseAsset, Value: c.Amount, Script: buyerScript,
	})
	if err != nil {
		return nil, err
	}

	sellerScript, err := m.outputScript(seller.PayoutAddress)
	if err != nil {
		return nil, err
	}
	sellerLeg, err := m.leg(seller, c.BaseAsset, swap.Output{
		Asset: c.QuoteAsset, Value: seller.PayoutAmount, Script: sellerScript,
	})
	if err != nil {
		return nil, err
	}

	tx, _, err := swap.Build(swap.BuildOpts{
		PolicyAsset:  m.policyAsset(),
		Initiator:    buyerLeg,
		Counterparty: sellerLeg,
	})
	return tx, err
}

func (m *ProcessModel) createAndSignSwapTx() taskrunner.Task {
	return m.newSyncTask("CreateAndSignSwapTx", func(ctx context.Context) (func() error, error) {
		tx, err := m.buildSwapTx()
		if err != nil {
			return nil, err
		}
		unsignedTx, err := tx.ToHex()
		if err != nil {
			return nil, err
		}
		signedTx, err := m.wallet.SignInputs(ctx, unsignedTx, m.trade.Self.Inputs)
		if err != nil {
			return nil, err
		}
		return func() error {
			if err := m.trade.Self.SetPreparedTx(unsignedTx); err != nil {
				return err
			}
			m.trade.SwapTx = domain.TxRef{ID: tx.TxHash().String(), Hex: signedTx}
			return m.advance(domain.PhaseInputsExchanged)()
		}, nil
	})
}

func (m *ProcessModel) sendSwapTxResponse() taskrunner.Task {
	return m.sendTask(taskSendSwapTxResponse, false, func(context.Context) (domain.Message, func() error, error) {
		self := m.trade.Self
		return &domain.SwapTxResponse{
			Header:        domain.NewHeader(m.trade.ID),
			Tx:            m.trade.SwapTx.Hex,
			Inputs:        self.Inputs,
			PayoutAddress: self.PayoutAddress,
			PayoutAmount:  self.PayoutAmount,
			ChangeAddress: self.ChangeAddress,
			ChangeAmount:  self.ChangeAmount,
		}, nil, nil
	})
}

// processSwapTxResponse validates the seller's inputs and declared amounts
// against those computed locally.
func (m *ProcessModel) processSwapTxResponse(
	resp *domain.SwapTxResponse,
) taskrunner.Task {
	return m.newSyncTask("ProcessSwapTxResponse", func(ctx context.Context) (func() error, error) {
		c := m.trade.Contract
		if err := m.checkAddress(resp.ChangeAddress, resp.PayoutAddress); err != nil {
			return nil, err
		}
		value, err := m.validatePeerInputs(ctx, resp.Inputs, c.BaseAsset)
		if err != nil {
			return nil, err
		}
		expectedChange, _, err := m.policy.Change(c.BaseAsset, value, c.Amount)
		if err != nil {
			return nil, err
		}
		if err := m.checkDeclaredAmount(
			"change", resp.ChangeAmount, expectedChange,
		); err != nil {
			return nil, err
		}
		expectedPayout, err := m.sellerSwapPayout(len(resp.Inputs))
		if err != nil {
			return nil, err
		}
		if err := m.checkDeclaredAmount(
			"payout", resp.PayoutAmount, expectedPayout,
		); err != nil {
			return nil, err
		}

		return func() error {
			peer := &m.trade.Peer
			if err := peer.SetInputs(resp.Inputs); err != nil {
				return err
			}
			if err := peer.SetChange(resp.ChangeAddress, resp.ChangeAmount); err != nil {
				return err
			}
			if err := peer.SetPayoutAddress(resp.PayoutAddress); err != nil {
				return err
			}
			return peer.SetPayoutAmount(resp.PayoutAmount)
		}, nil
	})
}

// verifyAndSignSwapTx checks the tx signed by the seller is byte by byte the
// one built locally, then adds the buyer's signatures.
func (m *ProcessModel) verifyAndSignSwapTx(
	resp *domain.SwapTxResponse,
) taskrunner.Task {
	return m.newSyncTask("VerifyAndSignSwapTx", func(ctx context.Context) (func() error, error) {
		tx, err := m.buildSwapTx()
		if err != nil {
			return nil, err
		}
		unsignedTx, err := tx.ToHex()
		if err != nil {
			return nil, err
		}
		if err := swap.CompareTx(unsignedTx, resp.Tx); err != nil {
			return nil, err
		}
		partialTx, err := m.parseTx(resp.Tx)
		if err != nil {
			return nil, err
		}
		if err := verifyInputs(partialTx, m.trade.Peer.Inputs); err != nil {
			return nil, err
		}

		signedTx, err := m.wallet.SignInputs(ctx, resp.Tx, m.trade.Self.Inputs)
		if err != nil {
			return nil, err
		}
		return func() error {
			if err := m.trade.Self.SetPreparedTx(unsignedTx); err != nil {
				return err
			}
			m.trade.SwapTx = domain.TxRef{ID: tx.TxHash().String(), Hex: signedTx}
			return m.advance(
				domain.PhaseInputsExchanged, domain.PhaseTxFinalized,
			)()
		}, nil
	})
}

func (m *ProcessModel) sendFinalizedSwapTx() taskrunner.Task {
	return m.sendTask("SendFinalizedSwapTx", false, func(context.Context) (domain.Message, func() error, error) {
		return &domain.FinalizedSwapTx{
			Header: domain.NewHeader(m.trade.ID),
			Tx:     m.trade.SwapTx.Hex,
		}, nil, nil
	})
}

func (m *ProcessModel) setupSwapTxListener() taskrunner.Task {
	return m.listenerTask("SetupSwapTxListener", txSwap, func() string {
		return m.trade.SwapTx.ID
	})
}

// processFinalizedSwapTx checks the tx finalized by the buyer is the one
// prepared by the seller and that all its inputs are signed.
func (m *ProcessModel) processFinalizedSwapTx(
	msg *domain.FinalizedSwapTx,
) taskrunner.Task {
	return m.newSyncTask("ProcessFinalizedSwapTx", func(context.Context) (func() error, error) {
		if err := swap.CompareTx(m.trade.Self.PreparedTx, msg.Tx); err != nil {
			return nil, err
		}
		tx, err := m.parseTx(msg.Tx)
		if err != nil {
			return nil, err
		}
		if err := verifyInputs(tx, m.trade.Peer.Inputs); err != nil {
			return nil, err
		}
		if err := verifyInputs(tx, m.trade.Self.Inputs); err != nil {
			return nil, err
		}
		return func() error {
			m.trade.SwapTx = domain.TxRef{ID: tx.TxHash().String(), Hex: msg.Tx}
			return m.advance(domain.PhaseTxFinalized)()
		}, nil
	})
}

func (m *ProcessModel) broadcastSwapTx() taskrunner.Task {
	return m.broadcastTask("BroadcastSwapTx", func() (domain.TxRef, error) {
		if m.trade.SwapTx.IsEmpty() {
			return domain.TxRef{}, fmt.Errorf("missing swap tx")
		}
		return m.trade.SwapTx, nil
	}, m.advance(domain.PhaseCompleted))
}
