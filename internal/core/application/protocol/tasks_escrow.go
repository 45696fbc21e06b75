package protocol

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/shopspring/decimal"
	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
	"github.com/tdex-network/tdex-tradeengine/pkg/swap"
	"github.com/tdex-network/tdex-tradeengine/pkg/taskrunner"
	pkgwallet "github.com/tdex-network/tdex-tradeengine/pkg/wallet"
	"github.com/vulpemventures/go-elements/transaction"
)

const backupKeyPrefix = "delayed_payout/"

// checkRestrictions makes sure both security deposits are above the minimum
// amount and the minimum percentage of the trade amount.
func (m *ProcessModel) checkRestrictions() taskrunner.Task {
	return m.newSyncTask("CheckRestrictions", func(context.Context) (func() error, error) {
		c := m.trade.Contract
		minByPercent := decimal.NewFromInt(int64(c.Amount)).
			Mul(m.cfg.MinSecurityDepositPercent).
			Div(decimal.NewFromInt(100))

		deposits := map[string]uint64{
			"buyer":  c.BuyerDeposit,
			"seller": c.SellerDeposit,
		}
		for who, deposit := range deposits {
			if deposit < m.cfg.MinSecurityDeposit {
				return nil, fmt.Errorf(
					"%w: %s deposit %d, min %d",
					ErrRestrictionsNotMet, who, deposit, m.cfg.MinSecurityDeposit,
				)
			}
			if decimal.NewFromInt(int64(deposit)).LessThan(minByPercent) {
				return nil, fmt.Errorf(
					"%w: %s deposit %d, min %s%% of amount",
					ErrRestrictionsNotMet, who, deposit, m.cfg.MinSecurityDepositPercent,
				)
			}
		}
		return nil, nil
	})
}

// createFeeTx pays the trade fee of the local party and moves the trade to
// FEE_PAID. The fee tx is recorded before being broadcast, so that it is
// re-broadcast rather than re-created if the task runs again.
func (m *ProcessModel) createFeeTx() taskrunner.Task {
	return taskrunner.NewTask(taskCreateFeeTx, func(ctx context.Context, h *taskrunner.Handle) {
		fee := m.trade.Contract.TradeFee(m.trade.Side)
		if fee == 0 {
			h.CompleteWith(m.advance(domain.PhaseFeePaid))
			return
		}

		if feeTx := m.trade.FeeTx; !feeTx.IsEmpty() {
			m.broadcast(ctx, h, feeTx, m.advance(domain.PhaseFeePaid))
			return
		}

		feeTx, err := m.buildFeeTx(ctx, fee)
		if err != nil {
			h.Fail(err)
			return
		}

		ok, err := h.Update(func() error {
			if err := m.trade.Self.SetFeeTxID(feeTx.ID); err != nil {
				return err
			}
			m.trade.FeeTx = feeTx
			m.persist()
			return nil
		})
		if err != nil {
			h.Fail(err)
			return
		}
		if !ok {
			return
		}

		m.broadcast(ctx, h, feeTx, m.advance(domain.PhaseFeePaid))
	})
}

func (m *ProcessModel) buildFeeTx(
	ctx context.Context, fee uint64,
) (domain.TxRef, error) {
	asset := m.policyAsset()
	txFee := func(numIns int) uint64 {
		return m.policy.LegFee(numIns, 2, true)
	}
	ins, err := m.selectInputs(ctx, ports.PurposeTradeFee, asset, fee, txFee)
	if err != nil {
		return domain.TxRef{}, err
	}

	feeScript, err := m.outputScript(m.trade.Contract.FeeAddress)
	if err != nil {
		return domain.TxRef{}, err
	}
	outs := []swap.Output{{Asset: asset, Value: fee, Script: feeScript}}

	change, _, err := m.policy.Change(
		asset, inputsValue(ins), fee+txFee(len(ins)),
	)
	if err != nil {
		return domain.TxRef{}, err
	}
	if change > 0 {
		addr, err := m.wallet.DeriveAddress(ctx, ports.AddressFeeChange, m.trade.ID)
		if err != nil {
			return domain.TxRef{}, err
		}
		script, err := m.outputScript(addr)
		if err != nil {
			return domain.TxRef{}, err
		}
		outs = append(outs, swap.Output{Asset: asset, Value: change, Script: script})
	}

	tx, _, err := swap.Build(swap.BuildOpts{
		PolicyAsset: asset,
		Initiator:   swap.Leg{Inputs: toSwapInputs(ins), Outputs: outs},
	})
	if err != nil {
		return domain.TxRef{}, err
	}
	unsignedTx, err := tx.ToHex()
	if err != nil {
		return domain.TxRef{}, err
	}
	signedTx, err := m.wallet.SignInputs(ctx, unsignedTx, ins)
	if err != nil {
		return domain.TxRef{}, err
	}
	return domain.TxRef{ID: tx.TxHash().String(), Hex: signedTx}, nil
}

// compensateFeeTx undoes what was done speculatively before the fee was
// paid: the maker's offer is removed from the book and the inputs locked for
// the trade are released. Trades that paid the fee already are left as is.
func compensateFeeTx(ctx context.Context, m *ProcessModel) {
	if m.trade.IsSwap() || m.trade.HasReached(domain.PhaseFeePaid) {
		return
	}
	if m.trade.IsMaker() {
		if err := m.offerBook.RemoveOffer(ctx, m.trade.ID); err != nil {
			m.logger.WithError(err).Warn("failed to remove offer from book")
		}
	}
	if err := m.wallet.UnlockInputs(ctx, m.trade.ID); err != nil {
		m.logger.WithError(err).Warn("failed to unlock inputs")
	}
}

// selectDepositInputs selects the inputs covering the local contribution to
// the escrow output plus the local share of the deposit tx fee, and fills
// the local working set with the trade addresses and keys.
func (m *ProcessModel) selectDepositInputs() taskrunner.Task {
	return m.newSyncTask("SelectDepositInputs", func(ctx context.Context) (func() error, error) {
		asset := m.policyAsset()
		isInitiator := m.trade.IsTaker()
		contribution := m.trade.Contract.Contribution(m.trade.Direction)
		legFee := func(numIns int) uint64 {
			return m.policy.DepositLegFee(numIns, isInitiator)
		}

		ins, err := m.selectInputs(ctx, ports.PurposeDeposit, asset, contribution, legFee)
		if err != nil {
			return nil, err
		}
		change, folded, err := m.policy.Change(
			asset, inputsValue(ins), contribution+legFee(len(ins)),
		)
		if err != nil {
			return nil, err
		}
		if folded > 0 {
			m.logger.Debugf("folding %d sats of dust change into deposit fee", folded)
		}

		changeAddr, err := m.wallet.DeriveAddress(ctx, ports.AddressChange, m.trade.ID)
		if err != nil {
			return nil, err
		}
		payoutAddr, err := m.wallet.DeriveAddress(ctx, ports.AddressPayout, m.trade.ID)
		if err != nil {
			return nil, err
		}
		escrowKey, err := m.wallet.EscrowKey(ctx, m.trade.ID)
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
			if err := self.SetEscrowPubKey(escrowKey); err != nil {
				return err
			}
			return self.SetPaymentAccountPayload(m.cfg.PaymentAccount)
		}, nil
	})
}

func (m *ProcessModel) sendInputsForDepositTxRequest() taskrunner.Task {
	return m.sendTask(taskSendInputsForDepositTxRequest, false, func(ctx context.Context) (domain.Message, func() error, error) {
		self := m.trade.Self
		witness, err := m.accountAgeWitness(ctx, self.EscrowPubKey)
		if err != nil {
			return nil, nil, err
		}
		c := m.trade.Contract
		msg := &domain.InputsForDepositTxRequest{
			Header:                domain.NewHeader(m.trade.ID),
			Amount:                c.Amount,
			BuyerDeposit:          c.BuyerDeposit,
			SellerDeposit:         c.SellerDeposit,
			FeeRate:               c.FeeRate.String(),
			TakerFeeTxID:          self.FeeTxID,
			EscrowPubKey:          self.EscrowPubKey,
			Inputs:                self.Inputs,
			ChangeAddress:         self.ChangeAddress,
			ChangeAmount:          self.ChangeAmount,
			PayoutAddress:         self.PayoutAddress,
			PaymentAccountPayload: self.PaymentAccountPayload,
			AccountAgeWitness:     witness,
		}
		return msg, func() error {
			return m.trade.Self.SetAccountAgeWitness(witness)
		}, nil
	})
}

// validatePeerDepositLeg checks the inputs and the declared change of the
// peer's deposit leg, and returns a mutation storing them in the trade peer.
func (m *ProcessModel) validatePeerDepositLeg(
	ctx context.Context, escrowPubKey []byte, ins []domain.Input,
	changeAddr string, changeAmount uint64, payoutAddr string,
) (func(p *domain.Party) error, error) {
	if _, err := btcec.ParsePubKey(escrowPubKey); err != nil {
		return nil, fmt.Errorf("%w: %s", swap.ErrInvalidPubKey, err)
	}
	if err := m.checkAddress(changeAddr, payoutAddr); err != nil {
		return nil, err
	}

	asset := m.policyAsset()
	value, err := m.validatePeerInputs(ctx, ins, asset)
	if err != nil {
		return nil, err
	}
	peerIsInitiator := m.trade.IsMaker()
	contribution := m.trade.Contract.Contribution(m.trade.Direction.Opposite())
	expectedChange, _, err := m.policy.Change(
		asset, value,
		contribution+m.policy.DepositLegFee(len(ins), peerIsInitiator),
	)
	if err != nil {
		return nil, err
	}
	diff, err := m.policy.CheckDeclared("change", changeAmount, expectedChange)
	if err != nil {
		return nil, err
	}
	if diff > 0 {
		m.logger.Warnf("peer declared change %d sats below the expected one", diff)
	}

	return func(p *domain.Party) error {
		if err := p.SetEscrowPubKey(escrowPubKey); err != nil {
			return err
		}
		if err := p.SetInputs(ins); err != nil {
			return err
		}
		if err := p.SetChange(changeAddr, changeAmount); err != nil {
			return err
		}
		return p.SetPayoutAddress(payoutAddr)
	}, nil
}

func (m *ProcessModel) processInputsForDepositTxRequest(
	in ports.InboundMessage, req *domain.InputsForDepositTxRequest,
) taskrunner.Task {
	return m.newSyncTask("ProcessInputsForDepositTxRequest", func(ctx context.Context) (func() error, error) {
		c := m.trade.Contract
		feeRate, err := decimal.NewFromString(req.FeeRate)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid fee rate", ErrContractMismatch)
		}
		if err := checkSameTerms(req.Amount == c.Amount, "amount"); err != nil {
			return nil, err
		}
		if err := checkSameTerms(
			req.BuyerDeposit == c.BuyerDeposit && req.SellerDeposit == c.SellerDeposit,
			"security deposits",
		); err != nil {
			return nil, err
		}
		if err := checkSameTerms(feeRate.Equal(c.FeeRate), "fee rate"); err != nil {
			return nil, err
		}

		if c.TakerFee > 0 {
			if req.TakerFeeTxID == "" {
				return nil, ErrFeeTxNotPublished
			}
			confidence, err := m.wallet.Confidence(ctx, req.TakerFeeTxID)
			if err != nil {
				return nil, err
			}
			if !confidence.IsPublished() {
				return nil, fmt.Errorf("%w: %s", ErrFeeTxNotPublished, req.TakerFeeTxID)
			}
		}
		if len(req.PaymentAccountPayload) <= 0 {
			return nil, fmt.Errorf("%w: payment account", domain.ErrPeerFieldEmpty)
		}

		setLeg, err := m.validatePeerDepositLeg(
			ctx, req.EscrowPubKey, req.Inputs, req.ChangeAddress, req.ChangeAmount,
			req.PayoutAddress,
		)
		if err != nil {
			return nil, err
		}

		return func() error {
			peer := &m.trade.Peer
			if err := peer.SetPubKey(in.SenderPubKey); err != nil {
				return err
			}
			m.trade.UpdatePeerAddress(in.Sender)
			if err := setLeg(peer); err != nil {
				return err
			}
			if req.TakerFeeTxID != "" {
				if err := peer.SetFeeTxID(req.TakerFeeTxID); err != nil {
					return err
				}
			}
			if err := peer.SetPaymentAccountPayload(req.PaymentAccountPayload); err != nil {
				return err
			}
			return peer.SetAccountAgeWitness(req.AccountAgeWitness)
		}, nil
	})
}

// verifyPeersAccountAgeWitness checks the peer signed the witness of this
// trade with its escrow key.
func (m *ProcessModel) verifyPeersAccountAgeWitness() taskrunner.Task {
	return m.newSyncTask("VerifyPeersAccountAgeWitness", func(context.Context) (func() error, error) {
		peer := m.trade.Peer
		w := peer.AccountAgeWitness
		if w.IsEmpty() {
			return nil, fmt.Errorf("%w: missing witness", ErrInvalidAccountAgeWitness)
		}
		nonce := sha256.Sum256(append([]byte(m.trade.ID), peer.EscrowPubKey...))
		if !bytes.Equal(nonce[:], w.Nonce) {
			return nil, fmt.Errorf("%w: nonce mismatch", ErrInvalidAccountAgeWitness)
		}
		if w.Date > time.Now().Unix() {
			return nil, fmt.Errorf("%w: date is in the future", ErrInvalidAccountAgeWitness)
		}
		if err := pkgwallet.VerifyMessage(
			peer.EscrowPubKey, accountAgeMessage(w.Nonce, w.Date), w.Signature,
		); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidAccountAgeWitness, err)
		}
		return nil, nil
	})
}

func (m *ProcessModel) escrow() (*swap.EscrowScript, error) {
	self, peer := m.trade.Self.EscrowPubKey, m.trade.Peer.EscrowPubKey
	if len(self) <= 0 || len(peer) <= 0 {
		return nil, ErrMissingEscrowKeys
	}
	return swap.NewEscrowScript(self, peer)
}

// buildDepositTx builds the unsigned deposit tx from the working sets of
// both parties. The taker's leg goes first.
func (m *ProcessModel) buildDepositTx(
	escrow *swap.EscrowScript,
) (*transaction.Transaction, error) {
	asset := m.policyAsset()
	takerLeg, err := m.leg(m.taker(), asset)
	if err != nil {
		return nil, err
	}
	makerLeg, err := m.leg(m.maker(), asset)
	if err != nil {
		return nil, err
	}
	tx, _, err := swap.BuildDepositTx(swap.DepositOpts{
		PolicyAsset:  asset,
		Escrow:       escrow,
		EscrowAmount: m.trade.Contract.EscrowAmount(),
		Taker:        takerLeg,
		Maker:        makerLeg,
	})
	return tx, err
}

func (m *ProcessModel) payoutOpts(depositTxID string) swap.PayoutOpts {
	return swap.PayoutOpts{
		PolicyAsset:  m.policyAsset(),
		DepositTxID:  depositTxID,
		EscrowAmount: m.trade.Contract.EscrowAmount(),
	}
}

func (m *ProcessModel) buildDelayedPayoutTx(
	depositTxID string, lockTime uint32,
) (*transaction.Transaction, error) {
	refundScript, err := m.outputScript(m.trade.Contract.RefundAddress)
	if err != nil {
		return nil, err
	}
	opts := m.payoutOpts(depositTxID)
	fee := m.policy.EscrowSpendFee(1)
	if opts.EscrowAmount <= fee {
		return nil, swap.ErrInsufficientDeposit
	}
	opts.RefundScript = refundScript
	opts.RefundAmount = opts.EscrowAmount - fee
	opts.LockTime = lockTime
	tx, _, err := swap.BuildDelayedPayoutTx(opts)
	return tx, err
}

func (m *ProcessModel) payoutAmounts() (buyer, seller uint64, err error) {
	c := m.trade.Contract
	return swap.SplitPayout(
		c.Amount, c.BuyerDeposit, c.SellerDeposit, m.policy.EscrowSpendFee(2),
	)
}

func (m *ProcessModel) buildPayoutTx() (*transaction.Transaction, error) {
	buyer, seller := m.buyer(), m.seller()
	buyerScript, err := m.outputScript(buyer.PayoutAddress)
	if err != nil {
		return nil, err
	}
	sellerScript, err := m.outputScript(seller.PayoutAddress)
	if err != nil {
		return nil, err
	}
	buyerAmount, sellerAmount, err := m.payoutAmounts()
	if err != nil {
		return nil, err
	}
	opts := m.payoutOpts(m.trade.DepositTx.ID)
	opts.BuyerScript, opts.BuyerAmount = buyerScript, buyerAmount
	opts.SellerScript, opts.SellerAmount = sellerScript, sellerAmount
	tx, _, err := swap.BuildPayoutTx(opts)
	return tx, err
}

// signEscrowInput returns the local signature for the escrow input of tx.
func (m *ProcessModel) signEscrowInput(
	ctx context.Context, escrow *swap.EscrowScript, tx *transaction.Transaction,
) ([]byte, error) {
	txHex, err := tx.ToHex()
	if err != nil {
		return nil, err
	}
	return m.wallet.SignEscrowInput(
		ctx, m.trade.ID, txHex, 0, escrow.WitnessScript,
		m.trade.Contract.EscrowAmount(),
	)
}

func (m *ProcessModel) escrowSigs(selfSig, peerSig []byte) map[string][]byte {
	return map[string][]byte{
		string(m.trade.Self.EscrowPubKey): selfSig,
		string(m.trade.Peer.EscrowPubKey): peerSig,
	}
}

// createDepositTx builds the deposit tx and signs the maker's inputs.
func (m *ProcessModel) createDepositTx() taskrunner.Task {
	return m.newSyncTask("CreateDepositTx", func(ctx context.Context) (func() error, error) {
		escrow, err := m.escrow()
		if err != nil {
			return nil, err
		}
		tx, err := m.buildDepositTx(escrow)
		if err != nil {
			return nil, err
		}
		unsignedTx, err := tx.ToHex()
		if err != nil {
			return nil, err
		}
		preparedTx, err := m.wallet.SignInputs(ctx, unsignedTx, m.trade.Self.Inputs)
		if err != nil {
			return nil, err
		}
		return func() error {
			return m.trade.Self.SetPreparedTx(preparedTx)
		}, nil
	})
}

// createDelayedPayoutTx builds the time-locked refund tx spending the
// deposit and signs it with the maker's escrow key.
func (m *ProcessModel) createDelayedPayoutTx() taskrunner.Task {
	return m.newSyncTask("CreateDelayedPayoutTx", func(ctx context.Context) (func() error, error) {
		escrow, err := m.escrow()
		if err != nil {
			return nil, err
		}
		depositTx, err := m.parseTx(m.trade.Self.PreparedTx)
		if err != nil {
			return nil, err
		}

		lockTime := m.trade.LockTime
		if lockTime == 0 {
			height, err := m.wallet.BlockHeight(ctx)
			if err != nil {
				return nil, err
			}
			lockTime = height + m.lockBlocks()
		}

		tx, err := m.buildDelayedPayoutTx(depositTx.TxHash().String(), lockTime)
		if err != nil {
			return nil, err
		}
		ref, err := txRef(tx)
		if err != nil {
			return nil, err
		}
		sig, err := m.signEscrowInput(ctx, escrow, tx)
		if err != nil {
			return nil, err
		}

		return func() error {
			if err := m.trade.Self.SetDelayedPayoutSig(sig); err != nil {
				return err
			}
			m.trade.LockTime = lockTime
			m.trade.DelayedPayoutTx = ref
			return nil
		}, nil
	})
}

func (m *ProcessModel) sendInputsForDepositTxResponse() taskrunner.Task {
	return m.sendTask(taskSendInputsForDepositTxResponse, false, func(ctx context.Context) (domain.Message, func() error, error) {
		self := m.trade.Self
		witness, err := m.accountAgeWitness(ctx, self.EscrowPubKey)
		if err != nil {
			return nil, nil, err
		}
		msg := &domain.InputsForDepositTxResponse{
			Header:                domain.NewHeader(m.trade.ID),
			EscrowPubKey:          self.EscrowPubKey,
			Inputs:                self.Inputs,
			ChangeAddress:         self.ChangeAddress,
			ChangeAmount:          self.ChangeAmount,
			PayoutAddress:         self.PayoutAddress,
			PaymentAccountPayload: self.PaymentAccountPayload,
			AccountAgeWitness:     witness,
			PreparedDepositTx:     self.PreparedTx,
			DelayedPayoutTx:       m.trade.DelayedPayoutTx.Hex,
			DelayedPayoutSig:      self.DelayedPayoutSig,
			LockTime:              m.trade.LockTime,
		}
		return msg, func() error {
			return m.trade.Self.SetAccountAgeWitness(witness)
		}, nil
	})
}

func (m *ProcessModel) processInputsForDepositTxResponse(
	resp *domain.InputsForDepositTxResponse,
) taskrunner.Task {
	return m.newSyncTask("ProcessInputsForDepositTxResponse", func(ctx context.Context) (func() error, error) {
		if len(resp.PaymentAccountPayload) <= 0 {
			return nil, fmt.Errorf("%w: payment account", domain.ErrPeerFieldEmpty)
		}
		if resp.PreparedDepositTx == "" || resp.DelayedPayoutTx == "" {
			return nil, fmt.Errorf("%w: missing prepared txs", domain.ErrMalformedMessage)
		}

		height, err := m.wallet.BlockHeight(ctx)
		if err != nil {
			return nil, err
		}
		expected := int64(height) + int64(m.lockBlocks())
		if lt := int64(resp.LockTime); lt < expected-lockTimeDrift ||
			lt > expected+lockTimeDrift {
			return nil, fmt.Errorf(
				"%w: got %d, expected %d", ErrInvalidLockTime, resp.LockTime, expected,
			)
		}

		setLeg, err := m.validatePeerDepositLeg(
			ctx, resp.EscrowPubKey, resp.Inputs, resp.ChangeAddress,
			resp.ChangeAmount, resp.PayoutAddress,
		)
		if err != nil {
			return nil, err
		}

		return func() error {
			peer := &m.trade.Peer
			if err := setLeg(peer); err != nil {
				return err
			}
			if err := peer.SetPaymentAccountPayload(resp.PaymentAccountPayload); err != nil {
				return err
			}
			if err := peer.SetAccountAgeWitness(resp.AccountAgeWitness); err != nil {
				return err
			}
			if err := peer.SetPreparedTx(resp.PreparedDepositTx); err != nil {
				return err
			}
			if err := peer.SetDelayedPayoutSig(resp.DelayedPayoutSig); err != nil {
				return err
			}
			if m.trade.LockTime != 0 && m.trade.LockTime != resp.LockTime {
				return fmt.Errorf("%w: lock time", domain.ErrPeerFieldAlreadySet)
			}
			m.trade.LockTime = resp.LockTime
			return nil
		}, nil
	})
}

// verifyAndSignDepositTx checks the deposit tx prepared by the maker is the
// one built locally and carries valid maker signatures, then signs the
// taker's inputs.
func (m *ProcessModel) verifyAndSignDepositTx() taskrunner.Task {
	return m.newSyncTask("VerifyAndSignDepositTx", func(ctx context.Context) (func() error, error) {
		escrow, err := m.escrow()
		if err != nil {
			return nil, err
		}
		tx, err := m.buildDepositTx(escrow)
		if err != nil {
			return nil, err
		}
		expectedTx, err := tx.ToHex()
		if err != nil {
			return nil, err
		}
		preparedTx := m.trade.Peer.PreparedTx
		if err := swap.CompareTx(expectedTx, preparedTx); err != nil {
			return nil, err
		}
		prepared, err := m.parseTx(preparedTx)
		if err != nil {
			return nil, err
		}
		if err := verifyInputs(prepared, m.trade.Peer.Inputs); err != nil {
			return nil, err
		}

		signedTx, err := m.wallet.SignInputs(ctx, preparedTx, m.trade.Self.Inputs)
		if err != nil {
			return nil, err
		}
		return func() error {
			m.trade.DepositTx = domain.TxRef{ID: tx.TxHash().String(), Hex: signedTx}
			return nil
		}, nil
	})
}

// verifyAndSignDelayedPayoutTx checks the delayed payout tx received from
// the maker, signs it and finalizes it with both signatures.
func (m *ProcessModel) verifyAndSignDelayedPayoutTx(
	resp *domain.InputsForDepositTxResponse,
) taskrunner.Task {
	return m.newSyncTask("VerifyAndSignDelayedPayoutTx", func(ctx context.Context) (func() error, error) {
		escrow, err := m.escrow()
		if err != nil {
			return nil, err
		}
		tx, err := m.buildDelayedPayoutTx(m.trade.DepositTx.ID, m.trade.LockTime)
		if err != nil {
			return nil, err
		}
		expectedTx, err := tx.ToHex()
		if err != nil {
			return nil, err
		}
		if err := swap.CompareTx(expectedTx, resp.DelayedPayoutTx); err != nil {
			return nil, err
		}

		amount := m.trade.Contract.EscrowAmount()
		peerSig := m.trade.Peer.DelayedPayoutSig
		if err := escrow.Verify(
			tx, 0, amount, m.trade.Peer.EscrowPubKey, peerSig,
		); err != nil {
			return nil, err
		}
		sig, err := m.signEscrowInput(ctx, escrow, tx)
		if err != nil {
			return nil, err
		}
		if err := escrow.Finalize(tx, 0, m.escrowSigs(sig, peerSig)); err != nil {
			return nil, err
		}
		ref, err := txRef(tx)
		if err != nil {
			return nil, err
		}

		return func() error {
			if err := m.trade.Self.SetDelayedPayoutSig(sig); err != nil {
				return err
			}
			m.trade.DelayedPayoutTx = ref
			return nil
		}, nil
	})
}

// backupDelayedPayoutTx publishes the encrypted delayed payout tx to the
// backup storage. Failures are only logged.
func (m *ProcessModel) backupDelayedPayoutTx() taskrunner.Task {
	return m.newSyncTask("BackupDelayedPayoutTx", func(ctx context.Context) (func() error, error) {
		if err := m.backupRecoveryTx(ctx); err != nil {
			m.logger.WithError(err).Warn("failed to backup delayed payout tx")
		}
		return nil, nil
	})
}

func (m *ProcessModel) backupRecoveryTx(ctx context.Context) error {
	secret, err := m.wallet.RecoverySecret(ctx)
	if err != nil {
		return err
	}
	salt := sha256.Sum256([]byte(m.trade.ID))
	blob, err := pkgwallet.Encrypt(pkgwallet.EncryptOpts{
		PlainText:  []byte(m.trade.DelayedPayoutTx.Hex),
		Passphrase: secret,
		Salt:       salt[:],
		Cost:       m.cfg.BackupScryptCost,
	})
	if err != nil {
		return err
	}
	return m.backup.Publish(ctx, backupKeyPrefix+m.trade.ID, []byte(blob))
}

func (m *ProcessModel) publishDepositTx() taskrunner.Task {
	return m.broadcastTask("PublishDepositTx", func() (domain.TxRef, error) {
		if m.trade.DepositTx.IsEmpty() {
			return domain.TxRef{}, fmt.Errorf("missing deposit tx")
		}
		return m.trade.DepositTx, nil
	}, m.advance(domain.PhaseDepositPublished))
}

func (m *ProcessModel) sendDepositTxMessage() taskrunner.Task {
	return m.sendTask("SendDepositTxMessage", true, func(context.Context) (domain.Message, func() error, error) {
		return &domain.DepositTxMessage{
			Header:           domain.NewHeader(m.trade.ID),
			DepositTx:        m.trade.DepositTx.Hex,
			DelayedPayoutSig: m.trade.Self.DelayedPayoutSig,
		}, nil, nil
	})
}

func (m *ProcessModel) setupDepositTxListener() taskrunner.Task {
	return m.listenerTask(taskSetupDepositTxListener, txDeposit, func() string {
		return m.trade.DepositTx.ID
	})
}

// processDepositTxMessage checks the deposit tx signed by the taker is the
// one prepared by the maker and that all its inputs are signed.
func (m *ProcessModel) processDepositTxMessage(
	msg *domain.DepositTxMessage,
) taskrunner.Task {
	return m.newSyncTask("ProcessDepositTxMessage", func(context.Context) (func() error, error) {
		if err := swap.CompareTx(m.trade.Self.PreparedTx, msg.DepositTx); err != nil {
			return nil, err
		}
		tx, err := m.parseTx(msg.DepositTx)
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
			if err := m.trade.Peer.SetDelayedPayoutSig(msg.DelayedPayoutSig); err != nil {
				return err
			}
			m.trade.DepositTx = domain.TxRef{ID: tx.TxHash().String(), Hex: msg.DepositTx}
			return nil
		}, nil
	})
}

// finalizeDelayedPayoutTx verifies the taker's signature of the delayed
// payout tx and completes its witness.
func (m *ProcessModel) finalizeDelayedPayoutTx() taskrunner.Task {
	return m.newSyncTask("FinalizeDelayedPayoutTx", func(context.Context) (func() error, error) {
		escrow, err := m.escrow()
		if err != nil {
			return nil, err
		}
		tx, err := m.parseTx(m.trade.DelayedPayoutTx.Hex)
		if err != nil {
			return nil, err
		}
		peerSig := m.trade.Peer.DelayedPayoutSig
		if err := escrow.Verify(
			tx, 0, m.trade.Contract.EscrowAmount(), m.trade.Peer.EscrowPubKey, peerSig,
		); err != nil {
			return nil, err
		}
		if err := escrow.Finalize(
			tx, 0, m.escrowSigs(m.trade.Self.DelayedPayoutSig, peerSig),
		); err != nil {
			return nil, err
		}
		ref, err := txRef(tx)
		if err != nil {
			return nil, err
		}
		return func() error {
			m.trade.DelayedPayoutTx = ref
			return nil
		}, nil
	})
}

// signPayoutTx signs the payout tx with the buyer's escrow key once the
// off-chain payment has been started.
func (m *ProcessModel) signPayoutTx() taskrunner.Task {
	return m.newSyncTask("SignPayoutTx", func(ctx context.Context) (func() error, error) {
		escrow, err := m.escrow()
		if err != nil {
			return nil, err
		}
		tx, err := m.buildPayoutTx()
		if err != nil {
			return nil, err
		}
		sig, err := m.signEscrowInput(ctx, escrow, tx)
		if err != nil {
			return nil, err
		}
		buyerAmount, _, _ := m.payoutAmounts()
		return func() error {
			if err := m.trade.Self.SetPayoutSig(sig); err != nil {
				return err
			}
			if err := m.trade.Self.SetPayoutAmount(buyerAmount); err != nil {
				return err
			}
			return m.advance(domain.PhasePaymentStarted)()
		}, nil
	})
}

func (m *ProcessModel) sendPaymentStartedMessage() taskrunner.Task {
	return m.sendTask(taskSendPaymentStartedMessage, true, func(context.Context) (domain.Message, func() error, error) {
		return &domain.PaymentStartedMessage{
			Header:           domain.NewHeader(m.trade.ID),
			PayoutAddress:    m.trade.Self.PayoutAddress,
			PayoutSig:        m.trade.Self.PayoutSig,
			PaymentReference: m.trade.ID,
		}, nil, nil
	})
}

func (m *ProcessModel) processPaymentStartedMessage(
	msg *domain.PaymentStartedMessage,
) taskrunner.Task {
	return m.newSyncTask("ProcessPaymentStartedMessage", func(context.Context) (func() error, error) {
		if msg.PayoutAddress != m.trade.Peer.PayoutAddress {
			return nil, fmt.Errorf("%w: buyer payout address", ErrContractMismatch)
		}
		escrow, err := m.escrow()
		if err != nil {
			return nil, err
		}
		tx, err := m.buildPayoutTx()
		if err != nil {
			return nil, err
		}
		if err := escrow.Verify(
			tx, 0, m.trade.Contract.EscrowAmount(), m.trade.Peer.EscrowPubKey,
			msg.PayoutSig,
		); err != nil {
			return nil, err
		}
		buyerAmount, _, _ := m.payoutAmounts()
		return func() error {
			if err := m.trade.Peer.SetPayoutSig(msg.PayoutSig); err != nil {
				return err
			}
			if err := m.trade.Peer.SetPayoutAmount(buyerAmount); err != nil {
				return err
			}
			return m.advance(domain.PhasePaymentStarted)()
		}, nil
	})
}

// signAndFinalizePayoutTx adds the seller's signature to the payout tx once
// the off-chain payment has been received.
func (m *ProcessModel) signAndFinalizePayoutTx() taskrunner.Task {
	return m.newSyncTask("SignAndFinalizePayoutTx", func(ctx context.Context) (func() error, error) {
		escrow, err := m.escrow()
		if err != nil {
			return nil, err
		}
		tx, err := m.buildPayoutTx()
		if err != nil {
			return nil, err
		}
		sig, err := m.signEscrowInput(ctx, escrow, tx)
		if err != nil {
			return nil, err
		}
		if err := escrow.Finalize(
			tx, 0, m.escrowSigs(sig, m.trade.Peer.PayoutSig),
		); err != nil {
			return nil, err
		}
		ref, err := txRef(tx)
		if err != nil {
			return nil, err
		}
		_, sellerAmount, _ := m.payoutAmounts()
		return func() error {
			if err := m.trade.Self.SetPayoutSig(sig); err != nil {
				return err
			}
			if err := m.trade.Self.SetPayoutAmount(sellerAmount); err != nil {
				return err
			}
			m.trade.PayoutTx = ref
			return m.advance(domain.PhasePaymentReceived)()
		}, nil
	})
}

func (m *ProcessModel) broadcastPayoutTx() taskrunner.Task {
	return m.broadcastTask("BroadcastPayoutTx", func() (domain.TxRef, error) {
		if m.trade.PayoutTx.IsEmpty() {
			return domain.TxRef{}, fmt.Errorf("missing payout tx")
		}
		return m.trade.PayoutTx, nil
	}, m.advance(domain.PhasePayoutPublished))
}

func (m *ProcessModel) sendPayoutTxPublishedMessage() taskrunner.Task {
	return m.sendTask("SendPayoutTxPublishedMessage", true, func(context.Context) (domain.Message, func() error, error) {
		return &domain.PayoutTxPublishedMessage{
			Header:   domain.NewHeader(m.trade.ID),
			PayoutTx: m.trade.PayoutTx.Hex,
		}, nil, nil
	})
}

func (m *ProcessModel) setupPayoutTxListener() taskrunner.Task {
	return m.listenerTask("SetupPayoutTxListener", txPayout, func() string {
		return m.trade.PayoutTx.ID
	})
}

func (m *ProcessModel) processPayoutTxPublishedMessage(
	msg *domain.PayoutTxPublishedMessage,
) taskrunner.Task {
	return m.newSyncTask("ProcessPayoutTxPublishedMessage", func(context.Context) (func() error, error) {
		tx, err := m.buildPayoutTx()
		if err != nil {
			return nil, err
		}
		expectedTx, err := tx.ToHex()
		if err != nil {
			return nil, err
		}
		if err := swap.CompareTx(expectedTx, msg.PayoutTx); err != nil {
			return nil, err
		}
		return func() error {
			m.trade.PayoutTx = domain.TxRef{ID: tx.TxHash().String(), Hex: msg.PayoutTx}
			return m.advance(domain.PhasePayoutPublished)()
		}, nil
	})
}
