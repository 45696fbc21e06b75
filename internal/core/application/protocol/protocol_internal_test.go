package protocol

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
	"github.com/vulpemventures/go-elements/network"
)

var (
	makerKey = []byte{2, 1, 1, 1}
	takerKey = []byte{3, 2, 2, 2}
)

// **** Wallet ****

// mockWallet implements only what is needed to build a protocol, any other
// call panics.
type mockWallet struct {
	ports.Wallet
}

func (m *mockWallet) Network() *network.Network {
	return &network.Regtest
}

// **** Persistence ****

type mockPersistence struct {
	mock.Mock
}

func (m *mockPersistence) RequestPersistence(trade domain.Trade) {
	m.Called(trade)
}

// **** Publisher ****

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishTradeEvent(topic string, trade domain.Trade) error {
	args := m.Called(topic, trade)
	return args.Error(0)
}

func newTestProtocol(t *testing.T, trade *domain.Trade) *TradeProtocol {
	persistence := &mockPersistence{}
	persistence.On("RequestPersistence", mock.Anything).Maybe()

	cfg := &Config{
		Wallet:      &mockWallet{},
		Persistence: persistence,
	}
	cfg.Metrics = noopMetrics{}
	bus := newEventBus(nil)
	t.Cleanup(bus.close)
	return newTradeProtocol(trade, cfg, nil, bus)
}

func testOffer(variant domain.Variant) domain.Offer {
	offer := domain.Offer{
		ID:           "trade",
		Variant:      variant,
		Direction:    domain.DirectionSell,
		MakerAddress: "maker",
		MakerPubKey:  makerKey,
		Contract: domain.Contract{
			BaseAsset:     "base",
			Amount:        100000,
			BuyerDeposit:  15000,
			SellerDeposit: 15000,
			FeeRate:       decimal.NewFromFloat(0.1),
			FeeAddress:    "fee",
			RefundAddress: "refund",
		},
	}
	if variant == domain.VariantSwap {
		offer.Contract.QuoteAsset = network.Regtest.AssetID
		offer.Contract.QuoteAmount = 500000
	}
	return offer
}

func makerTrade(t *testing.T, variant domain.Variant, phases ...domain.Phase) *domain.Trade {
	trade, err := domain.NewMakerTrade(testOffer(variant))
	require.NoError(t, err)
	advanceTo(t, trade, phases...)
	return trade
}

func takerTrade(t *testing.T, variant domain.Variant, phases ...domain.Phase) *domain.Trade {
	trade, err := domain.NewTakerTrade(testOffer(variant), takerKey)
	require.NoError(t, err)
	advanceTo(t, trade, phases...)
	return trade
}

func copyOf(trade *domain.Trade) *domain.Trade {
	c := trade.Copy()
	return &c
}

func afterTask(trade *domain.Trade, task string) *domain.Trade {
	trade.SetLastTask(task)
	return trade
}

func advanceTo(t *testing.T, trade *domain.Trade, phases ...domain.Phase) {
	for _, p := range phases {
		_, err := trade.Advance(p)
		require.NoError(t, err)
	}
}

func inbound(
	sender string, pubkey []byte, msg domain.Message,
) event {
	return event{
		step: messageStep(msg.Type()),
		in: &ports.InboundMessage{
			Sender:       sender,
			SenderPubKey: pubkey,
			Message:      msg,
		},
	}
}

func TestDispatch(t *testing.T) {
	failed := takerTrade(t, domain.VariantEscrow, domain.PhaseFeePaid)
	failed.Fail("boom")

	tests := []struct {
		name        string
		trade       *domain.Trade
		event       event
		expectedErr error
	}{
		{
			name: "maker accepts inputs request in FEE_PAID",
			trade: afterTask(
				makerTrade(t, domain.VariantEscrow, domain.PhaseFeePaid),
				taskCreateFeeTx,
			),
			event: inbound("taker", takerKey, &domain.InputsForDepositTxRequest{
				Header: domain.NewHeader("trade"),
			}),
		},
		{
			name:  "taker accepts swap response from maker",
			trade: afterTask(takerTrade(t, domain.VariantSwap), taskSendSwapRequest),
			event: inbound("maker", makerKey, &domain.SwapTxResponse{
				Header: domain.NewHeader("trade"),
			}),
		},
		{
			name: "deposit tx before inputs response is sent",
			trade: afterTask(
				makerTrade(t, domain.VariantEscrow, domain.PhaseFeePaid),
				taskCreateFeeTx,
			),
			event: inbound("taker", takerKey, &domain.DepositTxMessage{
				Header: domain.NewHeader("trade"),
			}),
			expectedErr: ErrUnexpectedMessage,
		},
		{
			name: "inputs request received twice",
			trade: afterTask(
				makerTrade(t, domain.VariantEscrow, domain.PhaseFeePaid),
				taskSendInputsForDepositTxResponse,
			),
			event: inbound("taker", takerKey, &domain.InputsForDepositTxRequest{
				Header: domain.NewHeader("trade"),
			}),
			expectedErr: ErrUnexpectedMessage,
		},
		{
			name:  "swap response before request is sent",
			trade: takerTrade(t, domain.VariantSwap),
			event: inbound("maker", makerKey, &domain.SwapTxResponse{
				Header: domain.NewHeader("trade"),
			}),
			expectedErr: ErrUnexpectedMessage,
		},
		{
			name: "seller confirms payment received again",
			trade: makerTrade(
				t, domain.VariantEscrow, domain.PhaseFeePaid,
				domain.PhaseDepositPublished, domain.PhaseDepositConfirmed,
				domain.PhasePaymentStarted, domain.PhasePaymentReceived,
			),
			event: event{step: StepConfirmPaymentReceived},
		},
		{
			name:        "resume trade not interrupted",
			trade:       makerTrade(t, domain.VariantEscrow),
			event:       event{step: StepResume},
			expectedErr: ErrNothingToResume,
		},
		{
			name:  "resume trade with recorded fee tx",
			trade: withFeeTx(makerTrade(t, domain.VariantEscrow)),
			event: event{step: StepResume},
		},
		{
			name:  "message of another trade",
			trade: makerTrade(t, domain.VariantSwap),
			event: inbound("taker", takerKey, &domain.SwapRequest{
				Header: domain.NewHeader("other"),
			}),
			expectedErr: ErrTradeIDMismatch,
		},
		{
			name:  "message signed by unknown key",
			trade: takerTrade(t, domain.VariantSwap),
			event: inbound("maker", takerKey, &domain.SwapTxResponse{
				Header: domain.NewHeader("trade"),
			}),
			expectedErr: ErrInvalidSender,
		},
		{
			name:  "escrow message for swap trade",
			trade: makerTrade(t, domain.VariantSwap),
			event: inbound("taker", takerKey, &domain.DepositTxMessage{
				Header: domain.NewHeader("trade"),
			}),
			expectedErr: ErrUnexpectedMessage,
		},
		{
			name:  "inputs request before fee is paid",
			trade: makerTrade(t, domain.VariantEscrow),
			event: inbound("taker", takerKey, &domain.InputsForDepositTxRequest{
				Header: domain.NewHeader("trade"),
			}),
			expectedErr: ErrUnexpectedMessage,
		},
		{
			name:        "place offer as taker",
			trade:       takerTrade(t, domain.VariantSwap),
			event:       event{step: StepPlaceOffer},
			expectedErr: ErrUnexpectedMessage,
		},
		{
			name: "buyer confirms payment received",
			trade: takerTrade(
				t, domain.VariantEscrow, domain.PhaseFeePaid,
				domain.PhaseDepositPublished, domain.PhaseDepositConfirmed,
				domain.PhasePaymentStarted,
			),
			event:       event{step: StepConfirmPaymentReceived},
			expectedErr: ErrUnexpectedMessage,
		},
		{
			name:        "failed trade rejects protocol step",
			trade:       copyOf(failed),
			event:       event{step: StepConfirmPaymentStarted},
			expectedErr: ErrTradeClosed,
		},
		{
			name:  "failed trade accepts dispute",
			trade: copyOf(failed),
			event: event{step: StepOpenDispute},
		},
		{
			name: "completed trade rejects dispute",
			trade: makerTrade(
				t, domain.VariantSwap, domain.PhaseInputsExchanged,
				domain.PhaseTxFinalized, domain.PhaseCompleted,
			),
			event:       event{step: StepOpenDispute},
			expectedErr: ErrTradeClosed,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProtocol(t, tt.trade)
			err := p.dispatch(tt.event)
			if tt.expectedErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.expectedErr)
		})
	}
}

func TestDispatchUpdatesPeerAddress(t *testing.T) {
	trade := afterTask(takerTrade(t, domain.VariantSwap), taskSendSwapRequest)
	p := newTestProtocol(t, trade)

	err := p.dispatch(inbound("maker-new-address", makerKey, &domain.SwapTxResponse{
		Header: domain.NewHeader("trade"),
	}))
	require.NoError(t, err)
	require.Equal(t, "maker-new-address", p.GetTrade().PeerAddress)
}

func withFeeTx(trade *domain.Trade) *domain.Trade {
	trade.FeeTx = domain.TxRef{ID: "feetxid", Hex: "00"}
	return trade
}

func TestResumePoint(t *testing.T) {
	depositSigned := func(trade *domain.Trade) *domain.Trade {
		trade.DepositTx = domain.TxRef{ID: "deposittxid", Hex: "00"}
		trade.Self.DelayedPayoutSig = []byte{1}
		trade.Peer.DelayedPayoutSig = []byte{2}
		return trade
	}
	withPeer := func(trade *domain.Trade) *domain.Trade {
		trade.Peer.PubKey = takerKey
		return trade
	}
	withTx := func(trade *domain.Trade, ref *domain.TxRef) *domain.Trade {
		*ref = domain.TxRef{ID: "txid", Hex: "00"}
		return trade
	}

	paymentReceived := makerTrade(
		t, domain.VariantEscrow, domain.PhaseFeePaid, domain.PhaseDepositPublished,
		domain.PhaseDepositConfirmed, domain.PhasePaymentStarted,
		domain.PhasePaymentReceived,
	)
	swapFinalized := makerTrade(
		t, domain.VariantSwap, domain.PhaseInputsExchanged, domain.PhaseTxFinalized,
	)
	failed := withFeeTx(makerTrade(t, domain.VariantEscrow))
	failed.Fail("boom")

	tests := []struct {
		name     string
		trade    *domain.Trade
		expected resumePoint
	}{
		{"escrow offer not placed yet", makerTrade(t, domain.VariantEscrow), resumeNone},
		{"fee tx recorded", withFeeTx(makerTrade(t, domain.VariantEscrow)), resumeFeeTx},
		{"taker fee tx recorded", withFeeTx(takerTrade(t, domain.VariantEscrow)), resumeFeeTx},
		{"failed trade", failed, resumeNone},
		{
			"maker waiting for taker",
			afterTask(makerTrade(t, domain.VariantEscrow, domain.PhaseFeePaid), taskCreateFeeTx),
			resumeOffer,
		},
		{
			"maker took a taker already",
			withPeer(afterTask(
				makerTrade(t, domain.VariantEscrow, domain.PhaseFeePaid),
				taskSendInputsForDepositTxResponse,
			)),
			resumeNone,
		},
		{
			"taker waiting for inputs response",
			afterTask(
				takerTrade(t, domain.VariantEscrow, domain.PhaseFeePaid),
				taskSendInputsForDepositTxRequest,
			),
			resumeNone,
		},
		{
			"deposit tx not published",
			depositSigned(afterTask(
				takerTrade(t, domain.VariantEscrow, domain.PhaseFeePaid),
				"PublishDepositTx",
			)),
			resumeDepositTx,
		},
		{
			"deposit tx listener armed",
			depositSigned(afterTask(
				takerTrade(
					t, domain.VariantEscrow, domain.PhaseFeePaid,
					domain.PhaseDepositPublished,
				),
				taskSetupDepositTxListener,
			)),
			resumeNone,
		},
		{"payout tx finalized", withTx(paymentReceived, &paymentReceived.PayoutTx), resumePayoutTx},
		{
			"swap offer placed",
			afterTask(makerTrade(t, domain.VariantSwap), taskAddOfferToBook),
			resumeOffer,
		},
		{"swap not started", takerTrade(t, domain.VariantSwap), resumeNone},
		{"swap tx finalized", withTx(swapFinalized, &swapFinalized.SwapTx), resumeSwapTx},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, resumePointOf(tt.trade))
		})
	}
}

func TestConfidencePhases(t *testing.T) {
	tests := []struct {
		kind           txKind
		confidence     ports.Confidence
		expectedPhases []domain.Phase
		expectedDone   bool
	}{
		{txDeposit, ports.ConfidenceUnknown, nil, false},
		{
			txDeposit, ports.ConfidencePending,
			[]domain.Phase{domain.PhaseDepositPublished}, false,
		},
		{
			txDeposit, ports.ConfidenceBuilding,
			[]domain.Phase{domain.PhaseDepositPublished, domain.PhaseDepositConfirmed},
			true,
		},
		{
			txPayout, ports.ConfidencePending,
			[]domain.Phase{domain.PhasePayoutPublished}, false,
		},
		{
			txPayout, ports.ConfidenceBuilding,
			[]domain.Phase{domain.PhasePayoutPublished, domain.PhaseCompleted}, true,
		},
		{txSwap, ports.ConfidencePending, []domain.Phase{domain.PhaseCompleted}, true},
		{txSwap, ports.ConfidenceDead, nil, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.kind.String()+"_"+tt.confidence.String(), func(t *testing.T) {
			phases, done := confidencePhases(tt.kind, tt.confidence)
			require.Equal(t, tt.expectedPhases, phases)
			require.Equal(t, tt.expectedDone, done)
		})
	}
}

func TestEventBus(t *testing.T) {
	published := make(chan string, 1)
	publisher := &mockPublisher{}
	publisher.On("PublishTradeEvent", mock.Anything, mock.Anything).
		Return(nil).
		Run(func(args mock.Arguments) {
			published <- args.String(0)
		})

	bus := newEventBus(publisher)
	trade := domain.Trade{ID: "trade"}

	ch, stop := bus.subscribe()
	bus.publish(ports.TopicTradeUpdated, trade)

	ev := <-ch
	require.Equal(t, ports.TopicTradeUpdated, ev.Topic)
	require.Equal(t, "trade", ev.Trade.ID)

	select {
	case topic := <-published:
		require.Equal(t, ports.TopicTradeUpdated, topic)
	case <-time.After(time.Second):
		t.Fatal("event not published")
	}

	// A full subscriber never blocks the publisher.
	for i := 0; i < eventBufferSize+10; i++ {
		bus.publish(ports.TopicTradeUpdated, trade)
		<-published
	}
	require.Len(t, ch, eventBufferSize)

	stop()
	stop()
	count := 0
	for range ch {
		count++
	}
	require.Equal(t, eventBufferSize, count)

	other, _ := bus.subscribe()
	bus.close()
	_, ok := <-other
	require.False(t, ok)
}
