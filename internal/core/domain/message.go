package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/thanhpk/randstr"
)

// MessageType identifies a protocol message on the wire.
type MessageType string

const (
	MsgInputsForDepositTxRequest  MessageType = "INPUTS_FOR_DEPOSIT_TX_REQUEST"
	MsgInputsForDepositTxResponse MessageType = "INPUTS_FOR_DEPOSIT_TX_RESPONSE"
	MsgDepositTx                  MessageType = "DEPOSIT_TX"
	MsgPaymentStarted             MessageType = "PAYMENT_STARTED"
	MsgPayoutTxPublished          MessageType = "PAYOUT_TX_PUBLISHED"
	MsgSwapRequest                MessageType = "SWAP_REQUEST"
	MsgSwapTxResponse             MessageType = "SWAP_TX_RESPONSE"
	MsgFinalizedSwapTx            MessageType = "FINALIZED_SWAP_TX"
	MsgAck                        MessageType = "ACK"
	MsgDisputeOpened              MessageType = "DISPUTE_OPENED"
)

// Message is the closed set of payloads exchanged by the two parties of a
// trade. Implementations are the pointer types declared in this file.
type Message interface {
	GetId() string
	GetTradeId() string
	Type() MessageType
}

// Header is embedded by every message.
type Header struct {
	ID        string `json:"id"`
	TradeID   string `json:"trade_id"`
	Timestamp int64  `json:"timestamp"`
}

// NewHeader returns a header with a fresh random message id.
func NewHeader(tradeID string) Header {
	return Header{
		ID:        randstr.Hex(8),
		TradeID:   tradeID,
		Timestamp: time.Now().Unix(),
	}
}

func (h Header) GetId() string      { return h.ID }
func (h Header) GetTradeId() string { return h.TradeID }

type InputsForDepositTxRequest struct {
	Header
	Amount                uint64            `json:"amount"`
	BuyerDeposit          uint64            `json:"buyer_deposit"`
	SellerDeposit         uint64            `json:"seller_deposit"`
	FeeRate               string            `json:"fee_rate"`
	TakerFeeTxID          string            `json:"taker_fee_txid"`
	EscrowPubKey          []byte            `json:"escrow_pubkey"`
	Inputs                []Input           `json:"inputs"`
	ChangeAddress         string            `json:"change_address"`
	ChangeAmount          uint64            `json:"change_amount"`
	PayoutAddress         string            `json:"payout_address"`
	PaymentAccountPayload []byte            `json:"payment_account_payload"`
	AccountAgeWitness     AccountAgeWitness `json:"account_age_witness"`
}

func (*InputsForDepositTxRequest) Type() MessageType {
	return MsgInputsForDepositTxRequest
}

type InputsForDepositTxResponse struct {
	Header
	EscrowPubKey          []byte            `json:"escrow_pubkey"`
	Inputs                []Input           `json:"inputs"`
	ChangeAddress         string            `json:"change_address"`
	ChangeAmount          uint64            `json:"change_amount"`
	PayoutAddress         string            `json:"payout_address"`
	PaymentAccountPayload []byte            `json:"payment_account_payload"`
	AccountAgeWitness     AccountAgeWitness `json:"account_age_witness"`
	PreparedDepositTx     string            `json:"prepared_deposit_tx"`
	DelayedPayoutTx       string            `json:"delayed_payout_tx"`
	DelayedPayoutSig      []byte            `json:"delayed_payout_sig"`
	LockTime              uint32            `json:"lock_time"`
}

func (*InputsForDepositTxResponse) Type() MessageType {
	return MsgInputsForDepositTxResponse
}

type DepositTxMessage struct {
	Header
	DepositTx        string `json:"deposit_tx"`
	DelayedPayoutSig []byte `json:"delayed_payout_sig"`
}

func (*DepositTxMessage) Type() MessageType { return MsgDepositTx }

type PaymentStartedMessage struct {
	Header
	PayoutAddress    string `json:"payout_address"`
	PayoutSig        []byte `json:"payout_sig"`
	PaymentReference string `json:"payment_reference"`
}

func (*PaymentStartedMessage) Type() MessageType { return MsgPaymentStarted }

type PayoutTxPublishedMessage struct {
	Header
	PayoutTx string `json:"payout_tx"`
}

func (*PayoutTxPublishedMessage) Type() MessageType { return MsgPayoutTxPublished }

type SwapRequest struct {
	Header
	Amount        uint64  `json:"amount"`
	QuoteAmount   uint64  `json:"quote_amount"`
	FeeRate       string  `json:"fee_rate"`
	Inputs        []Input `json:"inputs"`
	ChangeAddress string  `json:"change_address"`
	ChangeAmount  uint64  `json:"change_amount"`
	PayoutAddress string  `json:"payout_address"`
}

func (*SwapRequest) Type() MessageType { return MsgSwapRequest }

type SwapTxResponse struct {
	Header
	Tx            string  `json:"tx"`
	Inputs        []Input `json:"inputs"`
	PayoutAddress string  `json:"payout_address"`
	PayoutAmount  uint64  `json:"payout_amount"`
	ChangeAddress string  `json:"change_address"`
	ChangeAmount  uint64  `json:"change_amount"`
}

func (*SwapTxResponse) Type() MessageType { return MsgSwapTxResponse }

type FinalizedSwapTx struct {
	Header
	Tx string `json:"tx"`
}

func (*FinalizedSwapTx) Type() MessageType { return MsgFinalizedSwapTx }

// AckMessage reports the outcome of processing the message with SourceID.
type AckMessage struct {
	Header
	SourceID     string      `json:"source_id"`
	SourceType   MessageType `json:"source_type"`
	Success      bool        `json:"success"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

func (*AckMessage) Type() MessageType { return MsgAck }

type DisputeOpenedMessage struct {
	Header
	Reason string `json:"reason"`
}

func (*DisputeOpenedMessage) Type() MessageType { return MsgDisputeOpened }

type envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeMessage serializes the message into a typed JSON envelope.
func EncodeMessage(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, ErrNullMessage
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{msg.Type(), payload})
}

// DecodeMessage parses a typed JSON envelope into the matching message.
func DecodeMessage(buf []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedMessage, err)
	}

	var msg Message
	switch env.Type {
	case MsgInputsForDepositTxRequest:
		msg = &InputsForDepositTxRequest{}
	case MsgInputsForDepositTxResponse:
		msg = &InputsForDepositTxResponse{}
	case MsgDepositTx:
		msg = &DepositTxMessage{}
	case MsgPaymentStarted:
		msg = &PaymentStartedMessage{}
	case MsgPayoutTxPublished:
		msg = &PayoutTxPublishedMessage{}
	case MsgSwapRequest:
		msg = &SwapRequest{}
	case MsgSwapTxResponse:
		msg = &SwapTxResponse{}
	case MsgFinalizedSwapTx:
		msg = &FinalizedSwapTx{}
	case MsgAck:
		msg = &AckMessage{}
	case MsgDisputeOpened:
		msg = &DisputeOpenedMessage{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, env.Type)
	}

	if err := json.Unmarshal(env.Payload, msg); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedMessage, err)
	}
	if msg.GetId() == "" || msg.GetTradeId() == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformedMessage)
	}
	return msg, nil
}
