package domain_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
)

func TestDecodeMessage(t *testing.T) {
	t.Parallel()

	req := &domain.SwapRequest{
		Header:        domain.NewHeader("trade-1"),
		Amount:        1000000,
		QuoteAmount:   2000000,
		FeeRate:       "0.1",
		Inputs:        []domain.Input{{TxID: "aa", Index: 1, Asset: "bb", Value: 3000000}},
		ChangeAddress: "change",
		ChangeAmount:  500,
		PayoutAddress: "payout",
	}
	buf, err := domain.EncodeMessage(req)
	require.NoError(t, err)

	msg, err := domain.DecodeMessage(buf)
	require.NoError(t, err)

	decoded, ok := msg.(*domain.SwapRequest)
	require.True(t, ok)
	require.Equal(t, req, decoded)
	require.NotEmpty(t, decoded.GetId())
}

func TestFailingDecodeMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		buf         []byte
		expectedErr error
	}{
		{"not_json", []byte("not json"), domain.ErrMalformedMessage},
		{"unknown_type", []byte(`{"type":"FOO","payload":{}}`), domain.ErrUnknownMessageType},
		{"missing_header", []byte(`{"type":"ACK","payload":{"success":true}}`), domain.ErrMalformedMessage},
		{"bad_payload", []byte(`{"type":"ACK","payload":{"success":"yes"}}`), domain.ErrMalformedMessage},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg, err := domain.DecodeMessage(tt.buf)
			require.ErrorIs(t, err, tt.expectedErr)
			require.Nil(t, msg)
		})
	}
}
