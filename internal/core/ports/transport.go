package ports

import (
	"context"

	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
)

// SendListener receives the outcome of a message delivery. Exactly one of
// the callbacks is invoked, from any goroutine. OnStoredInMailbox is never
// invoked for direct messages.
type SendListener struct {
	OnArrived         func()
	OnStoredInMailbox func()
	OnFault           func(err error)
}

// InboundMessage is a decrypted message received from a peer.
type InboundMessage struct {
	// Sender is the address the peer can be reached at.
	Sender string
	// SenderPubKey is the key the message envelope was signed with.
	SenderPubKey []byte
	Message      domain.Message
}

// MessageHandler is invoked for every inbound message, in a dedicated
// goroutine.
type MessageHandler func(msg InboundMessage)

// Transport is the peer network collaborator.
type Transport interface {
	// SendDirect delivers the message only if the peer is online.
	SendDirect(
		ctx context.Context, peer string, pubkey []byte, msg domain.Message,
		listener SendListener,
	)
	// SendMailbox delivers the message if the peer is online, otherwise stores
	// it to be delivered later.
	SendMailbox(
		ctx context.Context, peer string, pubkey []byte, msg domain.Message,
		listener SendListener,
	)
	// Subscribe registers the handler of inbound messages.
	Subscribe(handler MessageHandler)
	// Address returns the address peers can reach this node at.
	Address() string
	// PubKey returns the key this node signs its messages with.
	PubKey() []byte
}

// MailboxEntry is an encoded message waiting to be delivered to a peer that
// was offline when it was sent.
type MailboxEntry struct {
	ID        string
	Peer      string
	PubKey    []byte
	Payload   []byte
	CreatedAt int64
	Attempts  int
}

// Mailbox stores the messages to be redelivered by the transport. Entries
// survive restarts.
type Mailbox interface {
	AddEntry(ctx context.Context, entry MailboxEntry) error
	UpdateEntry(ctx context.Context, entry MailboxEntry) error
	RemoveEntry(ctx context.Context, id string) error
	ListEntries(ctx context.Context) ([]MailboxEntry, error)
}
