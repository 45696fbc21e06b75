package inmemory

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
	"github.com/tdex-network/tdex-tradeengine/internal/infrastructure/transport"
)

// Interceptor is invoked for every message before delivery, and returns the
// message to deliver in its place. Returning an error makes the delivery
// fail, as if the peer was unreachable.
type Interceptor func(from, to string, msg domain.Message) (domain.Message, error)

type pendingMessage struct {
	from   string
	pubkey []byte
	buf    []byte
}

// Network connects in-memory transports. Messages are encoded and decoded
// like on the wire, and are delivered asynchronously.
type Network struct {
	lock        sync.RWMutex
	peers       map[string]*Transport
	mailboxes   map[string][]pendingMessage
	interceptor Interceptor
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{
		peers:     make(map[string]*Transport),
		mailboxes: make(map[string][]pendingMessage),
	}
}

// SetInterceptor registers the interceptor of all messages.
func (n *Network) SetInterceptor(interceptor Interceptor) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.interceptor = interceptor
}

// NewTransport adds a peer to the network, online by default.
func (n *Network) NewTransport(address string, pubkey []byte) *Transport {
	t := &Transport{
		network: n,
		address: address,
		pubkey:  pubkey,
		online:  true,
	}

	n.lock.Lock()
	n.peers[address] = t
	n.lock.Unlock()
	return t
}

func (n *Network) send(
	from *Transport, to string, msg domain.Message, useMailbox bool,
	listener ports.SendListener,
) {
	n.lock.RLock()
	interceptor := n.interceptor
	n.lock.RUnlock()

	if interceptor != nil {
		var err error
		if msg, err = interceptor(from.address, to, msg); err != nil {
			listener.OnFault(err)
			return
		}
	}

	buf, err := domain.EncodeMessage(msg)
	if err != nil {
		listener.OnFault(err)
		return
	}

	n.lock.Lock()
	peer, ok := n.peers[to]
	online := ok && peer.isOnline()
	if !online && useMailbox {
		n.mailboxes[to] = append(n.mailboxes[to], pendingMessage{
			from.address, from.pubkey, buf,
		})
	}
	n.lock.Unlock()

	if !online {
		if !useMailbox {
			listener.OnFault(transport.ErrPeerOffline)
			return
		}
		listener.OnStoredInMailbox()
		return
	}

	peer.deliver(from.address, from.pubkey, buf)
	listener.OnArrived()
}

// setOnline delivers the messages stored while the peer was offline.
func (n *Network) setOnline(t *Transport, online bool) {
	n.lock.Lock()
	t.lock.Lock()
	t.online = online
	t.lock.Unlock()

	var pending []pendingMessage
	if online {
		pending = n.mailboxes[t.address]
		delete(n.mailboxes, t.address)
	}
	n.lock.Unlock()

	for _, m := range pending {
		t.deliver(m.from, m.pubkey, m.buf)
	}
}

// Transport is a peer of an in-memory network implementing ports.Transport.
type Transport struct {
	network *Network
	address string
	pubkey  []byte

	lock    sync.RWMutex
	online  bool
	handler ports.MessageHandler
}

func (t *Transport) SendDirect(
	_ context.Context, peer string, _ []byte, msg domain.Message,
	listener ports.SendListener,
) {
	go t.network.send(t, peer, msg, false, listener)
}

func (t *Transport) SendMailbox(
	_ context.Context, peer string, _ []byte, msg domain.Message,
	listener ports.SendListener,
) {
	go t.network.send(t, peer, msg, true, listener)
}

func (t *Transport) Subscribe(handler ports.MessageHandler) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.handler = handler
}

func (t *Transport) Address() string {
	return t.address
}

func (t *Transport) PubKey() []byte {
	return t.pubkey
}

// SetOnline takes the peer online or offline. Messages stored in its mailbox
// are delivered when it gets back online.
func (t *Transport) SetOnline(online bool) {
	t.network.setOnline(t, online)
}

func (t *Transport) isOnline() bool {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.online
}

func (t *Transport) deliver(from string, pubkey, buf []byte) {
	msg, err := domain.DecodeMessage(buf)
	if err != nil {
		log.WithError(err).Warn("inmemory transport: dropping malformed message")
		return
	}

	t.lock.RLock()
	handler := t.handler
	t.lock.RUnlock()
	if handler == nil {
		log.WithField("peer", t.address).Warn(
			"inmemory transport: no handler, dropping message",
		)
		return
	}

	go handler(ports.InboundMessage{
		Sender:       from,
		SenderPubKey: pubkey,
		Message:      msg,
	})
}
