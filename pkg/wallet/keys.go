package wallet

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/vulpemventures/go-elements/network"
	"github.com/vulpemventures/go-elements/payment"
)

// Keychain derives the signing keys of a wallet from a BIP32 master node
// rooted at DefaultBaseDerivationPath.
type Keychain struct {
	root    *hdkeychain.ExtendedKey
	network *network.Network
}

// NewKeychainOpts is the struct given to NewKeychain
type NewKeychainOpts struct {
	Seed    []byte
	Network *network.Network
}

func (o NewKeychainOpts) validate() error {
	if len(o.Seed) < hdkeychain.MinSeedBytes ||
		len(o.Seed) > hdkeychain.MaxSeedBytes {
		return ErrInvalidSeed
	}
	if o.Network == nil {
		return ErrNullNetwork
	}
	return nil
}

// NewKeychain returns a keychain for the given seed and network
func NewKeychain(opts NewKeychainOpts) (*Keychain, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	master, err := hdkeychain.NewMaster(opts.Seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}
	root, err := derive(master, DefaultBaseDerivationPath)
	if err != nil {
		return nil, err
	}
	return &Keychain{root, opts.Network}, nil
}

// Network returns the network params of the keychain
func (k *Keychain) Network() *network.Network {
	return k.network
}

// DeriveKey returns the private key at the given path relative to the
// keychain root
func (k *Keychain) DeriveKey(path DerivationPath) (*btcec.PrivateKey, error) {
	if len(path) <= 0 {
		return nil, ErrNullDerivationPath
	}
	node, err := derive(k.root, path)
	if err != nil {
		return nil, err
	}
	return node.ECPrivKey()
}

// DeriveAddress returns the P2WPKH address and output script of the key at
// the given path
func (k *Keychain) DeriveAddress(path DerivationPath) (string, []byte, error) {
	key, err := k.DeriveKey(path)
	if err != nil {
		return "", nil, err
	}
	p2wpkh := payment.FromPublicKey(key.PubKey(), k.network, nil)
	addr, err := p2wpkh.WitnessPubKeyHash()
	if err != nil {
		return "", nil, err
	}
	return addr, p2wpkh.WitnessScript, nil
}

func derive(
	node *hdkeychain.ExtendedKey, path DerivationPath,
) (*hdkeychain.ExtendedKey, error) {
	var err error
	for _, step := range path {
		node, err = node.Derive(step)
		if err != nil {
			return nil, err
		}
	}
	return node, nil
}
