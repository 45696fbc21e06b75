package wallet

import (
	"errors"
	"fmt"
)

var (
	// ErrNullNetwork ...
	ErrNullNetwork = errors.New("network params are null")
	// ErrNullPassphrase ...
	ErrNullPassphrase = errors.New("passphrase must not be null")
	// ErrNullPlainText ...
	ErrNullPlainText = errors.New("text to encrypt must not be null")
	// ErrNullCypherText ...
	ErrNullCypherText = errors.New("cypher to decrypt must not be null")
	// ErrNullDerivationPath ...
	ErrNullDerivationPath = errors.New("derivation path must not be null")
	// ErrNullTx ...
	ErrNullTx = errors.New("transaction must not be null")
	// ErrNullPrivateKey ...
	ErrNullPrivateKey = errors.New("private key must not be null")
	// ErrNullScriptCode ...
	ErrNullScriptCode = errors.New("script code must not be null")

	// ErrInvalidSeed ...
	ErrInvalidSeed = errors.New("seed must be between 16 and 64 bytes long")
	// ErrInvalidCypherText ...
	ErrInvalidCypherText = errors.New("cypher must be in base64 format")
	// ErrInvalidDerivationPath ...
	ErrInvalidDerivationPath = errors.New("invalid derivation path")
	// ErrInvalidInputIndex ...
	ErrInvalidInputIndex = errors.New("input index out of range")
	// ErrInvalidScryptCost ...
	ErrInvalidScryptCost = errors.New("scrypt cost must be a power of 2 greater than 1")
	// ErrInvalidPubKey ...
	ErrInvalidPubKey = errors.New("invalid public key")
	// ErrInvalidSignature is returned when a signature does not verify against
	// the given public key and message or sighash.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrInvalidWitness ...
	ErrInvalidWitness = errors.New("input witness is missing or malformed")

	// ErrMalformedDerivationPath ...
	ErrMalformedDerivationPath = errors.New(
		"path must not start or end with a '/' and " +
			"can optionally start with 'm/' for absolute paths",
	)
	// ErrOutOfRangeDerivationPathAccount ...
	ErrOutOfRangeDerivationPathAccount = fmt.Errorf(
		"account index must be in hardened range [0, %d]", MaxHardenedValue,
	)
)
