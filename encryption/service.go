package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// CryptoService bundles the signing and envelope-encryption primitives used
// throughout the bill lifecycle: secp256k1 keys, keccak256 hashing, recoverable
// signatures and ECIES-style AES-GCM encryption against a recipient's key.
type CryptoService struct{}

func NewCryptoService() *CryptoService {
	return &CryptoService{}
}

// GenerateKeyPair generates a new secp256k1 key pair
func (cs *CryptoService) GenerateKeyPair() (*ecdsa.PrivateKey, error) {
	return crypto.GenerateKey()
}

// NodeID derives the stable node identifier from a public key: the
// hex-encoded compressed key. It is both the signature-verification identity
// and the address encrypted envelopes are sent to.
func (cs *CryptoService) NodeID(pub *ecdsa.PublicKey) string {
	return hex.EncodeToString(crypto.CompressPubkey(pub))
}

// PublicKeyFromNodeID decodes a node identifier back into a public key.
func (cs *CryptoService) PublicKeyFromNodeID(nodeID string) (*ecdsa.PublicKey, error) {
	raw, err := hex.DecodeString(nodeID)
	if err != nil {
		return nil, err
	}
	return crypto.DecompressPubkey(raw)
}

// PrivateKeyFromBytes restores a private key from its raw 32-byte form.
func (cs *CryptoService) PrivateKeyFromBytes(raw []byte) (*ecdsa.PrivateKey, error) {
	return crypto.ToECDSA(raw)
}

// PrivateKeyToBytes serializes a private key to its raw 32-byte form.
func (cs *CryptoService) PrivateKeyToBytes(priv *ecdsa.PrivateKey) []byte {
	return crypto.FromECDSA(priv)
}

// Sign creates a recoverable signature over the keccak256 hash of data.
func (cs *CryptoService) Sign(data []byte, privateKey *ecdsa.PrivateKey) ([]byte, error) {
	return crypto.Sign(cs.Keccak256(data), privateKey)
}

// SignHash signs an already-computed 32-byte digest.
func (cs *CryptoService) SignHash(hash []byte, privateKey *ecdsa.PrivateKey) ([]byte, error) {
	return crypto.Sign(hash, privateKey)
}

// VerifySignature verifies the signature of data against a public key by
// recovering the signer from the signature.
func (cs *CryptoService) VerifySignature(data, signature []byte, publicKey *ecdsa.PublicKey) bool {
	return cs.VerifyHashSignature(cs.Keccak256(data), signature, publicKey)
}

// VerifyHashSignature verifies a signature over an already-computed digest.
func (cs *CryptoService) VerifyHashSignature(hash, signature []byte, publicKey *ecdsa.PublicKey) bool {
	sigPublicKey, err := crypto.SigToPub(hash, signature)
	if err != nil {
		return false
	}
	return sigPublicKey.X.Cmp(publicKey.X) == 0 && sigPublicKey.Y.Cmp(publicKey.Y) == 0
}

// Keccak256 computes Keccak-256 hash
func (cs *CryptoService) Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// sharedSecret derives the AES key from an ECDH exchange between the given
// private and public key. Both sides arrive at the same 32 bytes.
func (cs *CryptoService) sharedSecret(priv *ecdsa.PrivateKey, pub *ecdsa.PublicKey) []byte {
	x, _ := crypto.S256().ScalarMult(pub.X, pub.Y, priv.D.Bytes())
	return cs.Keccak256(x.Bytes())
}

// Encrypt encrypts plaintext for the holder of the given public key. An
// ephemeral key pair is generated per message; the compressed ephemeral public
// key travels in front of the GCM nonce and ciphertext so the recipient can
// rederive the shared secret.
func (cs *CryptoService) Encrypt(plaintext []byte, publicKey *ecdsa.PublicKey) ([]byte, error) {
	ephemKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}

	secret := cs.sharedSecret(ephemKey, publicKey)

	block, err := aes.NewCipher(secret)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return nil, err
	}

	out := crypto.CompressPubkey(&ephemKey.PublicKey)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt decrypts a message produced by Encrypt using the recipient's
// private key.
func (cs *CryptoService) Decrypt(ciphertext []byte, privateKey *ecdsa.PrivateKey) ([]byte, error) {
	const ephemKeyLen = 33
	if len(ciphertext) < ephemKeyLen {
		return nil, errors.New("ciphertext too short")
	}

	ephemPub, err := crypto.DecompressPubkey(ciphertext[:ephemKeyLen])
	if err != nil {
		return nil, err
	}

	secret := cs.sharedSecret(privateKey, ephemPub)

	block, err := aes.NewCipher(secret)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	rest := ciphertext[ephemKeyLen:]
	nonceSize := gcm.NonceSize()
	if len(rest) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce, sealed := rest[:nonceSize], rest[nonceSize:]
	return gcm.Open(nil, nonce, sealed, nil)
}
