package models

type IdentityType string

const (
	IdentityPersonal       IdentityType = "personal"
	IdentityOrganizational IdentityType = "organizational"
)

// Identity is a local signing identity. The node ID is the hex-encoded
// compressed secp256k1 public key, so it doubles as the address other
// participants encrypt messages to.
type Identity struct {
	NodeID     string       `json:"node_id"`
	Name       string       `json:"name"`
	Type       IdentityType `json:"type"`
	PrivateKey []byte       `json:"private_key"`
	CreatedAt  int64        `json:"created_at"`
}
