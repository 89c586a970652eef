package blockchain

import (
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BitcreditProtocol/E-Bill/encryption"
	"github.com/BitcreditProtocol/E-Bill/models"
)

// Fixed clock for deterministic replay in tests.
const testNow int64 = 1731593928

const testBillID = "bill-7e2f1a"

var testCrypto = encryption.NewCryptoService()

type party struct {
	key    *ecdsa.PrivateKey
	nodeID string
}

func newParty(t *testing.T) party {
	t.Helper()
	key, err := testCrypto.GenerateKeyPair()
	require.NoError(t, err)
	return party{key: key, nodeID: testCrypto.NodeID(&key.PublicKey)}
}

func (p party) identified(name string) models.BillParticipant {
	return models.NewIdentifiedParticipant(p.nodeID, name)
}

func (p party) anonymous() models.BillParticipant {
	return models.NewAnonymousParticipant(p.nodeID)
}

// billFixture is the baseline cast of a three-party bill.
type billFixture struct {
	drawer party
	drawee party
	payee  party
	issue  *IssueData
}

func newBillFixture(t *testing.T) *billFixture {
	t.Helper()
	f := &billFixture{
		drawer: newParty(t),
		drawee: newParty(t),
		payee:  newParty(t),
	}
	f.issue = &IssueData{
		BillID:       testBillID,
		Drawer:       f.drawer.identified("drawer"),
		Drawee:       f.drawee.identified("drawee"),
		Payee:        f.payee.identified("payee"),
		Sum:          1500,
		Currency:     "sat",
		IssueDate:    testNow - 30*86400,
		MaturityDate: testNow - 7*86400,
	}
	return f
}

func (f *billFixture) newChain(t *testing.T) *Chain {
	t.Helper()
	chain, err := NewChain(f.issue, f.drawer.key, testNow-30*86400)
	require.NoError(t, err)
	return chain
}

// buildBlock signs an action on top of the current tip without appending it.
func buildBlock(t *testing.T, c *Chain, action Action, signer party, ts int64) *Block {
	t.Helper()
	tip := c.Tip()
	b, err := NewBlock(c.BillID(), tip.Seq+1, tip.Hash, action, signer.key, ts)
	require.NoError(t, err)
	return b
}

// mustExtend validates and appends an action, failing the test on rejection.
func mustExtend(t *testing.T, c *Chain, action Action, signer party, ts int64) *Block {
	t.Helper()
	b := buildBlock(t, c, action, signer, ts)
	require.NoError(t, Validate(b, c, ts, DefaultDeadlines()))
	require.NoError(t, c.AddBlock(b))
	return b
}

func testDeadlines() Deadlines {
	return Deadlines{Accept: 48 * time.Hour, Payment: 48 * time.Hour, Recourse: 48 * time.Hour}
}
