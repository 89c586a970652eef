package blockchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BitcreditProtocol/E-Bill/models"
)

func replayAt(t *testing.T, c *Chain, now int64) *models.BillState {
	t.Helper()
	st, err := Replay(c, now, testDeadlines())
	require.NoError(t, err)
	return st
}

func TestReplayIssueOnly(t *testing.T) {
	f := newBillFixture(t)
	c := f.newChain(t)

	st := replayAt(t, c, testNow)
	assert.Equal(t, testBillID, st.BillID)
	assert.Equal(t, f.payee.nodeID, st.Holder().NodeID)
	assert.Equal(t, uint64(1500), st.Sum)
	assert.Equal(t, "sat", st.Currency)
	assert.False(t, st.Accepted)
	assert.Equal(t, models.WaitingNone, st.Waiting)
	assert.Equal(t, uint64(1), st.BlockHeight)
	assert.Equal(t, c.Tip().Hash, st.LatestBlockHash)
}

func TestReplayIsDeterministic(t *testing.T) {
	f := newBillFixture(t)
	endorsee := newParty(t)
	c := f.newChain(t)
	mustExtend(t, c, &AcceptData{Accepter: f.drawee.identified("drawee")}, f.drawee, testNow-3600)
	mustExtend(t, c, &EndorseData{Endorsee: endorsee.identified("endorsee")}, f.payee, testNow-1800)
	mustExtend(t, c, &RequestToPayData{Requester: endorsee.identified("endorsee"), Currency: "sat"}, endorsee, testNow)

	first := replayAt(t, c, testNow)
	second := replayAt(t, c, testNow)
	assert.Equal(t, first, second)
}

func TestReplayHolderProgression(t *testing.T) {
	f := newBillFixture(t)
	e1 := newParty(t)
	e2 := newParty(t)
	c := f.newChain(t)
	mustExtend(t, c, &EndorseData{Endorsee: e1.identified("first endorsee")}, f.payee, testNow-7200)
	mustExtend(t, c, &EndorseData{Endorsee: e2.identified("second endorsee")}, e1, testNow-3600)

	st := replayAt(t, c, testNow)
	assert.Equal(t, e2.nodeID, st.Holder().NodeID)

	// Endorsements come newest first.
	require.Len(t, st.Endorsements, 2)
	assert.Equal(t, e2.nodeID, st.Endorsements[0].PayToTheOrderOf.NodeID)
	assert.Equal(t, e1.nodeID, st.Endorsements[0].SignedBy.NodeID)
	assert.Equal(t, e1.nodeID, st.Endorsements[1].PayToTheOrderOf.NodeID)

	// Past holders, most recent first, then payee, then drawer.
	require.Len(t, st.PastHolders, 3)
	assert.Equal(t, e1.nodeID, st.PastHolders[0].NodeID)
	assert.Equal(t, f.payee.nodeID, st.PastHolders[1].NodeID)
	assert.Equal(t, f.drawer.nodeID, st.PastHolders[2].NodeID)
}

func TestReplaySkipsAnonymousPastHolders(t *testing.T) {
	f := newBillFixture(t)
	anon := newParty(t)
	e := newParty(t)
	c := f.newChain(t)
	mustExtend(t, c, &BlankEndorseData{Endorsee: anon.anonymous()}, f.payee, testNow-7200)
	mustExtend(t, c, &EndorseData{Endorsee: e.identified("endorsee")}, anon, testNow-3600)

	st := replayAt(t, c, testNow)
	assert.Equal(t, e.nodeID, st.Holder().NodeID)
	require.Len(t, st.PastHolders, 2)
	assert.Equal(t, f.payee.nodeID, st.PastHolders[0].NodeID)
	assert.Equal(t, f.drawer.nodeID, st.PastHolders[1].NodeID)
}

func TestReplayAcceptanceWindow(t *testing.T) {
	f := newBillFixture(t)
	c := f.newChain(t)
	mustExtend(t, c, &RequestToAcceptData{Requester: f.payee.identified("payee")}, f.payee, testNow)

	within := replayAt(t, c, testNow+3600)
	assert.Equal(t, models.WaitingForAcceptance, within.Waiting)
	assert.False(t, within.AcceptanceExpired)
	assert.False(t, within.RecourseOnly)

	after := replayAt(t, c, testNow+49*3600)
	assert.Equal(t, models.WaitingNone, after.Waiting)
	assert.True(t, after.AcceptanceExpired)
	assert.True(t, after.RecourseOnly)
}

func TestReplayPaymentWindowCountsFromMaturityDay(t *testing.T) {
	f := newBillFixture(t)
	f.issue.MaturityDate = testNow + 5*86400
	c := f.newChain(t)

	// The request precedes maturity, so the window counts from the end of the
	// maturity date's day, not from the request.
	b := buildBlock(t, c, &RequestToPayData{Requester: f.payee.identified("payee"), Currency: "sat"}, f.payee, testNow)
	require.NoError(t, c.AddBlock(b))

	endOfMaturityDay := f.issue.MaturityDate - (f.issue.MaturityDate % 86400) + 86399

	late := replayAt(t, c, testNow+72*3600)
	assert.Equal(t, models.WaitingForPayment, late.Waiting)
	assert.False(t, late.PaymentExpired)
	require.NotNil(t, late.PaymentInfo)
	assert.Equal(t, endOfMaturityDay+48*3600, late.PaymentInfo.Deadline)
	assert.Equal(t, f.drawee.nodeID, late.PaymentInfo.Buyer.NodeID)

	expired := replayAt(t, c, endOfMaturityDay+49*3600)
	assert.Equal(t, models.WaitingNone, expired.Waiting)
	assert.True(t, expired.PaymentExpired)
	assert.True(t, expired.RecourseOnly)
}

func TestReplayPaidClosesBill(t *testing.T) {
	f := newBillFixture(t)
	c := f.newChain(t)
	mustExtend(t, c, &AcceptData{Accepter: f.drawee.identified("drawee")}, f.drawee, testNow-7200)
	mustExtend(t, c, &RequestToPayData{Requester: f.payee.identified("payee"), Currency: "sat"}, f.payee, testNow-3600)
	mustExtend(t, c, &PayData{Payer: f.drawee.identified("drawee"), Sum: 1500, Currency: "sat"}, f.drawee, testNow)

	st := replayAt(t, c, testNow)
	assert.True(t, st.Paid)
	assert.True(t, st.Closed)
	assert.Equal(t, models.WaitingNone, st.Waiting)
}

func TestReplaySaleWindow(t *testing.T) {
	f := newBillFixture(t)
	buyer := newParty(t)
	c := f.newChain(t)
	offer := &OfferToSellData{
		Buyer:          buyer.identified("buyer"),
		Seller:         f.payee.identified("payee"),
		Sum:            1400,
		Currency:       "sat",
		PaymentAddress: "bc1qexample",
	}
	mustExtend(t, c, offer, f.payee, testNow)

	st := replayAt(t, c, testNow+3600)
	assert.Equal(t, models.WaitingForSale, st.Waiting)
	require.NotNil(t, st.PaymentInfo)
	assert.Equal(t, buyer.nodeID, st.PaymentInfo.Buyer.NodeID)
	assert.Equal(t, uint64(1400), st.PaymentInfo.Sum)
	assert.Equal(t, "bc1qexample", st.PaymentInfo.PaymentAddress)

	// An unanswered offer lapses without making the bill recourse-only.
	lapsed := replayAt(t, c, testNow+49*3600)
	assert.Equal(t, models.WaitingNone, lapsed.Waiting)
	assert.False(t, lapsed.RecourseOnly)
}

func TestReplaySellTransfersToBuyer(t *testing.T) {
	f := newBillFixture(t)
	buyer := newParty(t)
	c := f.newChain(t)
	offer := &OfferToSellData{
		Buyer:    buyer.identified("buyer"),
		Seller:   f.payee.identified("payee"),
		Sum:      1400,
		Currency: "sat",
	}
	mustExtend(t, c, offer, f.payee, testNow-3600)
	mustExtend(t, c, &SellData{
		Buyer:    offer.Buyer,
		Seller:   offer.Seller,
		Sum:      offer.Sum,
		Currency: offer.Currency,
	}, f.payee, testNow)

	st := replayAt(t, c, testNow)
	assert.Equal(t, buyer.nodeID, st.Holder().NodeID)
	assert.Equal(t, models.WaitingNone, st.Waiting)
}

func TestReplayRecourseFlow(t *testing.T) {
	f := newBillFixture(t)
	c := f.newChain(t)
	mustExtend(t, c, &RequestToAcceptData{Requester: f.payee.identified("payee")}, f.payee, testNow-7200)
	mustExtend(t, c, &RejectToAcceptData{Rejecter: f.drawee.identified("drawee")}, f.drawee, testNow-3600)

	st := replayAt(t, c, testNow)
	assert.True(t, st.RejectedToAccept)
	assert.True(t, st.RecourseOnly)

	req := &RequestRecourseData{
		Recourser: f.payee.identified("payee"),
		Recoursee: f.drawer.identified("drawer"),
		Sum:       1500,
		Currency:  "sat",
		Reason:    models.RecourseReasonAccept,
	}
	mustExtend(t, c, req, f.payee, testNow)

	st = replayAt(t, c, testNow+3600)
	assert.Equal(t, models.WaitingForRecoursePayment, st.Waiting)
	require.NotNil(t, st.RecourseInfo)
	assert.Equal(t, f.drawer.nodeID, st.RecourseInfo.Recoursee.NodeID)
	assert.Equal(t, models.RecourseReasonAccept, st.RecourseInfo.Reason)

	mustExtend(t, c, &RecourseData{
		Recourser: req.Recourser,
		Recoursee: req.Recoursee,
		Sum:       req.Sum,
		Currency:  req.Currency,
		Reason:    req.Reason,
	}, f.payee, testNow+7200)

	st = replayAt(t, c, testNow+7200)
	assert.Equal(t, f.drawer.nodeID, st.Holder().NodeID)
	assert.Equal(t, models.WaitingNone, st.Waiting)
	assert.False(t, st.Closed)

	// The drawer was the bill's first liable party; recoursed back to them,
	// nobody is left to recourse against.
	assert.Empty(t, st.PastHolders)
	assert.True(t, st.RecoursedToEnd)
}

func TestReplayRecourseExcludesLaterHolders(t *testing.T) {
	f := newBillFixture(t)
	e1 := newParty(t)
	e2 := newParty(t)
	c := f.newChain(t)
	mustExtend(t, c, &EndorseData{Endorsee: e1.identified("first endorsee")}, f.payee, testNow-9000)
	mustExtend(t, c, &EndorseData{Endorsee: e2.identified("second endorsee")}, e1, testNow-8000)
	mustExtend(t, c, &RequestToAcceptData{Requester: e2.identified("second endorsee")}, e2, testNow-7200)
	mustExtend(t, c, &RejectToAcceptData{Rejecter: f.drawee.identified("drawee")}, f.drawee, testNow-3600)

	req := &RequestRecourseData{
		Recourser: e2.identified("second endorsee"),
		Recoursee: e1.identified("first endorsee"),
		Sum:       1500,
		Currency:  "sat",
		Reason:    models.RecourseReasonAccept,
	}
	mustExtend(t, c, req, e2, testNow-1800)
	mustExtend(t, c, &RecourseData{
		Recourser: req.Recourser,
		Recoursee: req.Recoursee,
		Sum:       req.Sum,
		Currency:  req.Currency,
		Reason:    req.Reason,
	}, e2, testNow)

	st := replayAt(t, c, testNow)
	assert.Equal(t, e1.nodeID, st.Holder().NodeID)

	// Liability runs backwards only: the holder who recoursed the bill back
	// held it after the first endorsee did and must not be listed.
	require.Len(t, st.PastHolders, 2)
	assert.Equal(t, f.payee.nodeID, st.PastHolders[0].NodeID)
	assert.Equal(t, f.drawer.nodeID, st.PastHolders[1].NodeID)
}

func TestReplayRejectToPayRecourseClosesBill(t *testing.T) {
	f := newBillFixture(t)
	c := f.newChain(t)
	mustExtend(t, c, &RequestToAcceptData{Requester: f.payee.identified("payee")}, f.payee, testNow-7200)
	mustExtend(t, c, &RejectToAcceptData{Rejecter: f.drawee.identified("drawee")}, f.drawee, testNow-3600)
	mustExtend(t, c, &RequestRecourseData{
		Recourser: f.payee.identified("payee"),
		Recoursee: f.drawer.identified("drawer"),
		Sum:       1500,
		Currency:  "sat",
		Reason:    models.RecourseReasonAccept,
	}, f.payee, testNow)
	mustExtend(t, c, &RejectToPayRecourseData{Rejecter: f.drawer.identified("drawer")}, f.drawer, testNow+3600)

	st := replayAt(t, c, testNow+3600)
	assert.True(t, st.Closed)
	assert.Equal(t, models.WaitingNone, st.Waiting)
}
