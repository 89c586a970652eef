package blockchain

import (
	"time"

	"github.com/BitcreditProtocol/E-Bill/models"
)

// Deadlines bound the waiting windows a request opens before the counterparty
// must have responded.
type Deadlines struct {
	Accept   time.Duration
	Payment  time.Duration
	Recourse time.Duration
}

// DefaultDeadlines returns the protocol defaults of two days per window.
func DefaultDeadlines() Deadlines {
	return Deadlines{
		Accept:   48 * time.Hour,
		Payment:  48 * time.Hour,
		Recourse: 48 * time.Hour,
	}
}

// holderChange records one change of the bill's holder during replay.
type holderChange struct {
	holder    models.BillParticipant
	signedBy  models.BillParticipant
	timestamp int64
	recourse  bool
}

// Replay walks the chain from block 0 and derives the bill's current state.
// It is deterministic and side-effect-free: the same chain and clock always
// yield the same state. Expiry of waiting windows is judged against the
// caller-supplied now.
func Replay(c *Chain, now int64, dl Deadlines) (*models.BillState, error) {
	if err := c.Verify(); err != nil {
		return nil, err
	}

	st := &models.BillState{BillID: c.BillID()}
	var changes []holderChange

	var reqToAcceptAt, reqToPayAt int64
	var reqToPay *RequestToPayData
	var offer *OfferToSellData
	var offerAt int64
	var recourseReq *RequestRecourseData
	var recourseReqAt int64

	for _, b := range c.Blocks {
		action, err := b.Action()
		if err != nil {
			return nil, err
		}
		signedBy := participantForSigner(b.SignerNodeID, changes, st)

		switch a := action.(type) {
		case *IssueData:
			st.Drawer = a.Drawer
			st.Drawee = a.Drawee
			st.Payee = a.Payee
			st.Sum = a.Sum
			st.Currency = a.Currency
			st.IssueDate = a.IssueDate
			st.MaturityDate = a.MaturityDate
		case *EndorseData:
			changes = append(changes, holderChange{a.Endorsee, signedBy, b.Timestamp, false})
		case *BlankEndorseData:
			changes = append(changes, holderChange{a.Endorsee, signedBy, b.Timestamp, false})
		case *MintData:
			changes = append(changes, holderChange{a.Endorsee, signedBy, b.Timestamp, false})
		case *SellData:
			changes = append(changes, holderChange{a.Buyer, a.Seller, b.Timestamp, false})
			offer = nil
		case *RecourseData:
			changes = append(changes, holderChange{a.Recoursee, a.Recourser, b.Timestamp, true})
			recourseReq = nil
		case *RequestToAcceptData:
			st.RequestedToAccept = true
			reqToAcceptAt = b.Timestamp
		case *AcceptData:
			st.Accepted = true
		case *RejectToAcceptData:
			st.RejectedToAccept = true
		case *RequestToPayData:
			st.RequestedToPay = true
			reqToPayAt = b.Timestamp
			reqToPay = a
		case *PayData:
			st.Paid = true
		case *RejectToPayData:
			st.RejectedToPay = true
		case *OfferToSellData:
			offer = a
			offerAt = b.Timestamp
		case *RejectToBuyData:
			offer = nil
		case *RequestRecourseData:
			recourseReq = a
			recourseReqAt = b.Timestamp
		case *RejectToPayRecourseData:
			st.Closed = true
		default:
			return nil, structuralErr("block %d: op %s carries unexpected payload", b.Seq, b.Op)
		}
	}

	if len(changes) > 0 {
		last := changes[len(changes)-1].holder
		st.Endorsee = &last
	}

	// Endorsements, newest first.
	for i := len(changes) - 1; i >= 0; i-- {
		st.Endorsements = append(st.Endorsements, models.Endorsement{
			PayToTheOrderOf: changes[i].holder,
			SignedBy:        changes[i].signedBy,
			Timestamp:       changes[i].timestamp,
		})
	}

	st.PastHolders = pastHolders(st, changes)

	payBase := paymentDeadlineBase(reqToPayAt, st.MaturityDate)
	if st.RequestedToAccept && !st.Accepted && !st.RejectedToAccept &&
		deadlinePassed(reqToAcceptAt, now, dl.Accept) {
		st.AcceptanceExpired = true
	}
	if st.RequestedToPay && !st.Paid && !st.RejectedToPay &&
		deadlinePassed(payBase, now, dl.Payment) {
		st.PaymentExpired = true
	}

	st.RecourseOnly = st.RejectedToAccept || st.RejectedToPay ||
		st.AcceptanceExpired || st.PaymentExpired
	if st.Paid {
		st.Closed = true
	}
	if c.HasOp(OpRecourse) && len(st.PastHolders) == 0 {
		st.RecoursedToEnd = true
	}

	// The waiting state depends on the tip only: a later block of any kind
	// answers or supersedes an open request.
	tip := c.Tip()
	switch tip.Op {
	case OpRequestToAccept:
		if !deadlinePassed(reqToAcceptAt, now, dl.Accept) {
			st.Waiting = models.WaitingForAcceptance
		}
	case OpRequestToPay:
		if reqToPay != nil && !deadlinePassed(payBase, now, dl.Payment) {
			st.Waiting = models.WaitingForPayment
			st.PaymentInfo = &models.PaymentInfo{
				Buyer:       st.Drawee,
				Seller:      st.Holder(),
				Sum:         st.Sum,
				Currency:    reqToPay.Currency,
				RequestedAt: reqToPayAt,
				Deadline:    payBase + int64(dl.Payment.Seconds()),
			}
		}
	case OpOfferToSell:
		if offer != nil && !deadlinePassed(offerAt, now, dl.Payment) {
			st.Waiting = models.WaitingForSale
			st.PaymentInfo = &models.PaymentInfo{
				Buyer:          offer.Buyer,
				Seller:         offer.Seller,
				Sum:            offer.Sum,
				Currency:       offer.Currency,
				PaymentAddress: offer.PaymentAddress,
				RequestedAt:    offerAt,
				Deadline:       offerAt + int64(dl.Payment.Seconds()),
			}
		}
	case OpRequestRecourse:
		if recourseReq != nil && !deadlinePassed(recourseReqAt, now, dl.Recourse) {
			st.Waiting = models.WaitingForRecoursePayment
			st.RecourseInfo = &models.RecourseInfo{
				Recourser:   recourseReq.Recourser,
				Recoursee:   recourseReq.Recoursee,
				Sum:         recourseReq.Sum,
				Currency:    recourseReq.Currency,
				Reason:      recourseReq.Reason,
				RequestedAt: recourseReqAt,
				Deadline:    recourseReqAt + int64(dl.Recourse.Seconds()),
			}
		}
	}

	st.BlockHeight = uint64(len(c.Blocks))
	st.LatestBlockHash = tip.Hash
	return st, nil
}

// pastHolders lists the identified holders the current one can recourse
// against, most recent first. Holders installed by recourse are ignored (a
// recoursee regains the bill, it is not a fresh endorsement), as are anonymous
// holders (they cannot be recoursed against). Liability only runs backwards:
// the walk starts at the current holder's own last non-recourse holding, so
// whoever held the bill after that point is never listed. The drawer counts
// as the first holder unless the bill is self-drafted on the drawee.
func pastHolders(st *models.BillState, changes []holderChange) []models.BillParticipant {
	current := st.Holder().NodeID
	seen := map[string]bool{current: true}
	var out []models.BillParticipant

	add := func(p models.BillParticipant) {
		if !p.Identified() || seen[p.NodeID] {
			return
		}
		seen[p.NodeID] = true
		out = append(out, p)
	}

	// Holders newest to oldest, recourse changes skipped; the payee held the
	// bill before any change.
	holders := make([]models.BillParticipant, 0, len(changes)+1)
	for i := len(changes) - 1; i >= 0; i-- {
		if changes[i].recourse {
			continue
		}
		holders = append(holders, changes[i].holder)
	}
	holders = append(holders, st.Payee)

	found := false
	for _, h := range holders {
		if !found {
			found = h.NodeID == current
			continue
		}
		add(h)
	}
	if st.Drawer.NodeID != st.Drawee.NodeID {
		add(st.Drawer)
	}
	return out
}

// participantForSigner resolves a signing node ID to its richest known
// participant record in the chain so far.
func participantForSigner(nodeID string, changes []holderChange, st *models.BillState) models.BillParticipant {
	for i := len(changes) - 1; i >= 0; i-- {
		if changes[i].holder.NodeID == nodeID {
			return changes[i].holder
		}
	}
	for _, p := range []models.BillParticipant{st.Drawer, st.Drawee, st.Payee} {
		if p.NodeID == nodeID {
			return p
		}
	}
	return models.NewAnonymousParticipant(nodeID)
}

// paymentDeadlineBase returns the instant a payment window starts counting
// from: the request itself, or the end of the maturity date's day if the
// request came earlier.
func paymentDeadlineBase(reqToPayAt, maturityDate int64) int64 {
	endOfMaturityDay := maturityDate - (maturityDate % 86400) + 86399
	if reqToPayAt < endOfMaturityDay {
		return endOfMaturityDay
	}
	return reqToPayAt
}

func deadlinePassed(since, now int64, window time.Duration) bool {
	return now > since+int64(window.Seconds())
}
