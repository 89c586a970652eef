package blockchain

import (
	"github.com/BitcreditProtocol/E-Bill/models"
)

// Validate decides whether candidate may legally extend the chain. It runs
// identically for locally authored and remotely received blocks; a node
// accepts a remote block exactly when it would have accepted producing that
// block itself.
//
// Checks run in order: block structure and signature, linkage against the
// tip, legality of the action in the replayed state, and the signer's role.
// None of them mutate the chain.
func Validate(candidate *Block, c *Chain, now int64, dl Deadlines) error {
	if err := candidate.Verify(); err != nil {
		return err
	}
	if candidate.BillID != c.BillID() {
		return structuralErr("block belongs to bill %s, chain to bill %s", candidate.BillID, c.BillID())
	}
	if c.ContainsHash(candidate.Hash) {
		return ErrDuplicateBlock
	}

	tip := c.Tip()
	if candidate.PrevHash != tip.Hash {
		if c.ContainsHash(candidate.PrevHash) {
			return ErrFork
		}
		return sequenceErr("block links to unknown predecessor %s", candidate.PrevHash)
	}
	if candidate.Seq != tip.Seq+1 {
		return sequenceErr("expected sequence %d, got %d", tip.Seq+1, candidate.Seq)
	}

	st, err := Replay(c, now, dl)
	if err != nil {
		return err
	}
	action, err := candidate.Action()
	if err != nil {
		return err
	}

	return validateAction(action, st, tip, candidate.SignerNodeID, now, dl)
}

func validateAction(action Action, st *models.BillState, tip *Block, signer string, now int64, dl Deadlines) error {
	// Terminal states first: nothing extends a closed or fully recoursed
	// chain.
	if st.Paid {
		return legalityErr("bill is already paid")
	}
	if st.Closed {
		return legalityErr("bill was rejected to pay recourse, no further actions allowed")
	}
	if st.RecoursedToEnd {
		return legalityErr("bill was recoursed to the last past holder")
	}
	// An expired recourse request leaves no one to act.
	if tip.Op == OpRequestRecourse && st.Waiting != models.WaitingForRecoursePayment {
		return legalityErr("recourse request expired unanswered")
	}

	holder := st.Holder().NodeID

	switch a := action.(type) {
	case *IssueData:
		return legalityErr("issue is only valid as the first block")

	case *AcceptData:
		if err := billNotBlocked(st); err != nil {
			return err
		}
		if err := notRecourseOnly(st); err != nil {
			return err
		}
		if st.Accepted {
			return legalityErr("bill is already accepted")
		}
		if signer != st.Drawee.NodeID {
			return authErr("only the drawee may accept")
		}

	case *RequestToAcceptData:
		if err := billNotBlocked(st); err != nil {
			return err
		}
		if err := notRecourseOnly(st); err != nil {
			return err
		}
		if st.Accepted {
			return legalityErr("bill is already accepted")
		}
		if st.RequestedToAccept {
			return legalityErr("acceptance was already requested")
		}
		if signer != holder {
			return authErr("only the holder may request acceptance")
		}

	case *RejectToAcceptData:
		if err := billNotBlocked(st); err != nil {
			return err
		}
		if err := notRecourseOnly(st); err != nil {
			return err
		}
		if st.Accepted {
			return legalityErr("bill is already accepted")
		}
		if st.RejectedToAccept {
			return legalityErr("acceptance was already rejected")
		}
		if signer != st.Drawee.NodeID {
			return authErr("only the drawee may reject acceptance")
		}

	case *RequestToPayData:
		if err := billNotBlocked(st); err != nil {
			return err
		}
		if err := notRecourseOnly(st); err != nil {
			return err
		}
		if st.RequestedToPay {
			return legalityErr("payment was already requested")
		}
		if now < st.MaturityDate {
			return legalityErr("bill cannot be requested to pay before its maturity date")
		}
		if signer != holder {
			return authErr("only the holder may request payment")
		}

	case *PayData:
		if st.Waiting != models.WaitingForPayment {
			return legalityErr("bill is not waiting for payment")
		}
		if a.Sum != st.Sum || a.Currency != st.Currency {
			return legalityErr("payment data does not match the bill")
		}
		if signer != st.Drawee.NodeID {
			return authErr("only the drawee may pay")
		}

	case *RejectToPayData:
		if err := notWaitingForSale(st); err != nil {
			return err
		}
		if err := notWaitingForRecourse(st); err != nil {
			return err
		}
		if err := notRecourseOnly(st); err != nil {
			return err
		}
		if !st.RequestedToPay {
			return legalityErr("bill was not requested to pay")
		}
		if st.RejectedToPay {
			return legalityErr("payment was already rejected")
		}
		if signer != st.Drawee.NodeID {
			return authErr("only the drawee may reject payment")
		}

	case *EndorseData:
		if err := billNotBlocked(st); err != nil {
			return err
		}
		if err := notRecourseOnly(st); err != nil {
			return err
		}
		if !a.Endorsee.Identified() {
			return legalityErr("endorse requires an identified endorsee, use blank endorse")
		}
		if signer != holder {
			return authErr("only the holder may endorse")
		}

	case *BlankEndorseData:
		if err := billNotBlocked(st); err != nil {
			return err
		}
		if err := notRecourseOnly(st); err != nil {
			return err
		}
		if a.Endorsee.Identified() {
			return legalityErr("blank endorse requires an anonymous endorsee")
		}
		if signer != holder {
			return authErr("only the holder may endorse")
		}

	case *MintData:
		if err := billNotBlocked(st); err != nil {
			return err
		}
		if err := notRecourseOnly(st); err != nil {
			return err
		}
		if !st.Accepted {
			return legalityErr("bill must be accepted before it can be minted")
		}
		if signer != holder {
			return authErr("only the holder may mint")
		}

	case *OfferToSellData:
		if err := billNotBlocked(st); err != nil {
			return err
		}
		if err := notRecourseOnly(st); err != nil {
			return err
		}
		if signer != holder {
			return authErr("only the holder may offer to sell")
		}

	case *SellData:
		if err := notWaitingForRecourse(st); err != nil {
			return err
		}
		if err := notWaitingForReqToPay(st); err != nil {
			return err
		}
		if err := notRecourseOnly(st); err != nil {
			return err
		}
		if signer != holder {
			return authErr("only the holder may sell")
		}
		if st.Waiting != models.WaitingForSale || st.PaymentInfo == nil {
			return legalityErr("bill is not offered to sell and waiting for payment")
		}
		pi := st.PaymentInfo
		if a.Sum != pi.Sum || a.Currency != pi.Currency ||
			a.PaymentAddress != pi.PaymentAddress ||
			a.Buyer.NodeID != pi.Buyer.NodeID || a.Seller.NodeID != signer {
			return legalityErr("sell data does not match the open offer")
		}

	case *RejectToBuyData:
		if err := notWaitingForRecourse(st); err != nil {
			return err
		}
		if err := notWaitingForReqToPay(st); err != nil {
			return err
		}
		if st.Waiting != models.WaitingForSale || st.PaymentInfo == nil {
			return legalityErr("bill was not offered to sell")
		}
		if signer != st.PaymentInfo.Buyer.NodeID {
			return authErr("only the offered buyer may reject buying")
		}

	case *RequestRecourseData:
		if err := billNotBlocked(st); err != nil {
			return err
		}
		if signer != holder {
			return authErr("only the holder may request recourse")
		}
		if a.Recourser.NodeID != signer {
			return authErr("recourser must be the signer")
		}
		if !isPastHolder(st, a.Recoursee.NodeID) {
			return legalityErr("recoursee is not a past holder of the bill")
		}
		switch a.Reason {
		case models.RecourseReasonAccept:
			if !st.RequestedToAccept {
				return legalityErr("bill was not requested to accept")
			}
			if !st.RejectedToAccept && !st.AcceptanceExpired {
				return legalityErr("acceptance request neither expired nor was rejected")
			}
		case models.RecourseReasonPay:
			if !st.RequestedToPay {
				return legalityErr("bill was not requested to pay")
			}
			if !st.RejectedToPay && !st.PaymentExpired {
				return legalityErr("payment request neither expired nor was rejected")
			}
		default:
			return legalityErr("unknown recourse reason %q", a.Reason)
		}

	case *RecourseData:
		if err := notWaitingForSale(st); err != nil {
			return err
		}
		if err := notWaitingForReqToPay(st); err != nil {
			return err
		}
		if signer != holder {
			return authErr("only the holder may recourse")
		}
		if st.Waiting != models.WaitingForRecoursePayment || st.RecourseInfo == nil {
			return legalityErr("bill is not requested to recourse and waiting for payment")
		}
		ri := st.RecourseInfo
		if a.Sum != ri.Sum || a.Currency != ri.Currency || a.Reason != ri.Reason ||
			a.Recoursee.NodeID != ri.Recoursee.NodeID || a.Recourser.NodeID != signer {
			return legalityErr("recourse data does not match the open request")
		}

	case *RejectToPayRecourseData:
		if err := notWaitingForSale(st); err != nil {
			return err
		}
		if err := notWaitingForReqToPay(st); err != nil {
			return err
		}
		if st.Waiting != models.WaitingForRecoursePayment || st.RecourseInfo == nil {
			return legalityErr("bill was not requested to recourse")
		}
		if signer != st.RecourseInfo.Recoursee.NodeID {
			return authErr("only the recoursee may reject the recourse payment")
		}

	default:
		return structuralErr("unhandled action type %T", action)
	}

	return nil
}

// billNotBlocked rejects actions while an open sale, payment or recourse
// window awaits its counterparty.
func billNotBlocked(st *models.BillState) error {
	if err := notWaitingForSale(st); err != nil {
		return err
	}
	if err := notWaitingForReqToPay(st); err != nil {
		return err
	}
	return notWaitingForRecourse(st)
}

func notWaitingForSale(st *models.BillState) error {
	if st.Waiting == models.WaitingForSale {
		return legalityErr("bill is offered to sell and waiting for payment")
	}
	return nil
}

func notWaitingForReqToPay(st *models.BillState) error {
	if st.Waiting == models.WaitingForPayment {
		return legalityErr("bill is requested to pay and waiting for payment")
	}
	return nil
}

func notWaitingForRecourse(st *models.BillState) error {
	if st.Waiting == models.WaitingForRecoursePayment {
		return legalityErr("bill is in recourse and waiting for payment")
	}
	return nil
}

// notRecourseOnly rejects non-recourse actions once acceptance or payment was
// rejected or expired.
func notRecourseOnly(st *models.BillState) error {
	if st.RejectedToAccept {
		return legalityErr("bill was rejected to accept, only recourse actions remain")
	}
	if st.RejectedToPay {
		return legalityErr("bill was rejected to pay, only recourse actions remain")
	}
	if st.AcceptanceExpired {
		return legalityErr("acceptance request expired, only recourse actions remain")
	}
	if st.PaymentExpired {
		return legalityErr("payment request expired, only recourse actions remain")
	}
	return nil
}

func isPastHolder(st *models.BillState, nodeID string) bool {
	for _, p := range st.PastHolders {
		if p.NodeID == nodeID {
			return true
		}
	}
	return false
}
