package blockchain

import (
	"encoding/json"

	"github.com/BitcreditProtocol/E-Bill/models"
)

// OpCode tags the action a block carries. The set is a fixed, versioned
// protocol; adding a variant requires bumping PayloadVersion.
type OpCode string

const (
	OpIssue               OpCode = "issue"
	OpEndorse             OpCode = "endorse"
	OpBlankEndorse        OpCode = "blank_endorse"
	OpMint                OpCode = "mint"
	OpRequestToAccept     OpCode = "request_to_accept"
	OpAccept              OpCode = "accept"
	OpRejectToAccept      OpCode = "reject_to_accept"
	OpRequestToPay        OpCode = "request_to_pay"
	OpPay                 OpCode = "pay"
	OpRejectToPay         OpCode = "reject_to_pay"
	OpOfferToSell         OpCode = "offer_to_sell"
	OpSell                OpCode = "sell"
	OpRejectToBuy         OpCode = "reject_to_buy"
	OpRequestRecourse     OpCode = "request_recourse"
	OpRecourse            OpCode = "recourse"
	OpRejectToPayRecourse OpCode = "reject_to_pay_recourse"
)

// Action is the closed set of bill operations. Every implementation is a
// payload struct below; Validator and replay switch over them exhaustively.
type Action interface {
	Op() OpCode
}

// IssueData opens a chain. It carries the full first version of the bill so
// every later state can be re-derived from the chain alone.
type IssueData struct {
	BillID         string                 `json:"bill_id"`
	Drawer         models.BillParticipant `json:"drawer"`
	Drawee         models.BillParticipant `json:"drawee"`
	Payee          models.BillParticipant `json:"payee"`
	Sum            uint64                 `json:"sum"`
	Currency       string                 `json:"currency"`
	IssueDate      int64                  `json:"issue_date"`
	MaturityDate   int64                  `json:"maturity_date"`
	PlaceOfIssuing string                 `json:"place_of_issuing,omitempty"`
	PlaceOfPayment string                 `json:"place_of_payment,omitempty"`
}

type EndorseData struct {
	Endorsee models.BillParticipant `json:"endorsee"`
}

// BlankEndorseData transfers the bill to an anonymous endorsee that only
// discloses an addressing key.
type BlankEndorseData struct {
	Endorsee models.BillParticipant `json:"endorsee"`
}

type MintData struct {
	Endorsee models.BillParticipant `json:"endorsee"`
}

type RequestToAcceptData struct {
	Requester models.BillParticipant `json:"requester"`
}

type AcceptData struct {
	Accepter models.BillParticipant `json:"accepter"`
}

type RejectToAcceptData struct {
	Rejecter models.BillParticipant `json:"rejecter"`
}

type RequestToPayData struct {
	Requester models.BillParticipant `json:"requester"`
	Currency  string                 `json:"currency"`
}

type PayData struct {
	Payer    models.BillParticipant `json:"payer"`
	Sum      uint64                 `json:"sum"`
	Currency string                 `json:"currency"`
}

type RejectToPayData struct {
	Rejecter models.BillParticipant `json:"rejecter"`
}

type OfferToSellData struct {
	Buyer          models.BillParticipant `json:"buyer"`
	Seller         models.BillParticipant `json:"seller"`
	Sum            uint64                 `json:"sum"`
	Currency       string                 `json:"currency"`
	PaymentAddress string                 `json:"payment_address"`
}

// SellData completes an open offer; its fields must repeat the offer exactly.
type SellData struct {
	Buyer          models.BillParticipant `json:"buyer"`
	Seller         models.BillParticipant `json:"seller"`
	Sum            uint64                 `json:"sum"`
	Currency       string                 `json:"currency"`
	PaymentAddress string                 `json:"payment_address"`
}

type RejectToBuyData struct {
	Rejecter models.BillParticipant `json:"rejecter"`
}

type RequestRecourseData struct {
	Recourser models.BillParticipant `json:"recourser"`
	Recoursee models.BillParticipant `json:"recoursee"`
	Sum       uint64                 `json:"sum"`
	Currency  string                 `json:"currency"`
	Reason    models.RecourseReason  `json:"reason"`
}

// RecourseData completes an open recourse request; its fields must repeat the
// request exactly.
type RecourseData struct {
	Recourser models.BillParticipant `json:"recourser"`
	Recoursee models.BillParticipant `json:"recoursee"`
	Sum       uint64                 `json:"sum"`
	Currency  string                 `json:"currency"`
	Reason    models.RecourseReason  `json:"reason"`
}

type RejectToPayRecourseData struct {
	Rejecter models.BillParticipant `json:"rejecter"`
}

func (d *IssueData) Op() OpCode               { return OpIssue }
func (d *EndorseData) Op() OpCode             { return OpEndorse }
func (d *BlankEndorseData) Op() OpCode        { return OpBlankEndorse }
func (d *MintData) Op() OpCode                { return OpMint }
func (d *RequestToAcceptData) Op() OpCode     { return OpRequestToAccept }
func (d *AcceptData) Op() OpCode              { return OpAccept }
func (d *RejectToAcceptData) Op() OpCode      { return OpRejectToAccept }
func (d *RequestToPayData) Op() OpCode        { return OpRequestToPay }
func (d *PayData) Op() OpCode                 { return OpPay }
func (d *RejectToPayData) Op() OpCode         { return OpRejectToPay }
func (d *OfferToSellData) Op() OpCode         { return OpOfferToSell }
func (d *SellData) Op() OpCode                { return OpSell }
func (d *RejectToBuyData) Op() OpCode         { return OpRejectToBuy }
func (d *RequestRecourseData) Op() OpCode     { return OpRequestRecourse }
func (d *RecourseData) Op() OpCode            { return OpRecourse }
func (d *RejectToPayRecourseData) Op() OpCode { return OpRejectToPayRecourse }

// PayloadVersion is the current block payload schema version. Historical
// chains keep replaying because decoding switches on the version found in the
// block, not on this constant.
const PayloadVersion = 1

type payloadEnvelope struct {
	Version int             `json:"version"`
	Op      OpCode          `json:"op"`
	Data    json.RawMessage `json:"data"`
}

// EncodeAction serializes an action into the versioned payload carried by a
// block.
func EncodeAction(a Action) ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return json.Marshal(payloadEnvelope{Version: PayloadVersion, Op: a.Op(), Data: data})
}

// DecodeAction deserializes a block payload back into its concrete action.
func DecodeAction(payload []byte) (Action, error) {
	var env payloadEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, structuralErr("payload not decodable: %v", err)
	}
	if env.Version != PayloadVersion {
		return nil, structuralErr("unsupported payload version %d", env.Version)
	}

	var a Action
	switch env.Op {
	case OpIssue:
		a = &IssueData{}
	case OpEndorse:
		a = &EndorseData{}
	case OpBlankEndorse:
		a = &BlankEndorseData{}
	case OpMint:
		a = &MintData{}
	case OpRequestToAccept:
		a = &RequestToAcceptData{}
	case OpAccept:
		a = &AcceptData{}
	case OpRejectToAccept:
		a = &RejectToAcceptData{}
	case OpRequestToPay:
		a = &RequestToPayData{}
	case OpPay:
		a = &PayData{}
	case OpRejectToPay:
		a = &RejectToPayData{}
	case OpOfferToSell:
		a = &OfferToSellData{}
	case OpSell:
		a = &SellData{}
	case OpRejectToBuy:
		a = &RejectToBuyData{}
	case OpRequestRecourse:
		a = &RequestRecourseData{}
	case OpRecourse:
		a = &RecourseData{}
	case OpRejectToPayRecourse:
		a = &RejectToPayRecourseData{}
	default:
		return nil, structuralErr("unknown op code %q", env.Op)
	}

	if err := json.Unmarshal(env.Data, a); err != nil {
		return nil, structuralErr("payload for %s not decodable: %v", env.Op, err)
	}
	return a, nil
}

func (o OpCode) String() string { return string(o) }

// Valid reports whether the op code is part of the protocol.
func (o OpCode) Valid() bool {
	switch o {
	case OpIssue, OpEndorse, OpBlankEndorse, OpMint, OpRequestToAccept, OpAccept,
		OpRejectToAccept, OpRequestToPay, OpPay, OpRejectToPay, OpOfferToSell,
		OpSell, OpRejectToBuy, OpRequestRecourse, OpRecourse, OpRejectToPayRecourse:
		return true
	}
	return false
}
