package models

type WaitingState string

const (
	WaitingNone               WaitingState = ""
	WaitingForAcceptance      WaitingState = "waiting_for_acceptance"
	WaitingForPayment         WaitingState = "waiting_for_payment"
	WaitingForSale            WaitingState = "waiting_for_sale"
	WaitingForRecoursePayment WaitingState = "waiting_for_recourse_payment"
)

type RecourseReason string

const (
	RecourseReasonAccept RecourseReason = "accept"
	RecourseReasonPay    RecourseReason = "pay"
)

// PaymentInfo describes an open sale or payment window.
type PaymentInfo struct {
	Buyer          BillParticipant `json:"buyer"`
	Seller         BillParticipant `json:"seller"`
	Sum            uint64          `json:"sum"`
	Currency       string          `json:"currency"`
	PaymentAddress string          `json:"payment_address"`
	RequestedAt    int64           `json:"requested_at"`
	Deadline       int64           `json:"deadline"`
}

// RecourseInfo describes an open recourse claim against a prior endorser.
type RecourseInfo struct {
	Recourser   BillParticipant `json:"recourser"`
	Recoursee   BillParticipant `json:"recoursee"`
	Sum         uint64          `json:"sum"`
	Currency    string          `json:"currency"`
	Reason      RecourseReason  `json:"reason"`
	RequestedAt int64           `json:"requested_at"`
	Deadline    int64           `json:"deadline"`
}

// Endorsement is one holder change, for listing purposes.
type Endorsement struct {
	PayToTheOrderOf BillParticipant `json:"pay_to_the_order_of"`
	SignedBy        BillParticipant `json:"signed_by"`
	Timestamp       int64           `json:"timestamp"`
}

// BillState is the replay result of a bill's chain. It is a derived,
// disposable projection; the chain stays the only ground truth.
type BillState struct {
	BillID       string          `json:"bill_id"`
	Drawer       BillParticipant `json:"drawer"`
	Drawee       BillParticipant `json:"drawee"`
	Payee        BillParticipant `json:"payee"`
	Endorsee     *BillParticipant `json:"endorsee,omitempty"`
	Sum          uint64          `json:"sum"`
	Currency     string          `json:"currency"`
	IssueDate    int64           `json:"issue_date"`
	MaturityDate int64           `json:"maturity_date"`

	Accepted          bool `json:"accepted"`
	RequestedToAccept bool `json:"requested_to_accept"`
	RejectedToAccept  bool `json:"rejected_to_accept"`
	AcceptanceExpired bool `json:"acceptance_expired"`
	Paid              bool `json:"paid"`
	RequestedToPay    bool `json:"requested_to_pay"`
	RejectedToPay     bool `json:"rejected_to_pay"`
	PaymentExpired    bool `json:"payment_expired"`

	// RecourseOnly is set once acceptance or payment was rejected or expired;
	// from then on only recourse actions remain legal.
	RecourseOnly   bool `json:"recourse_only"`
	RecoursedToEnd bool `json:"recoursed_to_end"`
	// Closed marks a terminal chain: paid, or recourse payment rejected.
	Closed bool `json:"closed"`

	Waiting      WaitingState  `json:"waiting,omitempty"`
	PaymentInfo  *PaymentInfo  `json:"payment_info,omitempty"`
	RecourseInfo *RecourseInfo `json:"recourse_info,omitempty"`

	// Endorsements lists holder changes, newest first.
	Endorsements []Endorsement `json:"endorsements,omitempty"`
	// PastHolders are the identified previous holders a current holder may
	// recourse against, most recent first.
	PastHolders []BillParticipant `json:"past_holders,omitempty"`

	BlockHeight     uint64 `json:"block_height"`
	LatestBlockHash string `json:"latest_block_hash"`
}

// Holder returns the participant currently entitled to enforce or transfer
// the bill: the latest endorsee, or the payee if it was never endorsed.
func (s *BillState) Holder() BillParticipant {
	if s.Endorsee != nil {
		return *s.Endorsee
	}
	return s.Payee
}

// Participants returns every party involved with the bill so far, deduplicated
// by node ID. This is the fan-out set for block synchronization.
func (s *BillState) Participants() []BillParticipant {
	seen := make(map[string]bool)
	var out []BillParticipant
	add := func(p BillParticipant) {
		if p.NodeID == "" || seen[p.NodeID] {
			return
		}
		seen[p.NodeID] = true
		out = append(out, p)
	}
	add(s.Drawer)
	add(s.Drawee)
	add(s.Payee)
	if s.Endorsee != nil {
		add(*s.Endorsee)
	}
	for _, e := range s.Endorsements {
		add(e.PayToTheOrderOf)
		add(e.SignedBy)
	}
	if s.PaymentInfo != nil {
		add(s.PaymentInfo.Buyer)
		add(s.PaymentInfo.Seller)
	}
	if s.RecourseInfo != nil {
		add(s.RecourseInfo.Recourser)
		add(s.RecourseInfo.Recoursee)
	}
	return out
}
