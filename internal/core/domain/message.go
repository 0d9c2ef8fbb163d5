package domain

// MessageKind tags the payload of a signaling message.
type MessageKind string

const (
	MessageOffer        MessageKind = "offer"
	MessageAnswer       MessageKind = "answer"
	MessageICECandidate MessageKind = "ice_candidate"
)

// SignalMessage is one negotiation message exchanged on a signaling channel.
// Delivery is best-effort, at-most-once, with no persisted history: only
// currently-subscribed participants observe it.
type SignalMessage struct {
	Kind      MessageKind         `json:"kind"`
	Sender    ParticipantID       `json:"sender"`
	SDP       *SessionDescription `json:"sdp,omitempty"`
	Candidate *ICECandidate       `json:"candidate,omitempty"`
}
