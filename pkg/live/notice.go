package live

// noticeKind classifies escalations from worker goroutines to the
// session orchestrator. Workers never act on failures themselves: they
// report and exit, and the orchestrator decides whether to degrade,
// reconnect or close.
type noticeKind int

const (
	// noticeSendFailed: the uplink could not write to the transport.
	noticeSendFailed noticeKind = iota
	// noticeReceiveFailed: the downlink read loop hit a transport error.
	noticeReceiveFailed
	// noticeSourceFailed: a capture device became unavailable.
	noticeSourceFailed
	// noticeTurnComplete: the model finished a turn; Text holds the
	// assembled turn text for the conversation window.
	noticeTurnComplete
	// noticeToolCall: the server requested a tool invocation.
	noticeToolCall
	// noticeGoAway: the server announced an imminent disconnect.
	noticeGoAway
	// noticeErrorNotice: an in-band service error the orchestrator must
	// classify; source holds the error kind, text the message.
	noticeErrorNotice
)

type notice struct {
	kind   noticeKind
	source string // failed device name, or the error kind for noticeErrorNotice
	text   string // assembled turn text, or the error notice message
	call   *InboundToolCall
	// unsent is the in-flight text message a failed uplink write did not
	// deliver; the orchestrator requeues it for the next connection.
	unsent OutboundMessage
	err    error
}
