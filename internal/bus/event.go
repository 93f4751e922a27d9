package bus

import "time"

// Event kinds published by the daemon. Subscribers filter by prefix, so the
// part before the dot is the namespace.
const (
	KindMessageSending    = "message.sending"
	KindMessageSendAck    = "message.send_ack"
	KindMessageSendFailed = "message.send_failed"
	KindMessageReceived   = "message.received"

	KindNotice = "notice.transport"

	KindInboundSMS       = "inbound.sms"
	KindInboundBluetooth = "inbound.bluetooth"
	KindInboundPush      = "inbound.push"

	KindLinkChanged = "bluetooth.link_changed"
	KindActionTaken = "action.taken"
)

// Event is one published occurrence. ID and Timestamp are assigned by
// Publish when left empty.
type Event struct {
	ID        string
	Kind      string
	Timestamp time.Time
	Payload   any
}
