// Package ucpd defines high level interfaces and types for implementing a full
// USB Type-C port manager with USB power delivery and alternate mode support.
package ucpd

import (
	"errors"
	"strings"

	"github.com/quoll/go-ucpd/pdmsg"
)

// Event is a set of port events, stored one per bit. Lower bits are higher
// priority.
type Event uint16

// Add adds the events v to the set.
func (e *Event) Add(v Event) {
	*e |= v
}

// Take removes the events v from the set and reports whether any of them
// were present.
func (e *Event) Take(v Event) bool {
	t := *e&v != 0
	*e &= ^v
	return t
}

// Has returns true if any of the events v are in the set.
func (e Event) Has(v Event) bool {
	return e&v != 0
}

func (e Event) String() string {
	if e == EventNone {
		return "none"
	}
	var names []string
	for r := Event(1); r != 0 && r <= eventMax; r <<= 1 {
		if e&r == 0 {
			continue
		}
		switch r {
		case EventResetReceived:
			names = append(names, "hard-reset")
		case EventCC:
			names = append(names, "cc")
		case EventRx:
			names = append(names, "rx")
		case EventTx:
			names = append(names, "tx")
		case EventTimerState:
			names = append(names, "timer-state")
		case EventTimerMux:
			names = append(names, "timer-mux")
		case EventDelayCC:
			names = append(names, "delay-cc")
		case EventContinue:
			names = append(names, "continue")
		}
	}
	return strings.Join(names, "+")
}

const (
	EventNone Event = 0

	// EventResetReceived is set when a hard reset is received from the port
	// partner.
	EventResetReceived Event = 1 << iota >> 1

	// EventCC is set when the CC line state changes.
	EventCC

	// EventRx is set when a message is received and is ready to be read.
	EventRx

	// EventTx is set when the outcome of the last transmission is known.
	EventTx

	// EventTimerState is set when the state timer expires.
	EventTimerState

	// EventTimerMux is set when the multiplexed timer expires.
	EventTimerMux

	// EventDelayCC is set to re-evaluate a CC change that arrived while the
	// port was in a state where detach must not be acted on immediately.
	EventDelayCC

	// EventContinue is set when the current state has more work to do and
	// must be run again without waiting for hardware.
	EventContinue

	eventMax = EventContinue
)

var (
	// ErrTxFailed is returned when a PD transmission fails due to failed
	// CRC check, excessive retries or discarded messages.
	ErrTxFailed = errors.New("tx failed")

	// ErrRxEmpty is returned when receive is called while no message is
	// pending.
	ErrRxEmpty = errors.New("rx empty")
)

// CC is the termination detected on a single CC line.
type CC uint8

const (
	CCOpen CC = iota // line is open/floating
	CCRa             // powered cable/VCONN sink termination
	CCRd             // sink termination
	CCRp             // source termination
)

func (c CC) String() string {
	switch c {
	case CCOpen:
		return "open"
	case CCRa:
		return "Ra"
	case CCRd:
		return "Rd"
	case CCRp:
		return "Rp"
	}
	return "invalid"
}

// RoleMode is the port role a Transceiver is configured to present on its
// CC lines.
type RoleMode uint8

const (
	RoleModeNone RoleMode = iota
	RoleModeDRP           // dual role, toggles between Rp and Rd
	RoleModeDFP           // source only, presents Rp
	RoleModeUFP           // sink only, presents Rd
)

// PullMode is an explicit CC termination override, used during power role
// swaps where the presented pull must change without a detach.
type PullMode uint8

const (
	PullNone PullMode = iota
	PullUp            // present Rp
	PullDown          // present Rd
)

// Polarity selects which CC line carries the PD communication.
type Polarity uint8

const (
	PolarityCC1 Polarity = iota
	PolarityCC2
)

// Orientation is the plug orientation of an attached connection.
type Orientation uint8

const (
	OrientationNone Orientation = iota
	OrientationCC1
	OrientationCC2
)

// CCState describes a resolved connection as reported by the Transceiver
// after its attach detection settles: which line the partner is on, and
// which role the resolution implies for the port.
type CCState uint8

const (
	CCStateNone CCState = 0

	CCStateCC1 CCState = 1 << 0 // partner detected on CC1
	CCStateCC2 CCState = 1 << 1 // partner detected on CC2

	CCStateAsSink      CCState = 1 << 2 // partner presents Rp, port acts as sink
	CCStateAsSource    CCState = 1 << 3 // partner presents Rd, port acts as source
	CCStateAsAccessory CCState = 1 << 4 // Ra on both lines

	ccStateRoleMask = CCStateAsSink | CCStateAsSource | CCStateAsAccessory
)

// Role returns only the role bits of the state.
func (c CCState) Role() CCState {
	return c & ccStateRoleMask
}

// WithRole returns the state with its role bits replaced by role.
func (c CCState) WithRole(role CCState) CCState {
	return (c &^ ccStateRoleMask) | role.Role()
}

// Polarity returns the polarity implied by the line bits.
func (c CCState) Polarity() Polarity {
	if c&CCStateCC1 != 0 {
		return PolarityCC1
	}
	return PolarityCC2
}

// Orientation returns the plug orientation implied by the line bits.
func (c CCState) Orientation() Orientation {
	switch {
	case c&CCStateCC1 != 0:
		return OrientationCC1
	case c&CCStateCC2 != 0:
		return OrientationCC2
	}
	return OrientationNone
}

// Alert is the set of pending hardware events drained from a Transceiver.
type Alert struct {
	// Events holds any of EventCC, EventRx, EventTx and EventResetReceived.
	Events Event

	// TxOK is the outcome of the last transmission. Only valid when Events
	// includes EventTx.
	TxOK bool

	// CC is the resolved connection state. Only valid when Events includes
	// EventCC and the transceiver's toggle has settled; CCStateNone
	// otherwise.
	CC CCState
}

// Transceiver is a USB Type-C port controller: the CC line PHY together with
// its BMC transmitter and receiver. Implementations are not expected to be
// safe for concurrent use; the port manager serializes all calls.
//
// Transmit is asynchronous: it queues the message and the outcome (GoodCRC
// received or retries exhausted) is reported later through ReadAlert with
// EventTx set. Received GoodCRC messages must be consumed by the transceiver
// and never surfaced through Receive.
type Transceiver interface {
	// Init resets the controller to its power on defaults.
	Init() error

	// SampleCC measures the termination currently seen on each CC line.
	SampleCC() (cc1, cc2 CC, err error)

	// SetCC configures attach detection for the given role, starting the
	// DRP toggle if the role requires it.
	SetCC(role RoleMode) error

	// SetPull forces the presented CC termination without re-running attach
	// detection.
	SetPull(pull PullMode) error

	// SetPolarity selects the CC line used for PD communication.
	SetPolarity(pol Polarity) error

	// SetRxEnable enables or disables the BMC receiver and automatic
	// GoodCRC replies.
	SetRxEnable(on bool) error

	// SetMsgHeader sets the power and data role bits the controller uses
	// in its automatic GoodCRC replies.
	SetMsgHeader(power pdmsg.PowerRole, data pdmsg.DataRole) error

	// SetVbus enables or disables VBUS sourcing.
	SetVbus(on bool) error

	// SetVconn enables or disables VCONN sourcing.
	SetVconn(on bool) error

	// Transmit queues a single message for transmission.
	Transmit(m pdmsg.Message) error

	// TransmitHardReset queues hard reset ordered set for transmission.
	TransmitHardReset() error

	// ResetPD resets the PD portion of the controller, clearing its
	// transmit and receive FIFOs and message counters.
	ResetPD() error

	// Receive returns the next pending message, or ErrRxEmpty if there is
	// none.
	Receive() (pdmsg.Message, error)

	// ReadAlert returns and clears the pending hardware events.
	ReadAlert() (Alert, error)

	// VbusPresent reports whether VBUS is above the detection threshold.
	VbusPresent() bool

	// IRQPending reports whether the controller has unserviced events.
	// Checked after each run of the state machine to avoid losing edges.
	IRQPending() bool
}

// Snapshot is the externally visible state of a port, published to the
// Notifier whenever any field changes.
type Snapshot struct {
	PowerRole pdmsg.PowerRole
	DataRole  pdmsg.DataRole

	// CCConnected is true while a partner (or accessory) is attached.
	CCConnected bool

	// PDConnected is true once an explicit PD contract is in place.
	PDConnected bool

	Orientation Orientation

	// VoltageMV and CurrentMA are the negotiated supply levels of the
	// active contract, zero when PDConnected is false.
	VoltageMV uint16
	CurrentMA uint16

	// AltModeEntered is true once the partner has been configured into
	// DisplayPort alternate mode.
	AltModeEntered bool

	// PinSupport is the set of DP pin assignments the partner can accept.
	PinSupport pdmsg.DPPin

	// DPPinAssignment is the pin assignment selected in the DP Configure
	// command, or zero if none was suitable.
	DPPinAssignment pdmsg.DPPin

	// DPStatus is the most recent DP status reported by the partner,
	// either from a Status Update reply or an Attention message.
	DPStatus pdmsg.DPStatus

	// Attention is true for exactly one notification after the partner
	// sends an Attention message.
	Attention bool
}

// Notifier receives port state snapshots. Notify is called from the port
// manager's goroutine and must not block.
type Notifier interface {
	Notify(s Snapshot)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(s Snapshot)

func (f NotifierFunc) Notify(s Snapshot) {
	f(s)
}

// SourceCapability is a single fixed supply capability advertised when the
// port sources power.
type SourceCapability struct {
	VoltageMV uint16
	CurrentMA uint16
}

// PortConfig is the static configuration of a port. The zero value is a
// dual role port advertising 5V/1.5A with data role swap enabled.
type PortConfig struct {
	// Role is the attach detection role. RoleModeNone means RoleModeDRP.
	Role RoleMode

	// TryRole optionally biases a dual role port toward a role after
	// attach, using the Try.SRC/Try.SNK mechanism. RoleModeNone disables
	// the bias.
	TryRole RoleMode

	// SourceCaps are advertised in Source_Capabilities messages, in PDO
	// order. Empty means a single 5V/1.5A capability.
	SourceCaps []SourceCapability

	// NoDualRolePower clears the dual role power bit in advertised PDOs
	// and causes power role swap requests to be rejected.
	NoDualRolePower bool

	// NoDataRoleSwap clears the data role swap bit in advertised PDOs and
	// causes data role swap requests to be rejected.
	NoDataRoleSwap bool

	ExternallyPowered bool
	USBSuspend        bool
	USBComms          bool

	// PeakCurrent is the peak current capability class advertised in the
	// first source PDO, 0 through 3.
	PeakCurrent uint8

	// VconnSupported allows the port to accept VCONN swap requests.
	VconnSupported bool

	// Logf, if set, receives state machine trace lines.
	Logf func(format string, args ...interface{})
}
