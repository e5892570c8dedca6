// Package tcsim provides an in-memory Transceiver backed by a scriptable
// port partner, for exercising the policy engine without hardware.
package tcsim

import (
	"sync"

	ucpd "github.com/quoll/go-ucpd"
	"github.com/quoll/go-ucpd/pdmsg"
)

// Port is a simulated Type-C port controller. The test script plays the
// role of the partner: it attaches, queues messages and inspects what the
// engine transmitted. All methods are safe for concurrent use.
type Port struct {
	mu sync.Mutex

	alerts []ucpd.Alert
	rx     []pdmsg.Message

	cc1, cc2    ucpd.CC
	partnerVbus bool

	role      ucpd.RoleMode
	pull      ucpd.PullMode
	polarity  ucpd.Polarity
	power     pdmsg.PowerRole
	data      pdmsg.DataRole
	rxEnabled bool
	vbusOut   bool
	vconn     bool

	partnerID uint8

	sent       []pdmsg.Message
	hardResets int
	pdResets   int
	inits      int

	// failNextTx makes that many upcoming transmissions report failure.
	failNextTx int

	onTransmit func(pdmsg.Message)
	wake       func()
}

// New returns an unattached simulated port.
func New() *Port {
	return &Port{}
}

// SetWake registers the function called whenever the partner script queues
// new events, typically the session's Interrupt method.
func (p *Port) SetWake(fn func()) {
	p.mu.Lock()
	p.wake = fn
	p.mu.Unlock()
}

// OnTransmit registers a hook invoked, outside the port lock, for every
// message the engine successfully transmits. Scripts use it to reply in
// order.
func (p *Port) OnTransmit(fn func(pdmsg.Message)) {
	p.mu.Lock()
	p.onTransmit = fn
	p.mu.Unlock()
}

func (p *Port) wakeLocked() {
	if p.wake != nil {
		p.wake()
	}
}

// Transceiver implementation.

func (p *Port) Init() error {
	p.mu.Lock()
	p.inits++
	p.mu.Unlock()
	return nil
}

func (p *Port) SampleCC() (ucpd.CC, ucpd.CC, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cc1, p.cc2, nil
}

func (p *Port) SetCC(role ucpd.RoleMode) error {
	p.mu.Lock()
	p.role = role
	p.mu.Unlock()
	return nil
}

func (p *Port) SetPull(pull ucpd.PullMode) error {
	p.mu.Lock()
	p.pull = pull
	p.mu.Unlock()
	return nil
}

func (p *Port) SetPolarity(pol ucpd.Polarity) error {
	p.mu.Lock()
	p.polarity = pol
	p.mu.Unlock()
	return nil
}

func (p *Port) SetRxEnable(on bool) error {
	p.mu.Lock()
	p.rxEnabled = on
	p.mu.Unlock()
	return nil
}

func (p *Port) SetMsgHeader(power pdmsg.PowerRole, data pdmsg.DataRole) error {
	p.mu.Lock()
	p.power, p.data = power, data
	p.mu.Unlock()
	return nil
}

func (p *Port) SetVbus(on bool) error {
	p.mu.Lock()
	p.vbusOut = on
	p.mu.Unlock()
	return nil
}

func (p *Port) SetVconn(on bool) error {
	p.mu.Lock()
	p.vconn = on
	p.mu.Unlock()
	return nil
}

func (p *Port) Transmit(m pdmsg.Message) error {
	p.mu.Lock()
	ok := p.failNextTx == 0
	if !ok {
		p.failNextTx--
	} else {
		p.sent = append(p.sent, m)
	}
	p.alerts = append(p.alerts, ucpd.Alert{Events: ucpd.EventTx, TxOK: ok})
	hook := p.onTransmit
	p.wakeLocked()
	p.mu.Unlock()
	if ok && hook != nil {
		hook(m)
	}
	return nil
}

func (p *Port) TransmitHardReset() error {
	p.mu.Lock()
	p.hardResets++
	p.mu.Unlock()
	return nil
}

func (p *Port) ResetPD() error {
	p.mu.Lock()
	p.pdResets++
	p.rx = nil
	p.mu.Unlock()
	return nil
}

func (p *Port) Receive() (pdmsg.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.rx) == 0 {
		return pdmsg.Message{}, ucpd.ErrRxEmpty
	}
	m := p.rx[0]
	p.rx = p.rx[1:]
	return m, nil
}

func (p *Port) ReadAlert() (ucpd.Alert, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.alerts) == 0 {
		return ucpd.Alert{}, nil
	}
	a := p.alerts[0]
	p.alerts = p.alerts[1:]
	return a, nil
}

func (p *Port) VbusPresent() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vbusOut || p.partnerVbus
}

func (p *Port) IRQPending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.alerts) > 0
}

// Partner script helpers.

// Attach simulates a partner attach: the CC lines take the given
// terminations and the resolved state is reported through a CC alert.
func (p *Port) Attach(cc ucpd.CCState, cc1, cc2 ucpd.CC, vbus bool) {
	p.mu.Lock()
	p.cc1, p.cc2 = cc1, cc2
	p.partnerVbus = vbus
	p.alerts = append(p.alerts, ucpd.Alert{Events: ucpd.EventCC, CC: cc})
	p.wakeLocked()
	p.mu.Unlock()
}

// Detach opens both CC lines and drops VBUS.
func (p *Port) Detach() {
	p.mu.Lock()
	p.cc1, p.cc2 = ucpd.CCOpen, ucpd.CCOpen
	p.partnerVbus = false
	p.alerts = append(p.alerts, ucpd.Alert{Events: ucpd.EventCC})
	p.wakeLocked()
	p.mu.Unlock()
}

// SetVbusPresent sets whether the partner is sourcing VBUS.
func (p *Port) SetVbusPresent(on bool) {
	p.mu.Lock()
	p.partnerVbus = on
	p.mu.Unlock()
}

// PartnerSend queues a message from the partner, stamping it with the
// partner's rolling message ID.
func (p *Port) PartnerSend(m pdmsg.Message) {
	p.mu.Lock()
	m.SetID(p.partnerID)
	p.partnerID = (p.partnerID + 1) & 7
	p.rx = append(p.rx, m)
	p.alerts = append(p.alerts, ucpd.Alert{Events: ucpd.EventRx})
	p.wakeLocked()
	p.mu.Unlock()
}

// PartnerHardReset delivers a hard reset ordered set from the partner.
func (p *Port) PartnerHardReset() {
	p.mu.Lock()
	p.partnerID = 0
	p.alerts = append(p.alerts, ucpd.Alert{Events: ucpd.EventResetReceived})
	p.wakeLocked()
	p.mu.Unlock()
}

// FailNextTransmissions makes the next n transmissions report failure, as
// if GoodCRC never arrived.
func (p *Port) FailNextTransmissions(n int) {
	p.mu.Lock()
	p.failNextTx = n
	p.mu.Unlock()
}

// Sent returns a copy of every message the engine transmitted successfully,
// oldest first.
func (p *Port) Sent() []pdmsg.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]pdmsg.Message, len(p.sent))
	copy(out, p.sent)
	return out
}

// LastSent returns the most recently transmitted message and true, or false
// if nothing was sent.
func (p *Port) LastSent() (pdmsg.Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sent) == 0 {
		return pdmsg.Message{}, false
	}
	return p.sent[len(p.sent)-1], true
}

// ClearSent discards the transmit log.
func (p *Port) ClearSent() {
	p.mu.Lock()
	p.sent = nil
	p.mu.Unlock()
}

// HardResets returns how many hard reset ordered sets the engine sent.
func (p *Port) HardResets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hardResets
}

// Vconn reports whether the engine is sourcing VCONN.
func (p *Port) Vconn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vconn
}

// SourcingVbus reports whether the engine is sourcing VBUS.
func (p *Port) SourcingVbus() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vbusOut
}

// Pull returns the termination the engine forced last, if any.
func (p *Port) Pull() ucpd.PullMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pull
}

// Polarity returns the polarity the engine selected.
func (p *Port) Polarity() ucpd.Polarity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polarity
}

// MsgHeader returns the roles the engine last programmed for GoodCRC
// replies.
func (p *Port) MsgHeader() (pdmsg.PowerRole, pdmsg.DataRole) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.power, p.data
}
