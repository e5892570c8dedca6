// Package tcpe provides an implementation of a USB Type-C port policy
// engine covering attach detection, power delivery contract negotiation for
// both power roles, role swaps and DisplayPort alternate mode entry.
package tcpe

import (
	"context"
	"sync"

	ucpd "github.com/quoll/go-ucpd"
	"github.com/quoll/go-ucpd/pdmsg"
)

// CapabilityEvaluator is an interface that wraps the method
// EvaluateCapabilities.
type CapabilityEvaluator interface {
	// EvaluateCapabilities is called every time the policy engine receives
	// a list of power capabilities from the source partner. It returns the
	// 1-based position of the PDO to request, or 0 if none is acceptable.
	//
	// The passed PDO slice may be modified by the evaluator but must not be
	// stored past the call to this method.
	EvaluateCapabilities([]pdmsg.PDO) uint8
}

// CapabilityEvaluatorFunc is an adapter to allow the use of ordinary
// functions as CapabilityEvaluator.
type CapabilityEvaluatorFunc func([]pdmsg.PDO) uint8

// EvaluateCapabilities implements CapabilityEvaluator interface.
func (f CapabilityEvaluatorFunc) EvaluateCapabilities(pdos []pdmsg.PDO) uint8 {
	return f(pdos)
}

type txStatus uint8

const (
	txIdle txStatus = iota
	txBusy
	txSuccess
	txFailed
)

const invalidRxID = 0xff

// flagEvents are the events a waiting state reacts to; everything else is
// consumed by the dispatcher itself.
const flagEvents = ucpd.EventRx | ucpd.EventTimerState | ucpd.EventTimerMux

// maxTicksPerWake bounds the state machine re-runs per wakeup so a stuck
// continue flag cannot starve the loop.
const maxTicksPerWake = 1024

// Session is a single Type-C port: it owns the transceiver and runs the
// cooperative state machine that reacts to its events. All state is
// confined to the Run goroutine; the only concurrent entry points are
// Interrupt, the swap requests and the callback setters.
type Session struct {
	port ucpd.Transceiver
	cfg  ucpd.PortConfig

	state        ConnState
	subState     uint8
	scratch      uint8 // per-state counter, reset on every transition
	workContinue ucpd.Event

	ccState  ucpd.CCState
	cc1, cc2 ucpd.CC
	debounce int

	// vbusBegin records whether VBUS was already up when attach detection
	// started, which means the partner may hold an old contract that a soft
	// reset can recover faster than a hard reset.
	vbusBegin bool

	tryRoleComplete bool
	pdSupported     bool
	vconnOn         bool

	notify    ucpd.Snapshot
	notifyCmp ucpd.Snapshot

	msgID    uint8
	lastRxID uint8
	txState  txStatus
	rec      pdmsg.Message
	send     pdmsg.Message

	// srcCaps is the last received Source_Capabilities message, kept for
	// building the request.
	srcCaps pdmsg.Message

	// partnerCaps is the partner's sink capability list; index 0 zero means
	// unknown, all ones means the partner never answered Get_Sink_Cap.
	partnerCaps [pdmsg.MaxDataObjects]uint32

	posPower uint8
	outputMV uint16
	outputMA uint16

	vdmState     vdmPhase
	vdmSubState  uint8
	vdmID        uint32
	vdmSVIDs     []uint16
	dpCaps       pdmsg.DPModeCaps
	dpStatus     pdmsg.DPStatus

	hardrstCount int
	capsCounter  int

	timers timerFacility
	wake   chan struct{}

	pending struct {
		mu   sync.Mutex
		swap pdmsg.Type
	}

	callbacks struct {
		mu           sync.Mutex
		capEvaluator CapabilityEvaluator
		notifier     ucpd.Notifier
	}

	logf func(format string, args ...interface{})
}

// New creates a session for the given transceiver. Run must be called for
// the port to operate.
func New(port ucpd.Transceiver, cfg ucpd.PortConfig) *Session {
	if cfg.Role == ucpd.RoleModeNone {
		cfg.Role = ucpd.RoleModeDRP
	}
	if len(cfg.SourceCaps) == 0 {
		cfg.SourceCaps = []ucpd.SourceCapability{{VoltageMV: 5000, CurrentMA: 1500}}
	}
	s := &Session{
		port:     port,
		cfg:      cfg,
		lastRxID: invalidRxID,
		wake:     make(chan struct{}, 1),
		logf:     cfg.Logf,
	}
	s.timers = newWallTimers(s.Interrupt)
	return s
}

// SetCapabilityEvaluator sets the capability evaluator to use when sink
// power is negotiated. With a nil evaluator the highest 5V profile is
// requested.
func (s *Session) SetCapabilityEvaluator(ce CapabilityEvaluator) {
	s.callbacks.mu.Lock()
	s.callbacks.capEvaluator = ce
	s.callbacks.mu.Unlock()
}

// SetNotifier sets the notifier that receives port state snapshots. Pass
// nil to remove the existing one.
func (s *Session) SetNotifier(n ucpd.Notifier) {
	s.callbacks.mu.Lock()
	s.callbacks.notifier = n
	s.callbacks.mu.Unlock()
}

// Interrupt wakes the Run loop to service transceiver events. It is safe to
// call from any goroutine, including interrupt handlers.
func (s *Session) Interrupt() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// RequestPowerRoleSwap asks the engine to initiate a power role swap the
// next time the port is in a ready state.
func (s *Session) RequestPowerRoleSwap() {
	s.requestSwap(pdmsg.TypePRSwap)
}

// RequestDataRoleSwap asks the engine to initiate a data role swap the next
// time the port is in a ready state.
func (s *Session) RequestDataRoleSwap() {
	s.requestSwap(pdmsg.TypeDRSwap)
}

// RequestVconnSwap asks the engine to initiate a VCONN swap the next time
// the port is in a ready state.
func (s *Session) RequestVconnSwap() {
	s.requestSwap(pdmsg.TypeVconnSwap)
}

func (s *Session) requestSwap(t pdmsg.Type) {
	s.pending.mu.Lock()
	s.pending.swap = t
	s.pending.mu.Unlock()
	s.Interrupt()
}

func (s *Session) takePendingSwap() pdmsg.Type {
	s.pending.mu.Lock()
	t := s.pending.swap
	s.pending.swap = 0
	s.pending.mu.Unlock()
	return t
}

func (s *Session) evalCaps(pdos []pdmsg.PDO) (uint8, bool) {
	s.callbacks.mu.Lock()
	defer s.callbacks.mu.Unlock()
	if s.callbacks.capEvaluator != nil {
		return s.callbacks.capEvaluator.EvaluateCapabilities(pdos), true
	}
	return 0, false
}

// Run starts the event loop of the session and blocks until ctx is done.
// Only one call to Run must be in progress at any given time.
func (s *Session) Run(ctx context.Context) {
	s.enterUnattached()
	for s.tick() {
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
		for i := 0; s.tick(); i++ {
			if i >= maxTicksPerWake {
				s.Interrupt()
				break
			}
		}
	}
}

// tick runs a single pass of the state machine and reports whether another
// pass is needed without waiting for hardware.
func (s *Session) tick() bool {
	evt := s.collectEvents()
	if evt == ucpd.EventNone {
		return s.port.IRQPending()
	}
	if s.logf != nil {
		s.logf("tick %s evt=%s sub=%d", s.state, evt, s.subState)
	}

	if s.notify.CCConnected && evt.Has(ucpd.EventCC|ucpd.EventDelayCC) {
		s.tryDetach()
	}

	if evt.Has(ucpd.EventRx) {
		if !s.fetchMessage() {
			evt &= ^ucpd.EventRx
		}
	}
	if evt.Has(ucpd.EventTx) && s.txState == txSuccess {
		s.msgID = (s.msgID + 1) & 7
	}

	s.dispatch(evt)

	return s.workContinue != ucpd.EventNone || s.port.IRQPending()
}

// collectEvents drains the transceiver alert, folds in timer expiries and
// the continue flags left by the previous pass.
func (s *Session) collectEvents() ucpd.Event {
	var evt ucpd.Event

	al, err := s.port.ReadAlert()
	if err != nil {
		if s.logf != nil {
			s.logf("alert read: %v", err)
		}
	} else {
		if al.CC != ucpd.CCStateNone {
			s.ccState = al.CC
		}
		if al.Events.Has(ucpd.EventTx) {
			if al.TxOK {
				s.txState = txSuccess
			} else {
				s.txState = txFailed
			}
		}
		if al.Events.Has(ucpd.EventResetReceived) {
			s.port.ResetPD()
			s.execHardReset()
		}
		evt |= al.Events & (ucpd.EventCC | ucpd.EventRx | ucpd.EventTx)
	}

	if s.timers.take(timerState) {
		evt |= ucpd.EventTimerState
	}
	if s.timers.take(timerMux) {
		evt |= ucpd.EventTimerMux
	}

	// a locally requested swap is only serviced from a ready state
	if s.state == StateSrcReady || s.state == StateSnkReady {
		s.pending.mu.Lock()
		if s.pending.swap != 0 {
			evt |= ucpd.EventContinue
		}
		s.pending.mu.Unlock()
	}

	evt |= s.workContinue
	s.workContinue = ucpd.EventNone
	return evt
}

// fetchMessage reads the pending message into the session, dropping
// duplicate retransmissions and rerouting Soft_Reset regardless of state.
func (s *Session) fetchMessage() bool {
	m, err := s.port.Receive()
	if err != nil {
		return false
	}
	if m.ID() == s.lastRxID {
		return false
	}
	s.lastRxID = m.ID()
	s.rec = m
	if m.IsControl(pdmsg.TypeSoftReset) {
		if s.notify.PowerRole == pdmsg.PowerRoleSource {
			s.setState(StateSrcSoftReset)
		} else {
			s.setState(StateSnkSoftReset)
		}
	}
	return true
}

func (s *Session) dispatch(evt ucpd.Event) {
	switch s.state {
	case StateDisabled:
	case StateErrorRecovery:
		s.enterUnattached()
	case StateUnattached:
		s.stateUnattached(evt)
	case StateAttachWaitSink:
		s.stateAttachWaitSink(evt)
	case StateAttachWaitSource:
		s.stateAttachWaitSource(evt)
	case StateAttachedSource:
		s.stateAttachedSource(evt)
	case StateAttachedSink:
		s.stateAttachedSink(evt)
	case StateAttachTrySrc:
		s.stateTryAttach(evt, ucpd.RoleModeDFP)
	case StateAttachTrySnk:
		s.stateTryAttach(evt, ucpd.RoleModeUFP)
	case StateAttachWaitAudioAcc:
		s.stateAttachWaitAudioAcc(evt)
	case StateAttachedAudioAcc:
		s.stateAttachedAudioAcc(evt)

	case StateSrcStartup:
		s.stateSrcStartup(evt)
	case StateSrcDiscovery:
		s.stateSrcDiscovery(evt)
	case StateSrcSendCaps:
		s.stateSrcSendCaps(evt)
	case StateSrcNegotiateCap:
		s.stateSrcNegotiateCap(evt)
	case StateSrcTransitionSupply:
		s.stateSrcTransitionSupply(evt)
	case StateSrcCapResponse:
		s.stateSrcCapResponse(evt)
	case StateSrcTransitionDefault:
		s.stateSrcTransitionDefault(evt)
	case StateSrcReady:
		s.stateSrcReady(evt)
	case StateSrcGetSinkCaps:
		s.stateSrcGetSinkCaps(evt)
	case StateSrcSendHardReset:
		s.stateSendHardReset(evt, StateSrcTransitionDefault)
	case StateSrcSendSoftReset:
		s.stateSendSoftReset(evt)
	case StateSrcSoftReset:
		s.stateSoftResetReceived(evt)

	case StateSnkStartup:
		s.stateSnkStartup(evt)
	case StateSnkDiscovery:
		s.stateSnkDiscovery(evt)
	case StateSnkWaitCaps:
		s.stateSnkWaitCaps(evt)
	case StateSnkEvaluateCaps:
		s.stateSnkEvaluateCaps(evt)
	case StateSnkSelectCap:
		s.stateSnkSelectCap(evt)
	case StateSnkTransitionSink:
		s.stateSnkTransitionSink(evt)
	case StateSnkTransitionDefault:
		s.stateSnkTransitionDefault(evt)
	case StateSnkReady:
		s.stateSnkReady(evt)
	case StateSnkSendHardReset:
		s.stateSendHardReset(evt, StateSnkTransitionDefault)
	case StateSnkSendSoftReset:
		s.stateSendSoftReset(evt)
	case StateSnkSoftReset:
		s.stateSoftResetReceived(evt)

	case StateSrcPRSEvaluate, StateSnkPRSEvaluate:
		s.statePRSEvaluate(evt)
	case StateSrcPRSAccept, StateSnkPRSAccept:
		s.statePRSAccept(evt)
	case StateSrcPRSReject, StateSnkPRSReject:
		s.statePRSReject(evt)
	case StateSrcPRSSendSwap, StateSnkPRSSendSwap:
		s.stateSendSwap(evt, pdmsg.TypePRSwap)
	case StateSrcPRSTransitionToOff:
		s.stateSrcPRSTransitionToOff(evt)
	case StateSrcPRSAssertRd:
		s.stateSrcPRSAssertRd(evt)
	case StateSrcPRSSourceOff:
		s.stateSrcPRSSourceOff(evt)
	case StateSnkPRSTransitionToOff:
		s.stateSnkPRSTransitionToOff(evt)
	case StateSnkPRSAssertRp:
		s.stateSnkPRSAssertRp(evt)
	case StateSnkPRSSourceOn:
		s.stateSnkPRSSourceOn(evt)

	case StateVCSUFPEvaluateSwap:
		s.stateVCSEvaluateSwap(evt)
	case StateVCSUFPAccept:
		s.stateVCSAccept(evt)
	case StateVCSUFPReject:
		s.stateVCSReject(evt)
	case StateVCSUFPWaitForDFPVconn, StateVCSDFPWaitForUFPVconn:
		s.stateVCSWaitForVconn(evt)
	case StateVCSUFPTurnOffVconn, StateVCSDFPTurnOffVconn:
		s.stateVCSTurnOffVconn(evt)
	case StateVCSUFPTurnOnVconn, StateVCSDFPTurnOnVconn:
		s.stateVCSTurnOnVconn(evt)
	case StateVCSUFPSendPSRdy, StateVCSDFPSendPSRdy:
		s.stateVCSSendPSRdy(evt)
	case StateVCSDFPSendSwap:
		s.stateSendSwap(evt, pdmsg.TypeVconnSwap)

	case StateDRSDFPEvaluate, StateDRSUFPEvaluate:
		s.stateDRSEvaluate(evt)
	case StateDRSDFPAccept, StateDRSUFPAccept:
		s.stateDRSAccept(evt)
	case StateDRSDFPReject, StateDRSUFPReject:
		s.stateDRSReject(evt)
	case StateDRSDFPChange, StateDRSUFPChange:
		s.stateDRSChange(evt)
	case StateDRSDFPSendSwap, StateDRSUFPSendSwap:
		s.stateSendSwap(evt, pdmsg.TypeDRSwap)
	}
}

// setState transitions to st, clearing the per-state progress markers and
// scheduling an immediate re-run so the new state's first step executes on
// this wakeup.
func (s *Session) setState(st ConnState) {
	if s.logf != nil {
		s.logf("state %s -> %s", s.state, st)
	}
	s.state = st
	s.subState = 0
	s.scratch = 0
	s.workContinue |= ucpd.EventContinue
}

// enterUnattached tears down everything and restarts attach detection in
// the configured role.
func (s *Session) enterUnattached() {
	s.port.Init()
	s.port.SetRxEnable(false)
	s.port.SetVbus(false)
	s.port.SetVconn(false)
	s.vconnOn = false
	s.setState(StateUnattached)
	s.port.SetCC(s.cfg.Role)
	s.timers.disarm(timerState)
	s.timers.disarm(timerMux)
	s.ccState = ucpd.CCStateNone
	s.tryRoleComplete = false
	s.softResetParameter()
	s.notify = ucpd.Snapshot{}
	s.pushNotify()
}

// softResetParameter resets the protocol layer counters that both soft and
// hard reset agree to forget.
func (s *Session) softResetParameter() {
	s.msgID = 0
	s.lastRxID = invalidRxID
	s.txState = txIdle
	s.capsCounter = 0
	s.posPower = 0
	s.vdmState = vdmDiscoverID
	s.vdmSubState = 0
	s.scratch = 0
}

// execHardReset handles a hard reset ordered set from the partner.
func (s *Session) execHardReset() {
	s.msgID = 0
	s.lastRxID = invalidRxID
	s.vdmState = vdmDiscoverID
	s.vdmSubState = 0
	if s.notify.PowerRole == pdmsg.PowerRoleSource {
		s.setState(StateSrcTransitionDefault)
	} else {
		s.setState(StateSnkTransitionDefault)
	}
}

// tryDetach checks whether the partner is gone and tears the port down if
// so. During supply and role transitions the CC lines are legitimately
// unstable, so the check is deferred until the transition settles.
func (s *Session) tryDetach() {
	switch s.state {
	case StateDisabled, StateErrorRecovery, StateUnattached:
		return
	case StateSrcTransitionDefault, StateSnkTransitionDefault,
		StateSrcSendHardReset, StateSnkSendHardReset,
		StateSrcPRSTransitionToOff, StateSrcPRSAssertRd, StateSrcPRSSourceOff,
		StateSnkPRSTransitionToOff, StateSnkPRSAssertRp, StateSnkPRSSourceOn,
		StateVCSUFPTurnOffVconn, StateVCSDFPTurnOffVconn:
		s.workContinue |= ucpd.EventDelayCC
		return
	}
	cc1, cc2, err := s.port.SampleCC()
	if err != nil {
		return
	}
	open := cc1 == ucpd.CCOpen && cc2 == ucpd.CCOpen
	if s.ccState.Role() == ucpd.CCStateAsSink {
		if open && !s.port.VbusPresent() {
			s.enterUnattached()
		}
	} else if open {
		s.enterUnattached()
	}
}

// pushNotify publishes the snapshot if any field changed since the last
// publish. The attention flag is delivered once and cleared.
func (s *Session) pushNotify() {
	if s.notify.CCConnected {
		s.notify.Orientation = s.ccState.Orientation()
	} else {
		s.notify.Orientation = ucpd.OrientationNone
	}
	if s.notify == s.notifyCmp {
		return
	}
	out := s.notify
	s.notify.Attention = false
	s.notifyCmp = s.notify
	s.callbacks.mu.Lock()
	n := s.callbacks.notifier
	s.callbacks.mu.Unlock()
	if n != nil {
		n.Notify(out)
	}
}

// transmitPending pushes the queued message once and then reports the
// transmission outcome as it becomes known.
func (s *Session) transmitPending() txStatus {
	if s.txState == txIdle {
		if err := s.port.Transmit(s.send); err != nil {
			s.txState = txFailed
		} else {
			s.txState = txBusy
		}
	}
	return s.txState
}

// transmitHardResetPending sends the hard reset ordered set and waits out
// the BMC transmission window before declaring it done.
func (s *Session) transmitHardResetPending(evt ucpd.Event) txStatus {
	switch s.txState {
	case txIdle:
		if err := s.port.TransmitHardReset(); err != nil {
			s.txState = txFailed
			break
		}
		s.txState = txBusy
		s.timers.arm(timerState, tBMCTimeout)
	case txBusy:
		if evt.Has(ucpd.EventTimerState) {
			s.txState = txSuccess
		}
	}
	return s.txState
}

// setMesg composes the next outgoing message for the given type and resets
// the transmitter.
func (s *Session) setMesg(t pdmsg.Type, data bool) {
	m := pdmsg.Message{}
	m.SetID(s.msgID)
	m.SetRevision(pdmsg.Revision20)
	m.SetPowerRole(s.notify.PowerRole)
	m.SetDataRole(s.notify.DataRole)
	m.SetType(t)
	if data {
		switch t {
		case pdmsg.TypeSourceCap:
			n := len(s.cfg.SourceCaps)
			if n > pdmsg.MaxDataObjects {
				n = pdmsg.MaxDataObjects
			}
			m.SetDataObjectCount(uint8(n))
			for i, c := range s.cfg.SourceCaps[:n] {
				pdo := pdmsg.NewFixedSupplyPDO()
				pdo.SetVoltage(c.VoltageMV)
				pdo.SetMaxCurrent(c.CurrentMA)
				if i == 0 {
					pdo.SetDualRolePower(!s.cfg.NoDualRolePower)
					pdo.SetDataRoleSwap(!s.cfg.NoDataRoleSwap)
					pdo.SetExternallyPowered(s.cfg.ExternallyPowered)
					pdo.SetUSBSuspend(s.cfg.USBSuspend)
					pdo.SetUSBComms(s.cfg.USBComms)
					pdo.SetPeakCurrent(s.cfg.PeakCurrent)
				}
				m.Data[i] = uint32(pdo)
			}
		case pdmsg.TypeRequest:
			m.SetDataObjectCount(1)
			var rdo pdmsg.RequestDO
			rdo.SetSelectedObjectPosition(s.posPower)
			rdo.SetFixedOperatingCurrent(s.outputMA)
			rdo.SetFixedMaxOperatingCurrent(s.outputMA)
			m.Data[0] = uint32(rdo)
		case pdmsg.TypeSinkCap:
			m.SetDataObjectCount(1)
			pdo := pdmsg.NewFixedSupplyPDO()
			pdo.SetVoltage(5000)
			pdo.SetMaxCurrent(s.cfg.SourceCaps[0].CurrentMA)
			pdo.SetDualRolePower(!s.cfg.NoDualRolePower)
			pdo.SetDataRoleSwap(!s.cfg.NoDataRoleSwap)
			m.Data[0] = uint32(pdo)
		}
	}
	s.send = m
	s.txState = txIdle
}

// sendSimpleMsg transmits a single control message and transitions to
// onSuccess or onFail based on the outcome.
func (s *Session) sendSimpleMsg(evt ucpd.Event, t pdmsg.Type, onSuccess, onFail ConnState) {
	switch s.subState {
	case 0:
		s.setMesg(t, false)
		s.subState = 1
		fallthrough
	default:
		switch s.transmitPending() {
		case txSuccess:
			s.setState(onSuccess)
		case txFailed:
			s.setState(onFail)
		}
	}
}

// softResetState returns the send-soft-reset state for the current power
// role.
func (s *Session) softResetState() ConnState {
	if s.notify.PowerRole == pdmsg.PowerRoleSource {
		return StateSrcSendSoftReset
	}
	return StateSnkSendSoftReset
}

// hardResetState returns the send-hard-reset state for the current power
// role.
func (s *Session) hardResetState() ConnState {
	if s.notify.PowerRole == pdmsg.PowerRoleSource {
		return StateSrcSendHardReset
	}
	return StateSnkSendHardReset
}

// readyState returns the ready state for the current power role.
func (s *Session) readyState() ConnState {
	if s.notify.PowerRole == pdmsg.PowerRoleSource {
		return StateSrcReady
	}
	return StateSnkReady
}
