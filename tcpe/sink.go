package tcpe

import (
	ucpd "github.com/quoll/go-ucpd"
	"github.com/quoll/go-ucpd/pdmsg"
)

func (s *Session) stateSnkStartup(evt ucpd.Event) {
	s.notify.PDConnected = false
	s.port.SetMsgHeader(s.notify.PowerRole, s.notify.DataRole)
	s.msgID = 0
	s.lastRxID = invalidRxID
	s.port.ResetPD()
	s.port.SetRxEnable(true)
	s.pushNotify()
	s.setState(StateSnkDiscovery)
}

func (s *Session) stateSnkDiscovery(evt ucpd.Event) {
	if !s.port.VbusPresent() {
		// wait for the partner's supply, detach handling will fire if it
		// never comes
		s.timers.arm(timerState, tResample)
		return
	}
	s.timers.arm(timerState, tTypeCSinkWaitCap)
	s.setState(StateSnkWaitCaps)
}

func (s *Session) stateSnkWaitCaps(evt ucpd.Event) {
	switch {
	case evt.Has(ucpd.EventRx):
		if s.rec.IsData() && s.rec.Type() == pdmsg.TypeSourceCap {
			s.pdSupported = true
			s.timers.disarm(timerState)
			s.timers.disarm(timerMux)
			s.setState(StateSnkEvaluateCaps)
		}
	case evt.Has(ucpd.EventTimerState):
		if s.hardrstCount <= nHardResetCount {
			if s.vbusBegin {
				// VBUS was up before we attached: the partner may still
				// hold an old contract, ask it to restart the protocol
				// layer first
				s.vbusBegin = false
				s.setState(StateSnkSendSoftReset)
			} else {
				s.setState(StateSnkSendHardReset)
			}
		} else if s.pdSupported {
			s.setState(StateErrorRecovery)
		} else {
			// partner never spoke PD, settle for the Type-C current level
			s.setState(StateDisabled)
		}
	case evt.Has(ucpd.EventTimerMux):
		if s.hardrstCount > nHardResetCount {
			if s.pdSupported {
				s.setState(StateErrorRecovery)
			} else {
				s.setState(StateDisabled)
			}
		}
	}
}

func (s *Session) stateSnkEvaluateCaps(evt ucpd.Event) {
	s.hardrstCount = 0
	s.srcCaps = s.rec
	n := int(s.rec.DataObjectCount())
	pdos := make([]pdmsg.PDO, n)
	for i := range pdos {
		pdos[i] = pdmsg.PDO(s.rec.Data[i])
	}
	pos, ok := s.evalCaps(pdos)
	if !ok {
		pos = defaultEvaluate(pdos)
	}
	if pos == 0 || int(pos) > n {
		s.posPower = 0
		s.setState(StateSnkWaitCaps)
		return
	}
	s.posPower = pos
	switch pdo := pdmsg.PDO(s.srcCaps.Data[pos-1]); pdo.Type() {
	case pdmsg.PDOTypeFixedSupply:
		f := pdmsg.FixedSupplyPDO(pdo)
		s.outputMV = f.Voltage()
		s.outputMA = f.MaxCurrent()
	case pdmsg.PDOTypeVariableSupply:
		v := pdmsg.VariableSupplyPDO(pdo)
		s.outputMV = v.MinVoltage()
		s.outputMA = v.MaxCurrent()
	default:
		s.outputMV = 5000
		s.outputMA = 0
	}
	s.setState(StateSnkSelectCap)
}

// defaultEvaluate is the built-in sink policy: of the profiles at or below
// 5V, the last one advertised wins.
func defaultEvaluate(pdos []pdmsg.PDO) uint8 {
	var pos uint8
	for i, o := range pdos {
		switch o.Type() {
		case pdmsg.PDOTypeFixedSupply:
			if pdmsg.FixedSupplyPDO(o).Voltage() <= 5000 {
				pos = uint8(i + 1)
			}
		case pdmsg.PDOTypeVariableSupply:
			if pdmsg.VariableSupplyPDO(o).MinVoltage() <= 5000 {
				pos = uint8(i + 1)
			}
		}
	}
	return pos
}

func (s *Session) stateSnkSelectCap(evt ucpd.Event) {
	switch s.subState {
	case 0:
		s.setMesg(pdmsg.TypeRequest, true)
		s.subState = 1
		fallthrough
	case 1:
		switch s.transmitPending() {
		case txSuccess:
			s.timers.arm(timerState, tSenderResponse)
			s.subState = 2
		case txFailed:
			s.setState(StateSnkSendHardReset)
		}
		if s.subState != 2 {
			break
		}
		fallthrough
	default:
		if evt.Has(ucpd.EventRx) && !s.rec.IsData() {
			switch s.rec.Type() {
			case pdmsg.TypeAccept:
				s.timers.arm(timerState, tPSTransition)
				s.setState(StateSnkTransitionSink)
			case pdmsg.TypeReject, pdmsg.TypeWait:
				// the source will not serve us; stop burning hard resets
				// on it and wait for a fresh capability broadcast
				s.hardrstCount = nHardResetCount + 1
				s.setState(StateSnkWaitCaps)
			}
		} else if evt.Has(ucpd.EventTimerState) {
			s.setState(StateSnkSendHardReset)
		}
	}
}

func (s *Session) stateSnkTransitionSink(evt ucpd.Event) {
	if evt.Has(ucpd.EventRx) && s.rec.IsControl(pdmsg.TypePSReady) {
		s.timers.disarm(timerState)
		s.notify.PDConnected = true
		s.notify.VoltageMV = s.outputMV
		s.notify.CurrentMA = s.outputMA
		s.setState(StateSnkReady)
		return
	}
	if evt.Has(ucpd.EventTimerState) {
		s.setState(StateSnkSendHardReset)
	}
}

func (s *Session) stateSnkTransitionDefault(evt ucpd.Event) {
	switch s.subState {
	case 0:
		s.notify.PDConnected = false
		s.notify.VoltageMV = 0
		s.notify.CurrentMA = 0
		s.timers.arm(timerMux, tNoResponse)
		s.timers.arm(timerState, tPSHardResetMax+tSafe0V)
		s.port.SetMsgHeader(s.notify.PowerRole, s.notify.DataRole)
		s.subState = 1
		fallthrough
	case 1:
		if !s.port.VbusPresent() {
			// source dropped VBUS, now wait for it to come back
			s.timers.arm(timerState, tSrcRecoverMax+tSrcTurnOn)
			s.subState = 2
		} else if evt.Has(ucpd.EventTimerState) {
			s.setState(StateSnkStartup)
		}
	default:
		if s.port.VbusPresent() {
			s.timers.disarm(timerState)
			s.setState(StateSnkStartup)
		} else if evt.Has(ucpd.EventTimerState) {
			s.setState(StateSnkStartup)
		}
	}
}

func (s *Session) stateSnkReady(evt ucpd.Event) {
	if evt.Has(ucpd.EventRx) {
		if s.rec.IsData() && s.rec.Type() == pdmsg.TypeVendorDefined {
			s.processVDMMsg()
			s.workContinue |= ucpd.EventContinue
			s.timers.disarm(timerState)
		} else if !s.vdmActive() {
			s.swapMsgProcess()
		}
	}
	if s.state != StateSnkReady {
		return
	}
	if t := s.takePendingSwap(); t != 0 {
		s.startSwap(t)
		return
	}
	if s.vdmActive() {
		s.autoVDM(evt)
	}
	s.pushNotify()
}
