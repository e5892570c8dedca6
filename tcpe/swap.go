package tcpe

import (
	ucpd "github.com/quoll/go-ucpd"
	"github.com/quoll/go-ucpd/pdmsg"
)

// swapMsgProcess routes control messages that arrive in a ready state.
func (s *Session) swapMsgProcess() {
	if s.rec.IsData() {
		return
	}
	switch s.rec.Type() {
	case pdmsg.TypePRSwap:
		if s.notify.PowerRole == pdmsg.PowerRoleSource {
			s.setState(StateSrcPRSEvaluate)
		} else {
			s.setState(StateSnkPRSEvaluate)
		}
	case pdmsg.TypeDRSwap:
		if s.notify.DataRole == pdmsg.DataRoleDFP {
			s.setState(StateDRSDFPEvaluate)
		} else {
			s.setState(StateDRSUFPEvaluate)
		}
	case pdmsg.TypeVconnSwap:
		if s.notify.DataRole == pdmsg.DataRoleDFP {
			// as DFP we keep VCONN, restart the ready state
			s.setState(s.state)
		} else {
			s.setState(StateVCSUFPEvaluateSwap)
		}
	case pdmsg.TypeGetSinkCap:
		s.setMesg(pdmsg.TypeSinkCap, true)
		s.transmitPending()
	case pdmsg.TypeGetSourceCap:
		if s.notify.PowerRole == pdmsg.PowerRoleSource {
			s.setState(StateSrcSendCaps)
		}
	}
}

// startSwap begins a locally requested swap.
func (s *Session) startSwap(t pdmsg.Type) {
	switch t {
	case pdmsg.TypePRSwap:
		if s.cfg.NoDualRolePower || s.cfg.Role != ucpd.RoleModeDRP {
			return
		}
		if s.notify.PowerRole == pdmsg.PowerRoleSource {
			s.setState(StateSrcPRSSendSwap)
		} else {
			s.setState(StateSnkPRSSendSwap)
		}
	case pdmsg.TypeDRSwap:
		if s.cfg.NoDataRoleSwap {
			return
		}
		if s.notify.DataRole == pdmsg.DataRoleDFP {
			s.setState(StateDRSDFPSendSwap)
		} else {
			s.setState(StateDRSUFPSendSwap)
		}
	case pdmsg.TypeVconnSwap:
		if s.notify.DataRole == pdmsg.DataRoleDFP {
			s.setState(StateVCSDFPSendSwap)
		}
	}
}

// stateSendSwap transmits a locally initiated swap request and reacts to
// the partner's verdict.
func (s *Session) stateSendSwap(evt ucpd.Event, cmd pdmsg.Type) {
	switch s.subState {
	case 0:
		s.setMesg(cmd, false)
		s.subState = 1
		fallthrough
	case 1:
		switch s.transmitPending() {
		case txSuccess:
			s.timers.arm(timerState, tSenderResponse)
			s.subState = 2
		case txFailed:
			if cmd == pdmsg.TypeDRSwap {
				s.setState(StateErrorRecovery)
			} else {
				s.setState(s.softResetState())
			}
		}
		if s.subState != 2 {
			break
		}
		fallthrough
	default:
		switch {
		case evt.Has(ucpd.EventRx) && !s.rec.IsData():
			switch s.rec.Type() {
			case pdmsg.TypeAccept:
				s.timers.disarm(timerState)
				s.acceptedSwap(cmd)
			case pdmsg.TypeReject, pdmsg.TypeWait:
				s.setState(s.readyState())
			}
		case evt.Has(ucpd.EventTimerState):
			s.setState(s.readyState())
		}
	}
}

func (s *Session) acceptedSwap(cmd pdmsg.Type) {
	switch cmd {
	case pdmsg.TypePRSwap:
		if s.notify.PowerRole == pdmsg.PowerRoleSource {
			s.setState(StateSrcPRSTransitionToOff)
		} else {
			s.setState(StateSnkPRSTransitionToOff)
		}
	case pdmsg.TypeDRSwap:
		if s.notify.DataRole == pdmsg.DataRoleDFP {
			s.setState(StateDRSDFPChange)
		} else {
			s.setState(StateDRSUFPChange)
		}
	case pdmsg.TypeVconnSwap:
		if s.vconnOn {
			s.setState(StateVCSDFPWaitForUFPVconn)
		} else {
			s.setState(StateVCSDFPTurnOnVconn)
		}
	}
}

// Power role swap.

func (s *Session) statePRSEvaluate(evt ucpd.Event) {
	accept := !s.cfg.NoDualRolePower && s.cfg.Role == ucpd.RoleModeDRP
	if s.notify.PowerRole == pdmsg.PowerRoleSource {
		if accept {
			s.setState(StateSrcPRSAccept)
		} else {
			s.setState(StateSrcPRSReject)
		}
	} else {
		if accept {
			s.setState(StateSnkPRSAccept)
		} else {
			s.setState(StateSnkPRSReject)
		}
	}
}

func (s *Session) statePRSAccept(evt ucpd.Event) {
	if s.notify.PowerRole == pdmsg.PowerRoleSource {
		s.sendSimpleMsg(evt, pdmsg.TypeAccept, StateSrcPRSTransitionToOff, s.softResetState())
	} else {
		s.sendSimpleMsg(evt, pdmsg.TypeAccept, StateSnkPRSTransitionToOff, s.softResetState())
	}
}

func (s *Session) statePRSReject(evt ucpd.Event) {
	s.sendSimpleMsg(evt, pdmsg.TypeReject, s.readyState(), s.softResetState())
}

func (s *Session) stateSrcPRSTransitionToOff(evt ucpd.Event) {
	switch s.subState {
	case 0:
		s.timers.arm(timerState, tSrcTransition)
		s.subState = 1
	default:
		if !evt.Has(ucpd.EventTimerState) {
			break
		}
		s.port.SetVbus(false)
		s.notify.PowerRole = pdmsg.PowerRoleSink
		s.port.SetMsgHeader(s.notify.PowerRole, s.notify.DataRole)
		if s.cfg.Role == ucpd.RoleModeDRP {
			s.setState(StateSrcPRSAssertRd)
		} else {
			s.setState(StateSrcPRSSourceOff)
		}
	}
}

func (s *Session) stateSrcPRSAssertRd(evt ucpd.Event) {
	s.port.SetPull(ucpd.PullDown)
	s.setState(StateSrcPRSSourceOff)
}

func (s *Session) stateSrcPRSSourceOff(evt ucpd.Event) {
	switch s.subState {
	case 0:
		s.setMesg(pdmsg.TypePSReady, false)
		s.subState = 1
		fallthrough
	case 1:
		switch s.transmitPending() {
		case txSuccess:
			s.timers.arm(timerState, tPDSourceOn)
			s.subState = 2
		case txFailed:
			s.notify.PowerRole = pdmsg.PowerRoleSource
			s.port.SetMsgHeader(s.notify.PowerRole, s.notify.DataRole)
			s.setState(StateSrcSendHardReset)
		}
		if s.subState != 2 {
			break
		}
		fallthrough
	default:
		if evt.Has(ucpd.EventRx) && s.rec.IsControl(pdmsg.TypePSReady) {
			s.timers.disarm(timerState)
			s.notify.PDConnected = false
			s.ccState = s.ccState.WithRole(ucpd.CCStateAsSink)
			s.port.SetPolarity(s.ccState.Polarity())
			s.port.SetRxEnable(true)
			s.setState(StateSnkDiscovery)
		} else if evt.Has(ucpd.EventTimerState) {
			s.notify.PowerRole = pdmsg.PowerRoleSource
			s.port.SetMsgHeader(s.notify.PowerRole, s.notify.DataRole)
			s.setState(StateSrcSendHardReset)
		}
	}
}

func (s *Session) stateSnkPRSTransitionToOff(evt ucpd.Event) {
	switch s.subState {
	case 0:
		s.timers.arm(timerState, tPDSourceOff)
		s.subState = 1
	default:
		if evt.Has(ucpd.EventRx) && s.rec.IsControl(pdmsg.TypePSReady) {
			s.timers.disarm(timerState)
			s.notify.PDConnected = false
			if s.cfg.Role == ucpd.RoleModeDRP {
				s.setState(StateSnkPRSAssertRp)
			} else {
				s.setState(StateSnkPRSSourceOn)
			}
		} else if evt.Has(ucpd.EventTimerState) {
			s.setState(StateSnkSendHardReset)
		}
	}
}

func (s *Session) stateSnkPRSAssertRp(evt ucpd.Event) {
	s.port.SetPull(ucpd.PullUp)
	s.setState(StateSnkPRSSourceOn)
}

func (s *Session) stateSnkPRSSourceOn(evt ucpd.Event) {
	switch s.subState {
	case 0:
		s.port.SetVbus(true)
		s.notify.PowerRole = pdmsg.PowerRoleSource
		s.port.SetMsgHeader(s.notify.PowerRole, s.notify.DataRole)
		s.subState = 1
		fallthrough
	case 1:
		s.setMesg(pdmsg.TypePSReady, false)
		s.subState = 2
		fallthrough
	case 2:
		switch s.transmitPending() {
		case txSuccess:
			s.timers.arm(timerState, tSwapSourceStart)
			s.subState = 3
		case txFailed:
			s.notify.PowerRole = pdmsg.PowerRoleSink
			s.port.SetMsgHeader(s.notify.PowerRole, s.notify.DataRole)
			s.setState(StateSnkSendHardReset)
		}
	default:
		if evt.Has(ucpd.EventTimerState) {
			s.ccState = s.ccState.WithRole(ucpd.CCStateAsSource)
			s.setState(StateSrcSendCaps)
		}
	}
}

// VCONN swap.

func (s *Session) stateVCSEvaluateSwap(evt ucpd.Event) {
	if s.cfg.VconnSupported {
		s.setState(StateVCSUFPAccept)
	} else {
		s.setState(StateVCSUFPReject)
	}
}

func (s *Session) stateVCSAccept(evt ucpd.Event) {
	switch s.subState {
	case 0:
		s.setMesg(pdmsg.TypeAccept, false)
		s.subState = 1
		fallthrough
	default:
		switch s.transmitPending() {
		case txSuccess:
			if s.vconnOn {
				s.setState(StateVCSUFPWaitForDFPVconn)
			} else {
				s.setState(StateVCSUFPTurnOnVconn)
			}
		case txFailed:
			s.setState(s.softResetState())
		}
	}
}

func (s *Session) stateVCSReject(evt ucpd.Event) {
	s.sendSimpleMsg(evt, pdmsg.TypeReject, s.readyState(), s.softResetState())
}

func (s *Session) stateVCSWaitForVconn(evt ucpd.Event) {
	switch s.subState {
	case 0:
		s.timers.arm(timerState, tVconnSourceOn)
		s.subState = 1
	default:
		if evt.Has(ucpd.EventRx) && s.rec.IsControl(pdmsg.TypePSReady) {
			s.timers.disarm(timerState)
			if s.state == StateVCSUFPWaitForDFPVconn {
				s.setState(StateVCSUFPTurnOffVconn)
			} else {
				s.setState(StateVCSDFPTurnOffVconn)
			}
		} else if evt.Has(ucpd.EventTimerState) {
			s.setState(s.hardResetState())
		}
	}
}

func (s *Session) stateVCSTurnOffVconn(evt ucpd.Event) {
	s.port.SetVconn(false)
	s.vconnOn = false
	s.setState(s.readyState())
}

func (s *Session) stateVCSTurnOnVconn(evt ucpd.Event) {
	s.port.SetVconn(true)
	s.vconnOn = true
	if s.state == StateVCSUFPTurnOnVconn {
		s.setState(StateVCSUFPSendPSRdy)
	} else {
		s.setState(StateVCSDFPSendPSRdy)
	}
}

func (s *Session) stateVCSSendPSRdy(evt ucpd.Event) {
	s.sendSimpleMsg(evt, pdmsg.TypePSReady, s.readyState(), s.softResetState())
}

// Data role swap.

func (s *Session) stateDRSEvaluate(evt ucpd.Event) {
	accept := !s.cfg.NoDataRoleSwap
	if s.notify.DataRole == pdmsg.DataRoleDFP {
		if accept {
			s.setState(StateDRSDFPAccept)
		} else {
			s.setState(StateDRSDFPReject)
		}
	} else {
		if accept {
			s.setState(StateDRSUFPAccept)
		} else {
			s.setState(StateDRSUFPReject)
		}
	}
}

func (s *Session) stateDRSAccept(evt ucpd.Event) {
	if s.notify.DataRole == pdmsg.DataRoleDFP {
		s.sendSimpleMsg(evt, pdmsg.TypeAccept, StateDRSDFPChange, s.softResetState())
	} else {
		s.sendSimpleMsg(evt, pdmsg.TypeAccept, StateDRSUFPChange, s.softResetState())
	}
}

func (s *Session) stateDRSReject(evt ucpd.Event) {
	s.sendSimpleMsg(evt, pdmsg.TypeReject, s.readyState(), s.softResetState())
}

func (s *Session) stateDRSChange(evt ucpd.Event) {
	if s.notify.DataRole == pdmsg.DataRoleDFP {
		s.notify.DataRole = pdmsg.DataRoleUFP
	} else {
		s.notify.DataRole = pdmsg.DataRoleDFP
	}
	s.port.SetMsgHeader(s.notify.PowerRole, s.notify.DataRole)
	s.pushNotify()
	s.setState(s.readyState())
}
