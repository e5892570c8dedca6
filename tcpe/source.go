package tcpe

import (
	ucpd "github.com/quoll/go-ucpd"
	"github.com/quoll/go-ucpd/pdmsg"
)

func (s *Session) stateSrcStartup(evt ucpd.Event) {
	s.notify.PDConnected = false
	s.port.SetMsgHeader(s.notify.PowerRole, s.notify.DataRole)
	s.msgID = 0
	s.lastRxID = invalidRxID
	s.port.ResetPD()
	s.port.SetRxEnable(true)
	s.pushNotify()
	s.setState(StateSrcSendCaps)
}

// stateSrcDiscovery paces retries of the capability broadcast. A partner
// that never answers within the retry budget is treated as a non-PD sink.
func (s *Session) stateSrcDiscovery(evt ucpd.Event) {
	switch s.subState {
	case 0:
		s.capsCounter++
		if s.capsCounter > nCapsCount {
			// broadcast retries exhausted, the partner is not a PD sink
			s.setState(StateDisabled)
			return
		}
		s.timers.arm(timerState, tTypeCSendSourceCap)
		s.subState = 1
	default:
		if evt.Has(ucpd.EventTimerState) {
			s.setState(StateSrcSendCaps)
		} else if evt.Has(ucpd.EventTimerMux) {
			// NoResponse expired
			if !s.pdSupported {
				s.setState(StateDisabled)
			} else if s.hardrstCount > nHardResetCount {
				s.setState(StateErrorRecovery)
			} else {
				s.setState(StateSrcSendHardReset)
			}
		}
	}
}

func (s *Session) stateSrcSendCaps(evt ucpd.Event) {
	switch s.subState {
	case 0:
		s.setMesg(pdmsg.TypeSourceCap, true)
		s.subState = 1
		fallthrough
	case 1:
		switch s.transmitPending() {
		case txSuccess:
			// GoodCRC means the partner speaks PD
			s.pdSupported = true
			s.hardrstCount = 0
			s.capsCounter = 0
			s.timers.disarm(timerMux)
			s.timers.arm(timerState, tSenderResponse)
			s.subState = 2
		case txFailed:
			s.setState(StateSrcDiscovery)
		}
		if s.subState != 2 {
			break
		}
		fallthrough
	default:
		if evt.Has(ucpd.EventRx) {
			if s.rec.IsData() && s.rec.Type() == pdmsg.TypeRequest && s.rec.DataObjectCount() == 1 {
				s.setState(StateSrcNegotiateCap)
			} else {
				s.setState(StateSrcSendSoftReset)
			}
		} else if evt.Has(ucpd.EventTimerState) {
			if s.hardrstCount > nHardResetCount {
				s.setState(StateDisabled)
			} else {
				s.setState(StateSrcSendHardReset)
			}
		} else if evt.Has(ucpd.EventTimerMux) {
			if !s.pdSupported {
				s.setState(StateDisabled)
			} else if s.hardrstCount > nHardResetCount {
				s.setState(StateErrorRecovery)
			} else {
				s.setState(StateSrcSendHardReset)
			}
		}
	}
}

func (s *Session) stateSrcNegotiateCap(evt ucpd.Event) {
	rdo := pdmsg.RequestDO(s.rec.Data[0])
	pos := rdo.SelectedObjectPosition()
	if pos == 0 || int(pos) > len(s.cfg.SourceCaps) {
		s.setState(StateSrcCapResponse)
		return
	}
	s.posPower = pos
	s.outputMV = s.cfg.SourceCaps[pos-1].VoltageMV
	s.outputMA = s.cfg.SourceCaps[pos-1].CurrentMA
	s.setState(StateSrcTransitionSupply)
}

func (s *Session) stateSrcTransitionSupply(evt ucpd.Event) {
	switch s.subState {
	case 0:
		s.setMesg(pdmsg.TypeAccept, false)
		s.subState = 1
		fallthrough
	case 1:
		switch s.transmitPending() {
		case txSuccess:
			s.notify.PDConnected = true
			s.timers.arm(timerState, tSrcTransition)
			s.subState = 2
		case txFailed:
			s.setState(StateSrcSendSoftReset)
		}
	case 2:
		if !evt.Has(ucpd.EventTimerState) {
			break
		}
		// supply is already at the requested level for single profile
		// sources; adjust here when more profiles are added
		s.setMesg(pdmsg.TypePSReady, false)
		s.subState = 3
		fallthrough
	default:
		switch s.transmitPending() {
		case txSuccess:
			s.notify.VoltageMV = s.outputMV
			s.notify.CurrentMA = s.outputMA
			s.setState(StateSrcReady)
		case txFailed:
			s.setState(StateSrcSendHardReset)
		}
	}
}

// stateSrcCapResponse rejects a request that does not match any advertised
// profile.
func (s *Session) stateSrcCapResponse(evt ucpd.Event) {
	switch s.subState {
	case 0:
		s.setMesg(pdmsg.TypeReject, false)
		s.subState = 1
		fallthrough
	default:
		switch s.transmitPending() {
		case txSuccess:
			if s.notify.PDConnected {
				s.setState(StateSrcReady)
			} else {
				s.setState(StateSrcSendHardReset)
			}
		case txFailed:
			s.setState(StateSrcSendHardReset)
		}
	}
}

func (s *Session) stateSrcTransitionDefault(evt ucpd.Event) {
	switch s.subState {
	case 0:
		s.notify.PDConnected = false
		s.notify.VoltageMV = 0
		s.notify.CurrentMA = 0
		s.port.SetVbus(false)
		s.port.SetMsgHeader(s.notify.PowerRole, s.notify.DataRole)
		s.timers.arm(timerState, tSrcRecover)
		s.subState = 1
	default:
		if evt.Has(ucpd.EventTimerState) {
			s.port.SetVbus(true)
			s.timers.arm(timerMux, tNoResponse)
			s.setState(StateSrcStartup)
		}
	}
}

func (s *Session) stateSrcReady(evt ucpd.Event) {
	if evt.Has(ucpd.EventRx) {
		if s.rec.IsData() && s.rec.Type() == pdmsg.TypeVendorDefined {
			s.processVDMMsg()
			s.workContinue |= ucpd.EventContinue
			s.timers.disarm(timerState)
		} else if !s.vdmActive() {
			s.swapMsgProcess()
		}
	}
	if s.state != StateSrcReady {
		return
	}
	if t := s.takePendingSwap(); t != 0 {
		s.startSwap(t)
		return
	}
	if s.partnerCaps[0] == 0 {
		s.setState(StateSrcGetSinkCaps)
		return
	}
	if s.vdmActive() {
		s.autoVDM(evt)
	}
	s.pushNotify()
}

func (s *Session) stateSrcGetSinkCaps(evt ucpd.Event) {
	switch s.subState {
	case 0:
		s.setMesg(pdmsg.TypeGetSinkCap, false)
		s.subState = 1
		fallthrough
	case 1:
		switch s.transmitPending() {
		case txSuccess:
			s.timers.arm(timerState, tSenderResponse)
			s.subState = 2
		case txFailed:
			s.setState(StateSrcSendSoftReset)
		}
		if s.subState != 2 {
			break
		}
		fallthrough
	default:
		if evt.Has(ucpd.EventRx) {
			if s.rec.IsData() && s.rec.Type() == pdmsg.TypeSinkCap {
				n := int(s.rec.DataObjectCount())
				for i := 0; i < len(s.partnerCaps); i++ {
					if i < n {
						s.partnerCaps[i] = s.rec.Data[i]
					} else {
						s.partnerCaps[i] = 0
					}
				}
				s.setState(StateSrcReady)
			} else {
				s.setState(StateSrcSendSoftReset)
			}
		} else if evt.Has(ucpd.EventTimerState) {
			// poison the slot so we do not ask again
			s.partnerCaps[0] = 0xffffffff
			if s.logf != nil {
				s.logf("partner ignored sink cap request")
			}
			s.setState(StateSrcReady)
		}
	}
}

// stateSendHardReset transmits the hard reset ordered set, then hands over
// to the role's transition-default state.
func (s *Session) stateSendHardReset(evt ucpd.Event, next ConnState) {
	switch s.subState {
	case 0:
		s.txState = txIdle
		s.subState = 1
		fallthrough
	default:
		switch s.transmitHardResetPending(evt) {
		case txSuccess:
			s.hardrstCount++
			s.setState(next)
		case txFailed:
			s.setState(StateErrorRecovery)
		}
	}
}

func (s *Session) stateSendSoftReset(evt ucpd.Event) {
	switch s.subState {
	case 0:
		s.softResetParameter()
		s.setMesg(pdmsg.TypeSoftReset, false)
		s.subState = 1
		fallthrough
	case 1:
		switch s.transmitPending() {
		case txSuccess:
			s.timers.arm(timerState, tSenderResponse)
			s.subState = 2
		case txFailed:
			s.setState(s.hardResetState())
		}
		if s.subState != 2 {
			break
		}
		fallthrough
	default:
		if evt.Has(ucpd.EventRx) && s.rec.IsControl(pdmsg.TypeAccept) {
			if s.notify.PowerRole == pdmsg.PowerRoleSource {
				s.setState(StateSrcSendCaps)
			} else {
				s.timers.arm(timerState, tTypeCSinkWaitCap)
				s.setState(StateSnkWaitCaps)
			}
		} else if evt.Has(ucpd.EventTimerState) {
			s.setState(s.hardResetState())
		}
	}
}

// stateSoftResetReceived accepts a Soft_Reset from the partner and restarts
// the protocol layer.
func (s *Session) stateSoftResetReceived(evt ucpd.Event) {
	switch s.subState {
	case 0:
		s.softResetParameter()
		s.setMesg(pdmsg.TypeAccept, false)
		s.subState = 1
		fallthrough
	default:
		switch s.transmitPending() {
		case txSuccess:
			if s.notify.PowerRole == pdmsg.PowerRoleSource {
				s.setState(StateSrcSendCaps)
			} else {
				s.timers.arm(timerState, tTypeCSinkWaitCap)
				s.setState(StateSnkWaitCaps)
			}
		case txFailed:
			s.setState(s.hardResetState())
		}
	}
}
