package tcpe

import (
	ucpd "github.com/quoll/go-ucpd"
	"github.com/quoll/go-ucpd/pdmsg"
)

// debounceStable samples the CC lines and reports true once they have held
// the same value for nDebounce consecutive samples.
func (s *Session) debounceStable() bool {
	cc1, cc2, err := s.port.SampleCC()
	if err != nil {
		return false
	}
	if cc1 == s.cc1 && cc2 == s.cc2 {
		s.debounce++
	} else {
		s.cc1, s.cc2 = cc1, cc2
		s.debounce = 0
	}
	return s.debounce > nDebounce
}

func (s *Session) startDebounce() {
	s.cc1, s.cc2, _ = s.port.SampleCC()
	s.debounce = 0
	s.timers.arm(timerMux, tResample)
}

func (s *Session) stateUnattached(evt ucpd.Event) {
	s.notify.CCConnected = false
	s.pdSupported = false
	if !evt.Has(ucpd.EventCC) || s.ccState == ucpd.CCStateNone {
		return
	}
	switch s.ccState.Role() {
	case ucpd.CCStateAsSink:
		s.setState(StateAttachWaitSink)
	case ucpd.CCStateAsSource:
		s.setState(StateAttachWaitSource)
	case ucpd.CCStateAsAccessory:
		s.setState(StateAttachWaitAudioAcc)
	default:
		return
	}
	s.vbusBegin = s.port.VbusPresent()
	s.port.SetPolarity(s.ccState.Polarity())
	s.startDebounce()
}

func (s *Session) stateAttachWaitSink(evt ucpd.Event) {
	if !evt.Has(ucpd.EventTimerMux) {
		return
	}
	if !s.debounceStable() {
		s.timers.arm(timerMux, tResample)
		return
	}
	cc := s.activeCC()
	switch {
	case cc == ucpd.CCOpen:
		s.enterUnattached()
	case !s.port.VbusPresent():
		// partner presents Rp but no VBUS yet, keep waiting
		s.debounce = 0
		s.timers.arm(timerMux, tResample)
	case s.cfg.TryRole == ucpd.RoleModeDFP && !s.tryRoleComplete:
		s.timers.disarm(timerMux)
		s.tryRoleComplete = true
		s.setState(StateAttachTrySrc)
	default:
		s.timers.disarm(timerMux)
		s.setState(StateAttachedSink)
	}
}

func (s *Session) stateAttachWaitSource(evt ucpd.Event) {
	if !evt.Has(ucpd.EventTimerMux) {
		return
	}
	if !s.debounceStable() {
		s.timers.arm(timerMux, tResample)
		return
	}
	switch {
	case s.activeCC() != ucpd.CCRd:
		s.enterUnattached()
	case s.cfg.TryRole == ucpd.RoleModeUFP && !s.tryRoleComplete:
		s.timers.disarm(timerMux)
		s.tryRoleComplete = true
		s.setState(StateAttachTrySnk)
	default:
		s.timers.disarm(timerMux)
		s.setState(StateAttachedSource)
	}
}

// stateTryAttach probes the opposite role before settling: the port briefly
// presents the preferred termination and attaches in the preferred role if
// the partner follows, falling back to the debounced role otherwise.
func (s *Session) stateTryAttach(evt ucpd.Event, want ucpd.RoleMode) {
	switch s.subState {
	case 0:
		if want == ucpd.RoleModeDFP {
			s.port.SetCC(ucpd.RoleModeDFP)
		} else {
			s.port.SetCC(ucpd.RoleModeUFP)
		}
		s.timers.arm(timerMux, tTryDRP)
		s.subState = 1
	case 1:
		if !evt.Has(ucpd.EventTimerMux) {
			break
		}
		s.startDebounce()
		s.subState = 2
	default:
		if !evt.Has(ucpd.EventTimerMux) {
			break
		}
		if !s.debounceStable() {
			s.timers.arm(timerMux, tResample)
			break
		}
		s.timers.disarm(timerMux)
		if want == ucpd.RoleModeDFP {
			if s.activeCCIs(ucpd.CCRd) {
				s.ccState = s.ccState.WithRole(ucpd.CCStateAsSource)
				s.setState(StateAttachedSource)
			} else {
				s.port.SetCC(ucpd.RoleModeUFP)
				s.ccState = s.ccState.WithRole(ucpd.CCStateAsSink)
				s.setState(StateAttachedSink)
			}
		} else {
			if s.activeCCIs(ucpd.CCRp) && s.port.VbusPresent() {
				s.ccState = s.ccState.WithRole(ucpd.CCStateAsSink)
				s.setState(StateAttachedSink)
			} else {
				s.port.SetCC(ucpd.RoleModeDFP)
				s.ccState = s.ccState.WithRole(ucpd.CCStateAsSource)
				s.setState(StateAttachedSource)
			}
		}
	}
}

// activeCC returns the termination on the CC line selected by polarity.
func (s *Session) activeCC() ucpd.CC {
	if s.ccState.Polarity() == ucpd.PolarityCC1 {
		return s.cc1
	}
	return s.cc2
}

func (s *Session) activeCCIs(cc ucpd.CC) bool {
	return s.activeCC() == cc
}

func (s *Session) stateAttachedSource(evt ucpd.Event) {
	switch s.subState {
	case 0:
		s.notify.CCConnected = true
		s.notify.PowerRole = pdmsg.PowerRoleSource
		s.notify.DataRole = pdmsg.DataRoleDFP
		s.port.SetPull(ucpd.PullUp)
		s.port.SetPolarity(s.ccState.Polarity())
		s.port.SetVconn(true)
		s.vconnOn = true
		s.port.SetVbus(true)
		s.timers.arm(timerState, tSrcTurnOn)
		s.subState = 1
	default:
		if evt.Has(ucpd.EventTimerState) {
			s.setState(StateSrcStartup)
		}
	}
}

func (s *Session) stateAttachedSink(evt ucpd.Event) {
	s.notify.CCConnected = true
	s.notify.PowerRole = pdmsg.PowerRoleSink
	s.notify.DataRole = pdmsg.DataRoleUFP
	s.port.SetPull(ucpd.PullDown)
	s.port.SetPolarity(s.ccState.Polarity())
	s.setState(StateSnkStartup)
}

func (s *Session) stateAttachWaitAudioAcc(evt ucpd.Event) {
	if !evt.Has(ucpd.EventTimerMux) {
		return
	}
	if !s.debounceStable() {
		s.timers.arm(timerMux, tResample)
		return
	}
	// audio accessories hold Ra on both lines
	if s.cc1 == ucpd.CCRa && s.cc2 == ucpd.CCRa {
		s.timers.disarm(timerMux)
		s.setState(StateAttachedAudioAcc)
	} else {
		s.enterUnattached()
	}
}

func (s *Session) stateAttachedAudioAcc(evt ucpd.Event) {
	if s.subState == 0 {
		s.notify.CCConnected = true
		s.pushNotify()
		s.subState = 1
		s.timers.arm(timerMux, tResample)
		return
	}
	if !evt.Has(ucpd.EventTimerMux) {
		return
	}
	// poll for the accessory going away; Ra does not generate CC alerts on
	// all controllers
	cc1, cc2, err := s.port.SampleCC()
	if err == nil && cc1 != ucpd.CCRa && cc2 != ucpd.CCRa {
		s.enterUnattached()
		return
	}
	s.timers.arm(timerMux, tResample)
}
