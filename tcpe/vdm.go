package tcpe

import (
	ucpd "github.com/quoll/go-ucpd"
	"github.com/quoll/go-ucpd/pdmsg"
)

// vdmPhase tracks the automatic DisplayPort discovery and entry sequence a
// DFP walks through once a contract is in place. Phases at or past vdmReady
// are terminal.
type vdmPhase uint8

const (
	vdmDiscoverID vdmPhase = iota
	vdmDiscoverSVIDs
	vdmDiscoverModes
	vdmEnterMode
	vdmUpdateStatus
	vdmConfigure
	vdmNotify
	vdmReady
	vdmErr
)

// vdmActive returns true while the sequencer still has commands to issue.
// Only the DFP drives the sequence.
func (s *Session) vdmActive() bool {
	return s.notify.DataRole == pdmsg.DataRoleDFP && s.vdmState < vdmReady
}

// setVDMMesg composes the structured VDM for the given command.
func (s *Session) setVDMMesg(cmd pdmsg.VDMCommand, ct pdmsg.VDMCommandType, pos uint8) {
	m := pdmsg.Message{}
	m.SetID(s.msgID)
	m.SetRevision(pdmsg.Revision20)
	m.SetPowerRole(s.notify.PowerRole)
	m.SetDataRole(s.notify.DataRole)
	m.SetType(pdmsg.TypeVendorDefined)

	svid := pdmsg.SIDPD
	count := uint8(1)
	switch cmd {
	case pdmsg.VDMDiscoverModes:
		if int(s.scratch>>1) < len(s.vdmSVIDs) {
			svid = s.vdmSVIDs[s.scratch>>1]
		}
	case pdmsg.VDMEnterMode, pdmsg.VDMExitMode:
		svid = pdmsg.SVIDDisplayPort
	case pdmsg.VDMDPStatusUpdate, pdmsg.VDMDPConfigure:
		svid = pdmsg.SVIDDisplayPort
		count = 2
	}
	h := pdmsg.NewVDMHeader(svid, ct, cmd)
	h.SetObjectPosition(pos)
	m.SetDataObjectCount(count)
	m.Data[0] = uint32(h)

	switch cmd {
	case pdmsg.VDMDPStatusUpdate:
		// we are the DP source end and our connection is up
		m.Data[1] = 0b101
	case pdmsg.VDMDPConfigure:
		pin := pdmsg.SelectPinAssignment(s.dpCaps, s.dpStatus)
		s.notify.DPPinAssignment = pin
		m.Data[1] = pdmsg.NewDPConfig(pin)
	}

	s.send = m
	s.txState = txIdle
}

type vdmOutcome uint8

const (
	vdmInProgress vdmOutcome = iota
	vdmDone
	vdmFailed
)

// vdmSendStep drives one command of the sequence: build and transmit once,
// then wait for the reply handler to report completion. A transmit failure
// or response timeout fails the step.
func (s *Session) vdmSendStep(evt ucpd.Event, begin func(), complete func() bool) vdmOutcome {
	switch s.vdmSubState {
	case 0:
		begin()
		s.vdmSubState = 1
		fallthrough
	case 1:
		switch s.transmitPending() {
		case txSuccess:
			s.timers.arm(timerState, tSenderResponse)
			s.vdmSubState = 2
		case txFailed:
			s.vdmSubState = 0
			return vdmFailed
		}
		if s.vdmSubState != 2 {
			return vdmInProgress
		}
		fallthrough
	default:
		if complete() {
			s.vdmSubState = 0
			return vdmDone
		}
		if evt.Has(ucpd.EventTimerState) {
			s.vdmSubState = 0
			return vdmFailed
		}
	}
	return vdmInProgress
}

func (s *Session) vdmAdvance(out vdmOutcome) {
	switch out {
	case vdmDone:
		s.vdmState++
		s.workContinue |= ucpd.EventContinue
	case vdmFailed:
		s.vdmState = vdmErr
	}
}

// autoVDM runs the DisplayPort entry sequence from a ready state. Any
// failed or refused step abandons alternate mode for this connection.
func (s *Session) autoVDM(evt ucpd.Event) {
	switch s.vdmState {
	case vdmDiscoverID:
		s.vdmAdvance(s.vdmSendStep(evt,
			func() {
				s.vdmID = 0
				s.setVDMMesg(pdmsg.VDMDiscoverIdentity, pdmsg.VDMInit, 0)
			},
			func() bool { return s.vdmID != 0 }))
	case vdmDiscoverSVIDs:
		s.vdmAdvance(s.vdmSendStep(evt,
			func() {
				s.vdmSVIDs = nil
				s.setVDMMesg(pdmsg.VDMDiscoverSVIDs, pdmsg.VDMInit, 0)
			},
			func() bool { return s.vdmSVIDs != nil }))
	case vdmDiscoverModes:
		if int(s.scratch>>1) < len(s.vdmSVIDs) {
			// one discovery per reported SVID; bit 0 of scratch flags the
			// current one as answered
			out := s.vdmSendStep(evt,
				func() { s.setVDMMesg(pdmsg.VDMDiscoverModes, pdmsg.VDMInit, 0) },
				func() bool {
					if s.scratch&1 == 0 {
						return false
					}
					s.scratch &= ^uint8(1)
					s.scratch += 2
					return true
				})
			if out == vdmFailed {
				s.vdmState = vdmErr
			} else if out == vdmDone {
				s.workContinue |= ucpd.EventContinue
			}
		} else {
			s.scratch = 0
			if s.dpCaps != 0 {
				s.vdmState = vdmEnterMode
			} else {
				// no DisplayPort mode on offer
				s.vdmState = vdmReady
			}
			s.workContinue |= ucpd.EventContinue
		}
	case vdmEnterMode:
		s.vdmAdvance(s.vdmSendStep(evt,
			func() {
				s.scratch = 0
				s.setVDMMesg(pdmsg.VDMEnterMode, pdmsg.VDMInit, 1)
			},
			func() bool { return s.scratch != 0 }))
	case vdmUpdateStatus:
		s.vdmAdvance(s.vdmSendStep(evt,
			func() {
				s.scratch = 0
				s.setVDMMesg(pdmsg.VDMDPStatusUpdate, pdmsg.VDMInit, 1)
			},
			func() bool { return s.scratch != 0 }))
	case vdmConfigure:
		s.vdmAdvance(s.vdmSendStep(evt,
			func() {
				s.scratch = 0
				s.setVDMMesg(pdmsg.VDMDPConfigure, pdmsg.VDMInit, 1)
			},
			func() bool { return s.scratch != 0 }))
	case vdmNotify:
		s.pushNotify()
		s.vdmState = vdmReady
	}
}

// processVDMMsg handles a received vendor defined message, recording reply
// payloads for the sequencer and reacting to partner initiated commands.
func (s *Session) processVDMMsg() {
	h := pdmsg.VDMHeader(s.rec.Data[0])
	if !h.Structured() {
		return
	}
	switch h.CommandType() {
	case pdmsg.VDMACK:
		switch h.Command() {
		case pdmsg.VDMDiscoverIdentity:
			if s.rec.DataObjectCount() > 1 {
				s.vdmID = s.rec.Data[1]
			}
		case pdmsg.VDMDiscoverSVIDs:
			s.vdmSVIDs = pdmsg.ParseSVIDs(s.rec.Data[1:s.rec.DataObjectCount()])
		case pdmsg.VDMDiscoverModes:
			if s.rec.DataObjectCount() > 1 {
				caps := pdmsg.DPModeCaps(s.rec.Data[1])
				if caps.PinSupport() != 0 {
					s.dpCaps = caps
					s.notify.PinSupport = caps.PinSupport()
				}
			}
			s.scratch |= 1
		case pdmsg.VDMEnterMode:
			s.scratch = 1
		case pdmsg.VDMDPStatusUpdate:
			if s.rec.DataObjectCount() > 1 {
				s.dpStatus = pdmsg.DPStatus(s.rec.Data[1])
				s.notify.DPStatus = s.dpStatus
			}
			s.scratch = 1
		case pdmsg.VDMDPConfigure:
			s.scratch = 1
			s.notify.AltModeEntered = true
		}
	case pdmsg.VDMNACK, pdmsg.VDMBusy:
		if h.Command() == pdmsg.VDMDiscoverModes {
			// skip the SVID and keep going
			s.scratch |= 1
		} else {
			s.vdmState = vdmErr
		}
	case pdmsg.VDMInit:
		if h.Command() == pdmsg.VDMAttention && h.SVID() == pdmsg.SVIDDisplayPort {
			if s.rec.DataObjectCount() > 1 {
				s.dpStatus = pdmsg.DPStatus(s.rec.Data[1])
				s.notify.DPStatus = s.dpStatus
			}
			s.notify.Attention = true
			s.pushNotify()
		}
	}
}
