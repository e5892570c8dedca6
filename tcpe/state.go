package tcpe

// ConnState is a state of the port state machine. States are grouped by the
// protocol layer flow they belong to: Type-C attach detection, source and
// sink policy, and the three swap flows.
type ConnState uint8

const (
	StateDisabled ConnState = iota
	StateErrorRecovery
	StateUnattached
	StateAttachWaitSink
	StateAttachWaitSource
	StateAttachedSource
	StateAttachedSink
	StateAttachTrySrc
	StateAttachTrySnk
	StateAttachWaitAudioAcc
	StateAttachedAudioAcc

	StateSrcStartup
	StateSrcDiscovery
	StateSrcSendCaps
	StateSrcNegotiateCap
	StateSrcTransitionSupply
	StateSrcCapResponse
	StateSrcTransitionDefault
	StateSrcReady
	StateSrcGetSinkCaps
	StateSrcSendHardReset
	StateSrcSendSoftReset
	StateSrcSoftReset

	StateSnkStartup
	StateSnkDiscovery
	StateSnkWaitCaps
	StateSnkEvaluateCaps
	StateSnkSelectCap
	StateSnkTransitionSink
	StateSnkTransitionDefault
	StateSnkReady
	StateSnkSendHardReset
	StateSnkSendSoftReset
	StateSnkSoftReset

	StateSrcPRSEvaluate
	StateSrcPRSAccept
	StateSrcPRSReject
	StateSrcPRSSendSwap
	StateSrcPRSTransitionToOff
	StateSrcPRSAssertRd
	StateSrcPRSSourceOff
	StateSnkPRSEvaluate
	StateSnkPRSAccept
	StateSnkPRSReject
	StateSnkPRSSendSwap
	StateSnkPRSTransitionToOff
	StateSnkPRSAssertRp
	StateSnkPRSSourceOn

	StateVCSUFPEvaluateSwap
	StateVCSUFPAccept
	StateVCSUFPReject
	StateVCSUFPWaitForDFPVconn
	StateVCSUFPTurnOffVconn
	StateVCSUFPTurnOnVconn
	StateVCSUFPSendPSRdy
	StateVCSDFPSendSwap
	StateVCSDFPWaitForUFPVconn
	StateVCSDFPTurnOffVconn
	StateVCSDFPTurnOnVconn
	StateVCSDFPSendPSRdy

	StateDRSDFPEvaluate
	StateDRSDFPAccept
	StateDRSDFPReject
	StateDRSDFPChange
	StateDRSDFPSendSwap
	StateDRSUFPEvaluate
	StateDRSUFPAccept
	StateDRSUFPReject
	StateDRSUFPChange
	StateDRSUFPSendSwap

	stateCount
)

var stateNames = [stateCount]string{
	StateDisabled:             "disabled",
	StateErrorRecovery:        "error-recovery",
	StateUnattached:           "unattached",
	StateAttachWaitSink:       "attach-wait-sink",
	StateAttachWaitSource:     "attach-wait-source",
	StateAttachedSource:       "attached-source",
	StateAttachedSink:         "attached-sink",
	StateAttachTrySrc:         "attach-try-src",
	StateAttachTrySnk:         "attach-try-snk",
	StateAttachWaitAudioAcc:   "attach-wait-audio-acc",
	StateAttachedAudioAcc:     "attached-audio-acc",
	StateSrcStartup:           "src-startup",
	StateSrcDiscovery:         "src-discovery",
	StateSrcSendCaps:          "src-send-caps",
	StateSrcNegotiateCap:      "src-negotiate-cap",
	StateSrcTransitionSupply:  "src-transition-supply",
	StateSrcCapResponse:       "src-cap-response",
	StateSrcTransitionDefault: "src-transition-default",
	StateSrcReady:             "src-ready",
	StateSrcGetSinkCaps:       "src-get-sink-caps",
	StateSrcSendHardReset:     "src-send-hard-reset",
	StateSrcSendSoftReset:     "src-send-soft-reset",
	StateSrcSoftReset:         "src-soft-reset",
	StateSnkStartup:           "snk-startup",
	StateSnkDiscovery:         "snk-discovery",
	StateSnkWaitCaps:          "snk-wait-caps",
	StateSnkEvaluateCaps:      "snk-evaluate-caps",
	StateSnkSelectCap:         "snk-select-cap",
	StateSnkTransitionSink:    "snk-transition-sink",
	StateSnkTransitionDefault: "snk-transition-default",
	StateSnkReady:             "snk-ready",
	StateSnkSendHardReset:     "snk-send-hard-reset",
	StateSnkSendSoftReset:     "snk-send-soft-reset",
	StateSnkSoftReset:         "snk-soft-reset",
	StateSrcPRSEvaluate:       "src-prs-evaluate",
	StateSrcPRSAccept:         "src-prs-accept",
	StateSrcPRSReject:         "src-prs-reject",
	StateSrcPRSSendSwap:       "src-prs-send-swap",
	StateSrcPRSTransitionToOff: "src-prs-transition-to-off",
	StateSrcPRSAssertRd:        "src-prs-assert-rd",
	StateSrcPRSSourceOff:       "src-prs-source-off",
	StateSnkPRSEvaluate:        "snk-prs-evaluate",
	StateSnkPRSAccept:          "snk-prs-accept",
	StateSnkPRSReject:          "snk-prs-reject",
	StateSnkPRSSendSwap:        "snk-prs-send-swap",
	StateSnkPRSTransitionToOff: "snk-prs-transition-to-off",
	StateSnkPRSAssertRp:        "snk-prs-assert-rp",
	StateSnkPRSSourceOn:        "snk-prs-source-on",
	StateVCSUFPEvaluateSwap:    "vcs-ufp-evaluate-swap",
	StateVCSUFPAccept:          "vcs-ufp-accept",
	StateVCSUFPReject:          "vcs-ufp-reject",
	StateVCSUFPWaitForDFPVconn: "vcs-ufp-wait-for-dfp-vconn",
	StateVCSUFPTurnOffVconn:    "vcs-ufp-turn-off-vconn",
	StateVCSUFPTurnOnVconn:     "vcs-ufp-turn-on-vconn",
	StateVCSUFPSendPSRdy:       "vcs-ufp-send-ps-rdy",
	StateVCSDFPSendSwap:        "vcs-dfp-send-swap",
	StateVCSDFPWaitForUFPVconn: "vcs-dfp-wait-for-ufp-vconn",
	StateVCSDFPTurnOffVconn:    "vcs-dfp-turn-off-vconn",
	StateVCSDFPTurnOnVconn:     "vcs-dfp-turn-on-vconn",
	StateVCSDFPSendPSRdy:       "vcs-dfp-send-ps-rdy",
	StateDRSDFPEvaluate:        "drs-dfp-evaluate",
	StateDRSDFPAccept:          "drs-dfp-accept",
	StateDRSDFPReject:          "drs-dfp-reject",
	StateDRSDFPChange:          "drs-dfp-change",
	StateDRSDFPSendSwap:        "drs-dfp-send-swap",
	StateDRSUFPEvaluate:        "drs-ufp-evaluate",
	StateDRSUFPAccept:          "drs-ufp-accept",
	StateDRSUFPReject:          "drs-ufp-reject",
	StateDRSUFPChange:          "drs-ufp-change",
	StateDRSUFPSendSwap:        "drs-ufp-send-swap",
}

func (s ConnState) String() string {
	if s < stateCount && stateNames[s] != "" {
		return stateNames[s]
	}
	return "unknown"
}
