package tcpe

import (
	"testing"

	ucpd "github.com/quoll/go-ucpd"
	"github.com/quoll/go-ucpd/pdmsg"
)

func replyToRequest(port interface {
	PartnerSend(pdmsg.Message)
}, t pdmsg.Type) {
	m := pdmsg.Message{}
	m.SetType(t)
	m.SetPowerRole(pdmsg.PowerRoleSource)
	port.PartnerSend(m)
}

func TestSinkNegotiatesContract(t *testing.T) {
	s, port, ft, rec := newTestSession(ucpd.PortConfig{})
	attachAsSink(t, s, port, ft)

	sendSourceCaps(port, []sourceCap{{5000, 3000}, {9000, 2000}})
	pump(s)
	if s.state != StateSnkSelectCap {
		t.Fatalf("state = %v, want %v", s.state, StateSnkSelectCap)
	}

	req, ok := port.LastSent()
	if !ok || !req.IsData() || req.Type() != pdmsg.TypeRequest {
		t.Fatalf("no request sent, got %+v", req)
	}
	rdo := pdmsg.RequestDO(req.Data[0])
	if rdo.SelectedObjectPosition() != 1 {
		t.Fatalf("requested position %d, want 1 (highest 5V profile)", rdo.SelectedObjectPosition())
	}
	if rdo.FixedMaxOperatingCurrent() != 3000 {
		t.Errorf("requested current %dmA, want 3000", rdo.FixedMaxOperatingCurrent())
	}

	replyToRequest(port, pdmsg.TypeAccept)
	pump(s)
	if s.state != StateSnkTransitionSink {
		t.Fatalf("state = %v after Accept, want %v", s.state, StateSnkTransitionSink)
	}
	replyToRequest(port, pdmsg.TypePSReady)
	pump(s)
	if s.state != StateSnkReady {
		t.Fatalf("state = %v after PS_RDY, want %v", s.state, StateSnkReady)
	}

	snap, ok := rec.last()
	if !ok {
		t.Fatal("no snapshot published")
	}
	if !snap.PDConnected || snap.VoltageMV != 5000 || snap.CurrentMA != 3000 {
		t.Errorf("contract = %v %dmV/%dmA, want 5000mV/3000mA", snap.PDConnected, snap.VoltageMV, snap.CurrentMA)
	}
	if snap.PowerRole != pdmsg.PowerRoleSink {
		t.Errorf("power role = %v, want sink", snap.PowerRole)
	}
}

func TestSinkDefaultPolicyPicksLastLowVoltageProfile(t *testing.T) {
	pdos := make([]pdmsg.PDO, 3)
	for i, c := range []sourceCap{{5000, 900}, {5000, 3000}, {20000, 5000}} {
		pdo := pdmsg.NewFixedSupplyPDO()
		pdo.SetVoltage(c.mv)
		pdo.SetMaxCurrent(c.ma)
		pdos[i] = pdmsg.PDO(pdo)
	}
	if pos := defaultEvaluate(pdos); pos != 2 {
		t.Fatalf("defaultEvaluate = %d, want 2", pos)
	}
	if pos := defaultEvaluate(nil); pos != 0 {
		t.Fatalf("defaultEvaluate(nil) = %d, want 0", pos)
	}
}

func TestSinkSelectCapReject(t *testing.T) {
	s, port, ft, _ := newTestSession(ucpd.PortConfig{})
	attachAsSink(t, s, port, ft)

	sendSourceCaps(port, []sourceCap{{5000, 3000}})
	pump(s)
	replyToRequest(port, pdmsg.TypeReject)
	pump(s)

	if s.state != StateSnkWaitCaps {
		t.Fatalf("state = %v after Reject, want %v", s.state, StateSnkWaitCaps)
	}
	if s.hardrstCount <= nHardResetCount {
		t.Errorf("hardrstCount = %d, hard reset retries not suppressed", s.hardrstCount)
	}
	if port.HardResets() != 0 {
		t.Errorf("engine sent %d hard resets after a Reject", port.HardResets())
	}

	// a fresh broadcast restarts negotiation
	sendSourceCaps(port, []sourceCap{{5000, 1500}})
	pump(s)
	if s.state != StateSnkSelectCap {
		t.Fatalf("state = %v after new caps, want %v", s.state, StateSnkSelectCap)
	}
	if s.hardrstCount != 0 {
		t.Errorf("hardrstCount = %d after new caps, want 0", s.hardrstCount)
	}
}

func TestSinkRejectExhaustionSkipsResetCycle(t *testing.T) {
	s, port, ft, _ := newTestSession(ucpd.PortConfig{})
	attachAsSink(t, s, port, ft)
	sendSourceCaps(port, []sourceCap{{5000, 3000}})
	pump(s)
	replyToRequest(port, pdmsg.TypeReject)
	pump(s)
	if s.state != StateSnkWaitCaps {
		t.Fatalf("state = %v after Reject, want %v", s.state, StateSnkWaitCaps)
	}

	// the Reject spent the reset budget: the next wait-caps timeout must
	// tear the port down through error recovery without another soft or
	// hard reset, even though VBUS was up before attach detection began
	fireState(s, ft)
	if got := port.HardResets(); got != 0 {
		t.Fatalf("sent %d hard resets with the budget exhausted", got)
	}
	if last, ok := port.LastSent(); ok && last.IsControl(pdmsg.TypeSoftReset) {
		t.Fatal("soft reset sent with the budget exhausted")
	}
	if s.state != StateUnattached {
		t.Fatalf("state = %v after exhausted timeout, want %v", s.state, StateUnattached)
	}
}

func TestSinkWaitCapsSoftResetsFirstWhenVbusWasUp(t *testing.T) {
	s, port, ft, _ := newTestSession(ucpd.PortConfig{})
	attachAsSink(t, s, port, ft)

	// VBUS was present before attach detection began, so the first timeout
	// tries a soft reset instead of a hard one
	fireState(s, ft)
	pump(s)
	sent := port.Sent()
	if len(sent) == 0 || !sent[len(sent)-1].IsControl(pdmsg.TypeSoftReset) {
		t.Fatalf("expected Soft_Reset after first wait-caps timeout, sent %d messages", len(sent))
	}
	if port.HardResets() != 0 {
		t.Errorf("hard reset sent before trying soft reset")
	}
}

func TestSinkHardResetBudgetEndsInDisabled(t *testing.T) {
	s, port, ft, _ := newTestSession(ucpd.PortConfig{})
	// attach without VBUS so the soft-reset-first shortcut stays out of the
	// way, then raise VBUS for the attach to complete
	port.Attach(ucpd.CCStateCC2|ucpd.CCStateAsSink, ucpd.CCOpen, ucpd.CCRp, false)
	pump(s)
	port.SetVbusPresent(true)
	settleDebounce(s, ft)
	if s.state != StateSnkWaitCaps {
		t.Fatalf("state = %v, want %v", s.state, StateSnkWaitCaps)
	}

	for i := 0; i < 20 && s.state != StateDisabled; i++ {
		fireState(s, ft)
	}
	if s.state != StateDisabled {
		t.Fatalf("state = %v after exhausting hard resets, want %v", s.state, StateDisabled)
	}
	if got := port.HardResets(); got != nHardResetCount+1 {
		t.Errorf("sent %d hard resets, want %d", got, nHardResetCount+1)
	}
}

func TestSinkAnswersGetSinkCap(t *testing.T) {
	s, port, ft, _ := newTestSession(ucpd.PortConfig{})
	attachAsSink(t, s, port, ft)
	sendSourceCaps(port, []sourceCap{{5000, 3000}})
	pump(s)
	replyToRequest(port, pdmsg.TypeAccept)
	pump(s)
	replyToRequest(port, pdmsg.TypePSReady)
	pump(s)
	if s.state != StateSnkReady {
		t.Fatalf("state = %v, want %v", s.state, StateSnkReady)
	}

	m := pdmsg.Message{}
	m.SetType(pdmsg.TypeGetSinkCap)
	m.SetPowerRole(pdmsg.PowerRoleSource)
	port.PartnerSend(m)
	pump(s)

	last, ok := port.LastSent()
	if !ok || !last.IsData() || last.Type() != pdmsg.TypeSinkCap {
		t.Fatalf("no Sink_Capabilities answer, got %+v", last)
	}
	if pdo := pdmsg.FixedSupplyPDO(last.Data[0]); pdo.Voltage() != 5000 {
		t.Errorf("sink cap voltage = %d, want 5000", pdo.Voltage())
	}
}
