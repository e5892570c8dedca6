package tcpe

import (
	"testing"

	ucpd "github.com/quoll/go-ucpd"
	"github.com/quoll/go-ucpd/pdmsg"
)

func TestSourceAttachOnCC2(t *testing.T) {
	s, port, ft, rec := newTestSession(ucpd.PortConfig{})
	port.Attach(ucpd.CCStateCC2|ucpd.CCStateAsSource, ucpd.CCOpen, ucpd.CCRd, false)
	pump(s)
	if s.state != StateAttachWaitSource {
		t.Fatalf("state = %v, want %v", s.state, StateAttachWaitSource)
	}
	settleDebounce(s, ft)
	if s.state != StateAttachedSource {
		t.Fatalf("state = %v, want %v", s.state, StateAttachedSource)
	}
	if !port.SourcingVbus() {
		t.Error("VBUS not sourced after source attach")
	}
	if !port.Vconn() {
		t.Error("VCONN not sourced after source attach")
	}
	if port.Polarity() != ucpd.PolarityCC2 {
		t.Errorf("polarity = %v, want %v", port.Polarity(), ucpd.PolarityCC2)
	}

	fireState(s, ft)
	snap, ok := rec.last()
	if !ok {
		t.Fatal("no snapshot published")
	}
	if !snap.CCConnected || snap.Orientation != ucpd.OrientationCC2 {
		t.Errorf("snapshot attached=%v orientation=%v, want attached on CC2", snap.CCConnected, snap.Orientation)
	}
	if snap.PowerRole != pdmsg.PowerRoleSource || snap.DataRole != pdmsg.DataRoleDFP {
		t.Errorf("snapshot roles = %v/%v, want source/DFP", snap.PowerRole, snap.DataRole)
	}
}

func TestAttachGlitchDoesNotAttach(t *testing.T) {
	s, port, ft, _ := newTestSession(ucpd.PortConfig{})
	port.Attach(ucpd.CCStateCC1|ucpd.CCStateAsSource, ucpd.CCRd, ucpd.CCOpen, false)
	pump(s)

	// lines go open before the debounce settles
	for i := 0; i < nDebounce/2; i++ {
		fireMux(s, ft)
	}
	port.Attach(ucpd.CCStateCC1|ucpd.CCStateAsSource, ucpd.CCOpen, ucpd.CCOpen, false)
	settleDebounce(s, ft)
	if s.state != StateUnattached {
		t.Fatalf("state = %v after glitch, want %v", s.state, StateUnattached)
	}
}

func TestAudioAccessoryAttachAndDetach(t *testing.T) {
	s, port, ft, rec := newTestSession(ucpd.PortConfig{})
	port.Attach(ucpd.CCStateAsAccessory, ucpd.CCRa, ucpd.CCRa, false)
	pump(s)
	if s.state != StateAttachWaitAudioAcc {
		t.Fatalf("state = %v, want %v", s.state, StateAttachWaitAudioAcc)
	}
	settleDebounce(s, ft)
	if s.state != StateAttachedAudioAcc {
		t.Fatalf("state = %v, want %v", s.state, StateAttachedAudioAcc)
	}
	pump(s)
	snap, ok := rec.last()
	if !ok || !snap.CCConnected {
		t.Fatal("accessory attach not published")
	}
	if snap.PDConnected {
		t.Error("accessory attach claims a PD contract")
	}

	// pulling the accessory opens both lines; the poll path notices even
	// without a CC alert
	port.Detach()
	fireMux(s, ft)
	pump(s)
	if s.state != StateUnattached {
		t.Fatalf("state = %v after detach, want %v", s.state, StateUnattached)
	}
}

func TestSinkDetachRequiresVbusDrop(t *testing.T) {
	s, port, ft, _ := newTestSession(ucpd.PortConfig{})
	attachAsSink(t, s, port, ft)

	// a CC wiggle while VBUS stays up must not detach
	port.Attach(ucpd.CCStateCC2|ucpd.CCStateAsSink, ucpd.CCOpen, ucpd.CCRp, true)
	pump(s)
	if s.state == StateUnattached {
		t.Fatal("detached while VBUS still present")
	}

	port.Detach()
	pump(s)
	if s.state != StateUnattached {
		t.Fatalf("state = %v after detach, want %v", s.state, StateUnattached)
	}
}

func TestTrySrcPrefersSourcingWhenPartnerYields(t *testing.T) {
	s, port, ft, _ := newTestSession(ucpd.PortConfig{TryRole: ucpd.RoleModeDFP})
	port.Attach(ucpd.CCStateCC1|ucpd.CCStateAsSink, ucpd.CCRp, ucpd.CCOpen, true)
	pump(s)
	settleDebounce(s, ft)
	if s.state != StateAttachTrySrc {
		t.Fatalf("state = %v, want %v", s.state, StateAttachTrySrc)
	}

	// partner is a DRP: while we present Rp it flips to Rd
	pump(s)
	fireMux(s, ft) // try period
	port.Attach(ucpd.CCStateCC1|ucpd.CCStateAsSink, ucpd.CCRd, ucpd.CCOpen, true)
	settleDebounce(s, ft)
	if s.state != StateAttachedSource {
		t.Fatalf("state = %v, want %v", s.state, StateAttachedSource)
	}
}

func TestTrySrcFallsBackToSink(t *testing.T) {
	s, port, ft, _ := newTestSession(ucpd.PortConfig{TryRole: ucpd.RoleModeDFP})
	port.Attach(ucpd.CCStateCC1|ucpd.CCStateAsSink, ucpd.CCRp, ucpd.CCOpen, true)
	pump(s)
	settleDebounce(s, ft)
	if s.state != StateAttachTrySrc {
		t.Fatalf("state = %v, want %v", s.state, StateAttachTrySrc)
	}

	// partner keeps presenting Rp, so we give up and sink
	pump(s)
	fireMux(s, ft)
	settleDebounce(s, ft)
	if s.state != StateSnkWaitCaps && s.state != StateSnkDiscovery {
		t.Fatalf("state = %v, want sink startup flow", s.state)
	}
}
