package tcpe

import (
	"testing"

	ucpd "github.com/quoll/go-ucpd"
	"github.com/quoll/go-ucpd/pdmsg"
	"github.com/quoll/go-ucpd/tcsim"
)

// scriptDPPartner wires an auto-responding sink that negotiates the first
// profile, answers Get_Sink_Cap, and acks the DisplayPort discovery and
// entry commands with the given mode and status VDOs. Commands matching
// nack are refused instead.
func scriptDPPartner(port *tcsim.Port, modeCaps, status uint32, nack pdmsg.VDMCommand) {
	port.OnTransmit(func(m pdmsg.Message) {
		if !m.IsData() {
			if m.Type() == pdmsg.TypeGetSinkCap {
				r := pdmsg.Message{}
				r.SetType(pdmsg.TypeSinkCap)
				r.SetDataObjectCount(1)
				pdo := pdmsg.NewFixedSupplyPDO()
				pdo.SetVoltage(5000)
				pdo.SetMaxCurrent(500)
				r.Data[0] = uint32(pdo)
				port.PartnerSend(r)
			}
			return
		}
		switch m.Type() {
		case pdmsg.TypeSourceCap:
			sendRequest(port, 1, 1500)
		case pdmsg.TypeVendorDefined:
			h := pdmsg.VDMHeader(m.Data[0])
			if !h.Structured() || h.CommandType() != pdmsg.VDMInit {
				return
			}
			cmd := h.Command()
			ct := pdmsg.VDMACK
			if cmd == nack {
				ct = pdmsg.VDMNACK
			}
			r := pdmsg.Message{}
			r.SetType(pdmsg.TypeVendorDefined)
			r.Data[0] = uint32(pdmsg.NewVDMHeader(h.SVID(), ct, cmd))
			n := uint8(1)
			if ct == pdmsg.VDMACK {
				switch cmd {
				case pdmsg.VDMDiscoverIdentity:
					r.Data[1] = 1<<30 | 0x1234 // UFP capable, some vendor
					n = 2
				case pdmsg.VDMDiscoverSVIDs:
					r.Data[1] = uint32(pdmsg.SVIDDisplayPort) << 16
					n = 2
				case pdmsg.VDMDiscoverModes:
					r.Data[1] = modeCaps
					n = 2
				case pdmsg.VDMDPStatusUpdate:
					r.Data[1] = status
					n = 2
				}
			}
			r.SetDataObjectCount(n)
			port.PartnerSend(r)
		}
	})
}

// vdmSent filters the transmit log down to structured VDM commands.
func vdmSent(port *tcsim.Port) []pdmsg.VDMCommand {
	var cmds []pdmsg.VDMCommand
	for _, m := range port.Sent() {
		if !m.IsData() || m.Type() != pdmsg.TypeVendorDefined {
			continue
		}
		h := pdmsg.VDMHeader(m.Data[0])
		if h.Structured() && h.CommandType() == pdmsg.VDMInit {
			cmds = append(cmds, h.Command())
		}
	}
	return cmds
}

func TestDisplayPortEntrySequence(t *testing.T) {
	s, port, ft, rec := newTestSession(ucpd.PortConfig{})
	modeCaps := uint32(1<<6) | uint32(pdmsg.DPPinC|pdmsg.DPPinD)<<16 // receptacle, C and D
	scriptDPPartner(port, modeCaps, 0x2, 0)
	attachAsSource(t, s, port, ft)
	pump(s)
	fireState(s, ft) // supply transition, then the partner keeps the chain going
	if s.state != StateSrcReady {
		t.Fatalf("state = %v, want %v", s.state, StateSrcReady)
	}
	if s.vdmState != vdmReady {
		t.Fatalf("vdmState = %d, want %d", s.vdmState, vdmReady)
	}

	want := []pdmsg.VDMCommand{
		pdmsg.VDMDiscoverIdentity, pdmsg.VDMDiscoverSVIDs, pdmsg.VDMDiscoverModes,
		pdmsg.VDMEnterMode, pdmsg.VDMDPStatusUpdate, pdmsg.VDMDPConfigure,
	}
	got := vdmSent(port)
	if len(got) != len(want) {
		t.Fatalf("sent VDM commands %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sent VDM commands %v, want %v", got, want)
		}
	}

	// without a multi-function preference the two-lane pin D is dropped
	// and the configure command carries pin C
	var cfg pdmsg.Message
	for _, m := range port.Sent() {
		if m.IsData() && m.Type() == pdmsg.TypeVendorDefined &&
			pdmsg.VDMHeader(m.Data[0]).Command() == pdmsg.VDMDPConfigure {
			cfg = m
		}
	}
	if cfg.Data[1] != pdmsg.NewDPConfig(pdmsg.DPPinC) {
		t.Errorf("configure VDO = %#x, want %#x", cfg.Data[1], pdmsg.NewDPConfig(pdmsg.DPPinC))
	}

	snap, ok := rec.last()
	if !ok || !snap.AltModeEntered {
		t.Fatal("alternate mode entry not published")
	}
	if snap.DPPinAssignment != pdmsg.DPPinC {
		t.Errorf("pin assignment = %v, want %v", snap.DPPinAssignment, pdmsg.DPPinC)
	}
	if snap.PinSupport != pdmsg.DPPinC|pdmsg.DPPinD {
		t.Errorf("pin support = %v, want C|D", snap.PinSupport)
	}
	if !snap.PDConnected || snap.VoltageMV != 5000 {
		t.Errorf("contract missing from snapshot: %+v", snap)
	}
}

func TestDisplayPortEntryAbandonedOnNACK(t *testing.T) {
	s, port, ft, rec := newTestSession(ucpd.PortConfig{})
	modeCaps := uint32(1<<6) | uint32(pdmsg.DPPinC|pdmsg.DPPinD)<<16
	scriptDPPartner(port, modeCaps, 0x2, pdmsg.VDMEnterMode)
	attachAsSource(t, s, port, ft)
	pump(s)
	fireState(s, ft)
	if s.state != StateSrcReady {
		t.Fatalf("state = %v, want %v", s.state, StateSrcReady)
	}
	if s.vdmState != vdmErr {
		t.Fatalf("vdmState = %d, want %d", s.vdmState, vdmErr)
	}
	for _, cmd := range vdmSent(port) {
		if cmd == pdmsg.VDMDPStatusUpdate || cmd == pdmsg.VDMDPConfigure {
			t.Fatalf("command %d sent after mode entry was refused", cmd)
		}
	}
	if snap, ok := rec.last(); ok && snap.AltModeEntered {
		t.Error("alternate mode reported entered after NACK")
	}
}

func TestPartnerWithoutDisplayPortSkipsEntry(t *testing.T) {
	s, port, ft, _ := newTestSession(ucpd.PortConfig{})
	scriptDPPartner(port, 0, 0, 0) // modes reply carries no usable pins
	attachAsSource(t, s, port, ft)
	pump(s)
	fireState(s, ft)
	if s.vdmState != vdmReady {
		t.Fatalf("vdmState = %d, want %d", s.vdmState, vdmReady)
	}
	for _, cmd := range vdmSent(port) {
		if cmd == pdmsg.VDMEnterMode {
			t.Fatal("attempted mode entry with nothing on offer")
		}
	}
}

func TestAttentionPublishesOnce(t *testing.T) {
	s, port, ft, rec := newTestSession(ucpd.PortConfig{})
	modeCaps := uint32(1<<6) | uint32(pdmsg.DPPinC|pdmsg.DPPinD)<<16
	scriptDPPartner(port, modeCaps, 0x2, 0)
	attachAsSource(t, s, port, ft)
	pump(s)
	fireState(s, ft)
	if s.vdmState != vdmReady {
		t.Fatalf("vdmState = %d, want %d", s.vdmState, vdmReady)
	}

	att := pdmsg.Message{}
	att.SetType(pdmsg.TypeVendorDefined)
	att.SetDataObjectCount(2)
	att.Data[0] = uint32(pdmsg.NewVDMHeader(pdmsg.SVIDDisplayPort, pdmsg.VDMInit, pdmsg.VDMAttention))
	att.Data[1] = 0x2 | 1<<7 | 1<<8 // connected, HPD high, IRQ pulse
	port.PartnerSend(att)
	pump(s)

	snap, ok := rec.last()
	if !ok || !snap.Attention {
		t.Fatal("attention not published")
	}
	if !snap.DPStatus.HPDIRQ() || !snap.DPStatus.HPDLevel() {
		t.Errorf("status VDO not carried through: %#x", uint32(snap.DPStatus))
	}
	if s.notify.Attention {
		t.Error("attention flag not cleared after publishing")
	}
}
