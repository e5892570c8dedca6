package tcpe

import (
	"sync"
	"testing"
	"time"

	ucpd "github.com/quoll/go-ucpd"
	"github.com/quoll/go-ucpd/pdmsg"
	"github.com/quoll/go-ucpd/tcsim"
)

// fakeTimers lets tests expire the protocol timers on demand instead of
// waiting them out.
type fakeTimers struct {
	armed   [timerCount]time.Duration
	active  [timerCount]bool
	expired [timerCount]bool
}

func (f *fakeTimers) arm(id timerID, d time.Duration) {
	f.armed[id] = d
	f.active[id] = true
	f.expired[id] = false
}

func (f *fakeTimers) disarm(id timerID) {
	f.active[id] = false
	f.expired[id] = false
}

func (f *fakeTimers) take(id timerID) bool {
	t := f.expired[id]
	f.expired[id] = false
	return t
}

func (f *fakeTimers) fire(id timerID) {
	if f.active[id] {
		f.active[id] = false
		f.expired[id] = true
	}
}

// snapRecorder collects published snapshots.
type snapRecorder struct {
	mu    sync.Mutex
	snaps []ucpd.Snapshot
}

func (r *snapRecorder) Notify(s ucpd.Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *snapRecorder) last() (ucpd.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return ucpd.Snapshot{}, false
	}
	return r.snaps[len(r.snaps)-1], true
}

func newTestSession(cfg ucpd.PortConfig) (*Session, *tcsim.Port, *fakeTimers, *snapRecorder) {
	port := tcsim.New()
	s := New(port, cfg)
	ft := &fakeTimers{}
	s.timers = ft
	rec := &snapRecorder{}
	s.SetNotifier(rec)
	s.enterUnattached()
	pump(s)
	return s, port, ft, rec
}

func pump(s *Session) {
	for i := 0; i < 512 && s.tick(); i++ {
	}
}

// fireState expires the state timer and runs the machine.
func fireState(s *Session, ft *fakeTimers) {
	ft.fire(timerState)
	pump(s)
}

// fireMux expires the shared mux timer and runs the machine.
func fireMux(s *Session, ft *fakeTimers) {
	ft.fire(timerMux)
	pump(s)
}

// settleDebounce feeds enough resample expiries for attach detection to
// declare the CC lines stable and leave the current state.
func settleDebounce(s *Session, ft *fakeTimers) {
	start := s.state
	for i := 0; i < nDebounce+4 && s.state == start; i++ {
		fireMux(s, ft)
	}
}

func TestSetStateResetsSubState(t *testing.T) {
	s, _, _, _ := newTestSession(ucpd.PortConfig{})
	for st := StateDisabled; st < stateCount; st++ {
		s.subState = 7
		s.scratch = 9
		s.workContinue = 0
		s.setState(st)
		if s.state != st || s.subState != 0 || s.scratch != 0 {
			t.Fatalf("setState(%v): state=%v sub=%d scratch=%d", st, s.state, s.subState, s.scratch)
		}
		if !s.workContinue.Has(ucpd.EventContinue) {
			t.Fatalf("setState(%v) did not schedule a re-run", st)
		}
	}
}

func TestMessageIDIncrementsOnConfirmedTxOnly(t *testing.T) {
	s, port, _, _ := newTestSession(ucpd.PortConfig{})
	s.notify.PowerRole = pdmsg.PowerRoleSource

	port.FailNextTransmissions(1)
	s.setMesg(pdmsg.TypePing, false)
	s.transmitPending()
	pump(s)
	if s.msgID != 0 {
		t.Fatalf("msgID advanced on failed tx: %d", s.msgID)
	}

	s.setMesg(pdmsg.TypePing, false)
	s.transmitPending()
	pump(s)
	if s.msgID != 1 {
		t.Fatalf("msgID = %d after confirmed tx, want 1", s.msgID)
	}
	m, ok := port.LastSent()
	if !ok || m.ID() != 0 {
		t.Fatalf("sent message carried ID %d, want 0", m.ID())
	}
}

func TestDuplicateReceiveDropped(t *testing.T) {
	s, port, _, _ := newTestSession(ucpd.PortConfig{})
	m := pdmsg.Message{}
	m.SetType(pdmsg.TypePing)

	// pretend the message with ID 0 was already consumed, as after a
	// retransmission of the partner's first message
	s.lastRxID = 0
	port.PartnerSend(m) // stamped with ID 0
	if s.fetchMessage() {
		t.Fatal("duplicate message ID was not dropped")
	}
	port.PartnerSend(m) // stamped with ID 1
	if !s.fetchMessage() {
		t.Fatal("fresh message was dropped")
	}
	if s.lastRxID != 1 {
		t.Fatalf("lastRxID = %d, want 1", s.lastRxID)
	}
}

func TestDebounceCountsStableSamplesOnly(t *testing.T) {
	s, port, _, _ := newTestSession(ucpd.PortConfig{})
	port.Attach(ucpd.CCStateCC1|ucpd.CCStateAsSource, ucpd.CCRd, ucpd.CCOpen, false)
	pump(s)
	if s.state != StateAttachWaitSource {
		t.Fatalf("state = %v, want %v", s.state, StateAttachWaitSource)
	}

	for i := 0; i < nDebounce/2; i++ {
		if s.debounceStable() {
			t.Fatalf("debounce settled after %d samples", i+1)
		}
	}
	// a glitch restarts the count
	port.Attach(ucpd.CCStateCC1|ucpd.CCStateAsSource, ucpd.CCOpen, ucpd.CCOpen, false)
	if s.debounceStable() {
		t.Fatal("debounce survived a CC glitch")
	}
	port.Attach(ucpd.CCStateCC1|ucpd.CCStateAsSource, ucpd.CCRd, ucpd.CCOpen, false)
	stable := false
	for i := 0; i < nDebounce+2; i++ {
		stable = s.debounceStable()
	}
	if !stable {
		t.Fatal("debounce never settled on stable lines")
	}
}

func TestSoftResetReroutesFromAnyProtocolState(t *testing.T) {
	s, port, ft, _ := newTestSession(ucpd.PortConfig{})
	attachAsSink(t, s, port, ft)
	sendSourceCaps(port, []sourceCap{{5000, 3000}})
	pump(s)

	m := pdmsg.Message{}
	m.SetType(pdmsg.TypeSoftReset)
	port.PartnerSend(m)
	pump(s)
	if s.state != StateSnkWaitCaps && s.state != StateSnkSoftReset {
		t.Fatalf("state = %v after Soft_Reset, want accept flow", s.state)
	}
	if s.msgID != 1 {
		// Accept is the first message of the restarted counter
		t.Fatalf("msgID = %d after soft reset accept, want 1", s.msgID)
	}
}

type sourceCap struct {
	mv, ma uint16
}

func sendSourceCaps(port *tcsim.Port, caps []sourceCap) {
	m := pdmsg.Message{}
	m.SetType(pdmsg.TypeSourceCap)
	m.SetRevision(pdmsg.Revision20)
	m.SetPowerRole(pdmsg.PowerRoleSource)
	m.SetDataRole(pdmsg.DataRoleDFP)
	m.SetDataObjectCount(uint8(len(caps)))
	for i, c := range caps {
		pdo := pdmsg.NewFixedSupplyPDO()
		pdo.SetVoltage(c.mv)
		pdo.SetMaxCurrent(c.ma)
		m.Data[i] = uint32(pdo)
	}
	port.PartnerSend(m)
}

// attachAsSink walks the port from unattached to snk-wait-caps.
func attachAsSink(t *testing.T, s *Session, port *tcsim.Port, ft *fakeTimers) {
	t.Helper()
	port.Attach(ucpd.CCStateCC2|ucpd.CCStateAsSink, ucpd.CCOpen, ucpd.CCRp, true)
	pump(s)
	if s.state != StateAttachWaitSink {
		t.Fatalf("state = %v, want %v", s.state, StateAttachWaitSink)
	}
	settleDebounce(s, ft)
	if s.state != StateSnkWaitCaps {
		t.Fatalf("state = %v after debounce, want %v", s.state, StateSnkWaitCaps)
	}
}

// attachAsSource walks the port from unattached to a source awaiting a
// request, with the partner GoodCRC-ing the capability broadcast.
func attachAsSource(t *testing.T, s *Session, port *tcsim.Port, ft *fakeTimers) {
	t.Helper()
	port.Attach(ucpd.CCStateCC1|ucpd.CCStateAsSource, ucpd.CCRd, ucpd.CCOpen, false)
	pump(s)
	if s.state != StateAttachWaitSource {
		t.Fatalf("state = %v, want %v", s.state, StateAttachWaitSource)
	}
	settleDebounce(s, ft)
	if s.state != StateAttachedSource {
		t.Fatalf("state = %v after debounce, want %v", s.state, StateAttachedSource)
	}
	fireState(s, ft) // VBUS settle, capability broadcast goes out
	if s.state < StateSrcStartup || s.state > StateSrcGetSinkCaps {
		t.Fatalf("state = %v after attach, want source protocol flow", s.state)
	}
}
