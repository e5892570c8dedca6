package pdmsg

// Well known standard and vendor IDs used in structured VDMs.
const (
	SIDPD           uint16 = 0xff00 // PD standard ID, used for discovery
	SVIDDisplayPort uint16 = 0xff01 // VESA DisplayPort alternate mode
)

// VDMHeader is the first data object of a vendor defined message.
type VDMHeader uint32

// NewVDMHeader returns a structured VDM header with the given SVID, command
// type and command.
func NewVDMHeader(svid uint16, ct VDMCommandType, cmd VDMCommand) VDMHeader {
	return VDMHeader(svid)<<16 | 1<<15 | VDMHeader(ct)<<6 | VDMHeader(cmd)
}

// SVID returns the standard or vendor ID of the message.
func (h VDMHeader) SVID() uint16 {
	return uint16(h >> 16)
}

// Structured returns true if the structured VDM flag is set.
func (h VDMHeader) Structured() bool {
	return h&(1<<15) != 0
}

// CommandType returns the command type of a structured VDM.
func (h VDMHeader) CommandType() VDMCommandType {
	return VDMCommandType((h >> 6) & 0b11)
}

// Command returns the command of a structured VDM.
func (h VDMHeader) Command() VDMCommand {
	return VDMCommand(h & 0b11111)
}

// ObjectPosition returns the mode index the command applies to, starting
// at 1. Position 7 addresses all active modes.
func (h VDMHeader) ObjectPosition() uint8 {
	return uint8((h >> 8) & 0b111)
}

// SetObjectPosition sets the mode index the command applies to.
func (h *VDMHeader) SetObjectPosition(p uint8) {
	*h = (*h & ^(VDMHeader(0b111) << 8)) | VDMHeader(p&0b111)<<8
}

// VDMCommandType distinguishes a command request from its replies.
type VDMCommandType uint8

const (
	VDMInit VDMCommandType = 0b00
	VDMACK  VDMCommandType = 0b01
	VDMNACK VDMCommandType = 0b10
	VDMBusy VDMCommandType = 0b11
)

// VDMCommand is a structured VDM command. Values 16 and up are defined by
// the SVID; the ones here are from the DisplayPort alternate mode standard.
type VDMCommand uint8

const (
	VDMDiscoverIdentity VDMCommand = 1
	VDMDiscoverSVIDs    VDMCommand = 2
	VDMDiscoverModes    VDMCommand = 3
	VDMEnterMode        VDMCommand = 4
	VDMExitMode         VDMCommand = 5
	VDMAttention        VDMCommand = 6

	VDMDPStatusUpdate VDMCommand = 16
	VDMDPConfigure    VDMCommand = 17
)

// ParseSVIDs extracts SVIDs from the data objects of a Discover SVIDs reply.
// Each object packs two IDs; a zero ID terminates the list.
func ParseSVIDs(objs []uint32) []uint16 {
	svids := make([]uint16, 0, len(objs)*2)
	for _, o := range objs {
		for _, s := range [2]uint16{uint16(o >> 16), uint16(o)} {
			if s == 0 {
				return svids
			}
			svids = append(svids, s)
		}
	}
	return svids
}

// DPPin is a set of DisplayPort pin assignments, one per bit.
type DPPin uint8

const (
	DPPinA DPPin = 1 << iota
	DPPinB
	DPPinC
	DPPinD
	DPPinE
	DPPinF

	dpPinMultiFunc = DPPinB | DPPinD | DPPinF // assignments that leave two lanes for USB
	dpPinBR2       = DPPinA | DPPinB          // legacy Gen2 bridge assignments
	dpPinDP        = DPPinC | DPPinD          // direct DP v1.3 assignments, preferred
	dpPinUSBGen2   = DPPinE | DPPinF
)

// DPModeCaps is the mode VDO of a DisplayPort Discover Modes reply.
type DPModeCaps uint32

// Receptacle returns true if the partner's DP port is a receptacle rather
// than a plug.
func (c DPModeCaps) Receptacle() bool {
	return c&(1<<6) != 0
}

// SignalsGen2 returns true if the partner signals over USB Gen2 rather than
// DP v1.3 rates.
func (c DPModeCaps) SignalsGen2() bool {
	return c&(1<<3) != 0
}

// PinSupport returns the pin assignments the partner can accept when it is
// the DP device end.
func (c DPModeCaps) PinSupport() DPPin {
	if c.Receptacle() {
		return DPPin(c >> 16)
	}
	return DPPin(c >> 8)
}

// DPStatus is the status VDO carried in DP Status Update replies and
// Attention messages.
type DPStatus uint32

// Connected returns true if a DP device function is connected on the
// partner end.
func (s DPStatus) Connected() bool {
	return s&0b11 != 0
}

// MultiFunctionPreferred returns true if the partner prefers keeping two
// lanes for USB.
func (s DPStatus) MultiFunctionPreferred() bool {
	return s&(1<<4) != 0
}

// HPDLevel returns the hot plug detect level of the DP device.
func (s DPStatus) HPDLevel() bool {
	return s&(1<<7) != 0
}

// HPDIRQ returns true if the status carries a hot plug IRQ pulse.
func (s DPStatus) HPDIRQ() bool {
	return s&(1<<8) != 0
}

// SelectPinAssignment picks the pin assignment to configure the partner
// with, given its mode capabilities and current status. It returns zero when
// no assignment is acceptable.
//
// Unless the partner prefers multi-function, the assignments that reserve
// two lanes for USB are dropped. Gen2-signaling partners are restricted to
// the legacy bridge assignments; between two USB-C ends C/D take precedence
// over E/F. Of what remains, the highest assignment wins.
func SelectPinAssignment(caps DPModeCaps, status DPStatus) DPPin {
	pins := caps.PinSupport()
	if !status.MultiFunctionPreferred() {
		pins &^= dpPinMultiFunc
	}
	if caps.SignalsGen2() {
		pins &= dpPinBR2
	} else {
		pins &^= dpPinBR2
	}
	if pins&dpPinDP != 0 {
		pins &^= dpPinUSBGen2
	}
	if pins == 0 {
		return 0
	}
	r := DPPin(1)
	for pins > 1 {
		pins >>= 1
		r <<= 1
	}
	return r
}

// NewDPConfig builds the configuration VDO of a DP Configure command,
// selecting the given pin assignment with DP v1.3 signaling and the partner
// as the DP device end.
func NewDPConfig(pin DPPin) uint32 {
	return uint32(pin)<<8 | 1<<2 | 0b10
}
