// Package pdmsg defines types to encode and decode USB-C Power Delivery
// Messages.
package pdmsg

import "errors"

const (
	// MaxDataObjects is the maximum number of data objects that can be stored in
	// a message, as set by the standard.
	MaxDataObjects = 7

	// MaxMessageBytes is the maximum number of bytes in a message which includes
	// the header and the data objects.
	MaxMessageBytes = 2 + 4*MaxDataObjects // 2 bytes header, and 7 data objects, each 32 bits (4 bytes)
)

// ErrMalformed is returned when decoding a byte buffer whose length does not
// match the object count in its header.
var ErrMalformed = errors.New("malformed message")

// Message represents a power delivery message.
// Decoding of extended messages is not supported.
type Message struct {
	Header uint16

	// Data varies depending on the type of the message. For TypeSourceCap and
	// TypeSinkCap, the data element should be converted to PDO, and further to
	// specific PDO type based on PDO.Type(). For TypeVendorDefined, the first
	// element should be converted to VDMHeader.
	//
	// Size of Data is fixed up to maximum allowable message size, to ensure no
	// heap allocations are necessary. To find out how many actual elements are
	// used, use DataObjectCount().
	Data [MaxDataObjects]uint32
}

// ToBytes serializes the message to a byte slice and returns the number of
// bytes written.
func (m Message) ToBytes(b []byte) uint8 {
	b[0] = byte(m.Header & 0xff)
	b[1] = byte((m.Header >> 8) & 0xff)
	c := m.DataObjectCount()
	for i, d := range m.Data[:c] {
		b[2+i*4] = byte(d & 0xff)
		b[3+i*4] = byte((d >> 8) & 0xff)
		b[4+i*4] = byte((d >> 16) & 0xff)
		b[5+i*4] = byte((d >> 24) & 0xff)
	}
	return 2 + c*4
}

// FromBytes decodes a message from a byte slice. It returns ErrMalformed if
// the buffer is shorter than the header and data objects it declares.
func FromBytes(b []byte) (Message, error) {
	var m Message
	if len(b) < 2 {
		return m, ErrMalformed
	}
	m.Header = uint16(b[0]) | uint16(b[1])<<8
	c := m.DataObjectCount()
	if len(b) < int(2+c*4) {
		return Message{}, ErrMalformed
	}
	for i := uint8(0); i < c; i++ {
		m.Data[i] = uint32(b[2+i*4]) | uint32(b[3+i*4])<<8 |
			uint32(b[4+i*4])<<16 | uint32(b[5+i*4])<<24
	}
	return m, nil
}

// IsExtended returns true if the message has its extended flag set.
func (m Message) IsExtended() bool {
	return m.Header&(1<<15) != 0
}

// SetExtended sets the extended flag in the message.
func (m *Message) SetExtended(e bool) {
	var b uint16
	if e {
		b = 1 << 15
	}
	m.Header = (m.Header & ^(uint16(1) << 15)) | b
}

// ID returns the message ID.
func (m Message) ID() uint8 {
	return uint8((m.Header >> 9) & 0b111)
}

// SetID sets the message ID.
func (m *Message) SetID(id uint8) {
	m.Header = (m.Header & ^(uint16(0b111) << 9)) | (uint16(id) << 9)
}

// DataObjectCount returns the number of data objects in the message.
func (m Message) DataObjectCount() uint8 {
	return uint8((m.Header >> 12) & 0b111)
}

// SetDataObjectCount sets the number of data objects in the message.
func (m *Message) SetDataObjectCount(n uint8) {
	m.Header = (m.Header & ^(uint16(0b111) << 12)) | (uint16(n) << 12)
}

// IsData returns true of the message is a data message, otherwise it's a
// control message.
func (m Message) IsData() bool {
	return m.DataObjectCount() > 0
}

// IsControl returns true if the message is the given control message type.
func (m Message) IsControl(t Type) bool {
	return !m.IsData() && m.Type() == t
}

// Type returns the message type. As data and control messages share the same
// value of some types, the user must check IsData in addition to Type, to
// determine the correct type of the message.
func (m Message) Type() Type {
	return Type(m.Header & 0b11111)
}

// SetType sets the message type.
func (m *Message) SetType(t Type) {
	m.Header = (m.Header & ^uint16(0b11111)) | uint16(t)
}

// Type represents the PD message type. For control messages, the value of the
// type is equivalent to that of the PD spec. Actual message type requires
// determining if the message is a control or a data message using IsData().
type Type uint8

// Control message types
const (
	TypeGoodCRC      Type = 0b00001
	TypeGotoMin      Type = 0b00010
	TypeAccept       Type = 0b00011
	TypeReject       Type = 0b00100
	TypePing         Type = 0b00101
	TypePSReady      Type = 0b00110
	TypeGetSourceCap Type = 0b00111
	TypeGetSinkCap   Type = 0b01000
	TypeDRSwap       Type = 0b01001
	TypePRSwap       Type = 0b01010
	TypeVconnSwap    Type = 0b01011
	TypeWait         Type = 0b01100
	TypeSoftReset    Type = 0b01101
)

// Data message types
const (
	TypeSourceCap     Type = 0b00001
	TypeRequest       Type = 0b00010
	TypeBIST          Type = 0b00011
	TypeSinkCap       Type = 0b00100
	TypeVendorDefined Type = 0b01111
)

// Revision returns the power delivery revision number of the message.
func (m Message) Revision() Revision {
	return Revision((m.Header >> 6) & 0b11)
}

// SetRevision sets the power delivery revision number of the message.
func (m *Message) SetRevision(r Revision) {
	m.Header = (m.Header & ^(uint16(0b11) << 6)) | uint16(r<<6)
}

// Revision represents the power delivery revision number of a message.
type Revision uint8

// Power delivery revision numbers.
const (
	Revision10 Revision = 0b00
	Revision20 Revision = 0b01
	Revision30 Revision = 0b10
)

// PowerRole returns the power role of the sender of the message.
func (m Message) PowerRole() PowerRole {
	return PowerRole((m.Header >> 8) & 1)
}

// SetPowerRole sets the power role of the sender of the message.
func (m *Message) SetPowerRole(r PowerRole) {
	m.Header = (m.Header & ^(uint16(1) << 8)) | (uint16(r) << 8)
}

// PowerRole represents the power role of the sender of a message.
type PowerRole uint8

// Power roles of the sender of a message.
const (
	PowerRoleSink   PowerRole = 0
	PowerRoleSource PowerRole = 1
)

// DataRole returns the data role of the sender of the message.
func (m Message) DataRole() DataRole {
	return DataRole((m.Header >> 5) & 1)
}

// SetDataRole sets the data role of the sender of the message.
func (m *Message) SetDataRole(r DataRole) {
	m.Header = (m.Header & ^(uint16(1) << 5)) | uint16(r<<5)
}

// DataRole represents the data role of the sender of a message.
type DataRole uint8

// Data roles of the sender of a message.
const (
	DataRoleUFP DataRole = 0
	DataRoleDFP DataRole = 1
)

// PDO is a generic Power Data Object. Based on its type, it should be
// converted to specific PDO type to allow extracting various fields.
type PDO uint32

// Type returns the type of the power data object.
func (o PDO) Type() PDOType {
	return PDOType((o >> 30) & 0b11)
}

// PDOType represents the type of a power data object.
type PDOType uint8

// Power data object types.
const (
	PDOTypeFixedSupply    PDOType = 0b00
	PDOTypeBattery        PDOType = 0b01
	PDOTypeVariableSupply PDOType = 0b10
)

// FixedSupplyPDO represents a Fixed Supply Power Data Object
type FixedSupplyPDO uint32

// NewFixedSupplyPDO returns a new blank FixedSupplyPDO.
func NewFixedSupplyPDO() FixedSupplyPDO {
	return FixedSupplyPDO(0)
}

// Voltage returns voltage in millivolts.
func (o FixedSupplyPDO) Voltage() uint16 {
	return uint16(((o >> 10) & (1<<10 - 1)) * 50)
}

// SetVoltage will round the given voltage to the nearest 50mV.
func (o *FixedSupplyPDO) SetVoltage(v uint16) {
	*o = (*o & ^((FixedSupplyPDO(1)<<10 - 1) << 10)) | ((FixedSupplyPDO(v)/50)&(1<<10-1))<<10
}

// MaxCurrent returns maximum current in milliamps
func (o FixedSupplyPDO) MaxCurrent() uint16 {
	return uint16((o & (1<<10 - 1)) * 10)
}

// SetMaxCurrent will round the given current to the nearest 10mV.
func (o *FixedSupplyPDO) SetMaxCurrent(v uint16) {
	*o = (*o & ^(FixedSupplyPDO(1)<<10 - 1)) | (FixedSupplyPDO(v)/10)&(1<<10-1)
}

// PeakCurrent returns the peak current capability class.
func (o FixedSupplyPDO) PeakCurrent() uint8 {
	return uint8((o >> 20) & 0b11)
}

// SetPeakCurrent sets the peak current capability class, 0 through 3.
func (o *FixedSupplyPDO) SetPeakCurrent(c uint8) {
	*o = (*o & ^(FixedSupplyPDO(0b11) << 20)) | FixedSupplyPDO(c&0b11)<<20
}

// DualRolePower returns true if the dual role power flag is set.
func (o FixedSupplyPDO) DualRolePower() bool {
	return o&(1<<29) != 0
}

// SetDualRolePower sets the dual role power flag.
func (o *FixedSupplyPDO) SetDualRolePower(b bool) {
	o.setFlag(29, b)
}

// USBSuspend returns true if the USB suspend supported flag is set.
func (o FixedSupplyPDO) USBSuspend() bool {
	return o&(1<<28) != 0
}

// SetUSBSuspend sets the USB suspend supported flag.
func (o *FixedSupplyPDO) SetUSBSuspend(b bool) {
	o.setFlag(28, b)
}

// ExternallyPowered returns true if the externally powered flag is set.
func (o FixedSupplyPDO) ExternallyPowered() bool {
	return o&(1<<27) != 0
}

// SetExternallyPowered sets the externally powered flag.
func (o *FixedSupplyPDO) SetExternallyPowered(b bool) {
	o.setFlag(27, b)
}

// USBComms returns true if the USB communications capable flag is set.
func (o FixedSupplyPDO) USBComms() bool {
	return o&(1<<26) != 0
}

// SetUSBComms sets the USB communications capable flag.
func (o *FixedSupplyPDO) SetUSBComms(b bool) {
	o.setFlag(26, b)
}

// DataRoleSwap returns true if the data role swap flag is set.
func (o FixedSupplyPDO) DataRoleSwap() bool {
	return o&(1<<25) != 0
}

// SetDataRoleSwap sets the data role swap flag.
func (o *FixedSupplyPDO) SetDataRoleSwap(b bool) {
	o.setFlag(25, b)
}

func (o *FixedSupplyPDO) setFlag(bit uint, set bool) {
	var b FixedSupplyPDO
	if set {
		b = 1 << bit
	}
	*o = (*o & ^(FixedSupplyPDO(1) << bit)) | b
}

// VariableSupplyPDO represents a Variable Supply (non-battery) Power Data
// Object.
type VariableSupplyPDO uint32

// NewVariableSupplyPDO returns a new blank VariableSupplyPDO.
func NewVariableSupplyPDO() VariableSupplyPDO {
	return VariableSupplyPDO(0b10) << 30
}

// MinVoltage returns minimum voltage in millivolts.
func (o VariableSupplyPDO) MinVoltage() uint16 {
	return uint16(((o >> 10) & (1<<10 - 1)) * 50)
}

// SetMinVoltage sets the minimum voltage, rounded to the nearest 50mV.
func (o *VariableSupplyPDO) SetMinVoltage(v uint16) {
	*o = (*o & ^((VariableSupplyPDO(1)<<10 - 1) << 10)) | ((VariableSupplyPDO(v)/50)&(1<<10-1))<<10
}

// MaxVoltage returns maximum voltage in millivolts.
func (o VariableSupplyPDO) MaxVoltage() uint16 {
	return uint16(((o >> 20) & (1<<10 - 1)) * 50)
}

// SetMaxVoltage sets the maximum voltage, rounded to the nearest 50mV.
func (o *VariableSupplyPDO) SetMaxVoltage(v uint16) {
	*o = (*o & ^((VariableSupplyPDO(1)<<10 - 1) << 20)) | ((VariableSupplyPDO(v)/50)&(1<<10-1))<<20
}

// MaxCurrent returns maximum current in milliamps.
func (o VariableSupplyPDO) MaxCurrent() uint16 {
	return uint16((o & (1<<10 - 1)) * 10)
}

// SetMaxCurrent sets the maximum current, rounded to the nearest 10mA.
func (o *VariableSupplyPDO) SetMaxCurrent(v uint16) {
	*o = (*o & ^(VariableSupplyPDO(1)<<10 - 1)) | (VariableSupplyPDO(v)/10)&(1<<10-1)
}

// RequestDO represents a Request Data Object.
type RequestDO uint32

// EmptyRequestDO is returned by device policy managers to indicate that they do
// not accept any of the power profiles supported by the power source.
const EmptyRequestDO RequestDO = 0

// SelectedObjectPosition returns the position number of the PDO in the source
// capability message, starting at 1.
func (o RequestDO) SelectedObjectPosition() uint8 {
	return uint8(o >> 28)
}

// SetSelectedObjectPosition sets the position number of the PDO the source
// capability message, starting at 1.
func (o *RequestDO) SetSelectedObjectPosition(p uint8) {
	*o = (*o & ^(RequestDO(0b1111) << 28)) | RequestDO(p)<<28
}

// CapabilityMismatch returns true if capability mismatch flag of the RDO is
// set.
func (o RequestDO) CapabilityMismatch() bool {
	return o&(1<<26) != 0
}

// SetCapabilityMismatch sets the capability mismatch flag of the RDO.
func (o *RequestDO) SetCapabilityMismatch(m bool) {
	var b RequestDO
	if m {
		b = 1 << 26
	}
	*o = (*o & ^(RequestDO(1) << 26)) | b
}

// FixedOperatingCurrent returns current in milliamps for fixed request
// objects.
func (o RequestDO) FixedOperatingCurrent() uint16 {
	return uint16(((o >> 10) & (1<<10 - 1)) * 10)
}

// SetFixedOperatingCurrent sets current in milliamps rounded to nearest 10mA
// for fixed request objects.
func (o *RequestDO) SetFixedOperatingCurrent(c uint16) {
	*o = (*o & ^((RequestDO(1)<<10 - 1) << 10)) | ((RequestDO(c)/10)&(1<<10-1))<<10
}

// FixedMaxOperatingCurrent returns current in milliamps for fixed request
// objects without GiveBack support.
func (o RequestDO) FixedMaxOperatingCurrent() uint16 {
	return uint16((o & (1<<10 - 1)) * 10)
}

// SetFixedMaxOperatingCurrent sets current in milliamps rounded to nearest
// 10mA for fixed request objects without GiveBack support.
func (o *RequestDO) SetFixedMaxOperatingCurrent(c uint16) {
	*o = (*o & ^(RequestDO(1)<<10 - 1)) | ((RequestDO(c) / 10) & (1<<10 - 1))
}
