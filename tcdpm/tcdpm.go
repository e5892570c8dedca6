// Package tcdpm implements some useful device policy managers for common use.
package tcdpm

import (
	"errors"
	"fmt"
	"io"

	"github.com/quoll/go-ucpd/pdmsg"
	"github.com/quoll/go-ucpd/tcpe"
)

// Policy is the interface which simply embeds CapabilityEvaluator.
type Policy interface {
	// Validate returns an error if the policy parameters are invalid.
	Validate() error
	tcpe.CapabilityEvaluator
}

var (
	errBadVoltage            = errors.New("tcdpm: voltage must be >= 3300mV & <= 21000 mV")
	errBadCurrent            = errors.New("tcdpm: current must be <= 5000mA")
	errMaxVoltageLessThanMin = errors.New("tcdpm: max voltage must be >= min voltage")
)

// CVPolicy defines a constant voltage policy where the power source is
// expected to maintain the negotiated voltage and to be capable of supplying
// at least the negotiated current. Only fixed and variable supply profiles
// are considered.
type CVPolicy struct {

	// Minimum accepted voltage in millivolts.
	MinVoltage uint16

	// Maximum accepted voltage in millivolts.
	MaxVoltage uint16

	// Current in milliamps that the source must be able to supply at the
	// negotiated voltage.
	Current uint16

	// If a source provides multiple profiles within the voltage range of a
	// policy, it's possible to prefer lower voltage profiles than the default
	// higher voltage profiles.
	PreferLowerVoltage bool
}

// Validate returns an error if the policy parameters are invalid.
func (c CVPolicy) Validate() error {
	if c.Current > 5000 {
		return errBadCurrent
	}
	if c.MinVoltage < 3300 || c.MaxVoltage < 3300 || c.MinVoltage > 21000 || c.MaxVoltage > 21000 {
		return errBadVoltage
	}
	if c.MinVoltage > c.MaxVoltage {
		return errMaxVoltageLessThanMin
	}
	return nil
}

// EvaluateCapabilities evaluates the provided power profiles against the
// policy and returns the 1-based position of the best match, or 0 when no
// profile satisfies the policy.
func (c CVPolicy) EvaluateCapabilities(pdos []pdmsg.PDO) uint8 {
	var bestVoltage uint16
	if c.PreferLowerVoltage {
		bestVoltage = ^uint16(0)
	}
	var pos uint8
	for i, p := range pdos {
		var v, cur uint16
		switch p.Type() {
		case pdmsg.PDOTypeFixedSupply:
			fs := pdmsg.FixedSupplyPDO(p)
			v, cur = fs.Voltage(), fs.MaxCurrent()
		case pdmsg.PDOTypeVariableSupply:
			vs := pdmsg.VariableSupplyPDO(p)
			v, cur = vs.MinVoltage(), vs.MaxCurrent()
		default:
			continue
		}
		if v < c.MinVoltage || v > c.MaxVoltage || cur < c.Current {
			continue
		}
		if (c.PreferLowerVoltage && v < bestVoltage) || (!c.PreferLowerVoltage && v > bestVoltage) {
			pos = uint8(i + 1)
			bestVoltage = v
		}
	}
	return pos
}

// ChargerPolicy picks the most powerful profile a downstream charge IC can
// take, scanning from the highest advertised profile down. It mirrors how
// battery charger drivers bound their input: a hard voltage ceiling and a
// current ceiling at that voltage.
type ChargerPolicy struct {

	// MaxVoltage is the charge IC's input voltage ceiling in millivolts.
	MaxVoltage uint16

	// MaxCurrent is the charge IC's input current ceiling in milliamps.
	// Zero means no current limit.
	MaxCurrent uint16
}

// Validate returns an error if the policy parameters are invalid.
func (c ChargerPolicy) Validate() error {
	if c.MaxVoltage < 3300 || c.MaxVoltage > 21000 {
		return errBadVoltage
	}
	if c.MaxCurrent > 5000 {
		return errBadCurrent
	}
	return nil
}

// EvaluateCapabilities returns the 1-based position of the highest profile
// within the charge IC's limits, or 0 when none fits.
func (c ChargerPolicy) EvaluateCapabilities(pdos []pdmsg.PDO) uint8 {
	for i := len(pdos) - 1; i >= 0; i-- {
		var v, cur uint16
		switch pdos[i].Type() {
		case pdmsg.PDOTypeFixedSupply:
			fs := pdmsg.FixedSupplyPDO(pdos[i])
			v, cur = fs.Voltage(), fs.MaxCurrent()
		case pdmsg.PDOTypeVariableSupply:
			vs := pdmsg.VariableSupplyPDO(pdos[i])
			v, cur = vs.MaxVoltage(), vs.MaxCurrent()
		default:
			continue
		}
		if v <= c.MaxVoltage && (c.MaxCurrent == 0 || cur <= c.MaxCurrent) {
			return uint8(i + 1)
		}
	}
	return 0
}

// Logger is a passthrough policy that writes a textual description of source
// capabilities to a given io.Writer. It's mostly used for debugging purposes.
type Logger struct {
	w    io.Writer
	sep  string
	base Policy
}

// NewLogger creates a new logger which will write to the given writer and
// optionally passes through the evaluate calls. If no base is provided, this
// policy will decline all profiles when EvaluateCapabilities is called by the
// policy engine. Line separator is written to the writer after each line of
// output. Some common values are "\n", "\r", "\r\n".
func NewLogger(w io.Writer, lineSep string, base Policy) *Logger {
	return &Logger{
		w:    w,
		sep:  lineSep,
		base: base,
	}
}

// Validate returns nil if the policy is valid.
func (l *Logger) Validate() error {
	if l.base != nil {
		return l.base.Validate()
	}
	return nil
}

// EvaluateCapabilities writes out the textual description of the provided
// power data objects and passes it down to the underlying DPM and returns its
// response.
func (l *Logger) EvaluateCapabilities(pdos []pdmsg.PDO) uint8 {
	fmt.Fprintf(l.w, "Received %d profiles:%s", len(pdos), l.sep)
	for i, p := range pdos {
		fmt.Fprintf(l.w, "  %d) ", i+1)
		switch p.Type() {
		case pdmsg.PDOTypeFixedSupply:
			fs := pdmsg.FixedSupplyPDO(p)
			fmt.Fprintf(l.w, "Fixed %.1fV @ max. %.1fA", float32(fs.Voltage())/1000, float32(fs.MaxCurrent())/1000)
		case pdmsg.PDOTypeVariableSupply:
			vs := pdmsg.VariableSupplyPDO(p)
			fmt.Fprintf(l.w, "Variable %.1f-%.1fV @ max. %.1fA",
				float32(vs.MinVoltage())/1000, float32(vs.MaxVoltage())/1000, float32(vs.MaxCurrent())/1000)
		case pdmsg.PDOTypeBattery:
			fmt.Fprint(l.w, "Battery (not supported)")
		default:
			fmt.Fprint(l.w, "INVALID!")
		}
		fmt.Fprint(l.w, l.sep)
	}
	if l.base != nil {
		return l.base.EvaluateCapabilities(pdos)
	}
	return 0
}
