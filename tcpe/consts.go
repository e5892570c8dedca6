package tcpe

import "time"

// Protocol timing values, taken from the Type-C and PD standards with the
// usual margins applied.
const (
	tResample          = 2 * time.Millisecond // CC debounce sampling period
	tTypeCSendSourceCap = 150 * time.Millisecond
	tSenderResponse     = 30 * time.Millisecond
	tTypeCSinkWaitCap   = 500 * time.Millisecond
	tPSTransition       = 500 * time.Millisecond
	tSrcTransition      = 30 * time.Millisecond
	tSrcRecover         = 760 * time.Millisecond
	tNoResponse         = 5000 * time.Millisecond
	tBMCTimeout         = 5 * time.Millisecond // hard reset ordered set on the wire
	tPDSourceOff        = 920 * time.Millisecond
	tPDSourceOn         = 480 * time.Millisecond
	tSwapSourceStart    = 20 * time.Millisecond
	tVconnSourceOn      = 100 * time.Millisecond
	tPSHardResetMax     = 35 * time.Millisecond
	tSafe0V             = 650 * time.Millisecond
	tSrcRecoverMax      = 1000 * time.Millisecond
	tSrcTurnOn          = 275 * time.Millisecond
	tTryDRP             = 125 * time.Millisecond
)

const (
	// nDebounce is the number of consecutive equal CC samples needed for a
	// stable attach or detach.
	nDebounce = 10

	// nCapsCount bounds how many times source capabilities are re-sent to a
	// partner that never replies.
	nCapsCount = 50

	// nHardResetCount bounds hard reset retries before the port gives up on
	// PD.
	nHardResetCount = 2
)
