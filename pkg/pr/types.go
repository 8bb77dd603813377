// Package pr implements the per-LUN SCSI-3 persistent-reservation state
// machine (spec.md §4.G, grounded on
// target/iscsi/src/scsi_persistent_reservations.c). It tracks registrations
// and reservation holders across PR-IN / PR-OUT service actions and decides
// whether a given session may proceed with a SCSI command against a LUN.
package pr

// ReservationType mirrors pr_type_t. Values are the SPC-3 table 12 codes,
// not sequential Go iota values, because READ_RESERVATION packs the raw
// value into the reply payload (spec.md §4.G "PR-IN").
type ReservationType byte

const (
	TypeNone                           ReservationType = 0x0
	TypeWriteExclusive                 ReservationType = 0x1
	TypeExclusiveAccess                ReservationType = 0x3
	TypeWriteExclusiveRegistrantsOnly  ReservationType = 0x5
	TypeExclusiveAccessRegistrantsOnly ReservationType = 0x6
	TypeWriteExclusiveAllRegistrants   ReservationType = 0x7
	TypeExclusiveAccessAllRegistrants  ReservationType = 0x8
)

func (t ReservationType) isAllRegistrants() bool {
	return t == TypeWriteExclusiveAllRegistrants || t == TypeExclusiveAccessAllRegistrants
}

func (t ReservationType) isRegistrantsOnlyOrAll() bool {
	switch t {
	case TypeWriteExclusiveRegistrantsOnly, TypeExclusiveAccessRegistrantsOnly,
		TypeWriteExclusiveAllRegistrants, TypeExclusiveAccessAllRegistrants:
		return true
	default:
		return false
	}
}

// OutAction enumerates the PERSISTENT RESERVE OUT service actions (SPC-3
// table 107).
type OutAction int

const (
	OutRegister OutAction = iota
	OutReserve
	OutRelease
	OutClear
	OutPreempt
	OutPreemptAndAbort
	OutRegisterAndIgnoreExistingKey
	OutRegisterAndMove
)

// InAction enumerates the PERSISTENT RESERVE IN service actions (SPC-3
// table 104). ReadFullStatus is named but not implemented, per spec.md §6
// ("READ_FULL_STATUS is reserved").
type InAction int

const (
	InReadKeys InAction = iota
	InReadReservation
	InReportCapabilities
	InReadFullStatus
)

// Key is the 8-byte SCSI reservation key carried in PR-OUT parameter lists.
type Key uint64

// LUN identifies a logical unit within a Context.
type LUN int

const (
	// WrongMaxNodes caps MAX_GLOBAL_SESSION below the cluster-wide node
	// count in large clusters. Kept under its original name: this is a
	// known limitation of the ported engine, not a bug to silently fix
	// (spec.md Open Question, §9).
	WrongMaxNodes = 32

	// configTargetMaxSessions is not given a concrete value anywhere in
	// the retrieved sources (CONFIG_TARGET_MAX_SESSIONS is defined in a
	// header outside the retrieval pack); 8 concurrent iSCSI sessions per
	// node is used here as a representative value, matching the other
	// per-node session caps carried by this port.
	configTargetMaxSessions = 8

	// MaxGlobalSession is the highest live session id handed out to an
	// active nexus.
	MaxGlobalSession = WrongMaxNodes * configTargetMaxSessions

	// PRNexusLossRegistrationData is the number of extra session slots
	// reserved for stashing a dropped nexus's registrations.
	PRNexusLossRegistrationData = 64

	// MaxGlobalSessionPlusExtra bounds the whole session id space,
	// live sessions plus nexus-loss stash slots.
	MaxGlobalSessionPlusExtra = MaxGlobalSession + PRNexusLossRegistrationData

	// MaxRegistrations is the number of registration slots kept per LUN.
	MaxRegistrations = 32

	// MaxLUNs bounds the per-target LUN array; not given a concrete
	// value in the retrieved sources, chosen to comfortably cover one
	// iSCSI target's exported volumes.
	MaxLUNs = 256

	// sessionIDNone marks an empty registration slot. It sits above the
	// whole id range (MaxGlobalSessionPlusExtra + 1) so it can never collide
	// with a real session id, including stashed ones.
	sessionIDNone = MaxGlobalSessionPlusExtra + 1

	// SPC2ReserveNone marks the absence of an SPC-2 RESERVE/RELEASE
	// holder on a LUN.
	SPC2ReserveNone = -1
)

// Registration is one {session, key} pair held against a LUN.
type Registration struct {
	SessionID int
	Key       Key
}

func (r Registration) active() bool { return r.SessionID != sessionIDNone }
