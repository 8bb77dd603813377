package pr

import (
	"github.com/exanodes/vrtcore/pkg/vrterr"
)

const luScope = 0

// OutRequest carries one PERSISTENT RESERVE OUT invocation (spec.md §4.G).
// Scope is only meaningful for non-LU_SCOPE rejection; every volume this
// engine arbitrates is LU-scoped.
type OutRequest struct {
	Action           OutAction
	SessionID        int
	LUN              LUN
	Scope            int
	ReservationKey   Key
	ServiceActionKey Key
	Type             ReservationType
	SpecIPT          bool
}

// checkRegistration validates the reservation key carried in req against
// the session's current registration before any service action runs
// (check_registration).
func (c *Context) checkRegistration(sessionID int, lun LUN, reservationKey Key, action OutAction) bool {
	info := c.info(lun)
	isRegistered := info.isRegistered(sessionID)
	currentKey := info.registrationKey(sessionID)

	if action != OutRegisterAndIgnoreExistingKey && isRegistered && currentKey != reservationKey {
		log.With("lun", lun).With("session", sessionID).
			Warningf("registration check failed, key mismatch (received %d / current %d)", reservationKey, currentKey)
		return false
	}

	if action != OutRegisterAndIgnoreExistingKey && action != OutRegister && !isRegistered {
		log.With("lun", lun).With("session", sessionID).Warning("registration check failed, session not registered")
		return false
	}

	return true
}

// ReserveOut dispatches one PERSISTENT RESERVE OUT service action,
// advancing Generation on success except for RESERVE and RELEASE
// (pr_reserve_out). The returned error is only ever a resource exhaustion
// from the engine itself (e.g. no free registration slot); PR conflicts
// and protocol violations are reported through Result.
func (c *Context) ReserveOut(req OutRequest) (Result, error) {
	if req.Scope != luScope &&
		req.Action != OutRegister &&
		req.Action != OutRegisterAndIgnoreExistingKey &&
		req.Action != OutClear {
		return checkCondition(SenseIllegalRequest, AscInvalidFieldInCDB), nil
	}

	if !c.checkRegistration(req.SessionID, req.LUN, req.ReservationKey, req.Action) {
		return reservationConflict(), nil
	}

	result, err := c.dispatchOut(req)
	if err != nil {
		return Result{}, err
	}

	if result.Status == StatusGood && req.Action != OutReserve && req.Action != OutRelease {
		c.info(req.LUN).Generation++
	}

	return result, nil
}

func (c *Context) dispatchOut(req OutRequest) (Result, error) {
	switch req.Action {
	case OutRegister:
		return c.doRegister(req)

	case OutRegisterAndIgnoreExistingKey:
		return c.doRegisterAndIgnoreExistingKey(req)

	case OutReserve:
		if c.persistentReserveLun(req.SessionID, req.LUN, req.ReservationKey, req.Type) {
			return ok(), nil
		}
		return reservationConflict(), nil

	case OutRelease:
		return c.persistentReleaseLun(req.SessionID, req.LUN, req.Type), nil

	case OutClear:
		return c.persistentClearLun(req.SessionID, req.LUN), nil

	case OutPreempt, OutPreemptAndAbort:
		// PREEMPT_AND_ABORT additionally aborts the preempted sessions'
		// in-flight tasks; this engine leaves task abort to the SCSI
		// target layer and only updates PR state.
		return c.persistentPreemptLun(req.SessionID, req.LUN, req.ServiceActionKey, req.Type), nil

	case OutRegisterAndMove:
		log.With("lun", req.LUN).With("session", req.SessionID).Error("register_and_move not supported")
		return checkCondition(SenseIllegalRequest, AscNone), nil

	default:
		log.With("lun", req.LUN).With("session", req.SessionID).Errorf("unexpected service action %v", req.Action)
		return checkCondition(SenseIllegalRequest, AscNone), nil
	}
}

func (c *Context) doRegister(req OutRequest) (Result, error) {
	if !req.SpecIPT {
		return c.persistentRegisterLun(req.SessionID, req.LUN, req.ServiceActionKey)
	}

	if req.ReservationKey != 0 {
		log.With("lun", req.LUN).With("session", req.SessionID).
			Warning("register with spec_i_pt not allowed on an already-registered nexus")
		return checkCondition(SenseIllegalRequest, AscInvalidFieldInCDB), nil
	}

	return c.persistentRegisterLun(req.SessionID, req.LUN, req.ServiceActionKey)
}

func (c *Context) doRegisterAndIgnoreExistingKey(req OutRequest) (Result, error) {
	info := c.info(req.LUN)

	if req.ServiceActionKey == 0 && !info.isRegistered(req.SessionID) {
		return ok(), nil
	}

	if req.SpecIPT {
		log.With("lun", req.LUN).With("session", req.SessionID).Warning("register_and_ignore_existing_key not allowed with spec_i_pt")
		return checkCondition(SenseIllegalRequest, AscInvalidFieldInCDB), nil
	}

	return c.persistentRegisterLun(req.SessionID, req.LUN, req.ServiceActionKey)
}

// persistentRegisterLun implements REGISTER/REGISTER_AND_IGNORE_EXISTING_KEY
// once spec_i_pt has been handled: a nonzero key inserts or updates a
// registration, a zero key unregisters and, per the single-holder /
// all-registrants teardown rules, may also clear the reservation
// (persistent_register_lun).
func (c *Context) persistentRegisterLun(sessionID int, lun LUN, key Key) (Result, error) {
	info := c.info(lun)

	log.With("lun", lun).With("session", sessionID).Debugf("register with key %d", key)

	if key != 0 {
		if !info.addRegistration(sessionID, key) {
			return Result{}, vrterr.ErrNoSpace
		}
		return ok(), nil
	}

	removeRegistration := true

	if c.IsLUNReserved(lun) {
		if info.ReservationType.isAllRegistrants() {
			removeRegistration = c.IsHolder(sessionID, lun)
			for _, id := range info.activeRegistrants() {
				if id != sessionID && c.sessionIDUsed[id] {
					removeRegistration = false
				}
			}
		} else {
			removeRegistration = c.IsHolder(sessionID, lun)

			if info.ReservationType == TypeWriteExclusiveRegistrantsOnly ||
				info.ReservationType == TypeExclusiveAccessRegistrantsOnly {
				for _, id := range info.activeRegistrants() {
					if id != sessionID && c.sessionIDUsed[id] {
						c.sendSense(id, lun, StatusCheckCondition, SenseUnitAttention, AscReservationsReleased)
					}
				}
			}
		}

		if removeRegistration {
			info.ReservationType = TypeNone
			info.clearRegistrations()
		}
	}

	info.delRegistration(sessionID)
	return ok(), nil
}

// persistentReserveLun implements RESERVE: the session must already hold a
// registration (enforced by checkRegistration before this runs), and the
// LUN must be unreserved or already held by this session with a matching
// type (persistent_reserve_lun).
func (c *Context) persistentReserveLun(sessionID int, lun LUN, _ Key, accessType ReservationType) bool {
	info := c.info(lun)

	if c.IsLUNReserved(lun) && !c.IsHolder(sessionID, lun) {
		log.With("lun", lun).With("session", sessionID).Warning("cannot reserve, already reserved by another session")
		return false
	}

	if c.IsLUNReserved(lun) && c.IsHolder(sessionID, lun) && info.ReservationType != accessType {
		log.With("lun", lun).With("session", sessionID).
			Warningf("cannot change reservation type (received %02x / current %02x)", accessType, info.ReservationType)
		return false
	}

	info.ReservationType = accessType
	info.setHolder(sessionID)
	return true
}

// persistentReleaseLun implements RELEASE (persistent_release_lun).
func (c *Context) persistentReleaseLun(sessionID int, lun LUN, reservationType ReservationType) Result {
	info := c.info(lun)

	if c.IsLUNReserved(lun) && !c.IsHolder(sessionID, lun) {
		log.With("lun", lun).With("session", sessionID).Warning("cannot release, not the holder")
		return reservationConflict()
	}

	if c.IsLUNReserved(lun) && c.IsHolder(sessionID, lun) && reservationType != info.ReservationType {
		log.With("lun", lun).With("session", sessionID).
			Warningf("cannot release, type mismatch (received %02x / current %02x)", reservationType, info.ReservationType)
		return checkCondition(SenseIllegalRequest, AscInvalidReleaseOfPR)
	}

	if info.ReservationType != TypeWriteExclusive && info.ReservationType != TypeExclusiveAccess {
		c.notifyOthers(lun, sessionID, info.activeRegistrants(), AscReservationsReleased)
	}

	info.ReservationType = TypeNone
	info.holderIndex = MaxRegistrations
	return ok()
}

// persistentClearLun implements CLEAR (persistent_clear_lun).
func (c *Context) persistentClearLun(sessionID int, lun LUN) Result {
	info := c.info(lun)

	for idx := range info.registrations {
		id := info.registrations[idx].SessionID
		info.registrations[idx] = Registration{SessionID: sessionIDNone}

		if id != sessionID && id != sessionIDNone {
			c.sendSense(id, lun, StatusCheckCondition, SenseUnitAttention, AscNone)
		}
	}

	info.ReservationType = TypeNone
	info.holderIndex = MaxRegistrations
	return ok()
}

// persistentPreemptLun implements PREEMPT (and the PR-state half of
// PREEMPT_AND_ABORT): registrations matching service_action_key (or every
// registration but the preempter's own, for all-registrants types with a
// zero key) are dropped; if a reservation remains and the preempter
// qualifies, it becomes the new holder (persistent_preempt_lun).
func (c *Context) persistentPreemptLun(sessionID int, lun LUN, serviceActionKey Key, accessType ReservationType) Result {
	info := c.info(lun)
	allRegistrants := info.ReservationType.isAllRegistrants()

	if !allRegistrants && serviceActionKey == 0 {
		log.With("lun", lun).With("session", sessionID).Warning("cannot preempt, operation not allowed")
		return checkCondition(SenseIllegalRequest, AscInvalidFieldInParameterList)
	}

	// Captured before the removal loop below: a single-holder reservation's
	// own registration is removed in that loop whenever the preempter
	// targets the holder's key, which would otherwise make the holder
	// qualification check below compare against an already-wiped key.
	holderKeyBefore := c.HolderKey(lun)

	for idx := range info.registrations {
		key := info.registrations[idx].Key
		id := info.registrations[idx].SessionID

		if (serviceActionKey == key || serviceActionKey == 0) && id != sessionID && id != sessionIDNone {
			info.registrations[idx] = Registration{SessionID: sessionIDNone}
			c.sendSense(id, lun, StatusCheckCondition, SenseUnitAttention, AscNone)
		}
	}

	result := ok()

	if !c.IsLUNReserved(lun) {
		return result
	}

	if (allRegistrants && serviceActionKey == 0) ||
		(!allRegistrants && serviceActionKey == holderKeyBefore) {
		info.setHolder(sessionID)
		info.ReservationType = accessType
	}

	return result
}

// persistentSpc2ReserveLun implements the coexisting SCSI-2 RESERVE(6),
// allowed only while the LUN carries no PR registration and no PR
// reservation (can_use_spc2_reserve, spc2r20 5.5.1).
func (c *Context) persistentSpc2ReserveLun(sessionID int, lun LUN) bool {
	if !c.canUseSpc2Reserve(lun, sessionID) {
		return false
	}

	info := c.info(lun)
	if info.SPC2Reserve != SPC2ReserveNone && info.SPC2Reserve != sessionID {
		log.With("lun", lun).With("session", sessionID).
			Warningf("cannot get SPC-2 reservation, already reserved by session %d", info.SPC2Reserve)
		return false
	}

	info.SPC2Reserve = sessionID
	return true
}

// persistentSpc2ReleaseLun implements RELEASE(6).
func (c *Context) persistentSpc2ReleaseLun(sessionID int, lun LUN) bool {
	if !c.canUseSpc2Reserve(lun, sessionID) {
		return false
	}

	info := c.info(lun)
	if info.SPC2Reserve != SPC2ReserveNone && info.SPC2Reserve != sessionID {
		return false
	}

	info.SPC2Reserve = SPC2ReserveNone
	return true
}

func (c *Context) canUseSpc2Reserve(lun LUN, sessionID int) bool {
	info := c.info(lun)
	return !c.IsLUNReserved(lun) && !info.hasRegistrations()
}

// Reserve6 and Release6 are the engine-facing entry points for the legacy
// SCSI-2 RESERVE(6)/RELEASE(6) commands, which coexist with PR only while
// the LUN has no registrations and no PR reservation.
func (c *Context) Reserve6(sessionID int, lun LUN) Result {
	if c.persistentSpc2ReserveLun(sessionID, lun) {
		return ok()
	}
	return reservationConflict()
}

func (c *Context) Release6(sessionID int, lun LUN) Result {
	if c.persistentSpc2ReleaseLun(sessionID, lun) {
		return ok()
	}
	return reservationConflict()
}
