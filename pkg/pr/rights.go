package pr

// IsLUNReserved reports whether lun currently has any persistent
// reservation (is_lun_reserved).
func (c *Context) IsLUNReserved(lun LUN) bool {
	return c.info(lun).ReservationType != TypeNone
}

// IsHolder reports whether sessionID holds the current reservation on lun
// (persistent_is_holder, spc3r23 5.6.9).
func (c *Context) IsHolder(sessionID int, lun LUN) bool {
	info := c.info(lun)

	switch info.ReservationType {
	case TypeWriteExclusive, TypeExclusiveAccess,
		TypeWriteExclusiveRegistrantsOnly, TypeExclusiveAccessRegistrantsOnly:
		return info.holderID() == sessionID

	case TypeWriteExclusiveAllRegistrants, TypeExclusiveAccessAllRegistrants:
		return info.isRegistered(sessionID)

	default:
		return false
	}
}

// HolderKey returns the registration key of the reservation holder, or 0
// when there is none or the reservation type is an all-registrants family
// (get_holder_key, spc3r23 5.6.9 paragraph 2).
func (c *Context) HolderKey(lun LUN) Key {
	info := c.info(lun)
	switch info.ReservationType {
	case TypeNone, TypeWriteExclusiveAllRegistrants, TypeExclusiveAccessAllRegistrants:
		return 0
	default:
		return info.holderKey()
	}
}

// Command identifies the minimal pieces of a SCSI CDB that PR access
// control needs to see: whether it is a write, and whether it is one of
// the commands that bypass reservation checks entirely.
type Command struct {
	Write            bool
	Inquiry          bool
	PersistentReserve bool
}

// CheckRights decides whether sessionID may execute cmd against lun given
// its current PR/SPC-2 state (pr_check_rights).
func (c *Context) CheckRights(sessionID int, lun LUN, cmd Command) bool {
	info := c.info(lun)

	if info.SPC2Reserve != SPC2ReserveNone {
		if sessionID != info.SPC2Reserve && !cmd.Inquiry {
			log.With("lun", lun).With("session", sessionID).
				Debugf("denied, LUN reserved in SPC-2 mode by session %d", info.SPC2Reserve)
			return false
		}
		return true
	}

	if cmd.PersistentReserve {
		return true
	}

	switch info.ReservationType {
	case TypeNone:
		return true

	case TypeWriteExclusive:
		if !cmd.Write {
			return true
		}
		fallthrough
	case TypeExclusiveAccess:
		if c.IsHolder(sessionID, lun) {
			return true
		}
		log.With("lun", lun).With("session", sessionID).Debug("denied, not the reservation holder")
		return false

	case TypeWriteExclusiveRegistrantsOnly:
		if !cmd.Write {
			return true
		}
		fallthrough
	case TypeExclusiveAccessRegistrantsOnly:
		if info.isRegistered(sessionID) {
			return true
		}
		log.With("lun", lun).With("session", sessionID).Debug("denied, not a registrant")
		return false

	case TypeWriteExclusiveAllRegistrants:
		if !cmd.Write {
			return true
		}
		fallthrough
	case TypeExclusiveAccessAllRegistrants:
		if info.isRegistered(sessionID) {
			return true
		}
		log.With("lun", lun).With("session", sessionID).Debug("denied, not a registrant")
		return false
	}

	log.With("lun", lun).Errorf("unexpected reservation type %02x", info.ReservationType)
	return false
}
