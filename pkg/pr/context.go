package pr

import (
	"github.com/exanodes/vrtcore/pkg/exalog"
)

var log = exalog.New("pr")

// Context owns the PR state of every LUN exported by one target, plus the
// bookkeeping needed to survive a dropped iSCSI nexus without losing its
// registrations (pr_context_t).
type Context struct {
	notify        SenseNotifier
	luns          [MaxLUNs]*Info
	sessionIDUsed [MaxGlobalSessionPlusExtra]bool
}

// NewContext allocates a PR context reporting asynchronous sense data
// through notify (pr_context_alloc).
func NewContext(notify SenseNotifier) *Context {
	c := &Context{notify: notify}
	for lun := range c.luns {
		c.luns[lun] = newInfo()
	}
	return c
}

func (c *Context) info(lun LUN) *Info { return c.luns[lun] }

func (c *Context) sendSense(sessionID int, lun LUN, status Status, sense SenseKey, asc Asc) {
	// A stashed nexus-loss session id sits past MaxGlobalSession and
	// never receives callbacks (callback_send_sense_data).
	if sessionID >= MaxGlobalSession {
		return
	}
	if c.notify != nil {
		c.notify(sessionID, lun, status, sense, asc)
	}
}

// notifyOthers sends a unit-attention to every id in ids except
// exceptSessionID, the "all other active registrants" broadcast used by
// RELEASE.
func (c *Context) notifyOthers(lun LUN, exceptSessionID int, ids []int, asc Asc) {
	for _, id := range ids {
		if id == exceptSessionID || id == sessionIDNone {
			continue
		}
		c.sendSense(id, lun, StatusCheckCondition, SenseUnitAttention, asc)
	}
}

// AddSession registers a fresh nexus, clearing any stale registrations a
// previous occupant of this session id might have left behind
// (pr_add_session).
func (c *Context) AddSession(sessionID int) {
	for lun := range c.luns {
		c.luns[lun].delRegistration(sessionID)
	}
	c.sessionIDUsed[sessionID] = true
}

func (c *Context) sessionHasReserveData(sessionID int) bool {
	if !c.sessionIDUsed[sessionID] {
		return false
	}
	for lun := range c.luns {
		if c.luns[lun].isRegistered(sessionID) {
			return true
		}
	}
	return false
}

func (c *Context) moveSession(fromSessionID, toSessionID int) {
	c.sessionIDUsed[toSessionID] = c.sessionIDUsed[fromSessionID]
	c.sessionIDUsed[fromSessionID] = false

	for lun := range c.luns {
		info := c.luns[lun]
		info.moveRegistration(toSessionID, fromSessionID)
		if info.SPC2Reserve == fromSessionID {
			info.SPC2Reserve = toSessionID
		}
	}
}

// DelSession drops a nexus. If it left registrations or a reservation
// behind, they are moved to a free slot in the nexus-loss range instead of
// being discarded, per SPC-3 5.6.4.1 (pr_del_session).
func (c *Context) DelSession(sessionID int) {
	if !c.sessionHasReserveData(sessionID) {
		c.sessionIDUsed[sessionID] = false
		return
	}

	free := -1
	for id := MaxGlobalSession; id < MaxGlobalSessionPlusExtra; id++ {
		if !c.sessionHasReserveData(id) {
			free = id
			break
		}
	}
	if free < 0 {
		log.Warningf("pr: no free nexus-loss slot to stash session %d, registrations lost", sessionID)
		return
	}

	c.moveSession(sessionID, free)
}

// ResetLUNReservation clears any SPC-2 RESERVE/RELEASE holder on lun
// without touching its persistent-reservation state (pr_reset_lun_reservation).
func (c *Context) ResetLUNReservation(lun LUN) {
	c.info(lun).SPC2Reserve = SPC2ReserveNone
}
