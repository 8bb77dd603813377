package pr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestContext() (*Context, *[]int) {
	var notified []int
	ctx := NewContext(func(sessionID int, lun LUN, status Status, sense SenseKey, asc Asc) {
		notified = append(notified, sessionID)
	})
	return ctx, &notified
}

func registerOut(sessionID int, key Key) OutRequest {
	return OutRequest{Action: OutRegister, SessionID: sessionID, LUN: 0, ServiceActionKey: key}
}

func TestRegisterThenReserveGrantsHolder(t *testing.T) {

	ctx, _ := newTestContext()
	ctx.AddSession(1)

	res, err := ctx.ReserveOut(registerOut(1, 42))
	assert.NoError(t, err)
	assert.Equal(t, StatusGood, res.Status)

	res, err = ctx.ReserveOut(OutRequest{
		Action: OutReserve, SessionID: 1, LUN: 0,
		ReservationKey: 42, Type: TypeExclusiveAccess,
	})
	assert.NoError(t, err)
	assert.Equal(t, StatusGood, res.Status)
	assert.True(t, ctx.IsHolder(1, 0))
	assert.True(t, ctx.IsLUNReserved(0))
}

func TestReserveWithoutRegistrationConflicts(t *testing.T) {

	ctx, _ := newTestContext()
	ctx.AddSession(1)

	res, err := ctx.ReserveOut(OutRequest{
		Action: OutReserve, SessionID: 1, LUN: 0,
		ReservationKey: 7, Type: TypeExclusiveAccess,
	})
	assert.NoError(t, err)
	assert.Equal(t, StatusReservationConflict, res.Status)
}

func TestSecondSessionCannotReserveHeldLun(t *testing.T) {

	ctx, _ := newTestContext()
	ctx.AddSession(1)
	ctx.AddSession(2)

	_, err := ctx.ReserveOut(registerOut(1, 1))
	assert.NoError(t, err)
	_, err = ctx.ReserveOut(registerOut(2, 2))
	assert.NoError(t, err)

	res, err := ctx.ReserveOut(OutRequest{Action: OutReserve, SessionID: 1, LUN: 0, ReservationKey: 1, Type: TypeExclusiveAccess})
	assert.NoError(t, err)
	assert.Equal(t, StatusGood, res.Status)

	res, err = ctx.ReserveOut(OutRequest{Action: OutReserve, SessionID: 2, LUN: 0, ReservationKey: 2, Type: TypeExclusiveAccess})
	assert.NoError(t, err)
	assert.Equal(t, StatusReservationConflict, res.Status)
}

func TestReleaseByNonHolderConflicts(t *testing.T) {

	ctx, _ := newTestContext()
	ctx.AddSession(1)
	ctx.AddSession(2)
	_, _ = ctx.ReserveOut(registerOut(1, 1))
	_, _ = ctx.ReserveOut(registerOut(2, 2))
	_, _ = ctx.ReserveOut(OutRequest{Action: OutReserve, SessionID: 1, LUN: 0, ReservationKey: 1, Type: TypeWriteExclusive})

	res, err := ctx.ReserveOut(OutRequest{Action: OutRelease, SessionID: 2, LUN: 0, ReservationKey: 2, Type: TypeWriteExclusive})
	assert.NoError(t, err)
	assert.Equal(t, StatusReservationConflict, res.Status)
}

func TestReleaseNotifiesOtherRegistrantsUnderRegistrantsOnly(t *testing.T) {

	ctx, notified := newTestContext()
	ctx.AddSession(1)
	ctx.AddSession(2)
	_, _ = ctx.ReserveOut(registerOut(1, 1))
	_, _ = ctx.ReserveOut(registerOut(2, 2))
	_, _ = ctx.ReserveOut(OutRequest{Action: OutReserve, SessionID: 1, LUN: 0, ReservationKey: 1, Type: TypeWriteExclusiveRegistrantsOnly})

	*notified = nil
	res, err := ctx.ReserveOut(OutRequest{Action: OutRelease, SessionID: 1, LUN: 0, ReservationKey: 1, Type: TypeWriteExclusiveRegistrantsOnly})
	assert.NoError(t, err)
	assert.Equal(t, StatusGood, res.Status)
	assert.Contains(t, *notified, 2)
	assert.False(t, ctx.IsLUNReserved(0))
}

func TestPreemptTransfersHolderAndDropsOtherRegistrations(t *testing.T) {

	ctx, _ := newTestContext()
	ctx.AddSession(1)
	ctx.AddSession(2)
	_, _ = ctx.ReserveOut(registerOut(1, 1))
	_, _ = ctx.ReserveOut(registerOut(2, 2))
	_, _ = ctx.ReserveOut(OutRequest{Action: OutReserve, SessionID: 1, LUN: 0, ReservationKey: 1, Type: TypeWriteExclusive})

	res, err := ctx.ReserveOut(OutRequest{
		Action: OutPreempt, SessionID: 2, LUN: 0,
		ReservationKey: 2, ServiceActionKey: 1, Type: TypeExclusiveAccess,
	})
	assert.NoError(t, err)
	assert.Equal(t, StatusGood, res.Status)
	assert.True(t, ctx.IsHolder(2, 0))
	assert.Equal(t, TypeExclusiveAccess, ctx.info(0).ReservationType)
}

func TestClearWipesRegistrationsAndReservation(t *testing.T) {

	ctx, notified := newTestContext()
	ctx.AddSession(1)
	ctx.AddSession(2)
	_, _ = ctx.ReserveOut(registerOut(1, 1))
	_, _ = ctx.ReserveOut(registerOut(2, 2))
	_, _ = ctx.ReserveOut(OutRequest{Action: OutReserve, SessionID: 1, LUN: 0, ReservationKey: 1, Type: TypeExclusiveAccess})

	*notified = nil
	res, err := ctx.ReserveOut(OutRequest{Action: OutClear, SessionID: 1, LUN: 0, ReservationKey: 1})
	assert.NoError(t, err)
	assert.Equal(t, StatusGood, res.Status)
	assert.Contains(t, *notified, 2)
	assert.False(t, ctx.IsLUNReserved(0))
	assert.False(t, ctx.info(0).isRegistered(2))
}

func TestGenerationAdvancesExceptForReserveAndRelease(t *testing.T) {

	ctx, _ := newTestContext()
	ctx.AddSession(1)

	before := ctx.info(0).Generation
	_, _ = ctx.ReserveOut(registerOut(1, 1))
	afterRegister := ctx.info(0).Generation
	assert.Greater(t, afterRegister, before)

	_, _ = ctx.ReserveOut(OutRequest{Action: OutReserve, SessionID: 1, LUN: 0, ReservationKey: 1, Type: TypeExclusiveAccess})
	afterReserve := ctx.info(0).Generation
	assert.Equal(t, afterRegister, afterReserve)

	_, _ = ctx.ReserveOut(OutRequest{Action: OutRelease, SessionID: 1, LUN: 0, ReservationKey: 1, Type: TypeExclusiveAccess})
	afterRelease := ctx.info(0).Generation
	assert.Equal(t, afterReserve, afterRelease)
}

func TestRegisterAndMoveIsRejected(t *testing.T) {

	ctx, _ := newTestContext()
	ctx.AddSession(1)
	_, _ = ctx.ReserveOut(registerOut(1, 1))

	res, err := ctx.ReserveOut(OutRequest{Action: OutRegisterAndMove, SessionID: 1, LUN: 0, ReservationKey: 1})
	assert.NoError(t, err)
	assert.Equal(t, StatusCheckCondition, res.Status)
	assert.Equal(t, SenseIllegalRequest, res.Sense)
}

func TestSpc2ReserveBlocksWhileRegistrationsExist(t *testing.T) {

	ctx, _ := newTestContext()
	ctx.AddSession(1)
	_, _ = ctx.ReserveOut(registerOut(1, 1))

	res := ctx.Reserve6(2, 0)
	assert.Equal(t, StatusReservationConflict, res.Status)
}

func TestSpc2ReserveAndReleaseRoundTrip(t *testing.T) {

	ctx, _ := newTestContext()

	res := ctx.Reserve6(1, 0)
	assert.Equal(t, StatusGood, res.Status)

	res = ctx.Reserve6(2, 0)
	assert.Equal(t, StatusReservationConflict, res.Status)

	res = ctx.Release6(1, 0)
	assert.Equal(t, StatusGood, res.Status)

	res = ctx.Reserve6(2, 0)
	assert.Equal(t, StatusGood, res.Status)
}

func TestCheckRightsDeniesNonHolderWrite(t *testing.T) {

	ctx, _ := newTestContext()
	ctx.AddSession(1)
	ctx.AddSession(2)
	_, _ = ctx.ReserveOut(registerOut(1, 1))
	_, _ = ctx.ReserveOut(OutRequest{Action: OutReserve, SessionID: 1, LUN: 0, ReservationKey: 1, Type: TypeExclusiveAccess})

	assert.True(t, ctx.CheckRights(1, 0, Command{Write: true}))
	assert.False(t, ctx.CheckRights(2, 0, Command{Write: true}))
	assert.True(t, ctx.CheckRights(2, 0, Command{PersistentReserve: true}))
}

func TestReadKeysOmitsStashedSessions(t *testing.T) {

	ctx, _ := newTestContext()
	ctx.AddSession(1)
	_, _ = ctx.ReserveOut(registerOut(1, 99))

	keys := ctx.ReadKeys(0)
	assert.Contains(t, keys.Keys, Key(99))

	ctx.DelSession(1)
	keys = ctx.ReadKeys(0)
	assert.NotContains(t, keys.Keys, Key(99))
}

func TestDelSessionStashesRegistrationForNexusLoss(t *testing.T) {

	ctx, _ := newTestContext()
	ctx.AddSession(1)
	_, _ = ctx.ReserveOut(registerOut(1, 99))
	_, _ = ctx.ReserveOut(OutRequest{Action: OutReserve, SessionID: 1, LUN: 0, ReservationKey: 99, Type: TypeExclusiveAccess})

	ctx.DelSession(1)

	assert.False(t, ctx.sessionIDUsed[1])
	found := false
	for id := MaxGlobalSession; id < MaxGlobalSessionPlusExtra; id++ {
		if ctx.sessionIDUsed[id] {
			found = true
		}
	}
	assert.True(t, found, "registration should have been stashed in the nexus-loss range")
}

func TestReadReservationReportsHolder(t *testing.T) {

	ctx, _ := newTestContext()
	ctx.AddSession(1)
	_, _ = ctx.ReserveOut(registerOut(1, 7))
	_, _ = ctx.ReserveOut(OutRequest{Action: OutReserve, SessionID: 1, LUN: 0, ReservationKey: 7, Type: TypeWriteExclusive})

	rr := ctx.ReadReservation(0)
	assert.True(t, rr.Reserved)
	assert.Equal(t, Key(7), rr.HolderKey)
	assert.Equal(t, TypeWriteExclusive, rr.Type)
}
