package pr

// Status, SenseKey and Asc mirror the handful of SCSI-3 status and sense
// codes the PR engine reports (scsi_persistent_reservations.c). This engine
// does not speak the wire protocol itself; it hands a caller-supplied CDB
// layer enough information to build the real SCSI response.
type Status int

const (
	StatusGood                 Status = 0
	StatusCheckCondition       Status = 2
	StatusReservationConflict  Status = 0x18
)

type SenseKey int

const (
	SenseNone          SenseKey = 0
	SenseUnitAttention SenseKey = 0x6
	SenseIllegalRequest SenseKey = 0x5
)

type Asc int

const (
	AscNone                        Asc = 0
	AscReservationsReleased        Asc = 0x2a04
	AscInvalidFieldInParameterList Asc = 0x2600
	AscInvalidFieldInCDB           Asc = 0x2400
	AscInvalidReleaseOfPR          Asc = 0x2604
)

// Result is the outcome every PR-OUT/PR-IN handler reports back to the
// caller's SCSI layer.
type Result struct {
	Status Status
	Sense  SenseKey
	Asc    Asc
}

func ok() Result { return Result{Status: StatusGood} }

func reservationConflict() Result { return Result{Status: StatusReservationConflict} }

func checkCondition(sense SenseKey, asc Asc) Result {
	return Result{Status: StatusCheckCondition, Sense: sense, Asc: asc}
}

// SenseNotifier delivers an asynchronous unit-attention (or other check
// condition) to a session outside of the command that triggered it, the
// role callback_send_sense_data plays in the original.
type SenseNotifier func(sessionID int, lun LUN, status Status, sense SenseKey, asc Asc)
