package controller

// Event reasons emitted on ManagedApp objects.
const (
	EventReasonDependentCreated  = "DependentCreated"
	EventReasonDependentUpdated  = "DependentUpdated"
	EventReasonDependentPruned   = "DependentPruned"
	EventReasonApplyFailed       = "ApplyFailed"
	EventReasonOwnershipConflict = "OwnershipConflict"
	EventReasonPaused            = "Paused"
)
