package services

import "caerp/internal/models"

// Allowed task status transitions. Invoiced is reachable only through the
// invoicing path (conditional write in the repository), never via
// ChangeStatus; Cancelled and Invoiced are terminal.
var TaskTransitions = map[models.TaskStatus]map[models.TaskStatus]bool{
	models.StatusPending:    {models.StatusInProgress: true, models.StatusCancelled: true},
	models.StatusInProgress: {models.StatusReview: true, models.StatusPending: true, models.StatusCancelled: true},
	models.StatusReview:     {models.StatusCompleted: true, models.StatusInProgress: true, models.StatusCancelled: true},
	models.StatusCompleted:  {models.StatusInvoiced: true, models.StatusCancelled: true},
	models.StatusCancelled:  {},
	models.StatusInvoiced:   {},
}

func canTransition(current, to models.TaskStatus) bool {
	nexts, ok := TaskTransitions[current]
	if !ok {
		return false
	}
	return nexts[to]
}
