package download

// Observer is notified as tasks start and finish. Parallel batches call it
// from many goroutines at once.
type Observer interface {
	TaskStarted(task *Task)
	TaskFinished(task *Task, outcome Outcome)
}

// Observers fans notifications out to each of its members in order.
type Observers []Observer

func (o Observers) TaskStarted(task *Task) {
	for _, obs := range o {
		if obs != nil {
			obs.TaskStarted(task)
		}
	}
}

func (o Observers) TaskFinished(task *Task, outcome Outcome) {
	for _, obs := range o {
		if obs != nil {
			obs.TaskFinished(task, outcome)
		}
	}
}
