package operation

import "github.com/twopanel/ftpcore/common"

// Progress is §6.1's getCopyProgress/getCopyUploadProgress result: every
// field the UI polls on its ~1s refresh timer, returned together in one
// struct. GetProgress reads the queue's totals and error count through
// separate locked calls, so the fields are not one atomic snapshot.
type Progress struct {
	TotalItems     int
	DoneOrSkipped  int
	ErrorsCount    int
	BytesTotal     int64
	BytesCompleted int64
	SpeedBytesSec  float64
	State          State
}

// GetProgress aggregates the queue's running totals into the host's
// polled snapshot (§4.6/§6.1). Block-only totals are converted through
// the estimator so the byte-based progress bar always has a denominator,
// even against a server that only ever reports block counts (§3.3).
func (o *Operation) GetProgress() Progress {
	totals := o.queue.Totals()
	errs := o.queue.ErrorCount()

	blockBytes := o.estimator.EstimateBytes(totals.SumBlocks)
	completedBlockBytes := o.estimator.EstimateBytes(totals.CompletedBlocks)

	return Progress{
		TotalItems:     totals.ItemCount,
		DoneOrSkipped:  totals.DoneOrSkippedCount,
		ErrorsCount:    errs,
		BytesTotal:     totals.SumBytes + blockBytes,
		BytesCompleted: totals.CompletedBytes + completedBlockBytes,
		SpeedBytesSec:  o.throughput.LatestRate(),
		State:          o.stateFromCounts(errs),
	}
}

// stateFromCounts derives §6.1's getOperationState, shared by GetProgress
// and GetOperationState so the two never disagree about whether the
// operation has finished.
func (o *Operation) stateFromCounts(errs int) State {
	o.mu.Lock()
	running := o.running
	o.mu.Unlock()

	totals := o.queue.Totals()
	if totals.ItemCount == 0 {
		return StateNone
	}
	finished := totals.DoneOrSkippedCount+errs >= totals.ItemCount
	if !finished && running {
		return StateInProgress
	}
	if errs > 0 {
		return StateFinishedWithErrors
	}
	if totals.DoneOrSkippedCount < totals.ItemCount {
		return StateFinishedWithSkips
	}
	return StateSuccessfullyFinished
}

// GetOperationState is §6.1's getOperationState, callable independently
// of GetProgress for a host that only needs the summary state (e.g. to
// decide whether an operation's dialog can auto-close).
func (o *Operation) GetOperationState() State {
	return o.stateFromCounts(o.queue.ErrorCount())
}

// ChangedItems is §6.1's getChangedItems result: either a specific pair
// of item uids to refresh, or Refresh==true meaning the UI should redraw
// its whole visible range.
type ChangedItems struct {
	UID1    common.ItemUID
	UID2    common.ItemUID
	Refresh bool
}

// GetChangedItems drains the coalesced change-pair accumulated since the
// last call (§6.1). Calling it resets the accumulator, matching the
// host's poll-and-clear usage pattern.
func (o *Operation) GetChangedItems() ChangedItems {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.reportProgress {
		return ChangedItems{UID1: common.NoParent, UID2: common.NoParent}
	}
	out := ChangedItems{UID1: o.changedUID1, UID2: o.changedUID2, Refresh: o.changedAll}
	o.changedUID1, o.changedUID2 = common.NoParent, common.NoParent
	o.changedAll = false
	o.reportProgress = false
	return out
}

// ActivateOperationDialog marks the operation's dialog as the active one
// (§6.1); GetChangedItems/GetProgress are only meaningful while a dialog
// is active, so the host calls this before starting to poll and
// CloseOperationDialog when the user dismisses it.
func (o *Operation) ActivateOperationDialog() {
	o.mu.Lock()
	o.dialogActive = true
	o.mu.Unlock()
	o.throughput.Reset()
}

// CloseOperationDialog clears the dialog-active flag; a closed dialog's
// operation keeps running in the background, it just stops being polled.
func (o *Operation) CloseOperationDialog() {
	o.mu.Lock()
	o.dialogActive = false
	o.mu.Unlock()
}

// DialogActive reports whether ActivateOperationDialog was called more
// recently than CloseOperationDialog.
func (o *Operation) DialogActive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dialogActive
}
