package tasks

import (
	"fmt"
)

// ProgressUpdate represents a progress event during a migration run.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchPhase Phase = iota
	CopyPhase
	LinkPhase
	DonePhase
)

func (p Phase) String() string {
	switch p {
	case FetchPhase:
		return "fetch"
	case CopyPhase:
		return "copy"
	case LinkPhase:
		return "link"
	case DonePhase:
		return "done"
	default:
		return ""
	}
}

func queryingUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPhase,
		Step:    0,
		Total:   1,
		Message: "Querying work items from source project",
	}
}

func foundRecordsUpdate(n int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPhase,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Found %d work items to copy", n),
		Data:    n,
	}
}

func copyStartedUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CopyPhase,
		Step:    0,
		Total:   total,
		Message: "Copying started",
	}
}

func copyRecordUpdate(step, total int, o CopyOutcome) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] ✓ %s #%d → %s %s", step, total, o.Source.Type, o.Source.ID, o.Dest, o.Source.Title())
	if o.Err != nil {
		msg = fmt.Sprintf("[%d/%d] ✗ %s #%d %s: %v", step, total, o.Source.Type, o.Source.ID, o.Source.Title(), o.Err)
	}
	return ProgressUpdate{
		Phase:   CopyPhase,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    o,
	}
}

func copyFinishedUpdate(report *CopyReport) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CopyPhase,
		Step:    len(report.Outcomes),
		Total:   len(report.Outcomes),
		Message: "Copying finished",
		Data:    report,
	}
}

func linkStartedUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   LinkPhase,
		Step:    0,
		Total:   total,
		Message: "Linking started",
	}
}

func linkRelationUpdate(step, total int, o LinkOutcome) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] ✓ #%d → #%d (%s → %s)", step, total, o.SourceID, o.TargetID, o.From, o.To)
	if o.Err != nil {
		msg = fmt.Sprintf("[%d/%d] ✗ #%d → #%d: %v", step, total, o.SourceID, o.TargetID, o.Err)
	}
	return ProgressUpdate{
		Phase:   LinkPhase,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    o,
	}
}

func linkFinishedUpdate(report *LinkReport) ProgressUpdate {
	return ProgressUpdate{
		Phase:   LinkPhase,
		Step:    len(report.Outcomes),
		Total:   len(report.Outcomes),
		Message: "Linking finished",
		Data:    report,
	}
}

func doneUpdate(result *RunResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   DonePhase,
		Step:    1,
		Total:   1,
		Message: "Live long and prosper!",
		Data:    result,
	}
}
