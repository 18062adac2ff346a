package history

import (
	"fmt"

	"piper-console/pkg/api"
	"piper-console/pkg/session"
)

// FromEvent turns a session event into a journal entry with a short
// summary of the status it carried.
func FromEvent(ev session.Event) Entry {
	e := Entry{
		Kind:  string(ev.Kind),
		Ref:   ev.SessionID,
		State: string(ev.State),
		At:    ev.At,
	}
	if ev.Err != nil {
		e.Detail = "poll failed: " + ev.Err.Error()
		return e
	}
	e.Detail = Summary(ev.Status)
	return e
}

// Summary renders a one-line description of a status snapshot.
func Summary(status any) string {
	switch st := status.(type) {
	case *api.TrainingStatus:
		if st == nil {
			return ""
		}
		return fmt.Sprintf("%s %s%% %s", st.ModelName, st.Progress.Round(1), st.CurrentStep)
	case *api.CloudStatus:
		if st == nil {
			return ""
		}
		if st.PackageURL != "" {
			return fmt.Sprintf("%s %d%% %s", st.Platform, st.Progress, st.PackageURL)
		}
		return fmt.Sprintf("%s %d%% %s", st.Platform, st.Progress, st.Step)
	case *api.RemoteStatus:
		if st == nil || !st.Monitoring {
			return "inactive"
		}
		return fmt.Sprintf("epoch %d/%d loss %s", st.Metrics.EpochsCompleted, session.RemoteEpochs, st.Metrics.CurrentLoss.StringFixed(4))
	case *api.TranscriptionStatus:
		if st == nil {
			return ""
		}
		return fmt.Sprintf("%d/%d files, %d errors", st.CompletedFiles, st.TotalFiles, len(st.Errors))
	default:
		return ""
	}
}
