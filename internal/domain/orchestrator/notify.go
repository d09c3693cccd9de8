package orchestrator

import (
	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/arrangement"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/memory"
)

// Notification types.
const (
	NotifyRunningState = "runningStateChanged"
	NotifyArrangement  = "arrangementChanged"
)

// WindowIDField names the id field of arrangements in notifications.
const WindowIDField = "id"

// Notification is pushed to UI listeners.
type Notification struct {
	Type        string                                          `json:"type"`
	Running     bool                                            `json:"running"`
	State       string                                          `json:"state"`
	Arrangement *arrangement.Serializable[arrangement.WindowID] `json:"arrangement,omitempty"`
	UIDs        map[arrangement.WindowID]memory.UID             `json:"uids,omitempty"`
}

func identity(id arrangement.WindowID) (arrangement.WindowID, bool) {
	return id, true
}

// notifyArrangement announces the current snapshot. Caller holds the mutex.
func (o *Orchestrator) notifyArrangement() {
	if o.current == nil {
		return
	}
	s, _ := arrangement.Serialize(o.current.Arrangement, WindowIDField, identity)
	uids := make(map[arrangement.WindowID]memory.UID, o.current.Arrangement.Len())
	for _, id := range o.current.Arrangement.WindowIDs() {
		if uid, ok := o.memory.UID(id); ok {
			uids[id] = uid
		}
	}
	o.notifier.Notify(Notification{
		Type:        NotifyArrangement,
		Running:     true,
		State:       o.State().String(),
		Arrangement: s,
		UIDs:        uids,
	})
}
