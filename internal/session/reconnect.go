package session

import "github.com/xpra-project/session-core/internal/window"

// ResumeAfterReconnect replays the current surface set to a freshly
// rebound listener so a reconnecting client sees every window that
// existed before it lost its transport, then lets ordinary damage flow
// resume (§4.8: "the server emits new-window for every current surface
// and resumes damage flow").
func ResumeAfterReconnect(model *window.Model, listener window.Listener) {
	for _, snap := range model.Snapshots() {
		if snap.OverrideRedirect {
			listener.NewOverrideRedirect(snap)
		} else {
			listener.NewWindow(snap)
		}
	}
}
