package window

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xpra-project/session-core/internal/wire"
)

type recordingListener struct {
	mu       sync.Mutex
	newWin   []Snapshot
	newOR    []Snapshot
	metadata []struct {
		id      ID
		changes map[string]wire.Value
	}
	configureOR []ID
	lost        []ID
}

func (l *recordingListener) NewWindow(s Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.newWin = append(l.newWin, s)
}
func (l *recordingListener) NewOverrideRedirect(s Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.newOR = append(l.newOR, s)
}
func (l *recordingListener) WindowMetadata(id ID, changes map[string]wire.Value) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metadata = append(l.metadata, struct {
		id      ID
		changes map[string]wire.Value
	}{id, changes})
}
func (l *recordingListener) ConfigureOverrideRedirect(id ID, geom Geometry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.configureOR = append(l.configureOR, id)
}
func (l *recordingListener) LostWindow(id ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lost = append(l.lost, id)
}

func TestModelAddNotifiesNewWindow(t *testing.T) {
	m := New()
	l := &recordingListener{}
	m.AddListener(l)

	id, err := m.Add(Geometry{0, 0, 800, 600}, map[string]wire.Value{"title": "term"}, false, false)
	require.NoError(t, err)
	require.Len(t, l.newWin, 1)
	require.Equal(t, id, l.newWin[0].ID)
	require.Equal(t, "term", l.newWin[0].Metadata["title"])
}

func TestModelAddRejectsZeroWidthOrHeight(t *testing.T) {
	m := New()
	l := &recordingListener{}
	m.AddListener(l)

	_, err := m.Add(Geometry{0, 0, 0, 600}, nil, false, false)
	require.ErrorIs(t, err, ErrInvalidSurfaceSize)

	_, err = m.Add(Geometry{0, 0, 800, 0}, nil, false, false)
	require.ErrorIs(t, err, ErrInvalidSurfaceSize)

	require.Empty(t, l.newWin)
	require.Empty(t, l.newOR)
}

func TestModelAddOverrideRedirectUsesDistinctEvent(t *testing.T) {
	m := New()
	l := &recordingListener{}
	m.AddListener(l)

	_, err := m.Add(Geometry{0, 0, 50, 50}, nil, false, true)
	require.NoError(t, err)
	require.Len(t, l.newOR, 1)
	require.Empty(t, l.newWin)
}

func TestWIDNeverReused(t *testing.T) {
	m := New()
	a, err := m.Add(Geometry{0, 0, 10, 10}, nil, false, false)
	require.NoError(t, err)
	require.NoError(t, m.Remove(a))
	b, err := m.Add(Geometry{0, 0, 10, 10}, nil, false, false)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.Greater(t, uint64(b), uint64(a))
}

func TestUpdateMetadataIsDiffOnly(t *testing.T) {
	m := New()
	l := &recordingListener{}
	id, err := m.Add(Geometry{0, 0, 10, 10}, map[string]wire.Value{"title": "a", "icon": "x"}, false, false)
	require.NoError(t, err)
	m.AddListener(l)

	require.NoError(t, m.UpdateMetadata(id, map[string]wire.Value{"title": "a", "icon": "y"}))
	require.Len(t, l.metadata, 1)
	require.Equal(t, map[string]wire.Value{"icon": "y"}, l.metadata[0].changes)
}

func TestUpdateMetadataNoChangeEmitsNothing(t *testing.T) {
	m := New()
	l := &recordingListener{}
	id, err := m.Add(Geometry{0, 0, 10, 10}, map[string]wire.Value{"title": "a"}, false, false)
	require.NoError(t, err)
	m.AddListener(l)

	require.NoError(t, m.UpdateMetadata(id, map[string]wire.Value{"title": "a"}))
	require.Empty(t, l.metadata)
}

func TestUpdateGeometryOverrideRedirectAlwaysConfigures(t *testing.T) {
	m := New()
	l := &recordingListener{}
	id, err := m.Add(Geometry{0, 0, 10, 10}, nil, false, true)
	require.NoError(t, err)
	m.AddListener(l)

	require.NoError(t, m.UpdateGeometry(id, Geometry{1, 1, 10, 10}))
	require.Equal(t, []ID{id}, l.configureOR)
	require.Empty(t, l.lost)
}

func TestUpdateGeometrySmallMoveIsSilent(t *testing.T) {
	m := New()
	l := &recordingListener{}
	id, err := m.Add(Geometry{0, 0, 100, 100}, nil, false, false)
	require.NoError(t, err)
	m.AddListener(l)

	require.NoError(t, m.UpdateGeometry(id, Geometry{5, 5, 100, 100}))
	require.Empty(t, l.lost)
	require.Empty(t, l.newWin)
}

func TestUpdateGeometryLargeMoveReannounces(t *testing.T) {
	m := New()
	l := &recordingListener{}
	id, err := m.Add(Geometry{0, 0, 100, 100}, nil, false, false)
	require.NoError(t, err)
	m.AddListener(l)

	require.NoError(t, m.UpdateGeometry(id, Geometry{500, 500, 100, 100}))
	require.Equal(t, []ID{id}, l.lost)
	require.Len(t, l.newWin, 1)
}

func TestRemoveNotifiesObserversAndListeners(t *testing.T) {
	m := New()
	l := &recordingListener{}
	id, err := m.Add(Geometry{0, 0, 10, 10}, nil, false, false)
	require.NoError(t, err)
	m.AddListener(l)

	var removed ID
	m.AddRemovalObserver(removalFunc(func(rid ID) { removed = rid }))

	require.NoError(t, m.Remove(id))
	require.Equal(t, []ID{id}, l.lost)
	require.Equal(t, id, removed)

	require.NoError(t, m.Remove(id)) // idempotent no-op
}

type removalFunc func(ID)

func (f removalFunc) SurfaceRemoved(id ID) { f(id) }

func TestFocusTracksSingleFocusedSurface(t *testing.T) {
	m := New()
	a, err := m.Add(Geometry{0, 0, 10, 10}, nil, false, false)
	require.NoError(t, err)
	b, err := m.Add(Geometry{0, 0, 10, 10}, nil, false, false)
	require.NoError(t, err)

	require.NoError(t, m.Focus(a))
	got, ok := m.Focused()
	require.True(t, ok)
	require.Equal(t, a, got)

	require.NoError(t, m.Focus(b))
	got, ok = m.Focused()
	require.True(t, ok)
	require.Equal(t, b, got)
}

func TestRaiseMovesToFront(t *testing.T) {
	m := New()
	a, err := m.Add(Geometry{0, 0, 10, 10}, nil, false, false)
	require.NoError(t, err)
	b, err := m.Add(Geometry{0, 0, 10, 10}, nil, false, false)
	require.NoError(t, err)

	require.NoError(t, m.Raise(a))
	require.NoError(t, m.Raise(b))
	require.NoError(t, m.Raise(a))
	require.Equal(t, []ID{b, a}, m.StackOrder())
}
