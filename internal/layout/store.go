package layout

import (
	"errors"
	"sort"
	"sync"
)

// ErrInvalidViewMode is returned for a view mode outside grid/focus/freeform.
var ErrInvalidViewMode = errors.New("invalid view mode")

// ErrUnknownEntity is returned when a setter targets a preview that does not exist.
var ErrUnknownEntity = errors.New("unknown layout entity")

// ErrNoEditor is returned when editor geometry is set without an editor card.
var ErrNoEditor = errors.New("no editor card in layout")

// AgentUpdate is a partial agent layout. Nil fields are left unchanged.
type AgentUpdate struct {
	GridSpan *GridSpan
	Position *Position
}

// FilePreviewUpdate is a partial file preview layout. Nil fields are left unchanged.
type FilePreviewUpdate struct {
	GridSpan *GridSpan
	Docked   *bool
	Pinned   *bool
	Path     *string
}

// EditorUpdate is a partial editor layout. A non-nil GridCardID pointing at
// the empty string removes the editor card.
type EditorUpdate struct {
	GridCardID       *string
	GridSpan         *GridSpan
	FreeformPosition *Position
}

// Store owns the canonical SessionLayout of one attached session.
//
// Every setter is synchronous and only mutates state: propagating a change
// to peers or to the server is the caller's job. Setters report whether the
// observable state changed, so re-applying a value is a no-op.
//
// Entities must be known to the session before the store exposes geometry
// for them. Local setters track an entity implicitly. Geometry that arrives
// through Update* or Replace for an untracked entity is parked: it is kept
// out of every getter and promoted when the entity is tracked.
type Store struct {
	mu sync.RWMutex

	layout SessionLayout

	agents   map[string]bool
	previews map[string]bool

	parkedAgents   map[string]AgentLayout
	parkedPreviews map[string]FilePreviewLayout
}

// NewStore returns a store holding an empty layout.
func NewStore() *Store {
	return &Store{
		layout:         NewSessionLayout(),
		agents:         make(map[string]bool),
		previews:       make(map[string]bool),
		parkedAgents:   make(map[string]AgentLayout),
		parkedPreviews: make(map[string]FilePreviewLayout),
	}
}

// Snapshot returns a deep copy of the visible layout.
func (s *Store) Snapshot() SessionLayout {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.layout.Clone()
}

// ViewMode returns the current view mode.
func (s *Store) ViewMode() ViewMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.layout.ViewMode
}

// ActiveAgentID returns the focused agent, or "" when none is focused.
func (s *Store) ActiveAgentID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.layout.ActiveAgentID
}

// AgentLayout returns the geometry of a tracked agent.
func (s *Store) AgentLayout(id string) (AgentLayout, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.layout.AgentLayouts[id]
	return a.Clone(), ok
}

// FilePreviewLayout returns the state of a tracked file preview.
func (s *Store) FilePreviewLayout(id string) (FilePreviewLayout, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.layout.FilePreviewLayouts[id]
	return p.Clone(), ok
}

// Editor returns the editor layout. Check Exists on the result.
func (s *Store) Editor() EditorLayout {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.layout.Editor.Clone()
}

// AgentIDs returns the ids of agents with visible geometry, sorted.
func (s *Store) AgentIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.layout.AgentLayouts)
}

// FilePreviewIDs returns the ids of visible file previews, sorted.
func (s *Store) FilePreviewIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.layout.FilePreviewLayouts)
}

// SetViewMode sets the view mode.
func (s *Store) SetViewMode(m ViewMode) (bool, error) {
	if !m.Valid() {
		return false, ErrInvalidViewMode
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.layout.ViewMode == m {
		return false, nil
	}
	s.layout.ViewMode = m
	return true, nil
}

// SetActiveAgent focuses an agent. The id is a weak reference and is not
// checked against tracked agents; "" clears focus.
func (s *Store) SetActiveAgent(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.layout.ActiveAgentID == id {
		return false
	}
	s.layout.ActiveAgentID = id
	return true
}

// SetAgentGridSpan sets an agent's grid geometry, tracking the agent.
func (s *Store) SetAgentGridSpan(id string, span GridSpan) bool {
	return s.UpdateAgent(id, AgentUpdate{GridSpan: &span})
}

// SetAgentPosition sets an agent's freeform geometry, tracking the agent.
func (s *Store) SetAgentPosition(id string, pos Position) bool {
	return s.UpdateAgent(id, AgentUpdate{Position: &pos})
}

// SetAgentLayout replaces an agent's full geometry, tracking the agent.
func (s *Store) SetAgentLayout(id string, a AgentLayout) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trackAgentLocked(id)
	if cur, ok := s.layout.AgentLayouts[id]; ok && cur.Equal(a) {
		return false
	}
	s.layout.AgentLayouts[id] = a.Clone()
	return true
}

// UpdateAgent merges a partial agent layout and tracks the agent.
func (s *Store) UpdateAgent(id string, u AgentUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trackAgentLocked(id)
	cur, ok := s.layout.AgentLayouts[id]
	next := mergeAgent(cur, u)
	if ok && cur.Equal(next) {
		return false
	}
	s.layout.AgentLayouts[id] = next
	return true
}

// ApplyAgentUpdate merges a partial agent layout that originated elsewhere.
// For an untracked agent the update is parked and parked is true.
func (s *Store) ApplyAgentUpdate(id string, u AgentUpdate) (changed, parked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.agents[id] {
		s.parkedAgents[id] = mergeAgent(s.parkedAgents[id], u)
		return false, true
	}
	cur, ok := s.layout.AgentLayouts[id]
	next := mergeAgent(cur, u)
	if ok && cur.Equal(next) {
		return false, false
	}
	s.layout.AgentLayouts[id] = next
	return true, false
}

// SetFilePreviewLayout replaces a preview's state, tracking the preview.
// A path may be held by one preview at a time: a different preview holding
// the same path is removed and its id returned as evicted.
func (s *Store) SetFilePreviewLayout(id string, p FilePreviewLayout) (changed bool, evicted string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trackPreviewLocked(id)
	evicted = s.evictPathLocked(id, p.Path)
	if cur, ok := s.layout.FilePreviewLayouts[id]; ok && cur.Equal(p) {
		return evicted != "", evicted
	}
	s.layout.FilePreviewLayouts[id] = p.Clone()
	return true, evicted
}

// SetFilePreviewGridSpan sets the grid span of an existing preview.
func (s *Store) SetFilePreviewGridSpan(id string, span GridSpan) (bool, error) {
	return s.updateExistingPreview(id, FilePreviewUpdate{GridSpan: &span})
}

// SetFilePreviewDocked docks or undocks an existing preview.
func (s *Store) SetFilePreviewDocked(id string, docked bool) (bool, error) {
	return s.updateExistingPreview(id, FilePreviewUpdate{Docked: &docked})
}

// SetFilePreviewPinned pins or unpins an existing preview.
func (s *Store) SetFilePreviewPinned(id string, pinned bool) (bool, error) {
	return s.updateExistingPreview(id, FilePreviewUpdate{Pinned: &pinned})
}

func (s *Store) updateExistingPreview(id string, u FilePreviewUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.layout.FilePreviewLayouts[id]
	if !ok {
		return false, ErrUnknownEntity
	}
	next := mergePreview(cur, u)
	if cur.Equal(next) {
		return false, nil
	}
	s.layout.FilePreviewLayouts[id] = next
	return true, nil
}

// ApplyFilePreviewUpdate merges a partial preview layout that originated
// elsewhere. For an untracked preview the update is parked.
func (s *Store) ApplyFilePreviewUpdate(id string, u FilePreviewUpdate) (changed, parked bool, evicted string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.previews[id] {
		s.parkedPreviews[id] = mergePreview(s.parkedPreviews[id], u)
		return false, true, ""
	}
	cur, ok := s.layout.FilePreviewLayouts[id]
	next := mergePreview(cur, u)
	if u.Path != nil {
		evicted = s.evictPathLocked(id, next.Path)
	}
	if ok && cur.Equal(next) {
		return evicted != "", false, evicted
	}
	s.layout.FilePreviewLayouts[id] = next
	return true, false, evicted
}

// SetEditorGridCard creates (or re-targets) the editor card.
func (s *Store) SetEditorGridCard(cardID string) bool {
	if cardID == "" {
		return s.RemoveEditor()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.layout.Editor.GridCardID == cardID {
		return false
	}
	s.layout.Editor.GridCardID = cardID
	return true
}

// SetEditorGridSpan sets the editor card's grid geometry.
func (s *Store) SetEditorGridSpan(span GridSpan) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.layout.Editor.Exists() {
		return false, ErrNoEditor
	}
	if spanEqual(s.layout.Editor.GridSpan, &span) {
		return false, nil
	}
	s.layout.Editor.GridSpan = &span
	return true, nil
}

// SetEditorFreeformPosition sets the editor card's freeform geometry.
func (s *Store) SetEditorFreeformPosition(pos Position) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.layout.Editor.Exists() {
		return false, ErrNoEditor
	}
	if positionEqual(s.layout.Editor.FreeformPosition, &pos) {
		return false, nil
	}
	s.layout.Editor.FreeformPosition = &pos
	return true, nil
}

// RemoveEditor tears the editor card down, clearing its geometry.
func (s *Store) RemoveEditor() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.layout.Editor.Exists() && s.layout.Editor.GridSpan == nil && s.layout.Editor.FreeformPosition == nil {
		return false
	}
	s.layout.Editor = EditorLayout{}
	return true
}

// ApplyEditorUpdate merges a partial editor layout. Geometry without a card
// (either already present or arriving in the same update) is ignored.
func (s *Store) ApplyEditorUpdate(u EditorUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.layout.Editor
	next := cur.Clone()
	if u.GridCardID != nil {
		if *u.GridCardID == "" {
			next = EditorLayout{}
		} else {
			next.GridCardID = *u.GridCardID
		}
	}
	if next.Exists() {
		if u.GridSpan != nil {
			next.GridSpan = cloneSpan(u.GridSpan)
		}
		if u.FreeformPosition != nil {
			next.FreeformPosition = clonePosition(u.FreeformPosition)
		}
	}
	if cur.Equal(next) {
		return false
	}
	s.layout.Editor = next
	return true
}

// Replace installs l as the session layout. Entities in l that are not
// tracked are parked; tracked entities absent from l lose their geometry.
// An invalid view mode in l falls back to DefaultViewMode.
func (s *Store) Replace(l SessionLayout) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := NewSessionLayout()
	next.ViewMode = l.ViewMode
	if !next.ViewMode.Valid() {
		next.ViewMode = DefaultViewMode
	}
	next.ActiveAgentID = l.ActiveAgentID
	if l.Editor.Exists() {
		next.Editor = l.Editor.Clone()
	}

	s.parkedAgents = make(map[string]AgentLayout)
	for id, a := range l.AgentLayouts {
		if s.agents[id] {
			next.AgentLayouts[id] = a.Clone()
		} else {
			s.parkedAgents[id] = a.Clone()
		}
	}

	s.parkedPreviews = make(map[string]FilePreviewLayout)
	for id, p := range l.FilePreviewLayouts {
		if s.previews[id] {
			next.FilePreviewLayouts[id] = p.Clone()
		} else {
			s.parkedPreviews[id] = p.Clone()
		}
	}

	s.layout = next
}

// TrackAgent records that the UI knows agent id. Parked geometry, if any,
// becomes visible and promoted is true.
func (s *Store) TrackAgent(id string) (promoted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trackAgentLocked(id)
}

func (s *Store) trackAgentLocked(id string) bool {
	s.agents[id] = true
	parked, ok := s.parkedAgents[id]
	if !ok {
		return false
	}
	delete(s.parkedAgents, id)
	if _, visible := s.layout.AgentLayouts[id]; !visible {
		s.layout.AgentLayouts[id] = parked
	}
	return true
}

// UntrackAgent forgets agent id and every piece of geometry held for it.
func (s *Store) UntrackAgent(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, visible := s.layout.AgentLayouts[id]
	known := s.agents[id]
	delete(s.agents, id)
	delete(s.parkedAgents, id)
	delete(s.layout.AgentLayouts, id)
	return visible || known
}

// IsAgentTracked reports whether the UI has told the store about agent id.
func (s *Store) IsAgentTracked(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agents[id]
}

// TrackFilePreview records that the UI knows preview id. Parked state, if
// any, becomes visible and promoted is true.
func (s *Store) TrackFilePreview(id string) (promoted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trackPreviewLocked(id)
}

func (s *Store) trackPreviewLocked(id string) bool {
	s.previews[id] = true
	parked, ok := s.parkedPreviews[id]
	if !ok {
		return false
	}
	delete(s.parkedPreviews, id)
	if _, visible := s.layout.FilePreviewLayouts[id]; !visible {
		s.evictPathLocked(id, parked.Path)
		s.layout.FilePreviewLayouts[id] = parked
	}
	return true
}

// UntrackFilePreview forgets preview id and its state.
func (s *Store) UntrackFilePreview(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, visible := s.layout.FilePreviewLayouts[id]
	known := s.previews[id]
	delete(s.previews, id)
	delete(s.parkedPreviews, id)
	delete(s.layout.FilePreviewLayouts, id)
	return visible || known
}

// IsFilePreviewTracked reports whether the UI has told the store about preview id.
func (s *Store) IsFilePreviewTracked(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.previews[id]
}

// evictPathLocked removes any other visible preview showing path.
func (s *Store) evictPathLocked(id, path string) string {
	if path == "" {
		return ""
	}
	for other, p := range s.layout.FilePreviewLayouts {
		if other != id && p.Path == path {
			delete(s.layout.FilePreviewLayouts, other)
			return other
		}
	}
	return ""
}

func mergeAgent(cur AgentLayout, u AgentUpdate) AgentLayout {
	next := cur.Clone()
	if u.GridSpan != nil {
		next.GridSpan = cloneSpan(u.GridSpan)
	}
	if u.Position != nil {
		next.Position = clonePosition(u.Position)
	}
	return next
}

func mergePreview(cur FilePreviewLayout, u FilePreviewUpdate) FilePreviewLayout {
	next := cur.Clone()
	if u.GridSpan != nil {
		next.GridSpan = cloneSpan(u.GridSpan)
	}
	if u.Docked != nil {
		next.Docked = *u.Docked
	}
	if u.Pinned != nil {
		next.Pinned = *u.Pinned
	}
	if u.Path != nil {
		next.Path = *u.Path
	}
	return next
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
