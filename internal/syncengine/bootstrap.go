package syncengine

import (
	"context"
	"log"
	"sort"

	"github.com/pseudocoder/layoutsync/internal/codec"
	apperrors "github.com/pseudocoder/layoutsync/internal/errors"
	"github.com/pseudocoder/layoutsync/internal/layout"
)

// localOnly lists the entities a device holds that the fetched layout does
// not know about.
type localOnly struct {
	agents   []string
	previews []string
	editor   bool
}

func (l localOnly) empty() bool {
	return len(l.agents) == 0 && len(l.previews) == 0 && !l.editor
}

// mergeSnapshot combines the device's layout with a fetched one. The
// fetched layout wins on every field it carries; entities it does not carry
// are kept from the device and returned so they can be pushed.
//
// A device preview whose path is already shown by a fetched preview is
// dropped, since a path belongs to one preview at a time.
func mergeSnapshot(local, remote layout.SessionLayout) (layout.SessionLayout, localOnly) {
	merged := remote.Clone()
	var only localOnly

	for _, id := range sortedIDs(local.AgentLayouts) {
		if _, ok := merged.AgentLayouts[id]; ok {
			continue
		}
		merged.AgentLayouts[id] = local.AgentLayouts[id].Clone()
		only.agents = append(only.agents, id)
	}

	paths := make(map[string]string, len(merged.FilePreviewLayouts))
	for id, p := range merged.FilePreviewLayouts {
		if p.Path != "" {
			paths[p.Path] = id
		}
	}
	for _, id := range sortedIDs(local.FilePreviewLayouts) {
		if _, ok := merged.FilePreviewLayouts[id]; ok {
			continue
		}
		p := local.FilePreviewLayouts[id]
		if holder, taken := paths[p.Path]; taken && p.Path != "" {
			log.Printf("syncengine: dropping local preview %s, %s is shown by %s", id, p.Path, holder)
			continue
		}
		merged.FilePreviewLayouts[id] = p.Clone()
		if p.Path != "" {
			paths[p.Path] = id
		}
		only.previews = append(only.previews, id)
	}

	if !merged.Editor.Exists() && local.Editor.Exists() {
		merged.Editor = local.Editor.Clone()
		only.editor = true
	}

	return merged, only
}

// bootstrap installs the backend's layout, merged with whatever the device
// already holds, and pushes the device-only entities. The guard is held for
// the whole sequence, including the fetch. Local changes made during the
// fetch are journaled and win over the fetched layout, as in Resync.
func (e *Engine) bootstrap(ctx context.Context) error {
	e.resyncMu.Lock()
	defer e.resyncMu.Unlock()

	e.applyMu.Lock()
	defer e.applyMu.Unlock()

	scope := e.guard.Enter()
	defer scope.Release()

	j := e.openJournal()
	remote, err := e.persist.FetchLayout(ctx, e.sessionID)
	if err != nil {
		e.closeJournal()
		log.Printf("syncengine: bootstrap of session %s failed: %v", e.sessionID, err)
		e.setStatus(StatusUnavailable)
		return apperrors.BootstrapFailed(e.sessionID, err)
	}

	e.localMu.Lock()
	merged, only := mergeSnapshot(e.store.Snapshot(), remote)
	e.store.Replace(merged)
	replayed := j.replay(e.store)
	e.journal = nil
	snap := e.store.Snapshot()
	e.localMu.Unlock()

	if replayed > 0 {
		log.Printf("syncengine: bootstrap kept %d local changes made during the fetch", replayed)
	}
	if !only.empty() {
		log.Printf("syncengine: pushing %d agents, %d previews, editor=%t missing from session %s",
			len(only.agents), len(only.previews), only.editor, e.sessionID)
	}
	for _, id := range only.agents {
		e.pusher.now(e.agentJob("bootstrap agent", id, codec.AgentPatchFromLayout(merged.AgentLayouts[id])))
	}
	for _, id := range only.previews {
		e.pusher.now(e.previewJob("bootstrap preview", id, codec.FilePreviewPatchFromLayout(merged.FilePreviewLayouts[id])))
	}
	if only.editor {
		e.pusher.now(e.editorJob("bootstrap editor", codec.EditorPatchFromLayout(merged.Editor)))
	}

	log.Printf("syncengine: session %s ready (%d agents, %d previews)",
		e.sessionID, len(snap.AgentLayouts), len(snap.FilePreviewLayouts))
	e.setStatus(StatusReady)
	e.listener.SnapshotApplied(e.newRemoteScope(scope), snap)
	return nil
}

func sortedIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
