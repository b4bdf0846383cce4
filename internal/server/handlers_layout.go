package server

import (
	"log"
	"net/http"

	"github.com/pseudocoder/layoutsync/internal/wire"
)

func (s *Server) handleGetLayout(w http.ResponseWriter, r *http.Request) {
	l, err := s.store.GetLayout(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handlePatchLayout(w http.ResponseWriter, r *http.Request) {
	var p wire.LayoutPatch
	if err := decodeBody(w, r, &p); err != nil {
		writeError(w, err)
		return
	}
	out, err := s.store.PatchLayout(r.PathValue("id"), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePatchAgent(w http.ResponseWriter, r *http.Request) {
	var p wire.AgentPatch
	if err := decodeBody(w, r, &p); err != nil {
		writeError(w, err)
		return
	}
	out, err := s.store.PatchAgent(r.PathValue("id"), r.PathValue("agentId"), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePatchFilePreview(w http.ResponseWriter, r *http.Request) {
	var p wire.FilePreviewPatch
	if err := decodeBody(w, r, &p); err != nil {
		writeError(w, err)
		return
	}
	out, err := s.store.PatchFilePreview(r.PathValue("id"), r.PathValue("previewId"), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePatchEditor(w http.ResponseWriter, r *http.Request) {
	var p wire.EditorPatch
	if err := decodeBody(w, r, &p); err != nil {
		writeError(w, err)
		return
	}
	out, err := s.store.PatchEditor(r.PathValue("id"), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.store.ListDevices(r.PathValue("id"))
	if err != nil {
		log.Printf("server: list devices: %v", err)
		writeError(w, err)
		return
	}

	out := make([]wire.Device, 0, len(devices))
	for _, d := range devices {
		out = append(out, wire.Device{
			DeviceID:  d.ID,
			UserID:    d.UserID,
			FirstSeen: d.FirstSeen,
			LastSeen:  d.LastSeen,
			Messages:  d.Messages,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
