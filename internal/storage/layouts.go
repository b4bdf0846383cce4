package storage

// layouts.go contains SQLiteStore methods for reading and patching session
// layouts. Every patch runs in one transaction and returns the stored state
// of the entity it touched.

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	apperrors "github.com/pseudocoder/layoutsync/internal/errors"
	"github.com/pseudocoder/layoutsync/internal/layout"
	"github.com/pseudocoder/layoutsync/internal/wire"
)

// querier is the subset of *sql.DB and *sql.Tx the readers need.
type querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
}

// GetLayout returns the stored layout of a session. A session the store has
// never seen yields the default layout: grid view, no focus, no panels.
func (s *SQLiteStore) GetLayout(sessionID string) (wire.Layout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return readLayout(s.db, sessionID)
}

// PatchLayout applies the view mode and focus fields of p. A null or
// unknown view mode is rejected with validation.failed; a null
// active_agent_id clears the focus.
func (s *SQLiteStore) PatchLayout(sessionID string, p wire.LayoutPatch) (wire.LayoutFields, error) {
	if p.ViewMode.Set {
		if p.ViewMode.Null {
			return wire.LayoutFields{}, apperrors.ValidationFailed("view_mode cannot be null")
		}
		if _, err := layout.ParseViewMode(p.ViewMode.Value); err != nil {
			return wire.LayoutFields{}, apperrors.ValidationFailed(fmt.Sprintf("invalid view mode %q", p.ViewMode.Value))
		}
	}
	if v, ok := p.ActiveAgentID.Get(); ok && v == "" {
		return wire.LayoutFields{}, apperrors.ValidationFailed("active_agent_id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out wire.LayoutFields
	err := s.withTx(sessionID, func(tx *sql.Tx, now string) error {
		if p.ViewMode.Set {
			if _, err := tx.Exec(
				"UPDATE session_layouts SET view_mode = ?, updated_at = ? WHERE session_id = ?",
				p.ViewMode.Value, now, sessionID,
			); err != nil {
				return fmt.Errorf("update view mode: %w", err)
			}
		}
		if p.ActiveAgentID.Set {
			if _, err := tx.Exec(
				"UPDATE session_layouts SET active_agent_id = ?, updated_at = ? WHERE session_id = ?",
				nullString(p.ActiveAgentID), now, sessionID,
			); err != nil {
				return fmt.Errorf("update active agent: %w", err)
			}
		}

		var active sql.NullString
		err := tx.QueryRow(
			"SELECT view_mode, active_agent_id FROM session_layouts WHERE session_id = ?",
			sessionID,
		).Scan(&out.ViewMode, &active)
		if err != nil {
			return fmt.Errorf("read layout fields: %w", err)
		}
		out.ActiveAgentID = stringPtr(active)
		return nil
	})
	if err != nil {
		return wire.LayoutFields{}, err
	}
	return out, nil
}

// PatchAgent merges p into the stored layout of one agent, creating the
// row on first write. Null geometry fields leave the stored value alone.
func (s *SQLiteStore) PatchAgent(sessionID, agentID string, p wire.AgentPatch) (wire.AgentLayout, error) {
	if agentID == "" {
		return wire.AgentLayout{}, apperrors.ValidationFailed("agent id is required")
	}
	if span, ok := p.GridSpan.Get(); ok {
		if err := validateSpan(span); err != nil {
			return wire.AgentLayout{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out wire.AgentLayout
	err := s.withTx(sessionID, func(tx *sql.Tx, now string) error {
		current, _, err := readAgent(tx, sessionID, agentID)
		if err != nil {
			return err
		}
		if v, ok := p.GridSpan.Get(); ok {
			current.GridSpan = &v
		}
		if v, ok := p.Position.Get(); ok {
			current.Position = &v
		}

		const query = `
			INSERT OR REPLACE INTO agent_layouts
				(session_id, agent_id, grid_span, position, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`
		if _, err := tx.Exec(query,
			sessionID, agentID,
			encodeJSON(current.GridSpan), encodeJSON(current.Position),
			now,
		); err != nil {
			return fmt.Errorf("save agent layout: %w", err)
		}
		out = current
		return nil
	})
	if err != nil {
		return wire.AgentLayout{}, err
	}
	return out, nil
}

// PatchFilePreview merges p into the stored layout of one file preview,
// creating the row on first write. A path belongs to one preview per
// session: setting a path already shown by another preview evicts that
// preview.
func (s *SQLiteStore) PatchFilePreview(sessionID, previewID string, p wire.FilePreviewPatch) (wire.FilePreviewLayout, error) {
	if previewID == "" {
		return wire.FilePreviewLayout{}, apperrors.ValidationFailed("preview id is required")
	}
	if span, ok := p.GridSpan.Get(); ok {
		if err := validateSpan(span); err != nil {
			return wire.FilePreviewLayout{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out wire.FilePreviewLayout
	err := s.withTx(sessionID, func(tx *sql.Tx, now string) error {
		current, _, err := readPreview(tx, sessionID, previewID)
		if err != nil {
			return err
		}
		if v, ok := p.GridSpan.Get(); ok {
			current.GridSpan = &v
		}
		if v, ok := p.Docked.Get(); ok {
			current.Docked = v
		}
		if v, ok := p.Pinned.Get(); ok {
			current.Pinned = v
		}
		if v, ok := p.Path.Get(); ok {
			current.Path = v
		}

		if current.Path != "" {
			res, err := tx.Exec(
				"DELETE FROM file_preview_layouts WHERE session_id = ? AND path = ? AND preview_id != ?",
				sessionID, current.Path, previewID,
			)
			if err != nil {
				return fmt.Errorf("evict previews: %w", err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				log.Printf("storage: preview %s took %s from %d other preview(s) in session %s",
					previewID, current.Path, n, sessionID)
			}
		}

		const query = `
			INSERT OR REPLACE INTO file_preview_layouts
				(session_id, preview_id, grid_span, docked, pinned, path, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`
		if _, err := tx.Exec(query,
			sessionID, previewID,
			encodeJSON(current.GridSpan), current.Docked, current.Pinned, current.Path,
			now,
		); err != nil {
			return fmt.Errorf("save preview layout: %w", err)
		}
		out = current
		return nil
	})
	if err != nil {
		return wire.FilePreviewLayout{}, err
	}
	return out, nil
}

// PatchEditor merges p into the editor card fields. A null
// editor_grid_card_id removes the card together with its geometry.
// Geometry for a session without an editor card is a conflict.
func (s *SQLiteStore) PatchEditor(sessionID string, p wire.EditorPatch) (wire.EditorFields, error) {
	if v, ok := p.GridCardID.Get(); ok && v == "" {
		return wire.EditorFields{}, apperrors.ValidationFailed("editor_grid_card_id cannot be empty")
	}
	if span, ok := p.GridSpan.Get(); ok {
		if err := validateSpan(span); err != nil {
			return wire.EditorFields{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out wire.EditorFields
	err := s.withTx(sessionID, func(tx *sql.Tx, now string) error {
		current, err := readEditor(tx, sessionID)
		if err != nil {
			return err
		}

		if p.GridCardID.Set {
			if p.GridCardID.Null {
				current = wire.EditorFields{}
			} else {
				card := p.GridCardID.Value
				current.GridCardID = &card
			}
		}

		span, hasSpan := p.GridSpan.Get()
		pos, hasPos := p.FreeformPosition.Get()
		if (hasSpan || hasPos) && current.GridCardID == nil {
			return apperrors.ConflictDetected("session has no editor card")
		}
		if hasSpan {
			current.GridSpan = &span
		}
		if hasPos {
			current.FreeformPosition = &pos
		}

		const query = `
			UPDATE session_layouts
			SET editor_grid_card_id = ?, editor_grid_span = ?, editor_freeform_position = ?, updated_at = ?
			WHERE session_id = ?
		`
		var card sql.NullString
		if current.GridCardID != nil {
			card = sql.NullString{String: *current.GridCardID, Valid: true}
		}
		if _, err := tx.Exec(query,
			card, encodeJSON(current.GridSpan), encodeJSON(current.FreeformPosition),
			now, sessionID,
		); err != nil {
			return fmt.Errorf("save editor layout: %w", err)
		}
		out = current
		return nil
	})
	if err != nil {
		return wire.EditorFields{}, err
	}
	return out, nil
}

// withTx runs fn in a transaction after making sure the session row
// exists. The caller holds s.mu.
func (s *SQLiteStore) withTx(sessionID string, fn func(tx *sql.Tx, now string) error) error {
	if sessionID == "" {
		return apperrors.ValidationFailed("session id is required")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageSaveFailed, "begin transaction", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(timeLayout)
	if _, err := tx.Exec(
		"INSERT OR IGNORE INTO session_layouts (session_id, view_mode, updated_at) VALUES (?, ?, ?)",
		sessionID, string(layout.DefaultViewMode), now,
	); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageSaveFailed, "create session layout", err)
	}

	if err := fn(tx, now); err != nil {
		var coded *apperrors.CodedError
		if errors.As(err, &coded) {
			return err
		}
		return apperrors.Wrap(apperrors.CodeStorageSaveFailed, "patch layout", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageSaveFailed, "commit layout", err)
	}
	return nil
}

func readLayout(q querier, sessionID string) (wire.Layout, error) {
	out := wire.Layout{
		SessionID:          sessionID,
		ViewMode:           string(layout.DefaultViewMode),
		AgentLayouts:       map[string]wire.AgentLayout{},
		FilePreviewLayouts: map[string]wire.FilePreviewLayout{},
	}

	const sessionQuery = `
		SELECT view_mode, active_agent_id, editor_grid_card_id, editor_grid_span, editor_freeform_position
		FROM session_layouts
		WHERE session_id = ?
	`
	var active, card, span, pos sql.NullString
	err := q.QueryRow(sessionQuery, sessionID).Scan(&out.ViewMode, &active, &card, &span, &pos)
	if errors.Is(err, sql.ErrNoRows) {
		return out, nil
	}
	if err != nil {
		return wire.Layout{}, queryFailed("read session layout", err)
	}
	out.ActiveAgentID = stringPtr(active)
	out.EditorGridCardID = stringPtr(card)
	if out.EditorGridSpan, err = decodeJSON[wire.GridSpan](span); err != nil {
		return wire.Layout{}, queryFailed("decode editor grid span", err)
	}
	if out.EditorFreeformPosition, err = decodeJSON[wire.Position](pos); err != nil {
		return wire.Layout{}, queryFailed("decode editor position", err)
	}

	if out.AgentLayouts, err = readAgents(q, sessionID); err != nil {
		return wire.Layout{}, err
	}
	if out.FilePreviewLayouts, err = readPreviews(q, sessionID); err != nil {
		return wire.Layout{}, err
	}

	return out, nil
}

// readAgents and readPreviews close their rows before returning; the store
// runs on a single connection.
func readAgents(q querier, sessionID string) (map[string]wire.AgentLayout, error) {
	rows, err := q.Query("SELECT agent_id, grid_span, position FROM agent_layouts WHERE session_id = ?", sessionID)
	if err != nil {
		return nil, queryFailed("query agent layouts", err)
	}
	defer rows.Close()

	out := map[string]wire.AgentLayout{}
	for rows.Next() {
		var id string
		var span, pos sql.NullString
		if err := rows.Scan(&id, &span, &pos); err != nil {
			return nil, queryFailed("scan agent layout", err)
		}
		a, err := agentFromColumns(span, pos)
		if err != nil {
			return nil, queryFailed("decode agent layout "+id, err)
		}
		out[id] = a
	}
	if err := rows.Err(); err != nil {
		return nil, queryFailed("iterate agent layouts", err)
	}
	return out, nil
}

func readPreviews(q querier, sessionID string) (map[string]wire.FilePreviewLayout, error) {
	rows, err := q.Query(
		"SELECT preview_id, grid_span, docked, pinned, path FROM file_preview_layouts WHERE session_id = ?",
		sessionID,
	)
	if err != nil {
		return nil, queryFailed("query preview layouts", err)
	}
	defer rows.Close()

	out := map[string]wire.FilePreviewLayout{}
	for rows.Next() {
		var id string
		var span sql.NullString
		var p wire.FilePreviewLayout
		if err := rows.Scan(&id, &span, &p.Docked, &p.Pinned, &p.Path); err != nil {
			return nil, queryFailed("scan preview layout", err)
		}
		if p.GridSpan, err = decodeJSON[wire.GridSpan](span); err != nil {
			return nil, queryFailed("decode preview layout "+id, err)
		}
		out[id] = p
	}
	if err := rows.Err(); err != nil {
		return nil, queryFailed("iterate preview layouts", err)
	}
	return out, nil
}

// readAgent returns the stored agent layout and whether a row exists.
func readAgent(q querier, sessionID, agentID string) (wire.AgentLayout, bool, error) {
	var span, pos sql.NullString
	err := q.QueryRow(
		"SELECT grid_span, position FROM agent_layouts WHERE session_id = ? AND agent_id = ?",
		sessionID, agentID,
	).Scan(&span, &pos)
	if errors.Is(err, sql.ErrNoRows) {
		return wire.AgentLayout{}, false, nil
	}
	if err != nil {
		return wire.AgentLayout{}, false, fmt.Errorf("read agent layout: %w", err)
	}
	a, err := agentFromColumns(span, pos)
	if err != nil {
		return wire.AgentLayout{}, false, fmt.Errorf("decode agent layout: %w", err)
	}
	return a, true, nil
}

// readPreview returns the stored preview layout and whether a row exists.
func readPreview(q querier, sessionID, previewID string) (wire.FilePreviewLayout, bool, error) {
	var span sql.NullString
	var p wire.FilePreviewLayout
	err := q.QueryRow(
		"SELECT grid_span, docked, pinned, path FROM file_preview_layouts WHERE session_id = ? AND preview_id = ?",
		sessionID, previewID,
	).Scan(&span, &p.Docked, &p.Pinned, &p.Path)
	if errors.Is(err, sql.ErrNoRows) {
		return wire.FilePreviewLayout{}, false, nil
	}
	if err != nil {
		return wire.FilePreviewLayout{}, false, fmt.Errorf("read preview layout: %w", err)
	}
	if p.GridSpan, err = decodeJSON[wire.GridSpan](span); err != nil {
		return wire.FilePreviewLayout{}, false, fmt.Errorf("decode preview layout: %w", err)
	}
	return p, true, nil
}

func readEditor(q querier, sessionID string) (wire.EditorFields, error) {
	var card, span, pos sql.NullString
	err := q.QueryRow(
		"SELECT editor_grid_card_id, editor_grid_span, editor_freeform_position FROM session_layouts WHERE session_id = ?",
		sessionID,
	).Scan(&card, &span, &pos)
	if err != nil {
		return wire.EditorFields{}, fmt.Errorf("read editor layout: %w", err)
	}
	out := wire.EditorFields{GridCardID: stringPtr(card)}
	if out.GridSpan, err = decodeJSON[wire.GridSpan](span); err != nil {
		return wire.EditorFields{}, fmt.Errorf("decode editor grid span: %w", err)
	}
	if out.FreeformPosition, err = decodeJSON[wire.Position](pos); err != nil {
		return wire.EditorFields{}, fmt.Errorf("decode editor position: %w", err)
	}
	return out, nil
}

func agentFromColumns(span, pos sql.NullString) (wire.AgentLayout, error) {
	var a wire.AgentLayout
	var err error
	if a.GridSpan, err = decodeJSON[wire.GridSpan](span); err != nil {
		return a, err
	}
	if a.Position, err = decodeJSON[wire.Position](pos); err != nil {
		return a, err
	}
	return a, nil
}

func validateSpan(s wire.GridSpan) error {
	if s.ColSpan < 1 || s.RowSpan < 1 {
		return apperrors.ValidationFailed(fmt.Sprintf("grid span %dx%d must be at least 1x1", s.ColSpan, s.RowSpan))
	}
	return nil
}

// encodeJSON returns the JSON text of v, or NULL for a nil pointer.
func encodeJSON[T any](v *T) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		// GridSpan and Position always marshal.
		panic(fmt.Sprintf("storage: encode %T: %v", v, err))
	}
	return sql.NullString{String: string(data), Valid: true}
}

func decodeJSON[T any](s sql.NullString) (*T, error) {
	if !s.Valid {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func nullString(f wire.Field[string]) sql.NullString {
	v, ok := f.Get()
	return sql.NullString{String: v, Valid: ok}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func queryFailed(what string, err error) error {
	return apperrors.Wrap(apperrors.CodeStorageQueryFailed, what, err)
}
