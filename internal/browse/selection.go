package browse

import (
	"sync"

	"github.com/dl-alexandre/bimview/internal/types"
)

// SelectionTracker is the ordered set of checked files. Files are keyed by
// id so a check survives collapsing and re-expanding the parent folder.
type SelectionTracker struct {
	mu    sync.RWMutex
	order []string
	files map[string]types.SelectedFile
}

// NewSelectionTracker creates an empty selection
func NewSelectionTracker() *SelectionTracker {
	return &SelectionTracker{files: make(map[string]types.SelectedFile)}
}

// Toggle flips the checked state of file and returns the new state
func (s *SelectionTracker) Toggle(file types.SelectedFile) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[file.ID]; ok {
		s.removeLocked(file.ID)
		return false
	}
	s.addLocked(file)
	return true
}

// Set checks or unchecks file. Checking an already checked file keeps its
// original position.
func (s *SelectionTracker) Set(file types.SelectedFile, checked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[file.ID]
	switch {
	case checked && !ok:
		s.addLocked(file)
	case !checked && ok:
		s.removeLocked(file.ID)
	}
}

func (s *SelectionTracker) addLocked(file types.SelectedFile) {
	s.files[file.ID] = file
	s.order = append(s.order, file.ID)
}

func (s *SelectionTracker) removeLocked(id string) {
	delete(s.files, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *SelectionTracker) IsSelected(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.files[id]
	return ok
}

// Selected returns the checked files, first checked first
func (s *SelectionTracker) Selected() []types.SelectedFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.SelectedFile, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.files[id])
	}
	return out
}

func (s *SelectionTracker) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *SelectionTracker) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.files = make(map[string]types.SelectedFile)
}
