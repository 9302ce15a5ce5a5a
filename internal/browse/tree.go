package browse

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/internal/utils"
)

type treeNode struct {
	types.RemoteNode
	kind     types.NodeKind
	expanded bool
	fetched  bool
	children []string
}

// Tree is the expandable folder tree rooted at one drive folder. It holds
// no UI state beyond which folders are open.
type Tree struct {
	cache      *FolderCache
	selection  *SelectionTracker
	selectable func(name string) bool

	mu      sync.Mutex
	driveID string
	rootID  string
	nodes   map[string]*treeNode
}

// NewTree creates a tree over driveID starting at rootID. selectable
// decides which files can be checked; nil accepts none.
func NewTree(cache *FolderCache, selection *SelectionTracker, selectable func(name string) bool) *Tree {
	if selectable == nil {
		selectable = func(string) bool { return false }
	}
	if selection == nil {
		selection = NewSelectionTracker()
	}
	return &Tree{
		cache:      cache,
		selection:  selection,
		selectable: selectable,
		nodes:      make(map[string]*treeNode),
	}
}

// SetRoot points the tree at a new drive folder and forgets expansion state.
// The selection is kept.
func (t *Tree) SetRoot(driveID, rootID string) {
	if rootID == "" {
		rootID = utils.RootFolderID
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.driveID = driveID
	t.rootID = rootID
	t.nodes = map[string]*treeNode{
		rootID: {
			RemoteNode: types.RemoteNode{ID: rootID, Name: "/", IsFolder: true},
			kind:       types.NodeKindFolder,
		},
	}
}

// Reroot points the tree at a new drive folder and opens path below it,
// returning the folder path resolves to. When path cannot be opened the
// previous root and expansion state are put back.
func (t *Tree) Reroot(ctx context.Context, driveID, rootID, path string) (string, error) {
	t.mu.Lock()
	prevDrive, prevRoot, prevNodes := t.driveID, t.rootID, t.nodes
	t.mu.Unlock()

	t.SetRoot(driveID, rootID)
	folderID, err := t.OpenPath(ctx, path)
	if err != nil {
		t.mu.Lock()
		t.driveID, t.rootID, t.nodes = prevDrive, prevRoot, prevNodes
		t.mu.Unlock()
		return "", err
	}
	return folderID, nil
}

// Root returns the drive and folder the tree is rooted at
func (t *Tree) Root() (driveID, rootID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.driveID, t.rootID
}

// Selection returns the tracker that backs checked state
func (t *Tree) Selection() *SelectionTracker {
	return t.selection
}

func (t *Tree) classify(n types.RemoteNode) types.NodeKind {
	switch {
	case n.IsFolder:
		return types.NodeKindFolder
	case t.selectable(n.Name):
		return types.NodeKindSelectable
	default:
		return types.NodeKindInfo
	}
}

func nodeNotFound(id string) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeFileNotFound,
		fmt.Sprintf("node %s is not in the tree", id)).
		WithContext("nodeId", id).
		Build())
}

// Toggle expands or collapses folder id. The first expansion lists the
// folder; later toggles only flip visibility. On a failed listing the
// folder stays collapsed and can be toggled again.
func (t *Tree) Toggle(ctx context.Context, id string) (bool, error) {
	t.mu.Lock()
	n, ok := t.nodes[id]
	if !ok {
		t.mu.Unlock()
		return false, nodeNotFound(id)
	}
	if !n.IsFolder {
		t.mu.Unlock()
		return false, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("%s is not a folder", n.Name)).Build())
	}
	if n.fetched {
		n.expanded = !n.expanded
		expanded := n.expanded
		t.mu.Unlock()
		return expanded, nil
	}
	t.mu.Unlock()

	if err := t.expand(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

// expand fetches children of an unfetched folder and opens it
func (t *Tree) expand(ctx context.Context, id string) error {
	t.mu.Lock()
	driveID := t.driveID
	n, ok := t.nodes[id]
	if ok && n.fetched {
		n.expanded = true
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()
	if !ok {
		return nodeNotFound(id)
	}

	listing, err := t.cache.Get(ctx, driveID, id)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok = t.nodes[id]
	if !ok || t.driveID != driveID {
		// The tree was re-rooted while the listing was in flight
		return nodeNotFound(id)
	}
	if !n.fetched {
		n.children = make([]string, 0, len(listing.Nodes))
		for _, child := range listing.Nodes {
			if child.ParentID == "" {
				child.ParentID = id
			}
			// Drive items can have several parents; a node already in the
			// tree keeps its expansion state.
			if _, seen := t.nodes[child.ID]; !seen {
				t.nodes[child.ID] = &treeNode{RemoteNode: child, kind: t.classify(child)}
			}
			n.children = append(n.children, child.ID)
		}
		n.fetched = true
	}
	n.expanded = true
	return nil
}

// Node returns the remote node with the given id if the tree has seen it
func (t *Tree) Node(id string) (types.RemoteNode, types.NodeKind, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return types.RemoteNode{}, "", false
	}
	return n.RemoteNode, n.kind, true
}

// Check toggles the checked state of a selectable file and returns the new state
func (t *Tree) Check(id string) (bool, error) {
	t.mu.Lock()
	n, ok := t.nodes[id]
	t.mu.Unlock()
	if !ok {
		return false, nodeNotFound(id)
	}
	if n.kind != types.NodeKindSelectable {
		return false, utils.NewAppError(utils.NewCLIError(utils.ErrCodeUnsupportedFormat,
			fmt.Sprintf("%s cannot be selected", n.Name)).
			WithContext("nodeId", id).
			Build())
	}
	return t.selection.Toggle(types.SelectedFile{
		ID:             n.ID,
		Name:           n.Name,
		ParentFolderID: n.ParentID,
	}), nil
}

// Visible flattens the open part of the tree, depth first in store order.
// The root itself is not listed.
func (t *Tree) Visible() *types.TreeView {
	t.mu.Lock()
	defer t.mu.Unlock()

	view := &types.TreeView{DriveID: t.driveID, RootID: t.rootID, Items: []types.TreeRow{}}
	root, ok := t.nodes[t.rootID]
	if !ok || !root.expanded {
		return view
	}

	var walk func(ids []string, depth int)
	walk = func(ids []string, depth int) {
		for _, id := range ids {
			n := t.nodes[id]
			view.Items = append(view.Items, types.TreeRow{
				Depth:    depth,
				ID:       n.ID,
				Name:     n.Name,
				ParentID: n.ParentID,
				Kind:     n.kind,
				Expanded: n.expanded,
				Checked:  n.kind == types.NodeKindSelectable && t.selection.IsSelected(n.ID),
			})
			if n.expanded {
				walk(n.children, depth+1)
			}
		}
	}
	walk(root.children, 0)
	return view
}

// OpenPath expands the folders named by a slash separated path, starting
// at the root, and returns the id of the last one. Names match exactly.
func (t *Tree) OpenPath(ctx context.Context, folderPath string) (string, error) {
	t.mu.Lock()
	current := t.rootID
	t.mu.Unlock()

	if err := t.expand(ctx, current); err != nil {
		return "", err
	}

	for _, seg := range strings.Split(folderPath, "/") {
		if seg = strings.TrimSpace(seg); seg == "" {
			continue
		}
		next, ok := t.childFolder(current, seg)
		if !ok {
			return "", utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidPath,
				fmt.Sprintf("folder %q not found", seg)).
				WithContext("path", folderPath).
				Build())
		}
		if err := t.expand(ctx, next); err != nil {
			return "", err
		}
		current = next
	}
	return current, nil
}

func (t *Tree) childFolder(parentID, name string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	parent, ok := t.nodes[parentID]
	if !ok {
		return "", false
	}
	for _, id := range parent.children {
		if c := t.nodes[id]; c.IsFolder && c.Name == name {
			return id, true
		}
	}
	return "", false
}
