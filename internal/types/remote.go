package types

import (
	"fmt"
	"strings"
	"time"
)

// RemoteNode is a folder or file as returned by a FileStore listing
type RemoteNode struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	IsFolder     bool      `json:"isFolder"`
	ParentID     string    `json:"parentId"`
	Size         int64     `json:"size,omitempty"`
	ModifiedTime time.Time `json:"modifiedTime,omitempty"`
}

// FolderListing is the cached result of listing one folder.
// Nodes keep the order the store returned them in.
type FolderListing struct {
	DriveID   string       `json:"driveId"`
	FolderID  string       `json:"folderId"`
	Nodes     []RemoteNode `json:"nodes"`
	FetchedAt time.Time    `json:"fetchedAt"`
}

func (l *FolderListing) Headers() []string {
	return []string{"ID", "Name", "Type", "Size"}
}

func (l *FolderListing) Rows() [][]string {
	rows := make([][]string, len(l.Nodes))
	for i, n := range l.Nodes {
		kind := "file"
		size := fmt.Sprintf("%d", n.Size)
		if n.IsFolder {
			kind = "folder"
			size = "-"
		}
		rows[i] = []string{n.ID, n.Name, kind, size}
	}
	return rows
}

func (l *FolderListing) EmptyMessage() string {
	return "Folder is empty"
}

// SelectedFile is a file the user has checked for loading
type SelectedFile struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ParentFolderID string `json:"parentFolderId"`
}

// NodeKind describes how a tree row can be interacted with
type NodeKind string

const (
	NodeKindFolder     NodeKind = "folder"
	NodeKindSelectable NodeKind = "selectable"
	NodeKindInfo       NodeKind = "info"
)

// TreeRow is one visible line of the expanded folder tree
type TreeRow struct {
	Depth    int      `json:"depth"`
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	ParentID string   `json:"parentId"`
	Kind     NodeKind `json:"kind"`
	Expanded bool     `json:"expanded,omitempty"`
	Checked  bool     `json:"checked,omitempty"`
}

// TreeView is a renderable snapshot of the visible tree
type TreeView struct {
	DriveID string    `json:"driveId"`
	RootID  string    `json:"rootId"`
	Items   []TreeRow `json:"rows"`
}

func (v *TreeView) Headers() []string {
	return []string{"", "Name", "ID", "Kind"}
}

func (v *TreeView) Rows() [][]string {
	rows := make([][]string, len(v.Items))
	for i, r := range v.Items {
		marker := " "
		switch {
		case r.Kind == NodeKindFolder && r.Expanded:
			marker = "v"
		case r.Kind == NodeKindFolder:
			marker = ">"
		case r.Checked:
			marker = "x"
		}
		rows[i] = []string{marker, strings.Repeat("  ", r.Depth) + r.Name, r.ID, string(r.Kind)}
	}
	return rows
}

func (v *TreeView) EmptyMessage() string {
	return "No items"
}
