package testing

import (
	"context"
	"strings"
	"testing"

	"github.com/dl-alexandre/bimview/internal/types"
)

func TestContext() context.Context {
	return context.Background()
}

// TestRequestContext describes a folder listing on drive "test-drive"
func TestRequestContext() *types.RequestContext {
	return &types.RequestContext{
		Profile:           "test-profile",
		DriveID:           "test-drive",
		InvolvedFileIDs:   []string{},
		InvolvedParentIDs: []string{},
		RequestType:       types.RequestTypeListChildren,
		TraceID:           "test-trace-id",
	}
}

// TestRequestContextWithFiles is TestRequestContext naming the given items
func TestRequestContextWithFiles(fileIDs ...string) *types.RequestContext {
	ctx := TestRequestContext()
	ctx.InvolvedFileIDs = fileIDs
	return ctx
}

// TestFile is a 1 KiB model file under parentID
func TestFile(id, name, parentID string) types.RemoteNode {
	return types.RemoteNode{ID: id, Name: name, ParentID: parentID, Size: 1024}
}

// TestFolder is a folder under parentID
func TestFolder(id, name, parentID string) types.RemoteNode {
	return types.RemoteNode{ID: id, Name: name, ParentID: parentID, IsFolder: true}
}

// TestSelection creates a selected file under parentID
func TestSelection(id, name, parentID string) types.SelectedFile {
	return types.SelectedFile{ID: id, Name: name, ParentFolderID: parentID}
}

// AssertNoError stops the test on err, prefixed with what was being done
func AssertNoError(t testing.TB, err error, doing ...string) {
	t.Helper()
	if err == nil {
		return
	}
	if len(doing) > 0 {
		t.Fatalf("%s: %v", strings.Join(doing, " "), err)
	}
	t.Fatalf("unexpected error: %v", err)
}
