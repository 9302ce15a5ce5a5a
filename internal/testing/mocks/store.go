package mocks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/internal/utils"
)

// MockFileStore is an in-memory store.FileStore. Folders and file contents
// are keyed by id; the drive id is ignored unless a Func override looks at it.
type MockFileStore struct {
	mu       sync.Mutex
	folders  map[string][]types.RemoteNode
	contents map[string][]byte

	ListChildrenFunc func(ctx context.Context, driveID, folderID string) ([]types.RemoteNode, error)
	FetchContentFunc func(ctx context.Context, driveID, fileID string, w io.Writer) (int64, error)

	listCalls  map[string]int
	fetchCalls []string
}

// NewMockFileStore creates an empty store
func NewMockFileStore() *MockFileStore {
	return &MockFileStore{
		folders:   make(map[string][]types.RemoteNode),
		contents:  make(map[string][]byte),
		listCalls: make(map[string]int),
	}
}

// AddFolder registers the children of folderID, in listing order
func (m *MockFileStore) AddFolder(folderID string, children ...types.RemoteNode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range children {
		if children[i].ParentID == "" {
			children[i].ParentID = folderID
		}
	}
	m.folders[folderID] = append(m.folders[folderID], children...)
}

// SetContent registers the bytes returned for fileID
func (m *MockFileStore) SetContent(fileID string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contents[fileID] = data
}

func (m *MockFileStore) Name() string {
	return "mock"
}

// ListChildren mocks a folder listing
func (m *MockFileStore) ListChildren(ctx context.Context, driveID, folderID string) ([]types.RemoteNode, error) {
	m.mu.Lock()
	m.listCalls[folderID]++
	fn := m.ListChildrenFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, driveID, folderID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	children, ok := m.folders[folderID]
	if !ok {
		return nil, notFound(folderID)
	}
	return append([]types.RemoteNode(nil), children...), nil
}

// FetchContent mocks a download
func (m *MockFileStore) FetchContent(ctx context.Context, driveID, fileID string, w io.Writer) (int64, error) {
	m.mu.Lock()
	m.fetchCalls = append(m.fetchCalls, fileID)
	fn := m.FetchContentFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, driveID, fileID, w)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	data, ok := m.contents[fileID]
	m.mu.Unlock()
	if !ok {
		return 0, notFound(fileID)
	}
	return io.Copy(w, bytes.NewReader(data))
}

// ListCalls returns how many times folderID was listed
func (m *MockFileStore) ListCalls(folderID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls[folderID]
}

// FetchCalls returns the downloaded file ids in call order
func (m *MockFileStore) FetchCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.fetchCalls...)
}

func notFound(id string) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeFileNotFound,
		fmt.Sprintf("item %s not found", id)).
		WithHTTPStatus(404).
		Build())
}
