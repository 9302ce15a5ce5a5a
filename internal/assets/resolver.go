// Package assets decides how a selected file is loaded: which parser handles
// it and which sibling, if any, supplies its external buffer.
package assets

import (
	"fmt"
	"path"
	"strings"

	"github.com/dl-alexandre/bimview/internal/model"
	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/internal/utils"
)

// MatchMode controls how a companion's stem is compared with the primary's
type MatchMode string

const (
	MatchExact MatchMode = "exact"
	MatchFold  MatchMode = "fold"
)

// Resolution is what the loader needs to fetch and parse one selected file
type Resolution struct {
	Primary   types.SelectedFile
	Format    model.Format
	Auxiliary *types.RemoteNode
	Warnings  []types.CLIWarning
}

// Resolver maps selected files to formats and companion buffers
type Resolver struct {
	extensions map[string]bool
	mode       MatchMode
}

// NewResolver creates a resolver accepting the given extensions. An empty
// list means every format a parser exists for.
func NewResolver(extensions []string, mode MatchMode) *Resolver {
	r := &Resolver{extensions: make(map[string]bool), mode: mode}
	if r.mode == "" {
		r.mode = MatchExact
	}
	for _, e := range extensions {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		r.extensions[e] = true
	}
	return r
}

// Supports reports whether name is a selectable model file
func (r *Resolver) Supports(name string) bool {
	if _, ok := model.FormatFromName(name); !ok {
		return false
	}
	if len(r.extensions) == 0 {
		return true
	}
	return r.extensions[strings.ToLower(path.Ext(name))]
}

// Resolve determines the format of file and locates its companion buffer
// among siblings. A missing companion is reported as a warning; the parser
// decides whether the model can still be built.
func (r *Resolver) Resolve(file types.SelectedFile, siblings []types.RemoteNode) (*Resolution, error) {
	format, ok := model.FormatFromName(file.Name)
	if !ok || !r.Supports(file.Name) {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeUnsupportedFormat,
			fmt.Sprintf("unsupported file type: %s", file.Name)).
			WithContext("file", file.Name).
			Build())
	}

	res := &Resolution{Primary: file, Format: format}
	if !format.NeedsCompanion() {
		return res, nil
	}

	want := CompanionName(file.Name)
	for i := range siblings {
		s := siblings[i]
		if s.IsFolder || s.ID == file.ID {
			continue
		}
		if r.matches(s.Name, want) {
			res.Auxiliary = &s
			return res, nil
		}
	}

	res.Warnings = append(res.Warnings, types.CLIWarning{
		Code:     utils.ErrCodeCompanionMissing,
		Message:  fmt.Sprintf("%s: companion %s not found in folder", file.Name, want),
		Severity: "warning",
	})
	return res, nil
}

func (r *Resolver) matches(name, want string) bool {
	if r.mode == MatchFold {
		return strings.EqualFold(name, want)
	}
	return name == want
}

// CompanionName returns the buffer file a .gltf document refers to by
// convention: the same stem with a .bin extension
func CompanionName(name string) string {
	return strings.TrimSuffix(name, path.Ext(name)) + utils.CompanionExtension
}
