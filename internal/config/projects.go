package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Project is a named entry point into a remote drive. Graph projects are
// addressed by a SharePoint sharing link; other backends by drive and folder IDs.
type Project struct {
	Name         string `yaml:"name" json:"name"`
	SharedLink   string `yaml:"sharedLink,omitempty" json:"sharedLink,omitempty"`
	SpecificPath string `yaml:"specificPath,omitempty" json:"specificPath,omitempty"`
	DriveID      string `yaml:"driveId,omitempty" json:"driveId,omitempty"`
	FolderID     string `yaml:"folderId,omitempty" json:"folderId,omitempty"`
}

// PathSegments splits SpecificPath into folder names, dropping empty parts
func (p Project) PathSegments() []string {
	var segs []string
	for _, s := range strings.Split(p.SpecificPath, "/") {
		if s = strings.TrimSpace(s); s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// ProjectSet is the parsed projects file
type ProjectSet struct {
	Projects []Project `yaml:"projects"`
}

func (s *ProjectSet) Headers() []string {
	return []string{"Name", "Location", "Path"}
}

func (s *ProjectSet) Rows() [][]string {
	rows := make([][]string, len(s.Projects))
	for i, p := range s.Projects {
		loc := p.SharedLink
		if loc == "" {
			loc = p.DriveID
		}
		rows[i] = []string{p.Name, loc, p.SpecificPath}
	}
	return rows
}

func (s *ProjectSet) EmptyMessage() string {
	return "No projects configured"
}

// Find returns the project with the given name
func (s *ProjectSet) Find(name string) (Project, bool) {
	for _, p := range s.Projects {
		if p.Name == name {
			return p, true
		}
	}
	return Project{}, false
}

// GetProjectsPath returns the projects file location inside the config dir
func GetProjectsPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ProjectsFileName), nil
}

// LoadProjects reads a projects YAML file. A missing file yields an empty set.
func LoadProjects(path string) (*ProjectSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ProjectSet{}, nil
		}
		return nil, fmt.Errorf("failed to read projects file: %w", err)
	}

	var set ProjectSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse projects file: %w", err)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	sort.SliceStable(set.Projects, func(i, j int) bool {
		return set.Projects[i].Name < set.Projects[j].Name
	})
	return &set, nil
}

// Validate checks that names are unique and every project has a location
func (s *ProjectSet) Validate() error {
	seen := make(map[string]bool, len(s.Projects))
	for i, p := range s.Projects {
		if p.Name == "" {
			return fmt.Errorf("project %d: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("project %q defined more than once", p.Name)
		}
		seen[p.Name] = true
		if p.SharedLink == "" && p.DriveID == "" {
			return fmt.Errorf("project %q: sharedLink or driveId is required", p.Name)
		}
	}
	return nil
}
