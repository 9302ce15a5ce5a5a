package types

import (
	"fmt"
	"strings"
)

// FileStatus is the outcome of one file within a load batch
type FileStatus string

const (
	FileStatusLoaded  FileStatus = "loaded"
	FileStatusFailed  FileStatus = "failed"
	FileStatusSkipped FileStatus = "skipped"
)

// FileReport records what happened to one selected file
type FileReport struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Format     string     `json:"format"`
	Status     FileStatus `json:"status"`
	Error      *CLIError  `json:"error,omitempty"`
	Warnings   []string   `json:"warnings,omitempty"`
	Meshes     int        `json:"meshes,omitempty"`
	Vertices   int        `json:"vertices,omitempty"`
	DurationMs int64      `json:"durationMs"`
}

// LoadProgress is the progress of the batch currently in flight
type LoadProgress struct {
	TotalFiles          int     `json:"totalFiles"`
	CompletedFiles      int     `json:"completedFiles"`
	CurrentFileFraction float64 `json:"currentFileFraction"`
}

// Fraction returns (completed + current) / total in [0, 1]
func (p LoadProgress) Fraction() float64 {
	if p.TotalFiles <= 0 {
		return 1
	}
	f := (float64(p.CompletedFiles) + p.CurrentFileFraction) / float64(p.TotalFiles)
	if f > 1 {
		return 1
	}
	if f < 0 {
		return 0
	}
	return f
}

// BoundsSummary is an axis-aligned box in scene coordinates
type BoundsSummary struct {
	Min    [3]float32 `json:"min"`
	Max    [3]float32 `json:"max"`
	Center [3]float32 `json:"center"`
	Size   [3]float32 `json:"size"`
}

// CameraSummary is the framed camera after a batch
type CameraSummary struct {
	Position [3]float32 `json:"position"`
	Target   [3]float32 `json:"target"`
	FOV      float32    `json:"fov"`
	Near     float32    `json:"near"`
	Far      float32    `json:"far"`
}

// BatchReport summarizes one load batch
type BatchReport struct {
	BatchID    string         `json:"batchId"`
	Files      []FileReport   `json:"files"`
	Loaded     int            `json:"loaded"`
	Failed     int            `json:"failed"`
	Skipped    int            `json:"skipped"`
	Progress   float64        `json:"progress"`
	Bounds     *BoundsSummary `json:"bounds,omitempty"`
	Camera     CameraSummary  `json:"camera"`
	DurationMs int64          `json:"durationMs"`
}

func (r *BatchReport) Headers() []string {
	return []string{"Name", "Format", "Status", "Meshes", "Detail"}
}

func (r *BatchReport) Rows() [][]string {
	rows := make([][]string, len(r.Files))
	for i, f := range r.Files {
		detail := strings.Join(f.Warnings, "; ")
		if f.Error != nil {
			detail = f.Error.Message
		}
		rows[i] = []string{f.Name, f.Format, string(f.Status), fmt.Sprintf("%d", f.Meshes), detail}
	}
	return rows
}

func (r *BatchReport) EmptyMessage() string {
	return "No files selected"
}
