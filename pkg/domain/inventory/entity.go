// Package inventory defines file inventories collected from a drive and the
// source-vs-destination reconciliation over them.
package inventory

import "time"

// FileRecord describes one file in an inventory. Identity within an
// inventory is the file name alone, case-sensitive.
type FileRecord struct {
	Name         string    `json:"name"`
	SizeBytes    uint64    `json:"size_bytes"`
	ModifiedAt   time.Time `json:"modified_at"`
	RelativePath string    `json:"relative_path"`
}

// FileInventory summarizes the files under a drive root. Built once from a
// raw file listing; immutable afterwards.
type FileInventory struct {
	TotalFiles     int                   `json:"total_files"`
	TotalSizeBytes uint64                `json:"total_size_bytes"`
	LastModified   *time.Time            `json:"last_modified,omitempty"`
	Files          map[string]FileRecord `json:"files"`
}

// Build creates an inventory from a raw file listing. Files are keyed by
// name only: two files with the same name in different subfolders collapse
// to a single entry, the later one in the listing winning. This matches the
// name-only reconciliation semantics downstream.
func Build(files []FileRecord) *FileInventory {
	inv := &FileInventory{
		Files: make(map[string]FileRecord, len(files)),
	}

	for _, f := range files {
		inv.Files[f.Name] = f
		inv.TotalSizeBytes += f.SizeBytes
		if inv.LastModified == nil || f.ModifiedAt.After(*inv.LastModified) {
			t := f.ModifiedAt
			inv.LastModified = &t
		}
	}
	inv.TotalFiles = len(inv.Files)

	return inv
}

// Empty returns an inventory with no files, used when the remote folder does
// not exist.
func Empty() *FileInventory {
	return &FileInventory{Files: make(map[string]FileRecord)}
}

// IsEmpty reports whether the inventory holds no files.
func (inv *FileInventory) IsEmpty() bool {
	return len(inv.Files) == 0
}

// SizeMB returns the total size in megabytes.
func (inv *FileInventory) SizeMB() float64 {
	return float64(inv.TotalSizeBytes) / (1024 * 1024)
}
