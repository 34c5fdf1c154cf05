package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileRecord is one file-base entry: metadata only, payload bytes live in
// the area's grouped payload directory under a name derived from the id,
// matching the teacher's internal/file area-per-directory convention.
type FileRecord struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	SizeBytes   int64     `json:"sizeBytes"`
	UploadedBy  int       `json:"uploadedBy"`
	UploadedAt  time.Time `json:"uploadedAt"`
	Exported    bool      `json:"exported"`
	PayloadFile string    `json:"payloadFile"`
}

type FileArea struct {
	dir string
	reg *Registry[FileRecord]
}

func OpenFileArea(dir string) (*FileArea, error) {
	reg, err := NewRegistry[FileRecord](dir)
	if err != nil {
		return nil, err
	}
	return &FileArea{dir: dir, reg: reg}, nil
}

// upload is the incremental write handle returned by UploadBegin.
type upload struct {
	f    *os.File
	id   int
	name string
	size int64
}

// UploadBegin allocates an id and opens its payload file for writing,
// ahead of a sequence of UploadBlock calls (spec §4.6's "upload-begin /
// upload-block / upload-end for incremental file or message body
// writes" — this is what lets C5's transfer engine stream a file straight
// to disk as blocks arrive instead of buffering the whole thing).
func (a *FileArea) UploadBegin(name string) (*upload, error) {
	id, err := a.reg.NextID()
	if err != nil {
		return nil, err
	}
	dir, err := a.reg.PayloadDir(id)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, fmt.Sprintf("%d.bin", id))
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &upload{f: f, id: id, name: name}, nil
}

func (u *upload) UploadBlock(data []byte) error {
	n, err := u.f.Write(data)
	u.size += int64(n)
	return err
}

// UploadEnd closes the payload file and commits the record.
func (a *FileArea) UploadEnd(u *upload, uploadedBy int, description string) (FileRecord, error) {
	if err := u.f.Close(); err != nil {
		return FileRecord{}, err
	}
	group := u.id / PayloadGroupSize
	rec := FileRecord{
		ID:          u.id,
		Name:        u.name,
		Description: description,
		SizeBytes:   u.size,
		UploadedBy:  uploadedBy,
		UploadedAt:  time.Now(),
		PayloadFile: fmt.Sprintf("%d/%d.bin", group, u.id),
	}
	if err := a.reg.Update(u.id, rec); err != nil {
		return FileRecord{}, err
	}
	return rec, nil
}

// DownloadBlock reads length bytes at offset from the record's payload —
// the random-access read side of C5's XMODEM/YMODEM/ZMODEM block loop.
func (a *FileArea) DownloadBlock(rec FileRecord, offset int64, length int) ([]byte, error) {
	f, err := os.Open(filepath.Join(a.dir, "payload", rec.PayloadFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, offset)
	if n > 0 {
		return buf[:n], nil
	}
	return nil, err
}

func (a *FileArea) SearchByID(id int) (FileRecord, bool, error) {
	return a.reg.SearchByID(id)
}

func (a *FileArea) MarkExported(id int) error {
	rec, ok, err := a.reg.SearchByID(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("store: file %d not found", id)
	}
	rec.Exported = true
	return a.reg.Update(id, rec)
}

func (a *FileArea) FindUnexported() ([]FileRecord, error) {
	var out []FileRecord
	err := a.reg.Iterate(func(_ int, r FileRecord) bool {
		if !r.Exported {
			out = append(out, r)
		}
		return true
	})
	return out, err
}

func (a *FileArea) Iterate(fn func(id int, r FileRecord) bool) error {
	return a.reg.Iterate(fn)
}
