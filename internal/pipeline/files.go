package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"dataclean/internal"
	"dataclean/internal/apperr"
	"dataclean/internal/storage"
)

// FileSummary is the listing view of a file, without samples or grids.
type FileSummary struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Type     internal.FileType `json:"type"`
	Path     string            `json:"path,omitempty"`
	Sheets   []string          `json:"sheets"`
	RowCount int               `json:"rowCount"`
	Quality  int               `json:"quality"`
}

func (s *Service) ListFiles() ([]FileSummary, error) {
	files, err := s.db.ListFiles()
	if err != nil {
		return nil, err
	}
	out := make([]FileSummary, 0, len(files))
	for _, f := range files {
		names := make([]string, 0, len(f.Sheets))
		for _, sh := range f.Sheets {
			names = append(names, sh.Name)
		}
		out = append(out, FileSummary{
			ID:       f.ID,
			Name:     f.Name,
			Type:     f.Type,
			Path:     f.Path,
			Sheets:   names,
			RowCount: f.RowCount,
			Quality:  f.Quality,
		})
	}
	return out, nil
}

// Files returns the stored files whose name contains filter, all of them
// when filter is empty.
func (s *Service) Files(filter string) ([]internal.File, error) {
	files, err := s.db.ListFiles()
	if err != nil || filter == "" {
		return files, err
	}
	out := []internal.File{}
	for _, f := range files {
		if strings.Contains(strings.ToLower(f.Name), strings.ToLower(filter)) {
			out = append(out, f)
		}
	}
	return out, nil
}

// File returns one stored file or a FILE_001 error.
func (s *Service) File(id string) (internal.File, error) {
	f, err := s.db.GetFile(id)
	if err != nil {
		return internal.File{}, err
	}
	if f == nil {
		return internal.File{}, apperr.New(apperr.FileNotFound, apperr.Details{FileName: id}, storage.ErrNotFound)
	}
	return *f, nil
}

// RemoveFile deletes a file card and every flow touching it.
func (s *Service) RemoveFile(id string) apperr.Result {
	removed, err := s.db.RemoveFile(id)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.Fail(apperr.FileNotFound, apperr.Details{FileName: id})
	}
	if err != nil {
		return apperr.FromError(err, apperr.SystemUnknown)
	}
	s.logger.Info("file removed", "id", id, "flows", removed)
	return apperr.OK(fmt.Sprintf("已删除文件及 %d 条关联连线", removed), map[string]any{"id": id, "removedFlows": removed})
}
