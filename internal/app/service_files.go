package app

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"cryptorafts/api/internal/blob"
	"cryptorafts/api/internal/export"
	"cryptorafts/api/internal/rbac"
	"cryptorafts/api/internal/search"
	"cryptorafts/api/internal/store"
	"cryptorafts/api/internal/util"
)

const sniffBytes = 512

func storedFilePayload(f store.StoredFile) map[string]any {
	return map[string]any{
		"key":         f.Key,
		"fileName":    f.FileName,
		"contentType": f.ContentType,
		"size":        f.Size,
		"purpose":     f.Purpose,
		"createdAt":   f.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type UploadInput struct {
	Purpose  string
	FileName string
	Size     int64
	Body     io.Reader
}

// Upload stores a document in object storage. The content type is sniffed
// from the bytes, never taken from the client.
func (s *Service) Upload(ctx context.Context, session Session, input UploadInput) (map[string]any, error) {
	if err := s.require(session, rbac.ActionUpload); err != nil {
		return nil, err
	}
	purpose := strings.ToLower(strings.TrimSpace(input.Purpose))
	if purpose == "" {
		purpose = "other"
	}
	if !blob.Purposes[purpose] {
		return nil, validationError("unknown purpose", map[string]any{"purpose": purpose})
	}
	if input.Size <= 0 {
		return nil, validationError("file is empty", nil)
	}
	if input.Size > s.cfg.MaxUploadBytes {
		return nil, domainError(http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds the upload limit", map[string]any{"maxBytes": s.cfg.MaxUploadBytes})
	}

	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(input.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	contentType, ok := blob.SniffContentType(head)
	if !ok {
		return nil, domainError(http.StatusUnsupportedMediaType, "UNSUPPORTED_TYPE", "Only PDF, PNG and JPEG files are accepted", map[string]any{"detected": contentType})
	}

	file := store.StoredFile{
		Key:         blob.Key(purpose, session.UserID, util.NewID("file")),
		OwnerID:     session.UserID,
		FileName:    cleanFileName(input.FileName),
		ContentType: contentType,
		Size:        input.Size,
		Purpose:     purpose,
		CreatedAt:   s.now(),
	}
	body := io.MultiReader(bytes.NewReader(head), input.Body)
	if err := s.blob.Put(ctx, file.Key, body, input.Size, contentType); err != nil {
		return nil, err
	}
	if err := s.store.InsertStoredFile(ctx, file); err != nil {
		if delErr := s.blob.Delete(ctx, file.Key); delErr != nil {
			s.log.Warn("orphaned upload", "key", file.Key, "error", delErr.Error())
		}
		return nil, err
	}
	s.log.Info("file uploaded", "key", file.Key, "user", session.UserID, "size", file.Size, "type", contentType)
	return storedFilePayload(file), nil
}

func cleanFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	if len(name) > 200 {
		name = name[:200]
	}
	return name
}

// Download opens a stored document for its owner or an admin.
func (s *Service) Download(ctx context.Context, session Session, key string) (io.ReadCloser, store.StoredFile, error) {
	file, err := s.store.GetStoredFile(ctx, key)
	if err != nil {
		return nil, store.StoredFile{}, err
	}
	if file.OwnerID != session.UserID && rbac.Normalize(session.Role) != rbac.RoleAdmin {
		return nil, store.StoredFile{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	body, _, err := s.blob.Get(ctx, key)
	if err != nil {
		return nil, store.StoredFile{}, err
	}
	return body, file, nil
}

// ExportReport renders the latest analysis of a project.
func (s *Service) ExportReport(ctx context.Context, session Session, projectID string, format export.Format) (*export.Result, error) {
	project, err := s.visibleProject(ctx, session, projectID)
	if err != nil {
		return nil, err
	}
	analysis, err := s.store.LatestAnalysis(ctx, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, export.ErrNoAnalysis
	}
	if err != nil {
		return nil, err
	}
	return s.export.PitchReport(ctx, export.ReportData{
		ProjectName:     project.Name,
		FounderName:     project.FounderName,
		Sector:          project.Sector,
		Stage:           project.Stage,
		Chain:           project.Chain,
		Score:           analysis.Score,
		Rating:          analysis.Rating,
		Confidence:      analysis.Confidence,
		Source:          analysis.Source,
		Components:      analysis.Components,
		Summary:         analysis.Summary,
		Strengths:       analysis.Strengths,
		Weaknesses:      analysis.Weaknesses,
		Risks:           analysis.Risks,
		Recommendations: analysis.Recommendations,
		Badges:          project.Badges,
		AnalysedAt:      analysis.CreatedAt,
	}, format)
}

// ExportWhitepaper generates a whitepaper from the project's pitch data.
func (s *Service) ExportWhitepaper(ctx context.Context, session Session, projectID string, format export.Format) (*export.Result, error) {
	project, err := s.visibleProject(ctx, session, projectID)
	if err != nil {
		return nil, err
	}
	data := export.WhitepaperData{
		ProjectName: project.Name,
		FounderName: project.FounderName,
		Sector:      project.Sector,
		Stage:       project.Stage,
		Chain:       project.Chain,
		Summary:     project.Summary,
		TeamSize:    project.TeamSize,
		Users:       project.Traction.Users,
		Revenue:     project.Traction.MonthlyRevenue,
		Website:     project.Docs.Website,
		GeneratedAt: s.now(),
	}
	if project.Tokenomics != nil && project.Tokenomics.TotalSupply > 0 {
		data.HasTokens = true
		data.TotalSupply = project.Tokenomics.TotalSupply
		data.TGEPercent = project.Tokenomics.TGEPercent
	}
	return s.export.Whitepaper(ctx, data, format)
}

// Search spans projects and published posts.
func (s *Service) Search(ctx context.Context, session Session, text, filterType string, limit, offset int) (map[string]any, error) {
	if err := s.require(session, rbac.ActionRead); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return map[string]any{"results": []any{}, "total": 0, "query": ""}, nil
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if s.search == nil {
		return map[string]any{"results": []any{}, "total": 0, "query": text}, nil
	}
	resp := s.search.Search(ctx, search.Query{
		Text:       text,
		FilterType: search.ResultType(strings.ToLower(strings.TrimSpace(filterType))),
		Limit:      limit,
		Offset:     offset,
	})
	// Projects are dealflow; only counterparts and admins may see them.
	role := rbac.Normalize(session.Role)
	browse := s.Can(session.Role, rbac.ActionBrowseProjects)
	results := make([]search.Result, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Type == search.ResultProject && !browse && role != rbac.RoleAdmin {
			continue
		}
		results = append(results, r)
	}
	return map[string]any{"results": results, "total": resp.Total, "query": resp.Query}, nil
}
