package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cryptorafts/api/internal/email"
	"cryptorafts/api/internal/notify"
	"cryptorafts/api/internal/pitch"
	"cryptorafts/api/internal/rbac"
	"cryptorafts/api/internal/search"
	"cryptorafts/api/internal/store"
	"cryptorafts/api/internal/util"
)

const (
	projectDraft     = "draft"
	projectSubmitted = "submitted"
	projectAccepted  = "accepted"

	maxProjectName    = 120
	maxProjectSummary = 5000
	maxDealflowPage   = 100
)

// roomTypeByRole picks the room flavour a counterpart opens on acceptance.
var roomTypeByRole = map[rbac.Role]string{
	rbac.RoleVC:         "deal",
	rbac.RoleExchange:   "listing",
	rbac.RoleIDO:        "ido",
	rbac.RoleInfluencer: "campaign",
	rbac.RoleAgency:     "proposal",
}

// DealRoomID is deterministic so repeated accepts land in the same room.
func DealRoomID(founderID, counterpartID, projectID string) string {
	return "deal_" + founderID + "_" + counterpartID + "_" + projectID
}

func RelationID(counterpartID, projectID string) string {
	return counterpartID + "_" + projectID
}

type ProjectInput struct {
	Name       string            `json:"name"`
	Sector     string            `json:"sector"`
	Stage      string            `json:"stage"`
	Chain      string            `json:"chain"`
	Summary    string            `json:"summary"`
	TeamSize   int               `json:"teamSize"`
	Traction   store.Traction    `json:"traction"`
	Tokenomics *store.Tokenomics `json:"tokenomics"`
	Docs       store.ProjectDocs `json:"docs"`
}

func projectPayload(p store.Project) map[string]any {
	badges := p.Badges
	if badges == nil {
		badges = []string{}
	}
	var tokenomics any
	if p.Tokenomics != nil {
		tokenomics = p.Tokenomics
	}
	return map[string]any{
		"id":           p.ID,
		"founderId":    p.FounderID,
		"founderName":  p.FounderName,
		"name":         p.Name,
		"sector":       p.Sector,
		"stage":        p.Stage,
		"chain":        p.Chain,
		"summary":      p.Summary,
		"teamSize":     p.TeamSize,
		"traction":     p.Traction,
		"tokenomics":   tokenomics,
		"docs":         p.Docs,
		"status":       p.Status,
		"rating":       p.Rating,
		"score":        p.Score,
		"listingOrder": p.ListingOrder,
		"badges":       badges,
		"submittedAt":  timeString(p.SubmittedAt),
		"createdAt":    p.CreatedAt.UTC().Format(time.RFC3339),
		"updatedAt":    p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func analysisPayload(a store.ProjectAnalysis) map[string]any {
	return map[string]any{
		"id":              a.ID,
		"projectId":       a.ProjectID,
		"score":           a.Score,
		"rating":          a.Rating,
		"confidence":      a.Confidence,
		"components":      a.Components,
		"summary":         a.Summary,
		"strengths":       nonNilStrings(a.Strengths),
		"weaknesses":      nonNilStrings(a.Weaknesses),
		"risks":           nonNilStrings(a.Risks),
		"recommendations": nonNilStrings(a.Recommendations),
		"source":          a.Source,
		"createdAt":       a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func projectRecord(p store.Project) search.ProjectRecord {
	return search.ProjectRecord{
		ID:      p.ID,
		Name:    p.Name,
		Summary: p.Summary,
		Sector:  p.Sector,
		Stage:   p.Stage,
		Chain:   p.Chain,
		Rating:  p.Rating,
		Score:   p.Score,
		Status:  p.Status,
	}
}

func (s *Service) indexProject(p store.Project) {
	if s.search != nil {
		s.search.IndexProject(projectRecord(p))
	}
}

func pitchInput(p store.Project) pitch.Input {
	in := pitch.Input{
		Name:           p.Name,
		Sector:         p.Sector,
		Stage:          p.Stage,
		Chain:          p.Chain,
		Summary:        p.Summary,
		TeamSize:       p.TeamSize,
		Users:          p.Traction.Users,
		MonthlyRevenue: p.Traction.MonthlyRevenue,
		HasWhitepaper:  p.Docs.WhitepaperKey != "",
		HasDeck:        p.Docs.DeckKey != "",
	}
	if p.Tokenomics != nil {
		in.Tokenomics = &pitch.Tokenomics{TotalSupply: p.Tokenomics.TotalSupply, TGEPercent: p.Tokenomics.TGEPercent}
	}
	return in
}

func (s *Service) validateProject(ctx context.Context, session Session, input ProjectInput) (ProjectInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Sector = strings.TrimSpace(input.Sector)
	input.Stage = strings.TrimSpace(input.Stage)
	input.Chain = strings.TrimSpace(input.Chain)
	input.Summary = strings.TrimSpace(input.Summary)
	input.Docs.Website = strings.TrimSpace(input.Docs.Website)
	switch {
	case input.Name == "":
		return input, validationError("name is required", nil)
	case len(input.Name) > maxProjectName:
		return input, validationError("name is too long", nil)
	case len(input.Summary) > maxProjectSummary:
		return input, validationError("summary is too long", nil)
	case input.TeamSize < 0 || input.Traction.Users < 0 || input.Traction.MonthlyRevenue < 0:
		return input, validationError("team size and traction must not be negative", nil)
	}
	if t := input.Tokenomics; t != nil && (t.TotalSupply < 0 || t.TGEPercent < 0 || t.TGEPercent > 100) {
		return input, validationError("tgePercent must be between 0 and 100", nil)
	}
	for name, key := range map[string]string{"whitepaperKey": input.Docs.WhitepaperKey, "deckKey": input.Docs.DeckKey} {
		if key == "" {
			continue
		}
		file, err := s.store.GetStoredFile(ctx, key)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && file.OwnerID != session.UserID) {
			return input, validationError("unknown document", map[string]any{"field": name})
		}
		if err != nil {
			return input, err
		}
	}
	return input, nil
}

func (s *Service) CreateProject(ctx context.Context, session Session, input ProjectInput) (map[string]any, error) {
	if err := s.require(session, rbac.ActionManageProject); err != nil {
		return nil, err
	}
	input, err := s.validateProject(ctx, session, input)
	if err != nil {
		return nil, err
	}
	item := store.Project{
		ID:         util.NewID("prj"),
		FounderID:  session.UserID,
		Name:       input.Name,
		Sector:     input.Sector,
		Stage:      input.Stage,
		Chain:      input.Chain,
		Summary:    input.Summary,
		TeamSize:   input.TeamSize,
		Traction:   input.Traction,
		Tokenomics: input.Tokenomics,
		Docs:       input.Docs,
		Status:     projectDraft,
		Badges:     []string{},
	}
	if err := s.store.InsertProject(ctx, item); err != nil {
		return nil, err
	}
	created, err := s.store.GetProject(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	return projectPayload(created), nil
}

// ownedProject loads a project the session may edit.
func (s *Service) ownedProject(ctx context.Context, session Session, projectID string) (store.Project, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return store.Project{}, err
	}
	if project.FounderID != session.UserID && rbac.Normalize(session.Role) != rbac.RoleAdmin {
		return store.Project{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return project, nil
}

func (s *Service) UpdateProject(ctx context.Context, session Session, projectID string, input ProjectInput) (map[string]any, error) {
	if err := s.require(session, rbac.ActionManageProject); err != nil {
		return nil, err
	}
	project, err := s.ownedProject(ctx, session, projectID)
	if err != nil {
		return nil, err
	}
	if project.Status == projectAccepted {
		return nil, domainError(http.StatusConflict, "PROJECT_LOCKED", "Accepted projects cannot be edited", nil)
	}
	input, err = s.validateProject(ctx, session, input)
	if err != nil {
		return nil, err
	}
	project.Name = input.Name
	project.Sector = input.Sector
	project.Stage = input.Stage
	project.Chain = input.Chain
	project.Summary = input.Summary
	project.TeamSize = input.TeamSize
	project.Traction = input.Traction
	project.Tokenomics = input.Tokenomics
	project.Docs = input.Docs
	if err := s.store.UpdateProject(ctx, project); err != nil {
		return nil, err
	}
	updated, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	s.indexProject(updated)
	return projectPayload(updated), nil
}

func (s *Service) SubmitProject(ctx context.Context, session Session, projectID string) (map[string]any, error) {
	if err := s.require(session, rbac.ActionManageProject); err != nil {
		return nil, err
	}
	if _, err := s.ownedProject(ctx, session, projectID); err != nil {
		return nil, err
	}
	err := s.store.SubmitProject(ctx, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainError(http.StatusConflict, "NOT_DRAFT", "Only draft projects can be submitted", nil)
	}
	if err != nil {
		return nil, err
	}
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	s.log.Info("project submitted", "project", projectID, "founder", project.FounderID)
	s.indexProject(project)
	return projectPayload(project), nil
}

func (s *Service) ListMyProjects(ctx context.Context, session Session) ([]map[string]any, error) {
	if err := s.require(session, rbac.ActionManageProject); err != nil {
		return nil, err
	}
	items, err := s.store.ListProjectsByFounder(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, projectPayload(item))
	}
	return out, nil
}

// Dealflow lists submitted projects for counterparts, strongest first.
func (s *Service) Dealflow(ctx context.Context, session Session, limit, offset int) ([]map[string]any, error) {
	if err := s.require(session, rbac.ActionBrowseProjects); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxDealflowPage {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	items, err := s.store.ListDealflow(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, projectPayload(item))
	}
	return out, nil
}

// visibleProject loads a project the session may read: its founder, admins,
// and counterparts once it has been submitted.
func (s *Service) visibleProject(ctx context.Context, session Session, projectID string) (store.Project, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return store.Project{}, err
	}
	role := rbac.Normalize(session.Role)
	switch {
	case project.FounderID == session.UserID, role == rbac.RoleAdmin:
		return project, nil
	case rbac.IsCounterpart(role) && project.Status != projectDraft:
		return project, nil
	}
	return store.Project{}, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *Service) GetProject(ctx context.Context, session Session, projectID string) (map[string]any, error) {
	project, err := s.visibleProject(ctx, session, projectID)
	if err != nil {
		return nil, err
	}
	payload := projectPayload(project)
	latest, err := s.store.LatestAnalysis(ctx, projectID)
	switch {
	case err == nil:
		payload["analysis"] = analysisPayload(latest)
	case errors.Is(err, sql.ErrNoRows):
		payload["analysis"] = nil
	default:
		return nil, err
	}
	return payload, nil
}

// AnalyzeProject runs RaftAI over the pitch. A project can be re-analysed
// once per cooldown window; earlier analyses are kept.
func (s *Service) AnalyzeProject(ctx context.Context, session Session, projectID string) (map[string]any, error) {
	if err := s.require(session, rbac.ActionAnalyzeProject); err != nil {
		return nil, err
	}
	project, err := s.ownedProject(ctx, session, projectID)
	if err != nil {
		return nil, err
	}
	latest, err := s.store.LatestAnalysis(ctx, projectID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err == nil {
		if wait := latest.CreatedAt.Add(s.cfg.AnalysisCooldown).Sub(s.now()); wait > 0 {
			return nil, domainError(http.StatusTooManyRequests, "ANALYSIS_COOLDOWN", "Project was analysed recently", map[string]any{
				"retryAfter": int(wait.Seconds()) + 1,
				"analysis":   analysisPayload(latest),
			})
		}
	}
	if err := allow(s.aiLimiter, session.UserID); err != nil {
		return nil, err
	}

	result := s.analyzer.Analyze(ctx, pitchInput(project))
	analysis := store.ProjectAnalysis{
		ID:              util.NewID("anl"),
		ProjectID:       projectID,
		Score:           result.Score,
		Rating:          string(result.Rating),
		Confidence:      result.Confidence,
		Components:      result.Components.Map(),
		Summary:         result.Summary,
		Strengths:       nonNilStrings(result.Strengths),
		Weaknesses:      nonNilStrings(result.Weaknesses),
		Risks:           result.RiskDescriptions(),
		Recommendations: nonNilStrings(result.Recommendations),
		Source:          result.Source,
		CreatedAt:       s.now(),
	}
	visibility := pitch.VisibilityFor(result)
	if err := s.store.SaveAnalysis(ctx, analysis, visibility.ListingOrder, visibility.Badges); err != nil {
		return nil, err
	}
	s.log.Info("project analysed", "project", projectID, "score", analysis.Score, "rating", analysis.Rating, "source", analysis.Source)

	project.Score = analysis.Score
	project.Rating = analysis.Rating
	project.ListingOrder = visibility.ListingOrder
	project.Badges = visibility.Badges
	s.indexProject(project)

	payload := analysisPayload(analysis)
	payload["listingOrder"] = visibility.ListingOrder
	payload["badges"] = visibility.Badges
	return payload, nil
}

func (s *Service) ListAnalyses(ctx context.Context, session Session, projectID string) ([]map[string]any, error) {
	if _, err := s.visibleProject(ctx, session, projectID); err != nil {
		return nil, err
	}
	items, err := s.store.ListAnalyses(ctx, projectID, 20)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, analysisPayload(item))
	}
	return out, nil
}

// AcceptProject lets a counterpart take a submitted pitch. It opens (or
// reuses) the deal room with the founder and RaftAI.
func (s *Service) AcceptProject(ctx context.Context, session Session, projectID string) (map[string]any, error) {
	if err := s.require(session, rbac.ActionAcceptPitch); err != nil {
		return nil, err
	}
	role := rbac.Normalize(session.Role)
	roomType, ok := roomTypeByRole[role]
	if !ok {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only counterparts can accept pitches", nil)
	}
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.Status == projectDraft {
		return nil, domainError(http.StatusConflict, "NOT_SUBMITTED", "Project has not been submitted", nil)
	}
	if project.FounderID == session.UserID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Founders cannot accept their own project", nil)
	}

	now := s.now()
	roomID := DealRoomID(project.FounderID, session.UserID, projectID)
	room, created, err := s.store.AcceptProject(ctx, store.AcceptProjectParams{
		ProjectID:       projectID,
		FounderID:       project.FounderID,
		CounterpartID:   session.UserID,
		CounterpartRole: string(role),
		RelationID:      RelationID(session.UserID, projectID),
		Room: store.Room{
			ID:        roomID,
			Type:      roomType,
			Name:      fmt.Sprintf("%s / %s", project.Name, session.UserName),
			ProjectID: projectID,
			CreatedBy: session.UserID,
			RaftAIMemory: map[string]any{
				"projectId":       project.ID,
				"projectName":     project.Name,
				"sector":          project.Sector,
				"stage":           project.Stage,
				"chain":           project.Chain,
				"rating":          project.Rating,
				"score":           project.Score,
				"founderId":       project.FounderID,
				"counterpartId":   session.UserID,
				"counterpartRole": string(role),
				"acceptedAt":      now.Format(time.RFC3339),
			},
		},
		Members: []store.RoomMember{
			{UserID: project.FounderID, MemberRole: "owner"},
			{UserID: session.UserID, MemberRole: "member"},
			{UserID: RaftAIUserID, MemberRole: "admin"},
		},
		SystemMessage: store.Message{
			ID:         util.NewID("msg"),
			SenderID:   RaftAIUserID,
			SenderName: "RaftAI",
			Type:       "system",
			Content: fmt.Sprintf("%s (%s) accepted %s. Type /raftai help to see what RaftAI can do in this room.",
				session.UserName, strings.ToUpper(string(role)), project.Name),
		},
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.log.Info("project accepted", "project", projectID, "counterpart", session.UserID, "role", string(role), "room", room.ID)
		s.announceAcceptance(ctx, project, session, room)
	}
	project.Status = projectAccepted
	s.indexProject(project)

	return map[string]any{
		"created":    created,
		"relationId": RelationID(session.UserID, projectID),
		"room":       roomPayload(room),
	}, nil
}

func (s *Service) announceAcceptance(ctx context.Context, project store.Project, session Session, room store.Room) {
	roomURL := notify.RoleMessagesURL(string(rbac.RoleFounder), room.ID)
	if err := s.notifier.Notify(ctx, store.Notification{
		UserID: project.FounderID,
		Type:   notify.TypeProjectAccepted,
		Title:  "Your project was accepted",
		Body:   fmt.Sprintf("%s accepted %s.", session.UserName, project.Name),
		URL:    roomURL,
		RoomID: room.ID,
	}); err != nil {
		s.log.Warn("acceptance notification failed", "project", project.ID, "error", err.Error())
	}
	founder, err := s.store.GetUserByID(ctx, project.FounderID)
	if err != nil {
		s.log.Warn("acceptance email skipped", "project", project.ID, "error", err.Error())
		return
	}
	s.sendEmail("acceptance email", func(ctx context.Context, mail *email.Service) error {
		return mail.SendProjectAcceptedEmail(ctx, founder.Email, email.ProjectAcceptedData{
			AppName:         "CryptoRafts",
			FounderName:     founder.DisplayName,
			ProjectName:     project.Name,
			CounterpartName: session.UserName,
			RoomURL:         s.cfg.BaseURL + roomURL,
		})
	})
}
