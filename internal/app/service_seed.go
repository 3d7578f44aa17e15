package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"cryptorafts/api/internal/authpw"
	"cryptorafts/api/internal/rbac"
	"cryptorafts/api/internal/store"
)

const demoFounderEmail = "demo-founder@cryptorafts.local"

type SeedDemoResult struct {
	FounderID      string   `json:"founderId"`
	FounderCreated bool     `json:"founderCreated"`
	Projects       []string `json:"projects"`
	Skipped        []string `json:"skipped"`
}

// demoProjects span the rating bands so dealflow ordering is visible.
var demoProjects = []ProjectInput{
	{
		Name:     "BasicSwap DEX",
		Sector:   "DeFi",
		Stage:    "Pre-Seed",
		Chain:    "Ethereum",
		Summary:  "A simple decentralized exchange for token swaps with a basic contract and limited liquidity.",
		TeamSize: 1,
		Traction: store.Traction{Users: 120},
		Docs:     store.ProjectDocs{Website: "https://basicswap.example.com"},
	},
	{
		Name:       "ChainBridge Relay",
		Sector:     "Infrastructure",
		Stage:      "Seed",
		Chain:      "Polygon",
		Summary:    "Cross-chain message relay with audited contracts and a growing validator set.",
		TeamSize:   6,
		Traction:   store.Traction{Users: 8000, MonthlyRevenue: 12000},
		Tokenomics: &store.Tokenomics{TotalSupply: 500_000_000, TGEPercent: 12},
		Docs:       store.ProjectDocs{Website: "https://chainbridge.example.com"},
	},
	{
		Name:       "Aurora Lending",
		Sector:     "DeFi",
		Stage:      "Series A",
		Chain:      "Arbitrum",
		Summary:    "Over-collateralised lending market with institutional liquidity partners and two completed audits.",
		TeamSize:   14,
		Traction:   store.Traction{Users: 65000, MonthlyRevenue: 180000},
		Tokenomics: &store.Tokenomics{TotalSupply: 1_000_000_000, TGEPercent: 8},
		Docs:       store.ProjectDocs{Website: "https://aurora.example.com"},
	},
}

// SeedDemo creates a verified demo founder and submits and analyses the demo
// projects it does not already own. Running it twice is a no-op.
func (s *Service) SeedDemo(ctx context.Context, password string) (SeedDemoResult, error) {
	founder, created, err := s.ensureDemoFounder(ctx, password)
	if err != nil {
		return SeedDemoResult{}, err
	}
	result := SeedDemoResult{FounderID: founder.ID, FounderCreated: created, Projects: []string{}, Skipped: []string{}}

	existing, err := s.store.ListProjectsByFounder(ctx, founder.ID)
	if err != nil {
		return result, err
	}
	owned := map[string]bool{}
	for _, p := range existing {
		owned[p.Name] = true
	}

	session := Session{UserID: founder.ID, UserName: founder.DisplayName, Role: string(rbac.RoleFounder)}
	for _, input := range demoProjects {
		if owned[input.Name] {
			result.Skipped = append(result.Skipped, input.Name)
			continue
		}
		payload, err := s.CreateProject(ctx, session, input)
		if err != nil {
			return result, fmt.Errorf("create %s: %w", input.Name, err)
		}
		projectID, _ := payload["id"].(string)
		if _, err := s.SubmitProject(ctx, session, projectID); err != nil {
			return result, fmt.Errorf("submit %s: %w", input.Name, err)
		}
		if _, err := s.AnalyzeProject(ctx, session, projectID); err != nil {
			return result, fmt.Errorf("analyse %s: %w", input.Name, err)
		}
		result.Projects = append(result.Projects, projectID)
	}
	s.log.Info("demo data seeded", "founder", founder.ID, "projects", len(result.Projects), "skipped", len(result.Skipped))
	return result, nil
}

func (s *Service) ensureDemoFounder(ctx context.Context, password string) (store.User, bool, error) {
	user, err := s.store.GetUserByEmail(ctx, demoFounderEmail)
	if err == nil {
		if rbac.Normalize(user.Role) != rbac.RoleFounder {
			return user, false, domainError(http.StatusConflict, "DEMO_USER_CONFLICT", "demo account exists with another role", nil)
		}
		return user, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return store.User{}, false, err
	}
	signup, err := s.authpw.SignUp(ctx, authpw.SignUpRequest{
		Email:       demoFounderEmail,
		Password:    password,
		DisplayName: "Demo Founder",
		Role:        string(rbac.RoleFounder),
	})
	if err != nil {
		return store.User{}, false, fmt.Errorf("create demo founder: %w", err)
	}
	if err := s.authpw.VerifyEmail(ctx, signup.VerificationToken); err != nil {
		return store.User{}, false, fmt.Errorf("verify demo founder: %w", err)
	}
	user, err = s.store.GetUserByID(ctx, signup.UserID)
	if err != nil {
		return store.User{}, false, err
	}
	return user, true, nil
}
