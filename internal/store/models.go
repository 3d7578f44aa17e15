package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	KYCStatus             string
	KYBStatus             string
	ProfileCompleted      bool
	Profile               map[string]any
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	DeactivatedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Verification is a KYC (individual) or KYB (organisation) submission.
// Documents maps a document name (frontId, selfie, ...) to a blob key.
type Verification struct {
	ID          string
	UserID      string
	Kind        string
	Status      string
	Documents   map[string]string
	Reason      string
	ReviewedBy  string
	SubmittedAt time.Time
	ReviewedAt  *time.Time
	// Joined for admin listings
	UserEmail string
	UserName  string
}

type Attestation struct {
	ID             string
	VerificationID string
	DocumentName   string
	Salt           string
	Hash           string
	CreatedAt      time.Time
}

type Tokenomics struct {
	TotalSupply float64 `json:"totalSupply"`
	TGEPercent  float64 `json:"tgePercent"`
}

type Traction struct {
	Users          int64   `json:"users"`
	MonthlyRevenue float64 `json:"monthlyRevenue"`
}

type ProjectDocs struct {
	WhitepaperKey string `json:"whitepaperKey,omitempty"`
	DeckKey       string `json:"deckKey,omitempty"`
	Website       string `json:"website,omitempty"`
}

type Project struct {
	ID           string
	FounderID    string
	Name         string
	Sector       string
	Stage        string
	Chain        string
	Summary      string
	TeamSize     int
	Traction     Traction
	Tokenomics   *Tokenomics
	Docs         ProjectDocs
	Status       string
	Rating       string
	Score        int
	ListingOrder int
	Badges       []string
	SubmittedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	// Joined
	FounderName string
}

type ProjectAnalysis struct {
	ID              string
	ProjectID       string
	Score           int
	Rating          string
	Confidence      int
	Components      map[string]int
	Summary         string
	Strengths       []string
	Weaknesses      []string
	Risks           []string
	Recommendations []string
	Source          string
	CreatedAt       time.Time
}

type ProjectRelation struct {
	ID              string
	ProjectID       string
	FounderID       string
	CounterpartID   string
	CounterpartRole string
	Status          string
	RoomID          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Room struct {
	ID             string
	Type           string
	Name           string
	ProjectID      string
	CreatedBy      string
	RaftAIMemory   map[string]any
	LastActivityAt time.Time
	MessageCount   int
	CreatedAt      time.Time
}

type RoomMember struct {
	RoomID     string
	UserID     string
	MemberRole string
	JoinedAt   time.Time
	// Joined from users
	DisplayName string
	Email       string
	Role        string
}

type Message struct {
	ID              string
	RoomID          string
	SenderID        string
	SenderName      string
	Type            string
	Content         string
	Mentions        []string
	ClientMessageID string
	CreatedAt       time.Time
}

type ReactionCount struct {
	MessageID string
	Emoji     string
	Count     int
}

type Notification struct {
	ID        string
	UserID    string
	Type      string
	Title     string
	Body      string
	URL       string
	RoomID    string
	MessageID string
	Read      bool
	CreatedAt time.Time
}

type TeamInvitation struct {
	ID         string
	TeamType   string
	OwnerID    string
	Email      string
	MemberRole string
	Token      string
	Status     string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	AcceptedAt *time.Time
}

type TeamMember struct {
	ID           string
	TeamType     string
	OwnerID      string
	UserID       string
	Email        string
	MemberRole   string
	Status       string
	InvitationID string
	CreatedAt    time.Time
}

type PlatformStatus struct {
	Posted   bool       `json:"posted"`
	PostedAt *time.Time `json:"postedAt,omitempty"`
	Error    string     `json:"error,omitempty"`
}

type BlogPost struct {
	ID                string
	Slug              string
	Title             string
	Content           string
	Excerpt           string
	Category          string
	Tags              []string
	Featured          bool
	Status            string
	AuthorID          string
	AuthorName        string
	ScheduledFor      *time.Time
	PublishedAt       *time.Time
	ReadingTime       int
	Views             int
	Likes             int
	Shares            int
	PlatformSelection []string
	PlatformStatus    map[string]PlatformStatus
	RevisionHash      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type BlogFilter struct {
	Status   string
	Category string
	Featured *bool
	Search   string
	Tag      string
	Limit    int
	Offset   int
}

type StoredFile struct {
	Key         string
	OwnerID     string
	FileName    string
	ContentType string
	Size        int64
	Purpose     string
	CreatedAt   time.Time
}

type CommitInfo struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}

type AdminStats struct {
	Users                int
	PendingVerifications int
	Projects             int
	AcceptedProjects     int
	Rooms                int
	Messages             int
	PublishedPosts       int
}
