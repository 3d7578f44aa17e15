package app

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"cryptorafts/api/internal/store"
)

// fakeStore is an in-memory dataStore. The fn fields override single
// methods for failure cases.
type fakeStore struct {
	mu sync.Mutex

	users         map[string]store.User
	refresh       map[string]string
	revoked       map[string]bool
	resets        map[string]string
	verifications map[string]store.Verification
	attestations  map[string][]store.Attestation
	files         map[string]store.StoredFile
	projects      map[string]store.Project
	analyses      map[string][]store.ProjectAnalysis
	relations     map[string]store.ProjectRelation
	rooms         map[string]store.Room
	members       map[string][]store.RoomMember
	messages      map[string][]store.Message
	reactions     map[string]map[string]bool // messageID -> userID|emoji
	notifications []store.Notification
	invitations   map[string]store.TeamInvitation
	teamMembers   map[string]store.TeamMember
	posts         map[string]store.BlogPost

	insertStoredFileFn func(context.Context, store.StoredFile) error
	pingFn             func(context.Context) error
}

func newFakeStore() *fakeStore {
	f := &fakeStore{
		users:         map[string]store.User{},
		refresh:       map[string]string{},
		revoked:       map[string]bool{},
		resets:        map[string]string{},
		verifications: map[string]store.Verification{},
		attestations:  map[string][]store.Attestation{},
		files:         map[string]store.StoredFile{},
		projects:      map[string]store.Project{},
		analyses:      map[string][]store.ProjectAnalysis{},
		relations:     map[string]store.ProjectRelation{},
		rooms:         map[string]store.Room{},
		members:       map[string][]store.RoomMember{},
		messages:      map[string][]store.Message{},
		reactions:     map[string]map[string]bool{},
		invitations:   map[string]store.TeamInvitation{},
		teamMembers:   map[string]store.TeamMember{},
		posts:         map[string]store.BlogPost{},
	}
	f.users[RaftAIUserID] = store.User{ID: RaftAIUserID, DisplayName: "RaftAI", Email: "raftai@cryptorafts.local", IsEmailVerified: true}
	return f
}

func (f *fakeStore) addUser(u store.User) store.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.Email == "" {
		u.Email = u.ID + "@example.com"
	}
	if u.DisplayName == "" {
		u.DisplayName = u.ID
	}
	u.IsEmailVerified = true
	f.users[u.ID] = u
	return u
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[tokenHash] = userID
	return nil
}

func (f *fakeStore) ConsumeRefreshSession(_ context.Context, tokenHash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.refresh[tokenHash]
	if !ok {
		return "", sql.ErrNoRows
	}
	delete(f.refresh, tokenHash)
	return userID, nil
}

func (f *fakeStore) RevokeUserSessions(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for hash, owner := range f.refresh {
		if owner == userID {
			delete(f.refresh, hash)
		}
	}
	return nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, tokenHash)
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[jti], nil
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == user.Email {
			return store.ErrConflict
		}
	}
	user.CreatedAt = time.Now().UTC()
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) ListUsersByRole(_ context.Context, role string) ([]store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.User
	for _, u := range f.users {
		if role == "" || u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) UpdateUserRole(_ context.Context, userID, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.Role = role
	f.users[userID] = u
	return nil
}

func (f *fakeStore) SetInitialRole(_ context.Context, userID, role string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return false, sql.ErrNoRows
	}
	if u.Role != "" {
		return false, nil
	}
	u.Role = role
	f.users[userID] = u
	return true, nil
}

func (f *fakeStore) UpdateUserProfile(_ context.Context, userID, displayName string, profile map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.DisplayName = displayName
	u.Profile = profile
	u.ProfileCompleted = true
	f.users[userID] = u
	return nil
}

func (f *fakeStore) UpdateUserVerificationToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[userID]
	u.VerificationToken = token
	u.VerificationExpiresAt = &expiresAt
	f.users[userID] = u
	return nil
}

func (f *fakeStore) VerifyUserEmail(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.users {
		if u.VerificationToken != "" && u.VerificationToken == token {
			u.IsEmailVerified = true
			u.VerificationToken = ""
			f.users[id] = u
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeStore) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[userID]
	u.PasswordHash = passwordHash
	f.users[userID] = u
	return nil
}

func (f *fakeStore) CreatePasswordReset(_ context.Context, userID, token string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets[token] = userID
	return nil
}

func (f *fakeStore) GetPasswordReset(_ context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.resets[token]
	if !ok {
		return "", sql.ErrNoRows
	}
	return userID, nil
}

func (f *fakeStore) MarkPasswordResetUsed(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.resets, token)
	return nil
}

func (f *fakeStore) AdminStats(context.Context) (store.AdminStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := store.AdminStats{Users: len(f.users), Projects: len(f.projects), Rooms: len(f.rooms)}
	for _, v := range f.verifications {
		if v.Status == statusPending {
			stats.PendingVerifications++
		}
	}
	for _, p := range f.projects {
		if p.Status == projectAccepted {
			stats.AcceptedProjects++
		}
	}
	for _, msgs := range f.messages {
		stats.Messages += len(msgs)
	}
	for _, p := range f.posts {
		if p.Status == "published" {
			stats.PublishedPosts++
		}
	}
	return stats, nil
}

func (f *fakeStore) InsertVerification(_ context.Context, item store.Verification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifications[item.ID] = item
	return nil
}

func (f *fakeStore) GetVerification(_ context.Context, id string) (store.Verification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.verifications[id]
	if !ok {
		return store.Verification{}, sql.ErrNoRows
	}
	return v, nil
}

func (f *fakeStore) LatestVerification(_ context.Context, userID, kind string) (store.Verification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest store.Verification
	found := false
	for _, v := range f.verifications {
		if v.UserID == userID && v.Kind == kind && (!found || !v.SubmittedAt.Before(latest.SubmittedAt)) {
			latest = v
			found = true
		}
	}
	if !found {
		return store.Verification{}, sql.ErrNoRows
	}
	return latest, nil
}

func (f *fakeStore) ListPendingVerifications(_ context.Context, kind string) ([]store.Verification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Verification
	for _, v := range f.verifications {
		if v.Status == statusPending && (kind == "" || v.Kind == kind) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) DecideVerification(_ context.Context, id, status, reason, reviewerID string, atts []store.Attestation) (store.Verification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.verifications[id]
	if !ok || v.Status != statusPending {
		return store.Verification{}, sql.ErrNoRows
	}
	now := time.Now().UTC()
	v.Status = status
	v.Reason = reason
	v.ReviewedBy = reviewerID
	v.ReviewedAt = &now
	f.verifications[id] = v
	f.attestations[id] = append(f.attestations[id], atts...)
	u := f.users[v.UserID]
	if v.Kind == VerificationKYC {
		u.KYCStatus = status
	} else {
		u.KYBStatus = status
	}
	f.users[v.UserID] = u
	return v, nil
}

func (f *fakeStore) ListAttestations(_ context.Context, verificationID string) ([]store.Attestation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Attestation(nil), f.attestations[verificationID]...), nil
}

func (f *fakeStore) InsertStoredFile(ctx context.Context, file store.StoredFile) error {
	if f.insertStoredFileFn != nil {
		return f.insertStoredFileFn(ctx, file)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[file.Key] = file
	return nil
}

func (f *fakeStore) GetStoredFile(_ context.Context, key string) (store.StoredFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[key]
	if !ok {
		return store.StoredFile{}, sql.ErrNoRows
	}
	return file, nil
}

func (f *fakeStore) InsertProject(_ context.Context, item store.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	f.projects[item.ID] = item
	return nil
}

func (f *fakeStore) UpdateProject(_ context.Context, item store.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[item.ID]; !ok {
		return sql.ErrNoRows
	}
	item.UpdatedAt = time.Now().UTC()
	f.projects[item.ID] = item
	return nil
}

func (f *fakeStore) SubmitProject(_ context.Context, projectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[projectID]
	if !ok || p.Status != projectDraft {
		return sql.ErrNoRows
	}
	now := time.Now().UTC()
	p.Status = projectSubmitted
	p.SubmittedAt = &now
	f.projects[projectID] = p
	return nil
}

func (f *fakeStore) GetProject(_ context.Context, projectID string) (store.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[projectID]
	if !ok {
		return store.Project{}, sql.ErrNoRows
	}
	p.FounderName = f.users[p.FounderID].DisplayName
	return p, nil
}

func (f *fakeStore) ListProjectsByFounder(_ context.Context, founderID string) ([]store.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Project
	for _, p := range f.projects {
		if p.FounderID == founderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) ListDealflow(_ context.Context, limit, offset int) ([]store.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Project
	for _, p := range f.projects {
		if p.Status != projectDraft {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ListingOrder != out[j].ListingOrder {
			return out[i].ListingOrder > out[j].ListingOrder
		}
		return out[i].Score > out[j].Score
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) SaveAnalysis(_ context.Context, analysis store.ProjectAnalysis, listingOrder int, badges []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[analysis.ProjectID]
	if !ok {
		return sql.ErrNoRows
	}
	p.Score = analysis.Score
	p.Rating = analysis.Rating
	p.ListingOrder = listingOrder
	p.Badges = badges
	f.projects[p.ID] = p
	f.analyses[p.ID] = append(f.analyses[p.ID], analysis)
	return nil
}

func (f *fakeStore) LatestAnalysis(_ context.Context, projectID string) (store.ProjectAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := f.analyses[projectID]
	if len(items) == 0 {
		return store.ProjectAnalysis{}, sql.ErrNoRows
	}
	return items[len(items)-1], nil
}

func (f *fakeStore) ListAnalyses(_ context.Context, projectID string, limit int) ([]store.ProjectAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := f.analyses[projectID]
	out := make([]store.ProjectAnalysis, 0, len(items))
	for i := len(items) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, items[i])
	}
	return out, nil
}

func (f *fakeStore) AcceptProject(_ context.Context, params store.AcceptProjectParams) (store.Room, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[params.ProjectID]
	if !ok {
		return store.Room{}, false, sql.ErrNoRows
	}
	p.Status = projectAccepted
	f.projects[p.ID] = p
	now := time.Now().UTC()
	f.relations[params.RelationID] = store.ProjectRelation{
		ID:              params.RelationID,
		ProjectID:       params.ProjectID,
		FounderID:       params.FounderID,
		CounterpartID:   params.CounterpartID,
		CounterpartRole: params.CounterpartRole,
		Status:          "accepted",
		RoomID:          params.Room.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if existing, ok := f.rooms[params.Room.ID]; ok {
		return existing, false, nil
	}
	room := params.Room
	room.CreatedAt = now
	room.LastActivityAt = now
	room.MessageCount = 1
	f.rooms[room.ID] = room
	for _, m := range params.Members {
		m.RoomID = room.ID
		m.JoinedAt = now
		u := f.users[m.UserID]
		m.DisplayName = u.DisplayName
		m.Email = u.Email
		m.Role = u.Role
		f.members[room.ID] = append(f.members[room.ID], m)
	}
	msg := params.SystemMessage
	msg.RoomID = room.ID
	msg.CreatedAt = now
	f.messages[room.ID] = append(f.messages[room.ID], msg)
	return room, true, nil
}

func (f *fakeStore) GetRelation(_ context.Context, relationID string) (store.ProjectRelation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.relations[relationID]
	if !ok {
		return store.ProjectRelation{}, sql.ErrNoRows
	}
	return r, nil
}

func (f *fakeStore) GetRoom(_ context.Context, roomID string) (store.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[roomID]
	if !ok {
		return store.Room{}, sql.ErrNoRows
	}
	return r, nil
}

func (f *fakeStore) ListRoomsForUser(_ context.Context, userID string) ([]store.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Room
	for roomID, members := range f.members {
		for _, m := range members {
			if m.UserID == userID {
				out = append(out, f.rooms[roomID])
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) ListRoomMembers(_ context.Context, roomID string) ([]store.RoomMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.RoomMember(nil), f.members[roomID]...), nil
}

func (f *fakeStore) IsRoomMember(_ context.Context, roomID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members[roomID] {
		if m.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) UpdateRoomMemory(_ context.Context, roomID string, memory map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[roomID]
	if !ok {
		return sql.ErrNoRows
	}
	r.RaftAIMemory = memory
	f.rooms[roomID] = r
	return nil
}

func (f *fakeStore) InsertMessage(_ context.Context, msg store.Message) (store.Message, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg.ClientMessageID != "" {
		for _, existing := range f.messages[msg.RoomID] {
			if existing.SenderID == msg.SenderID && existing.ClientMessageID == msg.ClientMessageID {
				return existing, false, nil
			}
		}
	}
	msg.CreatedAt = time.Now().UTC()
	f.messages[msg.RoomID] = append(f.messages[msg.RoomID], msg)
	r := f.rooms[msg.RoomID]
	r.MessageCount++
	r.LastActivityAt = msg.CreatedAt
	f.rooms[msg.RoomID] = r
	return msg, true, nil
}

func (f *fakeStore) GetMessage(_ context.Context, messageID string) (store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msgs := range f.messages {
		for _, m := range msgs {
			if m.ID == messageID {
				return m, nil
			}
		}
	}
	return store.Message{}, sql.ErrNoRows
}

func (f *fakeStore) ListMessages(_ context.Context, roomID, _ string, limit int) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[roomID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]store.Message(nil), msgs...), nil
}

func (f *fakeStore) ToggleReaction(_ context.Context, messageID, userID, emoji string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reactions[messageID] == nil {
		f.reactions[messageID] = map[string]bool{}
	}
	key := userID + "|" + emoji
	if f.reactions[messageID][key] {
		delete(f.reactions[messageID], key)
		return false, nil
	}
	f.reactions[messageID][key] = true
	return true, nil
}

func (f *fakeStore) ListReactionCounts(_ context.Context, roomID string) ([]store.ReactionCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.ReactionCount
	for _, m := range f.messages[roomID] {
		counts := map[string]int{}
		for key := range f.reactions[m.ID] {
			counts[key[strings.Index(key, "|")+1:]]++
		}
		for emoji, n := range counts {
			out = append(out, store.ReactionCount{MessageID: m.ID, Emoji: emoji, Count: n})
		}
	}
	return out, nil
}

func (f *fakeStore) InsertNotification(_ context.Context, item store.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.CreatedAt = time.Now().UTC()
	f.notifications = append(f.notifications, item)
	return nil
}

func (f *fakeStore) notificationsFor(userID string) []store.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Notification
	for _, n := range f.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func (f *fakeStore) ListNotifications(_ context.Context, userID string, unreadOnly bool, limit int) ([]store.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Notification
	for i := len(f.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		n := f.notifications[i]
		if n.UserID == userID && (!unreadOnly || !n.Read) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeStore) CountUnreadNotifications(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, n := range f.notifications {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) MarkNotificationRead(_ context.Context, userID, notificationID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, n := range f.notifications {
		if n.ID == notificationID && n.UserID == userID {
			if n.Read {
				return false, nil
			}
			f.notifications[i].Read = true
			return true, nil
		}
	}
	return false, sql.ErrNoRows
}

func (f *fakeStore) MarkAllNotificationsRead(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for i, n := range f.notifications {
		if n.UserID == userID && !n.Read {
			f.notifications[i].Read = true
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) FindPendingInvitation(_ context.Context, ownerID, teamType, email string) (store.TeamInvitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	for _, inv := range f.invitations {
		if inv.OwnerID == ownerID && inv.TeamType == teamType && inv.Email == email && inv.Status == "pending" && inv.ExpiresAt.After(now) {
			return inv, nil
		}
	}
	return store.TeamInvitation{}, sql.ErrNoRows
}

func (f *fakeStore) GetInvitationByToken(_ context.Context, token string) (store.TeamInvitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.invitations {
		if inv.Token == token {
			return inv, nil
		}
	}
	return store.TeamInvitation{}, sql.ErrNoRows
}

func (f *fakeStore) CreateInvitation(_ context.Context, invitation store.TeamInvitation, memberID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	invitation.CreatedAt = time.Now().UTC()
	f.invitations[invitation.ID] = invitation
	f.teamMembers[memberID] = store.TeamMember{
		ID:           memberID,
		TeamType:     invitation.TeamType,
		OwnerID:      invitation.OwnerID,
		Email:        invitation.Email,
		MemberRole:   invitation.MemberRole,
		Status:       "pending",
		InvitationID: invitation.ID,
		CreatedAt:    invitation.CreatedAt,
	}
	return nil
}

func (f *fakeStore) AcceptInvitation(_ context.Context, token, userID string, now time.Time) (store.TeamInvitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, inv := range f.invitations {
		if inv.Token != token {
			continue
		}
		if inv.Status != "pending" || !inv.ExpiresAt.After(now) {
			return store.TeamInvitation{}, sql.ErrNoRows
		}
		inv.Status = "accepted"
		inv.AcceptedAt = &now
		f.invitations[id] = inv
		for mid, m := range f.teamMembers {
			if m.InvitationID == inv.ID {
				m.Status = "active"
				m.UserID = userID
				f.teamMembers[mid] = m
			}
		}
		return inv, nil
	}
	return store.TeamInvitation{}, sql.ErrNoRows
}

func (f *fakeStore) GetTeamMemberByEmail(_ context.Context, ownerID, teamType, email string) (store.TeamMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.teamMembers {
		if m.OwnerID == ownerID && m.TeamType == teamType && m.Email == email {
			return m, nil
		}
	}
	return store.TeamMember{}, sql.ErrNoRows
}

func (f *fakeStore) ListTeamMembers(_ context.Context, ownerID, teamType string) ([]store.TeamMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.TeamMember
	for _, m := range f.teamMembers {
		if m.OwnerID == ownerID && m.TeamType == teamType {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertBlogPost(_ context.Context, post store.BlogPost) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.posts {
		if p.Slug == post.Slug {
			return store.ErrConflict
		}
	}
	now := time.Now().UTC()
	post.CreatedAt = now
	post.UpdatedAt = now
	f.posts[post.ID] = post
	return nil
}

func (f *fakeStore) UpdateBlogPost(_ context.Context, post store.BlogPost) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.posts[post.ID]; !ok {
		return sql.ErrNoRows
	}
	post.UpdatedAt = time.Now().UTC()
	f.posts[post.ID] = post
	return nil
}

func (f *fakeStore) DeleteBlogPost(_ context.Context, postID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.posts[postID]; !ok {
		return sql.ErrNoRows
	}
	delete(f.posts, postID)
	return nil
}

func (f *fakeStore) GetBlogPost(_ context.Context, postID string) (store.BlogPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[postID]
	if !ok {
		return store.BlogPost{}, sql.ErrNoRows
	}
	return p, nil
}

func (f *fakeStore) GetBlogPostBySlug(_ context.Context, slug string) (store.BlogPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.posts {
		if p.Slug == slug {
			return p, nil
		}
	}
	return store.BlogPost{}, sql.ErrNoRows
}

func (f *fakeStore) ListBlogPosts(_ context.Context, filter store.BlogFilter) ([]store.BlogPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.BlogPost
	for _, p := range f.posts {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ListDueScheduledPosts(_ context.Context, now time.Time) ([]store.BlogPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.BlogPost
	for _, p := range f.posts {
		if p.Status == "scheduled" && p.ScheduledFor != nil && !p.ScheduledFor.After(now) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) IncrementBlogCounter(_ context.Context, postID, counter string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[postID]
	if !ok {
		return 0, sql.ErrNoRows
	}
	var value int
	switch counter {
	case "views":
		p.Views++
		value = p.Views
	case "likes":
		p.Likes++
		value = p.Likes
	case "shares":
		p.Shares++
		value = p.Shares
	}
	f.posts[postID] = p
	return value, nil
}
