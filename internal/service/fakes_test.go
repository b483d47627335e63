package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/carecrypt/carecrypt-server/internal/database"
	"github.com/carecrypt/carecrypt-server/internal/mail"
	"github.com/carecrypt/carecrypt-server/internal/model"
	"github.com/carecrypt/carecrypt-server/internal/repository"
)

// fakeTx runs fn without a real transaction. Repositories hand themselves
// back from WithTx, so writes land directly in the in-memory fakes.
type fakeTx struct{}

func (fakeTx) WithTx(_ context.Context, fn database.TxFunc) error {
	return fn(nil)
}

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[int64]*model.User{}}
}

func (r *fakeUserRepo) WithTx(*sqlx.Tx) repository.UserRepository { return r }

func (r *fakeUserRepo) FindByID(_ context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (r *fakeUserRepo) find(match func(*model.User) bool) *model.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			c := *u
			return &c
		}
	}
	return nil
}

func (r *fakeUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Email == email }), nil
}

func (r *fakeUserRepo) FindByIdentifier(_ context.Context, identifier string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Username == identifier || u.Email == identifier }), nil
}

func (r *fakeUserRepo) Create(_ context.Context, params model.CreateUserParams) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == params.Username || u.Email == params.Email {
			return nil, repository.ErrDuplicate
		}
	}
	r.nextID++
	u := &model.User{
		ID:           r.nextID,
		Username:     params.Username,
		Email:        params.Email,
		PasswordHash: params.PasswordHash,
		CreatedAt:    time.Now(),
	}
	r.users[u.ID] = u
	c := *u
	return &c, nil
}

func (r *fakeUserRepo) UpdatePasswordHash(_ context.Context, id int64, hash string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return 0, nil
	}
	u.PasswordHash = hash
	return 1, nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	nextID   int64
	sessions map[int64]*model.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[int64]*model.Session{}}
}

func (r *fakeSessionRepo) WithTx(*sqlx.Tx) repository.SessionRepository { return r }

func (r *fakeSessionRepo) Create(_ context.Context, params model.CreateSessionParams) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	lastActive := params.LastActive
	s := &model.Session{
		ID:         r.nextID,
		TokenHash:  params.TokenHash,
		UserID:     params.UserID,
		LastActive: &lastActive,
		CreatedAt:  params.LastActive,
	}
	r.sessions[s.ID] = s
	c := *s
	return &c, nil
}

func (r *fakeSessionRepo) FindByTokenHash(_ context.Context, tokenHash string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.TokenHash == tokenHash {
			c := *s
			return &c, nil
		}
	}
	return nil, nil
}

func (r *fakeSessionRepo) Touch(_ context.Context, id int64, lastActive time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		t := lastActive
		s.LastActive = &t
	}
	return nil
}

func (r *fakeSessionRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *fakeSessionRepo) DeleteByUserID(_ context.Context, userID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeSessionRepo) DeleteIdleBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		last := s.CreatedAt
		if s.LastActive != nil {
			last = *s.LastActive
		}
		if last.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeSessionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

type fakeResetRepo struct {
	mu     sync.Mutex
	nextID int64
	tokens map[int64]*model.PasswordResetToken
}

func newFakeResetRepo() *fakeResetRepo {
	return &fakeResetRepo{tokens: map[int64]*model.PasswordResetToken{}}
}

func (r *fakeResetRepo) WithTx(*sqlx.Tx) repository.PasswordResetRepository { return r }

func (r *fakeResetRepo) Create(_ context.Context, params model.CreatePasswordResetParams) (*model.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	t := &model.PasswordResetToken{
		ID:        r.nextID,
		UserID:    params.UserID,
		TokenHash: params.TokenHash,
		ExpiresAt: params.ExpiresAt,
	}
	r.tokens[t.ID] = t
	c := *t
	return &c, nil
}

func (r *fakeResetRepo) FindByTokenHash(_ context.Context, tokenHash string) (*model.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.TokenHash == tokenHash {
			c := *t
			return &c, nil
		}
	}
	return nil, nil
}

func (r *fakeResetRepo) MarkUsed(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok || t.Used {
		return false, nil
	}
	t.Used = true
	return true, nil
}

func (r *fakeResetRepo) DeleteStale(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.tokens {
		if t.Used || now.After(t.ExpiresAt) {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeResetRepo) all() []model.PasswordResetToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.PasswordResetToken, 0, len(r.tokens))
	for _, t := range r.tokens {
		out = append(out, *t)
	}
	return out
}

type fakePrescriptionRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*model.Prescription
	now    func() time.Time
	images *fakeImageRepo
}

func newFakePrescriptionRepo(images *fakeImageRepo) *fakePrescriptionRepo {
	return &fakePrescriptionRepo{rows: map[int64]*model.Prescription{}, now: time.Now, images: images}
}

func (r *fakePrescriptionRepo) WithTx(*sqlx.Tx) repository.PrescriptionRepository { return r }

func (r *fakePrescriptionRepo) Create(_ context.Context, params model.CreatePrescriptionParams) (*model.Prescription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	p := &model.Prescription{
		ID:          r.nextID,
		UserID:      params.UserID,
		PatientName: params.PatientName,
		Medication:  params.Medication,
		Dosage:      params.Dosage,
		Notes:       params.Notes,
		CreatedAt:   r.now(),
	}
	r.rows[p.ID] = p
	c := *p
	return &c, nil
}

func (r *fakePrescriptionRepo) FindByIDAndUser(_ context.Context, id, userID int64) (*model.Prescription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.rows[id]; ok && p.UserID == userID {
		c := *p
		return &c, nil
	}
	return nil, nil
}

func (r *fakePrescriptionRepo) ListByUser(_ context.Context, userID int64) ([]model.Prescription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Prescription
	for id := r.nextID; id > 0; id-- {
		if p, ok := r.rows[id]; ok && p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakePrescriptionRepo) Update(_ context.Context, params model.UpdatePrescriptionParams) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[params.ID]
	if !ok || p.UserID != params.UserID {
		return 0, nil
	}
	p.PatientName = params.PatientName
	p.Medication = params.Medication
	p.Dosage = params.Dosage
	p.Notes = params.Notes
	return 1, nil
}

func (r *fakePrescriptionRepo) Delete(_ context.Context, id, userID int64) (int64, error) {
	r.mu.Lock()
	p, ok := r.rows[id]
	if !ok || p.UserID != userID {
		r.mu.Unlock()
		return 0, nil
	}
	delete(r.rows, id)
	r.mu.Unlock()

	if r.images != nil {
		r.images.cascade(id)
	}
	return 1, nil
}

func (r *fakePrescriptionRepo) ownerOf(id int64) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok {
		return 0, false
	}
	return p.UserID, true
}

type fakeImageRepo struct {
	mu        sync.Mutex
	nextID    int64
	rows      map[int64]*model.PrescriptionImage
	owners    func(prescriptionID int64) (int64, bool)
	createErr error
}

func newFakeImageRepo() *fakeImageRepo {
	return &fakeImageRepo{rows: map[int64]*model.PrescriptionImage{}}
}

func (r *fakeImageRepo) WithTx(*sqlx.Tx) repository.PrescriptionImageRepository { return r }

func (r *fakeImageRepo) Create(_ context.Context, params model.CreateImageParams) (*model.PrescriptionImage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.nextID++
	img := &model.PrescriptionImage{
		ID:             r.nextID,
		PrescriptionID: params.PrescriptionID,
		Filename:       params.Filename,
		OriginalExt:    params.OriginalExt,
		CreatedAt:      time.Now(),
	}
	r.rows[img.ID] = img
	c := *img
	return &c, nil
}

func (r *fakeImageRepo) ListByPrescriptionIDs(_ context.Context, ids []int64) ([]model.PrescriptionImage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.PrescriptionImage
	for id := int64(1); id <= r.nextID; id++ {
		if img, ok := r.rows[id]; ok && want[img.PrescriptionID] {
			out = append(out, *img)
		}
	}
	return out, nil
}

func (r *fakeImageRepo) FindOwned(_ context.Context, imageID, userID int64) (*model.OwnedImage, error) {
	r.mu.Lock()
	img, ok := r.rows[imageID]
	r.mu.Unlock()
	if !ok {
		return nil, nil
	}
	owner, ok := r.owners(img.PrescriptionID)
	if !ok || owner != userID {
		return nil, nil
	}
	return &model.OwnedImage{PrescriptionImage: *img, UserID: owner}, nil
}

func (r *fakeImageRepo) DeleteFromPrescription(_ context.Context, prescriptionID int64, ids []int64) ([]model.PrescriptionImage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.PrescriptionImage
	for _, id := range ids {
		if img, ok := r.rows[id]; ok && img.PrescriptionID == prescriptionID {
			out = append(out, *img)
			delete(r.rows, id)
		}
	}
	return out, nil
}

func (r *fakeImageRepo) ReferencedFilenames(_ context.Context, names []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, name := range names {
		for _, img := range r.rows {
			if img.Filename == name {
				out = append(out, name)
				break
			}
		}
	}
	return out, nil
}

func (r *fakeImageRepo) cascade(prescriptionID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, img := range r.rows {
		if img.PrescriptionID == prescriptionID {
			delete(r.rows, id)
		}
	}
}

type fakeAuditStore struct {
	mu      sync.Mutex
	entries []model.CreateAuditLogParams
}

func (s *fakeAuditStore) Create(_ context.Context, params model.CreateAuditLogParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, params)
	return nil
}

func (s *fakeAuditStore) actions() []model.AuditAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AuditAction, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Action
	}
	return out
}

func (s *fakeAuditStore) last() model.CreateAuditLogParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[len(s.entries)-1]
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, msg mail.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// resetTokenFrom extracts the raw token from a reset email body.
func resetTokenFrom(msg mail.Message) string {
	_, rest, ok := strings.Cut(msg.TextBody, "/reset-password/")
	if !ok {
		return ""
	}
	token, _, _ := strings.Cut(rest, "\n")
	return strings.TrimSpace(token)
}
