package handler

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/carecrypt/carecrypt-server/internal/model"
	"github.com/carecrypt/carecrypt-server/internal/service"
)

type mockAuthService struct {
	mock.Mock
}

func (m *mockAuthService) Login(ctx context.Context, identifier, password string) (*service.LoginResult, error) {
	args := m.Called(ctx, identifier, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.LoginResult), args.Error(1)
}

func (m *mockAuthService) Register(ctx context.Context, in service.RegisterInput) (*model.User, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockAuthService) Logout(ctx context.Context, session *model.Session, user *model.User) error {
	args := m.Called(ctx, session, user)
	return args.Error(0)
}

func (m *mockAuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}

func (m *mockAuthService) CheckResetToken(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *mockAuthService) ResetPassword(ctx context.Context, token, password, confirm string) error {
	args := m.Called(ctx, token, password, confirm)
	return args.Error(0)
}

type mockPrescriptionService struct {
	mock.Mock
}

func (m *mockPrescriptionService) Create(ctx context.Context, userID int64, fields model.PrescriptionFields, uploads []service.Upload) (*model.PrescriptionView, error) {
	args := m.Called(ctx, userID, fields, uploads)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PrescriptionView), args.Error(1)
}

func (m *mockPrescriptionService) List(ctx context.Context, userID int64) ([]model.PrescriptionView, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]model.PrescriptionView), args.Error(1)
}

func (m *mockPrescriptionService) Get(ctx context.Context, userID, id int64) (*model.PrescriptionView, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PrescriptionView), args.Error(1)
}

func (m *mockPrescriptionService) Update(ctx context.Context, userID, id int64, fields model.PrescriptionFields, uploads []service.Upload, removeImageIDs []int64) (*model.PrescriptionView, error) {
	args := m.Called(ctx, userID, id, fields, uploads, removeImageIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PrescriptionView), args.Error(1)
}

func (m *mockPrescriptionService) Delete(ctx context.Context, userID, id int64) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

func (m *mockPrescriptionService) ServeImage(ctx context.Context, userID, imageID int64) (*service.Image, error) {
	args := m.Called(ctx, userID, imageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Image), args.Error(1)
}

func (m *mockPrescriptionService) Search(ctx context.Context, userID int64, q service.SearchQuery) ([]model.SearchResult, error) {
	args := m.Called(ctx, userID, q)
	return args.Get(0).([]model.SearchResult), args.Error(1)
}
