package mocks

import (
	"context"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/protocol"
	"github.com/stretchr/testify/mock"
)

// MockRoleService is a mock implementation of protocol.RoleService.
type MockRoleService struct {
	mock.Mock
}

func (m *MockRoleService) UserRoles(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]string), args.Error(1)
}

// MockQueryService is a mock implementation of protocol.QueryService.
type MockQueryService struct {
	mock.Mock
}

func (m *MockQueryService) Match(ctx context.Context, queryID string, entityData map[string]any) (bool, error) {
	args := m.Called(ctx, queryID, entityData)

	return args.Bool(0), args.Error(1)
}

// MockDirectory is a mock implementation of protocol.Directory.
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) User(ctx context.Context, id string) (models.Identity, error) {
	args := m.Called(ctx, id)

	return args.Get(0).(models.Identity), args.Error(1)
}

func (m *MockDirectory) UsersInRole(ctx context.Context, role string) ([]models.Identity, error) {
	args := m.Called(ctx, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.Identity), args.Error(1)
}

func (m *MockDirectory) GroupMembers(ctx context.Context, group string) ([]models.Identity, error) {
	args := m.Called(ctx, group)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.Identity), args.Error(1)
}

// MockMailer is a mock implementation of protocol.Mailer.
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, message protocol.EmailMessage) error {
	args := m.Called(ctx, message)

	return args.Error(0)
}

var (
	_ protocol.RoleService  = (*MockRoleService)(nil)
	_ protocol.QueryService = (*MockQueryService)(nil)
	_ protocol.Directory    = (*MockDirectory)(nil)
	_ protocol.Mailer       = (*MockMailer)(nil)
)
