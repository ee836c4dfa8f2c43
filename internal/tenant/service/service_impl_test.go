package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/licentia/internal/clock"
	"github.com/smallbiznis/licentia/internal/config"
	directorydomain "github.com/smallbiznis/licentia/internal/directory/domain"
	"github.com/smallbiznis/licentia/internal/identity"
	invitedomain "github.com/smallbiznis/licentia/internal/invite/domain"
	"github.com/smallbiznis/licentia/internal/provision"
	"github.com/smallbiznis/licentia/internal/tenant/domain"
	"github.com/smallbiznis/licentia/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// fakeProvisioner records calls and can be told to fail.
type fakeProvisioner struct {
	provisioned []provision.Request
	dropped     []string
	failWith    error
}

func (f *fakeProvisioner) Provision(ctx context.Context, req provision.Request) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.provisioned = append(f.provisioned, req)
	return nil
}

func (f *fakeProvisioner) Drop(ctx context.Context, host, port, name string) error {
	f.dropped = append(f.dropped, name)
	return nil
}

func newTenantTestService(t *testing.T, prov *fakeProvisioner) (domain.Service, *gorm.DB) {
	t.Helper()
	core, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := core.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, core.AutoMigrate(
		&domain.Business{},
		&domain.TenantMembership{},
		&invitedomain.Invite{},
	))

	node, _ := snowflake.NewNode(1)
	clk := clock.NewFakeClock(time.Date(2024, time.May, 10, 9, 0, 0, 0, time.UTC))
	cfg := config.Config{TenantDBHost: "localhost", TenantDBPort: "5432"}
	resolver := identity.StaticResolver{Actor: identity.Actor{
		UserID: 42,
		Email:  "owner@acme.test",
		Role:   directorydomain.RoleBusinessAdmin,
	}}

	return NewService(zap.NewNop(), node, clk, cfg, core, resolver, prov), core
}

func TestCreate_BusinessOwnerMembershipAndProvisioning(t *testing.T) {
	prov := &fakeProvisioner{}
	svc, core := newTenantTestService(t, prov)

	business, err := svc.Create(context.Background(), domain.CreateRequest{Name: "Acme Traders"})
	require.NoError(t, err)
	assert.Equal(t, "acme-traders", business.DBName)

	require.Len(t, prov.provisioned, 1)
	assert.Equal(t, "acme-traders", prov.provisioned[0].Name)
	assert.Equal(t, snowflake.ID(42), prov.provisioned[0].RequestingUser)

	var membership domain.TenantMembership
	require.NoError(t, core.First(&membership, "tenant_id = ?", business.ID).Error)
	assert.Equal(t, snowflake.ID(42), membership.UserID)
	assert.Equal(t, directorydomain.RoleBusinessAdmin, membership.Role)
	assert.Equal(t, domain.MembershipActive, membership.Status)
}

func TestCreate_ProvisionFailureRollsBackCoreRows(t *testing.T) {
	prov := &fakeProvisioner{failWith: apperr.Persistence("seed failed", nil)}
	svc, core := newTenantTestService(t, prov)

	_, err := svc.Create(context.Background(), domain.CreateRequest{Name: "Acme Traders"})
	require.Error(t, err)

	var businesses, memberships int64
	require.NoError(t, core.Model(&domain.Business{}).Count(&businesses).Error)
	require.NoError(t, core.Model(&domain.TenantMembership{}).Count(&memberships).Error)
	assert.Zero(t, businesses)
	assert.Zero(t, memberships)
}

func TestDelete_RemovesDependentsAndDropsDatabase(t *testing.T) {
	prov := &fakeProvisioner{}
	svc, core := newTenantTestService(t, prov)

	business, err := svc.Create(context.Background(), domain.CreateRequest{Name: "Acme Traders"})
	require.NoError(t, err)

	require.NoError(t, core.Create(&invitedomain.Invite{
		ID:         1,
		TenantID:   business.ID,
		Role:       directorydomain.RoleBusinessExecutive,
		EntityKind: invitedomain.EntityExecutive,
		Email:      "exec@acme.test",
		Token:      "tok-1",
		Status:     invitedomain.StatusPending,
	}).Error)

	require.NoError(t, svc.Delete(context.Background(), business.ID))

	var businesses, memberships, invites int64
	require.NoError(t, core.Model(&domain.Business{}).Count(&businesses).Error)
	require.NoError(t, core.Model(&domain.TenantMembership{}).Count(&memberships).Error)
	require.NoError(t, core.Model(&invitedomain.Invite{}).Count(&invites).Error)
	assert.Zero(t, businesses)
	assert.Zero(t, memberships)
	assert.Zero(t, invites)
	assert.Equal(t, []string{"acme-traders"}, prov.dropped)

	_, err = svc.Get(context.Background(), business.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
