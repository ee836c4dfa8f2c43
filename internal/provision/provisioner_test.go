package provision

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/licentia/internal/clock"
	directorydomain "github.com/smallbiznis/licentia/internal/directory/domain"
	"github.com/smallbiznis/licentia/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// fakeOps keeps "databases" as in-memory sqlite handles so the provisioner's
// compensation path can be exercised without a server.
type fakeOps struct {
	t        *testing.T
	dbs      map[string]*gorm.DB
	dropped  []string
	onCreate func(conn *gorm.DB)
}

func newFakeOps(t *testing.T) *fakeOps {
	return &fakeOps{t: t, dbs: make(map[string]*gorm.DB)}
}

func (f *fakeOps) Exists(ctx context.Context, host, port, name string) (bool, error) {
	_, ok := f.dbs[name]
	return ok, nil
}

func (f *fakeOps) Create(ctx context.Context, host, port, name string) error {
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(f.t, err)
	sqlDB, err := conn.DB()
	require.NoError(f.t, err)
	sqlDB.SetMaxOpenConns(1)

	if f.onCreate != nil {
		f.onCreate(conn)
	}
	f.dbs[name] = conn
	return nil
}

func (f *fakeOps) Drop(ctx context.Context, host, port, name string) error {
	delete(f.dbs, name)
	f.dropped = append(f.dropped, name)
	return nil
}

func (f *fakeOps) Open(ctx context.Context, host, port, name string) (*gorm.DB, error) {
	conn, ok := f.dbs[name]
	if !ok {
		return nil, apperr.NotFound("database not found")
	}
	return conn, nil
}

func newTestProvisioner(t *testing.T, ops DatabaseOps) Provisioner {
	t.Helper()
	node, _ := snowflake.NewNode(1)
	clk := clock.NewFakeClock(time.Date(2024, time.May, 10, 9, 0, 0, 0, time.UTC))
	return NewProvisioner(zap.NewNop(), node, clk, ops)
}

func TestProvision_SeedsRolesDepartmentAndBootstrapAdmin(t *testing.T) {
	ops := newFakeOps(t)
	p := newTestProvisioner(t, ops)

	err := p.Provision(context.Background(), Request{
		Name:           "acme-traders",
		Host:           "localhost",
		Port:           "5432",
		RequestingUser: 42,
		AdminName:      "Owner",
		AdminEmail:     "owner@acme.test",
	})
	require.NoError(t, err)

	conn := ops.dbs["acme-traders"]
	require.NotNil(t, conn)

	var roles []directorydomain.RoleRecord
	require.NoError(t, conn.Order("id").Find(&roles).Error)
	require.Len(t, roles, 5)
	assert.Equal(t, directorydomain.RoleBusinessAdmin, roles[0].Code)
	assert.Equal(t, directorydomain.RoleViewer, roles[4].Code)

	var department directorydomain.Department
	require.NoError(t, conn.First(&department, "is_default = ?", true).Error)

	var bootstrap directorydomain.Executive
	require.NoError(t, conn.First(&bootstrap, "mapped_user_id = ?", 42).Error)
	assert.Equal(t, int64(1), bootstrap.RoleID)
	assert.Equal(t, department.ID, bootstrap.DepartmentID)
}

func TestProvision_ExistingDatabaseConflicts(t *testing.T) {
	ops := newFakeOps(t)
	require.NoError(t, ops.Create(context.Background(), "localhost", "5432", "acme-traders"))

	p := newTestProvisioner(t, ops)
	err := p.Provision(context.Background(), Request{
		Name:           "acme-traders",
		Host:           "localhost",
		Port:           "5432",
		RequestingUser: 42,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Empty(t, ops.dropped)
}

func TestProvision_SeedFailureDropsDatabase(t *testing.T) {
	ops := newFakeOps(t)
	// Poison the new database so the third role insert hits a primary key
	// conflict partway through seeding.
	ops.onCreate = func(conn *gorm.DB) {
		require.NoError(t, conn.AutoMigrate(&directorydomain.RoleRecord{}))
		require.NoError(t, conn.Create(&directorydomain.RoleRecord{
			ID:   3,
			Code: "SQUATTER",
			Name: "Squatter",
		}).Error)
	}

	p := newTestProvisioner(t, ops)
	err := p.Provision(context.Background(), Request{
		Name:           "acme-traders",
		Host:           "localhost",
		Port:           "5432",
		RequestingUser: 42,
	})
	require.Error(t, err)

	exists, existsErr := ops.Exists(context.Background(), "localhost", "5432", "acme-traders")
	require.NoError(t, existsErr)
	assert.False(t, exists, "partially provisioned database must be dropped")
	assert.Equal(t, []string{"acme-traders"}, ops.dropped)
}
