package e2e

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mfvargas/fieldops/core/lifecycle"
	"github.com/mfvargas/fieldops/core/model"
	"github.com/mfvargas/fieldops/infra/logger"
	"github.com/mfvargas/fieldops/infra/postgres"
)

// startPostgres starts a disposable Postgres container and returns the DSN.
func startPostgres(ctx context.Context, t *testing.T) (tc.Container, string) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "fieldops",
			"POSTGRES_PASSWORD": "fieldops",
			"POSTGRES_DB":       "fieldops",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("unable to start postgres container: %v", err)
	}
	host, _ := cont.Host(ctx)
	port, _ := cont.MappedPort(ctx, "5432")
	dsn := fmt.Sprintf("postgres://fieldops:fieldops@%s:%s/fieldops?sslmode=disable", host, port.Port())
	return cont, dsn
}

// Test_E2E_PostgresDispatchFlow drives the full dispatch lifecycle against a
// real Postgres instance, including the conditional-write conflict paths the
// in-memory store cannot prove.
func Test_E2E_PostgresDispatchFlow(t *testing.T) {
	if os.Getenv("FIELDOPS_E2E") != "1" {
		t.Skip("set FIELDOPS_E2E=1 to run")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skipf("docker not installed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cont, dsn := startPostgres(ctx, t)
	if cont != nil {
		defer cont.Terminate(ctx) //nolint:errcheck
	}

	st, err := postgres.New(ctx, dsn)
	require.NoError(t, err)
	defer st.Close()

	engine := lifecycle.New(st, lifecycle.DefaultConfig(), logger.New("e2e"))
	technician := &model.Actor{ID: uuid.New(), Role: model.RoleTechnician, Active: true}
	unit := &model.Actor{ID: uuid.New(), Role: model.RoleUnit, Active: true}
	rival := &model.Actor{ID: uuid.New(), Role: model.RoleUnit, Active: true}
	for _, a := range []*model.Actor{technician, unit, rival} {
		require.NoError(t, st.PutActor(ctx, a))
	}

	created, err := engine.CreateRequest(ctx, technician, lifecycle.CreateRequestInput{
		Kind:    "ladder",
		Coord:   model.Coordinate{Lat: 4.61, Lon: -74.08},
		Address: "Cll 26 #13-19",
	})
	require.NoError(t, err)
	reqID := created.Request.ID

	// Second pending request for the same technician hits the partial
	// unique index.
	_, err = engine.CreateRequest(ctx, technician, lifecycle.CreateRequestInput{
		Kind:  "equipment",
		Coord: model.Coordinate{Lat: 4.61, Lon: -74.08},
	})
	assert.True(t, errors.Is(err, model.ErrConflict), "got %v", err)

	reqSnap, svcSnap, err := engine.AcceptRequest(ctx, unit, reqID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestAccepted, reqSnap.Request.Status)
	svcID := svcSnap.Service.ID

	// The rival loses the conditional update on the already-accepted row.
	_, _, err = engine.AcceptRequest(ctx, rival, reqID)
	assert.True(t, errors.Is(err, model.ErrInvalidState), "got %v", err)

	_, err = engine.StartRoute(ctx, unit, svcID)
	require.NoError(t, err)
	_, err = engine.Arrive(ctx, unit, svcID)
	require.NoError(t, err)
	_, err = engine.BeginWork(ctx, unit, svcID)
	require.NoError(t, err)
	_, err = engine.BeginWork(ctx, unit, svcID)
	assert.True(t, errors.Is(err, model.ErrAlreadyStarted), "got %v", err)

	done, err := engine.Finish(ctx, unit, svcID, "replaced breaker")
	require.NoError(t, err)
	assert.Equal(t, model.ServiceCompleted, done.Service.Status)

	final, err := engine.GetRequest(ctx, reqID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestCompleted, final.Request.Status)

	// The unit is free again.
	_, err = st.ActiveServiceForUnit(ctx, unit.ID)
	assert.True(t, errors.Is(err, model.ErrNotFound), "got %v", err)

	obs, err := st.ObservationsForService(ctx, svcID)
	require.NoError(t, err)
	assert.NotEmpty(t, obs)
}
