package repository

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jimyag/ofcloud/internal/ofcloud/repository/model"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *Repository {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	repo, err := New(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = repo.Close()
		_ = os.RemoveAll(tmpDir)
	})

	return repo
}

func newSimulation(id string) *model.Simulation {
	now := time.Now()
	return &model.Simulation{
		ID:              id,
		Name:            "cavity",
		Flavor:          "of.small",
		Solver:          "simplefoam",
		InstanceCount:   2,
		ContainerName:   "cases",
		InputDataObject: "cavity.tar.gz",
		Cases:           "[]",
		Status:          "PENDING",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func newInstance(id, simulationID, name, status string) *model.Instance {
	now := time.Now()
	return &model.Instance{
		ID:              id,
		SimulationID:    simulationID,
		Name:            name,
		Config:          "{}",
		Status:          status,
		Parallelisation: 1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
