package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		name string
		from InstanceStatus
		to   InstanceStatus
		want bool
	}{
		{"admission", InstanceStatusPending, InstanceStatusDeploying, true},
		{"pending cannot skip deploy", InstanceStatusPending, InstanceStatusUp, false},
		{"deployed", InstanceStatusDeploying, InstanceStatusUp, true},
		{"deploy retry", InstanceStatusDeploying, InstanceStatusPending, true},
		{"deploy exhausted", InstanceStatusDeploying, InstanceStatusFailed, true},
		{"single core ready", InstanceStatusUp, InstanceStatusReady, true},
		{"multicore decompose", InstanceStatusUp, InstanceStatusDecomposing, true},
		{"decomposed", InstanceStatusDecomposing, InstanceStatusReady, true},
		{"decompose cannot run", InstanceStatusDecomposing, InstanceStatusRunningMPI, false},
		{"run single", InstanceStatusReady, InstanceStatusRunning, true},
		{"run mpi", InstanceStatusReady, InstanceStatusRunningMPI, true},
		{"single finishes", InstanceStatusRunning, InstanceStatusComplete, true},
		{"single never reconstructs", InstanceStatusRunning, InstanceStatusReconstructing, false},
		{"mpi reconstructs", InstanceStatusRunningMPI, InstanceStatusReconstructing, true},
		{"mpi orphan", InstanceStatusRunningMPI, InstanceStatusComplete, true},
		{"reconstructed", InstanceStatusReconstructing, InstanceStatusComplete, true},
		{"complete is final", InstanceStatusComplete, InstanceStatusPending, false},
		{"failed is final", InstanceStatusFailed, InstanceStatusPending, false},
		{"running cannot fail back", InstanceStatusRunning, InstanceStatusPending, false},
	}

	for _, tc := range testcases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, CanTransition(tc.from, tc.to))
		})
	}
}

func TestTerminalStatuses(t *testing.T) {
	t.Parallel()

	for _, s := range AllInstanceStatuses {
		assert.True(t, s.IsValid(), s)
		if s.IsTerminal() {
			for _, to := range AllInstanceStatuses {
				assert.False(t, CanTransition(s, to), "%s -> %s", s, to)
			}
		}
	}
	assert.True(t, SimulationStatusFailed.IsTerminal())
	assert.False(t, SimulationStatusRunning.IsTerminal())
}

func TestParseInstanceStatus(t *testing.T) {
	t.Parallel()

	s, err := ParseInstanceStatus("RUNNING_MPI")
	require.NoError(t, err)
	assert.Equal(t, InstanceStatusRunningMPI, s)

	_, err = ParseInstanceStatus("LOST")
	assert.Error(t, err)
}

func TestCreateSimulationRequestIsValid(t *testing.T) {
	t.Parallel()

	base := func() *CreateSimulationRequest {
		return &CreateSimulationRequest{
			Name:            "cavity",
			Flavor:          "of.small",
			Solver:          "simplefoam",
			ContainerName:   "cases",
			InputDataObject: "cavity.tar.gz",
		}
	}

	testcases := []struct {
		name    string
		mutate  func(r *CreateSimulationRequest)
		wantErr bool
	}{
		{name: "valid", mutate: func(r *CreateSimulationRequest) {}},
		{name: "missing name", mutate: func(r *CreateSimulationRequest) { r.Name = "" }, wantErr: true},
		{name: "missing source", mutate: func(r *CreateSimulationRequest) { r.InputDataObject = "" }, wantErr: true},
		{
			name: "duplicate case",
			mutate: func(r *CreateSimulationRequest) {
				r.Cases = []Case{{Name: "a"}, {Name: "a"}}
			},
			wantErr: true,
		},
		{
			name: "bad decomposition",
			mutate: func(r *CreateSimulationRequest) {
				r.Decomposition = &Decomposition{Method: "metis"}
			},
			wantErr: true,
		},
		{
			name: "scotch decomposition",
			mutate: func(r *CreateSimulationRequest) {
				r.Decomposition = &Decomposition{Method: DecompositionScotch, Subdomains: "4"}
			},
		},
	}

	for _, tc := range testcases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := base()
			tc.mutate(r)
			if tc.wantErr {
				assert.Error(t, r.IsValid())
			} else {
				assert.NoError(t, r.IsValid())
			}
		})
	}
}

func TestAggregateSimulationStatus(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		name     string
		children []InstanceStatus
		want     SimulationStatus
		wantOK   bool
	}{
		{name: "no children", children: nil},
		{name: "all failed", children: []InstanceStatus{InstanceStatusFailed, InstanceStatusFailed}, want: SimulationStatusFailed, wantOK: true},
		{name: "one still pending", children: []InstanceStatus{InstanceStatusFailed, InstanceStatusPending}},
		{name: "one still running", children: []InstanceStatus{InstanceStatusFailed, InstanceStatusRunning}},
		{name: "mixed terminal", children: []InstanceStatus{InstanceStatusFailed, InstanceStatusComplete}, want: SimulationStatusComplete, wantOK: true},
		{name: "all complete", children: []InstanceStatus{InstanceStatusComplete}, want: SimulationStatusComplete, wantOK: true},
	}

	for _, tc := range testcases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := AggregateSimulationStatus(tc.children)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}
