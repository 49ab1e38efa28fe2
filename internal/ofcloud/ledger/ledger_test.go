package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

var testCatalog = Catalog{
	"of.small": {Name: "of.small", Cores: 1, RAMMB: 2048},
	"of.large": {Name: "of.large", Cores: 4, RAMMB: 8192},
}

func TestCeilingEffective(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		name    string
		ceiling Ceiling
		want    Quota
	}{
		{
			name:    "soft limits stricter",
			ceiling: Ceiling{Hard: Quota{Cores: 20, Instances: 10, FloatingIPs: 5, RAMMB: 51200}, MaxCores: 8, MaxInstances: 3},
			want:    Quota{Cores: 8, Instances: 3, FloatingIPs: 5, RAMMB: 51200},
		},
		{
			name:    "hard quota stricter",
			ceiling: Ceiling{Hard: Quota{Cores: 4, Instances: 2, FloatingIPs: 5, RAMMB: 1024}, MaxCores: 8, MaxInstances: 3},
			want:    Quota{Cores: 4, Instances: 2, FloatingIPs: 5, RAMMB: 1024},
		},
		{
			name:    "soft limits not configured",
			ceiling: Ceiling{Hard: Quota{Cores: 4, Instances: 2, FloatingIPs: 1, RAMMB: 1024}},
			want:    Quota{Cores: 4, Instances: 2, FloatingIPs: 1, RAMMB: 1024},
		},
		{
			name:    "unlimited hard quota",
			ceiling: Ceiling{Hard: Quota{Cores: -1, Instances: -1, FloatingIPs: -1, RAMMB: -1}, MaxCores: 16},
			want:    Quota{Cores: 16, Instances: Unlimited, FloatingIPs: Unlimited, RAMMB: Unlimited * 1024},
		},
	}

	for _, tc := range testcases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.ceiling.Effective())
		})
	}
}

func TestComputeAvailable(t *testing.T) {
	t.Parallel()

	ceiling := Ceiling{Hard: Quota{Cores: 10, Instances: 5, FloatingIPs: 4, RAMMB: 20480}}

	testcases := []struct {
		name     string
		active   []string
		inFlight []string
		usedFIPs int
		want     Quota
	}{
		{
			name: "nothing in use",
			want: Quota{Cores: 10, Instances: 5, FloatingIPs: 4, RAMMB: 20480},
		},
		{
			name:     "active servers and floating ips",
			active:   []string{"of.small", "of.large"},
			usedFIPs: 2,
			want:     Quota{Cores: 5, Instances: 3, FloatingIPs: 2, RAMMB: 10240},
		},
		{
			name:     "in flight reserves a floating ip each",
			inFlight: []string{"of.small", "of.small"},
			want:     Quota{Cores: 8, Instances: 3, FloatingIPs: 2, RAMMB: 16384},
		},
		{
			name:   "unknown active shape counts slot only",
			active: []string{"m1.weird"},
			want:   Quota{Cores: 10, Instances: 4, FloatingIPs: 4, RAMMB: 20480},
		},
		{
			name:     "can go negative",
			active:   []string{"of.large", "of.large"},
			inFlight: []string{"of.large"},
			usedFIPs: 4,
			want:     Quota{Cores: -2, Instances: 2, FloatingIPs: -1, RAMMB: -4096},
		},
	}

	for _, tc := range testcases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ComputeAvailable(context.Background(), ceiling, tc.active, tc.inFlight, testCatalog, tc.usedFIPs)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestIsAdmissible(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		name      string
		candidate Shape
		available Quota
		want      bool
	}{
		{
			name:      "fits exactly",
			candidate: testCatalog["of.large"],
			available: Quota{Cores: 4, Instances: 1, FloatingIPs: 1, RAMMB: 8192},
			want:      true,
		},
		{
			name:      "not enough cores",
			candidate: testCatalog["of.large"],
			available: Quota{Cores: 3, Instances: 1, FloatingIPs: 1, RAMMB: 8192},
		},
		{
			name:      "no instance slot",
			candidate: testCatalog["of.small"],
			available: Quota{Cores: 4, Instances: 0, FloatingIPs: 1, RAMMB: 8192},
		},
		{
			name:      "no floating ip",
			candidate: testCatalog["of.small"],
			available: Quota{Cores: 4, Instances: 1, FloatingIPs: 0, RAMMB: 8192},
		},
		{
			name:      "not enough ram",
			candidate: testCatalog["of.small"],
			available: Quota{Cores: 4, Instances: 1, FloatingIPs: 1, RAMMB: 2047},
		},
	}

	for _, tc := range testcases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, IsAdmissible(tc.candidate, tc.available))
		})
	}
}

// 每次准入后把候选实例记为部署中，再次计算时不会超出上限
func TestSequentialAdmissionNeverExceedsCeiling(t *testing.T) {
	t.Parallel()

	ceiling := Ceiling{Hard: Quota{Cores: 100, Instances: 100, FloatingIPs: 100, RAMMB: 1 << 20}, MaxInstances: 2}
	var inFlight []string
	admitted := 0
	for i := 0; i < 3; i++ {
		available := ComputeAvailable(context.Background(), ceiling, nil, inFlight, testCatalog, 0)
		if IsAdmissible(testCatalog["of.small"], available) {
			admitted++
			inFlight = append(inFlight, "of.small")
		}
	}
	assert.Equal(t, 2, admitted)

	// 一个部署完成变成活动资源，另一个结束释放后，第三个可以准入
	available := ComputeAvailable(context.Background(), ceiling, []string{"of.small"}, nil, testCatalog, 1)
	assert.True(t, IsAdmissible(testCatalog["of.small"], available))
}

func TestQuotaString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "cores=1 instances=2 floating_ips=3 ram=2.0 GiB", Quota{Cores: 1, Instances: 2, FloatingIPs: 3, RAMMB: 2048}.String())
	assert.Contains(t, Quota{RAMMB: -512}.String(), "ram=-512 MiB")
}
