package memory

import (
	"context"
	"testing"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

func TestAddProjectsMetricsAccumulatesCounters(t *testing.T) {
	s, _ := newFixture(t)
	ctx := context.Background()

	add := func(requests, bytesReceived int64) {
		err := s.AddProjectsMetrics(ctx, []domain.ProjectMetricsAdd{{
			Project: domain.ProjectMetricsDelta{
				ID:            "p1",
				Requests:      requests,
				BytesReceived: bytesReceived,
			},
		}})
		if err != nil {
			t.Fatalf("AddProjectsMetrics: %v", err)
		}
	}

	add(5, 1000)
	add(3, 400)

	metrics, err := s.GetProjectMetricsByID(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProjectMetricsByID: %v", err)
	}
	if metrics.Project.Requests != 8 {
		t.Fatalf("expected 8 requests, got %d", metrics.Project.Requests)
	}
	if metrics.Project.BytesReceived != 1400 {
		t.Fatalf("expected 1400 bytes received, got %d", metrics.Project.BytesReceived)
	}
	// The rate is the last non-zero delta, not an accumulation.
	if metrics.Project.BytesReceivedRate != 400 {
		t.Fatalf("expected rate 400, got %d", metrics.Project.BytesReceivedRate)
	}
}

func TestAddProjectsMetricsZeroDeltaKeepsRate(t *testing.T) {
	s, _ := newFixture(t)
	ctx := context.Background()

	deltas := []domain.ProjectMetricsAdd{{
		Project: domain.ProjectMetricsDelta{ID: "p1", BytesSent: 700},
	}}
	if err := s.AddProjectsMetrics(ctx, deltas); err != nil {
		t.Fatalf("AddProjectsMetrics: %v", err)
	}

	deltas[0].Project.BytesSent = 0
	deltas[0].Project.Requests = 1
	if err := s.AddProjectsMetrics(ctx, deltas); err != nil {
		t.Fatalf("AddProjectsMetrics: %v", err)
	}

	metrics, err := s.GetProjectMetricsByID(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProjectMetricsByID: %v", err)
	}
	if metrics.Project.BytesSentRate != 700 {
		t.Fatalf("zero delta must not clear the rate, got %d", metrics.Project.BytesSentRate)
	}
}

func TestAddProjectsMetricsRangeClamping(t *testing.T) {
	s, _ := newFixture(t)
	ctx := context.Background()

	addRange := func(sum int64, minimum, maximum int64) {
		err := s.AddProjectsMetrics(ctx, []domain.ProjectMetricsAdd{{
			Project: domain.ProjectMetricsDelta{
				ID: "p1",
				RequestsBeforeStop: &domain.RangeMetrics{
					Sum:   sum,
					Count: 1,
					Min:   &minimum,
					Max:   &maximum,
				},
			},
		}})
		if err != nil {
			t.Fatalf("AddProjectsMetrics: %v", err)
		}
	}

	addRange(10, 10, 10)
	addRange(4, 4, 4)
	addRange(25, 25, 25)

	metrics, err := s.GetProjectMetricsByID(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProjectMetricsByID: %v", err)
	}
	r := metrics.Project.RequestsBeforeStop
	if r.Sum != 39 || r.Count != 3 {
		t.Fatalf("unexpected range accumulation: %+v", r)
	}
	if r.Min == nil || *r.Min != 4 {
		t.Fatalf("expected min 4, got %v", r.Min)
	}
	if r.Max == nil || *r.Max != 25 {
		t.Fatalf("expected max 25, got %v", r.Max)
	}
}

func TestAddProjectsMetricsWindowSnapshots(t *testing.T) {
	s, _ := newFixture(t)
	ctx := context.Background()

	metrics, err := s.GetProjectMetricsByID(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProjectMetricsByID: %v", err)
	}
	if len(metrics.Windows) != len(domain.WindowsConfig) {
		t.Fatalf("expected %d windows, got %d", len(domain.WindowsConfig), len(metrics.Windows))
	}
	window := metrics.Windows[0]

	// Push one snapshot more than the window holds.
	for i := 0; i <= window.Size; i++ {
		err := s.AddProjectsMetrics(ctx, []domain.ProjectMetricsAdd{{
			Project: domain.ProjectMetricsDelta{ID: "p1"},
			Windows: []domain.WindowDelta{{
				ID:       window.ID,
				Size:     window.Size,
				Count:    1,
				Requests: 1,
				Snapshot: &domain.Snapshot{Requests: int64(i)},
			}},
		}})
		if err != nil {
			t.Fatalf("AddProjectsMetrics: %v", err)
		}
	}

	metrics, err = s.GetProjectMetricsByID(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProjectMetricsByID: %v", err)
	}
	for _, w := range metrics.Windows {
		if w.ID != window.ID {
			continue
		}
		if len(w.Snapshots) != window.Size {
			t.Fatalf("expected %d snapshots after trim, got %d", window.Size, len(w.Snapshots))
		}
		if w.Snapshots[0].Requests != 1 {
			t.Fatalf("oldest snapshot should be evicted, first has %d", w.Snapshots[0].Requests)
		}
		if w.Count != int64(window.Size)+1 {
			t.Fatalf("window counters keep accumulating, got %d", w.Count)
		}
		return
	}
	t.Fatalf("window %s not found", window.ID)
}

func TestAddProjectsMetricsUnknownWindowFails(t *testing.T) {
	s, _ := newFixture(t)

	err := s.AddProjectsMetrics(context.Background(), []domain.ProjectMetricsAdd{{
		Project: domain.ProjectMetricsDelta{ID: "p1"},
		Windows: []domain.WindowDelta{{ID: "ghost"}},
	}})
	if !storage.IsInconsistencyData(err) {
		t.Fatalf("expected InconsistencyDataError, got %v", err)
	}
}

func TestAddProjectsMetricsSkipsUnknownProject(t *testing.T) {
	s, bus := newFixture(t)

	err := s.AddProjectsMetrics(context.Background(), []domain.ProjectMetricsAdd{{
		Project: domain.ProjectMetricsDelta{ID: "ghost", Requests: 1},
	}})
	if err != nil {
		t.Fatalf("unknown project must be skipped, got %v", err)
	}
	if len(bus.all()) != 0 {
		t.Fatalf("no event expected for a skipped project, got %d", len(bus.all()))
	}
}

func TestGetAllProjectsMetricsSorted(t *testing.T) {
	s, _ := newFixture(t)
	ctx := context.Background()

	err := s.CreateProject(ctx, domain.ProjectCreate{
		UserID:  "u1",
		Token:   "tok-0",
		Project: domain.ProjectData{ID: "a0", Name: "first"},
	})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	metrics, err := s.GetAllProjectsMetrics(ctx)
	if err != nil {
		t.Fatalf("GetAllProjectsMetrics: %v", err)
	}
	if len(metrics) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(metrics))
	}
	if metrics[0].Project.ID != "a0" || metrics[1].Project.ID != "p1" {
		t.Fatalf("unexpected order: %s, %s", metrics[0].Project.ID, metrics[1].Project.ID)
	}
}
