package refresh

import (
	"context"
	"errors"
	"testing"
	"time"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
	"flotilla/internal/storage/memory"
)

func strptr(s string) *string { return &s }

func newFixture(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	s := memory.New(nil, 0)

	if err := s.CreateUser(ctx, domain.User{ID: "u1", Name: "alice", Email: strptr("alice@example.com")}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := s.CreateProject(ctx, domain.ProjectCreate{
		UserID:  "u1",
		Token:   "tok-1",
		Project: domain.ProjectData{ID: "p1", Name: "website", Status: domain.ProjectStatusHot},
	}); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if err := s.CreateCredential(ctx, domain.Credential{
		ID: "cr1", ProjectID: "p1", Name: "datacenter credential", Type: "datacenter",
	}); err != nil {
		t.Fatalf("CreateCredential: %v", err)
	}
	if err := s.CreateConnector(ctx, domain.Connector{
		ID:                         "co1",
		ProjectID:                  "p1",
		Name:                       "datacenter connector",
		Type:                       "datacenter",
		CredentialID:               "cr1",
		ProxiesMax:                 10,
		ProxiesTimeoutDisconnected: 5000,
	}); err != nil {
		t.Fatalf("CreateConnector: %v", err)
	}
	return s
}

func TestConnectorPassReschedules(t *testing.T) {
	s := newFixture(t)
	ctx := context.Background()

	var seen []string
	runner := NewRunner(s, Callbacks{
		Connector: func(ctx context.Context, connector domain.ConnectorToRefresh) error {
			seen = append(seen, connector.ID)
			return nil
		},
	}, Config{})

	worked, err := runner.refreshConnectorsOnce(ctx)
	if err != nil || !worked {
		t.Fatalf("expected one pass, worked=%v err=%v", worked, err)
	}
	if len(seen) != 1 || seen[0] != "co1" {
		t.Fatalf("callback not invoked: %v", seen)
	}

	// The connector is now scheduled in the future.
	worked, err = runner.refreshConnectorsOnce(ctx)
	if err != nil || worked {
		t.Fatalf("expected idle pass, worked=%v err=%v", worked, err)
	}

	if _, err := s.GetNextConnectorToRefresh(ctx, nowMs()); !errors.Is(err, storage.ErrNoConnectorToRefresh) {
		t.Fatalf("connector still due: %v", err)
	}
}

func TestProxyPassSelfPaces(t *testing.T) {
	s := newFixture(t)
	ctx := context.Background()

	err := s.SynchronizeProxies(ctx, domain.ProxiesSynchronization{
		Created: []domain.Proxy{
			{
				ID:                  domain.BuildProxyID("co1", "a"),
				ConnectorID:         "co1",
				ProjectID:           "p1",
				Type:                "datacenter",
				Key:                 "a",
				Name:                "a",
				Status:              domain.ProxyStatusStarted,
				TimeoutDisconnected: 5000,
			},
			{
				ID:                  domain.BuildProxyID("co1", "b"),
				ConnectorID:         "co1",
				ProjectID:           "p1",
				Type:                "datacenter",
				Key:                 "b",
				Name:                "b",
				Status:              domain.ProxyStatusStarted,
				TimeoutDisconnected: 5000,
			},
		},
	})
	if err != nil {
		t.Fatalf("SynchronizeProxies: %v", err)
	}

	var probed int
	runner := NewRunner(s, Callbacks{
		Proxies: func(ctx context.Context, proxies []domain.ProxyToRefresh) error {
			probed += len(proxies)
			return nil
		},
	}, Config{})

	worked, err := runner.refreshProxiesOnce(ctx)
	if err != nil || !worked {
		t.Fatalf("expected one pass, worked=%v err=%v", worked, err)
	}
	if probed != 2 {
		t.Fatalf("expected 2 probed proxies, got %d", probed)
	}

	// Both rows moved their own disconnect timeout into the future.
	if _, err := s.GetNextProxiesToRefresh(ctx, nowMs(), 10); !errors.Is(err, storage.ErrNoProxyToRefresh) {
		t.Fatalf("proxies still due: %v", err)
	}
}

func TestSourcePassRecordsFailure(t *testing.T) {
	s := newFixture(t)
	ctx := context.Background()

	err := s.CreateSources(ctx, []domain.Source{{
		ID:          "s1",
		ConnectorID: "co1",
		ProjectID:   "p1",
		URL:         "http://lists.example.com/proxies.txt",
		Delay:       60000,
	}})
	if err != nil {
		t.Fatalf("CreateSources: %v", err)
	}

	runner := NewRunner(s, Callbacks{
		Source: func(ctx context.Context, source domain.Source) error {
			return errors.New("fetch timeout")
		},
	}, Config{})

	worked, err := runner.refreshSourcesOnce(ctx)
	if err != nil || !worked {
		t.Fatalf("expected one pass, worked=%v err=%v", worked, err)
	}

	source, err := s.GetSourceByID(ctx, "p1", "co1", "s1")
	if err != nil {
		t.Fatalf("GetSourceByID: %v", err)
	}
	if source.LastRefreshTs == nil {
		t.Fatal("LastRefreshTs not stamped")
	}
	if source.LastRefreshError == nil || *source.LastRefreshError != "fetch timeout" {
		t.Fatalf("error not recorded: %v", source.LastRefreshError)
	}
	if _, err := s.GetNextSourceToRefresh(ctx, nowMs()); !errors.Is(err, storage.ErrNoSourceToRefresh) {
		t.Fatalf("source still due: %v", err)
	}
}

func TestTaskPassStepsAndReleasesLock(t *testing.T) {
	s := newFixture(t)
	ctx := context.Background()

	err := s.CreateTask(ctx, domain.Task{
		ID:          "t1",
		ProjectID:   "p1",
		ConnectorID: "co1",
		Type:        "install",
		Running:     true,
		StepMax:     2,
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	runner := NewRunner(s, Callbacks{
		Task: func(ctx context.Context, task domain.Task) (domain.Task, error) {
			task.StepCurrent++
			if task.StepCurrent >= task.StepMax {
				task.Running = false
			} else {
				task.NextRetryTs = nowMs() + 60000
			}
			return task, nil
		},
	}, Config{})

	worked, err := runner.refreshTasksOnce(ctx)
	if err != nil || !worked {
		t.Fatalf("expected one pass, worked=%v err=%v", worked, err)
	}

	task, err := s.GetTaskByID(ctx, "p1", "t1")
	if err != nil {
		t.Fatalf("GetTaskByID: %v", err)
	}
	if task.StepCurrent != 1 {
		t.Fatalf("task not stepped: %+v", task)
	}
	if task.Locked {
		t.Fatal("UpdateTask must release the lock")
	}

	worked, err = runner.refreshTasksOnce(ctx)
	if err != nil || worked {
		t.Fatalf("expected idle pass, worked=%v err=%v", worked, err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := newFixture(t)
	runner := NewRunner(s, Callbacks{}, Config{EmptyDelay: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	if err := runner.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
