package memory

import (
	"context"
	"testing"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

func TestCreateProjectRejectsDuplicateName(t *testing.T) {
	s, _ := newFixture(t)
	ctx := context.Background()

	err := s.CreateProject(ctx, domain.ProjectCreate{
		UserID: "u1",
		Token:  "tok-2",
		Project: domain.ProjectData{
			ID:   "p2",
			Name: "website",
		},
	})
	if !storage.IsAlreadyExists(err) {
		t.Fatalf("expected AlreadyExistsError, got %v", err)
	}
}

func TestCreateProjectRequiresUser(t *testing.T) {
	s, _ := newFixture(t)

	err := s.CreateProject(context.Background(), domain.ProjectCreate{
		UserID: "ghost",
		Token:  "tok-2",
		Project: domain.ProjectData{
			ID:   "p2",
			Name: "other",
		},
	})
	if !storage.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestProjectTokenLookup(t *testing.T) {
	s, _ := newFixture(t)
	ctx := context.Background()

	projectID, err := s.GetProjectIDByToken(ctx, "tok-1")
	if err != nil {
		t.Fatalf("GetProjectIDByToken: %v", err)
	}
	if projectID != "p1" {
		t.Fatalf("expected p1, got %s", projectID)
	}

	if err := s.UpdateProjectToken(ctx, "p1", "tok-9"); err != nil {
		t.Fatalf("UpdateProjectToken: %v", err)
	}

	if _, err := s.GetProjectIDByToken(ctx, "tok-1"); !storage.IsNotFound(err) {
		t.Fatalf("old token should be gone, got %v", err)
	}
	project, err := s.GetProjectByToken(ctx, "tok-9")
	if err != nil {
		t.Fatalf("GetProjectByToken: %v", err)
	}
	if project.ID != "p1" {
		t.Fatalf("expected p1, got %s", project.ID)
	}
}

func TestRemoveProjectBlockedByConnectors(t *testing.T) {
	s, _ := newFixture(t)
	ctx := context.Background()

	if err := s.RemoveProject(ctx, "p1"); !storage.IsInUse(err) {
		t.Fatalf("expected InUseError while connectors exist, got %v", err)
	}

	if err := s.RemoveConnector(ctx, "p1", "co1"); err != nil {
		t.Fatalf("RemoveConnector: %v", err)
	}
	if err := s.RemoveCredential(ctx, "p1", "cr1"); err != nil {
		t.Fatalf("RemoveCredential: %v", err)
	}
	if err := s.RemoveProject(ctx, "p1"); err != nil {
		t.Fatalf("RemoveProject: %v", err)
	}

	if _, err := s.GetProjectByID(ctx, "p1"); !storage.IsNotFound(err) {
		t.Fatalf("project should be gone, got %v", err)
	}
}

func TestRemoveProjectCascadesCredentialsAndTasks(t *testing.T) {
	s, _ := newFixture(t)
	ctx := context.Background()

	if err := s.CreateTask(ctx, domain.Task{
		ID:          "t1",
		ProjectID:   "p1",
		ConnectorID: "co1",
		Type:        "install",
		Running:     true,
	}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := s.RemoveConnector(ctx, "p1", "co1"); err != nil {
		t.Fatalf("RemoveConnector: %v", err)
	}
	if err := s.RemoveProject(ctx, "p1"); err != nil {
		t.Fatalf("RemoveProject: %v", err)
	}

	if _, err := s.GetCredentialByID(ctx, "p1", "cr1"); !storage.IsNotFound(err) {
		t.Fatalf("credential should be gone, got %v", err)
	}
	if _, err := s.GetTaskByID(ctx, "p1", "t1"); !storage.IsNotFound(err) {
		t.Fatalf("task should be gone, got %v", err)
	}
}

func TestProjectUserMembership(t *testing.T) {
	s, bus := newFixture(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, domain.User{
		ID:    "u2",
		Name:  "bob",
		Email: strptr("bob@example.com"),
	}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	ok, err := s.CanUserAccessProject(ctx, "p1", "u2")
	if err != nil {
		t.Fatalf("CanUserAccessProject: %v", err)
	}
	if ok {
		t.Fatal("u2 should not have access yet")
	}

	link := domain.ProjectUserLink{ProjectID: "p1", UserID: "u2"}
	if err := s.AddUserToProject(ctx, link); err != nil {
		t.Fatalf("AddUserToProject: %v", err)
	}

	ok, err = s.CanUserAccessProject(ctx, "p1", "u2")
	if err != nil {
		t.Fatalf("CanUserAccessProject: %v", err)
	}
	if !ok {
		t.Fatal("u2 should have access")
	}

	users, err := s.GetAllProjectUsersByID(ctx, "p1")
	if err != nil {
		t.Fatalf("GetAllProjectUsersByID: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}

	if err := s.RemoveUserFromProject(ctx, link); err != nil {
		t.Fatalf("RemoveUserFromProject: %v", err)
	}
	ok, _ = s.CanUserAccessProject(ctx, "p1", "u2")
	if ok {
		t.Fatal("u2 access should be revoked")
	}

	var added, removed bool
	for _, event := range bus.all() {
		switch event.Event.(type) {
		case domain.ProjectUserAddedEvent:
			added = true
		case domain.ProjectUserRemovedEvent:
			removed = true
		}
	}
	if !added || !removed {
		t.Fatalf("expected membership events, added=%v removed=%v", added, removed)
	}
}

func TestCanUserAccessMissingProject(t *testing.T) {
	s, _ := newFixture(t)

	ok, err := s.CanUserAccessProject(context.Background(), "ghost", "u1")
	if err != nil {
		t.Fatalf("CanUserAccessProject: %v", err)
	}
	if ok {
		t.Fatal("missing project must deny access without error")
	}
}

func TestGetAllProjectsForUserSortedByName(t *testing.T) {
	s, _ := newFixture(t)
	ctx := context.Background()

	for _, p := range []struct{ id, name, token string }{
		{"p3", "zeta", "tok-z"},
		{"p2", "alpha", "tok-a"},
	} {
		err := s.CreateProject(ctx, domain.ProjectCreate{
			UserID:  "u1",
			Token:   p.token,
			Project: domain.ProjectData{ID: p.id, Name: p.name},
		})
		if err != nil {
			t.Fatalf("CreateProject %s: %v", p.id, err)
		}
	}

	views, err := s.GetAllProjectsForUserID(ctx, "u1")
	if err != nil {
		t.Fatalf("GetAllProjectsForUserID: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("expected 3 projects, got %d", len(views))
	}
	if views[0].Name != "alpha" || views[1].Name != "website" || views[2].Name != "zeta" {
		t.Fatalf("unexpected order: %s, %s, %s", views[0].Name, views[1].Name, views[2].Name)
	}
}
