package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/insushim/iswvideoedit-sub000/internal/models"
)

type fakeJobStore struct {
	projects map[uuid.UUID]*models.Project
	jobs     map[uuid.UUID]*models.RenderJob
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		projects: make(map[uuid.UUID]*models.Project),
		jobs:     make(map[uuid.UUID]*models.RenderJob),
	}
}

func (s *fakeJobStore) GetProject(_ context.Context, id uuid.UUID) (*models.Project, error) {
	p, ok := s.projects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

func (s *fakeJobStore) SetProjectStatus(_ context.Context, id uuid.UUID, status models.ProjectStatus, _ string) error {
	if p, ok := s.projects[id]; ok {
		p.Status = status
	}
	return nil
}

func (s *fakeJobStore) CreateJob(_ context.Context, job *models.RenderJob) error {
	for _, existing := range s.jobs {
		if existing.ProjectID == job.ProjectID && !existing.Status.IsTerminal() {
			return models.ErrActiveJobExists
		}
	}
	job.Status = models.JobStatusPending
	s.jobs[job.ID] = job
	return nil
}

func (s *fakeJobStore) GetJob(_ context.Context, id uuid.UUID) (*models.RenderJob, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job not found")
	}
	return j, nil
}

func (s *fakeJobStore) GetActiveJob(_ context.Context, projectID uuid.UUID) (*models.RenderJob, error) {
	for _, j := range s.jobs {
		if j.ProjectID == projectID && !j.Status.IsTerminal() {
			return j, nil
		}
	}
	return nil, nil
}

func (s *fakeJobStore) GetProjectJobs(_ context.Context, projectID uuid.UUID) ([]models.RenderJob, error) {
	var out []models.RenderJob
	for _, j := range s.jobs {
		if j.ProjectID == projectID {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (s *fakeJobStore) CancelJob(_ context.Context, id uuid.UUID) (*models.RenderJob, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job not found")
	}
	switch j.Status {
	case models.JobStatusCompleted:
		return j, models.ErrJobCompleted
	case models.JobStatusFailed:
		return j, models.ErrJobCancelled
	}
	reason := models.CancelReason
	j.Status = models.JobStatusFailed
	j.Error = &reason
	j.CancelRequested = true
	return j, nil
}

func (s *fakeJobStore) UpdateJobProgress(_ context.Context, id uuid.UUID, progress int) error {
	if j, ok := s.jobs[id]; ok && j.Status == models.JobStatusProcessing && progress > j.Progress {
		j.Progress = progress
	}
	return nil
}

func (s *fakeJobStore) CompleteJob(_ context.Context, id uuid.UUID, outputURL string) error {
	j, ok := s.jobs[id]
	if !ok || j.Status != models.JobStatusProcessing {
		return fmt.Errorf("job not in processing state")
	}
	j.Status = models.JobStatusCompleted
	j.Progress = 100
	j.OutputURL = &outputURL
	return nil
}

func (s *fakeJobStore) FailJob(_ context.Context, id uuid.UUID, message string) (bool, error) {
	if j, ok := s.jobs[id]; ok && !j.Status.IsTerminal() {
		j.Status = models.JobStatusFailed
		j.Error = &message
		return true, nil
	}
	return false, nil
}

type fakeEnqueuer struct {
	enqueued int
	depth    int64
}

func (q *fakeEnqueuer) Enqueue(context.Context, uuid.UUID, uuid.UUID) error {
	q.enqueued++
	q.depth++
	return nil
}

func (q *fakeEnqueuer) Len(context.Context) (int64, error) { return q.depth, nil }

func seedProject(store *fakeJobStore) *models.Project {
	p := &models.Project{
		ID:      uuid.New(),
		Title:   "anniversary",
		ThemeID: "classic",
		Status:  models.ProjectStatusDraft,
		Timeline: models.Timeline{
			Tracks: []models.Track{
				{
					Type: models.TrackPhoto,
					Clips: []models.Clip{
						{StartTime: 0, EndTime: 4, ResourceID: "photos/a.jpg"},
					},
				},
			},
		},
	}
	store.projects[p.ID] = p
	return p
}

func newTestServer(store *fakeJobStore, q *fakeEnqueuer, cfg RouterConfig) *httptest.Server {
	return httptest.NewServer(NewRouter(NewHandler(store, q), cfg))
}

func renderBody(projectID uuid.UUID) *bytes.Buffer {
	body, _ := json.Marshal(models.CreateRenderRequest{
		ProjectID: projectID,
		Settings: models.RenderSettings{
			Resolution: models.Resolution1080p,
			Format:     models.FormatMP4,
			Quality:    models.QualityStandard,
		},
	})
	return bytes.NewBuffer(body)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestCreateRender(t *testing.T) {
	store := newFakeJobStore()
	q := &fakeEnqueuer{}
	project := seedProject(store)
	srv := newTestServer(store, q, RouterConfig{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/render", "application/json", renderBody(project.ID))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	created := decode[models.CreateRenderResponse](t, resp)
	if created.JobID == uuid.Nil {
		t.Error("response missing job id")
	}
	if q.enqueued != 1 {
		t.Errorf("enqueued = %d, want 1", q.enqueued)
	}
	if store.projects[project.ID].Status != models.ProjectStatusProcessing {
		t.Errorf("project status = %s, want processing", store.projects[project.ID].Status)
	}
}

func TestCreateRenderDeduplicates(t *testing.T) {
	store := newFakeJobStore()
	q := &fakeEnqueuer{}
	project := seedProject(store)
	srv := newTestServer(store, q, RouterConfig{})
	defer srv.Close()

	first, err := http.Post(srv.URL+"/v1/render", "application/json", renderBody(project.ID))
	if err != nil {
		t.Fatal(err)
	}
	firstJob := decode[models.CreateRenderResponse](t, first)
	first.Body.Close()

	second, err := http.Post(srv.URL+"/v1/render", "application/json", renderBody(project.ID))
	if err != nil {
		t.Fatal(err)
	}
	defer second.Body.Close()

	if second.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", second.StatusCode)
	}
	dup := decode[models.CreateRenderResponse](t, second)
	if dup.JobID != firstJob.JobID {
		t.Errorf("duplicate must return the existing job id %s, got %s", firstJob.JobID, dup.JobID)
	}
	if q.enqueued != 1 {
		t.Errorf("enqueued = %d, want 1", q.enqueued)
	}
}

func TestCreateRenderRejectsBadSettings(t *testing.T) {
	store := newFakeJobStore()
	project := seedProject(store)
	srv := newTestServer(store, &fakeEnqueuer{}, RouterConfig{})
	defer srv.Close()

	body, _ := json.Marshal(models.CreateRenderRequest{
		ProjectID: project.ID,
		Settings:  models.RenderSettings{Resolution: "8k", Format: models.FormatMP4, Quality: models.QualityHigh},
	})
	resp, err := http.Post(srv.URL+"/v1/render", "application/json", bytes.NewBuffer(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateRenderUnknownProject(t *testing.T) {
	srv := newTestServer(newFakeJobStore(), &fakeEnqueuer{}, RouterConfig{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/render", "application/json", renderBody(uuid.New()))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGetJobPolling(t *testing.T) {
	store := newFakeJobStore()
	project := seedProject(store)
	job := &models.RenderJob{
		ID:        uuid.New(),
		ProjectID: project.ID,
		Status:    models.JobStatusProcessing,
		Progress:  42,
	}
	store.jobs[job.ID] = job
	srv := newTestServer(store, &fakeEnqueuer{}, RouterConfig{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/jobs/" + job.ID.String())
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	status := decode[models.JobStatusResponse](t, resp)
	if status.Progress != 42 || status.Status != models.JobStatusProcessing {
		t.Errorf("unexpected status payload: %+v", status)
	}

	missing, err := http.Get(srv.URL + "/v1/jobs/" + uuid.NewString())
	if err != nil {
		t.Fatal(err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("missing job status = %d, want 404", missing.StatusCode)
	}
}

func TestCancelRunningJob(t *testing.T) {
	store := newFakeJobStore()
	project := seedProject(store)
	project.Status = models.ProjectStatusProcessing
	job := &models.RenderJob{ID: uuid.New(), ProjectID: project.ID, Status: models.JobStatusProcessing}
	store.jobs[job.ID] = job
	srv := newTestServer(store, &fakeEnqueuer{}, RouterConfig{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/jobs/"+job.ID.String()+"/cancel", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	status := decode[models.JobStatusResponse](t, resp)
	if status.Status != models.JobStatusFailed {
		t.Errorf("job status = %s, want failed", status.Status)
	}
	if status.Error == nil || *status.Error != models.CancelReason {
		t.Errorf("error = %v, want %q", status.Error, models.CancelReason)
	}
	if project.Status != models.ProjectStatusDraft {
		t.Errorf("project status = %s, want draft", project.Status)
	}
}

func TestCancelCompletedJobConflicts(t *testing.T) {
	store := newFakeJobStore()
	project := seedProject(store)
	url := "https://cdn.example.com/renders/x.mp4"
	job := &models.RenderJob{ID: uuid.New(), ProjectID: project.ID, Status: models.JobStatusCompleted, OutputURL: &url}
	store.jobs[job.ID] = job
	srv := newTestServer(store, &fakeEnqueuer{}, RouterConfig{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/jobs/"+job.ID.String()+"/cancel", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
	if job.Status != models.JobStatusCompleted || job.OutputURL == nil {
		t.Error("completed job must keep its result")
	}
}

func TestWorkerChannelAuth(t *testing.T) {
	store := newFakeJobStore()
	project := seedProject(store)
	job := &models.RenderJob{ID: uuid.New(), ProjectID: project.ID, Status: models.JobStatusProcessing}
	store.jobs[job.ID] = job
	srv := newTestServer(store, &fakeEnqueuer{}, RouterConfig{WorkerSharedSecret: "s3cret"})
	defer srv.Close()

	progressURL := srv.URL + "/internal/v1/jobs/" + job.ID.String() + "/progress"
	body := func() *bytes.Buffer {
		b, _ := json.Marshal(models.ProgressUpdateRequest{Progress: 55})
		return bytes.NewBuffer(b)
	}

	// no secret
	resp, err := http.Post(progressURL, "application/json", body())
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no secret status = %d, want 401", resp.StatusCode)
	}

	// wrong secret
	req, _ := http.NewRequest("POST", progressURL, body())
	req.Header.Set("X-Worker-Secret", "wrong")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("wrong secret status = %d, want 403", resp.StatusCode)
	}

	// correct secret
	req, _ = http.NewRequest("POST", progressURL, body())
	req.Header.Set("X-Worker-Secret", "s3cret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("correct secret status = %d, want 200", resp.StatusCode)
	}
	if job.Progress != 55 {
		t.Errorf("progress = %d, want 55", job.Progress)
	}
}

func TestHealthReportsQueueDepth(t *testing.T) {
	srv := newTestServer(newFakeJobStore(), &fakeEnqueuer{depth: 7}, RouterConfig{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	payload := decode[map[string]interface{}](t, resp)
	if payload["status"] != "ok" {
		t.Errorf("status = %v", payload["status"])
	}
	if depth, ok := payload["queueDepth"].(float64); !ok || depth != 7 {
		t.Errorf("queueDepth = %v, want 7", payload["queueDepth"])
	}
}
