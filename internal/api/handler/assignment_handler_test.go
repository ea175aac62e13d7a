package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propfix/propfix-be/internal/api/dto"
	"github.com/propfix/propfix-be/internal/api/storage"
	"github.com/propfix/propfix-be/internal/assignment"
	"github.com/propfix/propfix-be/internal/session"
)

// fakeAssignmentStore is an in-memory AssignmentStore. ApplyTransition
// re-plans the action against the stored row under the lock, mirroring the
// conditional UPDATE so concurrent calls race exactly like they do in SQL.
type fakeAssignmentStore struct {
	mu          sync.Mutex
	assignments map[string]*assignment.Assignment
	events      []assignment.Event
	assignable  map[string]bool
}

func newFakeAssignmentStore() *fakeAssignmentStore {
	return &fakeAssignmentStore{
		assignments: make(map[string]*assignment.Assignment),
		assignable:  make(map[string]bool),
	}
}

func (f *fakeAssignmentStore) put(a assignment.Assignment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignments[a.AssignmentID] = &a
}

func (f *fakeAssignmentStore) CreateAssignment(_ context.Context, a *assignment.Assignment) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.assignable[a.ServiceRequestID] {
		return assignment.ErrRequestNotAssignable
	}
	f.assignable[a.ServiceRequestID] = false

	stored := *a
	f.assignments[a.AssignmentID] = &stored
	return nil
}

func (f *fakeAssignmentStore) GetAssignment(_ context.Context, assignmentID, traderID string) (*assignment.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.assignments[assignmentID]
	if !ok || (traderID != "" && a.TraderID != traderID) {
		return nil, assignment.ErrNotFound
	}

	copied := *a
	return &copied, nil
}

func (f *fakeAssignmentStore) ApplyTransition(_ context.Context, assignmentID, traderID string, t *assignment.Transition) (*assignment.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.assignments[assignmentID]
	if !ok || a.TraderID != traderID {
		return nil, assignment.ErrNotFound
	}

	// Re-check under the lock against the row as it is now, not as the
	// caller last saw it.
	if _, err := assignment.Plan(a, t.Action, t.Reason, t.OccurredAt); err != nil {
		return nil, err
	}

	assignment.Apply(a, t)
	copied := *a
	return &copied, nil
}

func (f *fakeAssignmentStore) ListAssignments(_ context.Context, filter storage.AssignmentFilter) ([]assignment.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if filter.Status != "" {
		switch filter.Status {
		case assignment.StatusPending, assignment.StatusAccepted, assignment.StatusInProgress,
			assignment.StatusCompleted, assignment.StatusRejected:
		default:
			return nil, &assignment.ValidationError{Field: "status", Reason: "unknown status label"}
		}
	}

	var out []assignment.Assignment
	for _, a := range f.assignments {
		if filter.TraderID != "" && a.TraderID != filter.TraderID {
			continue
		}
		if filter.ServiceRequestID != "" && a.ServiceRequestID != filter.ServiceRequestID {
			continue
		}
		if filter.Status != "" && a.Status() != filter.Status {
			continue
		}
		out = append(out, *a)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].AssignmentID > out[j].AssignmentID
	})

	if filter.Cursor != nil {
		var after []assignment.Assignment
		for _, a := range out {
			if a.CreatedAt.Before(filter.Cursor.CreatedAt) ||
				(a.CreatedAt.Equal(filter.Cursor.CreatedAt) && a.AssignmentID < filter.Cursor.AssignmentID) {
				after = append(after, a)
			}
		}
		out = after
	}

	if len(out) > filter.PageSize+1 {
		out = out[:filter.PageSize+1]
	}
	return out, nil
}

func (f *fakeAssignmentStore) AppendEvent(_ context.Context, ev assignment.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeAssignmentStore) eventActions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	actions := make([]string, len(f.events))
	for i, ev := range f.events {
		actions[i] = string(ev.Action)
	}
	return actions
}

// fakePublisher records published event bodies.
type fakePublisher struct {
	mu     sync.Mutex
	bodies [][]byte
}

func (f *fakePublisher) PublishWithRetry(_ context.Context, body []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies = append(f.bodies, body)
	return nil
}

func (f *fakePublisher) published() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bodies)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAssignmentRouter(store *fakeAssignmentStore, pub *fakePublisher, actorID, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)

	h := NewAssignmentHandler(&Dependencies{
		Logger:      discardLogger(),
		Assignments: store,
		Publisher:   pub,
	})

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(ContextActorID, actorID)
		c.Set(ContextActorRole, role)
	})
	r.POST("/assignments", h.CreateAssignment)
	r.GET("/assignments", h.ListAssignments)
	r.GET("/assignments/:assignment_id", h.GetAssignment)
	r.POST("/assignments/:assignment_id/accept", h.AcceptAssignment)
	r.POST("/assignments/:assignment_id/reject", h.RejectAssignment)
	r.POST("/assignments/:assignment_id/start", h.StartAssignment)
	r.POST("/assignments/:assignment_id/complete", h.CompleteAssignment)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func pendingAssignment(traderID string) assignment.Assignment {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return assignment.Assignment{
		AssignmentID:     uuid.New().String(),
		ServiceRequestID: uuid.New().String(),
		TraderID:         traderID,
		AssignedAt:       now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestCreateAssignment(t *testing.T) {
	t.Run("assigns trader to pending request", func(t *testing.T) {
		store := newFakeAssignmentStore()
		pub := &fakePublisher{}
		requestID := uuid.New().String()
		traderID := uuid.New().String()
		store.assignable[requestID] = true

		r := newAssignmentRouter(store, pub, uuid.New().String(), session.RoleOwner)
		w := doJSON(t, r, http.MethodPost, "/assignments", dto.CreateAssignmentRequest{
			ServiceRequestID: requestID,
			TraderID:         traderID,
		})

		require.Equal(t, http.StatusCreated, w.Code)

		var resp dto.AssignmentDTO
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, requestID, resp.ServiceRequestID)
		assert.Equal(t, traderID, resp.TraderID)
		assert.Equal(t, "pending", resp.Status)
		assert.Nil(t, resp.AcceptedAt)

		assert.Equal(t, []string{"assigned"}, store.eventActions())
		assert.Equal(t, 1, pub.published())
	})

	t.Run("conflict when request is not assignable", func(t *testing.T) {
		store := newFakeAssignmentStore()
		pub := &fakePublisher{}

		r := newAssignmentRouter(store, pub, uuid.New().String(), session.RoleOwner)
		w := doJSON(t, r, http.MethodPost, "/assignments", dto.CreateAssignmentRequest{
			ServiceRequestID: uuid.New().String(),
			TraderID:         uuid.New().String(),
		})

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Empty(t, store.eventActions())
		assert.Equal(t, 0, pub.published())
	})

	t.Run("rejects malformed identifiers", func(t *testing.T) {
		store := newFakeAssignmentStore()
		r := newAssignmentRouter(store, &fakePublisher{}, uuid.New().String(), session.RoleOwner)

		w := doJSON(t, r, http.MethodPost, "/assignments", dto.CreateAssignmentRequest{
			ServiceRequestID: "not-a-uuid",
			TraderID:         uuid.New().String(),
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAcceptAssignment(t *testing.T) {
	traderID := uuid.New().String()
	store := newFakeAssignmentStore()
	pub := &fakePublisher{}
	a := pendingAssignment(traderID)
	store.put(a)

	r := newAssignmentRouter(store, pub, traderID, session.RoleTrader)
	w := doJSON(t, r, http.MethodPost, "/assignments/"+a.AssignmentID+"/accept", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.AssignmentDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp.Status)
	assert.NotNil(t, resp.AcceptedAt)

	assert.Equal(t, []string{"accepted"}, store.eventActions())
	assert.Equal(t, 1, pub.published())
}

func TestRejectAssignment(t *testing.T) {
	t.Run("requires a reason", func(t *testing.T) {
		traderID := uuid.New().String()
		store := newFakeAssignmentStore()
		a := pendingAssignment(traderID)
		store.put(a)

		r := newAssignmentRouter(store, &fakePublisher{}, traderID, session.RoleTrader)

		for _, body := range []interface{}{nil, dto.RejectAssignmentRequest{Reason: "   "}} {
			w := doJSON(t, r, http.MethodPost, "/assignments/"+a.AssignmentID+"/reject", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		}
		assert.Empty(t, store.eventActions())
	})

	t.Run("records the trimmed reason", func(t *testing.T) {
		traderID := uuid.New().String()
		store := newFakeAssignmentStore()
		pub := &fakePublisher{}
		a := pendingAssignment(traderID)
		store.put(a)

		r := newAssignmentRouter(store, pub, traderID, session.RoleTrader)
		w := doJSON(t, r, http.MethodPost, "/assignments/"+a.AssignmentID+"/reject",
			dto.RejectAssignmentRequest{Reason: "  fully booked this month  "})

		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.AssignmentDTO
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "rejected", resp.Status)
		assert.Equal(t, "fully booked this month", resp.RejectionReason)
		assert.NotNil(t, resp.RejectedAt)

		assert.Equal(t, []string{"rejected"}, store.eventActions())
	})
}

func TestTransitionIllegalState(t *testing.T) {
	traderID := uuid.New().String()
	store := newFakeAssignmentStore()
	a := pendingAssignment(traderID)
	store.put(a)

	r := newAssignmentRouter(store, &fakePublisher{}, traderID, session.RoleTrader)

	// start is only legal from accepted
	w := doJSON(t, r, http.MethodPost, "/assignments/"+a.AssignmentID+"/start", nil)
	require.Equal(t, http.StatusConflict, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp["current_status"])
}

func TestTransitionNotFound(t *testing.T) {
	traderID := uuid.New().String()
	store := newFakeAssignmentStore()

	t.Run("unknown assignment", func(t *testing.T) {
		r := newAssignmentRouter(store, &fakePublisher{}, traderID, session.RoleTrader)
		w := doJSON(t, r, http.MethodPost, "/assignments/"+uuid.New().String()+"/accept", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("another trader's assignment", func(t *testing.T) {
		a := pendingAssignment(uuid.New().String())
		store.put(a)

		r := newAssignmentRouter(store, &fakePublisher{}, traderID, session.RoleTrader)
		w := doJSON(t, r, http.MethodPost, "/assignments/"+a.AssignmentID+"/accept", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed assignment id", func(t *testing.T) {
		r := newAssignmentRouter(store, &fakePublisher{}, traderID, session.RoleTrader)
		w := doJSON(t, r, http.MethodPost, "/assignments/not-a-uuid/accept", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestConcurrentAccept(t *testing.T) {
	traderID := uuid.New().String()
	store := newFakeAssignmentStore()
	pub := &fakePublisher{}
	a := pendingAssignment(traderID)
	store.put(a)

	r := newAssignmentRouter(store, pub, traderID, session.RoleTrader)

	const calls = 2
	codes := make(chan int, calls)
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/assignments/"+a.AssignmentID+"/accept", nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			codes <- w.Code
		}()
	}
	wg.Wait()
	close(codes)

	counts := map[int]int{}
	for code := range codes {
		counts[code]++
	}

	assert.Equal(t, 1, counts[http.StatusOK], "exactly one accept must win")
	assert.Equal(t, 1, counts[http.StatusConflict], "the loser must see a conflict")
	assert.Equal(t, []string{"accepted"}, store.eventActions())
}

func TestFullLifecycle(t *testing.T) {
	traderID := uuid.New().String()
	store := newFakeAssignmentStore()
	pub := &fakePublisher{}
	a := pendingAssignment(traderID)
	store.put(a)

	r := newAssignmentRouter(store, pub, traderID, session.RoleTrader)

	for _, step := range []struct {
		action string
		status string
	}{
		{"accept", "accepted"},
		{"start", "in_progress"},
		{"complete", "completed"},
	} {
		w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/assignments/%s/%s", a.AssignmentID, step.action), nil)
		require.Equal(t, http.StatusOK, w.Code, step.action)

		var resp dto.AssignmentDTO
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, step.status, resp.Status)
	}

	// Completed is terminal.
	w := doJSON(t, r, http.MethodPost, "/assignments/"+a.AssignmentID+"/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	assert.Equal(t, []string{"accepted", "started", "completed"}, store.eventActions())
	assert.Equal(t, 3, pub.published())
}

func TestGetAssignmentVisibility(t *testing.T) {
	traderID := uuid.New().String()
	store := newFakeAssignmentStore()
	a := pendingAssignment(traderID)
	store.put(a)

	t.Run("trader sees own assignment", func(t *testing.T) {
		r := newAssignmentRouter(store, &fakePublisher{}, traderID, session.RoleTrader)
		w := doJSON(t, r, http.MethodGet, "/assignments/"+a.AssignmentID, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("trader cannot see foreign assignment", func(t *testing.T) {
		r := newAssignmentRouter(store, &fakePublisher{}, uuid.New().String(), session.RoleTrader)
		w := doJSON(t, r, http.MethodGet, "/assignments/"+a.AssignmentID, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("owner sees any assignment", func(t *testing.T) {
		r := newAssignmentRouter(store, &fakePublisher{}, uuid.New().String(), session.RoleOwner)
		w := doJSON(t, r, http.MethodGet, "/assignments/"+a.AssignmentID, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestListAssignments(t *testing.T) {
	traderID := uuid.New().String()
	store := newFakeAssignmentStore()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		a := pendingAssignment(traderID)
		a.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		store.put(a)
	}
	foreign := pendingAssignment(uuid.New().String())
	foreign.CreatedAt = base.Add(time.Hour)
	store.put(foreign)

	t.Run("trader is scoped to own rows", func(t *testing.T) {
		r := newAssignmentRouter(store, &fakePublisher{}, traderID, session.RoleTrader)
		w := doJSON(t, r, http.MethodGet, "/assignments", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.ListAssignmentsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Assignments, 5)
		for _, item := range resp.Assignments {
			assert.Equal(t, traderID, item.TraderID)
		}
	})

	t.Run("admin sees everything", func(t *testing.T) {
		r := newAssignmentRouter(store, &fakePublisher{}, uuid.New().String(), session.RoleAdmin)
		w := doJSON(t, r, http.MethodGet, "/assignments", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.ListAssignmentsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Assignments, 6)
	})

	t.Run("cursor pagination walks the full set", func(t *testing.T) {
		r := newAssignmentRouter(store, &fakePublisher{}, traderID, session.RoleTrader)

		w := doJSON(t, r, http.MethodGet, "/assignments?page_size=2", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var first dto.ListAssignmentsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
		require.Len(t, first.Assignments, 2)
		require.NotEmpty(t, first.NextCursor)

		seen := map[string]bool{}
		for _, item := range first.Assignments {
			seen[item.AssignmentID] = true
		}

		cursor := first.NextCursor
		for cursor != "" {
			w = doJSON(t, r, http.MethodGet, "/assignments?page_size=2&cursor="+cursor, nil)
			require.Equal(t, http.StatusOK, w.Code)

			var page dto.ListAssignmentsResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
			for _, item := range page.Assignments {
				assert.False(t, seen[item.AssignmentID], "no row may repeat across pages")
				seen[item.AssignmentID] = true
			}
			cursor = page.NextCursor
		}

		assert.Len(t, seen, 5)
	})

	t.Run("rejects a garbage cursor", func(t *testing.T) {
		r := newAssignmentRouter(store, &fakePublisher{}, traderID, session.RoleTrader)
		w := doJSON(t, r, http.MethodGet, "/assignments?cursor=%21%21%21", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects an unknown status label", func(t *testing.T) {
		r := newAssignmentRouter(store, &fakePublisher{}, traderID, session.RoleTrader)
		w := doJSON(t, r, http.MethodGet, "/assignments?status=bogus", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
