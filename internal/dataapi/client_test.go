package dataapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"examdesk/internal/model"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger := zerolog.New(io.Discard)
	return NewClient(Options{BaseURL: srv.URL + "/", APIKey: "secret"}, &logger), srv
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func TestListSchedules_Filter(t *testing.T) {
	var gotQuery string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/exam-schedules", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		gotQuery = r.URL.RawQuery
		writeData(w, http.StatusOK, []model.PersistedSlot{
			{ID: "p1", SubjectID: "math", ClassID: "c1", ExamDate: "2025-05-10", StartTime: "09:00", EndTime: "11:00"},
		})
	}))

	slots, err := client.ListSchedules(context.Background(), model.ScheduleFilter{ExamID: "e1", AcademicYearID: "y1"})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "p1", slots[0].ID)
	assert.Equal(t, "academic_year_id=y1&exam_id=e1", gotQuery)
}

func TestListSchedules_NormalizesSeconds(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, []model.PersistedSlot{
			{ID: "p1", SubjectID: "math", ClassID: "c1", ExamDate: "2025-05-10", StartTime: "09:00:00", EndTime: "10:30:00"},
		})
	}))

	slots, err := client.ListSchedules(context.Background(), model.ScheduleFilter{ExamID: "e1"})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "09:00", slots[0].StartTime)
	assert.Equal(t, "10:30", slots[0].EndTime)
}

func TestCreateSchedules(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))

		var p model.Payload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		created := make([]model.PersistedSlot, 0, len(p.Schedules))
		for i, item := range p.Schedules {
			created = append(created, model.PersistedSlot{
				ID:        string(rune('a' + i)),
				SubjectID: item.SubjectID,
				ClassID:   p.ClassID,
				ExamDate:  item.ExamDate,
				StartTime: item.StartTime,
				EndTime:   item.EndTime,
			})
		}
		writeData(w, http.StatusCreated, created)
	}))

	payload := model.Payload{ClassID: "c1", Schedules: []model.ScheduleDraftItem{
		{SubjectID: "math", ExamDate: "2025-05-10", StartTime: "09:00", EndTime: "11:00", ExamID: "e1", AcademicYearID: "y1"},
	}}
	created, err := client.CreateSchedules(context.Background(), payload)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "math", created[0].SubjectID)
	assert.Equal(t, "c1", created[0].ClassID)
}

func TestDeleteSchedule_NotFound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/exam-schedules/missing", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"schedule not found","detail":"id missing"}`))
	}))

	err := client.DeleteSchedule(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsConflict(err))

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "schedule not found", se.Message)
	assert.Equal(t, "http 404: schedule not found (id missing)", se.Error())
}

func TestDo_PlainTextError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))

	_, err := client.ListExams(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Status)
	assert.Equal(t, "bad gateway", se.Message)
}

func TestListSubjects_FillsClassID(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/classes/c%201/subjects", r.URL.EscapedPath())
		writeData(w, http.StatusOK, []model.Subject{{ID: "math", Name: "Math"}})
	}))

	subjects, err := client.ListSubjects(context.Background(), "c 1")
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	assert.Equal(t, "c 1", subjects[0].ClassID)
}

func TestReferenceListsUseRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	var examCalls, scheduleCalls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/exams":
			atomic.AddInt32(&examCalls, 1)
			writeData(w, http.StatusOK, []model.Exam{{ID: "e1", Name: "Final"}})
		case "/api/exam-schedules":
			atomic.AddInt32(&scheduleCalls, 1)
			writeData(w, http.StatusOK, []model.PersistedSlot{})
		default:
			http.NotFound(w, r)
		}
	}))
	client.UseRedisCache(rdb, time.Minute)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		exams, err := client.ListExams(ctx)
		require.NoError(t, err)
		require.Len(t, exams, 1)
		assert.Equal(t, "Final", exams[0].Name)

		_, err = client.ListSchedules(ctx, model.ScheduleFilter{ExamID: "e1"})
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&examCalls))
	assert.Equal(t, int32(3), atomic.LoadInt32(&scheduleCalls), "schedules must never be cached")
	assert.True(t, mr.Exists(cachePrefix+"exams"))
}

func TestHealthCheck(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	assert.NoError(t, client.HealthCheck(context.Background()))
}

func TestRateLimiterHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, []model.Exam{})
	}))
	t.Cleanup(srv.Close)
	client := NewClient(Options{BaseURL: srv.URL, RatePerSecond: 0.001, Burst: 1}, nil)

	_, err := client.ListExams(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = client.ListClasses(ctx)
	assert.Error(t, err)
}
