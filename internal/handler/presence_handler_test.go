package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"presence-service/internal/config"
	"presence-service/internal/domain"
	"presence-service/internal/repository"
	"presence-service/internal/service"
)

func setupHandlerTest(t *testing.T) (*gin.Engine, *repository.PresenceRepository) {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)

	db.Exec(`CREATE TABLE user_presences (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		trip_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'ONLINE',
		editing_item_id TEXT,
		last_active DATETIME NOT NULL,
		name TEXT,
		avatar_url TEXT,
		email TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE(user_id, trip_id)
	)`)

	repo := repository.NewPresenceRepository(db)
	svc := service.NewPresenceService(&config.Config{}, repo, nil, zap.NewNop())
	h := NewPresenceHandler(svc, zap.NewNop())

	r := gin.New()
	r.GET("/trips/:tripId/active", h.GetActiveUsers)
	r.GET("/trips/:tripId/status/:userId", h.GetUserStatus)
	return r, repo
}

func TestGetActiveUsers(t *testing.T) {
	r, repo := setupHandlerTest(t)

	tripID := uuid.New()
	_, err := repo.Upsert(context.Background(), &domain.UserPresence{
		UserID:     uuid.New(),
		TripID:     tripID,
		Status:     domain.PresenceStatusOnline,
		LastActive: time.Now(),
		Name:       "Alice",
	})
	require.NoError(t, err)
	_, err = repo.Upsert(context.Background(), &domain.UserPresence{
		UserID:     uuid.New(),
		TripID:     tripID,
		Status:     domain.PresenceStatusOffline,
		LastActive: time.Now(),
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/trips/"+tripID.String()+"/active", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var presences []domain.UserPresence
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &presences))
	require.Len(t, presences, 1)
	assert.Equal(t, "Alice", presences[0].Name)
}

func TestGetActiveUsersInvalidTripID(t *testing.T) {
	r, _ := setupHandlerTest(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/trips/not-a-uuid/active", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "BAD_REQUEST")
}

func TestGetUserStatus(t *testing.T) {
	r, repo := setupHandlerTest(t)

	tripID := uuid.New()
	userID := uuid.New()
	_, err := repo.Upsert(context.Background(), &domain.UserPresence{
		UserID:     userID,
		TripID:     tripID,
		Status:     domain.PresenceStatusEditing,
		LastActive: time.Now(),
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/trips/"+tripID.String()+"/status/"+userID.String(), nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var presence domain.UserPresence
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &presence))
	assert.Equal(t, domain.PresenceStatusEditing, presence.Status)
}

func TestGetUserStatusNotFound(t *testing.T) {
	r, _ := setupHandlerTest(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/trips/"+uuid.New().String()+"/status/"+uuid.New().String(), nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}
