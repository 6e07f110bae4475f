package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tripchat/internal/mocks"
	"tripchat/internal/models"
	"tripchat/internal/repositories"
)

func setupNotificationRouter(handler *NotificationHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", int64(1))
		c.Next()
	})
	r.GET("/notifications", handler.List)
	r.PUT("/notifications/:id/read", handler.MarkRead)
	r.PUT("/notifications/read-all", handler.MarkAllRead)
	r.DELETE("/notifications/:id", handler.Delete)
	r.POST("/internal/notifications", handler.CreateInternal)
	return r
}

func TestListNotificationsSuccess(t *testing.T) {
	notificationRepo := new(mocks.NotificationRepositoryMock)
	handler := NewNotificationHandler(notificationRepo, nil, "svc")
	router := setupNotificationRouter(handler)

	unread := false
	notificationRepo.On("ListForRecipient", mock.Anything, int64(1),
		repositories.NotificationListOptions{IsRead: &unread, Page: 2, Size: 10, Ascending: false}).
		Return([]models.Notification{{ID: 3, RecipientID: 1, Type: models.NotificationNewBooking}}, int64(21), nil).Once()
	notificationRepo.On("UnreadCount", mock.Anything, int64(1)).Return(int64(4), nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/notifications?isRead=false&page=2&size=10&sort=createdAt,desc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "21", string(resp["total"]))
	assert.Equal(t, "4", string(resp["unread_count"]))
	assert.Equal(t, "2", string(resp["page"]))

	notificationRepo.AssertExpectations(t)
}

func TestListNotificationsEmptyIsArray(t *testing.T) {
	notificationRepo := new(mocks.NotificationRepositoryMock)
	handler := NewNotificationHandler(notificationRepo, nil, "svc")
	router := setupNotificationRouter(handler)

	notificationRepo.On("ListForRecipient", mock.Anything, int64(1), mock.Anything).
		Return(nil, int64(0), nil).Once()
	notificationRepo.On("UnreadCount", mock.Anything, int64(1)).Return(int64(0), nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"notifications":[]`)
}

func TestListNotificationsInvalidIsRead(t *testing.T) {
	notificationRepo := new(mocks.NotificationRepositoryMock)
	handler := NewNotificationHandler(notificationRepo, nil, "svc")
	router := setupNotificationRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/notifications?isRead=maybe", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListNotificationsRepoError(t *testing.T) {
	notificationRepo := new(mocks.NotificationRepositoryMock)
	handler := NewNotificationHandler(notificationRepo, nil, "svc")
	router := setupNotificationRouter(handler)

	notificationRepo.On("ListForRecipient", mock.Anything, int64(1), mock.Anything).
		Return(nil, int64(0), errors.New("db down")).Once()

	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMarkNotificationReadSuccess(t *testing.T) {
	notificationRepo := new(mocks.NotificationRepositoryMock)
	handler := NewNotificationHandler(notificationRepo, nil, "svc")
	router := setupNotificationRouter(handler)

	notificationRepo.On("MarkRead", mock.Anything, int64(7), int64(1)).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPut, "/notifications/7/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	notificationRepo.AssertExpectations(t)
}

func TestMarkNotificationReadNotFound(t *testing.T) {
	notificationRepo := new(mocks.NotificationRepositoryMock)
	handler := NewNotificationHandler(notificationRepo, nil, "svc")
	router := setupNotificationRouter(handler)

	notificationRepo.On("MarkRead", mock.Anything, int64(7), int64(1)).
		Return(repositories.ErrNotificationNotFound).Once()

	req := httptest.NewRequest(http.MethodPut, "/notifications/7/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMarkAllNotificationsRead(t *testing.T) {
	notificationRepo := new(mocks.NotificationRepositoryMock)
	handler := NewNotificationHandler(notificationRepo, nil, "svc")
	router := setupNotificationRouter(handler)

	notificationRepo.On("MarkAllRead", mock.Anything, int64(1)).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPut, "/notifications/read-all", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	notificationRepo.AssertExpectations(t)
}

func TestDeleteNotificationNotFound(t *testing.T) {
	notificationRepo := new(mocks.NotificationRepositoryMock)
	handler := NewNotificationHandler(notificationRepo, nil, "svc")
	router := setupNotificationRouter(handler)

	notificationRepo.On("DeleteNotification", mock.Anything, int64(7), int64(1)).
		Return(repositories.ErrNotificationNotFound).Once()

	req := httptest.NewRequest(http.MethodDelete, "/notifications/7", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateInternalNotificationSuccess(t *testing.T) {
	notificationRepo := new(mocks.NotificationRepositoryMock)
	handler := NewNotificationHandler(notificationRepo, nil, "svc")
	router := setupNotificationRouter(handler)

	notificationRepo.On("CreateNotification", mock.Anything, models.Notification{
		RecipientID: 2,
		ActorID:     1,
		Type:        models.NotificationNewBooking,
		TargetType:  "booking",
		TargetID:    "55",
	}).Return(models.Notification{ID: 12, RecipientID: 2, ActorID: 1, Type: models.NotificationNewBooking}, nil).Once()

	body, _ := json.Marshal(map[string]interface{}{
		"recipientId": 2,
		"actorId":     1,
		"type":        "new-booking",
		"targetType":  "booking",
		"targetId":    "55",
	})
	req := httptest.NewRequest(http.MethodPost, "/internal/notifications", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", "svc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Notification
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, int64(12), created.ID)

	notificationRepo.AssertExpectations(t)
}

func TestCreateInternalNotificationBadToken(t *testing.T) {
	notificationRepo := new(mocks.NotificationRepositoryMock)
	handler := NewNotificationHandler(notificationRepo, nil, "svc")
	router := setupNotificationRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/internal/notifications", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", "wrong")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	notificationRepo.AssertNotCalled(t, "CreateNotification", mock.Anything, mock.Anything)
}

func TestCreateInternalNotificationUnknownType(t *testing.T) {
	notificationRepo := new(mocks.NotificationRepositoryMock)
	handler := NewNotificationHandler(notificationRepo, nil, "svc")
	router := setupNotificationRouter(handler)

	body, _ := json.Marshal(map[string]interface{}{
		"recipientId": 2,
		"actorId":     1,
		"type":        "friend-poke",
		"targetType":  "post",
		"targetId":    "1",
	})
	req := httptest.NewRequest(http.MethodPost, "/internal/notifications", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", "svc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
