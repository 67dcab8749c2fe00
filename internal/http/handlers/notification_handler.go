// Notification HTTP handlers.
//
// This file exposes the per-user notification feed:
//   - GET    /notifications/user/{user_id}            (list, skip/limit/is_read, ETag)
//   - GET    /notifications/user/{user_id}/count      (unread counter)
//   - GET    /notifications/user/{user_id}/{id}       (single notification)
//   - PATCH  /notifications/user/{user_id}/{id}/read  (mark one read)
//   - PATCH  /notifications/user/{user_id}/read-all   (mark all read)
//   - DELETE /notifications/user/{user_id}/{id}       (delete)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-community-messaging/internal/domain"
	"github.com/tbourn/go-community-messaging/internal/repo"
	"github.com/tbourn/go-community-messaging/internal/services"
	"github.com/tbourn/go-community-messaging/internal/utils"
)

// defaultFeedLimit applies when limit is absent; the service enforces the cap.
const defaultFeedLimit = 50

// ListNotificationsResponse wraps a feed window.
type ListNotificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
}

// UnreadCountResponse is the unread counter.
type UnreadCountResponse struct {
	UnreadCount int64 `json:"unread_count" example:"3"`
}

// MarkAllReadResponse reports how many notifications flipped to read.
type MarkAllReadResponse struct {
	MarkedRead int64 `json:"marked_read" example:"3"`
}

// ListNotifications godoc
// @ID          listNotifications
// @Summary     List notifications
// @Description Returns a window of the user's notifications, newest first.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Notifications
// @Produce     json
//
// @Param       user_id        path    string  true  "User"                        example(user-1)
// @Param       skip           query   int     false "Offset"                      minimum(0) default(0)
// @Param       limit          query   int     false "Window size"                 minimum(1) maximum(200) default(50)
// @Param       is_read        query   bool    false "Filter by read state"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
//
// @Success     200  {object}  handlers.ListNotificationsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse "Acting user mismatch"
// @Failure     404  {object}  handlers.ErrorResponse "User not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /notifications/user/{user_id} [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	uid, okUser := actingUser(c, c.Param("user_id"))
	if !okUser {
		return
	}
	isRead, err := utils.ParseOptionalBool(c.Query("is_read"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "is_read must be a boolean")
		return
	}
	skip, limit := utils.Window(c.Query("skip"), c.Query("limit"), defaultFeedLimit, 0)

	if h.notModified(c, "notifications", uid, repo.NotificationsStats) {
		return
	}

	items, err := h.notes.List(c.Request.Context(), services.ListInput{
		UserID: uid,
		Skip:   skip,
		Limit:  limit,
		IsRead: isRead,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListNotificationsResponse{Notifications: items})
}

// CountUnreadNotifications godoc
// @ID          countUnreadNotifications
// @Summary     Count unread notifications
// @Tags        Notifications
// @Produce     json
// @Param       user_id  path  string  true  "User"  example(user-1)
// @Success     200  {object}  handlers.UnreadCountResponse
// @Failure     403  {object}  handlers.ErrorResponse "Acting user mismatch"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /notifications/user/{user_id}/count [get]
func (h *Handlers) CountUnreadNotifications(c *gin.Context) {
	uid, okUser := actingUser(c, c.Param("user_id"))
	if !okUser {
		return
	}
	n, err := h.notes.CountUnread(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, UnreadCountResponse{UnreadCount: n})
}

// GetNotification godoc
// @ID          getNotification
// @Summary     Get one notification
// @Tags        Notifications
// @Produce     json
// @Param       user_id  path  string  true  "Owner"            example(user-1)
// @Param       id       path  string  true  "Notification ID"  format(uuid)
// @Success     200  {object}  domain.Notification
// @Failure     403  {object}  handlers.ErrorResponse "Acting user mismatch"
// @Failure     404  {object}  handlers.ErrorResponse "Notification not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /notifications/user/{user_id}/{id} [get]
func (h *Handlers) GetNotification(c *gin.Context) {
	uid, okUser := actingUser(c, c.Param("user_id"))
	if !okUser {
		return
	}
	n, err := h.notes.Get(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, n)
}

// MarkNotificationRead godoc
// @ID          markNotificationRead
// @Summary     Mark a notification read
// @Description Idempotent: an already read notification is returned unchanged.
// @Tags        Notifications
// @Produce     json
// @Param       user_id  path  string  true  "Owner"            example(user-1)
// @Param       id       path  string  true  "Notification ID"  format(uuid)
// @Success     200  {object}  domain.Notification
// @Failure     403  {object}  handlers.ErrorResponse "Acting user mismatch"
// @Failure     404  {object}  handlers.ErrorResponse "Notification not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /notifications/user/{user_id}/{id}/read [patch]
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	uid, okUser := actingUser(c, c.Param("user_id"))
	if !okUser {
		return
	}
	n, err := h.notes.MarkRead(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, n)
}

// MarkAllNotificationsRead godoc
// @ID          markAllNotificationsRead
// @Summary     Mark every notification read
// @Tags        Notifications
// @Produce     json
// @Param       user_id  path  string  true  "Owner"  example(user-1)
// @Success     200  {object}  handlers.MarkAllReadResponse
// @Failure     403  {object}  handlers.ErrorResponse "Acting user mismatch"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /notifications/user/{user_id}/read-all [patch]
func (h *Handlers) MarkAllNotificationsRead(c *gin.Context) {
	uid, okUser := actingUser(c, c.Param("user_id"))
	if !okUser {
		return
	}
	n, err := h.notes.MarkAllRead(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, MarkAllReadResponse{MarkedRead: n})
}

// DeleteNotification godoc
// @ID          deleteNotification
// @Summary     Delete a notification
// @Tags        Notifications
// @Param       user_id  path  string  true  "Owner"            example(user-1)
// @Param       id       path  string  true  "Notification ID"  format(uuid)
// @Success     204  {string}  string "No Content"
// @Failure     403  {object}  handlers.ErrorResponse "Acting user mismatch"
// @Failure     404  {object}  handlers.ErrorResponse "Notification not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /notifications/user/{user_id}/{id} [delete]
func (h *Handlers) DeleteNotification(c *gin.Context) {
	uid, okUser := actingUser(c, c.Param("user_id"))
	if !okUser {
		return
	}
	if err := h.notes.Delete(c.Request.Context(), uid, c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
