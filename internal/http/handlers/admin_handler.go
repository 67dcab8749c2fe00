// Administrative HTTP handlers.
//
// Cascading deletes and directory sync. Every endpoint acts for admin_id (or
// the authenticated principal), whose directory role must be admin.
//   - DELETE /messages/{message_id}
//   - DELETE /messages/thread/{user_id}/{partner_id}
//   - DELETE /messages/user/{user_id}/all
//   - DELETE /messages/post/{post_id}/messages
//   - PUT    /directory/users/{id}
//   - PUT    /directory/posts/{id}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-community-messaging/internal/services"
)

// UpsertUserRequest is the directory payload for a user.
type UpsertUserRequest struct {
	Name string `json:"name" example:"Riley"`
	Role string `json:"role" example:"user"`
}

// UpsertPostRequest is the directory payload for a post.
type UpsertPostRequest struct {
	UserID   string `json:"user_id"  binding:"required" example:"user-42"`
	Category string `json:"category" example:"vent"`
	Status   string `json:"status"   example:"approved"`
}

// AdminDeleteMessage godoc
// @ID          adminDeleteMessage
// @Summary     Delete a message (admin)
// @Description Removes the message and its notifications and rebuilds the pair's conversation.
// @Tags        Admin
// @Param       message_id  path   string  true  "Message ID"  format(uuid)
// @Param       admin_id    query  string  false "Acting administrator"  example(admin-1)
// @Success     204  {string}  string "No Content"
// @Failure     403  {object}  handlers.ErrorResponse "Administrator role required"
// @Failure     404  {object}  handlers.ErrorResponse "Message not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /messages/{message_id} [delete]
func (h *Handlers) AdminDeleteMessage(c *gin.Context) {
	admin, okUser := actingUser(c, c.Query("admin_id"))
	if !okUser {
		return
	}
	_, err := h.admin.DeleteMessage(c.Request.Context(), admin, c.Param("message_id"))
	if err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// AdminDeleteThread godoc
// @ID          adminDeleteThread
// @Summary     Delete every message and request between two users (admin)
// @Tags        Admin
// @Param       user_id     path   string  true  "One participant"       example(user-1)
// @Param       partner_id  path   string  true  "Other participant"     example(user-42)
// @Param       admin_id    query  string  false "Acting administrator"  example(admin-1)
// @Success     204  {string}  string "No Content"
// @Failure     403  {object}  handlers.ErrorResponse "Administrator role required"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /messages/thread/{user_id}/{partner_id} [delete]
func (h *Handlers) AdminDeleteThread(c *gin.Context) {
	admin, okUser := actingUser(c, c.Query("admin_id"))
	if !okUser {
		return
	}
	_, err := h.admin.DeleteThread(c.Request.Context(), admin, c.Param("user_id"), c.Param("partner_id"))
	if err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// AdminDeleteUserMessages godoc
// @ID          adminDeleteUserMessages
// @Summary     Delete every message and request of a user (admin)
// @Tags        Admin
// @Param       user_id   path   string  true  "User"                  example(user-1)
// @Param       admin_id  query  string  false "Acting administrator"  example(admin-1)
// @Success     204  {string}  string "No Content"
// @Failure     403  {object}  handlers.ErrorResponse "Administrator role required"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /messages/user/{user_id}/all [delete]
func (h *Handlers) AdminDeleteUserMessages(c *gin.Context) {
	admin, okUser := actingUser(c, c.Query("admin_id"))
	if !okUser {
		return
	}
	_, err := h.admin.DeleteUserMessages(c.Request.Context(), admin, c.Param("user_id"))
	if err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// AdminDeletePostMessages godoc
// @ID          adminDeletePostMessages
// @Summary     Delete every message and request tied to a post (admin)
// @Tags        Admin
// @Param       post_id   path   string  true  "Post"                  example(post-7)
// @Param       admin_id  query  string  false "Acting administrator"  example(admin-1)
// @Success     204  {string}  string "No Content"
// @Failure     403  {object}  handlers.ErrorResponse "Administrator role required"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /messages/post/{post_id}/messages [delete]
func (h *Handlers) AdminDeletePostMessages(c *gin.Context) {
	admin, okUser := actingUser(c, c.Query("admin_id"))
	if !okUser {
		return
	}
	_, err := h.admin.DeletePostMessages(c.Request.Context(), admin, c.Param("post_id"))
	if err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// UpsertUser godoc
// @ID          upsertUser
// @Summary     Upsert a user into the directory mirror (admin)
// @Tags        Directory
// @Accept      json
// @Produce     json
// @Param       id        path   string  true  "User ID"               example(user-42)
// @Param       admin_id  query  string  false "Acting administrator"  example(admin-1)
// @Param       body      body   handlers.UpsertUserRequest  true  "User"
// @Success     200  {object}  domain.User
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse "Administrator role required"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /directory/users/{id} [put]
func (h *Handlers) UpsertUser(c *gin.Context) {
	admin, okUser := actingUser(c, c.Query("admin_id"))
	if !okUser {
		return
	}
	var req UpsertUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	u, err := h.admin.SyncUser(c.Request.Context(), admin, services.UserInput{
		ID:   c.Param("id"),
		Name: req.Name,
		Role: req.Role,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// UpsertPost godoc
// @ID          upsertPost
// @Summary     Upsert a post into the directory mirror (admin)
// @Tags        Directory
// @Accept      json
// @Produce     json
// @Param       id        path   string  true  "Post ID"               example(post-7)
// @Param       admin_id  query  string  false "Acting administrator"  example(admin-1)
// @Param       body      body   handlers.UpsertPostRequest  true  "Post"
// @Success     200  {object}  domain.Post
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse "Administrator role required"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /directory/posts/{id} [put]
func (h *Handlers) UpsertPost(c *gin.Context) {
	admin, okUser := actingUser(c, c.Query("admin_id"))
	if !okUser {
		return
	}
	var req UpsertPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id required")
		return
	}
	p, err := h.admin.SyncPost(c.Request.Context(), admin, services.PostInput{
		ID:       c.Param("id"),
		UserID:   req.UserID,
		Category: req.Category,
		Status:   req.Status,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}
