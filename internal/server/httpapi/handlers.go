package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/gin-gonic/gin"
)

const multipartOverhead = 1 << 20

type credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type startConversationRequest struct {
	ParticipantID int64 `json:"participantId" binding:"required"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrorValidation, fmt.Sprintf(format, args...))
}

func (a *api) signUp(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		a.fail(c, invalid("%v", err))
		return
	}

	token, err := a.svc.Users.SignUp(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, tokenResponse{Token: token})
}

func (a *api) signIn(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		a.fail(c, invalid("%v", err))
		return
	}

	token, err := a.svc.Users.SignIn(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{Token: token})
}

func (a *api) searchUsers(c *gin.Context) {
	users, err := a.svc.Users.Search(c.Request.Context(), userID(c), c.Query("query"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (a *api) listConversations(c *gin.Context) {
	list, err := a.svc.Conversations.List(c.Request.Context(), userID(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *api) startConversation(c *gin.Context) {
	var req startConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.fail(c, invalid("%v", err))
		return
	}

	conv, err := a.svc.Conversations.Start(c.Request.Context(), userID(c), req.ParticipantID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid("bad conversation id %q", c.Param("id"))
	}
	return id, nil
}

func queryInt(c *gin.Context, name string) (int64, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, invalid("bad %s %q", name, v)
	}
	return n, nil
}

func (a *api) getConversation(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		a.fail(c, err)
		return
	}

	conv, err := a.svc.Conversations.Get(c.Request.Context(), id, userID(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (a *api) listMessages(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		a.fail(c, err)
		return
	}
	before, err := queryInt(c, "before")
	if err != nil {
		a.fail(c, err)
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		a.fail(c, err)
		return
	}

	page, err := a.svc.Conversations.History(c.Request.Context(), id, userID(c), before, int(limit))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// presence answers ?userIds=1,2,3 with {"1": true, ...}.
func (a *api) presence(c *gin.Context) {
	var ids []int64
	for _, part := range strings.Split(c.Query("userIds"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			a.fail(c, invalid("bad user id %q", part))
			return
		}
		ids = append(ids, id)
	}

	status, err := a.svc.Presence.OnlineStatus(c.Request.Context(), ids)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (a *api) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, a.maxUploadSize+multipartOverhead)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.fail(c, common.ErrMediaTooLarge)
			return
		}
		a.fail(c, invalid("no file uploaded"))
		return
	}

	f, err := fh.Open()
	if err != nil {
		a.fail(c, err)
		return
	}
	defer f.Close()

	media, err := a.svc.Media.Upload(c.Request.Context(), fh.Filename, fh.Header.Get("Content-Type"), fh.Size, f)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, media)
}

// media redirects to a short-lived object storage URL.
func (a *api) media(c *gin.Context) {
	url, err := a.svc.Media.PresignedGetURL(c.Request.Context(), c.Param("key"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.Redirect(http.StatusFound, url)
}
