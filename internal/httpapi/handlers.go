package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/roster"
	"rollcall/internal/workspace"
)

type handler struct {
	ws      *workspace.Registry
	reports func(token string) Reports
	reloads context.Context
	log     *logrus.Entry
}

// workspace opens (or reuses) the caller's workspace for :classId.
func (h *handler) workspace(c *gin.Context) (*workspace.Workspace, bool) {
	classID, ok := int64Param(c, "classId")
	if !ok {
		return nil, false
	}
	claims, _ := auth.ClaimsFrom(c)
	ws, err := h.ws.Open(c.Request.Context(), claims.Subject, classID, auth.BearerFrom(c))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return ws, true
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func (h *handler) snapshot(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ws.Session().Snapshot())
}

func (h *handler) closeSession(c *gin.Context) {
	classID, ok := int64Param(c, "classId")
	if !ok {
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	if !h.ws.Close(claims.Subject, classID) {
		h.fail(c, workspace.ErrNotOpen)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) roster(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	var (
		field roster.SortField
		order roster.SortOrder
		err   error
	)
	if v := c.Query("sort"); v != "" {
		if field, err = roster.ParseSortField(v); err != nil {
			h.fail(c, err)
			return
		}
	}
	if v := c.Query("order"); v != "" {
		if order, err = roster.ParseSortOrder(v); err != nil {
			h.fail(c, err)
			return
		}
	}
	q := workspace.RosterQuery{Query: c.Query("q"), Sort: field, Order: order}
	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badRequest(c, "invalid page")
			return
		}
		q.Page = max(n, 1)
	}
	page, err := ws.Roster(q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"query":   q.Query,
		"roster":  page,
		"session": ws.Session().Snapshot(),
	})
}

func (h *handler) refreshRoster(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	r, err := ws.Refresh(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondAfterReload(c, ws, r)
}

type dateRequest struct {
	Date string `json:"date" binding:"required"`
}

func (h *handler) selectDate(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	var req dateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	d, err := attendance.ParseDate(req.Date)
	if err != nil {
		h.fail(c, attendance.ErrInvalidDate)
		return
	}
	r, err := ws.Session().SelectDate(h.reloads, d)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondAfterReload(c, ws, r)
}

// respondAfterReload answers with the snapshot, first waiting for the reload
// when the caller asks with ?wait=true.
func (h *handler) respondAfterReload(c *gin.Context, ws *workspace.Workspace, r *attendance.Reload) {
	if c.Query("wait") == "true" {
		if err := r.Wait(c.Request.Context()); err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, ws.Session().Snapshot())
		return
	}
	c.JSON(http.StatusAccepted, ws.Session().Snapshot())
}

func (h *handler) enterEdit(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	if err := ws.Session().EnterEditMode(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ws.Session().Snapshot())
}

func (h *handler) exitEdit(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	if err := ws.Session().ExitEditMode(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ws.Session().Snapshot())
}

type markRequest struct {
	Status  string  `json:"status" binding:"required"`
	Remarks *string `json:"remarks"`
}

func (r markRequest) parse() (attendance.Status, string, error) {
	st, err := attendance.ParseStatus(r.Status)
	if err != nil {
		return "", "", err
	}
	if r.Remarks == nil {
		return st, "", nil
	}
	return st, *r.Remarks, nil
}

// setStatus stages a status. LATE or EXCUSED without remarks opens a pending
// selection and answers 202 with remarks_required.
func (h *handler) setStatus(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	regID, ok := int64Param(c, "registrationId")
	if !ok {
		return
	}
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	status, remarks, err := req.parse()
	if err != nil {
		h.fail(c, err)
		return
	}
	s := ws.Session()

	if req.Remarks != nil {
		if err := s.Stage(regID, status, remarks); err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, s.Snapshot())
		return
	}

	pending, err := s.SetStatus(regID, status)
	if err != nil {
		h.fail(c, err)
		return
	}
	if pending {
		c.JSON(http.StatusAccepted, gin.H{"remarks_required": true, "session": s.Snapshot()})
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

type remarksRequest struct {
	Remarks string `json:"remarks"`
}

func (h *handler) confirmRemarks(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	var req remarksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := ws.Session().ConfirmRemarks(req.Remarks); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ws.Session().Snapshot())
}

func (h *handler) cancelRemarks(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	ws.Session().CancelRemarks()
	c.JSON(http.StatusOK, ws.Session().Snapshot())
}

type markAllRequest struct {
	RegistrationIDs []int64 `json:"registration_ids"`
}

// markAllPresent stages PRESENT for the given ids, or for the roster's
// current filtered set when none are given.
func (h *handler) markAllPresent(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	var req markAllRequest
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		// an empty body selects the filtered roster
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			badRequest(c, err.Error())
			return
		}
	}
	var err error
	if req.RegistrationIDs != nil {
		err = ws.Session().MarkAllVisiblePresent(req.RegistrationIDs)
	} else {
		err = ws.MarkAllVisiblePresent()
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ws.Session().Snapshot())
}

func (h *handler) commit(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	res, err := ws.Session().Commit(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"committed": len(res.Records), "records": res.Records, "session": ws.Session().Snapshot()})
}

func (h *handler) commitOne(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	regID, ok := int64Param(c, "registrationId")
	if !ok {
		return
	}
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	status, remarks, err := req.parse()
	if err != nil {
		h.fail(c, err)
		return
	}
	res, err := ws.Session().CommitOne(c.Request.Context(), regID, status, remarks)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"committed": len(res.Records), "records": res.Records, "session": ws.Session().Snapshot()})
}

func (h *handler) retryFetch(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	regID, ok := int64Param(c, "registrationId")
	if !ok {
		return
	}
	if err := ws.Session().RetryFetch(c.Request.Context(), regID); err != nil {
		h.fail(c, err)
		return
	}
	e, found := ws.Session().Effective(regID)
	body := gin.H{"registration_id": regID, "attendance": nil}
	if found {
		body["attendance"] = e
	}
	c.JSON(http.StatusOK, body)
}

func (h *handler) listClasses(c *gin.Context) {
	raw, err := h.reports(auth.BearerFrom(c)).FetchStudentClasses(c.Request.Context(), c.Query("startDate"), c.Query("endDate"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

func (h *handler) getClass(c *gin.Context) {
	classID, ok := int64Param(c, "classId")
	if !ok {
		return
	}
	raw, err := h.reports(auth.BearerFrom(c)).FetchStudentClass(c.Request.Context(), classID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

func (h *handler) classReport(c *gin.Context) {
	classID, ok := int64Param(c, "classId")
	if !ok {
		return
	}
	raw, err := h.reports(auth.BearerFrom(c)).FetchClassReport(c.Request.Context(), classID, c.Query("startDate"), c.Query("endDate"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

func (h *handler) studentReport(c *gin.Context) {
	classID, ok := int64Param(c, "classId")
	if !ok {
		return
	}
	studentID, ok := int64Param(c, "studentId")
	if !ok {
		return
	}
	raw, err := h.reports(auth.BearerFrom(c)).FetchStudentReport(c.Request.Context(), studentID, classID, c.Query("startDate"), c.Query("endDate"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}
