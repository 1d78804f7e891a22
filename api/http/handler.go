package http

import (
	"errors"
	"net/http"

	"github.com/awakari/fedistatus/model"
	"github.com/awakari/fedistatus/service"
	"github.com/awakari/fedistatus/service/filters"
	"github.com/awakari/fedistatus/service/moderation"
	"github.com/awakari/fedistatus/service/poll"
	"github.com/awakari/fedistatus/storage"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/r3labs/sse/v2"
)

type handler struct {
	svc         service.Service
	svcFilters  filters.Service
	stgStatuses storage.Statuses
	stgFollows  storage.Follows
	validate    *validator.Validate
}

// NewRouter assembles the REST API. The edit payloads here are already
// normalized: signature verification and raw ActivityPub object parsing
// happen at the federation gateway in front of this service.
func NewRouter(
	svc service.Service,
	svcFilters filters.Service,
	stgStatuses storage.Statuses,
	stgFollows storage.Follows,
	sseSrv *sse.Server,
) *gin.Engine {
	h := handler{
		svc:         svc,
		svcFilters:  svcFilters,
		stgStatuses: stgStatuses,
		stgFollows:  stgFollows,
		validate:    validator.New(),
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.PUT("/v1/statuses/:id", h.updateStatus)
	r.DELETE("/v1/statuses/:id", h.removeStatus)
	r.GET("/v1/statuses/:id/history", h.statusHistory)
	r.POST("/v1/inbox/update", h.inboxUpdate)
	r.POST("/v1/filters", h.createFilter)
	r.PUT("/v1/filters/:id", h.updateFilter)
	r.DELETE("/v1/filters/:id", h.deleteFilter)
	r.GET("/v1/filters/match", h.matchFilters)
	if sseSrv != nil {
		r.GET("/v1/streaming", gin.WrapH(sseSrv))
	}
	return r
}

func (h handler) updateStatus(ctx *gin.Context) {
	var req model.StatusEditRequest
	if !h.bind(ctx, &req) {
		return
	}
	res, err := h.svc.Update(ctx, ctx.Param("id"), req)
	if err != nil {
		respondErr(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, res)
}

func (h handler) removeStatus(ctx *gin.Context) {
	err := h.svc.Remove(ctx, ctx.Param("id"))
	if err != nil {
		respondErr(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (h handler) statusHistory(ctx *gin.Context) {
	edits, err := h.svc.History(ctx, ctx.Param("id"))
	if err != nil {
		respondErr(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, edits)
}

type inboxUpdateRequest struct {
	Uri string `json:"uri" validate:"required,url"`
	model.StatusEditRequest
}

func (h handler) inboxUpdate(ctx *gin.Context) {
	var req inboxUpdateRequest
	if !h.bind(ctx, &req) {
		return
	}
	res, err := h.svc.UpdateRemote(ctx, req.Uri, req.StatusEditRequest)
	if err != nil {
		respondErr(ctx, err)
		return
	}
	switch {
	case res.Discarded:
		// the origin's edit is not applied locally, nothing to retry
		ctx.Status(http.StatusAccepted)
	default:
		ctx.JSON(http.StatusOK, res)
	}
}

func (h handler) createFilter(ctx *gin.Context) {
	var f model.Filter
	if !h.bind(ctx, &f) {
		return
	}
	created, err := h.svcFilters.Create(ctx, f)
	if err != nil {
		respondErr(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, created)
}

func (h handler) updateFilter(ctx *gin.Context) {
	var f model.Filter
	if !h.bind(ctx, &f) {
		return
	}
	f.Id = ctx.Param("id")
	err := h.svcFilters.Update(ctx, f)
	if err != nil {
		respondErr(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, f)
}

func (h handler) deleteFilter(ctx *gin.Context) {
	accountId := ctx.Query("account")
	if accountId == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "account query parameter is required"})
		return
	}
	err := h.svcFilters.Delete(ctx, accountId, ctx.Param("id"))
	if err != nil {
		respondErr(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (h handler) matchFilters(ctx *gin.Context) {
	accountId := ctx.Query("account")
	statusId := ctx.Query("status")
	if accountId == "" || statusId == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "account and status query parameters are required"})
		return
	}
	st, err := h.stgStatuses.GetStatus(ctx, statusId)
	if err != nil {
		respondErr(ctx, err)
		return
	}
	following, err := h.stgFollows.Following(ctx, accountId, st.Account.Id)
	if err != nil {
		respondErr(ctx, err)
		return
	}
	verdicts, err := h.svcFilters.Match(ctx, accountId, st, following)
	if err != nil {
		respondErr(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, verdicts)
}

func (h handler) bind(ctx *gin.Context, dst any) (ok bool) {
	err := ctx.ShouldBindJSON(dst)
	if err == nil {
		err = h.validate.Struct(dst)
	}
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func respondErr(ctx *gin.Context, err error) {
	var code int
	switch {
	case errors.Is(err, storage.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, moderation.ErrValidation), errors.Is(err, poll.ErrMalformed):
		code = http.StatusUnprocessableEntity
	default:
		code = http.StatusInternalServerError
	}
	ctx.JSON(code, gin.H{"error": err.Error()})
}
