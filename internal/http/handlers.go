/* Copyright (c) 2020 OpenCraft <https://opencraft.com>
 * SPDX-License-Identifier: AGPL-3.0 */
package http

import (
    "context"
    "net/http"
    "strconv"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/open-craft/sprints/internal/config"
    "github.com/open-craft/sprints/internal/domain"
    "github.com/open-craft/sprints/internal/services"
    "github.com/rs/zerolog"
)

type service interface {
    Cells(ctx context.Context) ([]domain.Cell, error)
    BuildDashboardByBoard(ctx context.Context, boardID int64) (*services.Dashboard, error)
    LatestSnapshot(ctx context.Context, boardID int64) ([]byte, time.Time, error)
    RunCapacityDigest(ctx context.Context) error
    LastRun(ctx context.Context) (any, error)
    AddWebhook(ctx context.Context, url string) (int64, error)
}

type Handlers struct {
    cfg config.Config
    log zerolog.Logger
    svc service
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc any) *Handlers {
    return &Handlers{cfg: cfg, log: log, svc: svc.(service)}
}

func (h *Handlers) Healthz(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) Cells(c *gin.Context) {
    cells, err := h.svc.Cells(c.Request.Context())
    if err != nil {
        c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, cells)
}

func boardID(c *gin.Context) (int64, bool) {
    id, err := strconv.ParseInt(c.Query("board_id"), 10, 64)
    if err != nil || id <= 0 {
        c.JSON(http.StatusBadRequest, gin.H{"error": "board_id required"})
        return 0, false
    }
    return id, true
}

// Dashboard builds a cell's capacity rows live from the tracker. Slow; use
// the snapshot endpoint when staleness is acceptable.
func (h *Handlers) Dashboard(c *gin.Context) {
    id, ok := boardID(c)
    if !ok { return }
    d, err := h.svc.BuildDashboardByBoard(c.Request.Context(), id)
    if err != nil {
        c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, d)
}

func (h *Handlers) Snapshot(c *gin.Context) {
    id, ok := boardID(c)
    if !ok { return }
    payload, at, err := h.svc.LatestSnapshot(c.Request.Context(), id)
    if err != nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot for board"})
        return
    }
    c.Header("Last-Modified", at.UTC().Format(http.TimeFormat))
    c.Data(http.StatusOK, "application/json", payload)
}

func (h *Handlers) LastRun(c *gin.Context) {
    lr, err := h.svc.LastRun(c.Request.Context())
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, lr)
}

func (h *Handlers) RunNow(c *gin.Context) {
    // Detached from the request context so the build survives the response
    go func(){ _ = h.svc.RunCapacityDigest(context.Background()) }()
    c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (h *Handlers) AddWebhook(c *gin.Context) {
    var body struct {
        URL string `json:"url" binding:"required,url"`
    }
    if err := c.ShouldBindJSON(&body); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    id, err := h.svc.AddWebhook(c.Request.Context(), body.URL)
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusCreated, gin.H{"id": id})
}
