package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/annel0/plotmines/internal/composition"
	"github.com/annel0/plotmines/internal/geometry"
	"github.com/annel0/plotmines/internal/mine"
	"github.com/annel0/plotmines/internal/plotmines"
	"github.com/annel0/plotmines/internal/registry"
	"github.com/annel0/plotmines/internal/scheduler"
	"github.com/annel0/plotmines/internal/world"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// OwnerView владелец шахты в ответе
type OwnerView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MineView шахта в ответе API
type MineView struct {
	ID            string         `json:"id"`
	Owner         OwnerView      `json:"owner"`
	Template      string         `json:"template"`
	DisplayName   string         `json:"display_name"`
	Minimum       world.Position `json:"minimum"`
	Maximum       world.Position `json:"maximum"`
	ResetPercent  float64        `json:"reset_percent"`
	ResetTeleport world.Position `json:"reset_teleport"`
	TotalBlocks   int            `json:"total_blocks"`
	Depleted      int            `json:"depleted"`
	Percentage    float64        `json:"percentage"`
	State         string         `json:"state"`
}

func viewOf(m *mine.Mine) MineView {
	v := m.Volume()
	return MineView{
		ID:            m.ID().String(),
		Owner:         OwnerView{ID: m.Owner().ID.String(), Name: m.Owner().Name},
		Template:      m.Template(),
		DisplayName:   m.DisplayName(),
		Minimum:       v.Min,
		Maximum:       v.Max,
		ResetPercent:  m.ResetPercent(),
		ResetTeleport: m.ResetTeleport(),
		TotalBlocks:   m.TotalBlocks(),
		Depleted:      m.Depleted(),
		Percentage:    m.Percentage(),
		State:         m.State().String(),
	}
}

// CreateMineRequest запрос на создание шахты
type CreateMineRequest struct {
	Template string         `json:"template" binding:"required"`
	Origin   world.Position `json:"origin"`
	Owner    *OwnerView     `json:"owner,omitempty"` // только для администраторов
}

// BlockBreakRequest сломанный блок
type BlockBreakRequest struct {
	Position world.Position `json:"position"`
}

// errorStatus сопоставляет ошибки домена HTTP-статусам
func errorStatus(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, geometry.ErrInvalidTemplate),
		errors.Is(err, geometry.ErrCrossRegion),
		errors.Is(err, composition.ErrEmptyRecipe):
		return http.StatusBadRequest
	case errors.Is(err, mine.ErrDeleted):
		return http.StatusConflict
	case errors.Is(err, scheduler.ErrStopped),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (rs *RestServer) fail(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, GenericResponse{Success: false, Message: err.Error()})
}

// onTick выполняет fn в горутине тиков с таймаутом запроса
func (rs *RestServer) onTick(c *gin.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(c.Request.Context(), rs.timeout)
	defer cancel()
	return rs.tick.Call(ctx, func() error { return fn(ctx) })
}

func (rs *RestServer) handleTemplates(c *gin.Context) {
	names := rs.service.TemplateNames()
	out := make([]gin.H, 0, len(names))
	for _, name := range names {
		t, _ := rs.service.Template(name)
		out = append(out, gin.H{
			"name":          t.Name,
			"label":         t.Label,
			"width":         t.Width,
			"depth":         t.Depth,
			"reset_percent": t.ResetPercent,
			"border":        t.Border,
			"composition":   t.Composition.ToMap(),
		})
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "ok", Data: out})
}

func (rs *RestServer) handleListMines(c *gin.Context) {
	mines := rs.service.Mines()
	out := make([]MineView, 0, len(mines))
	for _, m := range mines {
		out = append(out, viewOf(m))
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "ok", Data: out})
}

func (rs *RestServer) handleGetMine(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		rs.fail(c, registry.ErrNotFound)
		return
	}
	m, ok := rs.service.Mine(id)
	if !ok {
		rs.fail(c, registry.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "ok", Data: viewOf(m)})
}

func (rs *RestServer) handleCreateMine(c *gin.Context) {
	var req CreateMineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неверный формат запроса"})
		return
	}

	owner := actorOf(c)
	if req.Owner != nil {
		if !isAdmin(c) {
			c.JSON(http.StatusForbidden, GenericResponse{Success: false, Message: "Недостаточно прав доступа"})
			return
		}
		id, err := uuid.Parse(req.Owner.ID)
		if err != nil {
			c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Некорректный id владельца"})
			return
		}
		owner = mine.Owner{ID: id, Name: req.Owner.Name}
	}

	var created *mine.Mine
	err := rs.onTick(c, func(ctx context.Context) error {
		m, err := rs.service.CreateMine(ctx, req.Origin, req.Template, owner)
		created = m
		return err
	})
	if err != nil {
		rs.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, GenericResponse{Success: true, Message: "Шахта создана", Data: viewOf(created)})
}

func (rs *RestServer) handleDeleteMine(c *gin.Context) {
	requested := c.Param("id")
	actor := actorOf(c)

	// Игрок может удалить только свою шахту
	if !isAdmin(c) {
		if id, err := uuid.Parse(requested); err == nil {
			if m, ok := rs.service.Mine(id); ok && m.Owner().ID != actor.ID {
				c.JSON(http.StatusForbidden, GenericResponse{Success: false, Message: "Шахта принадлежит другому игроку"})
				return
			}
		}
	}

	err := rs.onTick(c, func(ctx context.Context) error {
		return rs.service.DeleteMine(ctx, requested, actor)
	})
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Шахта удалена"})
}

func (rs *RestServer) handleResetMine(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		rs.fail(c, registry.ErrNotFound)
		return
	}

	err = rs.onTick(c, func(ctx context.Context) error {
		return rs.service.ResetMine(ctx, id)
	})
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Шахта сброшена"})
}

func (rs *RestServer) handleBlockBreak(c *gin.Context) {
	var req BlockBreakRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неверный формат запроса"})
		return
	}

	var res plotmines.BreakResult
	err := rs.onTick(c, func(ctx context.Context) error {
		r, err := rs.service.HandleBlockBreak(ctx, req.Position)
		res = r
		return err
	})
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "ok", Data: res})
}

func (rs *RestServer) handleGetWebhooks(c *gin.Context) {
	if rs.webhooks == nil {
		c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "ok", Data: []OutboundWebhook{}})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "ok", Data: rs.webhooks.GetWebhooks()})
}
