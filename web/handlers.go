package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/XANi/weatherstage/entry"
	"github.com/XANi/weatherstage/queue"
	"github.com/gin-gonic/gin"
)

func (b *WebBackend) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"entries": len(b.manager.Running()),
	})
}

// PostEvent is webhook for Home Assistant rest_command/automation pushing state_changed events
func (b *WebBackend) PostEvent(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ev, err := queue.DecodeEvent(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n := b.bus.Publish(c.Request.Context(), ev)
	c.JSON(http.StatusAccepted, gin.H{"entity_id": ev.EntityID, "delivered": n})
}

func (b *WebBackend) ListEntries(c *gin.Context) {
	entries, err := b.manager.List(c.Request.Context())
	if err != nil {
		b.serverError(c, err)
		return
	}
	if entries == nil {
		entries = []entry.Entry{}
	}
	c.JSON(http.StatusOK, entries)
}

func (b *WebBackend) CreateEntry(c *gin.Context) {
	var d entry.Data
	if err := c.ShouldBindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	e, err := b.manager.Create(c.Request.Context(), d)
	if err != nil {
		b.entryError(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (b *WebBackend) GetEntry(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}
	e, err := b.manager.Get(c.Request.Context(), id)
	if err != nil {
		b.entryError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (b *WebBackend) ReconfigureEntry(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}
	var d entry.Data
	if err := c.ShouldBindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	e, err := b.manager.Reconfigure(c.Request.Context(), id, d)
	if err != nil {
		b.entryError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (b *WebBackend) UpdateOptions(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}
	var o entry.Options
	if err := c.ShouldBindJSON(&o); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	e, err := b.manager.UpdateOptions(c.Request.Context(), id, o)
	if err != nil {
		b.entryError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (b *WebBackend) DeleteEntry(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}
	if err := b.manager.Remove(c.Request.Context(), id); err != nil {
		b.entryError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (b *WebBackend) GetPayload(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}
	p, ok := b.manager.Publisher(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not running"})
		return
	}
	c.JSON(http.StatusOK, p.Payload())
}

func (b *WebBackend) GetStatus(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}
	p, ok := b.manager.Publisher(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not running"})
		return
	}
	if !p.Options().StatusReport {
		c.JSON(http.StatusNotFound, gin.H{"error": "status reporting disabled"})
		return
	}
	st, sent := p.Status()
	c.JSON(http.StatusOK, gin.H{"sent": sent, "status": st})
}

func entryID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entry id"})
		return 0, false
	}
	return uint(id), true
}

func (b *WebBackend) entryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, entry.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case entry.IsValidationError(err):
		b.l.Infof("entry validation failed: %s", err)
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"base": entry.FormError(err)}})
	default:
		b.serverError(c, err)
	}
}

func (b *WebBackend) serverError(c *gin.Context, err error) {
	b.l.Errorf("unexpected error on %s: %s", c.Request.URL.Path, err)
	c.JSON(http.StatusInternalServerError, gin.H{"errors": gin.H{"base": "unknown"}})
}
