package rest

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/Guyuepp/go-feed-engine/domain"
	"github.com/Guyuepp/go-feed-engine/internal/rest/request"
)

var registerOnce sync.Once

// RegisterValidators adds the custom binding tags to gin's validator
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("interaction_type", func(fl validator.FieldLevel) bool {
			return domain.InteractionType(fl.Field().String()).Valid()
		})
	})
}

// InteractionHandler accepts interaction signals from the web layer
type InteractionHandler struct {
	Sink domain.InteractionSink
}

func NewInteractionHandler(sink domain.InteractionSink) *InteractionHandler {
	RegisterValidators()
	return &InteractionHandler{
		Sink: sink,
	}
}

// Track queues the interaction; a full queue drops it silently
func (h *InteractionHandler) Track(c *gin.Context) {
	var req request.Interaction
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	uid, _ := userID(c)

	queued := h.Sink.Send(req.ToTask(uid))
	c.JSON(http.StatusAccepted, gin.H{"queued": queued})
}
