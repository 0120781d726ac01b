// README: Location catalog handler.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"buggy/internal/modules/location"
)

type LocationHandler struct {
	catalog *location.Catalog
}

func NewLocationHandler(catalog *location.Catalog) *LocationHandler {
	return &LocationHandler{catalog: catalog}
}

func (h *LocationHandler) List(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"locations": h.catalog.All()})
}
