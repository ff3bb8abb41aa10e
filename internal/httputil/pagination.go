package httputil

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	// DefaultPageLimit is the limit used when the request has none.
	DefaultPageLimit = 50
	// MaxPageLimit caps a single listing of failed work.
	MaxPageLimit = 500
)

// Page is an offset/limit window over a listing.
type Page struct {
	Offset int
	Limit  int
}

// ParsePage reads the offset and limit query parameters.
func ParsePage(c *gin.Context) (Page, error) {
	page := Page{Offset: 0, Limit: DefaultPageLimit}

	if raw, ok := c.GetQuery("offset"); ok {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return Page{}, fmt.Errorf("invalid offset parameter %q: must be a non-negative integer", raw)
		}
		page.Offset = offset
	}

	if raw, ok := c.GetQuery("limit"); ok {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > MaxPageLimit {
			return Page{}, fmt.Errorf("invalid limit parameter %q: must be between 1 and %d", raw, MaxPageLimit)
		}
		page.Limit = limit
	}

	return page, nil
}
