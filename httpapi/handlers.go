package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/semafind/vamanadb/graph"
	"github.com/vmihailenco/msgpack/v5"
)

// ---------------------------

type apiHandlers struct {
	graph *graph.Graph
}

func (h *apiHandlers) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong from vamanadb",
	})
}

// ---------------------------

/* Payloads travel through the core as opaque bytes, the external point id
 * and the text live inside a msgpack record so search responses can be
 * joined back without a separate mapping. */
type pointRecord struct {
	PointId uuid.UUID `msgpack:"pointId"`
	Text    string    `msgpack:"text"`
}

type putPointsRequest struct {
	Points []struct {
		Vector []float32 `json:"vector" binding:"required"`
		Text   string    `json:"text"`
	} `json:"points" binding:"required"`
}

func (h *apiHandlers) PutPoints(c *gin.Context) {
	var req putPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// ---------------------------
	params := h.graph.Parameters()
	nodeIds := make([]uint32, 0, len(req.Points))
	pointIds := make([]string, 0, len(req.Points))
	for _, point := range req.Points {
		pointId := uuid.New()
		payload, err := msgpack.Marshal(pointRecord{PointId: pointId, Text: point.Text})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		// Seed id 0 lets the graph pick any existing node, the very first
		// insert establishes the entry point itself.
		node, err := h.graph.Insert(point.Vector, payload, 0, params.Alpha, params.SearchSize)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		nodeIds = append(nodeIds, node.Id)
		pointIds = append(pointIds, pointId.String())
	}
	// ---------------------------
	c.JSON(http.StatusOK, gin.H{
		"nodeIds":  nodeIds,
		"pointIds": pointIds,
	})
}

// ---------------------------

type searchRequest struct {
	Vector     []float32 `json:"vector" binding:"required"`
	K          int       `json:"k" binding:"required,min=1"`
	SearchSize int       `json:"searchSize"`
}

type searchResponseItem struct {
	NodeId   uint32 `json:"nodeId"`
	PointId  string `json:"pointId,omitempty"`
	Distance int64  `json:"distance"`
	Text     string `json:"text,omitempty"`
}

func (h *apiHandlers) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	searchSize := req.SearchSize
	if searchSize == 0 {
		searchSize = h.graph.Parameters().SearchSize
	}
	// ---------------------------
	results, err := h.graph.SearchWithPayloads(req.Vector, req.K, searchSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// ---------------------------
	items := make([]searchResponseItem, 0, len(results))
	for _, result := range results {
		item := searchResponseItem{
			NodeId:   result.NodeId,
			Distance: result.Distance,
		}
		if result.Payload != nil {
			var record pointRecord
			if err := msgpack.Unmarshal(result.Payload, &record); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			item.PointId = record.PointId.String()
			item.Text = record.Text
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, gin.H{"results": items})
}
