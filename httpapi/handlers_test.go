package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/semafind/vamanadb/graph"
	"github.com/semafind/vamanadb/httpapi"
	"github.com/semafind/vamanadb/models"
	"github.com/semafind/vamanadb/nodestore"
	"github.com/semafind/vamanadb/payloadstore"
	"github.com/stretchr/testify/require"
)

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := nodestore.NewInMemStore(2, 5)
	payloads, err := payloadstore.Open("")
	require.NoError(t, err)
	input := make(chan []models.Entry)
	close(input)
	params := models.GraphParameters{RInit: 2, RMax: 5, Alpha: 1.2, SearchSize: 10}
	g, err := graph.NewGraph(context.Background(), input, params, store, payloads)
	require.NoError(t, err)
	return httpapi.SetupRouter(g, httpapi.HttpApiConfig{Debug: true}, nil)
}

func doRequest(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func Test_Ping(t *testing.T) {
	router := setupTestRouter(t)
	resp := doRequest(t, router, "GET", "/v1/ping", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), "pong")
}

func Test_PutAndSearch(t *testing.T) {
	router := setupTestRouter(t)
	// ---------------------------
	putBody := map[string]any{
		"points": []map[string]any{
			{"vector": []float32{1, 1}, "text": "bottom left"},
			{"vector": []float32{100, 100}, "text": "top right"},
			{"vector": []float32{50, 50}, "text": "middle"},
		},
	}
	resp := doRequest(t, router, "POST", "/v1/points", putBody)
	require.Equal(t, http.StatusOK, resp.Code)
	var putResp struct {
		NodeIds  []uint32 `json:"nodeIds"`
		PointIds []string `json:"pointIds"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &putResp))
	require.Len(t, putResp.NodeIds, 3)
	require.Len(t, putResp.PointIds, 3)
	// ---------------------------
	searchBody := map[string]any{"vector": []float32{49, 51}, "k": 1}
	resp = doRequest(t, router, "POST", "/v1/search", searchBody)
	require.Equal(t, http.StatusOK, resp.Code)
	var searchResp struct {
		Results []struct {
			NodeId  uint32 `json:"nodeId"`
			PointId string `json:"pointId"`
			Text    string `json:"text"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &searchResp))
	require.Len(t, searchResp.Results, 1)
	require.Equal(t, "middle", searchResp.Results[0].Text)
	require.NotEmpty(t, searchResp.Results[0].PointId)
}

func Test_PutInvalidBody(t *testing.T) {
	router := setupTestRouter(t)
	resp := doRequest(t, router, "POST", "/v1/points", map[string]any{"nonsense": true})
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func Test_SearchEmptyGraph(t *testing.T) {
	router := setupTestRouter(t)
	resp := doRequest(t, router, "POST", "/v1/search", map[string]any{"vector": []float32{1, 2}, "k": 1})
	require.Equal(t, http.StatusInternalServerError, resp.Code)
}
