package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/semafind/vamanadb/graph"
)

// ---------------------------

type HttpApiConfig struct {
	Debug           bool   `yaml:"debug" envDefault:"false"`
	HttpHost        string `yaml:"httpHost" envDefault:"localhost"`
	HttpPort        int    `yaml:"httpPort" envDefault:"8080"`
	EnableMetrics   bool   `yaml:"enableMetrics" envDefault:"false"`
	MetricsHttpHost string `yaml:"metricsHttpHost" envDefault:"localhost"`
	MetricsHttpPort int    `yaml:"metricsHttpPort" envDefault:"8081"`
}

// ---------------------------

func SetupRouter(g *graph.Graph, cfg HttpApiConfig, reg *prometheus.Registry) *gin.Engine {
	router := gin.New()
	// ---------------------------
	var metrics *httpMetrics
	if cfg.EnableMetrics && reg != nil {
		metrics = setupAndListenMetrics(cfg, reg)
	}
	// ---------------------------
	router.Use(ZerologLogger(metrics), gin.Recovery())
	// ---------------------------
	v1 := router.Group("/v1")
	handlers := &apiHandlers{graph: g}
	v1.GET("/ping", handlers.Ping)
	v1.POST("/points", handlers.PutPoints)
	v1.POST("/search", handlers.Search)
	return router
}

func RunHTTPServer(g *graph.Graph, cfg HttpApiConfig, reg *prometheus.Registry) *http.Server {
	// ---------------------------
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	// ---------------------------
	server := &http.Server{
		Addr:    cfg.HttpHost + ":" + strconv.Itoa(cfg.HttpPort),
		Handler: SetupRouter(g, cfg, reg),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTPAPI.ListenAndServe")
		}
	}()
	log.Info().Str("httpAddr", server.Addr).Msg("HTTPAPI.Serve")
	return server
}
