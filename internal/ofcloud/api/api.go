package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jimyag/ofcloud/pkg/ginx"
)

type API struct {
	engine *gin.Engine
	server *http.Server

	simulation *Simulation
	instance   *Instance
}

// New 创建 HTTP API，gatherer 为空时不暴露 /metrics
func New(address string, simulationService SimulationServiceInterface, instanceService InstanceServiceInterface, gatherer prometheus.Gatherer) (*API, error) {
	engine := gin.Default()
	engine.Use(ginx.RequestID())

	api := &API{
		engine:     engine,
		simulation: NewSimulation(simulationService),
		instance:   NewInstance(instanceService),
	}
	group := engine.Group("/api")
	api.simulation.RegisterRoutes(group)
	api.instance.RegisterRoutes(group)
	if gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api.server = &http.Server{
		Addr:    address,
		Handler: engine,
	}
	return api, nil
}

// Handler 测试使用
func (a *API) Handler() http.Handler {
	return a.engine
}

// Name 实现 grace.Grace 接口
func (a *API) Name() string {
	return "API"
}

func (a *API) Run(ctx context.Context) error {
	zerolog.Ctx(ctx).Info().Str("address", a.server.Addr).Msg("API listening")
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *API) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}
