package server

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"prepcost/internal/costing"
	"prepcost/internal/handlers"
	applog "prepcost/internal/log"
)

func newRouter(metrics *costing.Metrics) http.Handler {
	mux := http.NewServeMux()
	applog.Debug(context.Background(), "registering http routes")

	routes := []struct {
		path    string
		handler http.HandlerFunc
	}{
		{"/healthz", handlers.Health},
		{"/preps", handlers.PrepResource},
		{"/preps/ingredients", handlers.PrepIngredientResource},
		{"/preps/breakdown", handlers.PrepBreakdown},
		{"/preps/schema", handlers.PrepSchema},
		{"/ingredients", handlers.IngredientResource},
		{"/menu-items", handlers.MenuItemResource},
		{"/menu-items/ingredients", handlers.MenuItemIngredientResource},
		{"/menu-items/breakdown", handlers.MenuItemBreakdown},
	}
	for _, route := range routes {
		mux.HandleFunc(route.path, route.handler)
		applog.Debug(context.Background(), "route registered", "path", route.path)
	}

	if registry := metrics.Registry(); registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
		applog.Debug(context.Background(), "route registered", "path", "/metrics")
	}
	return mux
}
