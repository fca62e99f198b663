/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package api

import (
	"net/http"

	"github.com/dogan-ai/redflags"
	"github.com/dogan-ai/redflags/api/middleware"
	"github.com/dogan-ai/redflags/config"
	"github.com/dogan-ai/redflags/internal/apierror"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Api struct {
	redflags *redflags.RedFlags
	router   *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.POST("/incidents", a.ActivateIncident)
	router.GET("/incidents/:id", a.GetIncidentStatus)
	router.PUT("/incidents/:id/resolve", a.ResolveIncident)

	router.POST("/agent-jobs", a.ExecuteAgentJob)
	router.POST("/agent-jobs/queue", a.QueueAgentJob)
	router.GET("/agent-jobs/:id", a.GetAgentJob)
	router.POST("/agent-jobs/:id/execute", a.RunAgentJob)
	router.POST("/agent-jobs/:id/retry", a.RetryAgentJob)

	return a.router
}

func NewAPI(rf *redflags.RedFlags) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}

	r := gin.Default()
	r.Use(otelgin.Middleware(conf.ProjectName))
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware(conf))
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{redflags: rf, router: r}
}

func respondWithError(c *gin.Context, err error) {
	c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": apierror.Message(err)})
}

func tenantFromQuery(c *gin.Context) (string, bool) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required. pass it as a query parameter"})
		return "", false
	}
	return tenantID, true
}
