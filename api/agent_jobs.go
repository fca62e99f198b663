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

	model2 "github.com/dogan-ai/redflags/api/model"
	"github.com/dogan-ai/redflags/internal/apierror"
	"github.com/gin-gonic/gin"
)

// ExecuteAgentJob records the job and runs it before responding. A job that fails is still
// returned, with the status code of its error.
func (a Api) ExecuteAgentJob(c *gin.Context) {
	var req model2.CreateAgentJob
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateCreateAgentJob(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	job, err := a.redflags.CreateAgentJob(c.Request.Context(), req.ToAgentJob())
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := a.redflags.ExecuteAgent(c.Request.Context(), job)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), model2.AgentJobResponse{Job: job, Error: job.Error})
		return
	}

	c.JSON(http.StatusCreated, model2.AgentJobResponse{Job: job, Result: result})
}

func (a Api) QueueAgentJob(c *gin.Context) {
	var req model2.CreateAgentJob
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateCreateAgentJob(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	job, err := a.redflags.QueueAgentJob(c.Request.Context(), req.ToAgentJob())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, job)
}

func (a Api) GetAgentJob(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}
	tenantID, ok := tenantFromQuery(c)
	if !ok {
		return
	}

	job, err := a.redflags.GetAgentJob(c.Request.Context(), tenantID, id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// RunAgentJob runs an already queued job in the request instead of waiting for a worker.
func (a Api) RunAgentJob(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}
	tenantID, ok := tenantFromQuery(c)
	if !ok {
		return
	}

	job, result, err := a.redflags.ExecuteAgentByID(c.Request.Context(), tenantID, id)
	if err != nil {
		if job == nil {
			respondWithError(c, err)
			return
		}
		c.JSON(apierror.MapErrorToHTTPStatus(err), model2.AgentJobResponse{Job: job, Error: apierror.Message(err)})
		return
	}

	c.JSON(http.StatusOK, model2.AgentJobResponse{Job: job, Result: result})
}

func (a Api) RetryAgentJob(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}
	tenantID, ok := tenantFromQuery(c)
	if !ok {
		return
	}

	if _, err := a.redflags.GetAgentJob(c.Request.Context(), tenantID, id); err != nil {
		respondWithError(c, err)
		return
	}

	job, err := a.redflags.RetryAgentJob(c.Request.Context(), id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, job)
}
