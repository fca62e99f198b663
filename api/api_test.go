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
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dogan-ai/redflags"
	model2 "github.com/dogan-ai/redflags/api/model"
	"github.com/dogan-ai/redflags/config"
	"github.com/dogan-ai/redflags/database/mocks"
	"github.com/dogan-ai/redflags/internal/apierror"
	"github.com/dogan-ai/redflags/model"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type TestRequest struct {
	Payload  io.Reader
	Router   *gin.Engine
	Response interface{}
	Method   string
	Route    string
	Header   map[string]string
}

func SetUpTestRequest(s TestRequest) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(s.Method, s.Route, s.Payload)
	for key, value := range s.Header {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	s.Router.ServeHTTP(resp, req)

	if s.Response != nil {
		if err := json.NewDecoder(resp.Body).Decode(s.Response); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func setupRouter(t *testing.T, conf *config.Configuration) (*gin.Engine, *mocks.MockDataSource) {
	config.MockConfig(conf)
	ds := new(mocks.MockDataSource)
	rf, err := redflags.NewRedFlags(ds)
	require.NoError(t, err)
	return NewAPI(rf).Router(), ds
}

func jsonBody(t *testing.T, v interface{}) io.Reader {
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(payload)
}

func TestExecuteAgentJob_Completed(t *testing.T) {
	router, ds := setupRouter(t, &config.Configuration{})

	ds.On("CreateAgentJob", mock.Anything, mock.Anything).Return(nil)
	ds.On("UpdateAgentJob", mock.Anything, mock.Anything).Return(nil)
	ds.On("GetHighValueTransactions", mock.Anything, "tenant_1", mock.Anything, mock.Anything).Return([]model.Transaction{}, nil)
	ds.On("GetRepeatedReferences", mock.Anything, "tenant_1", mock.Anything, mock.Anything, mock.Anything).Return([]model.RepeatedReference{}, nil)
	ds.On("GetOverdueReceipts", mock.Anything, "tenant_1", mock.Anything, mock.Anything, mock.Anything).Return([]model.Transaction{}, nil)

	var response model2.AgentJobResponse
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  jsonBody(t, model2.CreateAgentJob{TenantID: "tenant_1", JobType: string(model.JobTransactionOutliers)}),
		Router:   router,
		Response: &response,
		Method:   http.MethodPost,
		Route:    "/agent-jobs",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, model.JobCompleted, response.Job.Status)
	require.NotNil(t, response.Result)
	assert.Equal(t, []string{"No outliers detected"}, response.Result.Actions)
}

func TestExecuteAgentJob_FailureUsesErrorStatus(t *testing.T) {
	router, ds := setupRouter(t, &config.Configuration{})

	ds.On("CreateAgentJob", mock.Anything, mock.Anything).Return(nil)
	ds.On("UpdateAgentJob", mock.Anything, mock.Anything).Return(nil)
	ds.On("GetPayment", mock.Anything, "tenant_1", "pay_404").
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "Payment not found", nil))

	var response model2.AgentJobResponse
	resp, err := SetUpTestRequest(TestRequest{
		Payload: jsonBody(t, model2.CreateAgentJob{
			TenantID:  "tenant_1",
			JobType:   string(model.JobSupportingDocsRequest),
			InputData: json.RawMessage(`{"entityId":"pay_404"}`),
		}),
		Router:   router,
		Response: &response,
		Method:   http.MethodPost,
		Route:    "/agent-jobs",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, model.JobFailed, response.Job.Status)
	assert.Equal(t, "Payment not found", response.Error)
}

func TestExecuteAgentJob_UnknownType(t *testing.T) {
	router, ds := setupRouter(t, &config.Configuration{})

	var response map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  jsonBody(t, model2.CreateAgentJob{TenantID: "tenant_1", JobType: "NOT_A_REAL_TYPE"}),
		Router:   router,
		Response: &response,
		Method:   http.MethodPost,
		Route:    "/agent-jobs",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "Unknown agent job type: NOT_A_REAL_TYPE", response["error"])
	ds.AssertNotCalled(t, "CreateAgentJob", mock.Anything, mock.Anything)
}

func TestGetAgentJob(t *testing.T) {
	router, ds := setupRouter(t, &config.Configuration{})
	ds.On("GetAgentJob", mock.Anything, "job_1").Return(&model.AgentJob{JobID: "job_1", TenantID: "tenant_1", Status: model.JobQueued}, nil)

	resp, err := SetUpTestRequest(TestRequest{Router: router, Method: http.MethodGet, Route: "/agent-jobs/job_1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	var job model.AgentJob
	resp, err = SetUpTestRequest(TestRequest{Router: router, Response: &job, Method: http.MethodGet, Route: "/agent-jobs/job_1?tenant_id=tenant_1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "job_1", job.JobID)

	resp, err = SetUpTestRequest(TestRequest{Router: router, Method: http.MethodGet, Route: "/agent-jobs/job_1?tenant_id=tenant_2"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestRunAgentJob(t *testing.T) {
	router, ds := setupRouter(t, &config.Configuration{})
	queued := &model.AgentJob{
		JobID:     "job_1",
		TenantID:  "tenant_1",
		JobType:   model.JobTransactionOutliers,
		Status:    model.JobQueued,
		InputData: json.RawMessage(`{}`),
	}
	ds.On("GetAgentJob", mock.Anything, "job_1").Return(queued, nil)
	ds.On("UpdateAgentJob", mock.Anything, mock.Anything).Return(nil)
	ds.On("GetHighValueTransactions", mock.Anything, "tenant_1", mock.Anything, mock.Anything).Return([]model.Transaction{}, nil)
	ds.On("GetRepeatedReferences", mock.Anything, "tenant_1", mock.Anything, mock.Anything, mock.Anything).Return([]model.RepeatedReference{}, nil)
	ds.On("GetOverdueReceipts", mock.Anything, "tenant_1", mock.Anything, mock.Anything, mock.Anything).Return([]model.Transaction{}, nil)

	var response model2.AgentJobResponse
	resp, err := SetUpTestRequest(TestRequest{Router: router, Response: &response, Method: http.MethodPost, Route: "/agent-jobs/job_1/execute?tenant_id=tenant_1"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, model.JobCompleted, response.Job.Status)

	// the job is no longer queued
	resp, err = SetUpTestRequest(TestRequest{Router: router, Method: http.MethodPost, Route: "/agent-jobs/job_1/execute?tenant_id=tenant_1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestRetryAgentJob_RejectsCompletedJob(t *testing.T) {
	router, ds := setupRouter(t, &config.Configuration{})
	ds.On("GetAgentJob", mock.Anything, "job_1").Return(&model.AgentJob{JobID: "job_1", TenantID: "tenant_1", Status: model.JobCompleted}, nil)

	resp, err := SetUpTestRequest(TestRequest{Router: router, Method: http.MethodPost, Route: "/agent-jobs/job_1/retry?tenant_id=tenant_1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestActivateIncident_Validation(t *testing.T) {
	router, ds := setupRouter(t, &config.Configuration{})

	resp, err := SetUpTestRequest(TestRequest{
		Payload: jsonBody(t, model2.ActivateIncident{TenantID: "tenant_1", FlagType: "duplicate_transaction", Severity: "urgent"}),
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/incidents",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	ds.AssertNotCalled(t, "CreateIncident", mock.Anything, mock.Anything)
}

func TestGetIncidentStatus(t *testing.T) {
	router, ds := setupRouter(t, &config.Configuration{})
	ds.On("GetIncident", mock.Anything, "tenant_1", "inc_1").
		Return(&model.Incident{IncidentID: "inc_1", TenantID: "tenant_1", Status: model.IncidentActive}, nil)
	ds.On("GetAgentJobsByIncident", mock.Anything, "tenant_1", "inc_1").
		Return([]model.AgentJob{{JobID: "job_1", IncidentID: "inc_1"}}, nil)

	var report model.IncidentStatusReport
	resp, err := SetUpTestRequest(TestRequest{Router: router, Response: &report, Method: http.MethodGet, Route: "/incidents/inc_1?tenant_id=tenant_1"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "inc_1", report.Incident.IncidentID)
	assert.Len(t, report.Jobs, 1)
}

func TestResolveIncident_Conflict(t *testing.T) {
	router, ds := setupRouter(t, &config.Configuration{})
	ds.On("GetIncident", mock.Anything, "tenant_1", "inc_1").
		Return(&model.Incident{IncidentID: "inc_1", TenantID: "tenant_1", Status: model.IncidentResolved}, nil)
	ds.On("ResolveIncident", mock.Anything, mock.Anything).
		Return(apierror.NewAPIError(apierror.ErrConflict, "Incident is not active", nil))

	var response map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  jsonBody(t, model2.ResolveIncident{TenantID: "tenant_1", ResolvedBy: "analyst"}),
		Router:   router,
		Response: &response,
		Method:   http.MethodPut,
		Route:    "/incidents/inc_1/resolve",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "Incident is not active", response["error"])
}

func TestSecureModeRequiresKey(t *testing.T) {
	router, ds := setupRouter(t, &config.Configuration{Server: config.ServerConfig{Secure: true, SecretKey: "s3cret"}})
	ds.On("GetAgentJob", mock.Anything, "job_1").Return(&model.AgentJob{JobID: "job_1", TenantID: "tenant_1"}, nil)

	resp, err := SetUpTestRequest(TestRequest{Router: router, Method: http.MethodGet, Route: "/agent-jobs/job_1?tenant_id=tenant_1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp, err = SetUpTestRequest(TestRequest{
		Router: router,
		Method: http.MethodGet,
		Route:  "/agent-jobs/job_1?tenant_id=tenant_1",
		Header: map[string]string{"X-RedFlags-Key": "s3cret"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
}
