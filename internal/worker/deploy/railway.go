// Package deploy lets the worker stop its own hosting deployment once the
// queue has been drained.
package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"televid/internal/config"
	"televid/internal/pkg/errors"
	"televid/internal/pkg/logger"
)

// Stopper stops the current deployment.
type Stopper interface {
	Stop(ctx context.Context) error
}

// NewStopper returns a Railway client, or a Noop stopper when the token or
// service id is missing.
func NewStopper(cfg config.Deploy, hc *http.Client, log *logger.Logger) Stopper {
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("deploy")
	if cfg.Token == "" || cfg.ServiceID == "" {
		return Noop{Log: log}
	}
	return NewRailwayClient(cfg.Endpoint, cfg.Token, cfg.ServiceID, hc, log)
}

// Noop logs that no deployment control is configured.
type Noop struct {
	Log *logger.Logger
}

func (n Noop) Stop(ctx context.Context) error {
	if n.Log != nil {
		n.Log.Warn("RAILWAY_API_TOKEN or RAILWAY_SERVICE_ID not set, skipping deployment stop")
	}
	return nil
}

// RailwayClient talks to the Railway GraphQL API.
type RailwayClient struct {
	endpoint  string
	token     string
	serviceID string
	hc        *http.Client
	log       *logger.Logger
}

func NewRailwayClient(endpoint, token, serviceID string, hc *http.Client, log *logger.Logger) *RailwayClient {
	if hc == nil {
		hc = http.DefaultClient
	}
	if log == nil {
		log = logger.NewDefault().WithComponent("deploy")
	}
	return &RailwayClient{endpoint: endpoint, token: token, serviceID: serviceID, hc: hc, log: log}
}

const latestDeploymentQuery = `query getLatestDeployment($serviceId: String!) {
  service(id: $serviceId) {
    deployments(first: 1) {
      edges { node { id } }
    }
  }
}`

const deploymentStopMutation = `mutation deploymentStop($id: String!) {
  deploymentStop(id: $id)
}`

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlError struct {
	Message string `json:"message"`
}

type latestDeploymentData struct {
	Service *struct {
		Deployments struct {
			Edges []struct {
				Node struct {
					ID string `json:"id"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"deployments"`
	} `json:"service"`
}

// Stop looks up the latest deployment of the service and stops it. A service
// without deployments is a no-op.
func (c *RailwayClient) Stop(ctx context.Context) error {
	id, err := c.latestDeployment(ctx)
	if err != nil {
		return err
	}
	if id == "" {
		c.log.Info("no deployment found for service, nothing to stop", "service_id", c.serviceID)
		return nil
	}
	c.log.Info("fetched latest deployment", "deployment_id", id)

	if err := c.do(ctx, "deploy.stop", deploymentStopMutation, map[string]any{"id": id}, nil); err != nil {
		return err
	}
	c.log.Info("deployment stop requested", "deployment_id", id)
	return nil
}

func (c *RailwayClient) latestDeployment(ctx context.Context) (string, error) {
	var data latestDeploymentData
	if err := c.do(ctx, "deploy.latest_deployment", latestDeploymentQuery, map[string]any{"serviceId": c.serviceID}, &data); err != nil {
		return "", err
	}
	if data.Service == nil || len(data.Service.Deployments.Edges) == 0 {
		return "", nil
	}
	return data.Service.Deployments.Edges[0].Node.ID, nil
}

func (c *RailwayClient) do(ctx context.Context, op, query string, vars map[string]any, out any) error {
	payload, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return errors.Wrap(err, op, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, op, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return errors.Timeout(op)
		}
		return errors.WrapWithCode(err, errors.CodeUnavailable, op, "railway request failed")
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return errors.Newf(errors.CodeUnavailable, "railway returned %d", res.StatusCode).
			WithField("op", op).
			WithField("body", string(body))
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []gqlError      `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, op, "decode response")
	}
	if len(envelope.Errors) > 0 {
		return errors.Newf(errors.CodeUnavailable, "railway error: %s", envelope.Errors[0].Message).
			WithField("op", op)
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return errors.WrapWithCode(err, errors.CodeUnavailable, op, "decode data")
		}
	}
	return nil
}
