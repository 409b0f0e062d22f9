// Package discovery manages the gateway's service-instance registry for a
// backend module's deployment descriptor.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/folio-tools/stripesctl/internal/app/domain/module"
	"github.com/folio-tools/stripesctl/internal/okapi"
	"github.com/folio-tools/stripesctl/pkg/logger"
)

// descriptorFile is where a backend module's build step leaves its
// deployment descriptor. Producing the file is out of scope here.
const descriptorFile = "target/DeploymentDescriptor.json"

// vmGatewayURL addresses the host gateway from inside a development VM.
const vmGatewayURL = "http://10.0.2.15:9130"

// Instance is one deployed service instance known to the gateway.
type Instance struct {
	InstID string `json:"instId"`
	SrvcID string `json:"srvcId"`
	URL    string `json:"url,omitempty"`
}

// DeploymentDescriptor is the subset of the on-disk descriptor the service
// reads; the remainder passes through to the gateway untouched.
type DeploymentDescriptor struct {
	SrvcID string `json:"srvcId"`
	InstID string `json:"instId,omitempty"`
	URL    string `json:"url,omitempty"`

	raw map[string]interface{}
}

// Service performs instance CRUD for one module directory.
type Service struct {
	routes *okapi.Routes
	log    *logger.Logger
}

// New constructs a discovery service.
func New(routes *okapi.Routes, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("discovery")
	}
	return &Service{routes: routes, log: log}
}

// ReadDescriptor loads the module directory's deployment descriptor.
func ReadDescriptor(dir string) (*DeploymentDescriptor, error) {
	path := filepath.Join(dir, filepath.FromSlash(descriptorFile))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deployment descriptor: %w", err)
	}
	var dd DeploymentDescriptor
	if err := json.Unmarshal(data, &dd); err != nil {
		return nil, fmt.Errorf("parse deployment descriptor: %w", err)
	}
	if dd.SrvcID == "" {
		return nil, fmt.Errorf("deployment descriptor %s has no srvcId", path)
	}
	if err := json.Unmarshal(data, &dd.raw); err != nil {
		return nil, fmt.Errorf("parse deployment descriptor: %w", err)
	}
	return &dd, nil
}

// ListInstances returns the gateway's registered instances for the module in
// dir. A gateway "not found" response is an empty list, not an error.
func (s *Service) ListInstances(ctx context.Context, dir string) ([]Instance, error) {
	dd, err := ReadDescriptor(dir)
	if err != nil {
		return nil, err
	}
	resp, err := s.routes.ListDiscoveryInstances(ctx, dd.SrvcID)
	if err != nil {
		if isNotFound(err) {
			return []Instance{}, nil
		}
		return nil, err
	}
	var instances []Instance
	if err := resp.JSON(&instances); err != nil {
		return nil, fmt.Errorf("decode discovery response: %w", err)
	}
	return instances, nil
}

// RemoveInstances unregisters all instances for the module in dir. A gateway
// "not found" resolves without the success flag rather than failing.
func (s *Service) RemoveInstances(ctx context.Context, dir string) (module.InstallResult, error) {
	dd, err := ReadDescriptor(dir)
	if err != nil {
		return module.InstallResult{}, err
	}
	if _, err := s.routes.RemoveDiscoveryInstances(ctx, dd.SrvcID); err != nil {
		if isNotFound(err) {
			return module.InstallResult{ID: dd.SrvcID}, nil
		}
		return module.InstallResult{}, err
	}
	return module.InstallResult{ID: dd.SrvcID, Success: true}, nil
}

// AddInstance registers the module at a caller-supplied URL. The instance id
// carries a synthetic suffix so manually-added instances are distinguishable
// from auto-discovered ones.
func (s *Service) AddInstance(ctx context.Context, dir, instanceURL string) (Instance, error) {
	dd, err := ReadDescriptor(dir)
	if err != nil {
		return Instance{}, err
	}
	return s.addInstance(ctx, dd, instanceURL)
}

// AddVMInstance registers the module at the fixed gateway address a
// development VM exposes to its guest.
func (s *Service) AddVMInstance(ctx context.Context, dir string) (Instance, error) {
	dd, err := ReadDescriptor(dir)
	if err != nil {
		return Instance{}, err
	}
	return s.addInstance(ctx, dd, vmGatewayURL)
}

func (s *Service) addInstance(ctx context.Context, dd *DeploymentDescriptor, instanceURL string) (Instance, error) {
	instance := Instance{
		InstID: fmt.Sprintf("%s-manual-%s", dd.SrvcID, uuid.NewString()[:8]),
		SrvcID: dd.SrvcID,
		URL:    instanceURL,
	}

	payload := make(map[string]interface{}, len(dd.raw)+3)
	for k, v := range dd.raw {
		payload[k] = v
	}
	payload["instId"] = instance.InstID
	payload["url"] = instance.URL
	// A descriptor with a url is registered as-is; the gateway must not try
	// to launch the module itself.
	delete(payload, "descriptor")

	if _, err := s.routes.AddDiscoveryInstance(ctx, payload); err != nil {
		return Instance{}, err
	}
	s.log.WithField("srvcId", instance.SrvcID).
		WithField("instId", instance.InstID).
		Info("instance registered")
	return instance, nil
}

func isNotFound(err error) bool {
	var gw *okapi.Error
	return errors.As(err, &gw) && gw.StatusCode == http.StatusNotFound
}
