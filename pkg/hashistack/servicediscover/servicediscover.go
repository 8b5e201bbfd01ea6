package servicediscover

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"storekit-keyplane/pkg/config"

	"github.com/hashicorp/consul/api"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module announces the process to consul on start and withdraws it on
// shutdown. Registration is skipped when no consul address is configured.
var Module = fx.Module("servicediscover",
	fx.Provide(NewConfig, NewClient),
	fx.Invoke(RegisterService),
)

func NewConfig(cfg *config.Config) *api.Config {
	consulConfig := api.DefaultConfig()
	if cfg.Consul.Addr != "" {
		consulConfig.Address = cfg.Consul.Addr
	}

	return consulConfig
}

func NewClient(config *api.Config) (*api.Client, error) {
	return api.NewClient(config)
}

type RegistryParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
	Client    *api.Client
}

func RegisterService(p RegistryParams) {
	if p.Config.Consul.Addr == "" {
		zap.L().Info("[Consul] not configured, skipping service registration")
		return
	}

	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}

	port, err := strconv.Atoi(p.Config.Server.Addr)
	if err != nil {
		zap.L().Warn("[Consul] invalid http port, skipping service registration",
			zap.String("addr", p.Config.Server.Addr))
		return
	}

	serviceID := fmt.Sprintf("%s-%s", p.Config.AppName, host)
	service := &api.AgentServiceRegistration{
		ID:      serviceID,
		Name:    p.Config.AppName,
		Address: host,
		Port:    port,
		Tags:    []string{p.Config.AppEnv},
		Check: &api.AgentServiceCheck{
			HTTP:     fmt.Sprintf("http://%s:%d/health/readiness", host, port),
			Interval: "10s",
			Timeout:  "5s",
		},
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := p.Client.Agent().ServiceRegister(service); err != nil {
				return err
			}
			zap.L().Info("[Consul] service registered", zap.String("service_id", serviceID))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			zap.L().Info("[Consul] deregistering service", zap.String("service_id", serviceID))
			return p.Client.Agent().ServiceDeregister(serviceID)
		},
	})
}
