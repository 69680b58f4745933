package zremote

import (
	"context"
	"encoding/json"
	"time"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/pkg/errors"
)

type consulDiscover struct {
	ctx    context.Context
	cancel context.CancelFunc

	service string
	logger  Logger
	client  *consulapi.Client
	retry   time.Duration
}

// NewConsulDiscover consul 服务发现，连接 Registries 中的第一个 agent
//  节点的 Meta["scheme"] 指定协议，缺省为 ws
func NewConsulDiscover(cnf *DiscoverConfig) (ServiceDiscover, error) {
	if cnf.Logger == nil {
		cnf.Logger = defaultLogger()
	}

	consulConfig := consulapi.DefaultConfig()
	if len(cnf.Registries) > 0 {
		consulConfig.Address = cnf.Registries[0]
	}
	consulClient, err := consulapi.NewClient(consulConfig)
	if err != nil {
		return nil, errors.Wrap(err, "zremote: consul client")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &consulDiscover{
		ctx:     ctx,
		cancel:  cancel,
		service: cnf.ServiceName,
		logger:  cnf.Logger,
		client:  consulClient,
		retry:   time.Second,
	}, nil
}

// Watch 阻塞查询服务的健康状态，passing 的节点加入，其余移除
func (cd *consulDiscover) Watch(callback WatchCallback) {
	var lastIndex uint64
	for {
		opts := (&consulapi.QueryOptions{
			WaitIndex: lastIndex, // 阻塞查询，直到有新的更新
		}).WithContext(cd.ctx)
		services, querymeta, err := cd.client.Health().Service(cd.service, "", false, opts)
		if err != nil {
			if cd.ctx.Err() != nil {
				return
			}
			cd.logger.Warnf("consul discover: watch %s: %v", cd.service, err)
			select {
			case <-cd.ctx.Done():
				return
			case <-time.After(cd.retry):
			}
			continue
		}
		// index 回退时重新全量查询
		if querymeta.LastIndex < lastIndex {
			lastIndex = 0
		} else {
			lastIndex = querymeta.LastIndex
		}

		for _, service := range services {
			id := service.Service.ID
			switch service.Checks.AggregatedStatus() {
			case consulapi.HealthPassing:
				metadata, _ := json.Marshal(consulEndpoint(service))
				if err := callback.AddOrUpdate(id, metadata); err != nil {
					cd.logger.Warnf("consul discover: endpoint %s: %v", id, err)
				}
			case consulapi.HealthWarning, consulapi.HealthCritical:
				callback.Delete(id)
			}
		}
	}
}

func consulEndpoint(service *consulapi.ServiceEntry) Endpoint {
	host := service.Service.Address
	if host == "" && service.Node != nil {
		host = service.Node.Address
	}
	e := Endpoint{
		Scheme: service.Service.Meta["scheme"],
		Host:   host,
		Port:   service.Service.Port,
		Path:   service.Service.Meta["path"],
	}
	if e.Scheme == "" {
		e.Scheme = "ws"
	}
	return e
}

// Stop 停止监控
func (cd *consulDiscover) Stop() {
	cd.cancel()
}
