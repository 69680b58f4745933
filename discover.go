package zremote

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// 节点元数据使用 json 序列化，以便查看

// DiscoverConfig 服务发现所需配置
type DiscoverConfig struct {
	Backend       string   `toml:"backend" yaml:"backend"`               // consul | etcd | zookeeper
	Registries    []string `toml:"registries" yaml:"registries"`         // 注册中心 endpoint
	ServicePrefix string   `toml:"service_prefix" yaml:"service_prefix"` // 服务前缀
	ServiceName   string   `toml:"service_name" yaml:"service_name"`     // remote api 服务名
	Logger        Logger   `toml:"-" yaml:"-"`
}

func (cnf *DiscoverConfig) path() string {
	return strings.Join([]string{cnf.ServicePrefix, cnf.ServiceName}, "/")
}

// ServiceDiscover 服务发现
type ServiceDiscover interface {
	// Watch 监控节点变化，阻塞直到 Stop
	Watch(callback WatchCallback)
	// Stop 停止监控
	Stop()
}

// WatchCallback 服务发现，节点变更事件回调接口
type WatchCallback interface {
	AddOrUpdate(id string, metadata []byte) error
	Delete(id string)
}

// NewDiscover 按 cnf.Backend 创建服务发现
func NewDiscover(cnf *DiscoverConfig) (ServiceDiscover, error) {
	switch cnf.Backend {
	case "consul":
		return NewConsulDiscover(cnf)
	case "etcd":
		return NewEtcdDiscover(cnf)
	case "zookeeper", "zk":
		return NewZookeeperDiscover(cnf)
	}
	return nil, errors.Errorf("zremote: unknown discover backend %q", cnf.Backend)
}

// Endpoint 一个 remote api 节点
type Endpoint struct {
	Scheme string `json:"scheme"` // ws | wss | zmq+tcp | zmq+ipc
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Path   string `json:"path,omitempty"`
}

// Locator 转换为 Open 使用的 locator
func (e Endpoint) Locator() string {
	if e.Port == 0 {
		return fmt.Sprintf("%s://%s%s", e.Scheme, e.Host, e.Path)
	}
	return fmt.Sprintf("%s://%s%s", e.Scheme, net.JoinHostPort(e.Host, strconv.Itoa(e.Port)), e.Path)
}

// ParseEndpoint 解析注册中心中的节点元数据
func ParseEndpoint(metadata []byte) (Endpoint, error) {
	var e Endpoint
	if err := json.Unmarshal(metadata, &e); err != nil {
		return e, errors.Wrap(err, "zremote: parse endpoint")
	}
	if e.Scheme == "" {
		e.Scheme = "ws"
	}
	if e.Host == "" && e.Path == "" {
		return e, errors.New("zremote: endpoint without host")
	}
	return e, nil
}

var _ WatchCallback = (*endpointSet)(nil)

// endpointSet 收集服务发现得到的节点
type endpointSet struct {
	mu        sync.Mutex
	endpoints map[string]Endpoint
	changed   chan struct{}
}

func newEndpointSet() *endpointSet {
	return &endpointSet{
		endpoints: make(map[string]Endpoint),
		changed:   make(chan struct{}, 1),
	}
}

func (es *endpointSet) AddOrUpdate(id string, metadata []byte) error {
	e, err := ParseEndpoint(metadata)
	if err != nil {
		return err
	}
	es.mu.Lock()
	es.endpoints[id] = e
	es.mu.Unlock()
	signal(es.changed)
	return nil
}

func (es *endpointSet) Delete(id string) {
	es.mu.Lock()
	delete(es.endpoints, id)
	es.mu.Unlock()
}

// pick 随机选择一个节点
func (es *endpointSet) pick() (Endpoint, bool) {
	es.mu.Lock()
	defer es.mu.Unlock()
	if len(es.endpoints) == 0 {
		return Endpoint{}, false
	}
	i := rand.Intn(len(es.endpoints))
	for _, e := range es.endpoints {
		if i == 0 {
			return e, true
		}
		i--
	}
	return Endpoint{}, false
}

// wait 等待直到有可用节点
func (es *endpointSet) wait(ctx context.Context) (Endpoint, error) {
	for {
		if e, ok := es.pick(); ok {
			return e, nil
		}
		select {
		case <-ctx.Done():
			return Endpoint{}, errors.WithMessage(ErrNoEndpoint, ctx.Err().Error())
		case <-es.changed:
		}
	}
}

// resolveLocator 通过服务发现选择一个节点，选中后停止监控
func resolveLocator(ctx context.Context, opts *options) (string, error) {
	set := newEndpointSet()
	go opts.Discover.Watch(set)
	defer opts.Discover.Stop()

	if opts.OpenTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.OpenTimeout)
		defer cancel()
	}
	e, err := set.wait(ctx)
	if err != nil {
		return "", err
	}
	opts.Logger.Infof("[zremote]: discovered remote api endpoint %s", e.Locator())
	return e.Locator(), nil
}
