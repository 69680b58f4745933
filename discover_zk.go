package zremote

import (
	"time"

	"github.com/go-zookeeper/zk"
)

// zkConn zookeeperDiscover 用到的 zk 连接方法，*zk.Conn 实现了它
type zkConn interface {
	ChildrenW(path string) ([]string, *zk.Stat, <-chan zk.Event, error)
	Get(path string) ([]byte, *zk.Stat, error)
	Close()
}

type zookeeperDiscover struct {
	path   string
	logger Logger
	client zkConn
	retry  time.Duration
	known  map[string]struct{}
}

// NewZookeeperDiscover zookeeper 服务发现，<prefix>/<service> 的每个子节点是一个 Endpoint json
func NewZookeeperDiscover(cnf *DiscoverConfig) (ServiceDiscover, error) {
	zkClient, _, err := zk.Connect(cnf.Registries, time.Second*5)
	if err != nil {
		return nil, err
	}
	return newZookeeperDiscover(cnf, zkClient), nil
}

func newZookeeperDiscover(cnf *DiscoverConfig, client zkConn) *zookeeperDiscover {
	if cnf.Logger == nil {
		cnf.Logger = defaultLogger()
	}
	return &zookeeperDiscover{
		path:   cnf.path(),
		logger: cnf.Logger,
		client: client,
		retry:  time.Second * 3,
		known:  make(map[string]struct{}),
	}
}

// Watch 监控节点变化，连接关闭后返回
func (zd *zookeeperDiscover) Watch(callback WatchCallback) {
	for {
		children, _, eventch, err := zd.client.ChildrenW(zd.path)
		if err != nil {
			if err == zk.ErrConnectionClosed || err == zk.ErrClosing {
				return
			}
			zd.logger.Warnf("zookeeper discover: watch %s: %v", zd.path, err)
			time.Sleep(zd.retry)
			continue
		}
		zd.sync(children, callback)

		event := <-eventch
		if event.Err == zk.ErrClosing || event.State == zk.StateDisconnected && event.Type == zk.EventNotWatching {
			return
		}
	}
}

// sync 用最新的子节点列表更新回调
func (zd *zookeeperDiscover) sync(children []string, callback WatchCallback) {
	current := make(map[string]struct{}, len(children))
	for _, child := range children {
		current[child] = struct{}{}
		data, _, err := zd.client.Get(zd.path + "/" + child)
		if err != nil {
			zd.logger.Warnf("zookeeper discover: get %s: %v", child, err)
			continue
		}
		if err := callback.AddOrUpdate(child, data); err != nil {
			zd.logger.Warnf("zookeeper discover: endpoint %s: %v", child, err)
		}
	}
	for id := range zd.known {
		if _, ok := current[id]; !ok {
			callback.Delete(id)
		}
	}
	zd.known = current
}

// Stop 停止监控
func (zd *zookeeperDiscover) Stop() {
	zd.client.Close()
}
