package zremote

import (
	"context"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// etcdKV etcdDiscover 用到的 etcd 客户端方法，*clientv3.Client 实现了它
type etcdKV interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Watch(ctx context.Context, key string, opts ...clientv3.OpOption) clientv3.WatchChan
	Close() error
}

type etcdDiscover struct {
	ctx    context.Context
	cancel context.CancelFunc

	prefix string
	logger Logger
	client etcdKV
}

// NewEtcdDiscover etcd 服务发现，<prefix>/<service>/<id> -> Endpoint json
func NewEtcdDiscover(cnf *DiscoverConfig) (ServiceDiscover, error) {
	etcdClient, err := clientv3.New(clientv3.Config{
		Endpoints:   cnf.Registries,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return newEtcdDiscover(cnf, etcdClient), nil
}

func newEtcdDiscover(cnf *DiscoverConfig, client etcdKV) *etcdDiscover {
	if cnf.Logger == nil {
		cnf.Logger = defaultLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &etcdDiscover{
		ctx:    ctx,
		cancel: cancel,
		prefix: cnf.path() + "/",
		logger: cnf.Logger,
		client: client,
	}
}

// Watch 先全量读取，再从读取时的 revision 之后开始 watch，中间的变更不会丢
func (ed *etcdDiscover) Watch(callback WatchCallback) {
	opts := []clientv3.OpOption{clientv3.WithPrefix()}
	if rev, ok := ed.getAll(callback); ok {
		opts = append(opts, clientv3.WithRev(rev+1))
	}

	watch := ed.client.Watch(ed.ctx, ed.prefix, opts...)
	for {
		select {
		case <-ed.ctx.Done():
			return
		case ret, ok := <-watch:
			if !ok {
				return
			}
			if err := ret.Err(); err != nil {
				ed.logger.Errorf("etcd discover: watch %s: %v", ed.prefix, err)
				continue
			}
			ed.apply(ret.Events, callback)
		}
	}
}

func (ed *etcdDiscover) apply(events []*clientv3.Event, callback WatchCallback) {
	for _, event := range events {
		if event.Kv == nil {
			continue
		}
		id := lastSegment(string(event.Kv.Key))
		switch event.Type {
		case clientv3.EventTypePut:
			if err := callback.AddOrUpdate(id, event.Kv.Value); err != nil {
				ed.logger.Warnf("etcd discover: endpoint %s: %v", id, err)
			}
		case clientv3.EventTypeDelete:
			callback.Delete(id)
		}
	}
}

// getAll 返回读取时的 revision
func (ed *etcdDiscover) getAll(callback WatchCallback) (int64, bool) {
	ctx, cancel := context.WithTimeout(ed.ctx, time.Second*5)
	defer cancel()
	result, err := ed.client.Get(ctx, ed.prefix, clientv3.WithPrefix())
	if err != nil {
		ed.logger.Warnf("etcd discover: get %s: %v", ed.prefix, err)
		return 0, false
	}

	for _, kv := range result.Kvs {
		id := lastSegment(string(kv.Key))
		if err := callback.AddOrUpdate(id, kv.Value); err != nil {
			ed.logger.Warnf("etcd discover: endpoint %s: %v", id, err)
		}
	}
	if result.Header == nil {
		return 0, false
	}
	return result.Header.Revision, true
}

// Stop 停止监控
func (ed *etcdDiscover) Stop() {
	ed.cancel()
	ed.client.Close()
}

func lastSegment(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}
