package etcd

import (
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// ClientConfig is what NewClient needs to reach the cluster.
type ClientConfig struct {
	Endpoints   []string
	DialTimeout time.Duration
	Username    string
	Password    string
}

func NewClient(cfg ClientConfig) (*clientv3.Client, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:            cfg.Endpoints,
		DialTimeout:          cfg.DialTimeout,
		Username:             cfg.Username,
		Password:             cfg.Password,
		PermitWithoutStream:  true,
		DialKeepAliveTime:    10 * time.Second,
		DialKeepAliveTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, err
	}
	return cli, nil
}
