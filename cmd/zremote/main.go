package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hunyxv/zremote"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	locator    string
	configPath string

	log = logrus.New()
)

func main() {
	root := &cobra.Command{
		Use:           "zremote",
		Short:         "zenoh remote api client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&locator, "locator", "e", "ws://localhost:10000", "remote api locator")
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (toml or yaml)")

	root.AddCommand(
		putCmd(),
		deleteCmd(),
		subCmd(),
		pubCmd(),
		getCmd(),
		queryableCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

// openSession 命令行参数优先于配置文件
func openSession(cmd *cobra.Command) (*zremote.Session, error) {
	opts := []zremote.Option{zremote.WithLogger(log)}
	loc := locator
	if configPath != "" {
		cnf, err := zremote.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		more, err := cnf.Options()
		if err != nil {
			return nil, err
		}
		opts = append(opts, more...)
		if !cmd.Flags().Changed("locator") {
			// 配置了服务发现且没有 locator 时由服务发现选择节点
			if cnf.Locator != "" || cnf.Discover != nil {
				loc = cnf.Locator
			}
		}
	}
	return zremote.Open(cmd.Context(), loc, opts...)
}

// withSession 打开会话，执行 fn，最后关闭会话
func withSession(fn func(ctx context.Context, s *zremote.Session) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		log.Infof("session %s opened", s.ID())
		return fn(cmd.Context(), s)
	}
}

// waitDone 等待信号或连接断开
func waitDone(ctx context.Context, s *zremote.Session) {
	select {
	case <-ctx.Done():
	case <-s.Done():
		log.Warn("connection closed")
	}
}
