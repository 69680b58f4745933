package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hunyxv/zremote"
	"github.com/spf13/cobra"
)

func putCmd() *cobra.Command {
	var key, val string
	cmd := &cobra.Command{
		Use:   "put",
		Short: "put a value on a key expression",
		RunE: withSession(func(ctx context.Context, s *zremote.Session) error {
			log.Infof("putting %s: %q", key, val)
			return s.Put(ctx, key, []byte(val), zremote.WithEncoding(zremote.EncodingString))
		}),
	}
	cmd.Flags().StringVarP(&key, "key", "k", "demo/example/zremote-put", "key expression")
	cmd.Flags().StringVarP(&val, "value", "v", "Put from zremote", "value")
	return cmd
}

func deleteCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "delete a key expression",
		RunE: withSession(func(ctx context.Context, s *zremote.Session) error {
			log.Infof("deleting %s", key)
			return s.Delete(ctx, key)
		}),
	}
	cmd.Flags().StringVarP(&key, "key", "k", "demo/example/zremote-put", "key expression")
	return cmd
}

func subCmd() *cobra.Command {
	var (
		key  string
		ring int
	)
	cmd := &cobra.Command{
		Use:   "sub",
		Short: "subscribe to a key expression and print received samples",
		RunE: withSession(func(ctx context.Context, s *zremote.Session) error {
			var opts []zremote.OpOption
			if ring > 0 {
				opts = append(opts, zremote.WithHandler(zremote.RingChannel(ring)))
			}
			sub, err := s.DeclareSubscriberFunc(ctx, key, func(sample zremote.Sample) error {
				fmt.Printf(">> [Subscriber] Received %s ('%s': '%s')\n", sample.Kind, sample.KeyExpr, sample.Payload)
				return nil
			}, opts...)
			if err != nil {
				return err
			}
			log.Infof("declared subscriber %s on %s", sub.ID(), sub.KeyExpr())
			waitDone(ctx, s)
			return sub.Undeclare(context.Background())
		}),
	}
	cmd.Flags().StringVarP(&key, "key", "k", "demo/example/**", "key expression")
	cmd.Flags().IntVar(&ring, "ring", 0, "use a ring channel of this size on the remote side")
	return cmd
}

func pubCmd() *cobra.Command {
	var (
		key, val string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "pub",
		Short: "declare a publisher and put a value periodically",
		RunE: withSession(func(ctx context.Context, s *zremote.Session) error {
			pub, err := s.DeclarePublisher(ctx, key, zremote.WithEncoding(zremote.EncodingString))
			if err != nil {
				return err
			}
			defer pub.Undeclare(context.Background())

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for i := 0; ; i++ {
				select {
				case <-ctx.Done():
					return nil
				case <-s.Done():
					return zremote.ErrDisconnected
				case <-ticker.C:
				}
				payload := fmt.Sprintf("[%4d] %s", i, val)
				fmt.Printf("Putting Data ('%s': '%s')...\n", key, payload)
				if err := pub.Put(ctx, []byte(payload)); err != nil {
					return err
				}
			}
		}),
	}
	cmd.Flags().StringVarP(&key, "key", "k", "demo/example/zremote-pub", "key expression")
	cmd.Flags().StringVarP(&val, "value", "v", "Pub from zremote!", "value")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "publish interval")
	return cmd
}

func getCmd() *cobra.Command {
	var (
		key     string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "get",
		Short: "query a selector and print the replies",
		RunE: withSession(func(ctx context.Context, s *zremote.Session) error {
			rcv, err := s.Get(ctx, key)
			if err != nil {
				return err
			}
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			for {
				reply, err := rcv.Recv(ctx)
				switch {
				case err == nil:
				case errors.Is(err, zremote.ErrMalformedReply):
					log.Warn(err)
					continue
				case errors.Is(err, zremote.ErrEndOfStream):
					return nil
				default:
					return err
				}
				if reply.IsOk() {
					fmt.Printf(">> Received ('%s': '%s')\n", reply.Sample.KeyExpr, reply.Sample.Payload)
				} else {
					fmt.Printf(">> Received (ERROR: '%s')\n", reply.Err.Payload)
				}
			}
		}),
	}
	cmd.Flags().StringVarP(&key, "key", "k", "demo/example/**", "selector")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "stop waiting for replies after this long")
	return cmd
}

func queryableCmd() *cobra.Command {
	var (
		key, val string
		complete bool
	)
	cmd := &cobra.Command{
		Use:   "queryable",
		Short: "declare a queryable answering every query with a value",
		RunE: withSession(func(ctx context.Context, s *zremote.Session) error {
			qa, err := s.DeclareQueryable(ctx, key, complete)
			if err != nil {
				return err
			}
			defer qa.Undeclare(context.Background())
			for {
				query, err := qa.Recv(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
				fmt.Printf(">> [Queryable] Received Query '%s'\n", query.Selector())
				if err := query.Reply(ctx, key, []byte(val)); err != nil {
					log.Warnf("reply to %s: %v", query.ID(), err)
				}
				query.Finalize()
			}
		}),
	}
	cmd.Flags().StringVarP(&key, "key", "k", "demo/example/zremote-queryable", "key expression")
	cmd.Flags().StringVarP(&val, "value", "v", "Queryable from zremote!", "value")
	cmd.Flags().BoolVar(&complete, "complete", false, "declare the queryable as complete")
	return cmd
}
