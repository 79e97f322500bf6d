package main

import (
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/nainya/evqlite/internal/logger"
	"github.com/nainya/evqlite/pkg/transport/client"
	"github.com/nainya/evqlite/pkg/wire"
)

var (
	benchHosts       string
	benchConcurrency int
	benchRequests    int
	benchPayload     int
)

var rpcBenchCmd = &cobra.Command{
	Use:   "rpc-bench",
	Short: "Drive the async RPC client against a host list for manual soak testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		hosts := strings.Split(benchHosts, ",")
		if len(hosts) == 0 || hosts[0] == "" {
			return fmt.Errorf("--hosts is required")
		}

		log := logger.NewLogger(logger.Config{Level: "info", Pretty: true})

		var completed, failed int64
		c := client.New(client.Config{
			MaxConnsPerHost:  benchConcurrency,
			IOTimeout:        5 * time.Second,
			TolerateFailures: true,
		}, func(addr string) (net.Conn, error) {
			return net.DialTimeout("tcp", addr, 5*time.Second)
		}, log, nil, client.Callbacks{
			OnCompleted: func(t *client.Task, err error) {
				if err != nil {
					atomic.AddInt64(&failed, 1)
				} else {
					atomic.AddInt64(&completed, 1)
				}
			},
		})
		go c.Execute()
		defer c.Shutdown()

		payload := make([]byte, benchPayload)
		start := time.Now()
		for i := 0; i < benchRequests; i++ {
			c.AddRPC(&client.Task{
				Opcode:         wire.OpQuery,
				Payload:        payload,
				CandidateHosts: hosts,
			})
		}

		for int(atomic.LoadInt64(&completed)+atomic.LoadInt64(&failed)) < benchRequests {
			time.Sleep(10 * time.Millisecond)
		}

		elapsed := time.Since(start)
		fmt.Printf("requests=%d completed=%d failed=%d elapsed=%s\n",
			benchRequests, atomic.LoadInt64(&completed), atomic.LoadInt64(&failed), elapsed)
		return nil
	},
}

func init() {
	rpcBenchCmd.Flags().StringVar(&benchHosts, "hosts", "", "comma-separated candidate host:port list")
	rpcBenchCmd.Flags().IntVar(&benchConcurrency, "concurrency", 4, "max concurrent connections per host")
	rpcBenchCmd.Flags().IntVar(&benchRequests, "requests", 100, "total number of requests to issue")
	rpcBenchCmd.Flags().IntVar(&benchPayload, "payload-size", 64, "payload size in bytes per request")
}
