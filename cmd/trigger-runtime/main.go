// Command trigger-runtime loads a message-trigger configuration file,
// connects its brokers, starts the dispatch loop for every configured
// trigger, and serves an HTTP gateway for every broker that configures one.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/messagetrigger/runtime/broker"
	"github.com/messagetrigger/runtime/config"
	"github.com/messagetrigger/runtime/dispatch"
	"github.com/messagetrigger/runtime/gateway"
	"github.com/messagetrigger/runtime/internal/mock"
	"github.com/messagetrigger/runtime/wiring"
)

func main() {
	configPath := flag.String("config", "trigger.yaml", "path to the trigger configuration file")
	flag.Parse()

	root, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("trigger-runtime: %v", err)
	}

	brokers, err := wiring.Brokers(root)
	if err != nil {
		log.Fatalf("trigger-runtime: %v", err)
	}

	bindings, err := wiring.Bindings(root, brokers)
	if err != nil {
		log.Fatalf("trigger-runtime: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer closeBrokers(brokers)
	servers := startGateways(root, brokers)
	defer shutdownGateways(servers)

	invoker := mock.NewEchoInvoker()
	loop := dispatch.New(brokers, invoker)

	log.Printf("trigger-runtime: starting %d binding(s)", len(bindings))
	if err := loop.Run(ctx, bindings); err != nil {
		log.Fatalf("trigger-runtime: %v", err)
	}

	log.Println("trigger-runtime: shutdown complete")
}

// startGateways spins up one HTTP server per broker whose config names a
// gateway section.
func startGateways(root *config.Root, brokers map[string]broker.Broker) []*http.Server {
	var servers []*http.Server

	for name, bc := range root.Trigger.Brokers {
		if bc.Gateway == nil {
			continue
		}
		b, ok := brokers[name]
		if !ok {
			continue
		}

		gw := gateway.New(b, *bc.Gateway)
		addr := ":" + strconv.Itoa(int(bc.Gateway.Port))
		srv := &http.Server{Addr: addr, Handler: gw.Router()}

		go func(name, addr string) {
			log.Printf("trigger-runtime: gateway %q listening on %s", name, addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("trigger-runtime: gateway %q stopped: %v", name, err)
			}
		}(name, addr)

		servers = append(servers, srv)
	}

	return servers
}

func shutdownGateways(servers []*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, s := range servers {
		_ = s.Shutdown(ctx)
	}
}

// closeBrokers releases the transports that hold live connections. The
// in-process and Redis brokers have no Close; NATS drains and MQTT
// disconnects.
func closeBrokers(brokers map[string]broker.Broker) {
	for name, b := range brokers {
		if c, ok := b.(io.Closer); ok {
			if err := c.Close(); err != nil {
				log.Printf("trigger-runtime: closing broker %q: %v", name, err)
			}
		}
	}
}
