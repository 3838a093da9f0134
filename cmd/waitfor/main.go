package main

import (
	"context"
	"flag"
	"net"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

func init() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stdout)
}

var (
	targets = flag.String("targets", "localhost:27017", "comma-separated host:port list to wait for")
	timeout = flag.Duration("timeout", time.Minute, "overall time to wait for all targets")
)

// waitFor dials address until a TCP connection can be opened or ctx is done.
func waitFor(ctx context.Context, address string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0
	return backoff.RetryNotify(func() error {
		var d net.Dialer
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		conn, err := d.DialContext(dialCtx, "tcp", address)
		if err != nil {
			return err
		}
		return conn.Close()
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		log.WithError(err).WithField("target", address).WithField("retry-in", next.String()).Info("connection not yet available")
	})
}

func main() {
	flag.Parse()
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	for _, target := range strings.Split(*targets, ",") {
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if err := waitFor(ctx, target); err != nil {
			log.WithError(err).WithField("target", target).Fatal("could not open TCP connection")
		}
		log.WithField("target", target).Info("TCP connection available")
	}
}
