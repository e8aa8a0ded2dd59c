// Package transports registers every built-in sink with the default registry.
package transports

import (
	"sync"

	"github.com/drblury/shipflow/transport/aws"
	"github.com/drblury/shipflow/transport/channel"
	"github.com/drblury/shipflow/transport/http"
	"github.com/drblury/shipflow/transport/io"
	"github.com/drblury/shipflow/transport/jetstream"
	"github.com/drblury/shipflow/transport/kafka"
	"github.com/drblury/shipflow/transport/nats"
	"github.com/drblury/shipflow/transport/opensearch"
	"github.com/drblury/shipflow/transport/rabbitmq"
	"github.com/drblury/shipflow/transport/s3"
)

var once sync.Once

// RegisterAll registers the built-in sinks. Later calls are no-ops.
func RegisterAll() {
	once.Do(func() {
		io.Register()
		http.Register()
		channel.Register()
		kafka.Register()
		rabbitmq.Register()
		nats.Register()
		jetstream.Register()
		aws.Register()
		s3.Register()
		opensearch.Register()
	})
}
