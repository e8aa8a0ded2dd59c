// Package shipflow ships batches of upstream records (Kinesis, SQS or SNS
// deliveries, or plain newline-delimited input) to a configured sink.
//
// Every invocation is matched to a source by its source id. The source
// deserializes each record, runs its operation chain (time extraction, field
// drops, partitioning, filters and array splits), and hands the survivors to
// the wrapper and serializer. Serialized records are packed into size-bounded,
// optionally compressed buffers that are delivered in parallel, one buffer per
// partition key for sinks that require partitioning.
//
// A minimal setup loads a Config, registers the built-in sinks and calls
// Handler.Process once per batch:
//
//	conf, err := shipflow.LoadConfig("config/latest.yaml")
//	shipflow.RegisterTransports()
//	h, err := shipflow.NewHandler(conf, shipflow.Dependencies{})
//	err = h.Process(ctx, shipflow.Invocation{SourceID: arn}, batch.All())
//
// # Transports
//
// Sinks are looked up by name in a transport registry:
//   - stdout, file, devnull: local output
//   - http: POST with retries and status checks
//   - channel: in-memory Go channel, for tests and embedding
//   - kafka, rabbitmq, nats, jetstream: brokers via Watermill or NATS
//   - sns, sqs: AWS, with LocalStack support
//   - s3: partitioned object uploads
//   - opensearch: bulk indexing
//
// # Stats
//
// Each invocation resets the stats registry, records counts and timings for
// every stage and reports them once through the configured reporters
// (CloudWatch EMF, Prometheus or the log).
package shipflow
