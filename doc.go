// Package filescan is a recursive file-inspection backend. A submitted blob
// is tasted into flavors, routed to inspectors, and any children the
// inspectors extract are fed back through the same pipeline until the
// submission's budget or deadline runs out. Every node yields one [Event].
//
// # Pipeline
//
// Each node passes through four stages:
//
//   - A [Taster] classifies the content into a MIME type plus signature and
//     filename flavors (see package taste).
//   - The [Router] maps flavors to an ordered, de-duplicated inspector list
//     using a static [RouteTable], with a fallback when nothing matches.
//   - The [Dispatcher] runs each inspector under its own timeout, capped by
//     the submission deadline. A failing, panicking or slow inspector only
//     raises "<name>_error" or "<name>_timeout" on the event.
//   - The [Coordinator] admits extracted children against the submission's
//     depth, file and byte budget, then suppresses duplicate content.
//
// # Basic Usage
//
//	taster, _ := taste.New(taste.MustDefault())
//	router, _ := filescan.NewRouter(inspector.DefaultRouteTable(), inspector.DefaultRegistry())
//
//	backend := filescan.New(memory.New(), taster, router)
//	defer backend.Close()
//	go backend.Run(ctx)
//
//	report, err := backend.Scan(ctx, filescan.Submission{Name: "mail.eml", Data: data})
//	for _, ev := range report.Events {
//	    fmt.Println(ev.Depth, ev.Name, ev.Flags)
//	}
//
// # Coordination Store
//
// Workers share work through a [Store]: the queue of pending nodes, the
// per-submission counters, the dedup set and the uploaded results. Any number
// of backends may run against one store. Drivers register themselves on
// import:
//
//   - In-memory (github.com/gobeaver/filescan/driver/memory)
//   - PostgreSQL (github.com/gobeaver/filescan/driver/postgres)
//
// Transient store faults are retried with bounded exponential backoff; once
// the attempts are spent the submission fails with an error matching
// [ErrStoreUnavailable].
//
// # Payload Stores
//
// Children larger than the claim threshold are compressed and parked in a
// [PayloadStore] so that queued work items stay small. Parked payloads can
// be sealed with AES-256-GCM through [EncryptedPayloads].
//
//   - Local filesystem (github.com/gobeaver/filescan/driver/local)
//   - Amazon S3 (github.com/gobeaver/filescan/driver/s3)
//   - Google Cloud Storage (github.com/gobeaver/filescan/driver/gcs)
//   - Azure Blob Storage (github.com/gobeaver/filescan/driver/azure)
//   - MinIO (github.com/gobeaver/filescan/driver/minio)
//   - SFTP (github.com/gobeaver/filescan/driver/sftp)
//
// # Error Handling
//
// Inspector faults never fail a submission. Store faults do:
//
//	report, err := backend.Scan(ctx, sub)
//	if filescan.IsStoreUnavailable(err) {
//	    // retry the submission later
//	}
//
//	var nodeErr *filescan.NodeError
//	if errors.As(err, &nodeErr) {
//	    fmt.Printf("Operation: %s, Node: %s\n", nodeErr.Op, nodeErr.Node)
//	}
//
// # Configuration
//
// The backend can be configured via environment variables with the
// BEAVER_FILESCAN_ prefix, or programmatically via the [Config] struct:
//
//	cfg := filescan.Config{
//	    StoreDriver: "postgres",
//	    PostgresDSN: "postgres://scan@localhost/scan",
//	    MaxFiles:    1000,
//	}
//	backend, err := filescan.NewFromConfig(&cfg, taster, router)
package filescan
