package indexer

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/nodetalk/appview/internal/database"
	"github.com/nodetalk/appview/internal/gateway"
	"github.com/nodetalk/appview/internal/pds"
	"github.com/nodetalk/appview/internal/stats"
)

// Notifier is the fanout side of the gateway the indexer needs.
type Notifier interface {
	PushToIdentity(did string, event *gateway.ServerEvent)
}

// Indexer watches subscribed PDS repositories for chat message records and
// maintains the local message reference index. One polling goroutine runs
// per subscribed DID; the immediate-notify API shares Ingest with the
// pollers, so both paths converge on the same dedup and fanout logic.
type Indexer struct {
	log          *log.Logger
	db           database.AppViewRepository
	pds          pds.RecordLister
	notifier     Notifier
	stats        stats.StatsProvider
	pollInterval time.Duration

	mu      sync.Mutex
	pollers map[string]string // did -> pds endpoint
	stop    chan struct{}
}

func NewIndexer(logger *log.Logger, db database.AppViewRepository, lister pds.RecordLister,
	notifier Notifier, statsProvider stats.StatsProvider, pollInterval time.Duration) *Indexer {
	return &Indexer{
		log:          logger,
		db:           db,
		pds:          lister,
		notifier:     notifier,
		stats:        statsProvider,
		pollInterval: pollInterval,
		pollers:      make(map[string]string),
		stop:         make(chan struct{}),
	}
}

// Subscribe starts polling the identity's repository. Idempotent: a DID that
// is already being polled is skipped. There is no way to stop polling a
// single DID short of process shutdown.
func (i *Indexer) Subscribe(did, pdsEndpoint string) {
	i.mu.Lock()
	if _, ok := i.pollers[did]; ok {
		i.mu.Unlock()
		i.log.Printf("already subscribed to %q", did)
		return
	}
	i.pollers[did] = pdsEndpoint
	i.mu.Unlock()

	i.log.Printf("subscribing to PDS for %q at %q", did, pdsEndpoint)
	i.stats.Incr(stats.ActivePollers)

	go i.run(did, pdsEndpoint)
}

func (i *Indexer) run(did, pdsEndpoint string) {
	i.backfill(did, pdsEndpoint)

	ticker := time.NewTicker(i.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			i.tick(did, pdsEndpoint)
		case <-i.stop:
			return
		}
	}
}

// backfill indexes every existing record for the DID with notifications
// suppressed, so a (re)start does not flood live subscribers with history.
func (i *Indexer) backfill(did, pdsEndpoint string) {
	records, err := i.pds.ListRecords(context.Background(), pdsEndpoint, did, pds.MessageCollection)
	if err != nil {
		if errors.Is(err, pds.ErrUnauthorized) {
			i.log.Printf("cannot authenticate to PDS for %q, skipping backfill", did)
		} else {
			i.log.Printf("error loading existing messages for %q: %v", did, err)
		}
		return
	}

	indexed := 0
	for _, rec := range records {
		ref, err := i.Ingest(rec, did, false)
		if err != nil {
			i.log.Printf("backfill ingest %q: %v", rec.Uri, err)
			continue
		}
		if ref != nil {
			indexed++
		}
	}

	i.log.Printf("indexed %d existing messages for %q", indexed, did)
}

// tick runs one steady-state poll pass. The watermark is re-read from the
// store every tick so records already ingested through the immediate-notify
// path are treated as seen. Errors never stop the loop; the next tick
// retries unconditionally.
func (i *Indexer) tick(did, pdsEndpoint string) {
	watermark, err := i.db.LatestIndexedAt(did)
	if err != nil {
		i.log.Printf("read watermark for %q: %v", did, err)
		i.stats.Incr(stats.PollErrors)
		return
	}

	records, err := i.pds.ListRecords(context.Background(), pdsEndpoint, did, pds.MessageCollection)
	if err != nil {
		if !errors.Is(err, pds.ErrUnauthorized) {
			i.log.Printf("error polling PDS for %q: %v", did, err)
			i.stats.Incr(stats.PollErrors)
		}
		return
	}

	for _, rec := range records {
		if !recordCreatedAt(rec).After(watermark) {
			continue
		}

		if _, err := i.Ingest(rec, did, true); err != nil {
			i.log.Printf("ingest %q: %v", rec.Uri, err)
		}
	}
}

// Shutdown stops every polling loop.
func (i *Indexer) Shutdown() {
	select {
	case <-i.stop:
	default:
		close(i.stop)
	}
}

func recordCreatedAt(rec pds.Record) time.Time {
	if rec.Value.CreatedAt == "" {
		return time.Now().UTC()
	}

	t, err := time.Parse(time.RFC3339, rec.Value.CreatedAt)
	if err != nil {
		return time.Now().UTC()
	}

	return t.UTC()
}
