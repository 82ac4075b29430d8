// Package registry resolves the current master endpoint for each logical
// database from a ZooKeeper-compatible coordination service, keeping a
// watched local snapshot fresh across reconnects and optionally fronting it
// with a short-TTL cache.
package registry

import (
	"net"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// snapshot is the read surface of the watched subtree.
type snapshot interface {
	Get(name string) ([]byte, bool)
}

// Registry resolves databaseID -> current master endpoint. It satisfies the
// driver's Resolver interface. A Registry must be created with Open and
// released with Close.
type Registry struct {
	cfg  Config
	log  log.FieldLogger
	conn *zk.Conn
	tree *treeCache
	snap snapshot

	// cache holds present resolutions only, for at most cfg.CacheTTL.
	cache *cache.Cache

	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Open connects to the coordination service, waits for the first session,
// synchronously builds the watched snapshot and starts the watch and session
// loops. It fails rather than returning a registry that has never seen the
// tree.
func Open(cfg Config) (*Registry, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dialer := func(network, address string, _ time.Duration) (net.Conn, error) {
		return net.DialTimeout(network, address, cfg.ConnectTimeout)
	}
	conn, sessionEvents, err := zk.Connect(cfg.Servers, cfg.SessionTimeout,
		zk.WithLogger(cfg.Logger), zk.WithDialer(dialer))
	if err != nil {
		return nil, errors.Wrap(err, "registry: connecting to coordination service")
	}

	r := &Registry{
		cfg:  cfg,
		log:  cfg.Logger.WithField("watch_path", cfg.WatchPath()),
		conn: conn,
		stop: make(chan struct{}),
	}
	if cfg.CacheTTL > 0 {
		r.cache = cache.New(cfg.CacheTTL, cfg.CacheTTL)
	}

	if err := awaitSession(sessionEvents, cfg.SessionTimeout); err != nil {
		conn.Close()
		return nil, err
	}
	r.log.Info("connected to coordination service for master registry")

	r.tree = newTreeCache(conn, cfg.WatchPath(), r.log)
	r.snap = r.tree
	events, err := r.tree.Build()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "registry: building initial master snapshot")
	}
	r.tree.Start(events)

	r.wg.Add(1)
	go r.sessionLoop(sessionEvents)
	return r, nil
}

// awaitSession blocks until the client holds a live session.
func awaitSession(events <-chan zk.Event, timeout time.Duration) error {
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-events:
			if ev.State == zk.StateHasSession {
				return nil
			}
		case <-deadline:
			return errors.Errorf("registry: no coordination session within %s", timeout)
		}
	}
}

// sessionLoop reacts to connection-state transitions delivered by the
// client. The first session was already consumed by Open, so every
// StateHasSession seen here is a reconnect.
func (r *Registry) sessionLoop(events <-chan zk.Event) {
	defer r.wg.Done()
	for {
		select {
		case <-r.stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.State {
			case zk.StateHasSession:
				// changes may have been missed while disconnected
				r.log.Info("reconnected to coordination service, rebuilding master registry")
				r.tree.Rebuild()
			case zk.StateDisconnected, zk.StateExpired:
				// cached resolutions are deliberately retained: the last
				// known master is still the best guess during an outage
				r.log.Warn("disconnected from coordination service for master registry")
			}
		}
	}
}

// Resolve returns the best-known master endpoint for a database. A cached
// present value is served until its TTL lapses; absence is always re-checked
// against the live snapshot, because a stale "no master" would silently
// block reconnection forever.
func (r *Registry) Resolve(databaseID string) (string, bool) {
	if r.cache != nil {
		if v, ok := r.cache.Get(databaseID); ok {
			cacheHitsTotal.Inc()
			return v.(string), true
		}
		cacheMissesTotal.Inc()
	}

	data, ok := r.snap.Get(r.cfg.nodeName(databaseID))
	if !ok || len(data) == 0 {
		return "", false
	}
	endpoint := string(data)
	if r.cache != nil {
		r.cache.SetDefault(databaseID, endpoint)
	}
	return endpoint, true
}

// ResolveOrError is Resolve with a descriptive error for callers that treat
// an unknown master as fatal.
func (r *Registry) ResolveOrError(databaseID string) (string, error) {
	endpoint, ok := r.Resolve(databaseID)
	if !ok {
		return "", errors.Errorf("registry: unable to resolve any known master for database %q", databaseID)
	}
	return endpoint, nil
}

// Close stops the watch and session loops and releases the coordination
// client.
func (r *Registry) Close() error {
	r.closeOnce.Do(func() {
		close(r.stop)
		if r.tree != nil {
			r.tree.Stop()
		}
		r.wg.Wait()
		r.conn.Close()
	})
	return nil
}
