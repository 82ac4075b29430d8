package registry

import (
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-zookeeper/zk"
	log "github.com/sirupsen/logrus"
)

const reloadRetryInterval = time.Second

// treeCache maintains a local snapshot of the children of one coordination
// node, kept fresh by watches. It is the replicated view the registry reads
// resolutions from; lookups never touch the wire.
type treeCache struct {
	conn   *zk.Conn
	path   string
	log    log.FieldLogger
	reload chan struct{}
	stop   chan struct{}

	stopOnce sync.Once
	wg       sync.WaitGroup

	mu    sync.RWMutex
	nodes map[string][]byte
}

func newTreeCache(conn *zk.Conn, watchPath string, logger log.FieldLogger) *treeCache {
	return &treeCache{
		conn:   conn,
		path:   watchPath,
		log:    logger,
		reload: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		nodes:  map[string][]byte{},
	}
}

// Get returns the data of a child node by name.
func (t *treeCache) Get(name string) ([]byte, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	data, ok := t.nodes[name]
	return data, ok
}

func (t *treeCache) replace(nodes map[string][]byte) {
	t.mu.Lock()
	t.nodes = nodes
	t.mu.Unlock()
}

func (t *treeCache) clear() {
	t.replace(map[string][]byte{})
}

// Build performs a full synchronous load of the watched subtree, retrying
// transient failures a bounded number of times. It returns a channel that
// fires when any watched node changes.
func (t *treeCache) Build() (<-chan zk.Event, error) {
	var events <-chan zk.Event
	err := retry.Do(
		func() error {
			ev, err := t.load()
			if err != nil {
				return err
			}
			events = ev
			return nil
		},
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	return events, err
}

// load lists the children of the watch path and reads each child's data,
// replacing the snapshot wholesale. Every read arms a watch; the first event
// from any of them is forwarded to the returned channel.
func (t *treeCache) load() (<-chan zk.Event, error) {
	events := make(chan zk.Event, 1)
	forward := func(watch <-chan zk.Event) {
		go func() {
			select {
			case ev := <-watch:
				select {
				case events <- ev:
				default:
				}
			case <-t.stop:
			}
		}()
	}

	children, _, childWatch, err := t.conn.ChildrenW(t.path)
	if err == zk.ErrNoNode {
		// watch directory not created yet
		_, _, existWatch, eerr := t.conn.ExistsW(t.path)
		if eerr != nil {
			return nil, eerr
		}
		forward(existWatch)
		t.clear()
		return events, nil
	}
	if err != nil {
		return nil, err
	}
	forward(childWatch)

	nodes := make(map[string][]byte, len(children))
	for _, name := range children {
		data, _, dataWatch, gerr := t.conn.GetW(t.path + "/" + name)
		if gerr == zk.ErrNoNode {
			// deleted between list and read
			continue
		}
		if gerr != nil {
			return nil, gerr
		}
		nodes[name] = data
		forward(dataWatch)
	}
	t.replace(nodes)
	return events, nil
}

// Start runs the watch loop. The events channel is the one returned by the
// initial Build.
func (t *treeCache) Start(events <-chan zk.Event) {
	t.wg.Add(1)
	go t.run(events)
}

// Rebuild clears the snapshot and requests an asynchronous reload. Used
// after a session reconnect, when intervening changes may have been missed.
func (t *treeCache) Rebuild() {
	select {
	case t.reload <- struct{}{}:
	default:
	}
}

func (t *treeCache) run(events <-chan zk.Event) {
	defer t.wg.Done()
	for {
		select {
		case <-t.stop:
			return
		case <-events:
		case <-t.reload:
			t.clear()
		}

		for {
			next, err := t.Build()
			if err == nil {
				events = next
				rebuildsTotal.Inc()
				break
			}
			// keep the last known good snapshot and try again
			t.log.WithError(err).WithField("path", t.path).
				Error("unable to refresh master registry snapshot")
			select {
			case <-t.stop:
				return
			case <-time.After(reloadRetryInterval):
			}
		}
	}
}

func (t *treeCache) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
	t.wg.Wait()
}
