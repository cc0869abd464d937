// Package fsqueue implements broker.Queue as a filesystem-backed
// directory of message files: Enqueue writes one file per message
// under queue/<queue_name>/, and Claim rename-claims a file into
// queue/<queue_name>/.claimed/ before handing it to the caller,
// grounded on the teacher's rename-for-atomicity discipline
// (pkg/storage, pkg/security). fsnotify wakes Claim on new files
// instead of busy-polling.
package fsqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/llamafarm/pkg/broker"
	"github.com/cuemby/llamafarm/pkg/log"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// pollFallback bounds how long Claim waits between fsnotify events
// before re-scanning the directory, covering watches missed due to a
// restart or a message enqueued before the watcher started.
const pollFallback = 2 * time.Second

// wireMessage is the on-disk encoding of a broker.Message.
type wireMessage struct {
	TaskID string          `json:"task_id"`
	Name   string          `json:"name"`
	Args   json.RawMessage `json:"args"`
}

// FSQueue is a directory-per-queue, file-per-message broker.Queue.
type FSQueue struct {
	root string

	mu       sync.Mutex
	watchers map[string]*fsnotify.Watcher
}

// New creates an FSQueue rooted at dir (typically
// <project_dir>/queue/). Per-queue subdirectories are created lazily
// on first Enqueue or Claim.
func New(dir string) *FSQueue {
	return &FSQueue{root: dir, watchers: make(map[string]*fsnotify.Watcher)}
}

// Close releases every per-queue fsnotify watcher. Safe to call once
// during process shutdown.
func (q *FSQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var firstErr error
	for name, w := range q.watchers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing watcher for %s: %w", name, err)
		}
	}
	return firstErr
}

func (q *FSQueue) queueDir(queueName string) string {
	return filepath.Join(q.root, queueName)
}

func (q *FSQueue) claimedDir(queueName string) string {
	return filepath.Join(q.queueDir(queueName), ".claimed")
}

func (q *FSQueue) ensureDirs(queueName string) error {
	if err := os.MkdirAll(q.queueDir(queueName), 0o755); err != nil {
		return err
	}
	return os.MkdirAll(q.claimedDir(queueName), 0o755)
}

// Enqueue implements broker.Queue.
func (q *FSQueue) Enqueue(queueName string, msg broker.Message) error {
	if err := q.ensureDirs(queueName); err != nil {
		return fmt.Errorf("creating queue dirs for %s: %w", queueName, err)
	}

	wire := wireMessage{TaskID: msg.TaskID, Name: msg.Name, Args: msg.Args}
	data, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("encoding message for %s: %w", msg.TaskID, err)
	}

	dir := q.queueDir(queueName)
	// Random suffix keeps filenames unique even for duplicate task_ids
	// re-dispatched under at-least-once delivery.
	name := fmt.Sprintf("%s-%s.json", msg.TaskID, uuid.NewString())
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing message %s: %w", msg.TaskID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing message file %s: %w", msg.TaskID, err)
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}

// Claim implements broker.Queue. It blocks until a message file
// appears in queueName or ctx is done, claims one by renaming it into
// .claimed/, and returns a commit function that deletes the claimed
// file. Claim order is lexical file-name order, not enqueue order.
func (q *FSQueue) Claim(ctx context.Context, queueName string) (*broker.Message, func() error, error) {
	if err := q.ensureDirs(queueName); err != nil {
		return nil, nil, fmt.Errorf("creating queue dirs for %s: %w", queueName, err)
	}

	watcher, err := q.watcherFor(queueName)
	if err != nil {
		return nil, nil, err
	}

	for {
		if msg, committed, err := q.tryClaimOne(queueName); err != nil {
			return nil, nil, err
		} else if msg != nil {
			return msg, committed, nil
		}

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-watcher.Events:
		case err := <-watcher.Errors:
			log.WithComponent("fsqueue").Warn().Err(err).Str("queue", queueName).Msg("watcher error")
		case <-time.After(pollFallback):
		}
	}
}

func (q *FSQueue) watcherFor(queueName string) (*fsnotify.Watcher, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if w, ok := q.watchers[queueName]; ok {
		return w, nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher for %s: %w", queueName, err)
	}
	if err := w.Add(q.queueDir(queueName)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching %s: %w", q.queueDir(queueName), err)
	}
	q.watchers[queueName] = w
	return w, nil
}

// tryClaimOne attempts to claim the lexically first pending message
// file in queueName. It returns (nil, nil, nil) if the queue is
// currently empty.
func (q *FSQueue) tryClaimOne(queueName string) (*broker.Message, func() error, error) {
	dir := q.queueDir(queueName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names) // names start with the random task_id, so this order is unrelated to enqueue order; no cross-task ordering is promised

	for _, name := range names {
		src := filepath.Join(dir, name)
		dst := filepath.Join(q.claimedDir(queueName), name)
		if err := os.Rename(src, dst); err != nil {
			if os.IsNotExist(err) {
				continue // another consumer claimed it first
			}
			return nil, nil, fmt.Errorf("claiming %s: %w", src, err)
		}

		data, err := os.ReadFile(dst)
		if err != nil {
			return nil, nil, fmt.Errorf("reading claimed message %s: %w", dst, err)
		}
		var wire wireMessage
		if err := json.Unmarshal(data, &wire); err != nil {
			os.Remove(dst)
			return nil, nil, fmt.Errorf("decoding claimed message %s: %w", dst, err)
		}

		msg := &broker.Message{TaskID: wire.TaskID, Name: wire.Name, Args: wire.Args}
		commit := func() error { return os.Remove(dst) }
		return msg, commit, nil
	}
	return nil, nil, nil
}
