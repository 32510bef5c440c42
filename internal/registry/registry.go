// Package registry implements the concurrent multi-instance registry: an
// RCU-style (read-copy-update) collection of translator instances that
// survives hot reconfiguration without ever blocking a concurrent Find.
//
// Readers (Find, Foreach) take no lock: they dereference a single atomic
// pointer to an immutable node list and never observe a half-updated
// structure. Writers (Add, Remove, Replace) serialize under a mutex,
// build a new list by structural sharing of the unaffected nodes, and swap
// the atomic pointer once the new list is fully built. A removed or
// replaced node is unlinked immediately; a reader that loaded an earlier
// snapshot keeps a valid reference to it, and the registry performs no
// teardown of an instance's sub-components.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-xlat/xlat64/internal/xlat"
)

// Sentinel errors for Registry operations.
var (
	// ErrNotFound indicates no instance exists for the given (namespace, name).
	ErrNotFound = errors.New("instance not found")

	// ErrExists indicates an instance already exists for the given
	// (namespace, name).
	ErrExists = errors.New("instance already exists for namespace/name")

	// ErrInvalidName indicates the instance name fails ValidateName.
	ErrInvalidName = errors.New("instance name must be non-empty, <=15 bytes, printable")

	// ErrDuplicateNetfilter indicates a second FrameworkNetfilter instance
	// was requested in a namespace that already has one.
	ErrDuplicateNetfilter = errors.New("namespace already has a netfilter-framework instance")
)

// key identifies one instance slot: a namespace plus an instance name.
type key struct {
	namespace string
	name      string
}

// node is one immutable element of the registry's instance list. Nodes are
// never mutated after construction; Replace builds a new node and relinks
// around it.
type node struct {
	key      key
	instance *xlat.Instance
	next     *node
}

// list is an immutable snapshot of the registry's instances, structured as
// a singly-linked list so that replacing one entry only requires rebuilding
// the nodes up to and including it (structural sharing of the tail).
type list struct {
	head *node
}

// Registry is the concurrent multi-instance registry. The zero value is
// not usable; construct with New.
type Registry struct {
	cur atomic.Pointer[list]

	mu     sync.Mutex // serializes writers; readers never take it
	logger *slog.Logger
}

// New builds an empty Registry.
func New(logger *slog.Logger) *Registry {
	r := &Registry{logger: logger.With(slog.String("component", "registry"))}
	r.cur.Store(&list{})
	return r
}

// Add inserts a new instance under (namespace, inst.Name). Returns
// ErrExists if the slot is already occupied, ErrInvalidName if the name
// fails ValidateName, or ErrDuplicateNetfilter if inst is
// FrameworkNetfilter and the namespace already has one.
func (r *Registry) Add(namespace string, inst *xlat.Instance) error {
	if !xlat.ValidateName(inst.Name) {
		return fmt.Errorf("add instance %q: %w", inst.Name, ErrInvalidName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{namespace: namespace, name: inst.Name}
	old := r.cur.Load()

	if findNode(old, k) != nil {
		return fmt.Errorf("add instance %s/%s: %w", namespace, inst.Name, ErrExists)
	}
	if inst.Framework == xlat.FrameworkNetfilter && hasNetfilter(old, namespace) {
		return fmt.Errorf("add instance %s/%s: %w", namespace, inst.Name, ErrDuplicateNetfilter)
	}

	newHead := &node{key: k, instance: inst, next: old.head}
	r.cur.Store(&list{head: newHead})

	r.logger.Info("instance added",
		slog.String("namespace", namespace),
		slog.String("name", inst.Name),
		slog.String("mode", inst.Mode.String()),
		slog.String("framework", inst.Framework.String()),
	)
	return nil
}

// Remove unlinks the instance at (namespace, name). Returns ErrNotFound if
// no such instance exists. The removed node becomes unreachable from the
// current snapshot immediately, but any goroutine already holding a
// reference returned by an earlier Find keeps it valid until that
// goroutine is done — there is no synchronous teardown here, and no
// Registry method waits for such readers to finish.
func (r *Registry) Remove(namespace, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{namespace: namespace, name: name}
	old := r.cur.Load()

	newHead, removed := unlink(old.head, k)
	if !removed {
		return fmt.Errorf("remove instance %s/%s: %w", namespace, name, ErrNotFound)
	}
	r.cur.Store(&list{head: newHead})

	r.logger.Info("instance removed",
		slog.String("namespace", namespace),
		slog.String("name", name),
	)
	return nil
}

// Replace atomically swaps the instance at (namespace, name) for a new
// one, preserving the slot's position. Returns ErrNotFound if no instance
// currently occupies the slot.
func (r *Registry) Replace(namespace, name string, inst *xlat.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{namespace: namespace, name: name}
	old := r.cur.Load()

	newHead, ok := replaceNode(old.head, k, inst)
	if !ok {
		return fmt.Errorf("replace instance %s/%s: %w", namespace, name, ErrNotFound)
	}
	r.cur.Store(&list{head: newHead})

	r.logger.Info("instance replaced",
		slog.String("namespace", namespace),
		slog.String("name", name),
	)
	return nil
}

// Find returns the instance at (namespace, name), or false if none exists.
// Find never blocks on a concurrent Add/Remove/Replace: it dereferences a
// single atomic pointer and walks an immutable list.
func (r *Registry) Find(namespace, name string) (*xlat.Instance, bool) {
	l := r.cur.Load()
	n := findNode(l, key{namespace: namespace, name: name})
	if n == nil {
		return nil, false
	}
	return n.instance, true
}

// Foreach calls fn for every instance currently registered, in an
// unspecified order, over a single consistent snapshot. fn must not call
// back into the Registry's writer methods.
func (r *Registry) Foreach(fn func(namespace string, inst *xlat.Instance)) {
	l := r.cur.Load()
	for n := l.head; n != nil; n = n.next {
		fn(n.key.namespace, n.instance)
	}
}

// Flush removes every instance registered under namespace -- the registry's
// response to the host notifying it that namespace has been destroyed --
// and returns the number of instances removed. Like Remove, it only builds
// and publishes the filtered list under r.mu; it does not wait for Find
// callers that loaded the previous snapshot, and the references they hold
// stay valid. Every reader sees either the old or the new list, never a
// torn one.
func (r *Registry) Flush(namespace string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.cur.Load()
	newHead, removed := removeNamespace(old.head, namespace)
	if removed > 0 {
		r.cur.Store(&list{head: newHead})
		r.logger.Info("namespace flushed",
			slog.String("namespace", namespace),
			slog.Int("removed", removed),
		)
	}
	return removed
}

func findNode(l *list, k key) *node {
	if l == nil {
		return nil
	}
	for n := l.head; n != nil; n = n.next {
		if n.key == k {
			return n
		}
	}
	return nil
}

func hasNetfilter(l *list, namespace string) bool {
	if l == nil {
		return false
	}
	for n := l.head; n != nil; n = n.next {
		if n.key.namespace == namespace && n.instance.Framework == xlat.FrameworkNetfilter {
			return true
		}
	}
	return false
}

// unlink builds a new list with the node matching k removed, sharing the
// tail past the removed node structurally.
func unlink(head *node, k key) (*node, bool) {
	if head == nil {
		return nil, false
	}
	if head.key == k {
		return head.next, true
	}
	rest, removed := unlink(head.next, k)
	if !removed {
		return head, false
	}
	return &node{key: head.key, instance: head.instance, next: rest}, true
}

// removeNamespace builds a new list with every node keyed to namespace
// dropped, returning the new head and the count of nodes removed.
func removeNamespace(head *node, namespace string) (*node, int) {
	if head == nil {
		return nil, 0
	}
	rest, count := removeNamespace(head.next, namespace)
	if head.key.namespace == namespace {
		return rest, count + 1
	}
	if count == 0 {
		return head, 0
	}
	return &node{key: head.key, instance: head.instance, next: rest}, count
}

// replaceNode builds a new list with the node matching k's instance
// swapped for inst, preserving position and sharing the tail structurally.
func replaceNode(head *node, k key, inst *xlat.Instance) (*node, bool) {
	if head == nil {
		return nil, false
	}
	if head.key == k {
		return &node{key: k, instance: inst, next: head.next}, true
	}
	rest, ok := replaceNode(head.next, k, inst)
	if !ok {
		return head, false
	}
	return &node{key: head.key, instance: head.instance, next: rest}, true
}
