package policy

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// compiledRule is a p rule with its patterns and condition compiled once at
// snapshot build time, keeping Enforce free of per-request compilation.
type compiledRule struct {
	subject string
	obj     *regexp.Regexp
	act     *regexp.Regexp
	cond    *Condition
	allow   bool
}

type snapshot struct {
	rules   []compiledRule
	parents map[string][]string // g edges, child name to parent names
}

// Engine evaluates authorization requests against a compiled snapshot of
// the rule set. Enforce is lock-free and safe for concurrent use; Reload
// swaps in a fresh snapshot atomically. Before the first successful load
// every request is denied.
type Engine struct {
	store          Store
	notifier       *Notifier
	reloadInterval time.Duration

	snap atomic.Pointer[snapshot]
	mu   sync.Mutex // serializes snapshot writers within this process

	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a policy engine over the given store. The notifier is
// optional; without it cross-instance convergence relies on the periodic
// reload alone. A non-positive reloadInterval disables the timer.
func NewEngine(store Store, notifier *Notifier, reloadInterval time.Duration) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("policy engine requires a store")
	}
	return &Engine{store: store, notifier: notifier, reloadInterval: reloadInterval}, nil
}

// Start performs the initial load and launches the background refresher,
// which listens for change announcements and reloads on the periodic
// timer. Call Close to stop it.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.Reload(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.refreshLoop(runCtx)
	return nil
}

// Close stops the background refresher. Enforce keeps answering from the
// last snapshot.
func (e *Engine) Close() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
	e.cancel = nil
}

func (e *Engine) refreshLoop(ctx context.Context) {
	defer close(e.done)

	var notifications <-chan struct{}
	if e.notifier != nil {
		sub := e.notifier.Subscribe(ctx)
		defer sub.Close()

		ch := make(chan struct{}, 1)
		notifications = ch
		go func() {
			for range sub.Channel() {
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}()
	}

	var tick <-chan time.Time
	if e.reloadInterval > 0 {
		ticker := time.NewTicker(e.reloadInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-notifications:
		case <-tick:
		}
		if err := e.Reload(ctx); err != nil {
			log.Print("goWarden: policy reload failed, keeping previous snapshot")
		}
	}
}

// Reload rebuilds the snapshot from the durable store. Rules that fail to
// compile are skipped; they can never grant access, so skipping is the
// fail-closed choice.
func (e *Engine) Reload(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rules, err := e.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	snap := &snapshot{parents: make(map[string][]string)}
	for _, r := range rules {
		switch r.PType {
		case PTypePolicy:
			compiled, err := compileRule(r)
			if err != nil {
				log.Print("goWarden: skipping unparsable policy rule")
				continue
			}
			snap.rules = append(snap.rules, compiled)
		case PTypeGroup:
			snap.parents[r.V0] = append(snap.parents[r.V0], r.V1)
		}
	}
	e.snap.Store(snap)
	return nil
}

func compileRule(r Rule) (compiledRule, error) {
	obj, err := keyMatch2Pattern(r.V1)
	if err != nil {
		return compiledRule{}, err
	}
	act, err := actionPattern(r.V2)
	if err != nil {
		return compiledRule{}, err
	}
	cond, err := CompileCondition(r.V3)
	if err != nil {
		return compiledRule{}, err
	}
	return compiledRule{
		subject: r.V0,
		obj:     obj,
		act:     act,
		cond:    cond,
		allow:   r.V4 == EffectAllow || r.V4 == "",
	}, nil
}

// AddRule persists a rule, rebuilds the local snapshot and announces the
// change. The announcement is best-effort; other instances converge on
// their periodic reload if it is lost.
func (e *Engine) AddRule(ctx context.Context, r Rule) error {
	if err := e.store.AddRule(ctx, r); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return e.afterChange(ctx)
}

// RemoveRule persists a rule removal, rebuilds the local snapshot and
// announces the change.
func (e *Engine) RemoveRule(ctx context.Context, r Rule) error {
	if err := e.store.RemoveRule(ctx, r); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return e.afterChange(ctx)
}

func (e *Engine) afterChange(ctx context.Context) error {
	if err := e.Reload(ctx); err != nil {
		return err
	}
	if e.notifier != nil {
		if err := e.notifier.Publish(ctx); err != nil {
			log.Print("goWarden: policy change notification failed")
		}
	}
	return nil
}

// Enforce decides an authorization request. The principal's roles and
// groups are merged with the rule set's g hierarchy before matching, so a
// role held only in the token still inherits what the hierarchy grants it.
// Decisions are allow-only: the first matching allow rule grants, nothing
// overrides, and no snapshot means deny.
func (e *Engine) Enforce(req Request) bool {
	snap := e.snap.Load()
	if snap == nil {
		return false
	}

	roles, groups := expandMemberships(snap, req.Sub)
	merged := req
	merged.Sub.Roles = roles
	merged.Sub.Groups = groups

	for _, rule := range snap.rules {
		if !rule.allow {
			continue
		}
		if !subjectMatches(rule.subject, merged.Sub) {
			continue
		}
		if !rule.obj.MatchString(req.Obj) || !rule.act.MatchString(req.Act) {
			continue
		}
		if rule.cond.Eval(merged) {
			return true
		}
	}
	return false
}

// expandMemberships walks the g hierarchy from the principal's username,
// roles and groups to the full transitive set.
func expandMemberships(snap *snapshot, sub Subject) (roles, groups []string) {
	seen := make(map[string]bool)
	var queue []string

	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			queue = append(queue, name)
		}
	}

	add(sub.Username)
	for _, r := range sub.Roles {
		add(RolePrefix + r)
	}
	for _, g := range sub.Groups {
		add(GroupPrefix + g)
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, parent := range snap.parents[name] {
			add(parent)
		}
	}

	for name := range seen {
		switch {
		case strings.HasPrefix(name, RolePrefix):
			roles = append(roles, strings.TrimPrefix(name, RolePrefix))
		case strings.HasPrefix(name, GroupPrefix):
			groups = append(groups, strings.TrimPrefix(name, GroupPrefix))
		}
	}
	return roles, groups
}

// subjectMatches reports whether a rule subject applies to the principal:
// an exact username, a held role as "role:NAME" or a held group as
// "group:NAME".
func subjectMatches(ruleSubject string, sub Subject) bool {
	switch {
	case strings.HasPrefix(ruleSubject, RolePrefix):
		want := strings.TrimPrefix(ruleSubject, RolePrefix)
		for _, r := range sub.Roles {
			if r == want {
				return true
			}
		}
	case strings.HasPrefix(ruleSubject, GroupPrefix):
		want := strings.TrimPrefix(ruleSubject, GroupPrefix)
		for _, g := range sub.Groups {
			if g == want {
				return true
			}
		}
	default:
		return ruleSubject == sub.Username
	}
	return false
}
