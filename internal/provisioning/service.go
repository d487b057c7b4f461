// Package provisioning keeps the user directory and the proxy's client list
// in lock-step. Every mutation re-reads both stores, changes them, saves the
// proxy config first and the directory second, then restarts the proxy.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/vlesskeeper/internal/common"
	"github.com/dmitrijs2005/vlesskeeper/internal/descriptor"
	"github.com/dmitrijs2005/vlesskeeper/internal/directory"
	"github.com/dmitrijs2005/vlesskeeper/internal/filex"
	"github.com/dmitrijs2005/vlesskeeper/internal/identity"
	"github.com/dmitrijs2005/vlesskeeper/internal/logging"
	"github.com/dmitrijs2005/vlesskeeper/internal/metadata"
	"github.com/dmitrijs2005/vlesskeeper/internal/reload"
	"github.com/dmitrijs2005/vlesskeeper/internal/snapshot"
	"github.com/dmitrijs2005/vlesskeeper/internal/xrayconfig"
)

// ConfigStore is the proxy configuration document.
type ConfigStore interface {
	Load(ctx context.Context) (*xrayconfig.Document, error)
	Save(ctx context.Context, doc *xrayconfig.Document) error
	Restore(ctx context.Context, raw []byte) error
}

// MetadataResolver supplies the server half of a connection link.
type MetadataResolver interface {
	ResolveAddress(ctx context.Context) metadata.Value
	ResolvePublicKey(ctx context.Context) metadata.Value
}

// Options holds the optional collaborators of a Service.
type Options struct {
	// EmailDomain qualifies contact handles. Defaults to identity.DefaultDomain.
	EmailDomain string
	// LockPath, when set, is flocked around every mutation so separate
	// processes (daemon and CLI) serialize too.
	LockPath string
	// Snapshotter receives both documents after each successful mutation.
	Snapshotter snapshot.Snapshotter
	Now         func() time.Time
}

// Result describes a user returned by Add or Provision.
type Result struct {
	User directory.User
	// Created is false when Provision found an existing user.
	Created bool
	// Reloaded reports whether the proxy restart succeeded. A failed restart
	// does not undo the change; ReloadErr says why it failed.
	Reloaded  bool
	ReloadErr error
	// Address and PublicKey are the metadata the link was built from.
	Address   metadata.Value
	PublicKey metadata.Value
}

// RemoveResult describes a Remove call. Removed is false, and nothing was
// written, when the user did not exist.
type RemoveResult struct {
	Removed   bool
	Reloaded  bool
	ReloadErr error
}

type Service struct {
	dir      directory.Store
	cfg      ConfigStore
	resolver MetadataResolver
	reloader reload.Reloader
	snap     snapshot.Snapshotter
	domain   string
	lockPath string
	now      func() time.Time
	logger   logging.Logger

	mu sync.Mutex

	initMu   sync.Mutex
	initDone bool
}

// NewService wires a Service. The directory is initialized lazily on first use.
func NewService(dir directory.Store, cfg ConfigStore, resolver MetadataResolver, reloader reload.Reloader, opts Options, logger logging.Logger) *Service {
	s := &Service{
		dir:      dir,
		cfg:      cfg,
		resolver: resolver,
		reloader: reloader,
		snap:     opts.Snapshotter,
		domain:   opts.EmailDomain,
		lockPath: opts.LockPath,
		now:      opts.Now,
		logger:   logger.With("module", "provisioning"),
	}
	if s.domain == "" {
		s.domain = identity.DefaultDomain
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Init creates the directory store if it does not exist yet. Once it has
// succeeded later calls do nothing; a failed Init is retried on the next call.
func (s *Service) Init(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.initDone {
		return nil
	}
	if err := s.dir.Init(ctx); err != nil {
		return fmt.Errorf("init directory: %w", err)
	}
	s.initDone = true
	return nil
}

// Add provisions a new user. It fails with common.ErrorAlreadyExists when the
// username is taken and common.ErrorExternalIDTaken when externalID is already
// linked; neither store is touched in those cases.
func (s *Service) Add(ctx context.Context, username string, externalID *int64) (*Result, error) {
	if err := identity.ValidateUsername(username); err != nil {
		return nil, err
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return s.add(ctx, username, externalID)
}

// Provision returns the user linked to externalID, creating one when there is
// none. The new user is named preferredUsername, or user_<externalID> if that
// is empty, invalid or taken.
func (s *Service) Provision(ctx context.Context, externalID int64, preferredUsername string) (*Result, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := s.dir.Load(ctx)
	if err != nil {
		return nil, err
	}
	if u := st.FindByExternalID(externalID); u != nil {
		return &Result{User: *u}, nil
	}

	fallback := identity.FallbackUsername(externalID)
	username := preferredUsername
	if username == "" || identity.ValidateUsername(username) != nil {
		username = fallback
	}

	res, err := s.add(ctx, username, &externalID)
	if errors.Is(err, common.ErrorAlreadyExists) && username != fallback {
		s.logger.Info(ctx, "preferred username taken, using fallback", "username", username, "fallback", fallback)
		res, err = s.add(ctx, fallback, &externalID)
	}
	return res, err
}

func (s *Service) add(ctx context.Context, username string, externalID *int64) (*Result, error) {
	st, err := s.dir.Load(ctx)
	if err != nil {
		return nil, err
	}
	if st.FindByUsername(username) != nil {
		return nil, common.ErrorAlreadyExists
	}
	if externalID != nil && st.FindByExternalID(*externalID) != nil {
		return nil, common.ErrorExternalIDTaken
	}

	id := identity.New(username, s.domain)

	doc, err := s.cfg.Load(ctx)
	if err != nil {
		return nil, err
	}
	prev := doc.Raw()
	if err := doc.AddClient(xrayconfig.Client{
		ID:    id.ID.String(),
		Flow:  xrayconfig.FlowVision,
		Email: id.ContactHandle,
	}); err != nil {
		return nil, err
	}
	if err := s.cfg.Save(ctx, doc); err != nil {
		return nil, err
	}

	addr := s.resolver.ResolveAddress(ctx)
	key := s.resolver.ResolvePublicKey(ctx)
	if !addr.Resolved || !key.Resolved {
		s.logger.Warn(ctx, "link built with placeholder metadata",
			"username", username, "address_resolved", addr.Resolved, "key_resolved", key.Resolved)
	}

	user := directory.User{
		Username:      username,
		Identity:      id.ID.String(),
		ContactHandle: id.ContactHandle,
		ExternalID:    externalID,
		Descriptor: descriptor.Build(descriptor.Input{
			Identity:  id.ID.String(),
			Username:  username,
			Address:   addr,
			PublicKey: key,
		}),
		CreatedAt:   s.now().UTC(),
		Active:      true,
		TrafficUsed: 0,
	}
	st.Append(user)

	if err := s.saveDirectory(ctx, st, prev); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user added", "username", username, "identity", user.Identity)

	res := &Result{User: user, Created: true, Address: addr, PublicKey: key}
	res.Reloaded, res.ReloadErr = s.reload(ctx)
	s.snapshot(ctx, "add-"+username, doc, st)
	return res, nil
}

// Remove revokes a user from both stores.
func (s *Service) Remove(ctx context.Context, username string) (*RemoveResult, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := s.dir.Load(ctx)
	if err != nil {
		return nil, err
	}
	u := st.FindByUsername(username)
	if u == nil {
		return &RemoveResult{}, nil
	}
	userID := u.Identity

	doc, err := s.cfg.Load(ctx)
	if err != nil {
		return nil, err
	}
	prev := doc.Raw()
	if doc.RemoveClient(userID) {
		if err := s.cfg.Save(ctx, doc); err != nil {
			return nil, err
		}
	} else {
		s.logger.Warn(ctx, "user had no proxy client entry", "username", username, "identity", userID)
		prev = nil
	}

	st.Remove(username)
	if err := s.saveDirectory(ctx, st, prev); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user removed", "username", username, "identity", userID)

	res := &RemoveResult{Removed: true}
	res.Reloaded, res.ReloadErr = s.reload(ctx)
	s.snapshot(ctx, "remove-"+username, doc, st)
	return res, nil
}

// Get returns the user named username or common.ErrorNotFound.
func (s *Service) Get(ctx context.Context, username string) (*directory.User, error) {
	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	u := st.FindByUsername(username)
	if u == nil {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

// GetByExternalID returns the user linked to id or common.ErrorNotFound.
func (s *Service) GetByExternalID(ctx context.Context, id int64) (*directory.User, error) {
	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	u := st.FindByExternalID(id)
	if u == nil {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

// List returns every user in insertion order.
func (s *Service) List(ctx context.Context) ([]directory.User, error) {
	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return st.Users, nil
}

// Descriptor returns the link stored for username.
func (s *Service) Descriptor(ctx context.Context, username string) (string, error) {
	u, err := s.Get(ctx, username)
	if err != nil {
		return "", err
	}
	return u.Descriptor, nil
}

func (s *Service) load(ctx context.Context) (*directory.State, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	return s.dir.Load(ctx)
}

// lock serializes mutations inside the process and, with a lock path, across
// processes. It also makes sure the directory exists.
func (s *Service) lock(ctx context.Context) (func(), error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.lockPath == "" {
		return s.mu.Unlock, nil
	}

	fl, err := filex.Lock(s.lockPath)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			s.logger.Warn(ctx, "release lock failed", "path", s.lockPath, "error", err)
		}
		s.mu.Unlock()
	}, nil
}

// saveDirectory persists st. If that fails and prev is set, the proxy config
// is put back to prev so the two stores still agree.
func (s *Service) saveDirectory(ctx context.Context, st *directory.State, prev []byte) error {
	err := s.dir.Save(ctx, st)
	if err == nil {
		return nil
	}
	s.logger.Error(ctx, "directory save failed", "error", err)

	if prev != nil {
		if rerr := s.cfg.Restore(ctx, prev); rerr != nil {
			s.logger.Error(ctx, "proxy config restore failed, stores diverged", "error", rerr)
			return errors.Join(err, fmt.Errorf("restore proxy config: %w", rerr))
		}
	}
	return err
}

func (s *Service) reload(ctx context.Context) (bool, error) {
	if s.reloader == nil {
		return false, nil
	}
	if err := s.reloader.Reload(ctx); err != nil {
		s.logger.Warn(ctx, "proxy reload failed", "error", err)
		return false, err
	}
	return true, nil
}

func (s *Service) snapshot(ctx context.Context, label string, doc *xrayconfig.Document, st *directory.State) {
	if s.snap == nil {
		return
	}

	cfgBytes, err := doc.Bytes()
	if err != nil {
		s.logger.Warn(ctx, "snapshot skipped", "error", err)
		return
	}
	dirBytes, err := directory.Marshal(st)
	if err != nil {
		s.logger.Warn(ctx, "snapshot skipped", "error", err)
		return
	}

	if err := s.snap.Snapshot(ctx, label,
		snapshot.File{Name: "config.json", Data: cfgBytes},
		snapshot.File{Name: "users.json", Data: dirBytes},
	); err != nil {
		s.logger.Warn(ctx, "snapshot failed", "label", label, "error", err)
	}
}
