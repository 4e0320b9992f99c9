/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package vetflow

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/vetflow/backend"
	"github.com/blnkfinance/vetflow/cache"
	"github.com/blnkfinance/vetflow/config"
	"github.com/blnkfinance/vetflow/database"
	"github.com/blnkfinance/vetflow/internal/apierror"
	"github.com/blnkfinance/vetflow/internal/notification"
	redis_db "github.com/blnkfinance/vetflow/internal/redis-db"
	"github.com/blnkfinance/vetflow/kyc"
	"github.com/blnkfinance/vetflow/kyc/adapters"
	"github.com/blnkfinance/vetflow/model"
	"github.com/blnkfinance/vetflow/wallet"
)

// Backend is the part of the verification API the workflow depends on.
type Backend interface {
	FetchServices(ctx context.Context) (model.Catalog, error)
	Submit(ctx context.Context, payload *model.SubmissionPayload) (*backend.SubmitResponse, error)
}

// Vetflow drives the candidate verification workflow of every session.
type Vetflow struct {
	cfg        *config.Configuration
	datasource database.IDataSource
	backend    Backend
	settler    Settler
	cache      cache.Cache
	redis      redis.UniversalClient
	guard      InFlightGuard
	locks      sessionLocker
	verifier   *kyc.Verifier
	wallet     wallet.Provider
	queue      *asynq.Client
	now        func() time.Time

	timeout time.Duration

	walletSub  walletSubscription
	closeOnce  sync.Once
	walletDone chan struct{}
}

type walletSubscription interface {
	Unsubscribe()
	Err() <-chan error
}

// Option customises a Vetflow at construction.
type Option func(*Vetflow)

func WithBackend(b Backend) Option { return func(v *Vetflow) { v.backend = b } }

func WithSettler(s Settler) Option { return func(v *Vetflow) { v.settler = s } }

func WithCache(c cache.Cache) Option { return func(v *Vetflow) { v.cache = c } }

// WithRedis switches session locks, in-flight guards, the catalog cache and the
// webhook queue to Redis.
func WithRedis(client redis.UniversalClient) Option { return func(v *Vetflow) { v.redis = client } }

func WithVerifier(verifier *kyc.Verifier) Option { return func(v *Vetflow) { v.verifier = verifier } }

func WithWallet(p wallet.Provider) Option { return func(v *Vetflow) { v.wallet = p } }

func WithClock(now func() time.Time) Option { return func(v *Vetflow) { v.now = now } }

// NewVetflow wires the workflow over db using the loaded configuration. Anything not
// supplied through options is built from the configuration.
func NewVetflow(db database.IDataSource, opts ...Option) (*Vetflow, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	v := &Vetflow{cfg: cfg, datasource: db, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}

	v.timeout = cfg.BackendTimeout()
	if v.timeout <= 0 {
		v.timeout = 30 * time.Second
	}

	if v.backend == nil {
		v.backend = backend.NewClient(cfg.Backend)
	}
	if v.settler == nil {
		v.settler = &SimulatedSettler{Latency: cfg.SimulatedLatency()}
	}
	if v.cache == nil {
		v.cache = cache.NewCache(v.redis)
	}

	if v.redis != nil {
		v.guard = NewRedisGuard(v.redis, 2*v.timeout)
		v.locks = &redisSessionLocks{client: v.redis, ttl: v.timeout + 5*time.Second}
		if err := v.initQueue(); err != nil {
			return nil, err
		}
	} else {
		v.guard = NewMemoryGuard()
		v.locks = newMemorySessionLocks()
	}

	if v.verifier == nil {
		v.verifier, err = newVerifier(cfg, db, v.backend)
		if err != nil {
			return nil, err
		}
	}
	v.verifier.OnCheckUpdated(v.onCheckUpdated)

	if v.wallet == nil && cfg.Wallet.PrivateKey != "" {
		kp, err := wallet.NewKeyProvider(cfg.Wallet.PrivateKey, cfg.Wallet.ChainID)
		if err != nil {
			return nil, err
		}
		v.wallet = kp
	}
	v.watchWallet()

	notification.RegisterWebhookSender(func(event string, payload interface{}) error {
		return v.SendWebhook(NewWebhook{Event: event, Payload: payload})
	})

	return v, nil
}

func newVerifier(cfg *config.Configuration, db database.IDataSource, b Backend) (*kyc.Verifier, error) {
	verifier := kyc.NewVerifier(db)
	if api, ok := b.(adapters.BackendAPI); ok {
		verifier.RegisterProvider(adapters.NewBackendProvider(api))
	} else {
		logrus.Warn("backend does not verify documents, falling back to the mock provider")
		verifier.RegisterProvider(adapters.NewMockProvider())
	}
	if cfg.KYC.ConfigPath != "" {
		if err := verifier.LoadProvidersFromConfig(cfg.KYC.ConfigPath); err != nil {
			return nil, err
		}
	}
	return verifier, nil
}

func (v *Vetflow) initQueue() error {
	opts, err := redis_db.ParseRedisURL(firstAddress(v.cfg.Redis.Dns), v.cfg.Redis.SkipTLSVerify)
	if errors.Is(err, redis_db.ErrNotConfigured) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error parsing Redis URL: %w", err)
	}
	v.queue = asynq.NewClient(asynq.RedisClientOpt{
		Addr:      opts.Addr,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	})
	return nil
}

// watchWallet follows account and chain changes of providers that report them.
func (v *Vetflow) watchWallet() {
	notifier, ok := v.wallet.(wallet.Notifier)
	if !ok {
		return
	}
	events := make(chan wallet.AccountEvent, 8)
	sub := notifier.SubscribeAccountChanges(events)
	v.walletSub = sub
	v.walletDone = make(chan struct{})

	go func() {
		defer close(v.walletDone)
		for {
			select {
			case ev := <-events:
				logrus.WithFields(logrus.Fields{
					"address":  ev.Address.Hex(),
					"chain_id": ev.ChainID,
				}).Info("wallet account changed")
				if err := v.SendWebhook(NewWebhook{Event: "wallet.changed", Payload: ev}); err != nil {
					logrus.WithError(err).Warn("failed to queue wallet webhook")
				}
			case err := <-sub.Err():
				if err != nil {
					logrus.WithError(err).Warn("wallet subscription ended")
				}
				return
			}
		}
	}()
}

// Verifier exposes the document verifier, e.g. for the poller.
func (v *Vetflow) Verifier() *kyc.Verifier {
	return v.verifier
}

// Close releases background resources. It is safe to call more than once.
func (v *Vetflow) Close() error {
	var err error
	v.closeOnce.Do(func() {
		if v.walletSub != nil {
			v.walletSub.Unsubscribe()
			<-v.walletDone
		}
		if v.queue != nil {
			err = v.queue.Close()
		}
	})
	return err
}

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ErrSessionNotFound is returned for reads of sessions that were never started.
var ErrSessionNotFound = errors.New("session not found")

func validateSessionID(sessionID string) error {
	if !sessionIDPattern.MatchString(sessionID) {
		return apierror.NewAPIError(apierror.ErrValidation, "session id must be 1-128 letters, digits, '-' or '_'", nil)
	}
	return nil
}

// lockSession serialises writers of one session.
func (v *Vetflow) lockSession(ctx context.Context, sessionID string) (func(), error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	return v.locks.lock(ctx, sessionID)
}

// loadOrCreate returns the stored session, starting it when absent. Callers hold the lock.
func (v *Vetflow) loadOrCreate(ctx context.Context, sessionID string) (*model.Session, error) {
	s, err := v.datasource.GetSession(ctx, sessionID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	s = model.NewSession(sessionID)
	s.CreatedAt = v.now()
	s.UpdatedAt = s.CreatedAt
	s.Catalog = v.loadCatalog(ctx)
	if err := v.datasource.SaveSession(ctx, s); err != nil {
		return nil, err
	}
	logrus.WithField("session_id", sessionID).Info("started verification session")
	return s, nil
}

func (v *Vetflow) save(ctx context.Context, s *model.Session) error {
	s.UpdatedAt = v.now()
	return v.datasource.SaveSession(ctx, s)
}

// withSession runs fn on the locked session and saves it when fn succeeds.
func (v *Vetflow) withSession(ctx context.Context, sessionID string, fn func(s *model.Session) error) (*model.Session, error) {
	unlock, err := v.lockSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s, err := v.loadOrCreate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	if err := v.save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// StartSession returns the session, creating it with a freshly loaded catalog when new.
func (v *Vetflow) StartSession(ctx context.Context, sessionID string) (*model.Session, error) {
	unlock, err := v.lockSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return v.loadOrCreate(ctx, sessionID)
}

// GetSession reads a session without creating it.
func (v *Vetflow) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	s, err := v.datasource.GetSession(ctx, sessionID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apierror.Wrap(apierror.ErrNotFound, "session not found", ErrSessionNotFound)
	}
	return s, err
}

// DeleteSession drops every piece of state of a session.
func (v *Vetflow) DeleteSession(ctx context.Context, sessionID string) error {
	unlock, err := v.lockSession(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()
	return v.datasource.DeleteSession(ctx, sessionID)
}

func firstAddress(dns string) string {
	return strings.TrimSpace(strings.Split(dns, ",")[0])
}
