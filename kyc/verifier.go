package kyc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/vetflow/model"
)

var (
	ErrNoDocument      = errors.New("no document attached")
	ErrProviderMissing = errors.New("provider not configured")
	ErrProviderFailure = errors.New("document provider call failed")
	ErrCheckNotFound   = errors.New("document check not found")
	ErrDocumentsAbsent = errors.New("service does not take documents")
)

// Verifier sends attached documents to the registered providers and records one
// DocumentCheck per session and service.
type Verifier struct {
	datasource DocumentDataSource

	mu              sync.RWMutex
	providers       map[string]ProviderAdapter
	defaultProvider string
	onUpdate        func(*model.DocumentCheck)
}

func NewVerifier(ds DocumentDataSource) *Verifier {
	return &Verifier{
		datasource: ds,
		providers:  make(map[string]ProviderAdapter),
	}
}

// RegisterProvider adds or replaces a provider. The first one registered becomes the default.
func (v *Verifier) RegisterProvider(provider ProviderAdapter) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.providers[provider.Name()] = provider
	if v.defaultProvider == "" {
		v.defaultProvider = provider.Name()
	}
}

func (v *Verifier) SetDefaultProvider(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.providers[name]; !ok {
		return fmt.Errorf("%w: %s", ErrProviderMissing, name)
	}
	v.defaultProvider = name
	return nil
}

// OnCheckUpdated registers fn to be called after a check changed status.
func (v *Verifier) OnCheckUpdated(fn func(*model.DocumentCheck)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onUpdate = fn
}

// LoadProvidersFromConfig registers the enabled providers of a YAML provider file.
func (v *Verifier) LoadProvidersFromConfig(path string) error {
	cfg, err := LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load KYC config: %w", err)
	}
	return v.registerConfigured(cfg.Providers)
}

func (v *Verifier) LoadProvidersFromConfigBytes(data []byte) error {
	cfg, err := LoadConfigFromBytes(data)
	if err != nil {
		return fmt.Errorf("failed to parse KYC config: %w", err)
	}
	return v.registerConfigured(cfg.Providers)
}

// registerConfigured skips disabled and invalid entries; only a bad default is an error.
func (v *Verifier) registerConfigured(providers []ProviderConfig) error {
	for _, pc := range providers {
		log := logrus.WithField("provider", pc.Name)
		if !pc.Enabled {
			log.Info("document provider disabled")
			continue
		}
		pc.resolveSecrets()
		if err := pc.Validate(); err != nil {
			log.WithError(err).Warn("ignoring misconfigured document provider")
			continue
		}

		v.RegisterProvider(newConfigurableProviderAdapter(pc))
		if pc.Default {
			if err := v.SetDefaultProvider(pc.Name); err != nil {
				return err
			}
		}
		log.Info("document provider registered")
	}
	return nil
}

func (v *Verifier) GetRegisteredProviders() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	names := make([]string, 0, len(v.providers))
	for name := range v.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (v *Verifier) provider(name string) (ProviderAdapter, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if name == "" {
		name = v.defaultProvider
	}
	p, ok := v.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderMissing, name)
	}
	return p, nil
}

func (v *Verifier) notify(check *model.DocumentCheck) {
	v.mu.RLock()
	fn := v.onUpdate
	v.mu.RUnlock()
	if fn != nil {
		fn(check)
	}
}

// VerifyDocument sends the document at index of the service's form to providerName (the
// default provider when empty). A provider error marks this check failed and is returned
// wrapped in ErrProviderFailure; checks of other services are untouched.
func (v *Verifier) VerifyDocument(ctx context.Context, sessionID string, serviceID model.ServiceType, index int, providerName string) (*model.DocumentCheck, error) {
	ctx, span := otel.Tracer("Document verifier").Start(ctx, "Verifying document")
	defer span.End()

	provider, err := v.provider(providerName)
	if err != nil {
		return nil, err
	}

	form, err := v.datasource.GetForm(ctx, sessionID, serviceID)
	if err != nil {
		return nil, err
	}
	doc, err := form.DocumentAt(index)
	if errors.Is(err, model.ErrDocumentsNotTaken) {
		return nil, ErrDocumentsAbsent
	}
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrNoDocument
	}

	now := time.Now()
	check := &model.DocumentCheck{
		CheckID:        model.GenerateUUIDWithSuffix("chk"),
		SessionID:      sessionID,
		ServiceID:      serviceID,
		ProviderID:     provider.Name(),
		Status:         model.CheckStatusPending,
		DocumentIndex:  index,
		DocumentSHA256: model.DocumentDigest(doc.Data),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := v.datasource.SaveDocumentCheck(ctx, check); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"service_id": serviceID,
		"provider":   provider.Name(),
	}).Info("sending document for verification")

	result, err := provider.VerifyDocument(ctx, DocumentRequest{SessionID: sessionID, ServiceID: serviceID, Document: doc})
	if err != nil {
		span.RecordError(err)
		check.Status = model.CheckStatusFailed
		check.Reason = err.Error()
		check.UpdatedAt = time.Now()
		if saveErr := v.datasource.SaveDocumentCheck(ctx, check); saveErr != nil {
			logrus.WithError(saveErr).Error("failed to record failed document check")
		}
		v.notify(check)
		return check, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}

	v.apply(check, result)
	if err := v.datasource.SaveDocumentCheck(ctx, check); err != nil {
		return nil, err
	}
	v.notify(check)
	return check, nil
}

func (v *Verifier) apply(check *model.DocumentCheck, result *VerificationResult) {
	check.Status = checkStatusFor(result.Status)
	check.Reason = result.Reason
	if result.ProviderRef != "" {
		check.ProviderRef = result.ProviderRef
	}
	if result.RawData != nil {
		check.Result = result.RawData
	}
	check.UpdatedAt = time.Now()
}

// GetCheck returns the latest check for a service.
func (v *Verifier) GetCheck(ctx context.Context, sessionID string, serviceID model.ServiceType) (*model.DocumentCheck, error) {
	checks, err := v.datasource.GetDocumentChecks(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	check, ok := checks[serviceID]
	if !ok {
		return nil, ErrCheckNotFound
	}
	return check, nil
}

// GetChecks returns every check recorded for a session.
func (v *Verifier) GetChecks(ctx context.Context, sessionID string) (map[model.ServiceType]*model.DocumentCheck, error) {
	return v.datasource.GetDocumentChecks(ctx, sessionID)
}

// Refresh asks the provider for the current state of a submitted check and stores it when
// it moved. It reports whether the check changed.
func (v *Verifier) Refresh(ctx context.Context, check *model.DocumentCheck) (bool, error) {
	if check.ProviderRef == "" {
		return false, fmt.Errorf("check %s has no provider reference", check.CheckID)
	}
	provider, err := v.provider(check.ProviderID)
	if err != nil {
		return false, err
	}
	result, err := provider.CheckStatus(ctx, check.ProviderRef)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}

	status := checkStatusFor(result.Status)
	if status == check.Status {
		return false, nil
	}
	v.apply(check, result)
	if err := v.datasource.SaveDocumentCheck(ctx, check); err != nil {
		return false, err
	}
	v.notify(check)
	return true, nil
}
