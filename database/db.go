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

package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	redis_db "github.com/blnkfinance/vetflow/internal/redis-db"
	"github.com/blnkfinance/vetflow/model"
)

// Datasource implements IDataSource over a Store.
type Datasource struct {
	store Store

	mu     sync.RWMutex
	subs   map[string]map[int]func(Event)
	nextID int
}

// NewDataSource picks the Redis store when a client is given, the memory store otherwise.
func NewDataSource(rdb *redis_db.Redis) IDataSource {
	if rdb == nil {
		logrus.Warn("no redis client, session state is kept in memory")
		return NewWithStore(NewMemoryStore())
	}
	return NewWithStore(NewRedisStore(rdb.Client(), 0))
}

func NewWithStore(store Store) *Datasource {
	return &Datasource{store: store, subs: make(map[string]map[int]func(Event))}
}

func (d *Datasource) Subscribe(sessionID string, fn func(Event)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.subs[sessionID] == nil {
		d.subs[sessionID] = make(map[int]func(Event))
	}
	id := d.nextID
	d.nextID++
	d.subs[sessionID][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.subs[sessionID], id)
			if len(d.subs[sessionID]) == 0 {
				delete(d.subs, sessionID)
			}
		})
	}
}

func (d *Datasource) publish(ev Event) {
	d.mu.RLock()
	fns := make([]func(Event), 0, len(d.subs[ev.SessionID]))
	for _, fn := range d.subs[ev.SessionID] {
		fns = append(fns, fn)
	}
	d.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (d *Datasource) getJSON(ctx context.Context, sessionID, key string, v interface{}) error {
	raw, err := d.store.Get(ctx, sessionID, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (d *Datasource) setJSON(ctx context.Context, sessionID, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := d.store.Set(ctx, sessionID, key, raw); err != nil {
		return err
	}
	d.publish(Event{SessionID: sessionID, Key: key})
	return nil
}

func (d *Datasource) delete(ctx context.Context, sessionID string, keys ...string) error {
	if err := d.store.Delete(ctx, sessionID, keys...); err != nil {
		return err
	}
	for _, k := range keys {
		d.publish(Event{SessionID: sessionID, Key: k, Deleted: true})
	}
	return nil
}

func (d *Datasource) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	var s model.Session
	if err := d.getJSON(ctx, sessionID, KeyWorkflowSession, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (d *Datasource) SaveSession(ctx context.Context, s *model.Session) error {
	return d.setJSON(ctx, s.SessionID, KeyWorkflowSession, s)
}

func (d *Datasource) DeleteSession(ctx context.Context, sessionID string) error {
	keys := []string{KeyWorkflowSession, KeySelectedServices, KeyCompletedForms, KeyDocumentChecks}
	for _, t := range model.ServiceTypes {
		keys = append(keys, t.StorageKey())
	}
	return d.delete(ctx, sessionID, keys...)
}

func (d *Datasource) getSet(ctx context.Context, sessionID, key string) (model.Selection, error) {
	var ids []model.ServiceType
	err := d.getJSON(ctx, sessionID, key, &ids)
	if errors.Is(err, ErrNotFound) {
		return model.NewSelection(), nil
	}
	if err != nil {
		return nil, err
	}
	return model.NewSelection(ids...), nil
}

func (d *Datasource) GetSelection(ctx context.Context, sessionID string) (model.Selection, error) {
	return d.getSet(ctx, sessionID, KeySelectedServices)
}

func (d *Datasource) SetSelection(ctx context.Context, sessionID string, sel model.Selection) error {
	return d.setJSON(ctx, sessionID, KeySelectedServices, sel.Sorted())
}

func (d *Datasource) ClearSelection(ctx context.Context, sessionID string) error {
	return d.delete(ctx, sessionID, KeySelectedServices)
}

func (d *Datasource) GetCompletedForms(ctx context.Context, sessionID string) (model.Selection, error) {
	return d.getSet(ctx, sessionID, KeyCompletedForms)
}

func (d *Datasource) SetCompletedForms(ctx context.Context, sessionID string, completed model.Selection) error {
	return d.setJSON(ctx, sessionID, KeyCompletedForms, completed.Sorted())
}

func (d *Datasource) ClearCompletedForms(ctx context.Context, sessionID string) error {
	return d.delete(ctx, sessionID, KeyCompletedForms)
}

func (d *Datasource) GetForm(ctx context.Context, sessionID string, t model.ServiceType) (model.FormData, error) {
	form, err := model.NewForm(t)
	if err != nil {
		return nil, err
	}
	if err := d.getJSON(ctx, sessionID, t.StorageKey(), form); err != nil {
		return nil, err
	}
	return form, nil
}

func (d *Datasource) SaveForm(ctx context.Context, sessionID string, form model.FormData) error {
	return d.setJSON(ctx, sessionID, form.ServiceType().StorageKey(), form)
}

func (d *Datasource) ClearForms(ctx context.Context, sessionID string) error {
	keys := make([]string, 0, len(model.ServiceTypes))
	for _, t := range model.ServiceTypes {
		keys = append(keys, t.StorageKey())
	}
	return d.delete(ctx, sessionID, keys...)
}

func (d *Datasource) GetDocumentChecks(ctx context.Context, sessionID string) (map[model.ServiceType]*model.DocumentCheck, error) {
	checks := make(map[model.ServiceType]*model.DocumentCheck)
	err := d.getJSON(ctx, sessionID, KeyDocumentChecks, &checks)
	if errors.Is(err, ErrNotFound) {
		return checks, nil
	}
	return checks, err
}

func (d *Datasource) SaveDocumentCheck(ctx context.Context, check *model.DocumentCheck) error {
	checks, err := d.GetDocumentChecks(ctx, check.SessionID)
	if err != nil {
		return err
	}
	checks[check.ServiceID] = check
	return d.setJSON(ctx, check.SessionID, KeyDocumentChecks, checks)
}

func (d *Datasource) GetChecksByStatus(ctx context.Context, status model.CheckStatus) ([]*model.DocumentCheck, error) {
	sessions, err := d.store.SessionsWithKey(ctx, KeyDocumentChecks)
	if err != nil {
		return nil, err
	}
	var out []*model.DocumentCheck
	for _, id := range sessions {
		checks, err := d.GetDocumentChecks(ctx, id)
		if err != nil {
			logrus.WithError(err).WithField("session_id", id).Warn("skipping unreadable document checks")
			continue
		}
		for _, c := range checks {
			if c.Status == status {
				out = append(out, c)
			}
		}
	}
	return out, nil
}
