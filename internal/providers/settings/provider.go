package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WindowArranger/backend/internal/infrastructure/kv"
)

// KeyPrefix prefixes stored setting keys.
const KeyPrefix = "settings_"

// MoveToTop controls whether created windows and loaded arrangements are
// placed before everything else.
const MoveToTop = "moveToTop"

var ErrUnknownSetting = errors.New("unknown setting")

// Setting represents a boolean setting
type Setting struct {
	Key         string `json:"key"`
	Value       bool   `json:"value"`
	Default     bool   `json:"default"`
	Description string `json:"description"`
}

// Provider serves boolean settings backed by the key-value store.
type Provider struct {
	store  kv.Store
	logger *zap.Logger

	mu       sync.RWMutex
	defaults map[string]Setting
	cache    sync.Map // key -> bool
}

// NewProvider creates a settings provider
func NewProvider(store kv.Store, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Provider{store: store, logger: logger}
	p.initializeDefaults()
	return p
}

// initializeDefaults sets up default settings
func (p *Provider) initializeDefaults() {
	p.defaults = map[string]Setting{
		MoveToTop: {Key: MoveToTop, Default: true, Description: "Place new windows and loaded arrangements first"},
	}
}

// LoadDefaults overrides built-in defaults from a YAML file of booleans.
// Unknown keys are rejected.
func (p *Provider) LoadDefaults(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read settings file: %w", err)
	}
	var values map[string]bool
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("parse settings file %s: %w", path, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for k, v := range values {
		s, ok := p.defaults[k]
		if !ok {
			return fmt.Errorf("%w: %q in %s", ErrUnknownSetting, k, path)
		}
		s.Default = v
		p.defaults[k] = s
	}
	p.logger.Info("Loaded setting defaults", zap.String("path", path), zap.Int("count", len(values)))
	return nil
}

func (p *Provider) definition(key string) (Setting, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.defaults[key]
	if !ok {
		return Setting{}, fmt.Errorf("%w: %q", ErrUnknownSetting, key)
	}
	return s, nil
}

// Bool returns the value of a setting, falling back to its default.
func (p *Provider) Bool(ctx context.Context, key string) (bool, error) {
	def, err := p.definition(key)
	if err != nil {
		return false, err
	}
	if v, ok := p.cache.Load(key); ok {
		return v.(bool), nil
	}

	raw, ok, err := p.store.Get(ctx, KeyPrefix+key)
	if err != nil {
		return false, fmt.Errorf("read setting %q: %w", key, err)
	}
	if !ok {
		return def.Default, nil
	}
	var value bool
	if err := sonic.Unmarshal(raw, &value); err != nil {
		p.logger.Warn("Ignoring malformed setting", zap.String("key", key), zap.Error(err))
		return def.Default, nil
	}
	p.cache.Store(key, value)
	return value, nil
}

// Set persists a setting value.
func (p *Provider) Set(ctx context.Context, key string, value bool) error {
	if _, err := p.definition(key); err != nil {
		return err
	}
	data, err := sonic.Marshal(value)
	if err != nil {
		return err
	}
	if err := p.store.Set(ctx, KeyPrefix+key, data); err != nil {
		return fmt.Errorf("persist setting %q: %w", key, err)
	}
	p.cache.Store(key, value)
	return nil
}

// Reset removes a stored value so the default applies again.
func (p *Provider) Reset(ctx context.Context, key string) error {
	if _, err := p.definition(key); err != nil {
		return err
	}
	if err := p.store.Remove(ctx, KeyPrefix+key); err != nil {
		return fmt.Errorf("reset setting %q: %w", key, err)
	}
	p.cache.Delete(key)
	return nil
}

// List returns every setting with its current value, ordered by key.
func (p *Provider) List(ctx context.Context) ([]Setting, error) {
	p.mu.RLock()
	keys := make([]string, 0, len(p.defaults))
	for k := range p.defaults {
		keys = append(keys, k)
	}
	p.mu.RUnlock()
	sort.Strings(keys)

	out := make([]Setting, 0, len(keys))
	for _, k := range keys {
		s, err := p.definition(k)
		if err != nil {
			return nil, err
		}
		if s.Value, err = p.Bool(ctx, k); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Forget drops cached values, e.g. after the backing store was cleared.
func (p *Provider) Forget() {
	p.cache.Range(func(k, _ interface{}) bool {
		p.cache.Delete(k)
		return true
	})
}
