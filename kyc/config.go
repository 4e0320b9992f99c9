package kyc

import (
	"os"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

type ProviderConfig struct {
	Name            string          `yaml:"name"`
	Enabled         bool            `yaml:"enabled"`
	Default         bool            `yaml:"default,omitempty"`
	APIKey          string          `yaml:"api_key"`
	APISecret       string          `yaml:"api_secret,omitempty"`
	AuthType        string          `yaml:"auth_type"`
	AuthHeader      string          `yaml:"auth_header"`
	BaseURL         string          `yaml:"base_url"`
	TimeoutSec      int             `yaml:"timeout_sec,omitempty"`
	Endpoints       EndpointsConfig `yaml:"endpoints"`
	RequestConfig   RequestConfig   `yaml:"request_config,omitempty"`
	ResponseMapping ResponseMapping `yaml:"response_mapping"`
}

// EndpointsConfig paths may use the {session_id}, {service_id} and {provider_ref} placeholders.
type EndpointsConfig struct {
	VerifyDocument string `yaml:"verify_document"`
	GetStatus      string `yaml:"get_status"`
}

type RequestConfig struct {
	// DocumentField names the JSON field carrying the base64 document. Defaults to "file".
	DocumentField string            `yaml:"document_field,omitempty"`
	StaticFields  map[string]string `yaml:"static_fields,omitempty"`
}

type ResponseMapping struct {
	StatusField    string   `yaml:"status_field"`
	ReferenceField string   `yaml:"reference_field"`
	ReasonField    string   `yaml:"reason_field,omitempty"`
	VerifiedValues []string `yaml:"verified_values"`
	FailedValues   []string `yaml:"failed_values"`
	PendingValues  []string `yaml:"pending_values"`
	ReviewValues   []string `yaml:"review_values"`
}

// Validate reports the settings a configurable provider cannot work without.
func (c ProviderConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.APIKey, validation.Required),
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.Endpoints),
		validation.Field(&c.ResponseMapping),
	)
}

func (e EndpointsConfig) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.VerifyDocument, validation.Required),
		validation.Field(&e.GetStatus, validation.Required),
	)
}

func (m ResponseMapping) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.StatusField, validation.Required),
		validation.Field(&m.ReferenceField, validation.Required),
	)
}

// resolveSecrets swaps "${NAME}" credentials for the environment variable NAME.
func (c *ProviderConfig) resolveSecrets() {
	c.APIKey = envValue(c.APIKey)
	c.APISecret = envValue(c.APISecret)
}

// envValue resolves a "${NAME}" reference; anything else, or an unset variable,
// comes back unchanged.
func envValue(value string) string {
	name, ok := strings.CutPrefix(value, "${")
	if !ok {
		return value
	}
	if name, ok = strings.CutSuffix(name, "}"); !ok {
		return value
	}
	if resolved := os.Getenv(name); resolved != "" {
		return resolved
	}
	return value
}

type KYCConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
}

func LoadConfig(filepath string) (*KYCConfig, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return LoadConfigFromBytes(data)
}

func LoadConfigFromBytes(data []byte) (*KYCConfig, error) {
	var config KYCConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	return &config, nil
}
