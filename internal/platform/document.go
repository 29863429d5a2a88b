package platform

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// RawConfig is the document form of a platform config, as written in the
// deployment's platform config file and stored in the platforms table.
type RawConfig struct {
	BatchSize                int               `yaml:"batch_size,omitempty" json:"batch_size,omitempty" validate:"omitempty,min=1"`
	FieldMapping             map[string]string `yaml:"field_mapping" json:"field_mapping" validate:"required,min=1,dive,keys,oneof=customer_id customer_name contact_email phone_number product_id product_name product_category order_id order_date item_quantity item_selling_price delivery_address delivery_date delivery_status delivery_partner,endkeys,required"`
	OrderDateFormat          string            `yaml:"order_date_format,omitempty" json:"order_date_format,omitempty"`
	DeliveryDateFormat       string            `yaml:"delivery_date_format,omitempty" json:"delivery_date_format,omitempty"`
	PlatformDataFieldMapping map[string]string `yaml:"platform_data_field_mapping,omitempty" json:"platform_data_field_mapping,omitempty" validate:"omitempty,dive,keys,required,endkeys,required"`
	DeliveryDataFieldMapping map[string]string `yaml:"delivery_data_field_mapping,omitempty" json:"delivery_data_field_mapping,omitempty" validate:"omitempty,dive,keys,required,endkeys,required"`
}

// Document maps platform names to their configs.
type Document map[string]RawConfig

// ErrNotFound is returned by resolvers when no platform matches a name.
var ErrNotFound = errors.New("platform not configured")

// InvalidConfigError reports every problem found in one platform's config.
type InvalidConfigError struct {
	Platform string
	Problems []string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid platform config %q: %s", e.Platform, strings.Join(e.Problems, "; "))
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

func (r RawConfig) validate(name string) error {
	var problems []string

	if name == "" {
		problems = append(problems, "platform name is empty")
	}

	if err := structValidator.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			problems = append(problems, describe(fe))
		}
	}

	if _, ok := r.FieldMapping[FieldOrderID]; !ok && len(r.FieldMapping) > 0 {
		problems = append(problems, "field_mapping must map order_id")
	}
	if _, ok := r.FieldMapping[FieldOrderDate]; ok && r.OrderDateFormat == "" {
		problems = append(problems, "order_date_format is required when order_date is mapped")
	}
	if _, ok := r.FieldMapping[FieldDeliveryDate]; ok && r.DeliveryDateFormat == "" {
		problems = append(problems, "delivery_date_format is required when delivery_date is mapped")
	}

	if len(problems) > 0 {
		return &InvalidConfigError{Platform: name, Problems: problems}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := fe.StructField()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s has unknown canonical field %q", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

// ParseDocument decodes a platform config document. JSON documents are
// accepted as well as YAML.
func ParseDocument(r io.Reader) (Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read platform document: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("platform document is empty")
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode platform document: %w", err)
	}
	return doc, nil
}

// LoadDocument reads and decodes the platform config document at path.
func LoadDocument(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open platform document: %w", err)
	}
	defer f.Close()
	return ParseDocument(f)
}

// Names returns the platform names in the document, sorted.
func (d Document) Names() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Configs builds and validates every config in the document. Names that
// differ only by case are rejected since lookup is case-insensitive.
func (d Document) Configs(defaultBatchSize int) ([]*Config, error) {
	var errs []error
	seen := make(map[string]string, len(d))
	configs := make([]*Config, 0, len(d))

	for _, name := range d.Names() {
		key := normalize(name)
		if prev, dup := seen[key]; dup {
			errs = append(errs, fmt.Errorf("platforms %q and %q differ only by case", prev, name))
			continue
		}
		seen[key] = name

		cfg, err := NewConfig(name, d[name], defaultBatchSize)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		configs = append(configs, cfg)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return configs, nil
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
