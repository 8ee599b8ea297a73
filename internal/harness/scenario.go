package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted till session.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Owner is the signed-in user. Empty means signed out, so every
	// mutation is queued.
	Owner string `yaml:"owner,omitempty"`

	// Seed is the backend content before the session starts. The local
	// state is loaded from it.
	Seed Seed `yaml:"seed,omitempty"`

	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Seed is the initial backend content. Money is written as decimal
// strings.
type Seed struct {
	Settings *SeedSettings `yaml:"settings,omitempty"`
	Products []SeedProduct `yaml:"products,omitempty"`
}

// SeedSettings are the owner's store settings.
type SeedSettings struct {
	StoreName string `yaml:"store_name"`
	TaxRate   string `yaml:"tax_rate,omitempty"`
}

// SeedProduct is one catalogue entry.
type SeedProduct struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Barcode  string `yaml:"barcode,omitempty"`
	Category string `yaml:"category,omitempty"`
	Price    string `yaml:"price,omitempty"`
	Cost     string `yaml:"cost,omitempty"`
	Quantity int64  `yaml:"quantity,omitempty"`
	MinStock int64  `yaml:"min_stock,omitempty"`
	Unit     string `yaml:"unit,omitempty"`
}

// Step is one scripted action.
type Step struct {
	// Invoke names the action, e.g. "record_sale".
	Invoke string `yaml:"invoke"`

	Args map[string]any `yaml:"args,omitempty"`

	// Expect is checked right after the step. Nil means any outcome.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect constrains a step outcome.
type Expect struct {
	// Outcome is "ok", an error label (see errorLabel), a stop reason for
	// sync or a source for load.
	Outcome string `yaml:"outcome"`

	// Pending, when set, is the queue length after the step.
	Pending *int `yaml:"pending,omitempty"`
}

// Assertion validates the final trace or state.
type Assertion struct {
	Type string `yaml:"type"`

	// Call is a backend method (call_contains, call_count).
	Call string `yaml:"call,omitempty"`

	// Detail is a substring of the call subject (call_contains).
	Detail string `yaml:"detail,omitempty"`

	// Calls is the expected first-appearance order (call_order).
	Calls []string `yaml:"calls,omitempty"`

	// Count is the expected number (call_count, queue_length, sale_count).
	Count int `yaml:"count,omitempty"`

	// Product references the product by id, barcode or name (product_state).
	Product string `yaml:"product,omitempty"`

	// Remote checks the backend copy instead of the local one
	// (product_state, sale_count).
	Remote bool `yaml:"remote,omitempty"`

	// Expect holds field values (product_state). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertCallContains = "call_contains"
	AssertCallOrder    = "call_order"
	AssertCallCount    = "call_count"
	AssertQueueLength  = "queue_length"
	AssertProductState = "product_state"
	AssertSaleCount    = "sale_count"
)

// Step actions.
const (
	ActGoOffline      = "go_offline"
	ActGoOnline       = "go_online"
	ActLoseConnection = "lose_connection"
	ActFailNext       = "fail_next"
	ActFailAfterApply = "fail_after_apply"
	ActCreateProduct  = "create_product"
	ActUpdateProduct  = "update_product"
	ActDeleteProduct  = "delete_product"
	ActRecordMovement = "record_movement"
	ActAddToCart      = "add_to_cart"
	ActRecordSale     = "record_sale"
	ActUpdateSettings = "update_settings"
	ActSync           = "sync"
	ActLoad           = "load"
	ActRestart        = "restart"
	ActAdvanceClock   = "advance_clock"
)

var knownActions = []string{
	ActGoOffline, ActGoOnline, ActLoseConnection, ActFailNext, ActFailAfterApply,
	ActCreateProduct, ActUpdateProduct, ActDeleteProduct, ActRecordMovement,
	ActAddToCart, ActRecordSale, ActUpdateSettings, ActSync, ActLoad, ActRestart,
	ActAdvanceClock,
}

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	ids := make(map[string]bool)
	for i, p := range s.Seed.Products {
		if p.ID == "" || p.Name == "" {
			return fmt.Errorf("seed.products[%d]: id and name are required", i)
		}
		if ids[p.ID] {
			return fmt.Errorf("seed.products[%d]: duplicate id %q", i, p.ID)
		}
		ids[p.ID] = true
	}

	for i, step := range s.Steps {
		if step.Invoke == "" {
			return fmt.Errorf("steps[%d]: invoke is required", i)
		}
		if !slices.Contains(knownActions, step.Invoke) {
			return fmt.Errorf("steps[%d]: unknown action %q", i, step.Invoke)
		}
		if step.Expect != nil && step.Expect.Outcome == "" {
			return fmt.Errorf("steps[%d].expect: outcome is required", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertCallContains:
		if a.Call == "" {
			return fmt.Errorf("assertions[%d]: call is required for call_contains", index)
		}
	case AssertCallOrder:
		if len(a.Calls) == 0 {
			return fmt.Errorf("assertions[%d]: calls list is required for call_order", index)
		}
	case AssertCallCount:
		if a.Call == "" {
			return fmt.Errorf("assertions[%d]: call is required for call_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for call_count", index)
		}
	case AssertQueueLength, AssertSaleCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertProductState:
		if a.Product == "" {
			return fmt.Errorf("assertions[%d]: product is required for product_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for product_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
