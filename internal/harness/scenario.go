package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/icewiki/nomulus/internal/flow"
	"github.com/icewiki/nomulus/internal/model"
)

// Scenario is a scripted sequence of commands with assertions on the final
// state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Start is the clock's initial instant. Defaults to testutil.Epoch.
	Start time.Time `yaml:"start,omitempty"`

	// TLDs is CUE source defining the TLDs in play. Defaults to the "test"
	// TLD from testutil.
	TLDs string `yaml:"tlds,omitempty"`

	// ContactTransferPeriod overrides the automatic approval period of
	// contact transfers.
	ContactTransferPeriod time.Duration `yaml:"contact_transfer_period,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step advances the clock and executes one command.
type Step struct {
	// Advance moves the clock forward before the command runs.
	Advance time.Duration `yaml:"advance,omitempty"`

	Command   model.CommandType  `yaml:"command"`
	Type      model.ResourceType `yaml:"type"`
	Name      string             `yaml:"name"`
	Client    string             `yaml:"client"`
	Superuser bool               `yaml:"superuser,omitempty"`
	Payload   flow.Payload       `yaml:"payload,omitempty"`

	// Expect is OK or the error kind the command must fail with.
	Expect string `yaml:"expect,omitempty"`
}

// ExpectOK marks a step that must commit.
const ExpectOK = "OK"

// Assertion checks one fact about the final state. At is an offset from the
// scenario start; when zero the final clock reading is used.
type Assertion struct {
	Type     string             `yaml:"type"`
	At       time.Duration      `yaml:"at,omitempty"`
	Resource model.ResourceType `yaml:"resource,omitempty"`
	Name     string             `yaml:"name,omitempty"`

	// Client selects the registrar for poll and charge assertions.
	Client string `yaml:"client,omitempty"`

	// Kind and Reason select a billing event for charge assertions.
	Kind   model.EntityKind     `yaml:"kind,omitempty"`
	Reason model.BillingReason  `yaml:"reason,omitempty"`

	// Expect is the expected scalar: sponsor, transfer status or charge
	// status.
	Expect string `yaml:"expect,omitempty"`

	// Values is the expected list: history commands, poll message types or
	// resource statuses.
	Values []string `yaml:"values,omitempty"`
}

// Assertion types.
const (
	AssertSponsor        = "sponsor"
	AssertTransferStatus = "transfer_status"
	AssertStatuses       = "statuses"
	AssertHistory        = "history"
	AssertCharge         = "charge"
	AssertPoll           = "poll"
	AssertAbsent         = "absent"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
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
	for i, step := range s.Steps {
		if step.Command == "" {
			return fmt.Errorf("steps[%d]: command is required", i)
		}
		if _, err := model.ParseResourceType(string(step.Type)); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		if step.Name == "" || step.Client == "" {
			return fmt.Errorf("steps[%d]: name and client are required", i)
		}
		if step.Advance < 0 {
			return fmt.Errorf("steps[%d]: advance must not be negative", i)
		}
		if step.Expect != "" && step.Expect != ExpectOK {
			if _, ok := knownKinds[model.ErrorKind(step.Expect)]; !ok {
				return fmt.Errorf("steps[%d]: unknown expectation %q", i, step.Expect)
			}
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

var knownKinds = map[model.ErrorKind]struct{}{
	model.KindNotFound:      {},
	model.KindConflict:      {},
	model.KindAuthorization: {},
	model.KindInvalidState:  {},
	model.KindParameter:     {},
	model.KindIntegrity:     {},
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertSponsor, AssertTransferStatus, AssertStatuses, AssertHistory, AssertAbsent:
		if a.Resource == "" || a.Name == "" {
			return fmt.Errorf("%s: resource and name are required", a.Type)
		}
	case AssertCharge:
		if a.Resource == "" || a.Name == "" || a.Kind == "" || a.Expect == "" {
			return fmt.Errorf("charge: resource, name, kind and expect are required")
		}
	case AssertPoll:
		if a.Client == "" {
			return fmt.Errorf("poll: client is required")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
