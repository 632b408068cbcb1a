package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/msggate/internal/admission"
	"github.com/roach88/msggate/internal/wire"
)

// DefaultAuthority is the gateway authority used when a scenario names none.
const DefaultAuthority = "relay-admin"

// Scenario defines an admission scenario.
// Scenarios run a sequence of counter initializations and admission
// attempts against a fresh store and assert on the resulting trace and
// final state.
type Scenario struct {
	// Name uniquely identifies this scenario. It is also the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Gateway configures the authority and signature policy.
	Gateway GatewaySetup `yaml:"gateway,omitempty"`

	// AttemptPrefix is the prefix of generated attempt ids.
	// If empty, ids are "attempt-0001", "attempt-0002", ...
	AttemptPrefix string `yaml:"attempt_prefix,omitempty"`

	// Setup steps establish initial state and must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow contains the steps under test, each optionally with an expect clause.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// GatewaySetup is the gateway record a scenario runs against.
type GatewaySetup struct {
	// Authority is the identity allowed to initialize counters.
	// Defaults to DefaultAuthority.
	Authority  string `yaml:"authority,omitempty"`
	GatewayRef string `yaml:"gateway_ref,omitempty"`

	// Disabled marks the gateway as not enabled.
	Disabled bool `yaml:"disabled,omitempty"`

	// DestChainID restricts admission to one destination. Zero accepts any.
	DestChainID uint64 `yaml:"dest_chain_id,omitempty"`

	// Signers are seed bytes of the authorized test signers. Signature
	// enforcement is on if and only if the list is non-empty.
	Signers   []int  `yaml:"signers,omitempty"`
	Threshold int    `yaml:"threshold,omitempty"`
}

// Step is one operation. Exactly one of InitCounter and Admit is set.
type Step struct {
	InitCounter *InitCounterStep `yaml:"init_counter,omitempty"`
	Admit       *AdmitStep       `yaml:"admit,omitempty"`

	// Expect specifies the expected outcome.
	// If nil, no validation is performed. Not allowed in setup.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// InitCounterStep creates the counter for a chain.
type InitCounterStep struct {
	Chain uint64 `yaml:"chain"`

	// Requester defaults to the gateway authority.
	Requester string `yaml:"requester,omitempty"`
}

// AdmitStep submits a candidate message. Unset fields take the values of
// testutil.NewMessage.
type AdmitStep struct {
	Chain      uint64  `yaml:"chain"`
	SequenceID string  `yaml:"sequence_id"`
	DestChain  *uint64 `yaml:"dest_chain_id,omitempty"`
	Sender     *string `yaml:"sender,omitempty"`
	Recipient  *string `yaml:"recipient,omitempty"`
	Payload    *string `yaml:"payload,omitempty"`
	PayloadRef *string `yaml:"payload_ref,omitempty"`

	// Oversize names one field (sender, recipient, payload, payload_ref)
	// to fill one byte past its bound.
	Oversize string `yaml:"oversize,omitempty"`

	// SignWith lists seed bytes of test signers that sign the message.
	SignWith []int `yaml:"sign_with,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Code is CodeOK or an admission error code such as "SEQUENCE_TOO_OLD".
	Code string `yaml:"code"`

	// Watermark, if set, is the expected watermark after the step.
	Watermark string `yaml:"watermark,omitempty"`
}

// Assertion validates the final trace or state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "watermark": the chain's watermark equals Equals
	// - "record_exists": (Chain, SequenceID) was admitted
	// - "record_absent": (Chain, SequenceID) was not admitted
	// - "record_count": the chain has exactly Count records
	// - "event_count": the outbox holds exactly Count events of Kind
	// - "trace_contains": a trace event matches Op, Chain, SequenceID and Code
	// - "trace_count": exactly Count trace events have Code
	// - "audit_consistent": every chain passes the store audit
	Type string `yaml:"type"`

	Chain      uint64 `yaml:"chain,omitempty"`
	SequenceID string `yaml:"sequence_id,omitempty"`
	Equals     string `yaml:"equals,omitempty"`
	Op         string `yaml:"op,omitempty"`
	Code       string `yaml:"code,omitempty"`

	// Kind is the event kind (used by event_count). Empty counts all events.
	Kind string `yaml:"kind,omitempty"`

	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertWatermark       = "watermark"
	AssertRecordExists    = "record_exists"
	AssertRecordAbsent    = "record_absent"
	AssertRecordCount     = "record_count"
	AssertEventCount      = "event_count"
	AssertTraceContains   = "trace_contains"
	AssertTraceCount      = "trace_count"
	AssertAuditConsistent = "audit_consistent"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
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

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Gateway.Threshold < 0 || s.Gateway.Threshold > len(s.Gateway.Signers) {
		return fmt.Errorf("gateway.threshold %d out of range for %d signers",
			s.Gateway.Threshold, len(s.Gateway.Signers))
	}

	if err := validateSeeds(s.Gateway.Signers); err != nil {
		return fmt.Errorf("gateway.signers: %w", err)
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: expect is not allowed in setup", i)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
		if step.Expect != nil {
			if err := validateExpect(step.Expect); err != nil {
				return fmt.Errorf("flow[%d].expect: %w", i, err)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(step Step) error {
	switch {
	case step.InitCounter != nil && step.Admit != nil:
		return fmt.Errorf("init_counter and admit are mutually exclusive")
	case step.InitCounter != nil:
		return nil
	case step.Admit != nil:
		if _, err := wire.ParseSequenceID(step.Admit.SequenceID); err != nil {
			return fmt.Errorf("admit.sequence_id: %w", err)
		}
		switch step.Admit.Oversize {
		case "", "sender", "recipient", "payload", "payload_ref":
		default:
			return fmt.Errorf("admit.oversize: unknown field %q", step.Admit.Oversize)
		}
		if err := validateSeeds(step.Admit.SignWith); err != nil {
			return fmt.Errorf("admit.sign_with: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("one of init_counter or admit is required")
	}
}

// validateSeeds checks signer seeds fit testutil.NewSigner.
func validateSeeds(seeds []int) error {
	for _, seed := range seeds {
		if seed < 1 || seed > 255 {
			return fmt.Errorf("signer seed %d out of range 1..255", seed)
		}
	}
	return nil
}

func validateExpect(e *ExpectClause) error {
	if e.Code == "" {
		return fmt.Errorf("code is required")
	}
	if e.Code != CodeOK && !admission.Code(e.Code).Known() {
		return fmt.Errorf("unknown code %q", e.Code)
	}
	if e.Watermark != "" {
		if _, err := wire.ParseSequenceID(e.Watermark); err != nil {
			return fmt.Errorf("watermark: %w", err)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}

	switch a.Type {
	case AssertWatermark:
		if _, err := wire.ParseSequenceID(a.Equals); err != nil {
			return fmt.Errorf("assertions[%d]: equals must be a sequence id for watermark: %w", index, err)
		}
	case AssertRecordExists, AssertRecordAbsent:
		if _, err := wire.ParseSequenceID(a.SequenceID); err != nil {
			return fmt.Errorf("assertions[%d]: sequence_id is required for %s: %w", index, a.Type, err)
		}
	case AssertRecordCount, AssertEventCount, AssertAuditConsistent:
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceCount:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for trace_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
