package admission

// Stage is a gate in the admission state machine.
type Stage int

const (
	StageReceived Stage = iota
	StageValidated
	StageDigestComputed
	StageSignaturePolicyChecked
	StageOrderingChecked
	StageCommitted
)

var stageNames = [...]string{
	StageReceived:               "received",
	StageValidated:              "validated",
	StageDigestComputed:         "digest_computed",
	StageSignaturePolicyChecked: "signature_policy_checked",
	StageOrderingChecked:        "ordering_checked",
	StageCommitted:              "committed",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}
