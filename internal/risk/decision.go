package risk

// Decision is the action the login flow takes for a scored attempt.
type Decision string

const (
	DecisionAdmit   Decision = "admit"
	DecisionApprove Decision = "approval_required"
	DecisionBlock   Decision = "block"
)

// Thresholds are the configured score cutoffs. Block wins over Approve.
type Thresholds struct {
	Block    int // score >= Block => DecisionBlock
	Approval int // score >= Approval => DecisionApprove
}

// DefaultThresholds matches the documented policy: block at 70, require
// out-of-band approval at 30.
var DefaultThresholds = Thresholds{Block: 70, Approval: 30}

// Decide maps a score to the action for this attempt.
func Decide(score int, t Thresholds) Decision {
	switch {
	case score >= t.Block:
		return DecisionBlock
	case score >= t.Approval:
		return DecisionApprove
	default:
		return DecisionAdmit
	}
}
