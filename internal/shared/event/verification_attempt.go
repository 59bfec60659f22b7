package event

const VerificationAttemptDestination string = "verification_attempt"
const VerificationAttemptDestinationConsumerAudit string = "verification_attempt_audit"

type VerificationAttemptMessage struct {
	AccountID  string `json:"account_id"`
	Method     string `json:"method"`
	Accepted   bool   `json:"accepted"`
	OccurredAt int64  `json:"occurred_at"`
}
